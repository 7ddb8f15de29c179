package etag

import "testing"

func TestOfKnownValues(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"name":"Zul"}`, "4cdbc5ffe38a19ec2fd3c1625f92c14e2e0b4ec0"},
		{`{"name":"Odoyle Rules!"}`, "8d8dbf068de76b07ecd87c58f228c8dfdce138dd"},
		{"", "da39a3ee5e6b4b0d3255bfef95601890afd80709"},
	}
	for _, tc := range cases {
		if got := Of([]byte(tc.in)); got != tc.want {
			t.Fatalf("Of(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestOfDeterministic(t *testing.T) {
	b := []byte("the value")
	first := Of(b)
	for i := 0; i < 10; i++ {
		if got := Of(b); got != first {
			t.Fatalf("run %d: %s != %s", i, got, first)
		}
	}
	if len(first) != Size {
		t.Fatalf("len = %d, want %d", len(first), Size)
	}
	if Of([]byte("the value ")) == first {
		t.Fatalf("different inputs produced the same etag")
	}
}

func TestMatch(t *testing.T) {
	if Match("", "") {
		t.Fatalf("empty expected must not match")
	}
	if !Match("abc", "abc") {
		t.Fatalf("equal hashes must match")
	}
	if Match("abc", "abd") {
		t.Fatalf("different hashes must not match")
	}
}
