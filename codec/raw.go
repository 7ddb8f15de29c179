package codec

// Raw stores the body exactly as received.
type Raw struct{}

func (Raw) Normalize(b []byte) ([]byte, error) { return b, nil }
