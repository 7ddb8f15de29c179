package codec

import "fmt"

// Limit rejects bodies longer than Max bytes before Inner sees them.
// If Max <= 0, size limiting is disabled. A nil Inner behaves like Raw.
type Limit struct {
	Inner Normalizer
	Max   int
}

func (l Limit) Normalize(b []byte) ([]byte, error) {
	if l.Max > 0 && len(b) > l.Max {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(b), l.Max)
	}
	if l.Inner == nil {
		return b, nil
	}
	return l.Inner.Normalize(b)
}
