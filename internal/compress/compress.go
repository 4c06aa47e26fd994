// Package compress holds the codecs used to store cached link views.
package compress

import "fmt"

// Compress encodes and decodes cached payloads.
type Compress interface {
	Name() string
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

// New returns the codec registered under name. An empty name selects Nop.
func New(name string) (Compress, error) {
	switch name {
	case "", "nop", "none":
		return NewNop(), nil
	case "gzip":
		return NewGZip(), nil
	case "brotli":
		return NewBrotli(), nil
	case "lz4":
		return NewLZ4(), nil
	}
	return nil, fmt.Errorf("unknown compression %q", name)
}
