package compress

import (
	"bytes"

	"github.com/andybalholm/brotli"
)

// Brotli trades encode speed for the smallest cached payloads.
type Brotli struct {
	level int
}

func NewBrotli() Brotli {
	return Brotli{level: brotli.DefaultCompression}
}

func (b Brotli) Name() string {
	return "brotli"
}

func (b Brotli) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, b.level)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (b Brotli) Decode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(brotli.NewReader(bytes.NewReader(data))); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
