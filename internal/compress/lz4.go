package compress

import (
	"bytes"

	"github.com/pierrec/lz4/v4"
)

type LZ4 struct {
}

func NewLZ4() LZ4 {
	return LZ4{}
}

func (l LZ4) Name() string {
	return "lz4"
}

func (l LZ4) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (l LZ4) Decode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(lz4.NewReader(bytes.NewReader(data))); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
