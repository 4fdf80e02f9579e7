package xmlcodec

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
)

// CompressOrderData deflates order data the way EBICS requires before it is
// (optionally) E002-encrypted and base64-encoded onto the wire.
func CompressOrderData(plain []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("new flate writer: %w", err)
	}
	if _, err := w.Write(plain); err != nil {
		return nil, fmt.Errorf("deflate order data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close flate writer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecompressOrderData reverses CompressOrderData.
func DecompressOrderData(compressed []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("inflate order data: %w", err)
	}
	return out, nil
}
