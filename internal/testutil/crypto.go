package testutil

import (
	"bytes"
	"io"

	"github.com/dtroode/gophkeeper-vault/internal/model"
)

// FastKDFParams keep Argon2id cheap enough for unit tests.
var FastKDFParams = model.KDFParams{Time: 1, MemKiB: 64, Par: 1}

// CountingReader yields bytes 0x00, 0x01, ... and wraps around.
type CountingReader struct{ b byte }

func (r *CountingReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b
		r.b++
	}
	return len(p), nil
}

// FailingReader always returns its error.
type FailingReader struct{ Err error }

func (r FailingReader) Read([]byte) (int, error) {
	return 0, r.Err
}

// Key returns a KeySize key filled with b.
func Key(b byte) []byte {
	return bytes.Repeat([]byte{b}, model.KeySize)
}

// NopReadCloser wraps data in an io.ReadCloser.
func NopReadCloser(data []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(data))
}
