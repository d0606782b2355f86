// Package bodycodec implements the compression and text/binary detection
// helpers the transform engine and canonicalization layer need when
// handling span bodies (spec §8's round-trip laws).
package bodycodec

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
)

// Encoding is a content-encoding this package can compress/decompress.
type Encoding string

const (
	EncodingGzip    Encoding = "gzip"
	EncodingDeflate Encoding = "deflate"
	EncodingBrotli  Encoding = "br"
	EncodingNone    Encoding = ""
)

// Compress encodes b under enc. EncodingNone returns b unchanged; any
// other unrecognized encoding returns an error.
func Compress(b []byte, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(b); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case EncodingDeflate:
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(b); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case EncodingBrotli:
		var buf bytes.Buffer
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(b); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case EncodingNone:
		return b, nil
	default:
		return nil, fmt.Errorf("bodycodec: unsupported encoding %q", enc)
	}
}

// Decompress reverses Compress. decompress(compress(B, enc)) = B for every
// enc this package supports (spec §8).
func Decompress(b []byte, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingGzip:
		r, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case EncodingDeflate:
		r := flate.NewReader(bytes.NewReader(b))
		defer r.Close()
		return io.ReadAll(r)
	case EncodingBrotli:
		r := brotli.NewReader(bytes.NewReader(b))
		return io.ReadAll(r)
	case EncodingNone:
		return b, nil
	default:
		return nil, fmt.Errorf("bodycodec: unsupported encoding %q", enc)
	}
}

// BufferString is the result of classifying a byte buffer for the wire
// (spec §8: "bufferToString(B).encoding = utf8 iff B is valid UTF-8").
type BufferString struct {
	Content  string
	Encoding string // "utf8" or "base64"
}

// BufferToString classifies b as UTF-8 text or, failing that, falls back
// to base64, matching the law `bufferToString(B).encoding = utf8 iff the
// bytes of B form a valid UTF-8 string; otherwise base64 with
// Buffer(decodeBase64(content)) = B`.
func BufferToString(b []byte) BufferString {
	if utf8.Valid(b) {
		return BufferString{Content: string(b), Encoding: "utf8"}
	}
	return BufferString{Content: base64.StdEncoding.EncodeToString(b), Encoding: "base64"}
}

// StringToBuffer reverses BufferToString.
func StringToBuffer(s BufferString) ([]byte, error) {
	if s.Encoding == "base64" {
		return base64.StdEncoding.DecodeString(s.Content)
	}
	return []byte(s.Content), nil
}
