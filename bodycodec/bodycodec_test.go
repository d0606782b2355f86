package bodycodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	original := []byte(`{"hello":"world","n":42,"nested":{"a":[1,2,3]}}`)
	for _, enc := range []Encoding{EncodingGzip, EncodingDeflate, EncodingBrotli, EncodingNone} {
		t.Run(string(enc)+"-or-none", func(t *testing.T) {
			compressed, err := Compress(original, enc)
			require.NoError(t, err)
			decompressed, err := Decompress(compressed, enc)
			require.NoError(t, err)
			assert.Equal(t, original, decompressed)
		})
	}
}

func TestCompressUnknownEncodingErrors(t *testing.T) {
	_, err := Compress([]byte("x"), Encoding("zstd"))
	assert.Error(t, err)
}

func TestBufferToStringUTF8(t *testing.T) {
	b := []byte("hello, world")
	r := BufferToString(b)
	assert.Equal(t, "utf8", r.Encoding)
	assert.Equal(t, "hello, world", r.Content)

	restored, err := StringToBuffer(r)
	require.NoError(t, err)
	assert.Equal(t, b, restored)
}

func TestBufferToStringInvalidUTF8FallsBackToBase64(t *testing.T) {
	b := []byte{0xff, 0xfe, 0x00, 0x01, 0x80}
	r := BufferToString(b)
	assert.Equal(t, "base64", r.Encoding)

	restored, err := StringToBuffer(r)
	require.NoError(t, err)
	assert.Equal(t, b, restored)
}

func TestBufferToStringEmptyBuffer(t *testing.T) {
	r := BufferToString(nil)
	assert.Equal(t, "utf8", r.Encoding)
	assert.Equal(t, "", r.Content)
}

func TestBufferToStringSingleByte(t *testing.T) {
	utf8Byte := BufferToString([]byte{'a'})
	assert.Equal(t, "utf8", utf8Byte.Encoding)

	nonUTF8Byte := BufferToString([]byte{0x80})
	assert.Equal(t, "base64", nonUTF8Byte.Encoding)
}
