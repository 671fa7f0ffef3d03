package codec

import (
	"bytes"
	"compress/zlib"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBytes(r *rand.Rand, n int) []byte {
	b := make([]byte, n)
	r.Read(b)
	return b
}

func TestRoundTripRestoresFirstSample(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for _, size := range []int{SampleSize, SampleSize + 1, 2 * SampleSize, 50 * SampleSize, SampleSize + 333} {
		raw := randomBytes(r, size)

		payload, err := Encode(raw)
		require.NoError(t, err)

		sample, err := DecodeBytes(payload)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, raw[:SampleSize], sample[:], "size %d", size)
	}
}

func TestUndersizeIsRejected(t *testing.T) {
	r := rand.New(rand.NewSource(7))

	for _, size := range []int{0, 1, 4000, SampleSize - 1} {
		payload, err := Encode(randomBytes(r, size))
		require.NoError(t, err)

		sample, err := DecodeBytes(payload)
		require.Error(t, err, "size %d", size)
		assert.True(t, errors.Is(err, ErrDecode))

		var decErr *DecodeError
		require.True(t, errors.As(err, &decErr))
		assert.Equal(t, size, decErr.Got)
		assert.Equal(t, [SampleSize]byte{}, [SampleSize]byte(sample), "образец не должен дополняться")
	}
}

func TestZeroSample(t *testing.T) {
	payload, err := Encode(make([]byte, SampleSize))
	require.NoError(t, err)
	assert.Less(t, len(payload), SampleSize)

	sample, err := DecodeBytes(payload)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, SampleSize), sample[:])
}

func TestEncodeIsDeterministic(t *testing.T) {
	raw := randomBytes(rand.New(rand.NewSource(1)), SampleSize)

	a, err := Encode(raw)
	require.NoError(t, err)
	b, err := Encode(raw)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := DecodeBytes([]byte("definitely not compressed data"))
	assert.True(t, errors.Is(err, ErrDecode))

	_, err = DecodeBytes(nil)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestDecodeTruncatedPayload(t *testing.T) {
	payload, err := Encode(randomBytes(rand.New(rand.NewSource(3)), SampleSize))
	require.NoError(t, err)

	_, err = DecodeBytes(payload[:len(payload)/2])
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestDecodeLegacyZlib(t *testing.T) {
	raw := randomBytes(rand.New(rand.NewSource(9)), SampleSize+10)

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	sample, err := DecodeBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, raw[:SampleSize], sample[:])
}
