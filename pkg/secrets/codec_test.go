package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestCodec_RoundTrip(t *testing.T) {
	codec, err := New(testKey())
	require.NoError(t, err)

	envelope, err := codec.Encode("sk-live-abc123")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(envelope, "v1:"))
	assert.Len(t, strings.Split(envelope, ":"), 4)

	plaintext, err := codec.Decode(envelope)
	require.NoError(t, err)
	assert.Equal(t, "sk-live-abc123", plaintext)
}

func TestCodec_DistinctNoncesPerCall(t *testing.T) {
	codec, err := New(testKey())
	require.NoError(t, err)

	a, err := codec.Encode("same-secret")
	require.NoError(t, err)
	b, err := codec.Encode("same-secret")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "encoding the same plaintext twice must use a fresh nonce")
}

func TestCodec_Decode_MalformedEnvelope(t *testing.T) {
	codec, err := New(testKey())
	require.NoError(t, err)

	_, err = codec.Decode("not-an-envelope")
	assert.ErrorIs(t, err, ErrMalformedEnvelope)

	_, err = codec.Decode("v2:a:b:c")
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestCodec_Decode_TamperedCiphertextFails(t *testing.T) {
	codec, err := New(testKey())
	require.NoError(t, err)

	envelope, err := codec.Encode("top-secret")
	require.NoError(t, err)

	parts := strings.Split(envelope, ":")
	parts[3] = parts[3] + "AA" // corrupt ciphertext
	tampered := strings.Join(parts, ":")

	_, err = codec.Decode(tampered)
	assert.Error(t, err)
}

func TestNew_RejectsWrongKeySize(t *testing.T) {
	_, err := New([]byte("too-short"))
	assert.Error(t, err)
}
