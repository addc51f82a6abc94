package encryption

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monitor-engine/internal/config"
)

func localEncryptor() *PayloadEncryptor {
	return NewPayloadEncryptor(&config.Config{
		KMS: config.KMSConfig{Enabled: false},
	}, nil)
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	pe := localEncryptor()
	ctx := context.Background()

	plaintext := []byte(`{"schema_version":1,"payload":{"attempts":14}}`)

	encrypted, err := pe.EncryptPayload(ctx, plaintext)
	require.NoError(t, err)
	assert.Equal(t, "v1", encrypted.Version)
	assert.NotEmpty(t, encrypted.EncryptedValue)
	assert.NotEmpty(t, encrypted.EncryptedDEK)
	assert.NotEqual(t, string(plaintext), encrypted.EncryptedValue)

	decrypted, err := pe.DecryptPayload(ctx, encrypted)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecryptSurvivesCacheFlush(t *testing.T) {
	pe := localEncryptor()
	ctx := context.Background()

	encrypted, err := pe.EncryptPayload(ctx, []byte("sensitive"))
	require.NoError(t, err)

	pe.ClearCache()
	assert.Zero(t, pe.GetCacheSize())

	decrypted, err := pe.DecryptPayload(ctx, encrypted)
	require.NoError(t, err)
	assert.Equal(t, []byte("sensitive"), decrypted)
	assert.Equal(t, 1, pe.GetCacheSize())
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	pe := localEncryptor()
	ctx := context.Background()

	encrypted, err := pe.EncryptPayload(ctx, []byte("sensitive"))
	require.NoError(t, err)

	encrypted.EncryptedValue = "bm90IHZhbGlkIGNpcGhlcnRleHQ="
	_, err = pe.DecryptPayload(ctx, encrypted)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecryptRejectsMalformedEnvelope(t *testing.T) {
	pe := localEncryptor()
	ctx := context.Background()

	_, err := pe.DecryptPayload(ctx, &EncryptedPayload{
		EncryptedValue: "!!! not base64 !!!",
		EncryptedDEK:   "!!! not base64 !!!",
	})
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestEachPayloadGetsFreshKey(t *testing.T) {
	pe := localEncryptor()
	ctx := context.Background()

	first, err := pe.EncryptPayload(ctx, []byte("one"))
	require.NoError(t, err)
	second, err := pe.EncryptPayload(ctx, []byte("one"))
	require.NoError(t, err)

	assert.NotEqual(t, first.EncryptedDEK, second.EncryptedDEK)
	assert.NotEqual(t, first.KeyID, second.KeyID)
}
