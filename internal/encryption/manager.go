package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"monitor-engine/internal/config"
	"monitor-engine/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// EncryptedPayload is the envelope stored in place of raw event data.
type EncryptedPayload struct {
	EncryptedValue string    `json:"encrypted_value"`
	EncryptedDEK   string    `json:"encrypted_dek"`
	KeyID          string    `json:"key_id"`
	Version        string    `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
}

// PayloadEncryptor envelope-encrypts security event payloads. Event data can
// carry request bodies and user identifiers, so it never hits disk in
// plaintext.
type PayloadEncryptor struct {
	kmsClient *kms.Client
	config    *config.Config
	keyCache  sync.Map // cache decrypted DEKs
}

type DataKey struct {
	Plaintext  []byte
	Ciphertext []byte
	KeyID      string
}

func NewPayloadEncryptor(cfg *config.Config, kmsClient *kms.Client) *PayloadEncryptor {
	return &PayloadEncryptor{
		kmsClient: kmsClient,
		config:    cfg,
	}
}

// GenerateDataKey generates a new data encryption key using KMS
func (pe *PayloadEncryptor) GenerateDataKey(ctx context.Context) (*DataKey, error) {
	if !pe.config.KMS.Enabled {
		return pe.generateLocalKey(), nil
	}

	input := &kms.GenerateDataKeyInput{
		KeyId:   aws.String(pe.config.KMS.KeyID),
		KeySpec: types.DataKeySpecAes256,
	}

	result, err := pe.kmsClient.GenerateDataKey(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}

	return &DataKey{
		Plaintext:  result.Plaintext,
		Ciphertext: result.CiphertextBlob,
		KeyID:      pe.config.KMS.KeyID,
	}, nil
}

func (pe *PayloadEncryptor) generateLocalKey() *DataKey {
	key := make([]byte, 32) // AES-256
	if _, err := rand.Read(key); err != nil {
		util.Fatal("Failed to generate local encryption key", zap.Error(err))
	}

	// In development the "encrypted" DEK is the key itself; the base64
	// wrapping happens once, in the envelope.
	return &DataKey{
		Plaintext:  key,
		Ciphertext: key,
		KeyID:      uuid.New().String(),
	}
}

// EncryptPayload envelope-encrypts a serialized event payload.
func (pe *PayloadEncryptor) EncryptPayload(ctx context.Context, plaintext []byte) (*EncryptedPayload, error) {
	dataKey, err := pe.GenerateDataKey(ctx)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(dataKey.Plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)

	cacheKey := base64.StdEncoding.EncodeToString(dataKey.Ciphertext)
	pe.keyCache.Store(cacheKey, dataKey.Plaintext)

	return &EncryptedPayload{
		EncryptedValue: base64.StdEncoding.EncodeToString(ciphertext),
		EncryptedDEK:   cacheKey,
		KeyID:          dataKey.KeyID,
		Version:        "v1",
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// DecryptPayload reverses EncryptPayload.
func (pe *PayloadEncryptor) DecryptPayload(ctx context.Context, payload *EncryptedPayload) ([]byte, error) {
	// Check cache for decrypted DEK
	cacheKey := payload.EncryptedDEK
	if cached, ok := pe.keyCache.Load(cacheKey); ok {
		return pe.decryptWithKey(payload.EncryptedValue, cached.([]byte))
	}

	// Decrypt DEK first
	var plaintextDEK []byte
	if pe.config.KMS.Enabled {
		ciphertextBlob, err := base64.StdEncoding.DecodeString(payload.EncryptedDEK)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid DEK format", ErrDecryptionFailed)
		}

		input := &kms.DecryptInput{
			CiphertextBlob: ciphertextBlob,
		}

		result, err := pe.kmsClient.Decrypt(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decrypt DEK: %v", ErrDecryptionFailed, err)
		}

		plaintextDEK = result.Plaintext
	} else {
		// In development, just decode the "encrypted" key
		var err error
		plaintextDEK, err = base64.StdEncoding.DecodeString(payload.EncryptedDEK)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid local DEK", ErrDecryptionFailed)
		}
	}

	// Cache the decrypted DEK
	pe.keyCache.Store(cacheKey, plaintextDEK)

	return pe.decryptWithKey(payload.EncryptedValue, plaintextDEK)
}

func (pe *PayloadEncryptor) decryptWithKey(encryptedValue string, key []byte) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encryptedValue)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ciphertext format", ErrDecryptionFailed)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	return plaintext, nil
}

// ClearCache clears the DEK cache (useful for memory management)
func (pe *PayloadEncryptor) ClearCache() {
	pe.keyCache.Range(func(key, value interface{}) bool {
		pe.keyCache.Delete(key)
		return true
	})
}

// GetCacheSize returns the number of cached DEKs
func (pe *PayloadEncryptor) GetCacheSize() int {
	count := 0
	pe.keyCache.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}
