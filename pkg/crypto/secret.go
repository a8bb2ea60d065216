package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

// SealedPrefix помечает зашифрованные значения в конфигурации (.env, TOML)
const SealedPrefix = "enc:"

// KeySize AES-256
const KeySize = 32

// Ошибки шифрования
var (
	ErrInvalidKeyLength   = errors.New("encryption key must be exactly 32 bytes for AES-256")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrDecryptionFailed   = errors.New("decryption failed: authentication error")
	ErrMissingKey         = errors.New("sealed value found but encryption key is empty")
)

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal шифрует секрет площадки (API key, secret) в AES-256-GCM.
// Результат: "enc:" + base64(nonce || ciphertext || tag).
func Seal(plaintext, key string) (string, error) {
	gcm, err := newGCM([]byte(key))
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	// GCM добавляет аутентификационный тег автоматически
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// IsSealed значение зашифровано Seal
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// Open расшифровывает значение Seal.
// Значения без префикса возвращаются как есть: ключи можно хранить открыто.
func Open(value, key string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if key == "" {
		return "", ErrMissingKey
	}

	gcm, err := newGCM([]byte(key))
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", ErrCiphertextTooShort
	}
	nonce, data := raw[:nonceSize], raw[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, data, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// GenerateKey печатаемый случайный ключ для ENCRYPTION_KEY.
// 24 случайных байта в base64 дают ровно 32 символа.
func GenerateKey() (string, error) {
	raw := make([]byte, 24)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
