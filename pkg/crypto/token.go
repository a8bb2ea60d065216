package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Ошибки проверки токена
var (
	ErrEmptyToken    = errors.New("token cannot be empty")
	ErrTokenMismatch = errors.New("token does not match hash")
	ErrInvalidHash   = errors.New("invalid token hash format")
	ErrTokenTooLong  = errors.New("token exceeds maximum length of 72 bytes")
)

// DefaultCost стоимость bcrypt для API_TOKEN_HASH
const DefaultCost = 12

// MaxTokenLength ограничение bcrypt
const MaxTokenLength = 72

// HashToken bcrypt hash токена статус API
func HashToken(token string, cost int) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}
	if len(token) > MaxTokenLength {
		return "", ErrTokenTooLong
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyToken сравнивает токен с bcrypt hash
func VerifyToken(token, hash string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if hash == "" {
		return ErrInvalidHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrTokenMismatch
		}
		return ErrInvalidHash
	}
	return nil
}

// TokenVerifier проверка bearer токена с кешем последнего принятого.
//
// bcrypt на каждый запрос стоит сотни миллисекунд при cost 12, поэтому
// после первой успешной проверки хранится sha256 токена и дальнейшие
// запросы сравниваются с ним за constant time.
type TokenVerifier struct {
	hash string

	mu       sync.RWMutex
	accepted []byte // sha256 последнего принятого токена
}

// NewTokenVerifier пустой hash = проверка выключена
func NewTokenVerifier(hash string) *TokenVerifier {
	return &TokenVerifier{hash: hash}
}

// Enabled задан ли hash
func (v *TokenVerifier) Enabled() bool {
	return v.hash != ""
}

// Verify true если токен совпадает с hash
func (v *TokenVerifier) Verify(token string) bool {
	if !v.Enabled() {
		return true
	}
	if token == "" {
		return false
	}

	sum := sha256.Sum256([]byte(token))

	v.mu.RLock()
	cached := v.accepted
	v.mu.RUnlock()
	if cached != nil && subtle.ConstantTimeCompare(cached, sum[:]) == 1 {
		return true
	}

	if VerifyToken(token, v.hash) != nil {
		return false
	}

	v.mu.Lock()
	v.accepted = sum[:]
	v.mu.Unlock()
	return true
}
