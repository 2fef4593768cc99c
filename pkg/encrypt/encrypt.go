package encrypt

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt.DefaultCost = 10
const bcryptCost = bcrypt.DefaultCost

// 定義錯誤信息
var (
	ErrWeakPasscode     = errors.New("passcode must be 4 to 72 characters")
	ErrPasscodeMismatch = errors.New("passcode does not match")
)

// HashPasscode bcrypt a passcode guarding an invite link
func HashPasscode(passcode string) (string, error) {
	if len(passcode) < 4 || len(passcode) > 72 {
		return "", ErrWeakPasscode
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(passcode), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash passcode: %w", err)
	}
	return string(hashed), nil
}

// CheckPasscode 驗證 passcode 是否匹配
func CheckPasscode(hashed, passcode string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(passcode)); err != nil {
		return ErrPasscodeMismatch
	}
	return nil
}

// OpaqueToken n random bytes as URL-safe base64 without padding
func OpaqueToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ValidOpaqueToken check the token decodes to n bytes
func ValidOpaqueToken(token string, n int) bool {
	b, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil && len(b) == n
}
