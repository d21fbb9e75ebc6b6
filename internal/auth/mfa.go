package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

const BackupCodeCount = 10

var ErrInvalidMFACode = errors.New("invalid mfa code")

// MFA handles TOTP provisioning and backup codes. Backup codes are stored
// bcrypt-hashed; consuming one removes its hash from the stored set so it
// can never be replayed.
type MFA struct {
	Issuer string
}

// ProvisionTOTP generates a new TOTP secret for the account and returns the
// secret plus the otpauth:// URL for QR enrollment.
func (m *MFA) ProvisionTOTP(accountEmail string) (secret string, otpauthURL string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.Issuer,
		AccountName: accountEmail,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate totp key: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

func (m *MFA) VerifyTOTP(secret, code string) bool {
	return totp.Validate(code, secret)
}

// GenerateBackupCodes returns the plain codes (shown to the user exactly
// once) and their bcrypt hashes for storage.
func (m *MFA) GenerateBackupCodes() (codes []string, hashes []string, err error) {
	codes = make([]string, 0, BackupCodeCount)
	hashes = make([]string, 0, BackupCodeCount)
	for i := 0; i < BackupCodeCount; i++ {
		raw := make([]byte, 5)
		if _, err := rand.Read(raw); err != nil {
			return nil, nil, err
		}
		code := hex.EncodeToString(raw)
		// backup codes get a lower cost: they are high-entropy random values,
		// not user-chosen passwords
		hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, code)
		hashes = append(hashes, string(hash))
	}
	return codes, hashes, nil
}

// MatchBackupCode returns the stored hash the code matches, if any. The
// caller is responsible for retiring the hash so the code cannot replay.
func (m *MFA) MatchBackupCode(hashes []string, code string) (hash string, ok bool) {
	for _, h := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(h), []byte(code)) == nil {
			return h, true
		}
	}
	return "", false
}

// ConsumeBackupCode matches the code against the stored hashes. On a match
// it returns the remaining hashes with the matched one removed.
func (m *MFA) ConsumeBackupCode(hashes []string, code string) (remaining []string, ok bool) {
	matched, ok := m.MatchBackupCode(hashes, code)
	if !ok {
		return hashes, false
	}
	remaining = make([]string, 0, len(hashes)-1)
	for _, h := range hashes {
		if h != matched {
			remaining = append(remaining, h)
		}
	}
	return remaining, true
}
