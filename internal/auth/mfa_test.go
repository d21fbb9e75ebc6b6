package auth

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestProvisionTOTP(t *testing.T) {
	mfa := &MFA{Issuer: "Loop"}

	secret, url, err := mfa.ProvisionTOTP("ada@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, secret)
	require.Contains(t, url, "otpauth://totp/")
	require.Contains(t, url, "Loop")

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	require.True(t, mfa.VerifyTOTP(secret, code))
	require.False(t, mfa.VerifyTOTP(secret, "000000"))
}

func TestBackupCodesConsumedAtMostOnce(t *testing.T) {
	mfa := &MFA{Issuer: "Loop"}

	codes, hashes, err := mfa.GenerateBackupCodes()
	require.NoError(t, err)
	require.Len(t, codes, BackupCodeCount)
	require.Len(t, hashes, BackupCodeCount)

	remaining, ok := mfa.ConsumeBackupCode(hashes, codes[3])
	require.True(t, ok)
	require.Len(t, remaining, BackupCodeCount-1)

	// the same code must not match against the reduced set
	again, ok := mfa.ConsumeBackupCode(remaining, codes[3])
	require.False(t, ok)
	require.Len(t, again, BackupCodeCount-1)
}

func TestConsumeBackupCodeUnknownCode(t *testing.T) {
	mfa := &MFA{Issuer: "Loop"}

	_, hashes, err := mfa.GenerateBackupCodes()
	require.NoError(t, err)

	remaining, ok := mfa.ConsumeBackupCode(hashes, "not-a-code")
	require.False(t, ok)
	require.Len(t, remaining, BackupCodeCount)
}
