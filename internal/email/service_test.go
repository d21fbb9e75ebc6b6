package email

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/loopteam/server/internal/config"
)

func TestDisabledServiceSkipsDelivery(t *testing.T) {
	svc, err := NewService(config.EmailConfig{Enabled: false}, zerolog.Nop())
	require.NoError(t, err)

	err = svc.SendWorkspaceInvitation(context.Background(), "user@example.com", "Acme", "https://loop.example.com/invitations/accept?token=abc", "admin@example.com")
	require.NoError(t, err)
}

func TestRejectsInvalidRecipient(t *testing.T) {
	svc, err := NewService(config.EmailConfig{Enabled: false}, zerolog.Nop())
	require.NoError(t, err)

	err = svc.SendWorkspaceInvitation(context.Background(), "not-an-email", "Acme", "https://loop.example.com/accept", "admin@example.com")
	require.Error(t, err)
}

func TestRejectsUnsafeInviteLink(t *testing.T) {
	svc, err := NewService(config.EmailConfig{Enabled: false}, zerolog.Nop())
	require.NoError(t, err)

	for _, link := range []string{
		"javascript:alert(1)",
		"data:text/html,<script>alert(1)</script>",
		"https://",
	} {
		err = svc.SendWorkspaceInvitation(context.Background(), "user@example.com", "Acme", link, "admin@example.com")
		require.Error(t, err, link)
	}
}

func TestEnabledServiceRequiresValidSender(t *testing.T) {
	_, err := NewService(config.EmailConfig{Enabled: true, From: "bogus"}, zerolog.Nop())
	require.Error(t, err)

	_, err = NewService(config.EmailConfig{Enabled: true, From: "noreply@loop.example.com", Provider: "resend"}, zerolog.Nop())
	require.Error(t, err)
}
