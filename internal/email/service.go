// Package email delivers transactional mail over SMTP or the Resend API,
// selected by config. When email is disabled the service logs and returns
// nil so callers never branch on delivery.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net/mail"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"

	"github.com/loopteam/server/internal/config"
)

type Service struct {
	config       config.EmailConfig
	resendClient *resend.Client
	logger       zerolog.Logger
}

func NewService(cfg config.EmailConfig, logger zerolog.Logger) (*Service, error) {
	if cfg.Enabled {
		if err := validateAddress(cfg.From); err != nil {
			return nil, fmt.Errorf("invalid sender address: %w", err)
		}
	}
	s := &Service{
		config: cfg,
		logger: logger.With().Str("component", "email").Logger(),
	}
	if cfg.Enabled && cfg.Provider == "resend" {
		if cfg.ResendAPIKey == "" {
			return nil, fmt.Errorf("resend provider requires RESEND_API_KEY")
		}
		s.resendClient = resend.NewClient(cfg.ResendAPIKey)
	}
	return s, nil
}

type invitationData struct {
	WorkspaceName string
	InvitedBy     string
	InviteLink    string
	CurrentYear   int
}

var invitationTemplate = template.Must(template.New("invitation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; max-width: 560px; margin: 0 auto;">
  <h2>You have been invited to {{.WorkspaceName}}</h2>
  <p>{{.InvitedBy}} invited you to join the <strong>{{.WorkspaceName}}</strong> workspace on Loop.</p>
  <p><a href="{{.InviteLink}}" style="display: inline-block; padding: 10px 20px; background: #4f46e5; color: #fff; text-decoration: none; border-radius: 6px;">Accept invitation</a></p>
  <p style="color: #666; font-size: 13px;">If you were not expecting this invitation you can ignore this email.</p>
  <p style="color: #999; font-size: 12px;">&copy; {{.CurrentYear}} Loop</p>
</body>
</html>`))

// SendWorkspaceInvitation satisfies the workspaces inviter contract.
func (s *Service) SendWorkspaceInvitation(ctx context.Context, to, workspaceName, inviteLink, invitedBy string) error {
	if err := validateAddress(to); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	if err := validateLink(inviteLink); err != nil {
		return fmt.Errorf("invalid invite link: %w", err)
	}

	if !s.config.Enabled {
		s.logger.Info().
			Str("to", to).
			Str("workspace", workspaceName).
			Str("link", inviteLink).
			Msg("email disabled, skipping invitation")
		return nil
	}

	var buf bytes.Buffer
	err := invitationTemplate.Execute(&buf, invitationData{
		WorkspaceName: workspaceName,
		InvitedBy:     invitedBy,
		InviteLink:    inviteLink,
		CurrentYear:   time.Now().Year(),
	})
	if err != nil {
		return fmt.Errorf("render invitation: %w", err)
	}

	subject := fmt.Sprintf("You have been invited to %s on Loop", workspaceName)
	if err := s.send(ctx, to, subject, buf.String()); err != nil {
		return err
	}

	s.logger.Info().Str("to", to).Str("workspace", workspaceName).Msg("invitation email sent")
	return nil
}

func (s *Service) send(ctx context.Context, to, subject, htmlBody string) error {
	if s.config.Provider == "resend" {
		return s.sendViaResend(ctx, to, subject, htmlBody)
	}
	return s.sendViaSMTP(to, subject, htmlBody)
}

func (s *Service) sendViaResend(ctx context.Context, to, subject, htmlBody string) error {
	sent, err := s.resendClient.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.config.From,
		To:      []string{to},
		Subject: subject,
		Html:    htmlBody,
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	s.logger.Debug().Str("email_id", sent.Id).Str("to", to).Msg("sent via resend")
	return nil
}

func (s *Service) sendViaSMTP(to, subject, htmlBody string) error {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", s.config.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	addr := fmt.Sprintf("%s:%d", s.config.SMTPHost, s.config.SMTPPort)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer func() { _ = client.Close() }()

	tlsConfig := &tls.Config{
		ServerName: s.config.SMTPHost,
		MinVersion: tls.VersionTLS12,
	}
	if err := client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("smtp starttls: %w", err)
	}
	auth := smtp.PlainAuth("", s.config.SMTPUsername, s.config.SMTPPassword, s.config.SMTPHost)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(s.config.From); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg.Bytes()); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return client.Quit()
}

// validateAddress rejects malformed addresses and header injection via
// embedded newlines.
func validateAddress(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return err
	}
	if strings.ContainsAny(addr.Address, "\r\n") {
		return fmt.Errorf("address contains newline characters")
	}
	return nil
}

// validateLink rejects javascript:, data: and other non-HTTP schemes.
func validateLink(link string) error {
	u, err := url.Parse(link)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q is not allowed", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("link must have a host")
	}
	return nil
}
