package services

import (
	"context"
	"fmt"
	"log/slog"

	"youthexchange/internal/domain"
)

type emailService struct {
	mailer   domain.Mailer
	renderer domain.EmailTemplateRenderer
	logger   *slog.Logger
}

// NewEmailService returns an EmailService that uses the given Mailer and template renderer.
func NewEmailService(mailer domain.Mailer, renderer domain.EmailTemplateRenderer, logger *slog.Logger) domain.EmailService {
	return &emailService{mailer: mailer, renderer: renderer, logger: logger}
}

// SendInvite sends the guardian invite using the "invite" template.
func (s *emailService) SendInvite(ctx context.Context, data *domain.InviteEmailData) error {
	if data == nil {
		return fmt.Errorf("invite email data is nil")
	}
	if data.Email == "" {
		return domain.Invalid("guardianEmail", "is required to send an invite")
	}
	subject, htmlBody, textBody, err := s.renderer.Render("invite", data)
	if err != nil {
		return fmt.Errorf("render invite template: %w", err)
	}
	if err := s.mailer.Send(ctx, data.Email, subject, htmlBody, textBody); err != nil {
		return fmt.Errorf("send invite email: %w", err)
	}
	s.logger.Info("invite email sent", "to", data.Email)
	return nil
}
