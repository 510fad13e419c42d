package domain

import "context"

// Mailer defines the contract for sending emails (infrastructure port).
type Mailer interface {
	Send(ctx context.Context, to, subject, html, text string) error
}

// EmailTemplateRenderer renders email content from a named template with the given data.
type EmailTemplateRenderer interface {
	Render(templateName string, data any) (subject, htmlBody, textBody string, err error)
}

// InviteEmailData holds data for the guardian invite email.
type InviteEmailData struct {
	Email        string
	GuardianName string
	EventTitle   string
	Link         string
	Note         string
}

// EmailService defines the contract for sending domain-level emails.
type EmailService interface {
	SendInvite(ctx context.Context, data *InviteEmailData) error
}
