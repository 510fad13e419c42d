package email

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"youthexchange/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTemplateRenderer_Invite(t *testing.T) {
	r, err := NewTemplateRenderer()
	require.NoError(t, err)

	subject, html, text, err := r.Render("invite", &domain.InviteEmailData{
		Email:        "g@example.com",
		GuardianName: "Maria",
		EventTitle:   "Camp <2026>",
		Link:         "https://app.example.com/invite/tok",
		Note:         "Bring a sleeping bag",
	})
	require.NoError(t, err)
	assert.Equal(t, "Registration invite: Camp <2026>", subject)
	assert.Contains(t, html, "Camp &lt;2026&gt;")
	assert.Contains(t, html, `href="https://app.example.com/invite/tok"`)
	assert.Contains(t, text, "Hello Maria,")
	assert.Contains(t, text, "Bring a sleeping bag")
	assert.Contains(t, text, "https://app.example.com/invite/tok")
}

func TestTemplateRenderer_InviteWithoutEvent(t *testing.T) {
	r, err := NewTemplateRenderer()
	require.NoError(t, err)

	subject, _, text, err := r.Render("invite", &domain.InviteEmailData{Link: "https://x/invite/t"})
	require.NoError(t, err)
	assert.Equal(t, "You have been invited to register", subject)
	assert.Contains(t, text, "Hello,")
	assert.NotContains(t, text, "Note from the organisers")
}

func TestTemplateRenderer_UnknownTemplate(t *testing.T) {
	r, err := NewTemplateRenderer()
	require.NoError(t, err)
	_, _, _, err = r.Render("nope", nil)
	assert.Error(t, err)
}

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESMailer_Send(t *testing.T) {
	client := &fakeSES{}
	m := newSESMailer(client, "noreply@example.com", "Youth Exchange", discardLogger())

	err := m.Send(context.Background(), "g@example.com", "Subject", "<p>hi</p>", "hi")
	require.NoError(t, err)
	require.NotNil(t, client.input)
	assert.Equal(t, "Youth Exchange <noreply@example.com>", aws.ToString(client.input.Source))
	assert.Equal(t, []string{"g@example.com"}, client.input.Destination.ToAddresses)
	assert.Equal(t, "Subject", aws.ToString(client.input.Message.Subject.Data))
	assert.Equal(t, "<p>hi</p>", aws.ToString(client.input.Message.Body.Html.Data))
	assert.Equal(t, "hi", aws.ToString(client.input.Message.Body.Text.Data))
}

func TestSESMailer_SendError(t *testing.T) {
	client := &fakeSES{err: errors.New("throttled")}
	m := newSESMailer(client, "noreply@example.com", "", discardLogger())

	err := m.Send(context.Background(), "g@example.com", "s", "", "body")
	require.Error(t, err)
	assert.Equal(t, "noreply@example.com", aws.ToString(client.input.Source))
	assert.Nil(t, client.input.Message.Body.Html)
}

func TestNewMailer(t *testing.T) {
	m, err := NewMailer(MailerConfig{Provider: "noop"}, discardLogger())
	require.NoError(t, err)
	assert.NoError(t, m.Send(context.Background(), "a@example.com", "s", "", "t"))

	_, err = NewMailer(MailerConfig{Provider: "ses"}, discardLogger())
	assert.Error(t, err)

	m, err = NewMailer(MailerConfig{Provider: "ses", FromAddress: "noreply@example.com", SES: SESConfig{Region: "us-east-1"}}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &sesMailer{}, m)
}
