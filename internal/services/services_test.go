package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"youthexchange/internal/adapters/auth"
	"youthexchange/internal/domain"
	"youthexchange/internal/metrics"
	"youthexchange/internal/repository/changefeed"
	"youthexchange/internal/repository/docstore"
	"youthexchange/internal/repository/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEmailService records invite mails.
type fakeEmailService struct {
	mu   sync.Mutex
	sent []*domain.InviteEmailData
	err  error
}

func (f *fakeEmailService) SendInvite(ctx context.Context, data *domain.InviteEmailData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, data)
	return nil
}

type testEnv struct {
	store         *memory.Store
	repos         domain.Repositories
	metrics       *metrics.Metrics
	email         *fakeEmailService
	identity      domain.IdentityProvider
	events        domain.EventService
	registrants   domain.RegistrantService
	registrations domain.RegistrationService
	invitations   domain.InvitationService
}

func newTestEnv(t *testing.T, policy domain.TransitionPolicy) *testEnv {
	t.Helper()
	hub := changefeed.NewHub(discardLogger(), time.Second)
	t.Cleanup(hub.Close)
	store := memory.NewStore(hub)
	repos := docstore.NewRepositories(store)
	tx := docstore.NewTransactor(store)
	m := metrics.New(prometheus.NewRegistry())
	logger := discardLogger()
	signer := auth.NewJWTSigner("test-secret")
	identity := NewIdentityService(repos.Principals, auth.NewBcryptHasher(bcrypt.MinCost), signer, signer,
		auth.NewMemoryRevocationList(), time.Hour, logger)
	email := &fakeEmailService{}

	return &testEnv{
		store:         store,
		repos:         repos,
		metrics:       m,
		email:         email,
		identity:      identity,
		events:        NewEventService(repos.Events, time.Second),
		registrants:   NewRegistrantService(repos.Registrants, time.Second),
		registrations: NewRegistrationService(repos, tx, policy, m, logger, time.Second),
		invitations: NewInvitationService(repos, tx, identity, email, m, logger,
			InvitationConfig{PublicBaseURL: "https://app.example.com/"}, time.Second),
	}
}

func (e *testEnv) createEvent(t *testing.T, title string) *domain.Event {
	t.Helper()
	ev := &domain.Event{Title: title}
	require.NoError(t, e.events.CreateEvent(context.Background(), ev))
	return ev
}

func (e *testEnv) issue(t *testing.T, eventRef domain.Ref) *domain.Invite {
	t.Helper()
	inv, err := e.invitations.Issue(context.Background(), domain.IssueInviteInput{
		GuardianName:  "Maria",
		GuardianEmail: "maria@example.com",
		EventRef:      eventRef,
	})
	require.NoError(t, err)
	return inv
}

var errBoom = errors.New("boom")
