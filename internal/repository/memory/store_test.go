package memory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"youthexchange/internal/domain"
	"youthexchange/internal/repository/changefeed"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	hub := changefeed.NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), time.Second)
	t.Cleanup(hub.Close)
	return NewStore(hub, WithClock(func() time.Time { return fixedNow }))
}

func TestStore_CreateGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ref := domain.NewRef(domain.CollectionEvents, "e1")

	require.NoError(t, s.Create(ctx, ref, map[string]any{"title": "Camp", "updatedAt": domain.ServerTimestamp}))

	doc, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "Camp", doc.Data["title"])
	assert.Equal(t, fixedNow.Format(time.RFC3339), doc.Data["updatedAt"])
	assert.Equal(t, fixedNow, doc.CreatedAt)

	err = s.Create(ctx, ref, map[string]any{"title": "Other"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = s.Get(ctx, domain.NewRef(domain.CollectionEvents, "missing"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.Get(ctx, domain.Ref{ID: "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ref := domain.NewRef(domain.CollectionRegistrants, "r1")
	require.NoError(t, s.Put(ctx, ref, map[string]any{"basic": map[string]any{"firstName": "Ana"}}))

	doc, err := s.Get(ctx, ref)
	require.NoError(t, err)
	doc.Data["basic"].(map[string]any)["firstName"] = "changed"

	again, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "Ana", again.Data["basic"].(map[string]any)["firstName"])
}

func TestStore_MergeIsDeep(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ref := domain.NewRef(domain.CollectionRegistrants, "r1")

	require.NoError(t, s.Merge(ctx, ref, map[string]any{
		"basic": map[string]any{"firstName": "Ana", "email": "ana@example.com"},
	}))
	require.NoError(t, s.Merge(ctx, ref, map[string]any{
		"basic":         map[string]any{"firstName": "Ana Maria"},
		"questionnaire": map[string]any{"diet": "vegetarian"},
	}))

	doc, err := s.Get(ctx, ref)
	require.NoError(t, err)
	basic := doc.Data["basic"].(map[string]any)
	assert.Equal(t, "Ana Maria", basic["firstName"])
	assert.Equal(t, "ana@example.com", basic["email"])
	assert.Equal(t, map[string]any{"diet": "vegetarian"}, doc.Data["questionnaire"])
}

func TestStore_PutKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	now := fixedNow
	s := NewStore(nil, WithClock(func() time.Time { return now }))
	ref := domain.NewRef(domain.CollectionEvents, "e1")

	require.NoError(t, s.Put(ctx, ref, map[string]any{"title": "A"}))
	now = now.Add(time.Hour)
	require.NoError(t, s.Put(ctx, ref, map[string]any{"title": "B"}))

	doc, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, fixedNow, doc.CreatedAt)
	assert.Equal(t, fixedNow.Add(time.Hour), doc.UpdatedAt)
	assert.Equal(t, map[string]any{"title": "B"}, doc.Data)
}

func TestStore_DeleteMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	assert.NoError(t, s.Delete(ctx, domain.NewRef(domain.CollectionEvents, "nope")))
}

func TestStore_Query(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	event := domain.EventRef("e1")
	seed := []struct {
		id      string
		status  domain.RegistrationStatus
		created string
		event   domain.Ref
	}{
		{"a", domain.RegistrationApplied, "2026-01-03T10:00:00Z", event},
		{"b", domain.RegistrationApproved, "2026-01-01T10:00:00Z", event},
		{"c", domain.RegistrationApplied, "2026-01-02T10:00:00Z", event},
		{"d", domain.RegistrationApplied, "2026-01-04T10:00:00Z", domain.EventRef("e2")},
	}
	for _, r := range seed {
		require.NoError(t, s.Put(ctx, domain.NewRef(domain.CollectionRegistrations, r.id), map[string]any{
			"eventRef":  r.event,
			"status":    r.status,
			"createdAt": r.created,
		}))
	}

	tests := []struct {
		name string
		q    domain.Query
		want []string
	}{
		{
			name: "filter by typed values",
			q: domain.Query{
				Collection: domain.CollectionRegistrations,
				Where: []domain.Filter{
					{Field: "eventRef", Value: event},
					{Field: "status", Value: domain.RegistrationApplied},
				},
				OrderBy: "createdAt",
			},
			want: []string{"c", "a"},
		},
		{
			name: "order descending with limit",
			q:    domain.Query{Collection: domain.CollectionRegistrations, OrderBy: "createdAt", Desc: true, Limit: 2},
			want: []string{"d", "a"},
		},
		{
			name: "no order falls back to id",
			q:    domain.Query{Collection: domain.CollectionRegistrations},
			want: []string{"a", "b", "c", "d"},
		},
		{
			name: "empty collection",
			q:    domain.Query{Collection: domain.CollectionInvites},
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.Query(ctx, tt.q)
			require.NoError(t, err)
			got := make([]string, 0, len(docs))
			for _, d := range docs {
				got = append(got, d.Ref.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStore_TransactionRollback(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ref := domain.NewRef(domain.CollectionInvites, "tok")
	boom := errors.New("boom")

	err := s.RunTransaction(ctx, func(tx domain.DocumentAccessor) error {
		require.NoError(t, tx.Put(ctx, ref, map[string]any{"status": "pending"}))
		doc, err := tx.Get(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, "pending", doc.Data["status"])
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Get(ctx, ref)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_TransactionSeesOwnDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ref := domain.NewRef(domain.CollectionInvites, "tok")
	require.NoError(t, s.Put(ctx, ref, map[string]any{"status": "pending"}))

	err := s.RunTransaction(ctx, func(tx domain.DocumentAccessor) error {
		require.NoError(t, tx.Delete(ctx, ref))
		_, err := tx.Get(ctx, ref)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		return tx.Create(ctx, ref, map[string]any{"status": "registered"})
	})
	require.NoError(t, err)

	doc, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "registered", doc.Data["status"])
}

func TestStore_TransactionsSerialise(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ref := domain.NewRef(domain.CollectionEvents, "counter")
	require.NoError(t, s.Put(ctx, ref, map[string]any{"n": float64(0)}))

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.RunTransaction(ctx, func(tx domain.DocumentAccessor) error {
				doc, err := tx.Get(ctx, ref)
				if err != nil {
					return err
				}
				return tx.Put(ctx, ref, map[string]any{"n": doc.Data["n"].(float64) + 1})
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	doc, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, float64(20), doc.Data["n"])
}

func TestStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var mu sync.Mutex
	var sizes []int
	sub, err := s.Subscribe(domain.Query{Collection: domain.CollectionInvites}, func(docs []*domain.Document) {
		mu.Lock()
		sizes = append(sizes, len(docs))
		mu.Unlock()
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sizes) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Put(ctx, domain.NewRef(domain.CollectionInvites, "t1"), map[string]any{"status": "pending"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sizes) > 0 && sizes[len(sizes)-1] == 1
	}, time.Second, 5*time.Millisecond)

	sub.Unsubscribe()
	mu.Lock()
	seen := len(sizes)
	mu.Unlock()

	require.NoError(t, s.Put(ctx, domain.NewRef(domain.CollectionInvites, "t2"), map[string]any{"status": "pending"}))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, seen, len(sizes))
}

func TestStore_SubscribeDoc(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ref := domain.NewRef(domain.CollectionInvites, "t1")

	docs := make(chan *domain.Document, 8)
	sub, err := s.SubscribeDoc(ref, func(d *domain.Document) { docs <- d })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	select {
	case d := <-docs:
		assert.Nil(t, d)
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	require.NoError(t, s.Put(ctx, ref, map[string]any{"status": "registered"}))
	select {
	case d := <-docs:
		require.NotNil(t, d)
		assert.Equal(t, "registered", d.Data["status"])
	case <-time.After(time.Second):
		t.Fatal("no snapshot after write")
	}
}

func TestStore_SubscribeWithoutHub(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Subscribe(domain.Query{Collection: domain.CollectionEvents}, func([]*domain.Document) {})
	assert.Error(t, err)
}
