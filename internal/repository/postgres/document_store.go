package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"youthexchange/internal/domain"
	"youthexchange/internal/repository/changefeed"
)

// NotifyChannel is the LISTEN/NOTIFY channel carrying the name of every changed collection.
const NotifyChannel = "docstore_changes"

// Schema creates the documents table used by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	data JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_data_gin ON documents USING GIN (data jsonb_path_ops);
`

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a domain.EntityStore keeping every collection in one JSONB table.
type Store struct {
	DB     *sql.DB
	hub    *changefeed.Hub
	logger *slog.Logger
	origin string
}

// NewStore returns a Store over db. Changes are published to hub.
func NewStore(db *sql.DB, hub *changefeed.Hub, logger *slog.Logger) *Store {
	return &Store{DB: db, hub: hub, logger: logger, origin: uuid.NewString()}
}

// Origin identifies this Store in change notifications. Listen skips notifications carrying it,
// since the Store has already published those changes to its hub.
func (s *Store) Origin() string {
	return s.origin
}

// notifyPayload encodes a change notification as "origin:collection".
func notifyPayload(origin, collection string) string {
	return origin + ":" + collection
}

// parsePayload splits a notification payload. A payload without an origin is a bare collection.
func parsePayload(payload string) (origin, collection string) {
	origin, collection, ok := strings.Cut(payload, ":")
	if !ok {
		return "", payload
	}
	return origin, collection
}

var _ domain.EntityStore = (*Store)(nil)

// Migrate creates the documents table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, Schema); err != nil {
		return unavailable(err)
	}
	return nil
}

func unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}

func checkRef(ref domain.Ref) error {
	if ref.Collection == "" || ref.ID == "" {
		return domain.Invalid("ref", "collection and id are required, got %q", ref.String())
	}
	return nil
}

// Get reads a document outside of any transaction.
func (s *Store) Get(ctx context.Context, ref domain.Ref) (*domain.Document, error) {
	a := &accessor{q: s.DB}
	return a.Get(ctx, ref)
}

func (s *Store) Create(ctx context.Context, ref domain.Ref, data map[string]any) error {
	return s.RunTransaction(ctx, func(tx domain.DocumentAccessor) error {
		return tx.Create(ctx, ref, data)
	})
}

func (s *Store) Put(ctx context.Context, ref domain.Ref, data map[string]any) error {
	return s.RunTransaction(ctx, func(tx domain.DocumentAccessor) error {
		return tx.Put(ctx, ref, data)
	})
}

func (s *Store) Merge(ctx context.Context, ref domain.Ref, data map[string]any) error {
	return s.RunTransaction(ctx, func(tx domain.DocumentAccessor) error {
		return tx.Merge(ctx, ref, data)
	})
}

func (s *Store) Delete(ctx context.Context, ref domain.Ref) error {
	return s.RunTransaction(ctx, func(tx domain.DocumentAccessor) error {
		return tx.Delete(ctx, ref)
	})
}

// RunTransaction runs fn inside a database transaction. Documents read through tx are locked
// with SELECT ... FOR UPDATE until commit. Changed collections are announced with pg_notify,
// which Postgres delivers only when the transaction commits.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx domain.DocumentAccessor) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	a := &accessor{q: tx, forUpdate: true, touched: make(map[string]struct{})}
	if err := fn(a); err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, c := range a.touchedCollections() {
		if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, notifyPayload(s.origin, c)); err != nil {
			_ = tx.Rollback()
			return unavailable(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable(err)
	}
	if s.hub != nil {
		for _, c := range a.touchedCollections() {
			s.hub.Publish(c)
		}
	}
	return nil
}

// timestampPattern matches RFC 3339 date-times. Matching values are ordered as timestamptz;
// RFC 3339 Nano trims trailing zeros, so their text form does not sort chronologically.
const timestampPattern = `'^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})$'`

// Query returns the documents matching q. Filters use JSONB containment. Ordering compares
// RFC 3339 timestamps chronologically and any other value by its text form.
func (s *Store) Query(ctx context.Context, q domain.Query) ([]*domain.Document, error) {
	if q.Collection == "" {
		return nil, domain.Invalid("collection", "is required")
	}
	var sb strings.Builder
	args := []any{q.Collection}
	sb.WriteString(`SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1`)

	if len(q.Where) > 0 {
		contains := make(map[string]any, len(q.Where))
		for _, f := range q.Where {
			contains[f.Field] = f.Value
		}
		raw, err := json.Marshal(contains)
		if err != nil {
			return nil, fmt.Errorf("encode filter: %w", err)
		}
		args = append(args, string(raw))
		sb.WriteString(` AND data @> $` + strconv.Itoa(len(args)) + `::jsonb`)
	}

	if q.OrderBy != "" {
		args = append(args, q.OrderBy)
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		field := `data->>$` + strconv.Itoa(len(args))
		sb.WriteString(` ORDER BY CASE WHEN ` + field + ` ~ ` + timestampPattern + ` THEN (` + field + `)::timestamptz END ` + dir + ` NULLS FIRST, ` +
			field + ` ` + dir + ` NULLS FIRST, id ASC`)
	} else {
		sb.WriteString(` ORDER BY id ASC`)
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		sb.WriteString(` LIMIT $` + strconv.Itoa(len(args)))
	}

	rows, err := s.DB.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	docs := []*domain.Document{}
	for rows.Next() {
		var (
			id  string
			raw []byte
			doc = &domain.Document{}
		)
		if err := rows.Scan(&id, &raw, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, unavailable(err)
		}
		doc.Ref = domain.NewRef(q.Collection, id)
		if err := json.Unmarshal(raw, &doc.Data); err != nil {
			return nil, fmt.Errorf("decode %s: %w", doc.Ref, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return docs, nil
}

// Subscribe calls fn with the result of q now and after every change to q.Collection.
func (s *Store) Subscribe(q domain.Query, fn func([]*domain.Document)) (domain.Subscription, error) {
	if s.hub == nil {
		return nil, fmt.Errorf("subscribe: store has no change feed")
	}
	if q.Collection == "" {
		return nil, domain.Invalid("collection", "is required")
	}
	return s.hub.Subscribe(q.Collection, func(ctx context.Context, sub *changefeed.Subscription) error {
		docs, err := s.Query(ctx, q)
		if err != nil {
			return err
		}
		if !sub.Stopped() {
			fn(docs)
		}
		return nil
	}), nil
}

// SubscribeDoc calls fn with the document at ref (nil when absent) now and after every change.
func (s *Store) SubscribeDoc(ref domain.Ref, fn func(*domain.Document)) (domain.Subscription, error) {
	if s.hub == nil {
		return nil, fmt.Errorf("subscribe: store has no change feed")
	}
	if err := checkRef(ref); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(ref.Collection, func(ctx context.Context, sub *changefeed.Subscription) error {
		doc, err := s.Get(ctx, ref)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if !sub.Stopped() {
			fn(doc)
		}
		return nil
	}), nil
}

type accessor struct {
	q         querier
	forUpdate bool
	now       *time.Time
	touched   map[string]struct{}
	order     []string
}

func (a *accessor) touch(collection string) {
	if a.touched == nil {
		return
	}
	if _, ok := a.touched[collection]; !ok {
		a.touched[collection] = struct{}{}
		a.order = append(a.order, collection)
	}
}

func (a *accessor) touchedCollections() []string {
	return a.order
}

// prepare resolves server timestamps against the database clock.
func (a *accessor) prepare(ctx context.Context, data map[string]any) (string, error) {
	var now time.Time
	if domain.HasServerTimestamp(data) {
		if a.now == nil {
			var t time.Time
			if err := a.q.QueryRowContext(ctx, `SELECT now()`).Scan(&t); err != nil {
				return "", unavailable(err)
			}
			a.now = &t
		}
		now = *a.now
	}
	prepared, err := domain.PrepareData(data, now)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(prepared)
	if err != nil {
		return "", fmt.Errorf("encode data: %w", err)
	}
	return string(raw), nil
}

func (a *accessor) Get(ctx context.Context, ref domain.Ref) (*domain.Document, error) {
	if err := checkRef(ref); err != nil {
		return nil, err
	}
	query := `SELECT data, created_at, updated_at FROM documents WHERE collection = $1 AND id = $2`
	if a.forUpdate {
		query += ` FOR UPDATE`
	}
	doc := &domain.Document{Ref: ref}
	var raw []byte
	err := a.q.QueryRowContext(ctx, query, ref.Collection, ref.ID).Scan(&raw, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, unavailable(err)
	}
	if err := json.Unmarshal(raw, &doc.Data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ref, err)
	}
	return doc, nil
}

func (a *accessor) Create(ctx context.Context, ref domain.Ref, data map[string]any) error {
	if err := checkRef(ref); err != nil {
		return err
	}
	raw, err := a.prepare(ctx, data)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, now(), now())
		ON CONFLICT (collection, id) DO NOTHING
	`
	res, err := a.q.ExecContext(ctx, query, ref.Collection, ref.ID, raw)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return domain.ErrAlreadyExists
	}
	a.touch(ref.Collection)
	return nil
}

func (a *accessor) Put(ctx context.Context, ref domain.Ref, data map[string]any) error {
	if err := checkRef(ref); err != nil {
		return err
	}
	raw, err := a.prepare(ctx, data)
	if err != nil {
		return err
	}
	return a.upsert(ctx, ref, raw)
}

func (a *accessor) upsert(ctx context.Context, ref domain.Ref, raw string) error {
	query := `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, now(), now())
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`
	if _, err := a.q.ExecContext(ctx, query, ref.Collection, ref.ID, raw); err != nil {
		return unavailable(err)
	}
	a.touch(ref.Collection)
	return nil
}

// Merge reads the current document under lock and writes back the deep merge.
func (a *accessor) Merge(ctx context.Context, ref domain.Ref, data map[string]any) error {
	if err := checkRef(ref); err != nil {
		return err
	}
	raw, err := a.prepare(ctx, data)
	if err != nil {
		return err
	}
	var patch map[string]any
	if err := json.Unmarshal([]byte(raw), &patch); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}

	current, err := a.Get(ctx, ref)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return a.upsert(ctx, ref, raw)
	case err != nil:
		return err
	}
	merged, err := json.Marshal(domain.MergeData(current.Data, patch))
	if err != nil {
		return fmt.Errorf("encode data: %w", err)
	}
	return a.upsert(ctx, ref, string(merged))
}

func (a *accessor) Delete(ctx context.Context, ref domain.Ref) error {
	if err := checkRef(ref); err != nil {
		return err
	}
	if _, err := a.q.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, ref.Collection, ref.ID); err != nil {
		return unavailable(err)
	}
	a.touch(ref.Collection)
	return nil
}
