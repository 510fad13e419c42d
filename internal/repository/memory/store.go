// Package memory implements domain.EntityStore in process memory. It backs tests and local
// development and follows the same semantics as the Postgres store.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"youthexchange/internal/domain"
	"youthexchange/internal/repository/changefeed"
)

type record struct {
	data      map[string]any
	createdAt time.Time
	updatedAt time.Time
}

// Store is an in-memory document store.
type Store struct {
	hub   *changefeed.Hub
	clock func() time.Time

	// writeMu serialises writers so a transaction's reads cannot go stale before it commits.
	writeMu sync.Mutex

	mu          sync.RWMutex
	collections map[string]map[string]*record
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the clock used to resolve domain.ServerTimestamp.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// NewStore returns an empty Store publishing changes to hub.
func NewStore(hub *changefeed.Hub, opts ...Option) *Store {
	s := &Store{
		hub:         hub,
		clock:       time.Now,
		collections: make(map[string]map[string]*record),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

var _ domain.EntityStore = (*Store)(nil)

func checkRef(ref domain.Ref) error {
	if ref.Collection == "" || ref.ID == "" {
		return domain.Invalid("ref", "collection and id are required, got %q", ref.String())
	}
	return nil
}

func (s *Store) lookup(ref domain.Ref) (*domain.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.collections[ref.Collection][ref.ID]
	if !ok {
		return nil, false
	}
	return toDocument(ref, rec), true
}

func toDocument(ref domain.Ref, rec *record) *domain.Document {
	return &domain.Document{
		Ref:       ref,
		Data:      copyData(rec.data),
		CreatedAt: rec.createdAt,
		UpdatedAt: rec.updatedAt,
	}
}

// Get returns the document at ref.
func (s *Store) Get(ctx context.Context, ref domain.Ref) (*domain.Document, error) {
	if err := checkRef(ref); err != nil {
		return nil, err
	}
	doc, ok := s.lookup(ref)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

// Create writes a new document.
func (s *Store) Create(ctx context.Context, ref domain.Ref, data map[string]any) error {
	return s.RunTransaction(ctx, func(tx domain.DocumentAccessor) error {
		return tx.Create(ctx, ref, data)
	})
}

// Put replaces the document at ref.
func (s *Store) Put(ctx context.Context, ref domain.Ref, data map[string]any) error {
	return s.RunTransaction(ctx, func(tx domain.DocumentAccessor) error {
		return tx.Put(ctx, ref, data)
	})
}

// Merge deep-merges data into the document at ref.
func (s *Store) Merge(ctx context.Context, ref domain.Ref, data map[string]any) error {
	return s.RunTransaction(ctx, func(tx domain.DocumentAccessor) error {
		return tx.Merge(ctx, ref, data)
	})
}

// Delete removes the document at ref.
func (s *Store) Delete(ctx context.Context, ref domain.Ref) error {
	return s.RunTransaction(ctx, func(tx domain.DocumentAccessor) error {
		return tx.Delete(ctx, ref)
	})
}

// RunTransaction runs fn with exclusive write access and commits its writes atomically.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx domain.DocumentAccessor) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	t := &txn{store: s, now: s.clock().UTC(), writes: make(map[domain.Ref]*pendingWrite)}
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.commit(t)
	return nil
}

func (s *Store) commit(t *txn) {
	touched := make(map[string]struct{})
	s.mu.Lock()
	for _, ref := range t.order {
		w := t.writes[ref]
		touched[ref.Collection] = struct{}{}
		if w.deleted {
			delete(s.collections[ref.Collection], ref.ID)
			continue
		}
		coll, ok := s.collections[ref.Collection]
		if !ok {
			coll = make(map[string]*record)
			s.collections[ref.Collection] = coll
		}
		coll[ref.ID] = w.rec
	}
	s.mu.Unlock()

	if s.hub == nil {
		return
	}
	for c := range touched {
		s.hub.Publish(c)
	}
}

// Query returns the documents matching q.
func (s *Store) Query(ctx context.Context, q domain.Query) ([]*domain.Document, error) {
	if q.Collection == "" {
		return nil, domain.Invalid("collection", "is required")
	}
	filters := make([]domain.Filter, len(q.Where))
	for i, f := range q.Where {
		v, err := normalizeValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.Field, err)
		}
		filters[i] = domain.Filter{Field: f.Field, Value: v}
	}

	s.mu.RLock()
	var docs []*domain.Document
	for id, rec := range s.collections[q.Collection] {
		if !matches(rec.data, filters) {
			continue
		}
		docs = append(docs, toDocument(domain.NewRef(q.Collection, id), rec))
	}
	s.mu.RUnlock()

	sort.SliceStable(docs, func(i, j int) bool {
		if q.OrderBy != "" {
			c := compareValues(docs[i].Data[q.OrderBy], docs[j].Data[q.OrderBy])
			if c != 0 {
				if q.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return docs[i].Ref.ID < docs[j].Ref.ID
	})
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	if docs == nil {
		docs = []*domain.Document{}
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
		doc, _ := s.lookup(ref)
		if !sub.Stopped() {
			fn(doc)
		}
		return nil
	}), nil
}

type pendingWrite struct {
	rec     *record
	deleted bool
}

// txn stages writes until commit. Reads see staged writes first.
type txn struct {
	store  *Store
	now    time.Time
	writes map[domain.Ref]*pendingWrite
	order  []domain.Ref
}

func (t *txn) current(ref domain.Ref) (*record, bool) {
	if w, ok := t.writes[ref]; ok {
		if w.deleted {
			return nil, false
		}
		return w.rec, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	rec, ok := t.store.collections[ref.Collection][ref.ID]
	return rec, ok
}

func (t *txn) stage(ref domain.Ref, w *pendingWrite) {
	if _, seen := t.writes[ref]; !seen {
		t.order = append(t.order, ref)
	}
	t.writes[ref] = w
}

func (t *txn) Get(ctx context.Context, ref domain.Ref) (*domain.Document, error) {
	if err := checkRef(ref); err != nil {
		return nil, err
	}
	rec, ok := t.current(ref)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return toDocument(ref, rec), nil
}

func (t *txn) Create(ctx context.Context, ref domain.Ref, data map[string]any) error {
	if err := checkRef(ref); err != nil {
		return err
	}
	if _, ok := t.current(ref); ok {
		return domain.ErrAlreadyExists
	}
	return t.Put(ctx, ref, data)
}

func (t *txn) Put(ctx context.Context, ref domain.Ref, data map[string]any) error {
	if err := checkRef(ref); err != nil {
		return err
	}
	prepared, err := domain.PrepareData(data, t.now)
	if err != nil {
		return err
	}
	createdAt := t.now
	if rec, ok := t.current(ref); ok {
		createdAt = rec.createdAt
	}
	t.stage(ref, &pendingWrite{rec: &record{data: prepared, createdAt: createdAt, updatedAt: t.now}})
	return nil
}

func (t *txn) Merge(ctx context.Context, ref domain.Ref, data map[string]any) error {
	if err := checkRef(ref); err != nil {
		return err
	}
	prepared, err := domain.PrepareData(data, t.now)
	if err != nil {
		return err
	}
	createdAt := t.now
	merged := prepared
	if rec, ok := t.current(ref); ok {
		createdAt = rec.createdAt
		merged = domain.MergeData(copyData(rec.data), prepared)
	}
	t.stage(ref, &pendingWrite{rec: &record{data: merged, createdAt: createdAt, updatedAt: t.now}})
	return nil
}

func (t *txn) Delete(ctx context.Context, ref domain.Ref) error {
	if err := checkRef(ref); err != nil {
		return err
	}
	t.stage(ref, &pendingWrite{deleted: true})
	return nil
}

func matches(data map[string]any, filters []domain.Filter) bool {
	for _, f := range filters {
		v, ok := data[f.Field]
		if !ok || !reflect.DeepEqual(v, f.Value) {
			return false
		}
	}
	return true
}

// normalizeValue converts typed filter values (Ref, string enums) into their stored JSON form.
func normalizeValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			break
		}
		at, aerr := time.Parse(time.RFC3339Nano, av)
		bt, berr := time.Parse(time.RFC3339Nano, bv)
		if aerr == nil && berr == nil {
			return at.Compare(bt)
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case float64:
		bv, ok := b.(float64)
		if !ok {
			break
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	}
	return 0
}

func copyData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return copyData(tv)
	case []any:
		out := make([]any, len(tv))
		for i := range tv {
			out[i] = copyValue(tv[i])
		}
		return out
	}
	return v
}
