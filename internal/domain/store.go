package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Document is a stored entity: its reference, its field data and store-maintained metadata.
type Document struct {
	Ref       Ref
	Data      map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Decode unmarshals the document data into v.
func (d *Document) Decode(v any) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", d.Ref, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document %s: %w", d.Ref, err)
	}
	return nil
}

// Filter restricts a query to documents whose top-level Field equals Value.
type Filter struct {
	Field string
	Value any
}

// Query selects documents from one collection.
type Query struct {
	Collection string
	Where      []Filter
	OrderBy    string
	Desc       bool
	Limit      int
}

// ServerTimestampValue is the type of ServerTimestamp.
type ServerTimestampValue struct{}

// ServerTimestamp is a sentinel field value. Stores replace it with their own clock at write time.
var ServerTimestamp = ServerTimestampValue{}

// Subscription is a live query registration. Unsubscribe stops further callbacks and may be
// called more than once.
type Subscription interface {
	Unsubscribe()
}

// DocumentAccessor is the single-document part of the store contract. It is implemented by the
// store itself and by the transaction handle passed to RunTransaction.
type DocumentAccessor interface {
	// Get returns ErrNotFound when the document does not exist.
	Get(ctx context.Context, ref Ref) (*Document, error)
	// Create writes a new document and returns ErrAlreadyExists if ref is taken.
	Create(ctx context.Context, ref Ref, data map[string]any) error
	// Put replaces the document, creating it if needed.
	Put(ctx context.Context, ref Ref, data map[string]any) error
	// Merge deep-merges data into the document, creating it if needed.
	Merge(ctx context.Context, ref Ref, data map[string]any) error
	// Delete removes the document. Deleting a missing document is not an error.
	Delete(ctx context.Context, ref Ref) error
}

// EntityStore is the document database consumed by the core.
type EntityStore interface {
	DocumentAccessor
	Query(ctx context.Context, q Query) ([]*Document, error)
	// Subscribe invokes fn with the current result of q and again after every change to the collection.
	Subscribe(q Query, fn func([]*Document)) (Subscription, error)
	// SubscribeDoc invokes fn with the current document (nil when absent) and after every change.
	SubscribeDoc(ref Ref, fn func(*Document)) (Subscription, error)
	// RunTransaction runs fn atomically: every write inside fn commits or none does, and documents
	// read through tx cannot change underneath it.
	RunTransaction(ctx context.Context, fn func(tx DocumentAccessor) error) error
}

// ToData converts v (a struct or map) into document data.
func ToData(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode data: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	return out, nil
}

// PrepareData returns a copy of data with ServerTimestamp replaced by now and every value
// normalised to its JSON form (time.Time becomes an RFC 3339 string, structs become maps).
func PrepareData(data map[string]any, now time.Time) (map[string]any, error) {
	resolved := resolveTimestamps(data, now.UTC())
	return ToData(resolved)
}

func resolveTimestamps(data map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch tv := v.(type) {
		case ServerTimestampValue:
			out[k] = now
		case map[string]any:
			out[k] = resolveTimestamps(tv, now)
		default:
			out[k] = v
		}
	}
	return out
}

// MergeData deep-merges src into a copy of dst. Nested maps are merged key by key; any other
// value in src replaces the value in dst.
func MergeData(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]any)
		dstMap, dstIsMap := out[k].(map[string]any)
		if srcIsMap && dstIsMap {
			out[k] = MergeData(dstMap, srcMap)
			continue
		}
		out[k] = v
	}
	return out
}

// HasServerTimestamp reports whether data contains the ServerTimestamp sentinel at any depth.
func HasServerTimestamp(data map[string]any) bool {
	for _, v := range data {
		switch tv := v.(type) {
		case ServerTimestampValue:
			return true
		case map[string]any:
			if HasServerTimestamp(tv) {
				return true
			}
		}
	}
	return false
}
