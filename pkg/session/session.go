// Package session persists monitoring sessions: the events and rate
// measurements a pipeline produced, grouped under a session identity.
//
// Records are msgpack-encoded into a kv.Store under time-ordered keys:
//
//	session:<id>:meta
//	session:<id>:event:<seq>
//	session:<id>:rate:<seq>
//
// so listing a session's records streams them back in recording order.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/lumora-health/breathsense/pkg/breath"
	"github.com/lumora-health/breathsense/pkg/kv"
)

// RetentionPeriod is how long finished sessions are kept before Purge
// removes them.
const RetentionPeriod = 30 * 24 * time.Hour

// ErrNotFound is returned when a session id does not exist in the store.
var ErrNotFound = errors.New("session: not found")

const keyRoot = "session"

// Meta describes one recorded session.
type Meta struct {
	ID        string    `json:"id" msgpack:"id"`
	StartedAt time.Time `json:"started_at" msgpack:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty" msgpack:"ended_at,omitempty"`

	// Events and Rates are record counts, maintained on Finish.
	Events int `json:"events" msgpack:"events"`
	Rates  int `json:"rates" msgpack:"rates"`

	// MeanRate is the mean of the smoothed rate measurements over the
	// whole session, in breaths per minute. Zero when no rate was measured.
	MeanRate float64 `json:"mean_rate,omitempty" msgpack:"mean_rate,omitempty"`
}

// Recorder accumulates the output of one pipeline run into the store.
// A Recorder is not safe for concurrent use; drive it from the same
// worker that drives the pipeline.
type Recorder struct {
	store kv.Store
	meta  Meta

	eventSeq uint64
	rateSeq  uint64
	rateSum  float64
}

// Start creates a new session with a fresh identity and writes its
// metadata record.
func Start(ctx context.Context, store kv.Store, now time.Time) (*Recorder, error) {
	r := &Recorder{
		store: store,
		meta: Meta{
			ID:        uuid.NewString(),
			StartedAt: now,
		},
	}
	if err := r.writeMeta(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// ID returns the session identity.
func (r *Recorder) ID() string {
	return r.meta.ID
}

// Meta returns a snapshot of the session metadata. Counts and EndedAt
// are only final after Finish.
func (r *Recorder) Meta() Meta {
	return r.meta
}

// RecordResult stores everything one pipeline result produced. Chunks
// with no events and no rate measurement write nothing.
func (r *Recorder) RecordResult(ctx context.Context, res breath.Result) error {
	for _, ev := range res.Events {
		if err := r.RecordEvent(ctx, ev); err != nil {
			return err
		}
	}
	if res.Rate != nil {
		return r.RecordRate(ctx, *res.Rate)
	}
	return nil
}

// RecordEvent appends one event to the session.
func (r *Recorder) RecordEvent(ctx context.Context, ev breath.Event) error {
	b, err := msgpack.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("session: encode event: %w", err)
	}
	key := kv.Key{keyRoot, r.meta.ID, "event", seq(r.eventSeq)}
	if err := r.store.Set(ctx, key, b); err != nil {
		return err
	}
	r.eventSeq++
	return nil
}

// RecordRate appends one rate measurement to the session.
func (r *Recorder) RecordRate(ctx context.Context, m breath.RateMeasurement) error {
	b, err := msgpack.Marshal(&m)
	if err != nil {
		return fmt.Errorf("session: encode rate: %w", err)
	}
	key := kv.Key{keyRoot, r.meta.ID, "rate", seq(r.rateSeq)}
	if err := r.store.Set(ctx, key, b); err != nil {
		return err
	}
	r.rateSeq++
	r.rateSum += m.Smoothed
	return nil
}

// Finish seals the session: records the end time, final counts and the
// session mean rate.
func (r *Recorder) Finish(ctx context.Context, now time.Time) error {
	r.meta.EndedAt = now
	r.meta.Events = int(r.eventSeq)
	r.meta.Rates = int(r.rateSeq)
	if r.rateSeq > 0 {
		r.meta.MeanRate = r.rateSum / float64(r.rateSeq)
	}
	return r.writeMeta(ctx)
}

func (r *Recorder) writeMeta(ctx context.Context) error {
	b, err := msgpack.Marshal(&r.meta)
	if err != nil {
		return fmt.Errorf("session: encode meta: %w", err)
	}
	return r.store.Set(ctx, kv.Key{keyRoot, r.meta.ID, "meta"}, b)
}

// seq formats a record sequence number so lexicographic key order matches
// recording order.
func seq(n uint64) string {
	return fmt.Sprintf("%012d", n)
}

// List returns the metadata of every stored session, ordered by session id.
func List(ctx context.Context, store kv.Store) ([]Meta, error) {
	var metas []Meta
	for entry, err := range store.List(ctx, kv.Key{keyRoot}) {
		if err != nil {
			return nil, err
		}
		if len(entry.Key) != 3 || entry.Key[2] != "meta" {
			continue
		}
		var m Meta
		if err := msgpack.Unmarshal(entry.Value, &m); err != nil {
			return nil, fmt.Errorf("session: decode meta %s: %w", entry.Key, err)
		}
		metas = append(metas, m)
	}
	return metas, nil
}

// Get returns the metadata of one session.
func Get(ctx context.Context, store kv.Store, id string) (Meta, error) {
	b, err := store.Get(ctx, kv.Key{keyRoot, id, "meta"})
	if errors.Is(err, kv.ErrNotFound) {
		return Meta{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Meta{}, err
	}
	var m Meta
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return Meta{}, fmt.Errorf("session: decode meta %s: %w", id, err)
	}
	return m, nil
}

// Events returns a session's events in recording order.
func Events(ctx context.Context, store kv.Store, id string) ([]breath.Event, error) {
	if _, err := Get(ctx, store, id); err != nil {
		return nil, err
	}
	var events []breath.Event
	for entry, err := range store.List(ctx, kv.Key{keyRoot, id, "event"}) {
		if err != nil {
			return nil, err
		}
		var ev breath.Event
		if err := msgpack.Unmarshal(entry.Value, &ev); err != nil {
			return nil, fmt.Errorf("session: decode event %s: %w", entry.Key, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// Rates returns a session's rate measurements in recording order.
func Rates(ctx context.Context, store kv.Store, id string) ([]breath.RateMeasurement, error) {
	if _, err := Get(ctx, store, id); err != nil {
		return nil, err
	}
	var rates []breath.RateMeasurement
	for entry, err := range store.List(ctx, kv.Key{keyRoot, id, "rate"}) {
		if err != nil {
			return nil, err
		}
		var m breath.RateMeasurement
		if err := msgpack.Unmarshal(entry.Value, &m); err != nil {
			return nil, fmt.Errorf("session: decode rate %s: %w", entry.Key, err)
		}
		rates = append(rates, m)
	}
	return rates, nil
}

// Delete removes one session and all of its records.
func Delete(ctx context.Context, store kv.Store, id string) error {
	return store.DeletePrefix(ctx, kv.Key{keyRoot, id})
}

// Purge deletes every session that started before the cutoff and returns
// how many were removed. Pass now.Add(-RetentionPeriod) for the standard
// retention window.
func Purge(ctx context.Context, store kv.Store, cutoff time.Time) (int, error) {
	metas, err := List(ctx, store)
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, m := range metas {
		if !m.StartedAt.Before(cutoff) {
			continue
		}
		if err := Delete(ctx, store, m.ID); err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}
