package tle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/mount-tracker/internal/logging"
	"github.com/signalsfoundry/mount-tracker/internal/observability"
	"github.com/signalsfoundry/mount-tracker/timectrl"
)

// Catalog fetches fresh element sets from a remote source.
type Catalog interface {
	Fetch(ctx context.Context, catalogID string) (*Record, error)
}

// RefreshObserver receives the outcome of each refresh decision.
type RefreshObserver interface {
	ObserveRefresh(outcome string)
}

// Refresh outcomes reported to a RefreshObserver.
const (
	OutcomeFresh     = "fresh"
	OutcomeRefreshed = "refreshed"
	OutcomeFailed    = "failed"
)

// Option configures a Cache.
type Option func(*Cache)

// WithRefreshObserver reports refresh outcomes to o.
func WithRefreshObserver(o RefreshObserver) Option {
	return func(c *Cache) { c.observer = o }
}

// WithClock overrides the clock used for staleness.
func WithClock(clock timectrl.Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

// WithRefreshInterval sets the staleness threshold of every record added to
// the cache.
func WithRefreshInterval(d time.Duration) Option {
	return func(c *Cache) { c.refreshInterval = d }
}

// WithLogger sets the cache logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Cache) { c.log = logging.OrNoop(l) }
}

// Cache owns the in-memory record set. Lookups hand out copies; records are
// only mutated under the cache lock, so a refresh running on another
// goroutine never exposes a half-replaced line pair.
type Cache struct {
	mu      sync.RWMutex
	records []*Record

	catalog         Catalog
	store           Store
	clock           timectrl.Clock
	log             logging.Logger
	observer        RefreshObserver
	refreshInterval time.Duration
}

// NewCache builds a cache. catalog and store may be nil, which disables remote
// fetches and persistence respectively.
func NewCache(catalog Catalog, store Store, opts ...Option) *Cache {
	c := &Cache{
		catalog: catalog,
		store:   store,
		clock:   timectrl.SystemClock{},
		log:     logging.Noop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load reads all records from the store. Malformed entries are skipped with a
// warning; only an unreadable store is an error.
func (c *Cache) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	recs, bad, err := c.store.LoadAll()
	if err != nil {
		return err
	}
	for _, e := range bad {
		c.log.Warn(ctx, "skipping malformed tle entry", logging.Err(e))
	}
	for _, r := range recs {
		c.Add(r)
	}
	c.log.Info(ctx, "loaded tle records", logging.Int("count", len(recs)), logging.Int("skipped", len(bad)))
	return nil
}

// Add inserts rec, replacing an existing record with the same catalog id.
func (c *Cache) Add(rec *Record) {
	if rec == nil {
		return
	}
	rec = rec.Clone()
	if c.refreshInterval > 0 {
		rec.RefreshInterval = c.refreshInterval
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.records {
		if r.CatalogID == rec.CatalogID {
			c.records[i] = rec
			return
		}
	}
	c.records = append(c.records, rec)
}

// Records returns copies of all cached records in insertion order.
func (c *Cache) Records() []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Record, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, *r)
	}
	return out
}

// LookupByID returns a copy of the record with the given catalog id.
func (c *Cache) LookupByID(id string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if r := c.findByIDLocked(id); r != nil {
		return *r, true
	}
	return Record{}, false
}

// LookupByName returns a copy of the first record whose name contains name.
func (c *Cache) LookupByName(name string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.records {
		if r.MatchName(name) {
			return *r, true
		}
	}
	return Record{}, false
}

// GetOrFetch returns the cached record for id, fetching and persisting it
// from the catalog when absent. ErrNotFound is returned only when both the
// lookup and the fetch fail.
func (c *Cache) GetOrFetch(ctx context.Context, id string) (Record, error) {
	if r, ok := c.LookupByID(id); ok {
		return r, nil
	}

	rec, err := c.fetch(ctx, id)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %s (%v)", ErrNotFound, id, err)
	}
	c.Add(rec)
	c.persist(ctx, rec)
	return *rec, nil
}

// Refresh re-fetches the record with the given id if it is stale. A fresh
// record is a successful no-op. On a failed fetch the record is unchanged and
// an error wrapping ErrFetchFailed is returned; callers should warn and carry
// on with the stale data.
func (c *Cache) Refresh(ctx context.Context, id string) error {
	ctx, span := observability.StartSpan(ctx, "tle.refresh", attribute.String("tle.catalog_id", id))
	defer span.End()

	c.mu.RLock()
	r := c.findByIDLocked(id)
	var stale bool
	if r != nil {
		stale = r.Stale(c.clock.Now())
	}
	c.mu.RUnlock()

	if r == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	span.SetAttributes(attribute.Bool("tle.stale", stale))
	if !stale {
		c.observe(OutcomeFresh)
		return nil
	}

	fresh, err := c.fetch(ctx, id)
	if err == nil {
		c.mu.Lock()
		target := c.findByIDLocked(id)
		if target == nil {
			err = fmt.Errorf("%w: %s", ErrNotFound, id)
		} else {
			err = target.ReplaceFrom(fresh, c.clock.Now())
			fresh = target.Clone()
		}
		c.mu.Unlock()
	}
	if err != nil {
		c.observe(OutcomeFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !errors.Is(err, ErrFetchFailed) {
			err = fmt.Errorf("%w: %s: %v", ErrFetchFailed, id, err)
		}
		return err
	}

	c.observe(OutcomeRefreshed)
	c.persist(ctx, fresh)
	c.log.Info(ctx, "tle refreshed", logging.String("catalog_id", id), logging.String("name", fresh.Name))
	return nil
}

// RefreshReport summarises a RefreshAll pass.
type RefreshReport struct {
	Checked int
	Failed  map[string]error
}

// OK reports whether every record refreshed (or was already fresh).
func (r RefreshReport) OK() bool { return len(r.Failed) == 0 }

// RefreshAll applies Refresh to every record. One record failing does not
// stop the others.
func (c *Cache) RefreshAll(ctx context.Context) RefreshReport {
	c.mu.RLock()
	ids := make([]string, 0, len(c.records))
	for _, r := range c.records {
		ids = append(ids, r.CatalogID)
	}
	c.mu.RUnlock()

	report := RefreshReport{Checked: len(ids), Failed: map[string]error{}}
	for _, id := range ids {
		if err := c.Refresh(ctx, id); err != nil {
			report.Failed[id] = err
		}
	}
	return report
}

func (c *Cache) fetch(ctx context.Context, id string) (*Record, error) {
	if c.catalog == nil {
		return nil, fmt.Errorf("%w: no catalog configured", ErrFetchFailed)
	}
	rec, err := c.catalog.Fetch(ctx, id)
	if err != nil {
		if errors.Is(err, ErrFetchFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: empty response for %s", ErrFetchFailed, id)
	}
	return rec, nil
}

func (c *Cache) persist(ctx context.Context, rec *Record) {
	if c.store == nil {
		return
	}
	if err := c.store.Save(rec); err != nil {
		c.log.Warn(ctx, "failed to persist tle", logging.String("catalog_id", rec.CatalogID), logging.Err(err))
	}
}

func (c *Cache) observe(outcome string) {
	if c.observer != nil {
		c.observer.ObserveRefresh(outcome)
	}
}

func (c *Cache) findByIDLocked(id string) *Record {
	for _, r := range c.records {
		if r.MatchID(id) {
			return r
		}
	}
	return nil
}
