// Package queryhandle backs bulk and analysis flows with opaque,
// time-limited references to work-item id sets, so large result sets never
// have to be shipped back and forth through the calling agent.
package queryhandle

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is used by StoreQuery when the caller does not specify one.
const DefaultTTL = time.Hour

// sweepInterval is the cadence of the background expiry ticker.
const sweepInterval = 60 * time.Second

// WorkItemContext is the read-only record carried alongside a work-item id
// inside a handle, as populated by whatever query handler created it.
type WorkItemContext struct {
	Title         string
	State         string
	Type          string
	AssignedTo    string
	Tags          []string
	DaysInactive  *int
	IterationPath string
	ChangedDate   *time.Time
}

// QueryMetadata is free-form information about the query that produced a
// handle's id set (project, query type, and any producer-specific keys).
type QueryMetadata map[string]any

// Record is the immutable payload named by a handle. Once constructed, its
// fields are never mutated; selectors only ever read it.
type Record struct {
	WorkItemIDs      []int
	SourceQuery      string
	QueryMetadata    QueryMetadata
	WorkItemContext  map[int]WorkItemContext
	CreatedAt        time.Time
	ExpiresAt        time.Time
	AnalysisMetadata map[string]any
}

// Criteria is the predicate-selector shape of an Item Selector. All
// populated fields are ANDed; within States and Tags, membership is ORed.
type Criteria struct {
	States          []string
	Tags            []string
	TitleContains   []string
	DaysInactiveMin *int
	DaysInactiveMax *int
}

// IsEmpty reports whether no predicate field is set, in which case every
// item matches.
func (c Criteria) IsEmpty() bool {
	return len(c.States) == 0 && len(c.Tags) == 0 && len(c.TitleContains) == 0 &&
		c.DaysInactiveMin == nil && c.DaysInactiveMax == nil
}

// Selector is the sum type described for item selection: exactly one of
// All, Indices, or Criteria should be set.
type Selector struct {
	All      bool
	Indices  []int
	Criteria *Criteria
}

type entry struct {
	record Record
}

// Store allocates and resolves query handles. It is safe for concurrent
// use; reads never block on I/O and are pure functions of store state at
// call time.
type Store struct {
	clock func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithClock overrides the time source; intended for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// New constructs a Store and starts its background expiry sweep.
func New(opts ...Option) *Store {
	s := &Store{
		clock:   time.Now,
		entries: make(map[string]*entry),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	go s.sweepLoop()
	return s
}

// StoreQuery allocates a fresh handle naming an immutable snapshot of ids,
// query metadata, and optional per-item context. A negative ttl means "not
// specified" and selects DefaultTTL; ttl of exactly zero is an explicit
// request for a handle that is already expired on the next read, distinct
// from omitting the parameter.
func (s *Store) StoreQuery(
	ids []int,
	sourceQuery string,
	meta QueryMetadata,
	ttl time.Duration,
	itemContext map[int]WorkItemContext,
	analysisMeta map[string]any,
) string {
	if ttl < 0 {
		ttl = DefaultTTL
	}

	idsCopy := make([]int, len(ids))
	copy(idsCopy, ids)

	var ctxCopy map[int]WorkItemContext
	if itemContext != nil {
		ctxCopy = make(map[int]WorkItemContext, len(itemContext))
		for k, v := range itemContext {
			ctxCopy[k] = v
		}
	}

	now := s.clock()
	handle := "qh_" + uuid.NewString()

	s.mu.Lock()
	s.entries[handle] = &entry{record: Record{
		WorkItemIDs:      idsCopy,
		SourceQuery:      sourceQuery,
		QueryMetadata:    meta,
		WorkItemContext:  ctxCopy,
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
		AnalysisMetadata: analysisMeta,
	}}
	s.mu.Unlock()

	return handle
}

// GetQueryData returns the record named by handle, or nil if the handle is
// unknown or expired.
func (s *Store) GetQueryData(handle string) *Record {
	e := s.lookup(handle)
	if e == nil {
		return nil
	}
	rec := e.record
	return &rec
}

// GetItemsByIndices resolves an index-list selector: out-of-range and
// negative indices are silently dropped, duplicates are preserved in order.
// Returns nil for an unknown/expired handle, distinct from an empty (but
// non-nil) result for a valid handle with no matching indices.
func (s *Store) GetItemsByIndices(handle string, indices []int) []int {
	e := s.lookup(handle)
	if e == nil {
		return nil
	}
	ids := e.record.WorkItemIDs
	out := make([]int, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(ids) {
			continue
		}
		out = append(out, ids[idx])
	}
	return out
}

// GetItemsByCriteria resolves a criteria-predicate selector. Returns nil
// for an unknown/expired handle.
func (s *Store) GetItemsByCriteria(handle string, criteria Criteria) []int {
	e := s.lookup(handle)
	if e == nil {
		return nil
	}
	rec := e.record
	out := make([]int, 0, len(rec.WorkItemIDs))
	for _, id := range rec.WorkItemIDs {
		ctx, hasCtx := rec.WorkItemContext[id]
		if matchesCriteria(ctx, hasCtx, criteria) {
			out = append(out, id)
		}
	}
	return out
}

func matchesCriteria(ctx WorkItemContext, hasCtx bool, c Criteria) bool {
	if c.IsEmpty() {
		return true
	}

	if len(c.States) > 0 {
		if !hasCtx || !containsFold(c.States, ctx.State) {
			return false
		}
	}
	if len(c.Tags) > 0 {
		if !hasCtx || !anyFold(c.Tags, ctx.Tags) {
			return false
		}
	}
	if len(c.TitleContains) > 0 {
		if !hasCtx || !anySubstringFold(c.TitleContains, ctx.Title) {
			return false
		}
	}
	if c.DaysInactiveMin != nil {
		if !hasCtx || ctx.DaysInactive == nil || *ctx.DaysInactive < *c.DaysInactiveMin {
			return false
		}
	}
	if c.DaysInactiveMax != nil {
		if !hasCtx || ctx.DaysInactive == nil || *ctx.DaysInactive > *c.DaysInactiveMax {
			return false
		}
	}
	return true
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func anyFold(wanted, have []string) bool {
	for _, w := range wanted {
		if containsFold(have, w) {
			return true
		}
	}
	return false
}

func anySubstringFold(substrings []string, title string) bool {
	lower := strings.ToLower(title)
	for _, sub := range substrings {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// ResolveItemSelector dispatches on the selector's shape. An unrecognized
// shape (neither All, a non-nil Indices, nor a non-nil Criteria) resolves
// to nil.
func (s *Store) ResolveItemSelector(handle string, sel Selector) []int {
	switch {
	case sel.All:
		return s.GetItemsByIndices(handle, allIndices(s, handle))
	case sel.Indices != nil:
		return s.GetItemsByIndices(handle, sel.Indices)
	case sel.Criteria != nil:
		return s.GetItemsByCriteria(handle, *sel.Criteria)
	default:
		return nil
	}
}

func allIndices(s *Store, handle string) []int {
	e := s.lookup(handle)
	if e == nil {
		return nil
	}
	idx := make([]int, len(e.record.WorkItemIDs))
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// ClearAll drops every handle. Intended for tests.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
}

// StopCleanup stops the background expiry ticker. Safe to call multiple
// times; subsequent calls are no-ops.
func (s *Store) StopCleanup() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

func (s *Store) lookup(handle string) *entry {
	s.mu.RLock()
	e, ok := s.entries[handle]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	if s.clock().After(e.record.ExpiresAt) {
		s.mu.Lock()
		delete(s.entries, handle)
		s.mu.Unlock()
		return nil
	}
	return e
}

func (s *Store) sweepLoop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweepExpired()
		}
	}
}

func (s *Store) sweepExpired() {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	for handle, e := range s.entries {
		if now.After(e.record.ExpiresAt) {
			delete(s.entries, handle)
		}
	}
}
