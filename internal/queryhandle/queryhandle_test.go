package queryhandle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, now time.Time) *Store {
	t.Helper()
	s := New(WithClock(func() time.Time { return now }))
	t.Cleanup(s.StopCleanup)
	return s
}

func TestStoreQueryAndGetQueryData(t *testing.T) {
	now := time.Now()
	s := newTestStore(t, now)

	handle := s.StoreQuery([]int{1, 2, 3}, "SELECT * FROM workitems", QueryMetadata{"project": "Foo"}, -1, nil, nil)
	require.NotEmpty(t, handle)
	require.Contains(t, handle, "qh_")

	rec := s.GetQueryData(handle)
	require.NotNil(t, rec)
	require.Equal(t, []int{1, 2, 3}, rec.WorkItemIDs)
	require.Equal(t, "SELECT * FROM workitems", rec.SourceQuery)
	require.Equal(t, now.Add(DefaultTTL), rec.ExpiresAt)
}

func TestGetQueryDataUnknownHandle(t *testing.T) {
	s := newTestStore(t, time.Now())
	require.Nil(t, s.GetQueryData("qh_does-not-exist"))
}

// TestExplicitZeroTTLExpiresImmediately distinguishes an explicit ttl of
// zero (expire right away) from an omitted ttl (negative sentinel, use
// DefaultTTL): the two must not collapse to the same behavior.
func TestExplicitZeroTTLExpiresImmediately(t *testing.T) {
	now := time.Now()
	current := now
	s := New(WithClock(func() time.Time { return current }))
	t.Cleanup(s.StopCleanup)

	handle := s.StoreQuery([]int{1}, "q", nil, 0, nil, nil)
	current = now.Add(time.Nanosecond)
	require.Nil(t, s.GetQueryData(handle))
}

func TestNegativeTTLSentinelSelectsDefaultTTL(t *testing.T) {
	now := time.Now()
	s := newTestStore(t, now)

	handle := s.StoreQuery([]int{1}, "q", nil, -1, nil, nil)
	rec := s.GetQueryData(handle)
	require.NotNil(t, rec)
	require.Equal(t, now.Add(DefaultTTL), rec.ExpiresAt)
}

func TestHandleExpiresAndReturnsNilForEveryRead(t *testing.T) {
	now := time.Now()
	current := now
	s := New(WithClock(func() time.Time { return current }))
	t.Cleanup(s.StopCleanup)

	handle := s.StoreQuery([]int{1, 2}, "q", nil, time.Minute, nil, nil)
	require.NotNil(t, s.GetQueryData(handle))

	current = now.Add(2 * time.Minute)

	require.Nil(t, s.GetQueryData(handle))
	require.Nil(t, s.GetItemsByIndices(handle, []int{0}))
	require.Nil(t, s.GetItemsByCriteria(handle, Criteria{}))
	require.Nil(t, s.ResolveItemSelector(handle, Selector{All: true}))
}

func TestGetItemsByIndicesDropsOutOfRangeAndPreservesDuplicates(t *testing.T) {
	s := newTestStore(t, time.Now())
	handle := s.StoreQuery([]int{10, 20, 30}, "q", nil, -1, nil, nil)

	got := s.GetItemsByIndices(handle, []int{2, -1, 0, 99, 0})
	require.Equal(t, []int{30, 10, 10}, got)
}

func TestGetItemsByIndicesEmptyInputIsEmptyNotNil(t *testing.T) {
	s := newTestStore(t, time.Now())
	handle := s.StoreQuery([]int{10, 20}, "q", nil, -1, nil, nil)

	got := s.GetItemsByIndices(handle, []int{})
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestResolveItemSelectorAll(t *testing.T) {
	s := newTestStore(t, time.Now())
	handle := s.StoreQuery([]int{5, 6, 7}, "q", nil, -1, nil, nil)

	got := s.ResolveItemSelector(handle, Selector{All: true})
	require.Equal(t, []int{5, 6, 7}, got)
}

func TestResolveItemSelectorUnrecognizedShape(t *testing.T) {
	s := newTestStore(t, time.Now())
	handle := s.StoreQuery([]int{5, 6, 7}, "q", nil, -1, nil, nil)

	got := s.ResolveItemSelector(handle, Selector{})
	require.Nil(t, got)
}

func TestCriteriaANDsAcrossFields(t *testing.T) {
	s := newTestStore(t, time.Now())
	ctx := map[int]WorkItemContext{
		1: {Title: "Fix login bug", State: "Active", Tags: []string{"bug"}},
		2: {Title: "Fix login bug", State: "Closed", Tags: []string{"bug"}},
		3: {Title: "Add feature", State: "Active", Tags: []string{"feature"}},
	}
	handle := s.StoreQuery([]int{1, 2, 3}, "q", nil, -1, ctx, nil)

	got := s.GetItemsByCriteria(handle, Criteria{
		States:        []string{"active"},
		TitleContains: []string{"login"},
	})
	require.Equal(t, []int{1}, got)
}

func TestCriteriaStatesAndTagsAreOR(t *testing.T) {
	s := newTestStore(t, time.Now())
	ctx := map[int]WorkItemContext{
		1: {State: "Active"},
		2: {State: "Resolved"},
		3: {State: "Closed"},
	}
	handle := s.StoreQuery([]int{1, 2, 3}, "q", nil, -1, ctx, nil)

	got := s.GetItemsByCriteria(handle, Criteria{States: []string{"Active", "Resolved"}})
	require.Equal(t, []int{1, 2}, got)
}

func TestCriteriaMissingAttributeExcludes(t *testing.T) {
	s := newTestStore(t, time.Now())
	ctx := map[int]WorkItemContext{
		1: {Title: "no tags here"}, // Tags is nil
	}
	handle := s.StoreQuery([]int{1, 2}, "q", nil, -1, ctx, nil) // id 2 has no context at all

	got := s.GetItemsByCriteria(handle, Criteria{Tags: []string{"x"}})
	require.Empty(t, got)
}

func TestCriteriaDaysInactiveInclusiveBounds(t *testing.T) {
	s := newTestStore(t, time.Now())
	d5, d10, d15 := 5, 10, 15
	ctx := map[int]WorkItemContext{
		1: {DaysInactive: &d5},
		2: {DaysInactive: &d10},
		3: {DaysInactive: &d15},
	}
	handle := s.StoreQuery([]int{1, 2, 3}, "q", nil, -1, ctx, nil)

	min, max := 5, 10
	got := s.GetItemsByCriteria(handle, Criteria{DaysInactiveMin: &min, DaysInactiveMax: &max})
	require.Equal(t, []int{1, 2}, got)
}

func TestEmptyCriteriaMatchesEverything(t *testing.T) {
	s := newTestStore(t, time.Now())
	handle := s.StoreQuery([]int{1, 2, 3}, "q", nil, -1, nil, nil)

	got := s.GetItemsByCriteria(handle, Criteria{})
	require.Equal(t, []int{1, 2, 3}, got)
}

func TestClearAllDropsEveryHandle(t *testing.T) {
	s := newTestStore(t, time.Now())
	h1 := s.StoreQuery([]int{1}, "q1", nil, -1, nil, nil)
	h2 := s.StoreQuery([]int{2}, "q2", nil, -1, nil, nil)

	s.ClearAll()

	require.Nil(t, s.GetQueryData(h1))
	require.Nil(t, s.GetQueryData(h2))
}

func TestHandlesAreUniquePerCreation(t *testing.T) {
	s := newTestStore(t, time.Now())
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		h := s.StoreQuery([]int{i}, "q", nil, -1, nil, nil)
		require.False(t, seen[h], "handle collision at iteration %d", i)
		seen[h] = true
	}
}

func TestStoreQueryRecordIsImmutableAfterCreation(t *testing.T) {
	s := newTestStore(t, time.Now())
	ids := []int{1, 2, 3}
	handle := s.StoreQuery(ids, "q", nil, -1, nil, nil)

	ids[0] = 999 // mutate caller's slice after the call

	rec := s.GetQueryData(handle)
	require.Equal(t, []int{1, 2, 3}, rec.WorkItemIDs)
}
