package adoclienttest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ado-mcp/ado-work-mcp/internal/adoclient"
)

func TestQueryByWIQLReturnsSeededOrder(t *testing.T) {
	f := New()
	f.Seed(adoclient.WorkItem{ID: 2, Title: "second"})
	f.Seed(adoclient.WorkItem{ID: 1, Title: "first"})
	f.SeedQueryResult("SELECT [System.Id] FROM WorkItems", []int{1, 2})

	items, err := f.QueryByWIQL(context.Background(), "proj", "SELECT [System.Id] FROM WorkItems")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "first", items[0].Title)
	require.Equal(t, "second", items[1].Title)
}

func TestQueryByWIQLUnseededIDsResolveToBareWorkItem(t *testing.T) {
	f := New()
	f.SeedQueryResult("q", []int{99})

	items, err := f.QueryByWIQL(context.Background(), "proj", "q")
	require.NoError(t, err)
	require.Equal(t, []adoclient.WorkItem{{ID: 99}}, items)
}

func TestQueryByWIQLUnknownQueryReturnsEmpty(t *testing.T) {
	f := New()
	items, err := f.QueryByWIQL(context.Background(), "proj", "unseeded")
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestWIQLCallsRecordsEveryQuery(t *testing.T) {
	f := New()
	_, _ = f.QueryByWIQL(context.Background(), "proj", "q1")
	_, _ = f.QueryByWIQL(context.Background(), "proj", "q2")
	require.Equal(t, []string{"q1", "q2"}, f.WIQLCalls())
}
