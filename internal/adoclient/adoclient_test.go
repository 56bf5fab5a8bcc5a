package adoclient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildWorkItemURLPercentEncodesSpaces(t *testing.T) {
	got := BuildWorkItemURL("https://dev.azure.com", "My Org", "My Project", 42)
	require.Equal(t, "https://dev.azure.com/My%20Org/My%20Project/_apis/wit/workitems/42", got)
}

func TestBuildWorkItemURLTrimsTrailingSlash(t *testing.T) {
	got := BuildWorkItemURL("https://dev.azure.com/", "org", "proj", 1)
	require.Equal(t, "https://dev.azure.com/org/proj/_apis/wit/workitems/1", got)
}

func TestSplitTagsTrimsAndDropsEmpty(t *testing.T) {
	got := SplitTags(" bug ;  feature; ; urgent ")
	require.Equal(t, []string{"bug", "feature", "urgent"}, got)
}

func TestSplitTagsEmptyString(t *testing.T) {
	require.Empty(t, SplitTags(""))
}

func TestJoinTags(t *testing.T) {
	require.Equal(t, "bug; feature", JoinTags([]string{"bug", "feature"}))
}

func TestLinkTypeRefCoversAllSymbolicTypes(t *testing.T) {
	want := map[string]string{
		"Parent":      "System.LinkTypes.Hierarchy-Reverse",
		"Child":       "System.LinkTypes.Hierarchy-Forward",
		"Related":     "System.LinkTypes.Related",
		"Successor":   "System.LinkTypes.Dependency-Forward",
		"Predecessor": "System.LinkTypes.Dependency-Reverse",
	}
	require.Equal(t, want, LinkTypeRef)
}
