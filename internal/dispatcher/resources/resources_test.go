package resources

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlugBuildsADOURIScheme(t *testing.T) {
	require.Equal(t, "ado://docs/wiql-quick-reference", Slug("wiql-quick-reference"))
}

func TestListReturnsSortedMetaWithMarkdownMimeType(t *testing.T) {
	c := New([]Resource{
		{URI: "ado://docs/b", Name: "B", Description: "desc b", Text: "body"},
		{URI: "ado://docs/a", Name: "A", Description: "desc a", Text: "body"},
	})

	metas := c.List()
	require.Len(t, metas, 2)
	require.Equal(t, "ado://docs/a", metas[0].URI)
	require.Equal(t, "ado://docs/b", metas[1].URI)
	for _, m := range metas {
		require.Equal(t, "text/markdown", m.MimeType)
	}
}

func TestReadReturnsContentForKnownURI(t *testing.T) {
	c := New([]Resource{{URI: "ado://docs/a", Name: "A", Text: "hello"}})

	content, err := c.Read("ado://docs/a")
	require.NoError(t, err)
	require.Equal(t, "hello", content.Text)
	require.Equal(t, "text/markdown", content.MimeType)
}

func TestReadUnknownURIFailsWithExactMessage(t *testing.T) {
	c := New(nil)

	_, err := c.Read("ado://docs/missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, "Resource not found", err.Error())
}

func TestDuplicateURILastWriteWins(t *testing.T) {
	c := New([]Resource{
		{URI: "ado://docs/a", Text: "first"},
		{URI: "ado://docs/a", Text: "second"},
	})

	content, err := c.Read("ado://docs/a")
	require.NoError(t, err)
	require.Equal(t, "second", content.Text)
}

func TestDefaultCatalogueCoversCoreTopics(t *testing.T) {
	c := Default()
	metas := c.List()
	require.NotEmpty(t, metas)

	uris := make(map[string]bool, len(metas))
	for _, m := range metas {
		uris[m.URI] = true
	}
	for _, want := range []string{
		Slug("wiql-quick-reference"),
		Slug("query-handle-usage"),
		Slug("bulk-operations"),
		Slug("link-types"),
	} {
		require.True(t, uris[want], "expected %s in default catalogue", want)
	}
}
