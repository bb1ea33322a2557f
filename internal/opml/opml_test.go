package opml_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/rssdash/internal/model"
	"github.com/bryan-buckman/rssdash/internal/opml"
)

const subscriptions = `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head><title>My feeds</title></head>
  <body>
    <outline text="Loose" xmlUrl="https://loose.example/feed"/>
    <outline text="Tech">
      <outline text="Go Blog" title="The Go Blog" type="rss" xmlUrl="https://go.dev/blog/feed.atom"/>
      <outline text="Google">
        <outline text="Research" xmlUrl="https://research.google/feed"/>
      </outline>
    </outline>
    <outline text="Empty folder"></outline>
    <outline text="Dup" xmlUrl="https://loose.example/feed"/>
  </body>
</opml>`

func TestParse(t *testing.T) {
	t.Parallel()

	sources, err := opml.Parse(strings.NewReader(subscriptions))
	require.NoError(t, err)
	assert.Equal(t, []model.FeedSource{
		{Name: "Loose", URL: "https://loose.example/feed", Folder: ""},
		{Name: "The Go Blog", URL: "https://go.dev/blog/feed.atom", Folder: "Tech"},
		{Name: "Research", URL: "https://research.google/feed", Folder: "Tech/Google"},
	}, sources)
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	_, err := opml.Parse(strings.NewReader("<opml><body><outline"))
	require.Error(t, err)
	assert.Equal(t, model.EINVALID, model.ErrorCode(err))
}

func TestExport(t *testing.T) {
	t.Parallel()

	sources := []model.FeedSource{
		{Name: "Zeta", URL: "https://z.example/feed", Folder: "Tech"},
		{Name: "Alpha", URL: "https://a.example/feed", Folder: "Tech"},
		{Name: "Research", URL: "https://research.google/feed", Folder: "Tech/Google"},
		{Name: "Loose", URL: "https://loose.example/feed"},
	}

	out, err := opml.Export("rssdash", sources)
	require.NoError(t, err)
	doc := string(out)
	assert.True(t, strings.HasPrefix(doc, "<?xml"))
	assert.Contains(t, doc, "<title>rssdash</title>")
	assert.Less(t, strings.Index(doc, `text="Alpha"`), strings.Index(doc, `text="Zeta"`), "feeds sorted by name")
	assert.Less(t, strings.Index(doc, `text="Google"`), strings.Index(doc, `text="Alpha"`), "subfolders before feeds")

	t.Run("round trips through Parse", func(t *testing.T) {
		parsed, err := opml.Parse(bytes.NewReader(out))
		require.NoError(t, err)
		assert.ElementsMatch(t, sources, parsed)
	})

	t.Run("deterministic regardless of input order", func(t *testing.T) {
		reversed := []model.FeedSource{sources[3], sources[2], sources[1], sources[0]}
		again, err := opml.Export("rssdash", reversed)
		require.NoError(t, err)
		assert.Equal(t, out, again)
	})
}
