package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `<html><body>
<ul>
  <li class="opening"><a href="/jobs/1"><h3>Backend Engineer</h3></a></li>
  <li class="opening"><a href="/jobs/2"><h3>Frontend Engineer</h3></a></li>
</ul>
</body></html>`

func TestParseMatchAll(t *testing.T) {
	t.Parallel()

	doc, err := NewParser().Parse(fixture)
	require.NoError(t, err)

	items := doc.MatchAll("li.opening")
	require.Len(t, items, 2)
	assert.Equal(t, "li", items[0].Tag())

	links := items[1].MatchAll("a")
	require.Len(t, links, 1)
	href, ok := links[0].Attr("href")
	assert.True(t, ok)
	assert.Equal(t, "/jobs/2", href)
	assert.Contains(t, items[1].Text(), "Frontend Engineer")

	_, ok = items[0].Attr("data-missing")
	assert.False(t, ok)
}

func TestMatchAllInvalidOrEmptySelector(t *testing.T) {
	t.Parallel()

	doc, err := NewParser().Parse(fixture)
	require.NoError(t, err)

	assert.Empty(t, doc.MatchAll(""))
	assert.Empty(t, doc.MatchAll("li[class"))
	assert.Empty(t, doc.MatchAll(".does-not-exist"))
}
