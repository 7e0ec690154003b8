package crawler_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/career-crawler/internal/crawler"
)

func TestDefaultTargetsAreValid(t *testing.T) {
	t.Parallel()

	reg, err := crawler.NewRegistry(crawler.DefaultTargets())
	require.NoError(t, err)
	assert.Equal(t, len(crawler.DefaultTargets()), reg.Len())
}

func TestRegistryFilter(t *testing.T) {
	t.Parallel()

	reg, err := crawler.NewRegistry([]crawler.CrawlTarget{
		{Name: "Acme", EntryURL: "https://acme.test"},
		{Name: "Beta Labs", EntryURL: "https://beta.test"},
		{Name: "Acme Robotics", EntryURL: "https://robotics.test"},
	})
	require.NoError(t, err)

	assert.Len(t, reg.Filter(""), 3)
	got := reg.Filter("acme")
	require.Len(t, got, 2)
	assert.Equal(t, "Acme", got[0].Name)
	assert.Equal(t, "Acme Robotics", got[1].Name)
	assert.Empty(t, reg.Filter("gamma"))
}

func TestRegistryTargetsIsACopy(t *testing.T) {
	t.Parallel()

	reg, err := crawler.NewRegistry([]crawler.CrawlTarget{{Name: "Acme", EntryURL: "https://acme.test"}})
	require.NoError(t, err)
	targets := reg.Targets()
	targets[0].Name = "Mutated"
	assert.Equal(t, "Acme", reg.Targets()[0].Name)
}

func TestNewRegistryRejectsInvalid(t *testing.T) {
	t.Parallel()

	_, err := crawler.NewRegistry(nil)
	assert.Error(t, err)

	_, err = crawler.NewRegistry([]crawler.CrawlTarget{
		{Name: "Acme", EntryURL: "https://acme.test"},
		{Name: "ACME", EntryURL: "https://acme2.test"},
	})
	assert.ErrorContains(t, err, "duplicate")
}

func TestLoadRegistry(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "targets.yaml")
	content := []byte(`
targets:
  - name: Acme
    entryUrl: https://acme.test/careers
    selectors:
      listingContainer: div.card
      title: h3
    pagination:
      maxPages: 3
      pageParam: p
  - name: Beta
    entryUrl: https://beta.test/jobs
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	reg, err := crawler.LoadRegistry(path)
	require.NoError(t, err)
	targets := reg.Targets()
	require.Len(t, targets, 2)
	assert.Equal(t, "div.card", targets[0].Selectors.ListingContainer)
	assert.Equal(t, 3, targets[0].Pagination.Pages())
	assert.Equal(t, "p", targets[0].Pagination.PageParam)
	assert.Equal(t, 1, targets[1].Pagination.Pages())
}

func TestLoadRegistryRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("targets:\n  - name: Acme\n    url: https://acme.test\n"), 0o600))
	_, err := crawler.LoadRegistry(path)
	assert.Error(t, err)
}

func TestDefaultAmazonTargetPagesByOffset(t *testing.T) {
	t.Parallel()

	reg, err := crawler.NewRegistry(crawler.DefaultTargets())
	require.NoError(t, err)
	got := reg.Filter("amazon")
	require.Len(t, got, 1)

	target := got[0]
	page2, err := target.Pagination.PageURL(target.EntryURL, 2)
	require.NoError(t, err)
	assert.Equal(t, "https://www.amazon.jobs/en/search?base_query=software+engineer&offset=10", page2)
}
