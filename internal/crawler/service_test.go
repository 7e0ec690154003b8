package crawler_test

import (
	"context"
	stdsha256 "crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/career-crawler/internal/crawler"
	"github.com/JakeFAU/career-crawler/internal/hash/sha256"
)

type stubIDs struct {
	id  string
	err error
}

func (s stubIDs) NewID() (string, error) { return s.id, s.err }

type stubPersister struct {
	calls [][]crawler.JobListing
	err   error
}

func (p *stubPersister) Persist(_ context.Context, listings []crawler.JobListing) (int, error) {
	p.calls = append(p.calls, listings)
	if p.err != nil {
		return 0, p.err
	}
	return len(listings), nil
}

type stubBlobs struct {
	path        string
	contentType string
	data        []byte
}

func (b *stubBlobs) PutObject(_ context.Context, path, contentType string, data []byte) (string, error) {
	b.path, b.contentType, b.data = path, contentType, data
	return "mem://" + path, nil
}

type stubPublisher struct {
	topic   string
	payload any
}

func (p *stubPublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.topic, p.payload = topic, payload
	return "msg-1", nil
}

func testRegistry(t *testing.T) *crawler.Registry {
	t.Helper()
	reg, err := crawler.NewRegistry([]crawler.CrawlTarget{
		{Name: "Acme", EntryURL: "https://acme.test/careers", Selectors: crawler.SelectorHints{ListingContainer: "div.card"}},
		{Name: "Beta", EntryURL: "https://beta.test/jobs"},
	})
	require.NoError(t, err)
	return reg
}

func testService(t *testing.T, cfg crawler.ServiceConfig, ids crawler.IDGenerator) *crawler.Service {
	t.Helper()
	session := &fakeSession{pages: map[string]string{"https://acme.test/careers": twoCards}}
	runner := newRunner(&fakeLauncher{session: session})
	return crawler.NewService(testRegistry(t), runner, ids, fixedClock{t: testNow}, cfg, nil)
}

func TestServiceRunPersistsOnceAndCompletesLast(t *testing.T) {
	t.Parallel()

	persister := &stubPersister{}
	blobs := &stubBlobs{}
	pub := &stubPublisher{}
	observer := &recorder{}
	svc := testService(t, crawler.ServiceConfig{
		Persister: persister,
		Archive:   blobs,
		Hasher:    sha256.New(),
		Publisher: pub,
		Topic:     "runs",
		Observer:  observer,
	}, stubIDs{id: "run-abc"})
	rec := &recorder{}

	result, err := svc.Run(context.Background(), crawler.RunOptions{}, rec)
	require.NoError(t, err)

	assert.Equal(t, "run-abc", result.RunID)
	assert.Equal(t, 2, result.Companies)
	assert.Len(t, result.Jobs, 3)
	assert.Equal(t, 3, result.Stored)
	require.Len(t, persister.calls, 1)
	assert.Len(t, persister.calls[0], 3)

	types := rec.types()
	require.NotEmpty(t, types)
	assert.Equal(t, crawler.EventStart, types[0])
	assert.Equal(t, crawler.EventComplete, types[len(types)-1])
	assert.Equal(t, crawler.EventJobsStored, types[len(types)-2])
	completes := 0
	for _, typ := range types {
		if typ == crawler.EventComplete {
			completes++
		}
	}
	assert.Equal(t, 1, completes)
	assert.Equal(t, types, observer.types(), "observer sees the same sequence")

	assert.Equal(t, "runs/2026/10/19/run-abc.json", blobs.path)
	assert.Equal(t, "application/json", blobs.contentType)
	var archived struct {
		RunID string               `json:"runId"`
		Jobs  []crawler.JobListing `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(blobs.data, &archived))
	assert.Equal(t, "run-abc", archived.RunID)
	assert.Len(t, archived.Jobs, 3)
	assert.Equal(t, "mem://runs/2026/10/19/run-abc.json", result.ArchiveURI)

	assert.Equal(t, "runs", pub.topic)
	note, ok := pub.payload.(crawler.RunNotification)
	require.True(t, ok)
	assert.Equal(t, 3, note.TotalJobs)
	assert.Equal(t, result.ArchiveURI, note.ArchiveURI)
	sum := stdsha256.Sum256(blobs.data)
	assert.Equal(t, hex.EncodeToString(sum[:]), result.ArchiveSHA256)
	assert.Equal(t, result.ArchiveSHA256, note.ArchiveSHA256)
}

func TestServiceRunToleratesPersistFailure(t *testing.T) {
	t.Parallel()

	persister := &stubPersister{err: errors.New("gateway down")}
	svc := testService(t, crawler.ServiceConfig{Persister: persister}, stubIDs{id: "run-x"})
	rec := &recorder{}

	result, err := svc.Run(context.Background(), crawler.RunOptions{}, rec)
	require.NoError(t, err)
	require.Error(t, result.StoreErr)
	assert.Equal(t, 0, result.Stored)
	assert.Len(t, result.Jobs, 3)
	require.Len(t, persister.calls, 1, "no retry")

	types := rec.types()
	assert.Equal(t, crawler.EventComplete, types[len(types)-1])
	stored := rec.events[len(rec.events)-2]
	assert.Equal(t, crawler.EventJobsStored, stored.Type)
	assert.Contains(t, stored.Err, "gateway down")
}

func TestServiceRunCompanyFilter(t *testing.T) {
	t.Parallel()

	persister := &stubPersister{}
	svc := testService(t, crawler.ServiceConfig{Persister: persister}, stubIDs{id: "run-f"})

	result, err := svc.Run(context.Background(), crawler.RunOptions{Company: "bet"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Companies)
	for _, job := range result.Jobs {
		assert.Equal(t, "Beta", job.Company)
	}

	result, err = svc.Run(context.Background(), crawler.RunOptions{Company: "nobody"}, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Jobs)
	assert.Len(t, persister.calls, 1, "empty batches are not persisted")
}

func TestServiceRunIDFailureEmitsError(t *testing.T) {
	t.Parallel()

	svc := testService(t, crawler.ServiceConfig{}, stubIDs{err: errors.New("entropy exhausted")})
	rec := &recorder{}

	_, err := svc.Run(context.Background(), crawler.RunOptions{}, rec)
	require.Error(t, err)
	assert.Equal(t, []crawler.EventType{crawler.EventError}, rec.types())
}

func TestServiceRunCanceledEmitsErrorNotComplete(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := testService(t, crawler.ServiceConfig{}, stubIDs{id: "run-c"})
	rec := &recorder{}

	_, err := svc.Run(ctx, crawler.RunOptions{}, rec)
	require.ErrorIs(t, err, context.Canceled)
	types := rec.types()
	assert.Equal(t, crawler.EventError, types[len(types)-1])
	assert.NotContains(t, types, crawler.EventComplete)
}

func TestArchivePath(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 1, 2, 23, 0, 0, 0, time.FixedZone("x", -5*3600))
	assert.Equal(t, "runs/2026/01/03/r1.json", crawler.ArchivePath("runs", "r1", at))
}

func TestMultiEmitter(t *testing.T) {
	t.Parallel()

	assert.Nil(t, crawler.MultiEmitter(nil, nil))

	a := &recorder{}
	assert.Same(t, a, crawler.MultiEmitter(nil, a))

	failing := crawler.EmitterFunc(func(context.Context, crawler.Event) error { return errors.New("gone") })
	b := &recorder{}
	err := crawler.MultiEmitter(failing, b).Emit(context.Background(), crawler.Event{Type: crawler.EventStart})
	require.EqualError(t, err, "gone")
	assert.Len(t, b.events, 1)
}

func TestEventMarshalJSON(t *testing.T) {
	t.Parallel()

	job := crawler.JobListing{ID: "a-1-0-1", Title: "Engineer"}
	raw, err := json.Marshal(crawler.Event{Type: crawler.EventJobFound, Company: "Acme", Page: 1, Job: &job})
	require.NoError(t, err)

	var decoded struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "job_found", decoded.Type)
	assert.Equal(t, "Acme", decoded.Data["company"])
	assert.Equal(t, "Engineer", decoded.Data["job"].(map[string]any)["title"])
}
