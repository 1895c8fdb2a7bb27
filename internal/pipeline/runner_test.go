package pipeline

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atoombs-lib/kb-linkcheck/internal/fetch"
	"github.com/atoombs-lib/kb-linkcheck/internal/kb"
	"github.com/atoombs-lib/kb-linkcheck/internal/progress"
	"github.com/atoombs-lib/kb-linkcheck/internal/store"
)

type stubSource struct {
	mu          sync.Mutex
	status      int
	collections []kb.Collection
	resources   map[string][]kb.Resource
	key         string
}

func (s *stubSource) ConnectionTest(context.Context) int {
	return s.status
}

func (s *stubSource) Collections(context.Context) []kb.Collection {
	return s.collections
}

func (s *stubSource) Resources(_ context.Context, col kb.Collection) []kb.Resource {
	return s.resources[col.ID]
}

func (s *stubSource) SetKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
}

type stubProber struct {
	mu          sync.Mutex
	codes       map[string]int
	probed      []string
	ignorelist  []string
	domainsOnly bool
	closed      bool
}

func (p *stubProber) Head(_ context.Context, rawURL string) fetch.Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probed = append(p.probed, rawURL)
	code, ok := p.codes[rawURL]
	if !ok {
		return fetch.Sentinel(rawURL)
	}
	return fetch.Response{SourceURL: rawURL, StatusCode: code}
}

func (p *stubProber) SetIgnorelist(domains []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ignorelist = domains
}

func (p *stubProber) SetDomainsOnly(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.domainsOnly = v
}

func (p *stubProber) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// recordingEmitter captures every event synchronously for assertions.
type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) messages(stage progress.Stage, kind progress.Kind) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, evt := range r.events {
		if evt.Stage == stage && evt.Kind == kind {
			out = append(out, evt.Message)
		}
	}
	return out
}

func openStores(t *testing.T) (resources, results *store.Store) {
	t.Helper()
	dir := t.TempDir()
	var err error
	resources, err = store.Open(filepath.Join(dir, "resources.csv"), ResourceHeader, store.Options{}, nil)
	require.NoError(t, err)
	results, err = store.Open(filepath.Join(dir, "results.csv"), ResultHeader, store.Options{}, nil)
	require.NoError(t, err)
	return resources, results
}

func TestRunHappyPath(t *testing.T) {
	source := &stubSource{
		status: http.StatusOK,
		collections: []kb.Collection{
			{ID: "col-a", Title: "Alpha", DownloadLink: "https://kb.example.org/a.txt"},
			{ID: "col-b", Title: "Beta", DownloadLink: "https://kb.example.org/b.txt"},
		},
		resources: map[string][]kb.Resource{
			"col-a": {
				{CollectionID: "col-a", ResourceID: "a1", Title: "A1", Link: "https://a.example.com/1"},
				{CollectionID: "col-a", ResourceID: "a2", Title: "A2", Link: "https://a.example.com/2"},
			},
			"col-b": {
				{CollectionID: "col-b", ResourceID: "b1", Title: "B1", Link: "https://b.example.com/1"},
			},
		},
	}
	prober := &stubProber{codes: map[string]int{
		"https://a.example.com/1": http.StatusOK,
		"https://a.example.com/2": http.StatusNotFound,
		"https://b.example.com/1": http.StatusOK,
	}}
	resources, results := openStores(t)
	emitter := &recordingEmitter{}

	r := NewRunner(source, prober, resources, results, emitter, 4, zap.NewNop())
	judgements, err := r.Run(context.Background(), 0.5)

	require.NoError(t, err)
	assert.Equal(t, StateDone, r.State())
	assert.Equal(t, 3, resources.Count())
	assert.Equal(t, 3, results.Count())
	assert.True(t, prober.closed)

	require.Len(t, judgements, 2)
	assert.Equal(t, "col-a", judgements[0].CollectionID)
	assert.Equal(t, 1, judgements[0].BrokenCount)
	assert.Equal(t, 2, judgements[0].TotalCount)
	assert.InDelta(t, 0.5, judgements[0].BrokenRatio, 1e-9)
	assert.True(t, judgements[0].Exceeded)

	assert.Equal(t, "col-b", judgements[1].CollectionID)
	assert.Zero(t, judgements[1].BrokenCount)
	assert.False(t, judgements[1].Exceeded)

	ends := emitter.messages(progress.StageDiscover, progress.KindEnd)
	require.Len(t, ends, 1)
	assert.Equal(t, "Search complete. Found 3 online resource(s) across 2 collection(s).", ends[0])

	checkEnds := emitter.messages(progress.StageCheck, progress.KindEnd)
	require.Len(t, checkEnds, 1)
	assert.Equal(t, "Check complete.", checkEnds[0])

	analyzeEnds := emitter.messages(progress.StageAnalyze, progress.KindEnd)
	require.Len(t, analyzeEnds, 1)
	assert.Equal(t, "Analysis complete. 1 collection(s) exceeded the failure threshold.", analyzeEnds[0])

	broken := emitter.messages(progress.StageAnalyze, progress.KindProgress)
	require.Len(t, broken, 1)
	assert.Equal(t, "50.0% (1 / 2) of links in collection col-a could not be accessed.", broken[0])
}

func TestRunCredentialFailure(t *testing.T) {
	source := &stubSource{status: http.StatusUnauthorized}
	prober := &stubProber{}
	resources, results := openStores(t)
	emitter := &recordingEmitter{}

	r := NewRunner(source, prober, resources, results, emitter, 1, zap.NewNop())
	judgements, err := r.Run(context.Background(), 0.5)

	require.ErrorIs(t, err, ErrRunFailed)
	assert.Nil(t, judgements)
	assert.Equal(t, StateFailed, r.State())
	assert.Zero(t, results.Count())
	assert.Empty(t, prober.probed)

	failures := emitter.messages(progress.StageDiscover, progress.KindFailure)
	require.Len(t, failures, 1)
	assert.Equal(t, "Failed to retrieve online resources: the API key was invalid.", failures[0])
	assert.Empty(t, emitter.messages(progress.StageCheck, progress.KindStart))
	assert.Empty(t, emitter.messages(progress.StageAnalyze, progress.KindStart))
}

func TestRunConnectivityFailure(t *testing.T) {
	source := &stubSource{status: fetch.SentinelStatus}
	prober := &stubProber{}
	resources, results := openStores(t)
	emitter := &recordingEmitter{}

	r := NewRunner(source, prober, resources, results, emitter, 1, zap.NewNop())
	_, err := r.Run(context.Background(), 0.5)

	require.ErrorIs(t, err, ErrRunFailed)
	assert.Equal(t, StateFailed, r.State())
	failures := emitter.messages(progress.StageDiscover, progress.KindFailure)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "could not connect")
}

func TestRunSkipsLinklessResources(t *testing.T) {
	source := &stubSource{
		status:      http.StatusOK,
		collections: []kb.Collection{{ID: "col-a", Title: "Alpha", DownloadLink: "https://kb.example.org/a.txt"}},
		resources: map[string][]kb.Resource{
			"col-a": {
				{CollectionID: "col-a", ResourceID: "a1", Title: "A1", Link: "https://a.example.com/1"},
				{CollectionID: "col-a"},
			},
		},
	}
	prober := &stubProber{codes: map[string]int{"https://a.example.com/1": http.StatusOK}}
	resources, results := openStores(t)

	r := NewRunner(source, prober, resources, results, nil, 1, zap.NewNop())
	_, err := r.Run(context.Background(), 0.5)

	require.NoError(t, err)
	assert.Equal(t, 1, resources.Count())
	assert.Equal(t, 1, results.Count())
}

func TestRunSentinelProbesCountAsBroken(t *testing.T) {
	source := &stubSource{
		status:      http.StatusOK,
		collections: []kb.Collection{{ID: "col-a", Title: "Alpha", DownloadLink: "https://kb.example.org/a.txt"}},
		resources: map[string][]kb.Resource{
			"col-a": {{CollectionID: "col-a", ResourceID: "a1", Title: "A1", Link: "https://unreachable.example.com/x"}},
		},
	}
	prober := &stubProber{}
	resources, results := openStores(t)

	r := NewRunner(source, prober, resources, results, nil, 1, zap.NewNop())
	judgements, err := r.Run(context.Background(), 1.0)

	require.NoError(t, err)
	require.Len(t, judgements, 1)
	assert.Equal(t, 1, judgements[0].BrokenCount)
	assert.InDelta(t, 1.0, judgements[0].BrokenRatio, 1e-9)
	assert.True(t, judgements[0].Exceeded)
}

func TestRunThresholdZeroReportsHealthyCollections(t *testing.T) {
	source := &stubSource{
		status:      http.StatusOK,
		collections: []kb.Collection{{ID: "col-a", Title: "Alpha", DownloadLink: "https://kb.example.org/a.txt"}},
		resources: map[string][]kb.Resource{
			"col-a": {{CollectionID: "col-a", ResourceID: "a1", Title: "A1", Link: "https://a.example.com/1"}},
		},
	}
	prober := &stubProber{codes: map[string]int{"https://a.example.com/1": http.StatusOK}}
	resources, results := openStores(t)

	r := NewRunner(source, prober, resources, results, nil, 1, zap.NewNop())
	judgements, err := r.Run(context.Background(), 0)

	require.NoError(t, err)
	require.Len(t, judgements, 1)
	assert.Zero(t, judgements[0].BrokenCount)
	assert.True(t, judgements[0].Exceeded)
}

func TestCheckProgressMessages(t *testing.T) {
	source := &stubSource{
		status:      http.StatusOK,
		collections: []kb.Collection{{ID: "col-a", Title: "Alpha", DownloadLink: "https://kb.example.org/a.txt"}},
		resources: map[string][]kb.Resource{
			"col-a": {
				{CollectionID: "col-a", ResourceID: "a1", Title: "A1", Link: "https://a.example.com/1"},
				{CollectionID: "col-a", ResourceID: "a2", Title: "A2", Link: "https://a.example.com/2"},
			},
		},
	}
	prober := &stubProber{codes: map[string]int{
		"https://a.example.com/1": http.StatusOK,
		"https://a.example.com/2": http.StatusOK,
	}}
	resources, results := openStores(t)
	emitter := &recordingEmitter{}

	r := NewRunner(source, prober, resources, results, emitter, 2, zap.NewNop())
	_, err := r.Run(context.Background(), 0.5)
	require.NoError(t, err)

	starts := emitter.messages(progress.StageCheck, progress.KindStart)
	require.Len(t, starts, 1)
	assert.Equal(t, "Identified 2 links.", starts[0])

	msgs := emitter.messages(progress.StageCheck, progress.KindProgress)
	assert.Contains(t, msgs, "Checked 2 / 2 links.")
}

func TestUpdateClients(t *testing.T) {
	source := &stubSource{status: http.StatusOK}
	prober := &stubProber{}
	resources, results := openStores(t)

	r := NewRunner(source, prober, resources, results, nil, 1, zap.NewNop())
	r.UpdateClients("fresh-key", []string{"example.com"}, true)

	assert.Equal(t, "fresh-key", source.key)
	assert.Equal(t, []string{"example.com"}, prober.ignorelist)
	assert.True(t, prober.domainsOnly)
}

func TestCollectionTitleTrimmedInMessages(t *testing.T) {
	source := &stubSource{
		status:      http.StatusOK,
		collections: []kb.Collection{{ID: "col-a", Title: "  Alpha  ", DownloadLink: "https://kb.example.org/a.txt"}},
		resources:   map[string][]kb.Resource{"col-a": {}},
	}
	resources, results := openStores(t)
	emitter := &recordingEmitter{}

	r := NewRunner(source, &stubProber{}, resources, results, emitter, 1, zap.NewNop())
	_, err := r.Run(context.Background(), 0.5)
	require.NoError(t, err)

	msgs := emitter.messages(progress.StageDiscover, progress.KindProgress)
	require.Len(t, msgs, 1)
	assert.True(t, strings.HasSuffix(msgs[0], "for collection Alpha."))
}

func TestRecordRoundTrip(t *testing.T) {
	res := kb.Resource{CollectionID: "c", ResourceID: "r", Title: "T", Link: "https://example.com"}
	assert.Equal(t, res, resourceFromRecord(resourceRecord(res)))

	got, code := resultFromRecord(resultRecord(res, 404))
	assert.Equal(t, res, got)
	assert.Equal(t, 404, code)

	_, code = resultFromRecord(store.Record{"c", "r", "T", "https://example.com", "not-a-number"})
	assert.Equal(t, -1, code)

	short, code := resultFromRecord(store.Record{"c"})
	assert.Equal(t, "c", short.CollectionID)
	assert.Equal(t, -1, code)
}
