package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atoombs-lib/kb-linkcheck/internal/fetch"
	"github.com/atoombs-lib/kb-linkcheck/internal/kb"
	"github.com/atoombs-lib/kb-linkcheck/internal/progress"
	"github.com/atoombs-lib/kb-linkcheck/internal/store"
)

// ErrRunFailed is returned by Run when the discovery stage could not reach
// the knowledge-base API or the credential was rejected.
var ErrRunFailed = errors.New("pipeline run failed")

// Source yields collections and their online resources from the
// knowledge-base API.
type Source interface {
	ConnectionTest(ctx context.Context) int
	Collections(ctx context.Context) []kb.Collection
	Resources(ctx context.Context, col kb.Collection) []kb.Resource
	SetKey(key string)
}

// Prober issues the politeness-aware HEAD probes of the check stage.
type Prober interface {
	Head(ctx context.Context, rawURL string) fetch.Response
	SetIgnorelist(domains []string)
	SetDomainsOnly(v bool)
	Close()
}

// Judgement is the per-collection outcome of the analysis stage.
type Judgement struct {
	CollectionID string
	BrokenCount  int
	TotalCount   int
	BrokenRatio  float64
	Exceeded     bool
}

// Runner drives the three stages of a link-checking run against a pair of
// on-disk record stores, reporting progress through an emitter.
type Runner struct {
	source    Source
	prober    Prober
	resources *store.Store
	results   *store.Store
	emitter   progress.Emitter
	logger    *zap.Logger

	checkConcurrency int

	mu    sync.Mutex
	state State
	runID uuid.UUID
}

// NewRunner wires a runner. checkConcurrency bounds in-flight probes during
// the check stage; values below one fall back to serial checking.
func NewRunner(source Source, prober Prober, resources, results *store.Store, emitter progress.Emitter, checkConcurrency int, logger *zap.Logger) *Runner {
	if emitter == nil {
		emitter = progress.Nop{}
	}
	if checkConcurrency < 1 {
		checkConcurrency = 1
	}
	return &Runner{
		source:           source,
		prober:           prober,
		resources:        resources,
		results:          results,
		emitter:          emitter,
		logger:           logger,
		checkConcurrency: checkConcurrency,
		state:            StateIdle,
	}
}

// State reports the current run state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// UpdateClients pushes fresh settings into the source and prober before a
// run, so saved configuration edits take effect without rebuilding them.
func (r *Runner) UpdateClients(key string, ignorelist []string, domainsOnly bool) {
	r.source.SetKey(key)
	r.prober.SetIgnorelist(ignorelist)
	r.prober.SetDomainsOnly(domainsOnly)
}

// Run executes discover, check and analyze in order. A discovery failure
// moves the runner to Failed, skips the later stages and returns ErrRunFailed.
func (r *Runner) Run(ctx context.Context, threshold float64) ([]Judgement, error) {
	r.mu.Lock()
	r.runID = uuid.New()
	r.state = StateDiscovering
	r.mu.Unlock()

	if !r.discover(ctx) {
		r.setState(StateFailed)
		return nil, ErrRunFailed
	}

	r.setState(StateChecking)
	r.check(ctx)

	r.setState(StateAnalyzing)
	judgements := r.analyze(threshold)

	r.setState(StateDone)
	return judgements, nil
}

func (r *Runner) emit(stage progress.Stage, kind progress.Kind, message string) {
	r.mu.Lock()
	id := r.runID
	r.mu.Unlock()
	r.emitter.Emit(progress.Event{
		RunID:   id,
		TS:      time.Now(),
		Stage:   stage,
		Kind:    kind,
		Message: message,
	})
}

func (r *Runner) discover(ctx context.Context) bool {
	r.emit(progress.StageDiscover, progress.KindStart, "Searching for resources. Please do not exit until the search completes.")

	switch code := r.source.ConnectionTest(ctx); code {
	case 200:
	case 401:
		r.logger.Warn("knowledge-base credential rejected")
		r.emit(progress.StageDiscover, progress.KindFailure, "Failed to retrieve online resources: the API key was invalid.")
		return false
	default:
		r.logger.Warn("knowledge-base endpoint unreachable", zap.Int("status", code))
		r.emit(progress.StageDiscover, progress.KindFailure, "Failed to retrieve online resources: could not connect to the knowledge-base API endpoint.")
		return false
	}

	collections := r.source.Collections(ctx)

	var (
		counterMu sync.Mutex
		total     int
	)
	var g errgroup.Group
	for _, col := range collections {
		col := col
		g.Go(func() error {
			cached := 0
			for _, res := range r.source.Resources(ctx, col) {
				if res.IsEmpty() {
					continue
				}
				if err := r.resources.Append(resourceRecord(res)); err != nil {
					r.logger.Warn("caching resource failed", zap.String("resource", res.ResourceID), zap.Error(err))
					continue
				}
				cached++
			}
			counterMu.Lock()
			total += cached
			counterMu.Unlock()
			r.emit(progress.StageDiscover, progress.KindProgress,
				fmt.Sprintf("Cached %d online resources for collection %s.", cached, strings.TrimSpace(col.Title)))
			return nil
		})
	}
	_ = g.Wait()

	r.emit(progress.StageDiscover, progress.KindEnd,
		fmt.Sprintf("Search complete. Found %d online resource(s) across %d collection(s).", total, len(collections)))
	return true
}

func (r *Runner) check(ctx context.Context) {
	total := r.resources.Count()
	r.emit(progress.StageCheck, progress.KindStart, fmt.Sprintf("Identified %d links.", total))
	r.emit(progress.StageCheck, progress.KindProgress, "Checking links. Please do not exit until the check completes.")

	records, err := r.resources.Stream(true)
	if err != nil {
		r.logger.Warn("reading resource cache failed", zap.Error(err))
	}

	var (
		counterMu sync.Mutex
		checked   int
	)
	var g errgroup.Group
	g.SetLimit(r.checkConcurrency)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			res := resourceFromRecord(rec)
			resp := r.prober.Head(ctx, res.Link)
			if err := r.results.Append(resultRecord(res, resp.StatusCode)); err != nil {
				r.logger.Warn("caching result failed", zap.String("resource", res.ResourceID), zap.Error(err))
			}
			counterMu.Lock()
			checked++
			n := checked
			counterMu.Unlock()
			r.emit(progress.StageCheck, progress.KindProgress, fmt.Sprintf("Checked %d / %d links.", n, total))
			return nil
		})
	}
	_ = g.Wait()
	r.prober.Close()

	r.emit(progress.StageCheck, progress.KindEnd, "Check complete.")
}

func (r *Runner) analyze(threshold float64) []Judgement {
	r.emit(progress.StageAnalyze, progress.KindStart, "Calculating percentages. This may take a while.")

	records, err := r.results.Stream(false)
	if err != nil {
		r.logger.Warn("reading results cache failed", zap.Error(err))
	}

	type tally struct {
		total  int
		broken int
	}
	grouped := make(map[string]*tally)
	for _, rec := range records {
		res, code := resultFromRecord(rec)
		t := grouped[res.CollectionID]
		if t == nil {
			t = &tally{}
			grouped[res.CollectionID] = t
		}
		t.total++
		if code != 200 {
			t.broken++
		}
	}

	ids := make([]string, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	judgements := make([]Judgement, 0, len(ids))
	exceeded := 0
	for _, id := range ids {
		t := grouped[id]
		ratio := 0.0
		if t.total > 0 {
			ratio = math.Round(float64(t.broken)/float64(t.total)*100) / 100
		}
		j := Judgement{
			CollectionID: id,
			BrokenCount:  t.broken,
			TotalCount:   t.total,
			BrokenRatio:  ratio,
			Exceeded:     ratio >= threshold,
		}
		if j.Exceeded {
			exceeded++
			r.emit(progress.StageAnalyze, progress.KindProgress,
				fmt.Sprintf("%.1f%% (%d / %d) of links in collection %s could not be accessed.", ratio*100, t.broken, t.total, id))
		}
		judgements = append(judgements, j)
	}

	r.emit(progress.StageAnalyze, progress.KindEnd,
		fmt.Sprintf("Analysis complete. %d collection(s) exceeded the failure threshold.", exceeded))
	return judgements
}
