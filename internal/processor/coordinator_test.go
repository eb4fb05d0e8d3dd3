package processor_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/content"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domain"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/logger"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/processor"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/rules"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/telemetry"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/validate"
)

type memRecorder struct {
	mu     sync.Mutex
	hits   []domain.ValidatedHit
	resets []string
	done   []string
}

func (r *memRecorder) RecordHit(_ context.Context, hit domain.ValidatedHit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits = append(r.hits, hit)
}

func (r *memRecorder) ResetTask(mainURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets = append(r.resets, mainURL)
}

func (r *memRecorder) FinishTask(mainURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = append(r.done, mainURL)
}

type memResults struct {
	mu      sync.Mutex
	records []*domain.ResultRecord
	err     error
}

func (m *memResults) Upsert(_ context.Context, rec *domain.ResultRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

type memIndexer struct {
	mu        sync.Mutex
	summaries []*domain.TaskSummary
}

func (m *memIndexer) IndexTaskSummary(_ context.Context, summary *domain.TaskSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, summary)
}

type nopPolicy struct{}

func (nopPolicy) MarkSeen(context.Context, string)               {}
func (nopPolicy) MarkRenderSuccess(context.Context, string)      {}
func (nopPolicy) ShouldForceRender(context.Context, string) bool { return false }

type fixture struct {
	coord    *processor.Coordinator
	recorder *memRecorder
	results  *memResults
	indexer  *memIndexer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	corpus := []domain.Rule{
		{Term: "weed", Category: "narcotics", Patterns: []string{`\bbuy\s+weed\b`}, Aliases: []string{"ganja"}},
		{Term: "casino", Category: "gambling", Patterns: []string{`\bcasino\b`}},
	}
	metrics := telemetry.NewWith(prometheus.NewRegistry())
	engine := rules.NewEngine(corpus, logger.NewNop())
	pipeline := processor.NewPipeline(
		content.NewExtractor(8), engine, nil, nil, nopPolicy{}, nil, 200,
		metrics, logger.NewNop())

	recorder := &memRecorder{}
	results := &memResults{}
	indexer := &memIndexer{}
	gate := validate.New(validate.Config{}, nil, logger.NewNop())
	store := processor.NewAccumulatorStore(0)
	coord := processor.NewCoordinator(
		store, pipeline, gate, recorder, results, indexer,
		4, 2, metrics, logger.NewNop())

	return &fixture{coord: coord, recorder: recorder, results: results, indexer: indexer}
}

func page(url, body string) domain.PageRecord {
	return domain.PageRecord{
		URL:  url,
		HTML: "<html><body><p>" + body + "</p></body></html>",
	}
}

func TestIngestSingleCompleteBatch(t *testing.T) {
	f := newFixture(t)

	summary := f.coord.Ingest(context.Background(), &domain.PageBatch{
		TaskID:     "task-1",
		MainURL:    "https://shop.example",
		BatchNum:   1,
		IsComplete: true,
		Pages: []domain.PageRecord{
			page("https://shop.example/drugs", "come buy weed today and tomorrow ganja available"),
			page("https://shop.example/clean", "nothing to see here at all beyond ordinary words"),
		},
	})

	assert.Equal(t, domain.StatusCompleted, summary.Status)
	assert.Equal(t, 2, summary.TotalPages)
	assert.Equal(t, 2, summary.TotalMatches)
	assert.Contains(t, summary.Categories, "narcotics")

	require.Len(t, f.results.records, 1)
	rec := f.results.records[0]
	assert.Equal(t, "task-1", rec.TaskID)
	assert.Len(t, rec.SubURLs, 2)
	assert.Contains(t, rec.Keywords, "weed")
	assert.NotEmpty(t, rec.Snippets)

	require.Len(t, f.indexer.summaries, 1)
	assert.Equal(t, []string{"https://shop.example"}, f.recorder.done)
	assert.Nil(t, f.coord.TaskSnapshot("task-1"))
}

func TestIngestMultiBatchAccumulates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.coord.Ingest(ctx, &domain.PageBatch{
		TaskID:   "task-1",
		MainURL:  "https://shop.example",
		BatchNum: 1,
		Pages: []domain.PageRecord{
			page("https://shop.example/a", "come buy weed today"),
		},
	})
	assert.Equal(t, domain.StatusProcessing, first.Status)
	assert.Equal(t, 1, first.TotalPages)
	assert.Equal(t, 1, f.coord.InflightCount())

	snapshot := f.coord.TaskSnapshot("task-1")
	require.NotNil(t, snapshot)
	assert.Equal(t, 1, snapshot.TotalMatches)

	final := f.coord.Ingest(ctx, &domain.PageBatch{
		TaskID:     "task-1",
		MainURL:    "https://shop.example",
		BatchNum:   2,
		IsComplete: true,
		Pages: []domain.PageRecord{
			page("https://shop.example/b", "play casino games online tonight"),
		},
	})

	assert.Equal(t, domain.StatusCompleted, final.Status)
	assert.Equal(t, 2, final.TotalPages)
	assert.Equal(t, 2, final.TotalMatches)
	assert.ElementsMatch(t, []string{"narcotics", "gambling"}, final.Categories)
	assert.Zero(t, f.coord.InflightCount())
}

func TestBatchOneResetsPriorState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.coord.Ingest(ctx, &domain.PageBatch{
		TaskID:   "task-1",
		MainURL:  "https://shop.example",
		BatchNum: 1,
		Pages:    []domain.PageRecord{page("https://shop.example/a", "come buy weed today")},
	})

	// A crashed producer restarts the task from batch 1.
	summary := f.coord.Ingest(ctx, &domain.PageBatch{
		TaskID:     "task-1",
		MainURL:    "https://shop.example",
		BatchNum:   1,
		IsComplete: true,
		Pages:      []domain.PageRecord{page("https://shop.example/a", "come buy weed today")},
	})

	assert.Equal(t, 1, summary.TotalPages)
	assert.Equal(t, 1, summary.TotalMatches)
	assert.Len(t, f.recorder.resets, 2)
}

func TestCandidatesCountedEvenWhenGateFilters(t *testing.T) {
	corpus := []domain.Rule{
		{Term: "weed", Category: "narcotics", Patterns: []string{`\bbuy\s+weed\b`}},
	}
	metrics := telemetry.NewWith(prometheus.NewRegistry())
	engine := rules.NewEngine(corpus, logger.NewNop())
	pipeline := processor.NewPipeline(
		content.NewExtractor(8), engine, nil, nil, nopPolicy{}, nil, 200,
		metrics, logger.NewNop())

	recorder := &memRecorder{}
	results := &memResults{}
	gate := validate.New(
		validate.Config{Enabled: true, Threshold: 0.55},
		lowScorer{}, logger.NewNop())
	coord := processor.NewCoordinator(
		processor.NewAccumulatorStore(0), pipeline, gate, recorder, results, nil,
		4, 2, metrics, logger.NewNop())

	summary := coord.Ingest(context.Background(), &domain.PageBatch{
		TaskID:     "task-1",
		MainURL:    "https://shop.example",
		BatchNum:   1,
		IsComplete: true,
		Pages:      []domain.PageRecord{page("https://shop.example/a", "come buy weed today")},
	})

	// The candidate counts toward the audit record but never becomes a hit.
	assert.Equal(t, 1, summary.TotalMatches)
	assert.Empty(t, recorder.hits)
	require.Len(t, results.records, 1)
	assert.Equal(t, 1, results.records[0].TotalMatches)
}

type lowScorer struct{}

func (lowScorer) Score(context.Context, string, string, string) (float64, error) {
	return 0.1, nil
}

func TestUpsertFailureStillReturnsSummary(t *testing.T) {
	f := newFixture(t)
	f.results.err = fmt.Errorf("connection refused")

	summary := f.coord.Ingest(context.Background(), &domain.PageBatch{
		TaskID:     "task-1",
		MainURL:    "https://shop.example",
		BatchNum:   1,
		IsComplete: true,
		Pages:      []domain.PageRecord{page("https://shop.example/a", "come buy weed today")},
	})

	assert.Equal(t, domain.StatusCompleted, summary.Status)
	assert.Equal(t, 1, summary.TotalMatches)
}

func TestValidatedHitCarriesGatedConfidence(t *testing.T) {
	f := newFixture(t)

	f.coord.Ingest(context.Background(), &domain.PageBatch{
		TaskID:     "task-1",
		MainURL:    "https://shop.example",
		BatchNum:   1,
		IsComplete: true,
		Pages:      []domain.PageRecord{page("https://shop.example/a", "come buy weed today")},
	})

	require.Len(t, f.recorder.hits, 1)
	hit := f.recorder.hits[0]
	assert.Equal(t, "weed", hit.MatchedKeyword)
	assert.Equal(t, domain.SourceRegex, hit.Source)
	// A disabled gate passes the matcher's confidence through unchanged.
	assert.InDelta(t, 1.0, hit.Confidence, 0.001)
}
