// Package processor coordinates batch ingestion: per-task accumulation
// across partial batches, bounded-concurrency page matching, validation
// gating, and final persistence of the audit record.
package processor

import (
	"sort"
	"sync"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domain"
)

const defaultSnippetCap = 1 << 20

// BatchAccumulator holds the running totals for one in-flight task. All
// mutation goes through the store, which owns the locking.
type BatchAccumulator struct {
	TaskID  string
	MainURL string

	totalPages   int
	totalMatches int
	categories   map[string]struct{}
	keywords     []string
	keywordSeen  map[string]struct{}
	subURLs      []string
	subURLSeen   map[string]struct{}
	matchSeen    map[string]struct{}
	upiMap       map[string]map[string]struct{}
	snippets     []byte
	snippetCap   int
	snippetsLost int
}

func newAccumulator(taskID, mainURL string, snippetCap int) *BatchAccumulator {
	if snippetCap <= 0 {
		snippetCap = defaultSnippetCap
	}
	return &BatchAccumulator{
		TaskID:      taskID,
		MainURL:     mainURL,
		categories:  make(map[string]struct{}),
		keywordSeen: make(map[string]struct{}),
		subURLSeen:  make(map[string]struct{}),
		matchSeen:   make(map[string]struct{}),
		upiMap:      make(map[string]map[string]struct{}),
		snippetCap:  snippetCap,
	}
}

// pageResult is what one processed page folds into the accumulator.
type pageResult struct {
	subURL     string
	candidates []domain.MatchCandidate
}

func (a *BatchAccumulator) fold(res pageResult) {
	a.totalPages++

	if _, ok := a.subURLSeen[res.subURL]; !ok {
		a.subURLSeen[res.subURL] = struct{}{}
		a.subURLs = append(a.subURLs, res.subURL)
	}

	for _, cand := range res.candidates {
		// A page seen twice in one task contributes each keyword once.
		matchKey := res.subURL + "\x00" + cand.Term
		if _, dup := a.matchSeen[matchKey]; dup {
			continue
		}
		a.matchSeen[matchKey] = struct{}{}

		a.totalMatches++
		a.categories[cand.Category] = struct{}{}

		if _, ok := a.keywordSeen[cand.Term]; !ok {
			a.keywordSeen[cand.Term] = struct{}{}
			a.keywords = append(a.keywords, cand.Term)
		}

		if cand.Category == domain.CategoryPayments &&
			(cand.Source == domain.SourceContext || cand.Source == domain.SourceQR) {
			a.recordUPI(cand.Term, res.subURL)
		}

		a.appendSnippet(cand.Snippet)
	}
}

// recordUPI aggregates payment handles against the domains they appeared on.
func (a *BatchAccumulator) recordUPI(handle, subURL string) {
	dom := domain.Domain(subURL)
	if dom == "" {
		return
	}
	bucket, ok := a.upiMap[handle]
	if !ok {
		bucket = make(map[string]struct{})
		a.upiMap[handle] = bucket
	}
	bucket[dom] = struct{}{}
}

// appendSnippet concatenates snippets up to the byte cap. Overflow is
// dropped and counted; hits keep their own full snippets in Postgres.
func (a *BatchAccumulator) appendSnippet(snippet string) {
	if snippet == "" {
		return
	}
	needed := len(snippet)
	if len(a.snippets) > 0 {
		needed++
	}
	if len(a.snippets)+needed > a.snippetCap {
		a.snippetsLost++
		return
	}
	if len(a.snippets) > 0 {
		a.snippets = append(a.snippets, '\n')
	}
	a.snippets = append(a.snippets, snippet...)
}

func (a *BatchAccumulator) categoryList() []string {
	out := make([]string, 0, len(a.categories))
	for c := range a.categories {
		out = append(out, c)
	}
	return out
}

// Snapshot renders the current totals as a summary.
func (a *BatchAccumulator) Snapshot(status string) *domain.TaskSummary {
	return &domain.TaskSummary{
		TaskID:       a.TaskID,
		MainURL:      a.MainURL,
		TotalPages:   a.totalPages,
		TotalMatches: a.totalMatches,
		Categories:   a.categoryList(),
		Status:       status,
	}
}

// Record renders the totals as the persistable audit record.
func (a *BatchAccumulator) Record() *domain.ResultRecord {
	upiMap := make(map[string][]string, len(a.upiMap))
	for handle, domains := range a.upiMap {
		list := make([]string, 0, len(domains))
		for d := range domains {
			list = append(list, d)
		}
		sort.Strings(list)
		upiMap[handle] = list
	}

	return &domain.ResultRecord{
		MainURL:      a.MainURL,
		TaskID:       a.TaskID,
		SubURLs:      append([]string(nil), a.subURLs...),
		Keywords:     append([]string(nil), a.keywords...),
		Categories:   a.categoryList(),
		UPIMap:       upiMap,
		Snippets:     string(a.snippets),
		TotalPages:   a.totalPages,
		TotalMatches: a.totalMatches,
	}
}

// AccumulatorStore owns the per-task accumulators.
type AccumulatorStore struct {
	mu         sync.Mutex
	tasks      map[string]*BatchAccumulator
	snippetCap int
}

// NewAccumulatorStore creates a store with the given per-task snippet cap.
func NewAccumulatorStore(snippetCap int) *AccumulatorStore {
	return &AccumulatorStore{
		tasks:      make(map[string]*BatchAccumulator),
		snippetCap: snippetCap,
	}
}

// Reset discards any prior state for the task and starts fresh. Called for
// batch 1 so a re-run does not inherit a crashed run's partial totals.
func (s *AccumulatorStore) Reset(taskID, mainURL string) {
	s.mu.Lock()
	s.tasks[taskID] = newAccumulator(taskID, mainURL, s.snippetCap)
	s.mu.Unlock()
}

// Fold merges one page's results into the task's accumulator, creating it
// on demand for continuation batches after a restart.
func (s *AccumulatorStore) Fold(taskID, mainURL string, res pageResult) {
	s.mu.Lock()
	acc, ok := s.tasks[taskID]
	if !ok {
		acc = newAccumulator(taskID, mainURL, s.snippetCap)
		s.tasks[taskID] = acc
	}
	acc.fold(res)
	s.mu.Unlock()
}

// Snapshot returns the in-flight summary for a task, or nil if unknown.
func (s *AccumulatorStore) Snapshot(taskID string) *domain.TaskSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.tasks[taskID]
	if !ok {
		return nil
	}
	return acc.Snapshot(domain.StatusProcessing)
}

// Finalize removes the task and returns its accumulator for persistence.
func (s *AccumulatorStore) Finalize(taskID string) *BatchAccumulator {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.tasks[taskID]
	if !ok {
		return nil
	}
	delete(s.tasks, taskID)
	return acc
}

// Len returns the number of in-flight tasks.
func (s *AccumulatorStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
