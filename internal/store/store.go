// Package store implements C2, the durable queue table. Rows are held in
// memory as queueitem.Item values and persisted to a single Apache Parquet
// file, following the same "small table round-tripped through a columnar
// format" shape as the original implementation's pandas
// read_parquet/to_parquet pair (original_source's
// priority_queue/models/database.py).
package store

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/macq/tomtom-priority-queue/internal/queueitem"
)

// Store is the in-memory, Parquet-backed queue table. It is not safe for
// concurrent use from multiple goroutines without external synchronization
// beyond what's documented per-method; the daemon owns one Store instance for
// its whole lifetime and queuectl one per invocation (spec.md §9,
// "singleton store" design note).
type Store struct {
	mu   sync.Mutex
	path string
	rows map[string]*queueitem.Item
}

// Open returns a Store backed by path (typically <home>/db.parquet), having
// already run load().
func Open(path string) (*Store, error) {
	s := &Store{
		path: path,
		rows: make(map[string]*queueitem.Item),
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads the on-disk table into memory, replacing whatever was there.
// If the file is absent, the store initializes empty -- this is the normal
// first-run state, not an error.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() error {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		s.rows = make(map[string]*queueitem.Item)
		return nil
	}

	items, err := readTable(s.path)
	if err != nil {
		return fmt.Errorf("loading queue table from %s: %w", s.path, err)
	}

	rows := make(map[string]*queueitem.Item, len(items))
	for _, item := range items {
		rows[item.UID] = item
	}
	s.rows = rows
	return nil
}

// Flush persists the current in-memory table. Per spec.md §4.2 this must be
// read-modify-merge-write: it re-reads the on-disk table first and unions it
// with the in-memory rows, keeping the in-memory row when both sides hold the
// same uid, so a concurrent writer (another add() from the CLI while the
// daemon sleeps) never loses its row, and this process's own updates are the
// ones written.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	onDisk := make(map[string]*queueitem.Item)
	if _, err := os.Stat(s.path); err == nil {
		items, err := readTable(s.path)
		if err != nil {
			return fmt.Errorf("re-reading queue table before flush: %w", err)
		}
		for _, item := range items {
			onDisk[item.UID] = item
		}
	}

	merged := make(map[string]*queueitem.Item, len(onDisk)+len(s.rows))
	// in-memory rows go in first and win on a conflicting uid (the last
	// flush wins); on-disk rows only fill in uids this process doesn't hold.
	for uid, item := range s.rows {
		merged[uid] = item
	}
	for uid, item := range onDisk {
		if _, exists := merged[uid]; !exists {
			merged[uid] = item
		}
	}

	ordered := make([]*queueitem.Item, 0, len(merged))
	for _, item := range merged {
		ordered = append(ordered, item)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}
	if err := writeTable(s.path, ordered); err != nil {
		return fmt.Errorf("writing queue table to %s: %w", s.path, err)
	}

	s.rows = merged
	return nil
}

// Insert appends a row without flushing to disk.
func (s *Store) Insert(item *queueitem.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[item.UID] = item
}

// Upsert deletes any existing row whose uid matches one of items, then
// inserts items, optionally flushing.
func (s *Store) Upsert(items []*queueitem.Item, flush bool) error {
	s.mu.Lock()
	for _, item := range items {
		s.rows[item.UID] = item
	}
	s.mu.Unlock()

	if flush {
		return s.Flush()
	}
	return nil
}

// Next returns up to n items in IS_WAITING status, ordered by
// (priority desc, created_ts asc).
func (s *Store) Next(n int) []*queueitem.Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	waiting := make([]*queueitem.Item, 0)
	for _, item := range s.rows {
		if item.Status() == queueitem.StatusWaiting {
			waiting = append(waiting, item)
		}
	}

	sort.Slice(waiting, func(i, j int) bool {
		if waiting[i].Priority != waiting[j].Priority {
			return waiting[i].Priority > waiting[j].Priority
		}
		return waiting[i].CreatedAt.Before(waiting[j].CreatedAt)
	})

	if n < 0 || n > len(waiting) {
		n = len(waiting)
	}
	return waiting[:n]
}

// PriorityPredicate is a single relational comparison against priority,
// e.g. ">=5". Supported prefixes are <, >, <=, >=; no prefix means equality.
type PriorityPredicate struct {
	Op    string
	Value int64
}

func (p PriorityPredicate) matches(priority int64) bool {
	switch p.Op {
	case "<":
		return priority < p.Value
	case ">":
		return priority > p.Value
	case "<=":
		return priority <= p.Value
	case ">=":
		return priority >= p.Value
	default:
		return priority == p.Value
	}
}

// Filter is a conjunction-across-kinds, disjunction-within-kind query over
// the table per spec.md §4.2. A nil/empty slice for any field means "don't
// filter on this kind". Status filtering is applied against the derived
// projection, in memory, after everything else.
type Filter struct {
	UIDs               []string
	NameSubstrings     []string
	PriorityPredicates []PriorityPredicate
	Statuses           []queueitem.Status
}

// Filter returns every row matching f.
func (s *Store) Filter(f Filter) []*queueitem.Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := make([]*queueitem.Item, 0)
	for _, item := range s.rows {
		if !matchesUIDs(item, f.UIDs) {
			continue
		}
		if !matchesNames(item, f.NameSubstrings) {
			continue
		}
		if !matchesPriorities(item, f.PriorityPredicates) {
			continue
		}
		if !matchesStatuses(item, f.Statuses) {
			continue
		}
		matches = append(matches, item)
	}
	return matches
}

func matchesUIDs(item *queueitem.Item, uids []string) bool {
	if len(uids) == 0 {
		return true
	}
	for _, uid := range uids {
		if item.UID == uid {
			return true
		}
	}
	return false
}

func matchesNames(item *queueitem.Item, substrings []string) bool {
	if len(substrings) == 0 {
		return true
	}
	for _, sub := range substrings {
		if strings.Contains(item.Name, sub) {
			return true
		}
	}
	return false
}

func matchesPriorities(item *queueitem.Item, predicates []PriorityPredicate) bool {
	if len(predicates) == 0 {
		return true
	}
	for _, p := range predicates {
		if p.matches(item.Priority) {
			return true
		}
	}
	return false
}

func matchesStatuses(item *queueitem.Item, statuses []queueitem.Status) bool {
	if len(statuses) == 0 {
		return true
	}
	status := item.Status()
	for _, want := range statuses {
		if status == want {
			return true
		}
	}
	return false
}

// Metrics is the result of Describe: totals by status, plus distribution
// stats on completion time for non-error completed items.
type Metrics struct {
	TotalByStatus map[queueitem.Status]int

	// CompletionMinutes* are zero when there are no non-error completed
	// items to measure.
	CompletionMinutesMin    float64
	CompletionMinutesAvg    float64
	CompletionMinutesMax    float64
	CompletionMinutesStdDev float64
}

// Describe computes Metrics without ever flushing -- per spec.md §9's
// "describe() mutates completed rows" open question, this only reads the
// in-memory rows, never modifies them, and never writes.
func (s *Store) Describe() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	metrics := Metrics{TotalByStatus: make(map[queueitem.Status]int)}
	var durations []float64

	for _, item := range s.rows {
		status := item.Status()
		metrics.TotalByStatus[status]++

		if status == queueitem.StatusCompleted && item.SubmittedAt != nil && item.CompletedAt != nil {
			durations = append(durations, item.CompletedAt.Sub(*item.SubmittedAt).Minutes())
		}
	}

	if len(durations) == 0 {
		return metrics
	}

	min, max, sum := durations[0], durations[0], 0.0
	for _, d := range durations {
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
		sum += d
	}
	avg := sum / float64(len(durations))

	var variance float64
	for _, d := range durations {
		variance += (d - avg) * (d - avg)
	}
	variance /= float64(len(durations))

	metrics.CompletionMinutesMin = min
	metrics.CompletionMinutesAvg = avg
	metrics.CompletionMinutesMax = max
	metrics.CompletionMinutesStdDev = sqrt(variance)
	return metrics
}

// Purge drops every row and removes the on-disk table file. It does not
// touch the payload directory; callers needing that (internal/admin) do it
// separately, since C2 only owns the table.
func (s *Store) Purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = make(map[string]*queueitem.Item)
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing queue table %s: %w", s.path, err)
	}
	return nil
}

// Get returns a single row by uid, or nil if absent.
func (s *Store) Get(uid string) *queueitem.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[uid]
}

func sqrt(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}
