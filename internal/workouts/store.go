package workouts

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/2beens/healthstats/internal/healthexport"
)

// Store is the in-memory record store: an ordered collection of workout
// records in document order. Load replaces the whole content atomically,
// so readers always observe either the previous or the new snapshot,
// never a half-populated one. Records are read-only after load.
type Store struct {
	snapshot atomic.Pointer[storeSnapshot]
}

type storeSnapshot struct {
	records  []healthexport.Workout
	partial  bool
	loadedAt time.Time
}

func NewStore() *Store {
	s := &Store{}
	s.snapshot.Store(&storeSnapshot{})
	return s
}

// Load replaces the store content wholesale. partial marks the snapshot as
// coming from an extraction that failed partway through.
func (s *Store) Load(records []healthexport.Workout, partial bool) {
	s.snapshot.Store(&storeSnapshot{
		records:  records,
		partial:  partial,
		loadedAt: time.Now(),
	})
}

// All returns the records in document order. The returned slice must be
// treated as read-only.
func (s *Store) All() []healthexport.Workout {
	return s.snapshot.Load().records
}

func (s *Store) Count() int {
	return len(s.snapshot.Load().records)
}

// Partial reports whether the current snapshot came from a partial load.
func (s *Store) Partial() bool {
	return s.snapshot.Load().partial
}

func (s *Store) LoadedAt() time.Time {
	return s.snapshot.Load().loadedAt
}

// ActivityTypes returns the distinct activity types present, sorted.
func (s *Store) ActivityTypes() []string {
	records := s.All()
	seen := make(map[string]struct{})
	var types []string
	for _, w := range records {
		if w.ActivityType == "" {
			continue
		}
		if _, ok := seen[w.ActivityType]; !ok {
			seen[w.ActivityType] = struct{}{}
			types = append(types, w.ActivityType)
		}
	}
	sort.Strings(types)
	return types
}

// DateBounds returns the min and max start times over all records;
// ok is false when the store is empty or no record has a start time.
func (s *Store) DateBounds() (minTime, maxTime time.Time, ok bool) {
	for _, w := range s.All() {
		if w.StartTime.IsZero() {
			continue
		}
		if !ok {
			minTime, maxTime = w.StartTime, w.StartTime
			ok = true
			continue
		}
		if w.StartTime.Before(minTime) {
			minTime = w.StartTime
		}
		if w.StartTime.After(maxTime) {
			maxTime = w.StartTime
		}
	}
	return minTime, maxTime, ok
}
