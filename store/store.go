package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go-cropwatch/types"
)

type groupKey struct {
	disease string
	region  types.RegionKey
}

// EventStore holds the full observation history in memory, grouped by
// (disease, region) so clustering passes only touch one group. Events
// are retained indefinitely for the heatmap; detection callers apply
// the rolling window through Query's since argument.
type EventStore struct {
	mu     sync.RWMutex
	nextID uint64
	groups map[groupKey][]types.ObservationEvent
}

func NewEventStore() *EventStore {
	return &EventStore{
		nextID: 1,
		groups: make(map[groupKey][]types.ObservationEvent),
	}
}

// Insert validates, normalizes, and stores an observation event,
// assigning it the next monotonic id. The stored event is immutable.
func (s *EventStore) Insert(e types.ObservationEvent) (types.ObservationEvent, error) {
	e.Disease = types.NormalizeDisease(e.Disease)
	e.Province = normalizeRegionPart(e.Province)
	e.District = normalizeRegionPart(e.District)

	if err := validate(e); err != nil {
		return types.ObservationEvent{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = s.nextID
	s.nextID++

	key := groupKey{disease: e.Disease, region: e.Region()}
	s.groups[key] = append(s.groups[key], e)

	return e, nil
}

// Replay re-inserts an event that already carries its durable id,
// for rebuilding the in-memory window from storage at startup. The
// high-water mark advances past every replayed id, so fresh inserts
// never collide with alert membership recorded before the restart.
func (s *EventStore) Replay(e types.ObservationEvent) error {
	e.Disease = types.NormalizeDisease(e.Disease)
	e.Province = normalizeRegionPart(e.Province)
	e.District = normalizeRegionPart(e.District)

	if e.ID == 0 {
		return &types.ValidationError{Field: "id", Reason: "must be set on replay"}
	}
	if err := validate(e); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID >= s.nextID {
		s.nextID = e.ID + 1
	}
	key := groupKey{disease: e.Disease, region: e.Region()}
	s.groups[key] = append(s.groups[key], e)
	return nil
}

// Discard removes a just-inserted event whose durable write failed,
// so a retried submission cannot count it twice. The id is not
// reused.
func (s *EventStore) Discard(e types.ObservationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := groupKey{disease: e.Disease, region: e.Region()}
	group := s.groups[key]
	for i := len(group) - 1; i >= 0; i-- {
		if group[i].ID == e.ID {
			s.groups[key] = append(group[:i], group[i+1:]...)
			return
		}
	}
}

// Query returns a snapshot of all events for one (disease, region)
// group with observedAt >= since, ordered by observedAt ascending
// (id ascending on equal timestamps). The returned slice is a copy;
// mutating it never affects the store.
func (s *EventStore) Query(disease string, region types.RegionKey, since time.Time) []types.ObservationEvent {
	disease = types.NormalizeDisease(disease)

	s.mu.RLock()
	group := s.groups[groupKey{disease: disease, region: region}]
	out := make([]types.ObservationEvent, 0, len(group))
	for _, e := range group {
		if !e.ObservedAt.Before(since) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ObservedAt.Equal(out[j].ObservedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ObservedAt.Before(out[j].ObservedAt)
	})
	return out
}

// Scan walks every group and returns events matching the optional
// disease and province filters with observedAt >= since. Province
// matching ignores case, like the disease filter. Used for the
// heatmap, so confidence is deliberately not filtered.
func (s *EventStore) Scan(disease, province string, since time.Time) []types.ObservationEvent {
	disease = types.NormalizeDisease(disease)
	province = normalizeRegionPart(province)

	s.mu.RLock()
	var out []types.ObservationEvent
	for key, group := range s.groups {
		if disease != "" && key.disease != disease {
			continue
		}
		if province != "" && !strings.EqualFold(key.region.Province, province) {
			continue
		}
		for _, e := range group {
			if !e.ObservedAt.Before(since) {
				out = append(out, e)
			}
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports the total number of stored events.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, group := range s.groups {
		n += len(group)
	}
	return n
}

func validate(e types.ObservationEvent) error {
	if e.Disease == "" {
		return &types.ValidationError{Field: "disease", Reason: "must not be empty"}
	}
	if e.Province == "" {
		return &types.ValidationError{Field: "province", Reason: "must not be empty"}
	}
	if e.Lat < -90 || e.Lat > 90 {
		return &types.ValidationError{Field: "lat", Reason: "must be within [-90, 90]"}
	}
	if e.Long < -180 || e.Long > 180 {
		return &types.ValidationError{Field: "long", Reason: "must be within [-180, 180]"}
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return &types.ValidationError{Field: "confidence", Reason: "must be within [0, 1]"}
	}
	if e.ObservedAt.IsZero() {
		return &types.ValidationError{Field: "observed_at", Reason: "must be set"}
	}
	return nil
}

// Region names keep their casing; only stray whitespace goes.
func normalizeRegionPart(s string) string {
	return strings.TrimSpace(s)
}
