package epidemic

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go-cropwatch/config"
	"go-cropwatch/detection"
	"go-cropwatch/ledger"
	"go-cropwatch/store"
	"go-cropwatch/types"
)

// EventSink is the durable write-through for observation events. A
// nil sink means events live only in memory.
type EventSink interface {
	SaveObservation(ctx context.Context, e types.ObservationEvent) error
}

// Geocoder backfills an empty district from coordinates when a
// resolver is configured.
type Geocoder interface {
	District(ctx context.Context, lat, long float64) (string, error)
}

// Advisor produces optional advisory text for a freshly created
// alert.
type Advisor interface {
	Advise(ctx context.Context, alert types.Alert) (string, error)
}

type groupKey struct {
	disease string
	region  types.RegionKey
}

// group serializes the clustering/reconciliation pass for one
// (disease, region) pair. Different groups share no mutable state and
// run fully in parallel.
type group struct {
	mu      sync.Mutex
	timerMu sync.Mutex
	timer   *time.Timer
}

// Service wires the pipeline together: an observation arrives, is
// validated and inserted, and triggers a clustering pass for its
// group, whose clusters the ledger reconciles into alert changes.
type Service struct {
	cfg      config.Config
	store    *store.EventStore
	detector *detection.Detector
	ledger   *ledger.Ledger
	sink     EventSink
	geocoder Geocoder
	advisor  Advisor

	groupsMu sync.Mutex
	groups   map[groupKey]*group

	// now is swappable in tests.
	now func() time.Time
}

// Option configures optional collaborators on the service.
type Option func(*Service)

func WithEventSink(sink EventSink) Option   { return func(s *Service) { s.sink = sink } }
func WithGeocoder(g Geocoder) Option        { return func(s *Service) { s.geocoder = g } }
func WithAdvisor(a Advisor) Option          { return func(s *Service) { s.advisor = a } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(cfg config.Config, st *store.EventStore, led *ledger.Ledger, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		store:    st,
		detector: detection.NewDetector(st, cfg),
		ledger:   led,
		groups:   make(map[groupKey]*group),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitObservation is the inbound contract consumed from the
// diagnosis layer. It validates and stores the event, then triggers
// the clustering pass for the event's group: synchronously when the
// debounce is zero (the returned changes are that pass's output), or
// coalesced onto a background timer otherwise (changes come back
// nil). Validation failures are local and immediate; storage failures
// are retryable and leave no trace in memory.
func (s *Service) SubmitObservation(ctx context.Context, e types.ObservationEvent) (uint64, []types.AlertChange, error) {
	if s.geocoder != nil && e.District == "" {
		district, err := s.geocoder.District(ctx, e.Lat, e.Long)
		if err != nil {
			log.Printf("Reverse geocode failed for (%f, %f): %v", e.Lat, e.Long, err)
		} else {
			e.District = district
		}
	}

	stored, err := s.store.Insert(e)
	if err != nil {
		return 0, nil, err
	}

	if s.sink != nil {
		if err := s.sink.SaveObservation(ctx, stored); err != nil {
			// The memory copy goes too, so the invited retry cannot
			// count the observation twice.
			s.store.Discard(stored)
			return 0, nil, fmt.Errorf("persist observation %d: %w", stored.ID, err)
		}
	}

	key := groupKey{disease: stored.Disease, region: stored.Region()}

	if s.cfg.Debounce <= 0 {
		changes, err := s.runPass(ctx, key)
		return stored.ID, changes, err
	}

	s.schedulePass(key)
	return stored.ID, nil, nil
}

// schedulePass coalesces rapid insertions for one group into a single
// deferred pass. The pass re-reads the store when it fires, so it
// always observes at least every event inserted before scheduling.
func (s *Service) schedulePass(key groupKey) {
	g := s.group(key)
	g.timerMu.Lock()
	defer g.timerMu.Unlock()

	if g.timer != nil {
		return // a pass is already pending for this group
	}
	g.timer = time.AfterFunc(s.cfg.Debounce, func() {
		g.timerMu.Lock()
		g.timer = nil
		g.timerMu.Unlock()

		if _, err := s.runPass(context.Background(), key); err != nil {
			log.Printf("Deferred pass for %s in %s failed: %v", key.disease, key.region, err)
		}
	})
}

// runPass executes detect + reconcile for one group under the group
// lock, so two concurrent passes can never race to create duplicate
// alerts for the same emerging cluster. Errors here never affect any
// other group.
func (s *Service) runPass(ctx context.Context, key groupKey) ([]types.AlertChange, error) {
	g := s.group(key)
	g.mu.Lock()
	defer g.mu.Unlock()

	now := s.now()
	clusters := s.detector.Detect(key.disease, key.region, now)

	changes, err := s.ledger.Reconcile(ctx, key.disease, key.region, clusters, now)
	if err != nil {
		return nil, err
	}
	for _, change := range changes {
		log.Printf("Alert %s %s: %s in %s, %d cases within %.1f km [%s]",
			change.Kind, change.Alert.ID, change.Alert.Disease, change.Alert.Province,
			change.Alert.CaseCount, change.Alert.RadiusKM, change.Alert.Severity)
		if change.Kind == types.ChangeCreated && s.advisor != nil {
			go s.attachAdvisory(change.Alert)
		}
	}
	return changes, nil
}

func (s *Service) attachAdvisory(alert types.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	advisory, err := s.advisor.Advise(ctx, alert)
	if err != nil {
		log.Printf("Advisory generation for alert %s failed: %v", alert.ID, err)
		return
	}
	if err := s.ledger.AttachAdvisory(ctx, alert.ID, advisory); err != nil {
		log.Printf("Failed to attach advisory to alert %s: %v", alert.ID, err)
	}
}

// RunSweep resolves alerts whose source events went stale, even with
// zero new submissions. Invoked from the cron schedule; storage
// failures are logged and retried on the next tick.
func (s *Service) RunSweep(ctx context.Context) []types.AlertChange {
	changes, err := s.ledger.SweepStale(ctx, s.now())
	if err != nil {
		log.Printf("Resolution sweep finished with error (will retry next tick): %v", err)
	}
	for _, change := range changes {
		log.Printf("Sweep resolved alert %s (%s in %s): last event aged out of %d-day window",
			change.Alert.ID, change.Alert.Disease, change.Alert.Province, s.cfg.WindowDays)
	}
	return changes
}

func (s *Service) group(key groupKey) *group {
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()
	g, ok := s.groups[key]
	if !ok {
		g = &group{}
		s.groups[key] = g
	}
	return g
}
