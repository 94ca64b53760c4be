package epidemic

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-cropwatch/config"
	"go-cropwatch/ledger"
	"go-cropwatch/store"
	"go-cropwatch/types"
)

func newTestService(cfg config.Config, opts ...Option) *Service {
	st := store.NewEventStore()
	return NewService(cfg, st, ledger.New(cfg, nil), opts...)
}

func observation(latOffset float64, observedAt time.Time) types.ObservationEvent {
	return types.ObservationEvent{
		Disease:    "rice blast",
		Province:   "An Giang",
		District:   "Chau Thanh",
		Lat:        10.5 + latOffset,
		Long:       105.1,
		Confidence: 0.9,
		ObservedAt: observedAt,
	}
}

func TestOutbreakLifecycle(t *testing.T) {
	svc := newTestService(config.Default())
	ctx := context.Background()
	now := time.Now()

	// Four nearby reports: not enough density for an alert yet.
	for i := 0; i < 4; i++ {
		_, changes, err := svc.SubmitObservation(ctx, observation(float64(i)*0.001, now))
		require.NoError(t, err)
		assert.Empty(t, changes)
	}
	assert.Empty(t, svc.ListAlerts(AlertFilter{}))

	// The fifth report tips the group over the density threshold.
	_, changes, err := svc.SubmitObservation(ctx, observation(0.004, now))
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, types.ChangeCreated, changes[0].Kind)
	alertID := changes[0].Alert.ID
	assert.Equal(t, 5, changes[0].Alert.CaseCount)
	assert.Equal(t, types.Low, changes[0].Alert.Severity)
	assert.LessOrEqual(t, changes[0].Alert.RadiusKM, 1.0)

	// Ten more reports in the same area grow the existing alert
	// instead of spawning a second one.
	var last []types.AlertChange
	for i := 0; i < 10; i++ {
		_, changes, err := svc.SubmitObservation(ctx, observation(0.0001*float64(i+1), now))
		require.NoError(t, err)
		last = changes
	}
	require.Len(t, last, 1)
	assert.Equal(t, types.ChangeUpdated, last[0].Kind)
	assert.Equal(t, alertID, last[0].Alert.ID)
	assert.Equal(t, 15, last[0].Alert.CaseCount)
	assert.Equal(t, types.High, last[0].Alert.Severity)

	active := svc.ListAlerts(AlertFilter{})
	require.Len(t, active, 1, "the whole burst yields exactly one alert")
	assert.Equal(t, alertID, active[0].ID)
}

func TestRestartKeepsAlertIdentity(t *testing.T) {
	cfg := config.Default()
	st := store.NewEventStore()
	led := ledger.New(cfg, nil)
	now := time.Now()

	// Simulated restart: the durable layer streams the window's events
	// back under their original ids, and the active alert returns with
	// the membership recorded before shutdown.
	for i := 0; i < 5; i++ {
		e := observation(float64(i)*0.001, now.Add(-time.Hour))
		e.ID = uint64(i + 1)
		require.NoError(t, st.Replay(e))
	}
	led.Restore([]types.Alert{{
		ID:          "pre-restart",
		Disease:     "rice blast",
		Province:    "An Giang",
		District:    "Chau Thanh",
		CaseCount:   5,
		Status:      types.AlertActive,
		MemberIDs:   []uint64{1, 2, 3, 4, 5},
		CreatedAt:   now.Add(-2 * time.Hour),
		LastEventAt: now.Add(-time.Hour),
	}})

	svc := NewService(cfg, st, led)
	_, changes, err := svc.SubmitObservation(context.Background(), observation(0.005, now))
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, types.ChangeUpdated, changes[0].Kind)
	assert.Equal(t, "pre-restart", changes[0].Alert.ID)
	assert.Equal(t, 6, changes[0].Alert.CaseCount)

	active := svc.ListAlerts(AlertFilter{})
	require.Len(t, active, 1, "a restart must not churn the ongoing outbreak's alert")
	assert.Empty(t, svc.ListAlerts(AlertFilter{Status: types.AlertResolved}))
}

type flakyEventSink struct {
	failures int
	saved    int
}

func (s *flakyEventSink) SaveObservation(context.Context, types.ObservationEvent) error {
	if s.failures > 0 {
		s.failures--
		return fmt.Errorf("%w: simulated outage", types.ErrStorageUnavailable)
	}
	s.saved++
	return nil
}

func TestSubmitObservationRollsBackOnSinkFailure(t *testing.T) {
	cfg := config.Default()
	st := store.NewEventStore()
	sink := &flakyEventSink{failures: 1}
	svc := NewService(cfg, st, ledger.New(cfg, nil), WithEventSink(sink))
	now := time.Now()

	_, _, err := svc.SubmitObservation(context.Background(), observation(0, now))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrStorageUnavailable)
	assert.Equal(t, 0, st.Len(), "a failed durable write must not leave the event in memory")

	// The invited retry stores the observation exactly once.
	id, _, err := svc.SubmitObservation(context.Background(), observation(0, now))
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Equal(t, 1, st.Len())
	assert.Equal(t, 1, sink.saved)
}

func TestSubmitObservationValidation(t *testing.T) {
	svc := newTestService(config.Default())

	bad := observation(0, time.Now())
	bad.Confidence = 1.5

	_, _, err := svc.SubmitObservation(context.Background(), bad)
	require.Error(t, err)
	var vErr *types.ValidationError
	assert.ErrorAs(t, err, &vErr)
	assert.Empty(t, svc.ListAlerts(AlertFilter{}))
}

type fakeGeocoder struct {
	district string
	calls    int
}

func (g *fakeGeocoder) District(context.Context, float64, float64) (string, error) {
	g.calls++
	return g.district, nil
}

func TestSubmitObservationBackfillsDistrict(t *testing.T) {
	geo := &fakeGeocoder{district: "Tri Ton"}
	svc := newTestService(config.Default(), WithGeocoder(geo))
	now := time.Now()

	e := observation(0, now)
	e.District = ""
	_, _, err := svc.SubmitObservation(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, 1, geo.calls)

	// A provided district is kept as-is.
	_, _, err = svc.SubmitObservation(context.Background(), observation(0.001, now))
	require.NoError(t, err)
	assert.Equal(t, 1, geo.calls)

	points := svc.Heatmap(HeatmapFilter{Since: now.Add(-time.Hour)})
	assert.Len(t, points, 2)
}

type fakeAdvisor struct {
	text string
}

func (a *fakeAdvisor) Advise(context.Context, types.Alert) (string, error) {
	return a.text, nil
}

func TestAdvisoryAppendedToNewAlert(t *testing.T) {
	svc := newTestService(config.Default(), WithAdvisor(&fakeAdvisor{text: "Drain the affected paddies."}))
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		_, _, err := svc.SubmitObservation(ctx, observation(float64(i)*0.001, now))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		active := svc.ListAlerts(AlertFilter{})
		if len(active) != 1 {
			return false
		}
		return active[0].Message == ledger.AlertMessage("rice blast", "An Giang", 5, active[0].RadiusKM)+" Drain the affected paddies."
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDebounceCoalescesBurst(t *testing.T) {
	cfg := config.Default()
	cfg.Debounce = 20 * time.Millisecond
	svc := newTestService(cfg)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		_, changes, err := svc.SubmitObservation(ctx, observation(float64(i)*0.001, now))
		require.NoError(t, err)
		assert.Nil(t, changes, "deferred passes report changes asynchronously")
	}

	// One deferred pass sees the whole burst and creates one alert.
	require.Eventually(t, func() bool {
		return len(svc.ListAlerts(AlertFilter{})) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 5, svc.ListAlerts(AlertFilter{})[0].CaseCount)
}

func TestSweepResolvesStaleAlert(t *testing.T) {
	svc := newTestService(config.Default())
	ctx := context.Background()

	// Pin the clock to just inside the window so the alert is created,
	// then advance past it.
	base := time.Now()
	eventAt := base.Add(-6 * 24 * time.Hour)
	svc.now = func() time.Time { return base }

	for i := 0; i < 5; i++ {
		_, _, err := svc.SubmitObservation(ctx, observation(float64(i)*0.001, eventAt))
		require.NoError(t, err)
	}
	require.Len(t, svc.ListAlerts(AlertFilter{}), 1)

	svc.now = func() time.Time { return base.Add(2 * 24 * time.Hour) }
	changes := svc.RunSweep(ctx)
	require.Len(t, changes, 1)
	assert.Equal(t, types.ChangeResolved, changes[0].Kind)

	assert.Empty(t, svc.ListAlerts(AlertFilter{}))
	assert.Len(t, svc.ListAlerts(AlertFilter{Status: types.AlertResolved}), 1)
}

func TestListAlertsFilters(t *testing.T) {
	svc := newTestService(config.Default())
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		_, _, err := svc.SubmitObservation(ctx, observation(float64(i)*0.001, now))
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		e := observation(float64(i)*0.001, now)
		e.Province = "Dong Thap"
		e.District = "Cao Lanh"
		e.Disease = "brown planthopper"
		_, _, err := svc.SubmitObservation(ctx, e)
		require.NoError(t, err)
	}

	assert.Len(t, svc.ListAlerts(AlertFilter{}), 2)
	assert.Len(t, svc.ListAlerts(AlertFilter{Province: "An Giang"}), 1)
	assert.Len(t, svc.ListAlerts(AlertFilter{Province: "an giang"}), 1, "province filter ignores case")
	assert.Len(t, svc.ListAlerts(AlertFilter{District: "Cao Lanh"}), 1)
	assert.Len(t, svc.ListAlerts(AlertFilter{District: "cao lanh"}), 1, "district filter ignores case")
	assert.Len(t, svc.ListAlerts(AlertFilter{Disease: "Brown Planthopper"}), 1, "disease filter is case-insensitive")
	assert.Empty(t, svc.ListAlerts(AlertFilter{Province: "An Giang", Disease: "brown planthopper"}))
	assert.Empty(t, svc.ListAlerts(AlertFilter{Status: types.AlertResolved}))
}

func TestHeatmapIncludesLowConfidence(t *testing.T) {
	svc := newTestService(config.Default())
	ctx := context.Background()
	now := time.Now()

	low := observation(0, now)
	low.Confidence = 0.2
	_, _, err := svc.SubmitObservation(ctx, low)
	require.NoError(t, err)

	other := observation(0.01, now)
	other.Disease = "brown planthopper"
	_, _, err = svc.SubmitObservation(ctx, other)
	require.NoError(t, err)

	old := observation(0.02, now.Add(-40*24*time.Hour))
	_, _, err = svc.SubmitObservation(ctx, old)
	require.NoError(t, err)

	t.Run("default lookback", func(t *testing.T) {
		points := svc.Heatmap(HeatmapFilter{})
		assert.Len(t, points, 2, "the 40-day-old event is past the default lookback")
	})

	t.Run("disease filter keeps low confidence", func(t *testing.T) {
		points := svc.Heatmap(HeatmapFilter{Disease: "rice blast", Since: now.Add(-time.Hour)})
		require.Len(t, points, 1)
		assert.Equal(t, "rice blast", points[0].Disease)
	})

	t.Run("explicit since", func(t *testing.T) {
		points := svc.Heatmap(HeatmapFilter{Since: now.Add(-60 * 24 * time.Hour)})
		assert.Len(t, points, 3)
	})
}

func TestGetStats(t *testing.T) {
	svc := newTestService(config.Default())
	ctx := context.Background()
	now := time.Now()

	// Five cases within ~0.5 km: one low-severity alert in An Giang.
	for i := 0; i < 5; i++ {
		_, _, err := svc.SubmitObservation(ctx, observation(float64(i)*0.001, now))
		require.NoError(t, err)
	}
	// Fifteen cases: one high-severity alert in Dong Thap.
	for i := 0; i < 15; i++ {
		e := observation(float64(i)*0.0001, now)
		e.Province = "Dong Thap"
		e.Disease = "brown planthopper"
		_, _, err := svc.SubmitObservation(ctx, e)
		require.NoError(t, err)
	}

	stats := svc.GetStats(StatsFilter{})
	assert.Equal(t, 2, stats.TotalActiveAlerts)
	assert.Equal(t, 20, stats.TotalCases)
	assert.Equal(t, 1, stats.SeverityBreakdown[types.Low])
	assert.Equal(t, 0, stats.SeverityBreakdown[types.Medium])
	assert.Equal(t, 1, stats.SeverityBreakdown[types.High])
	assert.Equal(t, []string{"An Giang", "Dong Thap"}, stats.AffectedProvinces)
	require.Len(t, stats.TopDiseases, 2)
	assert.Equal(t, "brown planthopper", stats.TopDiseases[0].Disease)

	filtered := svc.GetStats(StatsFilter{Province: "An Giang"})
	assert.Equal(t, 1, filtered.TotalActiveAlerts)
	assert.Equal(t, 5, filtered.TotalCases)
	assert.Equal(t, []string{"An Giang"}, filtered.AffectedProvinces)
}

func TestConcurrentSubmissionsSameGroup(t *testing.T) {
	svc := newTestService(config.Default())
	ctx := context.Background()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := svc.SubmitObservation(ctx, observation(float64(i)*0.0001, now))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Serialized passes per group: however the submissions interleave,
	// exactly one alert tracks the cluster and the last pass saw all
	// twenty members.
	active := svc.ListAlerts(AlertFilter{})
	require.Len(t, active, 1)
	assert.Equal(t, 20, active[0].CaseCount)
}

func TestConcurrentSubmissionsAcrossGroups(t *testing.T) {
	svc := newTestService(config.Default())
	ctx := context.Background()
	now := time.Now()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(g, i int) {
				defer wg.Done()
				e := observation(float64(i)*0.001, now)
				e.Province = fmt.Sprintf("Province %d", g)
				_, _, err := svc.SubmitObservation(ctx, e)
				assert.NoError(t, err)
			}(g, i)
		}
	}
	wg.Wait()

	active := svc.ListAlerts(AlertFilter{})
	require.Len(t, active, 4, "one alert per (disease, region) group")
	seen := map[string]bool{}
	for _, a := range active {
		assert.Equal(t, 5, a.CaseCount)
		seen[a.Province] = true
	}
	assert.Len(t, seen, 4)
}
