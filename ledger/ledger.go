package ledger

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-cropwatch/config"
	"go-cropwatch/types"
)

// Store is the durable sink for alert records. A nil store means the
// ledger runs memory-only.
type Store interface {
	SaveAlerts(ctx context.Context, alerts []types.Alert) error
}

// Ledger exclusively owns the set of alerts, active and resolved. It
// reconciles freshly detected clusters against prior state and emits
// typed AlertChanges instead of mutating rows in place, which keeps
// alert lifecycle auditable and testable independent of storage.
type Ledger struct {
	mu     sync.RWMutex
	alerts map[string]*types.Alert
	store  Store
	cfg    config.Config
}

func New(cfg config.Config, store Store) *Ledger {
	return &Ledger{
		alerts: make(map[string]*types.Alert),
		store:  store,
		cfg:    cfg,
	}
}

// Restore seeds the ledger from durable alert records at startup.
func (l *Ledger) Restore(alerts []types.Alert) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range alerts {
		a := alerts[i]
		l.alerts[a.ID] = &a
	}
	log.Printf("Ledger restored %d alerts", len(alerts))
}

// Reconcile matches the clusters from one detection pass against the
// active alerts of the same (disease, region) group and returns the
// resulting changes. Each active alert belongs to the cluster sharing
// the largest fraction of its last-known members; an alert no cluster
// overlaps is resolved, and a cluster no alert matches becomes a new
// alert. The whole change set commits atomically: on a storage
// failure nothing is applied and the error is retryable.
func (l *Ledger) Reconcile(ctx context.Context, disease string, region types.RegionKey, clusters []types.Cluster, now time.Time) ([]types.AlertChange, error) {
	disease = types.NormalizeDisease(disease)

	l.mu.Lock()
	defer l.mu.Unlock()

	active := l.activeLocked(disease, region)
	sort.Slice(active, func(i, j int) bool {
		if active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].ID < active[j].ID
		}
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})

	// Candidate pairings by shared member count, strongest first.
	// Ties favor the older alert so a long-running outbreak keeps its
	// alert when a newer duplicate would otherwise contest it, then
	// the cluster with the smaller lowest member id.
	type candidate struct {
		alertIdx   int
		clusterIdx int
		shared     int
	}
	var candidates []candidate
	for ai, alert := range active {
		for ci := range clusters {
			if shared := sharedMembers(alert.MemberIDs, clusters[ci].MemberIDs); shared > 0 {
				candidates = append(candidates, candidate{alertIdx: ai, clusterIdx: ci, shared: shared})
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.shared != b.shared {
			return a.shared > b.shared
		}
		aAlert, bAlert := active[a.alertIdx], active[b.alertIdx]
		if !aAlert.CreatedAt.Equal(bAlert.CreatedAt) {
			return aAlert.CreatedAt.Before(bAlert.CreatedAt)
		}
		if aAlert.ID != bAlert.ID {
			return aAlert.ID < bAlert.ID
		}
		return clusters[a.clusterIdx].LowestMemberID() < clusters[b.clusterIdx].LowestMemberID()
	})

	alertCluster := make(map[int]int) // alert index -> cluster index
	clusterTaken := make(map[int]bool)
	for _, c := range candidates {
		if _, done := alertCluster[c.alertIdx]; done || clusterTaken[c.clusterIdx] {
			continue
		}
		alertCluster[c.alertIdx] = c.clusterIdx
		clusterTaken[c.clusterIdx] = true
	}

	var changes []types.AlertChange
	var pending []types.Alert // copies to commit

	for ai, alert := range active {
		ci, ok := alertCluster[ai]
		if !ok {
			// No cluster overlaps this alert's last-known members
			// anymore; the outbreak it tracked is gone. Terminal: a
			// fresh cluster forming later creates a new alert.
			resolved := *alert
			resolved.Status = types.AlertResolved
			resolvedAt := now
			resolved.ResolvedAt = &resolvedAt
			pending = append(pending, resolved)
			changes = append(changes, types.AlertChange{Kind: types.ChangeResolved, Alert: resolved})
			continue
		}

		updated := applyCluster(*alert, clusters[ci], l.cfg)
		if alertEqual(*alert, updated) {
			continue // stable cluster, nothing to report
		}
		pending = append(pending, updated)
		changes = append(changes, types.AlertChange{Kind: types.ChangeUpdated, Alert: updated})
	}

	for ci := range clusters {
		if clusterTaken[ci] {
			continue
		}
		created := newAlert(disease, region, clusters[ci], now, l.cfg)
		pending = append(pending, created)
		changes = append(changes, types.AlertChange{Kind: types.ChangeCreated, Alert: created})
	}

	if len(pending) == 0 {
		return nil, nil
	}

	if l.store != nil {
		if err := l.store.SaveAlerts(ctx, pending); err != nil {
			return nil, fmt.Errorf("reconcile %s %s: %w", disease, region, err)
		}
	}
	for i := range pending {
		a := pending[i]
		l.alerts[a.ID] = &a
	}
	return changes, nil
}

// SweepStale resolves every active alert whose youngest contributing
// event has aged out of the rolling window. It runs on a fixed
// interval independent of new arrivals and is idempotent: a second
// run right after the first produces no further changes. Groups fail
// independently; the last storage error is returned after the full
// pass so the caller can log and retry on its next tick.
func (l *Ledger) SweepStale(ctx context.Context, now time.Time) ([]types.AlertChange, error) {
	cutoff := now.Add(-l.cfg.Window())

	l.mu.Lock()
	defer l.mu.Unlock()

	var changes []types.AlertChange
	var lastErr error

	for _, alert := range l.sortedLocked() {
		if alert.Status != types.AlertActive || !alert.LastEventAt.Before(cutoff) {
			continue
		}
		resolved := *alert
		resolved.Status = types.AlertResolved
		resolvedAt := now
		resolved.ResolvedAt = &resolvedAt

		if l.store != nil {
			if err := l.store.SaveAlerts(ctx, []types.Alert{resolved}); err != nil {
				log.Printf("Sweep: failed to persist resolution of alert %s: %v", alert.ID, err)
				lastErr = fmt.Errorf("sweep alert %s: %w", alert.ID, err)
				continue
			}
		}
		a := resolved
		l.alerts[a.ID] = &a
		changes = append(changes, types.AlertChange{Kind: types.ChangeResolved, Alert: a})
	}
	return changes, lastErr
}

// AttachAdvisory appends generated advisory text to an alert's
// message. Best effort: the alert may already be resolved, in which
// case the text is dropped.
func (l *Ledger) AttachAdvisory(ctx context.Context, alertID, advisory string) error {
	if advisory == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	alert, ok := l.alerts[alertID]
	if !ok || alert.Status != types.AlertActive {
		return nil
	}
	updated := *alert
	updated.Message = updated.Message + " " + advisory

	if l.store != nil {
		if err := l.store.SaveAlerts(ctx, []types.Alert{updated}); err != nil {
			return fmt.Errorf("attach advisory to %s: %w", alertID, err)
		}
	}
	l.alerts[alertID] = &updated
	return nil
}

// Snapshot returns copies of all alerts, newest first. Safe for
// concurrent unguarded reads; mutating the result has no effect on
// the ledger.
func (l *Ledger) Snapshot() []types.Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.Alert, 0, len(l.alerts))
	for _, a := range l.sortedLocked() {
		out = append(out, copyAlert(*a))
	}
	return out
}

func (l *Ledger) sortedLocked() []*types.Alert {
	alerts := make([]*types.Alert, 0, len(l.alerts))
	for _, a := range l.alerts {
		alerts = append(alerts, a)
	}
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].CreatedAt.Equal(alerts[j].CreatedAt) {
			return alerts[i].ID < alerts[j].ID
		}
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
	return alerts
}

func (l *Ledger) activeLocked(disease string, region types.RegionKey) []*types.Alert {
	var out []*types.Alert
	for _, a := range l.alerts {
		if a.Status == types.AlertActive && a.Disease == disease && a.Region() == region {
			out = append(out, a)
		}
	}
	return out
}

func newAlert(disease string, region types.RegionKey, c types.Cluster, now time.Time, cfg config.Config) types.Alert {
	a := types.Alert{
		ID:        uuid.NewString(),
		Disease:   disease,
		Province:  region.Province,
		District:  region.District,
		Status:    types.AlertActive,
		CreatedAt: now,
	}
	return applyCluster(a, c, cfg)
}

func applyCluster(a types.Alert, c types.Cluster, cfg config.Config) types.Alert {
	a.CaseCount = c.CaseCount()
	a.RadiusKM = c.RadiusKM
	a.CenterLat = c.Lat
	a.CenterLon = c.Long
	a.Severity = SeverityFor(a.CaseCount, a.RadiusKM, cfg)
	a.Message = AlertMessage(a.Disease, a.Province, a.CaseCount, a.RadiusKM)
	a.MemberIDs = append([]uint64(nil), c.MemberIDs...)
	a.LastEventAt = c.LastEventAt
	return a
}

// AlertMessage is the deterministic human-readable summary
// regenerated on every update.
func AlertMessage(disease, province string, caseCount int, radiusKM float64) string {
	return fmt.Sprintf(
		"OUTBREAK ALERT: %s detected in %s. %d cases within a %.1f km radius. Farmers in the area should take preventive measures.",
		disease, province, caseCount, radiusKM,
	)
}

func sharedMembers(a, b []uint64) int {
	// Both sides are sorted ascending.
	i, j, shared := 0, 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			shared++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return shared
}

func alertEqual(a, b types.Alert) bool {
	if a.CaseCount != b.CaseCount || a.RadiusKM != b.RadiusKM ||
		a.CenterLat != b.CenterLat || a.CenterLon != b.CenterLon ||
		a.Severity != b.Severity || a.Message != b.Message ||
		!a.LastEventAt.Equal(b.LastEventAt) || len(a.MemberIDs) != len(b.MemberIDs) {
		return false
	}
	for i := range a.MemberIDs {
		if a.MemberIDs[i] != b.MemberIDs[i] {
			return false
		}
	}
	return true
}

func copyAlert(a types.Alert) types.Alert {
	a.MemberIDs = append([]uint64(nil), a.MemberIDs...)
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		a.ResolvedAt = &t
	}
	return a
}
