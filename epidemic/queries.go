package epidemic

import (
	"sort"
	"strings"
	"time"

	"go-cropwatch/types"
)

// AlertFilter narrows ListAlerts. Zero-value fields match everything;
// name matching ignores case; Status defaults to active because that
// is what every consumer of the original system asked for.
type AlertFilter struct {
	Province string
	District string
	Disease  string
	Status   types.AlertStatus
}

// HeatmapFilter narrows Heatmap. A zero Since falls back to the
// configured lookback.
type HeatmapFilter struct {
	Disease  string
	Province string
	Since    time.Time
}

type HeatmapPoint struct {
	Lat        float64   `json:"lat"`
	Long       float64   `json:"lon"`
	Disease    string    `json:"disease"`
	ObservedAt time.Time `json:"observed_at"`
}

type StatsFilter struct {
	Province string
}

type DiseaseCount struct {
	Disease    string `json:"disease"`
	AlertCount int    `json:"alert_count"`
}

// Stats aggregates the ledger's current committed set on demand;
// there is no materialized aggregate to go stale.
type Stats struct {
	TotalActiveAlerts int                    `json:"total_active_alerts"`
	SeverityBreakdown map[types.Severity]int `json:"severity_breakdown"`
	TopDiseases       []DiseaseCount         `json:"top_diseases"`
	AffectedProvinces []string               `json:"affected_provinces"`
	TotalCases        int                    `json:"total_cases"`
}

// ListAlerts returns the ledger's current committed alerts matching
// the filter, newest first. Read-only and safe for concurrent
// unguarded reads.
func (s *Service) ListAlerts(f AlertFilter) []types.Alert {
	status := f.Status
	if status == "" {
		status = types.AlertActive
	}
	disease := types.NormalizeDisease(f.Disease)

	out := []types.Alert{}
	for _, a := range s.ledger.Snapshot() {
		if a.Status != status {
			continue
		}
		if f.Province != "" && !strings.EqualFold(a.Province, f.Province) {
			continue
		}
		if f.District != "" && !strings.EqualFold(a.District, f.District) {
			continue
		}
		if disease != "" && a.Disease != disease {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Heatmap returns the raw density view over stored events. Low
// confidence observations are included deliberately: the heatmap
// shows reports, not confirmed cases.
func (s *Service) Heatmap(f HeatmapFilter) []HeatmapPoint {
	since := f.Since
	if since.IsZero() {
		since = s.now().Add(-s.cfg.HeatmapLookback())
	}

	events := s.store.Scan(f.Disease, f.Province, since)
	points := make([]HeatmapPoint, 0, len(events))
	for _, e := range events {
		points = append(points, HeatmapPoint{
			Lat:        e.Lat,
			Long:       e.Long,
			Disease:    e.Disease,
			ObservedAt: e.ObservedAt,
		})
	}
	return points
}

const topDiseaseLimit = 5

// GetStats computes aggregate counts over active alerts.
func (s *Service) GetStats(f StatsFilter) Stats {
	stats := Stats{
		SeverityBreakdown: map[types.Severity]int{
			types.High:   0,
			types.Medium: 0,
			types.Low:    0,
		},
		TopDiseases:       []DiseaseCount{},
		AffectedProvinces: []string{},
	}

	diseaseCounts := make(map[string]int)
	provinces := make(map[string]bool)

	for _, a := range s.ledger.Snapshot() {
		if a.Status != types.AlertActive {
			continue
		}
		if f.Province != "" && a.Province != f.Province {
			continue
		}
		stats.TotalActiveAlerts++
		stats.SeverityBreakdown[a.Severity]++
		stats.TotalCases += a.CaseCount
		diseaseCounts[a.Disease]++
		provinces[a.Province] = true
	}

	for disease, count := range diseaseCounts {
		stats.TopDiseases = append(stats.TopDiseases, DiseaseCount{Disease: disease, AlertCount: count})
	}
	sort.Slice(stats.TopDiseases, func(i, j int) bool {
		if stats.TopDiseases[i].AlertCount == stats.TopDiseases[j].AlertCount {
			return stats.TopDiseases[i].Disease < stats.TopDiseases[j].Disease
		}
		return stats.TopDiseases[i].AlertCount > stats.TopDiseases[j].AlertCount
	})
	if len(stats.TopDiseases) > topDiseaseLimit {
		stats.TopDiseases = stats.TopDiseases[:topDiseaseLimit]
	}

	for p := range provinces {
		stats.AffectedProvinces = append(stats.AffectedProvinces, p)
	}
	sort.Strings(stats.AffectedProvinces)

	return stats
}
