package detection

import (
	"sort"
	"time"

	"go-cropwatch/config"
	"go-cropwatch/geo"
	"go-cropwatch/store"
	"go-cropwatch/types"
)

// Detector runs a density-based clustering pass over the events of
// one (disease, region) group. It owns no state of its own: every
// pass is a pure function of the store snapshot it reads, so it can
// run on any worker.
type Detector struct {
	store *store.EventStore
	cfg   config.Config
}

func NewDetector(st *store.EventStore, cfg config.Config) *Detector {
	return &Detector{store: st, cfg: cfg}
}

// Detect returns the current clusters for a (disease, region) group:
// maximal density-connected sets of confident events observed within
// the rolling window ending at now. An empty result is valid, not an
// error. For a fixed event set the result is deterministic regardless
// of insertion order: events are processed in ascending id order, and
// a border point reachable from two clusters goes to whichever
// cluster expands to it first, the one seeded at the smaller core id.
// That is first-claim, the same rule classic DBSCAN implementations
// use, not a comparison of the reaching cores' own ids.
func (d *Detector) Detect(disease string, region types.RegionKey, now time.Time) []types.Cluster {
	since := now.Add(-d.cfg.Window())
	events := d.store.Query(disease, region, since)

	// Low-confidence events stay in the store for the heatmap but
	// never participate in clustering.
	confident := events[:0:0]
	for _, e := range events {
		if e.Confidence >= d.cfg.MinConfidence {
			confident = append(confident, e)
		}
	}
	if len(confident) < d.cfg.MinPoints {
		return nil
	}

	sort.Slice(confident, func(i, j int) bool { return confident[i].ID < confident[j].ID })

	return d.cluster(disease, region, confident)
}

const (
	unassigned = -1
	noise      = -2
)

// cluster is DBSCAN over great-circle distance. The neighborhood of a
// point includes the point itself; a point is core when its
// neighborhood holds at least MinPoints events.
func (d *Detector) cluster(disease string, region types.RegionKey, events []types.ObservationEvent) []types.Cluster {
	n := len(events)

	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		neighbors[i] = append(neighbors[i], i)
		for j := i + 1; j < n; j++ {
			dist := geo.HaversineKM(events[i].Lat, events[i].Long, events[j].Lat, events[j].Long)
			if dist <= d.cfg.EpsKM {
				neighbors[i] = append(neighbors[i], j)
				neighbors[j] = append(neighbors[j], i)
			}
		}
	}

	isCore := make([]bool, n)
	for i := 0; i < n; i++ {
		isCore[i] = len(neighbors[i]) >= d.cfg.MinPoints
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = unassigned
	}

	// Seeds in ascending id order; expansion only continues through
	// core points. Border points join the first cluster that expands
	// to them, the one with the smaller seed id, even when the other
	// cluster reaches them through a smaller-id core. Points no core
	// point reaches stay noise.
	clusterCount := 0
	for i := 0; i < n; i++ {
		if labels[i] != unassigned {
			continue
		}
		if !isCore[i] {
			labels[i] = noise // may still be claimed by a later core expansion
			continue
		}

		label := clusterCount
		clusterCount++
		labels[i] = label

		queue := []int{i}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if !isCore[cur] {
				continue
			}
			for _, nb := range neighbors[cur] {
				if labels[nb] == unassigned || labels[nb] == noise {
					labels[nb] = label
					queue = append(queue, nb)
				}
			}
		}
	}

	if clusterCount == 0 {
		return nil
	}

	members := make([][]int, clusterCount)
	for i, label := range labels {
		if label >= 0 {
			members[label] = append(members[label], i)
		}
	}

	clusters := make([]types.Cluster, 0, clusterCount)
	for _, idxs := range members {
		if len(idxs) < d.cfg.MinPoints {
			continue
		}
		clusters = append(clusters, d.buildCluster(disease, region, events, idxs))
	}
	if len(clusters) == 0 {
		return nil
	}

	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i].LowestMemberID() < clusters[j].LowestMemberID()
	})
	return clusters
}

func (d *Detector) buildCluster(disease string, region types.RegionKey, events []types.ObservationEvent, idxs []int) types.Cluster {
	pts := make([]geo.Point, 0, len(idxs))
	ids := make([]uint64, 0, len(idxs))
	var lastEventAt time.Time

	for _, idx := range idxs {
		e := events[idx]
		pts = append(pts, geo.Point{Lat: e.Lat, Long: e.Long})
		ids = append(ids, e.ID)
		if e.ObservedAt.After(lastEventAt) {
			lastEventAt = e.ObservedAt
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	center := geo.Centroid(pts)

	return types.Cluster{
		Disease:     types.NormalizeDisease(disease),
		Region:      region,
		MemberIDs:   ids,
		Lat:         center.Lat,
		Long:        center.Long,
		RadiusKM:    geo.MaxRadiusKM(center, pts),
		LastEventAt: lastEventAt,
	}
}
