package types

import "time"

// Cluster is the output of one detection pass. Transient: recomputed
// every pass, never persisted.
type Cluster struct {
	Disease   string
	Region    RegionKey
	MemberIDs []uint64 // sorted ascending
	Lat       float64  // centroid latitude
	Long      float64  // centroid longitude
	RadiusKM  float64  // max great-circle distance from centroid to any member

	// LastEventAt is the youngest member's observation time, carried
	// along so the ledger can age alerts out of the rolling window.
	LastEventAt time.Time
}

func (c Cluster) CaseCount() int {
	return len(c.MemberIDs)
}

// LowestMemberID is the tie-break identity of a cluster: detection
// processes events in id order, so this is stable across passes.
func (c Cluster) LowestMemberID() uint64 {
	if len(c.MemberIDs) == 0 {
		return 0
	}
	return c.MemberIDs[0]
}
