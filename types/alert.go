package types

import "time"

type Severity string

const (
	Low    Severity = "low"
	Medium Severity = "medium"
	High   Severity = "high"
)

type AlertStatus string

const (
	AlertActive   AlertStatus = "active"
	AlertResolved AlertStatus = "resolved"
)

// Alert is a persisted outbreak notification, one per ongoing cluster.
type Alert struct {
	ID       string `firestore:"-" json:"alert_id"`
	Disease  string `firestore:"disease" json:"disease"`
	Province string `firestore:"province" json:"province"`
	District string `firestore:"district" json:"district"`

	// Latest cluster metrics, updated in place on every pass while
	// the cluster persists.
	CaseCount int     `firestore:"caseCount" json:"case_count"`
	RadiusKM  float64 `firestore:"radiusKm" json:"radius_km"`
	CenterLat float64 `firestore:"centerLat" json:"center_lat"`
	CenterLon float64 `firestore:"centerLon" json:"center_lon"`

	Severity Severity    `firestore:"severity" json:"severity"`
	Status   AlertStatus `firestore:"status" json:"status"`
	Message  string      `firestore:"message" json:"message"`

	CreatedAt  time.Time  `firestore:"createdAt" json:"created_at"`
	ResolvedAt *time.Time `firestore:"resolvedAt,omitempty" json:"resolved_at,omitempty"`

	// MemberIDs is the last-known cluster membership, kept for
	// overlap matching on the next pass. LastEventAt is the youngest
	// contributing event's observation time, used by the stale sweep.
	MemberIDs   []uint64  `firestore:"memberIds" json:"-"`
	LastEventAt time.Time `firestore:"lastEventAt" json:"-"`
}

func (a Alert) Region() RegionKey {
	return RegionKey{Province: a.Province, District: a.District}
}

type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeUpdated  ChangeKind = "updated"
	ChangeResolved ChangeKind = "resolved"
)

// AlertChange records one ledger mutation produced by a reconcile
// pass or a stale sweep.
type AlertChange struct {
	Kind  ChangeKind `json:"kind"`
	Alert Alert      `json:"alert"`
}
