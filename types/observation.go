package types

import (
	"fmt"
	"strings"
	"time"
)

// RegionKey is the coarse partition used to bound clustering cost.
// District may be empty; province never is.
type RegionKey struct {
	Province string `firestore:"province" json:"province"`
	District string `firestore:"district" json:"district"`
}

func (r RegionKey) String() string {
	if r.District == "" {
		return r.Province
	}
	return fmt.Sprintf("%s/%s", r.Province, r.District)
}

// ObservationEvent is one reported case. Immutable once inserted;
// it is never mutated, only superseded by new events.
type ObservationEvent struct {
	ID         uint64    `firestore:"eventId" json:"id"`
	Disease    string    `firestore:"disease" json:"disease"`
	Province   string    `firestore:"province" json:"province"`
	District   string    `firestore:"district" json:"district"`
	Lat        float64   `firestore:"lat" json:"lat"`
	Long       float64   `firestore:"long" json:"long"`
	Confidence float64   `firestore:"confidence" json:"confidence"`
	ObservedAt time.Time `firestore:"observedAt" json:"observed_at"`
}

func (e ObservationEvent) Region() RegionKey {
	return RegionKey{Province: e.Province, District: e.District}
}

// NormalizeDisease case-folds and trims a free-form disease label so
// "Rice Blast" and " rice blast " land in the same group.
func NormalizeDisease(disease string) string {
	return strings.ToLower(strings.TrimSpace(disease))
}
