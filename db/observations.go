package db

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"go-cropwatch/types"
)

const observationsCollection = "observations"

// SaveObservation persists one observation event. Events are
// immutable, so this is a plain create with a fresh document id. The
// event id is stored with the document: alert membership references
// it, so startup replay must bring events back under the same ids.
func (s *Store) SaveObservation(ctx context.Context, e types.ObservationEvent) error {
	docRef := s.client.Collection(observationsCollection).Doc(uuid.NewString())
	_, err := docRef.Create(ctx, e)
	if err != nil {
		return classify(fmt.Errorf("saving observation: %w", err))
	}
	return nil
}

// ObservationsSince streams back all stored events with observedAt >=
// since, oldest first, for rebuilding the in-memory window at
// startup. No separate snapshot format exists: the event log is the
// source of truth.
func (s *Store) ObservationsSince(ctx context.Context, since time.Time) ([]types.ObservationEvent, error) {
	var events []types.ObservationEvent

	iter := s.client.Collection(observationsCollection).
		Where("observedAt", ">=", since).
		OrderBy("observedAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classify(fmt.Errorf("iterating observations: %w", err))
		}

		var e types.ObservationEvent
		if err := doc.DataTo(&e); err != nil {
			logSkippedDoc(observationsCollection, doc.Ref.ID, err)
			continue
		}
		events = append(events, e)
	}
	return events, nil
}
