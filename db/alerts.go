package db

import (
	"context"
	"fmt"
	"log"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"go-cropwatch/types"
)

const alertsCollection = "alerts"

type firestoreJob struct {
	id  string
	job *firestore.BulkWriterJob
}

// SaveAlerts writes a batch of alert records in one BulkWriter flush,
// keyed by the alert's own id so a reconcile pass that touches the
// same alert twice stays idempotent in storage.
func (s *Store) SaveAlerts(ctx context.Context, alerts []types.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	bw := s.client.BulkWriter(ctx)
	collRef := s.client.Collection(alertsCollection)

	jobs := make([]*firestoreJob, 0, len(alerts))
	for i := range alerts {
		alert := alerts[i]
		if alert.ID == "" {
			log.Printf("Warning: skipping alert with empty ID: %+v", alert)
			continue
		}
		job, err := bw.Set(collRef.Doc(alert.ID), alert)
		if err != nil {
			bw.End()
			return classify(fmt.Errorf("enqueueing alert %s: %w", alert.ID, err))
		}
		jobs = append(jobs, &firestoreJob{id: alert.ID, job: job})
	}

	bw.Flush()

	// Surface the first failed write so the ledger can roll back the
	// whole change set instead of applying it partially.
	for _, j := range jobs {
		if _, err := j.job.Results(); err != nil {
			return classify(fmt.Errorf("writing alert %s: %w", j.id, err))
		}
	}
	return nil
}

// ActiveAlerts retrieves every alert still marked active, for seeding
// the ledger at startup.
func (s *Store) ActiveAlerts(ctx context.Context) ([]types.Alert, error) {
	var alerts []types.Alert

	iter := s.client.Collection(alertsCollection).
		Where("status", "==", string(types.AlertActive)).
		Documents(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classify(fmt.Errorf("iterating alerts: %w", err))
		}

		var alert types.Alert
		if err := doc.DataTo(&alert); err != nil {
			logSkippedDoc(alertsCollection, doc.Ref.ID, err)
			continue
		}
		alert.ID = doc.Ref.ID
		alerts = append(alerts, alert)
	}

	log.Printf("Retrieved %d active alerts from the database.", len(alerts))
	return alerts, nil
}
