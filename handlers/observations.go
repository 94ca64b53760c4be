package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-cropwatch/epidemic"
	"go-cropwatch/types"
)

type submitObservationRequest struct {
	Disease    string    `json:"disease" binding:"required"`
	Lat        float64   `json:"lat"`
	Long       float64   `json:"lon"`
	Province   string    `json:"province" binding:"required"`
	District   string    `json:"district"`
	Confidence float64   `json:"confidence"`
	ObservedAt time.Time `json:"observed_at"`
}

// SubmitObservation receives a finished diagnosis from the inference
// layer and feeds it into the outbreak engine. The response carries
// the stored event id plus whatever alert changes the triggered pass
// produced (empty when passes are debounced).
func SubmitObservation(c *gin.Context, svc *epidemic.Service) {
	var req submitObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if req.ObservedAt.IsZero() {
		req.ObservedAt = time.Now().UTC()
	}

	eventID, changes, err := svc.SubmitObservation(c.Request.Context(), types.ObservationEvent{
		Disease:    req.Disease,
		Lat:        req.Lat,
		Long:       req.Long,
		Province:   req.Province,
		District:   req.District,
		Confidence: req.Confidence,
		ObservedAt: req.ObservedAt,
	})
	if err != nil {
		var vErr *types.ValidationError
		switch {
		case errors.As(err, &vErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
		case errors.Is(err, types.ErrStorageUnavailable):
			log.Printf("ERROR persisting observation: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Storage temporarily unavailable, retry later"})
		default:
			log.Printf("ERROR submitting observation: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process observation"})
		}
		return
	}

	if changes == nil {
		changes = []types.AlertChange{}
	}
	c.JSON(http.StatusCreated, gin.H{
		"event_id":      eventID,
		"alert_changes": changes,
	})
}
