package cronjobs

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"

	"go-cropwatch/epidemic"
)

// InitCronJobs starts the periodic resolution sweep. Event-triggered
// reconciliation alone would never resolve an alert whose source
// events simply went stale, so the sweep runs on a fixed schedule
// regardless of arrivals.
func InitCronJobs(svc *epidemic.Service, sweepSpec string) *cron.Cron {
	log.Println("\nStarting Cron Jobs -------------------------------------------------------")
	c := cron.New()

	_, err := c.AddFunc(sweepSpec, func() {
		log.Println("\nCronJob: Resolution Sweep Running")
		changes := svc.RunSweep(context.Background())
		log.Printf("CronJob: Resolution sweep resolved %d alerts", len(changes))
	})
	if err != nil {
		log.Println("Error scheduling Resolution Sweep:", err)
	}

	c.Start()
	return c
}
