package orders

import (
	"context"
	"time"
)

// ReconcileJob refreshes cached statuses of unsettled orders against the broker.
type ReconcileJob struct {
	service *Service
}

// NewReconcileJob creates a new reconciliation job
func NewReconcileJob(service *Service) *ReconcileJob {
	return &ReconcileJob{service: service}
}

// Run executes one reconciliation sweep
func (j *ReconcileJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	_, err := j.service.Reconcile(ctx)
	return err
}

// Name returns the job name for scheduler
func (j *ReconcileJob) Name() string {
	return "order_reconcile"
}
