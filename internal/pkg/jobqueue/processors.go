package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// processEmailJob delivers one notification mail.
func (q *Queue) processEmailJob(job *Job) error {
	if q.mailer == nil {
		return errors.New("email processor not configured")
	}
	payload, err := EmailJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid email payload: %w", err)
	}
	if payload.Address == "" {
		// Tenant has no operator with a mail address; nothing to send.
		log.Debugf("[JobQueue] Email job %s without address, skipping", job.ID)
		return nil
	}
	return q.mailer.Send(payload.Address, payload.Subject, payload.Body)
}

// processComplianceExportJob bundles and uploads the tenant's data for a
// customers/data_request.
func (q *Queue) processComplianceExportJob(ctx context.Context, job *Job) error {
	if q.exporter == nil {
		return errors.New("export processor not configured")
	}
	payload, err := ComplianceExportJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid export payload: %w", err)
	}
	key, err := q.exporter.Export(ctx, payload.TenantID, payload.Topic, payload.RequestJSON)
	if err != nil {
		return err
	}
	log.Infof("[JobQueue] Compliance export for tenant %d uploaded as %s", payload.TenantID, key)
	return nil
}

// processChargeReconcileJob runs one stale-charge sweep. The manager
// enqueues these on a ticker; running them through the queue keeps sweeps
// single-flight across instances.
func (q *Queue) processChargeReconcileJob(ctx context.Context) error {
	if q.reconciler == nil {
		return errors.New("reconcile processor not configured")
	}
	n, err := q.reconciler.ReconcileStaleCharges(ctx, time.Now())
	if err != nil {
		return err
	}
	if n > 0 {
		log.Infof("[JobQueue] Charge reconciliation resolved %d stale charges", n)
	}
	return nil
}
