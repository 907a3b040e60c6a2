package jobqueue

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/models"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/repository"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/env"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/metrics/counter"
)

// Manager manages the global job queue and background tasks
type Manager struct {
	queue           *Queue
	reconcileTicker *time.Ticker
	stopCh          chan struct{}
	wg              sync.WaitGroup
	mu              sync.Mutex
	running         bool

	users repository.UserRepository
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workerCount := 5
		if v, err := strconv.Atoi(env.GetEnv("JOB_WORKERS", "")); err == nil && v > 0 {
			workerCount = v
		}
		globalManager = &Manager{
			queue:  NewQueue(workerCount),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Configure wires the processors and the user lookup used to address
// billing notifications. Must run before Start.
func (m *Manager) Configure(mailer Mailer, exporter Exporter, reconciler Reconciler, users repository.UserRepository) {
	m.queue.SetProcessors(mailer, exporter, reconciler)
	m.users = users
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	// Stale-charge reconciliation: confirmation callbacks get lost, so a
	// periodic sweep polls the upstream outcome for old pending charges.
	interval := 10 * time.Minute
	if v, err := strconv.Atoi(env.GetEnv("CHARGE_RECONCILE_INTERVAL_MINUTES", "")); err == nil && v > 0 {
		interval = time.Duration(v) * time.Minute
	}
	m.reconcileTicker = time.NewTicker(interval)
	m.wg.Add(1)
	go m.reconcileWorker()

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.reconcileTicker != nil {
		m.reconcileTicker.Stop()
	}
	close(m.stopCh)
	m.wg.Wait()
	m.queue.Stop()
	m.running = false

	log.Info("[JobQueue Manager] Stopped")
}

func (m *Manager) reconcileWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case <-m.reconcileTicker.C:
			if _, err := m.queue.EnqueueJob(JobTypeChargeReconcile, map[string]interface{}{}); err != nil {
				log.Errorf("[JobQueue Manager] Failed to enqueue reconcile job: %v", err)
			}
		}
	}
}

// EnqueueDataExport schedules a compliance export. Satisfies the webhook
// pipeline's async sink.
func (m *Manager) EnqueueDataExport(tenantID uint, topic string, payloadJSON string) error {
	payload := ComplianceExportJobPayload{
		TenantID:    tenantID,
		Topic:       topic,
		RequestJSON: payloadJSON,
	}
	_, err := m.queue.EnqueueJob(JobTypeComplianceExport, payload.ToMap())
	return err
}

// ChargeResolved notifies the tenant's operators about a resolved charge.
// Satisfies the billing manager's notifier; runs post-commit, failures only
// log.
func (m *Manager) ChargeResolved(tenantID uint, ch *models.Charge) {
	if err := counter.AddChargeOutcome(ch.Status); err != nil {
		log.Debugf("[JobQueue Manager] charge counter: %v", err)
	}
	if m.users == nil {
		return
	}
	address := m.billingRecipient(tenantID)

	var subject, body string
	switch ch.Status {
	case models.ChargeStatusAccepted:
		subject = "Your subscription is active"
		body = fmt.Sprintf("Your subscription charge of %d.%02d %s was accepted. Thanks for subscribing!",
			ch.AmountCents/100, ch.AmountCents%100, ch.Currency)
	case models.ChargeStatusDeclined:
		subject = "Subscription charge declined"
		body = "Your subscription charge was declined. You can retry from the billing page."
	default:
		return
	}

	payload := EmailJobPayload{
		Address:  address,
		Subject:  subject,
		Body:     body,
		TenantID: tenantID,
	}
	if _, err := m.queue.EnqueueJob(JobTypeEmailSend, payload.ToMap()); err != nil {
		log.Errorf("[JobQueue Manager] Failed to enqueue billing mail for tenant %d: %v", tenantID, err)
	}
}

// billingRecipient picks the tenant's first admin operator, falling back to
// any operator.
func (m *Manager) billingRecipient(tenantID uint) string {
	users, err := m.users.ListByTenant(tenantID)
	if err != nil || len(users) == 0 {
		return ""
	}
	for _, u := range users {
		if u.Role == models.ROLE_ADMIN && u.Email != "" {
			return u.Email
		}
	}
	return users[0].Email
}
