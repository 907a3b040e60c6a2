package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeEmailSend        JobType = "email_send"
	JobTypeComplianceExport JobType = "compliance_export"
	JobTypeChargeReconcile  JobType = "charge_reconcile"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// EmailJobPayload carries one outbound notification mail. Mail leaves the
// request/webhook path entirely; a slow SMTP server must never hold up a
// webhook response.
type EmailJobPayload struct {
	To       uint   `json:"user_id"`
	Address  string `json:"address"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	TenantID uint   `json:"tenant_id"`
}

// ToMap converts the payload to a map for storage
func (p EmailJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   p.To,
		"address":   p.Address,
		"subject":   p.Subject,
		"body":      p.Body,
		"tenant_id": p.TenantID,
	}
}

// EmailJobPayloadFromMap creates a payload from a map
func EmailJobPayloadFromMap(data map[string]interface{}) (*EmailJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload EmailJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// ComplianceExportJobPayload carries a customers/data_request export: the
// tenant's data is bundled and uploaded for the merchant to retrieve.
type ComplianceExportJobPayload struct {
	TenantID    uint   `json:"tenant_id"`
	Topic       string `json:"topic"`
	RequestJSON string `json:"request_json"`
}

// ToMap converts the payload to a map for storage
func (p ComplianceExportJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"tenant_id":    p.TenantID,
		"topic":        p.Topic,
		"request_json": p.RequestJSON,
	}
}

// ComplianceExportJobPayloadFromMap creates a payload from a map
func ComplianceExportJobPayloadFromMap(data map[string]interface{}) (*ComplianceExportJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload ComplianceExportJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
