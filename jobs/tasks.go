package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRolesVerify is the task type for the role drift verification job.
	TaskRolesVerify = "rbac:verify_roles"
	// TaskAuditPrune is the task type for audit log retention pruning.
	TaskAuditPrune = "audit:prune"
)

// RolesVerifyPayload configures a verification run.
type RolesVerifyPayload struct {
	// Converge re-applies the default grants when drift is found.
	Converge bool `json:"converge"`
}

// AuditPrunePayload configures a prune run.
type AuditPrunePayload struct {
	// RetentionDays overrides the configured retention when positive.
	RetentionDays int `json:"retention_days,omitempty"`
}

// NewRolesVerifyTask constructs an Asynq task.
func NewRolesVerifyTask(payload RolesVerifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRolesVerify, data), nil
}

// NewAuditPruneTask constructs an Asynq task.
func NewAuditPruneTask(payload AuditPrunePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPrune, data), nil
}
