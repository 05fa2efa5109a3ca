package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DeploymentRecord is one persisted deployment.
type DeploymentRecord struct {
	bun.BaseModel `bun:"table:deployments,alias:d"`

	DeploymentID string    `bun:"deployment_id,pk"`
	ServiceName  string    `bun:"service_name,notnull"`
	Version      string    `bun:"version,notnull"`
	Environment  string    `bun:"environment,notnull"`
	Status       string    `bun:"status,notnull"`
	InitiatedBy  string    `bun:"initiated_by"`
	Timestamp    time.Time `bun:"timestamp,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// ValidateForCreate verifies the record is well formed before insertion.
func (d *DeploymentRecord) ValidateForCreate() error {
	if _, err := uuid.Parse(d.DeploymentID); err != nil {
		return errors.New("deployment_id must be a valid UUID")
	}
	if d.ServiceName == "" {
		return errors.New("service_name is required")
	}
	if d.Environment == "" {
		return errors.New("environment is required")
	}
	return nil
}

// RollbackRecord is one persisted rollback.
type RollbackRecord struct {
	bun.BaseModel `bun:"table:rollbacks,alias:r"`

	RollbackID   string    `bun:"rollback_id,pk"`
	DeploymentID string    `bun:"deployment_id,notnull"`
	Status       string    `bun:"status,notnull"`
	Reason       string    `bun:"reason,notnull"`
	Environment  string    `bun:"environment,notnull"`
	InitiatedBy  string    `bun:"initiated_by"`
	Timestamp    time.Time `bun:"timestamp,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// ValidateForCreate verifies the record is well formed before insertion.
func (r *RollbackRecord) ValidateForCreate() error {
	if _, err := uuid.Parse(r.RollbackID); err != nil {
		return errors.New("rollback_id must be a valid UUID")
	}
	if r.DeploymentID == "" {
		return errors.New("deployment_id is required")
	}
	if r.Reason == "" {
		return errors.New("reason is required")
	}
	return nil
}
