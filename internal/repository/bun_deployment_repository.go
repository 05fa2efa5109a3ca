// Package repository persists deployment and rollback history with Bun.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/opsgate/opsgate/internal/db/models"
	"github.com/opsgate/opsgate/internal/services/devops"
)

// BunDeploymentRepository implements devops.DeploymentStore against
// PostgreSQL or SQLite.
type BunDeploymentRepository struct {
	db *bun.DB
}

func NewBunDeploymentRepository(db *bun.DB) *BunDeploymentRepository {
	return &BunDeploymentRepository{db: db}
}

// CreateSchema creates the history tables if they do not exist. Called
// once at startup.
func (r *BunDeploymentRepository) CreateSchema(ctx context.Context) error {
	for _, model := range []any{(*models.DeploymentRecord)(nil), (*models.RollbackRecord)(nil)} {
		if _, err := r.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create history schema: %w", err)
		}
	}
	return nil
}

// SaveDeployment inserts one deployment row.
func (r *BunDeploymentRepository) SaveDeployment(ctx context.Context, d *devops.Deployment) error {
	record := &models.DeploymentRecord{
		DeploymentID: d.DeploymentID,
		ServiceName:  d.ServiceName,
		Version:      d.Version,
		Environment:  d.Environment,
		Status:       d.Status,
		InitiatedBy:  d.InitiatedBy,
		Timestamp:    d.Timestamp,
		CreatedAt:    time.Now(),
	}
	if err := record.ValidateForCreate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if _, err := r.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return fmt.Errorf("insert deployment: %w", err)
	}
	return nil
}

// SaveRollback inserts one rollback row.
func (r *BunDeploymentRepository) SaveRollback(ctx context.Context, rb *devops.Rollback) error {
	record := &models.RollbackRecord{
		RollbackID:   rb.RollbackID,
		DeploymentID: rb.DeploymentID,
		Status:       rb.Status,
		Reason:       rb.Reason,
		Environment:  rb.Environment,
		InitiatedBy:  rb.InitiatedBy,
		Timestamp:    rb.Timestamp,
		CreatedAt:    time.Now(),
	}
	if err := record.ValidateForCreate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if _, err := r.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return fmt.Errorf("insert rollback: %w", err)
	}
	return nil
}

// ListDeployments returns deployment history, newest first.
func (r *BunDeploymentRepository) ListDeployments(ctx context.Context, limit int) ([]devops.Deployment, error) {
	var records []models.DeploymentRecord
	err := r.db.NewSelect().
		Model(&records).
		Order("timestamp DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("query deployments: %w", err)
	}

	deployments := make([]devops.Deployment, 0, len(records))
	for _, record := range records {
		deployments = append(deployments, devops.Deployment{
			DeploymentID: record.DeploymentID,
			ServiceName:  record.ServiceName,
			Version:      record.Version,
			Environment:  record.Environment,
			Status:       record.Status,
			InitiatedBy:  record.InitiatedBy,
			Timestamp:    record.Timestamp,
		})
	}
	return deployments, nil
}
