package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/opsgate/opsgate/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20260829000001, down_20260829000001)
}

// up_20260829000001 creates the deployment history tables.
func up_20260829000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating deployments table...")
	_, err := db.NewCreateTable().
		Model((*models.DeploymentRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create deployments table: %w", err)
	}

	// History listings read newest-first per environment.
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_deployments_timestamp ON deployments(timestamp)`)
	if err != nil {
		return fmt.Errorf("failed to create index on deployments: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_deployments_environment ON deployments(environment)`)
	if err != nil {
		return fmt.Errorf("failed to create environment index: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating rollbacks table...")
	_, err = db.NewCreateTable().
		Model((*models.RollbackRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create rollbacks table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_rollbacks_deployment_id ON rollbacks(deployment_id)`)
	if err != nil {
		return fmt.Errorf("failed to create index on rollbacks: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20260829000001 drops the deployment history tables.
func down_20260829000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping rollbacks table...")
	if _, err := db.NewDropTable().Model((*models.RollbackRecord)(nil)).IfExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to drop rollbacks table: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [down] dropping deployments table...")
	if _, err := db.NewDropTable().Model((*models.DeploymentRecord)(nil)).IfExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to drop deployments table: %w", err)
	}
	fmt.Println(" OK")

	return nil
}
