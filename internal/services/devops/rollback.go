package devops

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/opsgate/opsgate/internal/errs"
)

const minRollbackReasonLength = 5

// RollbackService reverts deployments through the CI/CD backend.
type RollbackService struct {
	cicd  *CICDBackend
	store DeploymentStore
}

func NewRollbackService(cicd *CICDBackend, store DeploymentStore) *RollbackService {
	return &RollbackService{cicd: cicd, store: store}
}

// Rollback reverts the given deployment. The reason is mandatory and
// must carry enough text to be useful in an audit trail. initiatedBy
// is the acting user's id and lands in the history row.
func (s *RollbackService) Rollback(ctx context.Context, deploymentID, reason, environment, initiatedBy string) (*RollbackOutcome, error) {
	if strings.TrimSpace(deploymentID) == "" {
		return nil, errs.NewValidation("deployment_id", "must not be empty")
	}
	if len(strings.TrimSpace(reason)) < minRollbackReasonLength {
		return nil, errs.NewValidation("reason", fmt.Sprintf("must be at least %d characters", minRollbackReasonLength))
	}

	rollback, err := s.cicd.Rollback(ctx, deploymentID, reason, environment)
	if err != nil {
		return nil, errs.NewInternal(fmt.Errorf("rollback %s: %w", deploymentID, err))
	}
	rollback.InitiatedBy = initiatedBy

	if s.store != nil {
		if err := s.store.SaveRollback(ctx, &rollback); err != nil {
			log.Printf("ERROR: record rollback %s: %v", rollback.RollbackID, err)
		}
	}

	success := rollback.Status == StatusSuccess || rollback.Status == StatusInProgress
	return &RollbackOutcome{
		Success:  success,
		Rollback: rollback,
		Message:  rollbackMessage(rollback),
		Metadata: map[string]any{
			"rollback_id": rollback.RollbackID,
			"timestamp":   rollback.Timestamp.Format(time.RFC3339),
			"environment": rollback.Environment,
		},
	}, nil
}

func rollbackMessage(r Rollback) string {
	switch r.Status {
	case StatusSuccess:
		return fmt.Sprintf("Rolled back deployment %s in %s", r.DeploymentID, r.Environment)
	case StatusInProgress:
		return fmt.Sprintf("Rollback of deployment %s in %s is in progress", r.DeploymentID, r.Environment)
	default:
		return fmt.Sprintf("Failed to roll back deployment %s in %s", r.DeploymentID, r.Environment)
	}
}
