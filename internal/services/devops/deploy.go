package devops

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/opsgate/opsgate/internal/errs"
)

// DeploymentStore persists deployment and rollback history. Recording
// is best-effort: a store failure is logged, never surfaced, because
// the pipeline action already happened.
type DeploymentStore interface {
	SaveDeployment(ctx context.Context, d *Deployment) error
	SaveRollback(ctx context.Context, r *Rollback) error
	ListDeployments(ctx context.Context, limit int) ([]Deployment, error)
}

// DeployService triggers deployments through the CI/CD backend and
// records them.
type DeployService struct {
	cicd  *CICDBackend
	store DeploymentStore
}

// NewDeployService wires the service. store may be nil, which disables
// history.
func NewDeployService(cicd *CICDBackend, store DeploymentStore) *DeployService {
	return &DeployService{cicd: cicd, store: store}
}

// Deploy triggers a deployment of serviceName at version into
// environment. The environment has already been authorized by the
// permission engine; this validates the remaining inputs. initiatedBy
// is the acting user's id and lands in the history row.
func (s *DeployService) Deploy(ctx context.Context, serviceName, version, environment, initiatedBy string) (*DeployOutcome, error) {
	if strings.TrimSpace(serviceName) == "" {
		return nil, errs.NewValidation("service_name", "must not be empty")
	}
	if strings.TrimSpace(version) == "" {
		return nil, errs.NewValidation("version", "must not be empty")
	}

	deployment, err := s.cicd.Deploy(ctx, serviceName, version, environment)
	if err != nil {
		return nil, errs.NewInternal(fmt.Errorf("deploy %s: %w", serviceName, err))
	}
	deployment.InitiatedBy = initiatedBy

	if s.store != nil {
		if err := s.store.SaveDeployment(ctx, &deployment); err != nil {
			log.Printf("ERROR: record deployment %s: %v", deployment.DeploymentID, err)
		}
	}

	success := deployment.Status == StatusSuccess || deployment.Status == StatusInProgress
	return &DeployOutcome{
		Success:    success,
		Deployment: deployment,
		Message:    deployMessage(deployment),
		Metadata: map[string]any{
			"deployment_id": deployment.DeploymentID,
			"timestamp":     deployment.Timestamp.Format(time.RFC3339),
			"environment":   deployment.Environment,
		},
	}, nil
}

// RecentDeployments returns deployment history, newest first.
func (s *DeployService) RecentDeployments(ctx context.Context, limit int) ([]Deployment, error) {
	if limit <= 0 {
		limit = 20
	}
	if s.store == nil {
		return []Deployment{}, nil
	}
	deployments, err := s.store.ListDeployments(ctx, limit)
	if err != nil {
		return nil, errs.NewInternal(fmt.Errorf("list deployments: %w", err))
	}
	return deployments, nil
}

func deployMessage(d Deployment) string {
	switch d.Status {
	case StatusSuccess:
		return fmt.Sprintf("Successfully deployed %s %s to %s", d.ServiceName, d.Version, d.Environment)
	case StatusInProgress:
		return fmt.Sprintf("Deployment of %s to %s is in progress", d.ServiceName, d.Environment)
	default:
		return fmt.Sprintf("Failed to deploy %s to %s", d.ServiceName, d.Environment)
	}
}
