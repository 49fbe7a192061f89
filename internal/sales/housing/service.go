package housing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListProjects(ctx context.Context) ([]Project, error) {
	projects, err := s.repo.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	if projects == nil {
		projects = []Project{}
	}
	return projects, nil
}

// Units lists the units of a project. With availableOnly only units in
// Disponible state with no open negotiation are returned.
func (s *Service) Units(ctx context.Context, projectID uuid.UUID, availableOnly bool) ([]UnitView, error) {
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	units, err := s.repo.ListUnits(ctx, projectID, availableOnly)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	views := make([]UnitView, 0, len(units))
	for _, u := range units {
		views = append(views, NewUnitView(u))
	}
	return views, nil
}

func (s *Service) Unit(ctx context.Context, id uuid.UUID) (*UnitView, error) {
	u, err := s.repo.GetUnit(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get unit: %w", err)
	}
	view := NewUnitView(*u)
	return &view, nil
}
