package categories

import (
	"context"
	"fmt"

	"github.com/fieldops/fieldops/internal/platform/httpx"
)

// Service applies category rules. Permission gates live on the routes.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Category, error) {
	list, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Category{}
	}
	return list, nil
}

func (s *Service) Create(ctx context.Context, in CreateInput) (Category, error) {
	in, err := s.validate(in)
	if err != nil {
		return Category{}, err
	}
	return s.repo.Create(ctx, Category{Name: in.Name, Description: in.Description})
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid category id", httpx.ErrValidation)
	}
	return s.repo.Delete(ctx, id)
}
