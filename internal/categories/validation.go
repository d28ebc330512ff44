package categories

import (
	"fmt"
	"strings"

	"github.com/fieldops/fieldops/internal/platform/httpx"
)

func (s *Service) validate(in CreateInput) (CreateInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" {
		return in, fmt.Errorf("%w: category name is required", httpx.ErrValidation)
	}
	return in, nil
}
