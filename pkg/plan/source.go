package plan

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Source loads the plan catalog from an external definition.
type Source interface {
	Load(ctx context.Context) ([]Plan, error)
}

// FileSource reads the plan catalog from a YAML file:
//
//	plans:
//	  - id: assistant
//	    price_id: pri_01h...
//	    name: Asystent
//	    monthly_tokens: 100000
//	    price: {amount: 9900, currency: PLN}
type FileSource struct {
	path string
}

// NewFileSource creates a source reading from the given path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Load(ctx context.Context) ([]Plan, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	var catalog struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	for _, p := range catalog.Plans {
		if err := validate(p); err != nil {
			return nil, err
		}
	}

	return catalog.Plans, nil
}

func validate(p Plan) error {
	if p.ID == "" {
		return errors.Join(ErrInvalidPlan, errors.New("plan ID is required"))
	}
	if p.MonthlyTokens < 0 {
		return errors.Join(ErrInvalidPlan, fmt.Errorf("plan %s has negative monthly tokens: %d", p.ID, p.MonthlyTokens))
	}
	return nil
}
