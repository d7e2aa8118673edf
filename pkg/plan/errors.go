package plan

import "errors"

var (
	ErrPlanNotFound      = errors.New("plan: not found")
	ErrPlanAlreadyExists = errors.New("plan: already exists")
	ErrInvalidPlan       = errors.New("plan: invalid plan configuration")
	ErrFailedToLoadPlans = errors.New("plan: failed to load plan catalog")
)
