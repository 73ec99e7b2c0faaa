package plans

import "errors"

var (
	ErrPlanNotFound       = errors.New("plans: plan not found")
	ErrLimitNotDefined    = errors.New("plans: limit not defined for plan")
	ErrInvalidPlan        = errors.New("plans: invalid plan definition")
	ErrFailedToLoadPlans  = errors.New("plans: failed to load plan catalog")
	ErrConfiguration      = errors.New("plans: malformed limit configuration")
	ErrUnexpectedDataType = errors.New("plans: limit has unexpected data type")
)
