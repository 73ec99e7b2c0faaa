package lock

import "errors"

var (
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")
	ErrRedisNotReady                = errors.New("redis did not become ready within the given time period")
	ErrHealthcheckFailed            = errors.New("redis healthcheck failed")
	ErrNotAcquired                  = errors.New("lock is held by another owner")
	ErrNotHeld                      = errors.New("lock is no longer held")
	ErrInvalidTTL                   = errors.New("lock ttl must be positive")
)
