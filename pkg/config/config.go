package config

import (
	"fmt"
	"log/slog"
	"time"
)

// App holds process-level settings for the governor binary.
type App struct {
	Env  string `env:"APP_ENV" envDefault:"development"`
	Name string `env:"APP_NAME" envDefault:"governor"`
	// LogLevel overrides the level implied by Env, e.g. "debug".
	LogLevel string `env:"LOG_LEVEL"`

	// StoreBackend selects where governance state lives: "postgres" or "memory".
	StoreBackend string `env:"STORE_BACKEND" envDefault:"postgres"`
	// AutoMigrate applies the embedded schema on startup.
	AutoMigrate bool `env:"PG_AUTO_MIGRATE" envDefault:"true"`
	// LockEnabled guards scheduled jobs with a Redis lock so only one replica runs each.
	LockEnabled bool `env:"REDIS_LOCK_ENABLED" envDefault:"false"`
	// StagingDir is where uploads wait for their quota reservation when S3 is not configured.
	StagingDir string `env:"STAGING_DIR" envDefault:"./data/staging"`
}

// Validate rejects unknown store backends and log levels.
func (a App) Validate() error {
	switch a.StoreBackend {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("unknown store backend %q", a.StoreBackend)
	}
	if a.LogLevel != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(a.LogLevel)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", a.LogLevel, err)
		}
	}
	return nil
}

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Governance holds the time windows and schedules of the governance engine.
type Governance struct {
	// GracePeriod is added to a subscription's end date before it is expired.
	GracePeriod time.Duration `env:"GRACE_PERIOD" envDefault:"48h"`
	// TrialWindow is measured from tenant creation.
	TrialWindow time.Duration `env:"TRIAL_WINDOW" envDefault:"360h"`
	// TrialPlanID governs quota checks for trial tenants without a subscription. Empty disables it.
	TrialPlanID string `env:"TRIAL_PLAN_ID"`
	// PlansFile points at a YAML plan catalog. When empty the catalog is read from the database.
	PlansFile string `env:"PLANS_FILE"`

	DailyHour              int           `env:"RECONCILE_DAILY_HOUR" envDefault:"0"`
	DailyMinute            int           `env:"RECONCILE_DAILY_MINUTE" envDefault:"5"`
	BranchesAtMinute       int           `env:"RECONCILE_BRANCHES_AT_MINUTE" envDefault:"0"`
	YearlyMonthStartOnly   bool          `env:"YEARLY_MONTH_START_ONLY" envDefault:"true"`
	SchedulerCheckInterval time.Duration `env:"SCHEDULER_CHECK_INTERVAL" envDefault:"30s"`
	JobLockTTL             time.Duration `env:"JOB_LOCK_TTL" envDefault:"10m"`
}

// Validate rejects windows and schedule fields that cannot be honoured.
func (g Governance) Validate() error {
	switch {
	case g.GracePeriod < 0:
		return fmt.Errorf("grace period must not be negative: %s", g.GracePeriod)
	case g.TrialWindow <= 0:
		return fmt.Errorf("trial window must be positive: %s", g.TrialWindow)
	case g.DailyHour < 0 || g.DailyHour > 23:
		return fmt.Errorf("daily hour out of range: %d", g.DailyHour)
	case g.DailyMinute < 0 || g.DailyMinute > 59:
		return fmt.Errorf("daily minute out of range: %d", g.DailyMinute)
	case g.BranchesAtMinute < 0 || g.BranchesAtMinute > 59:
		return fmt.Errorf("branches minute out of range: %d", g.BranchesAtMinute)
	}
	return nil
}
