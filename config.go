package packdb

import (
	"errors"
	"time"
)

// DefaultLockTimeout bounds how long a staged operation waits for a file lock.
const DefaultLockTimeout = time.Hour

// RetryPolicy configures the exponential backoff of compensating actions.
type RetryPolicy struct {
	// BaseDelay is the first delay between attempts; it doubles on each retry.
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay"`
	// MaxDelay caps a single delay. Zero means uncapped.
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay"`
	// MaxRetries is the number of retries after the first attempt. Negative means no limit.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// DefaultRollbackPolicy gives a rollback roughly half a minute before the record is poisoned.
var DefaultRollbackPolicy = RetryPolicy{
	BaseDelay:  10 * time.Millisecond,
	MaxDelay:   5 * time.Second,
	MaxRetries: 12,
}

// PoisonHandler is notified when a compensating rollback gives up on a record.
type PoisonHandler func(report PoisonReport)

// Options holds the configuration of a data root.
type Options struct {
	// DataDir is the root folder; each record type gets a sub folder named after it.
	DataDir string `json:"data_dir" yaml:"data_dir"`
	// LockTimeout is the maximum wait for a per-file lock. Defaults to DefaultLockTimeout.
	LockTimeout time.Duration `json:"lock_timeout,omitempty" yaml:"lock_timeout,omitempty"`
	// Rollback is the retry policy of compensating rollbacks.
	Rollback RetryPolicy `json:"rollback" yaml:"rollback"`
	// OnPoison, when set, is invoked after a poison report is written.
	OnPoison PoisonHandler `json:"-" yaml:"-"`
}

// DefaultOptions returns options for the given data folder.
func DefaultOptions(dataDir string) Options {
	return Options{
		DataDir:     dataDir,
		LockTimeout: DefaultLockTimeout,
		Rollback:    DefaultRollbackPolicy,
	}
}

// Validate checks the options and fills in defaults for zero values.
func (o *Options) Validate() error {
	if o.DataDir == "" {
		return errors.New("data directory is required")
	}
	if o.LockTimeout < 0 {
		return errors.New("lock timeout can't be negative")
	}
	if o.LockTimeout == 0 {
		o.LockTimeout = DefaultLockTimeout
	}
	if o.Rollback.BaseDelay < 0 || o.Rollback.MaxDelay < 0 {
		return errors.New("rollback delays can't be negative")
	}
	if o.Rollback.BaseDelay == 0 {
		o.Rollback.BaseDelay = DefaultRollbackPolicy.BaseDelay
	}
	return nil
}
