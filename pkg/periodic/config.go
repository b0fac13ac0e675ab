package periodic

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	fjerrors "github.com/vnykmshr/forkjoin/pkg/common/errors"
	"github.com/vnykmshr/forkjoin/pkg/common/validation"
	"github.com/vnykmshr/forkjoin/pkg/forkjoin"
	"github.com/vnykmshr/forkjoin/pkg/metrics"
)

const (
	// DefaultTickInterval is how often due entries are checked.
	DefaultTickInterval = 50 * time.Millisecond

	// DefaultMaxJobs bounds the number of scheduled entries.
	DefaultMaxJobs = 10000

	// MaxIDLength is the longest accepted entry ID.
	MaxIDLength = 255
)

// Clock provides the current time. Tests substitute a controllable clock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config holds scheduler configuration.
type Config struct {
	// Pool executes dispatched jobs. Required; the scheduler never shuts it
	// down.
	Pool *forkjoin.Pool

	// Name identifies the scheduler in logs and metric labels.
	Name string

	// Clock defaults to the wall clock.
	Clock Clock

	// Location is used to evaluate cron expressions. Defaults to time.Local.
	Location *time.Location

	// TickInterval is how often due entries are checked.
	TickInterval time.Duration

	// MaxJobs limits the number of scheduled entries.
	MaxJobs int

	// Logger receives dispatch and failure events. If nil, nothing is logged.
	Logger hclog.Logger

	// Metrics configures Prometheus instrumentation.
	Metrics metrics.Config

	// OnError is called with the entry ID when a dispatched job fails.
	OnError func(id string, err error)
}

func (c Config) withDefaults() (Config, error) {
	if c.Pool == nil {
		return c, fjerrors.NewValidationError("periodic", "pool", nil, "cannot be nil").
			WithHint("create one with forkjoin.New")
	}
	if err := validation.ValidateNonNegative("periodic", "tickInterval", int64(c.TickInterval)); err != nil {
		return c, err
	}
	if err := validation.ValidateNonNegative("periodic", "maxJobs", c.MaxJobs); err != nil {
		return c, err
	}

	if c.Name == "" {
		c.Name = "periodic-" + uuid.NewString()[:8]
	}
	if c.Clock == nil {
		c.Clock = realClock{}
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.TickInterval == 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.MaxJobs == 0 {
		c.MaxJobs = DefaultMaxJobs
	}
	if c.Logger == nil {
		c.Logger = hclog.NewNullLogger()
	}
	return c, nil
}
