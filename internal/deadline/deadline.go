// Package deadline tracks the absolute deadline of a staged task across
// invocations. The deadline is created once per stage key and persisted in
// the variable store, later invocations only read it.
package deadline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/slok/stager/internal/clock"
	"github.com/slok/stager/internal/log"
	"github.com/slok/stager/internal/model"
	"github.com/slok/stager/internal/storage"
)

// minRemaining is the smallest remaining budget, an expired deadline still
// gives a valid timeout.
const minRemaining = time.Millisecond

const variablePrefix = "STAGER_DEADLINE_"

// TrackerConfig is the configuration for the deadline tracker.
type TrackerConfig struct {
	Variables storage.VariableRepository
	Clock     clock.Clock
	Logger    log.Logger
}

func (c *TrackerConfig) defaults() error {
	if c.Variables == nil {
		return fmt.Errorf("variable repository is required")
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "deadline.Tracker"})
	return nil
}

// Tracker tracks stage deadlines.
type Tracker struct {
	vars   storage.VariableRepository
	clock  clock.Clock
	logger log.Logger
}

// NewTracker returns a new deadline tracker.
func NewTracker(cfg TrackerConfig) (*Tracker, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Tracker{
		vars:   cfg.Variables,
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}, nil
}

// VariableName returns the name of the variable that stores the deadline of key.
func VariableName(key string) string {
	var b strings.Builder
	b.WriteString(variablePrefix)
	for _, r := range strings.ToUpper(key) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// GetOrCreate returns the persisted deadline of key. If there is none, a new
// one is created at now+budget and persisted. Once persisted, budget is ignored.
// An empty key is never persisted, every call gets a fresh deadline.
func (t *Tracker) GetOrCreate(ctx context.Context, key string, budget time.Duration) (time.Time, error) {
	if budget <= 0 {
		return time.Time{}, fmt.Errorf("budget must be positive, got %s: %w", budget, model.ErrNotValid)
	}

	if key == "" {
		return t.clock.Now().Add(budget), nil
	}

	deadline, err := t.Lookup(ctx, key)
	if err == nil {
		t.logger.Debugf("Using inherited deadline %s for %q", deadline.Format(time.RFC3339), key)
		return deadline, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return time.Time{}, err
	}

	deadline = time.UnixMilli(t.clock.Now().Add(budget).UnixMilli())
	value := strconv.FormatInt(deadline.UnixMilli(), 10)
	if err := t.vars.SetVariable(ctx, VariableName(key), value); err != nil {
		return time.Time{}, fmt.Errorf("could not persist deadline: %w", err)
	}
	t.logger.Infof("Created deadline %s for %q (budget %s)", deadline.Format(time.RFC3339), key, budget)

	return deadline, nil
}

// Lookup returns the persisted deadline of key, model.ErrNotFound if there is none.
func (t *Tracker) Lookup(ctx context.Context, key string) (time.Time, error) {
	if key == "" {
		return time.Time{}, fmt.Errorf("deadline without key: %w", model.ErrNotFound)
	}

	value, err := t.vars.GetVariable(ctx, VariableName(key))
	if err != nil {
		return time.Time{}, fmt.Errorf("could not get deadline of %q: %w", key, err)
	}

	ms, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("persisted deadline %q of %q is not valid: %w", value, key, model.ErrNotValid)
	}

	return time.UnixMilli(ms), nil
}

// Remaining returns the time left until deadline, never less than 1ms.
func (t *Tracker) Remaining(deadline time.Time) time.Duration {
	return max(deadline.Sub(t.clock.Now()), minRemaining)
}

// IsExpired returns true when the deadline is in the past.
func (t *Tracker) IsExpired(deadline time.Time) bool {
	return t.clock.Now().After(deadline)
}

// Info returns the state of the persisted deadline of key.
func (t *Tracker) Info(ctx context.Context, key string) (*model.DeadlineInfo, error) {
	deadline, err := t.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	info := &model.DeadlineInfo{
		Key:      key,
		Deadline: deadline,
		Expired:  t.IsExpired(deadline),
	}
	if !info.Expired {
		info.Remaining = t.Remaining(deadline)
	}

	return info, nil
}

// Clear removes the persisted deadline of key so the next invocation starts a new task.
func (t *Tracker) Clear(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("key is required: %w", model.ErrNotValid)
	}

	if err := t.vars.DeleteVariable(ctx, VariableName(key)); err != nil {
		return fmt.Errorf("could not clear deadline of %q: %w", key, err)
	}
	t.logger.Infof("Cleared deadline of %q", key)

	return nil
}
