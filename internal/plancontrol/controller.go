// Package plancontrol scopes optimizer configurations around trial
// execution. It is the layer that guarantees configuration hygiene: a
// configuration applied for one trial is always rolled back before the
// next, and a directive the engine did not honor becomes a hard error
// instead of a silently mislabeled measurement.
package plancontrol

import (
	"context"
	"fmt"

	"github.com/stratabench/stratabench/internal/engine"
	"github.com/stratabench/stratabench/internal/errors"
	"github.com/stratabench/stratabench/pkg/types"
)

// Controller hands out scoped sessions over the embedded engine.
type Controller struct {
	engine *engine.Engine
}

// New creates a Controller over the given engine.
func New(e *engine.Engine) *Controller {
	return &Controller{engine: e}
}

// WithConfig applies an optimizer configuration and returns the scoped
// session holding it. The call blocks until no other session is active.
// Callers must Release the session, usually via defer, so the prior
// global settings are restored even when a trial fails.
func (c *Controller) WithConfig(cfg types.OptimizerConfig) *ScopedSession {
	return &ScopedSession{
		config:  cfg,
		session: c.engine.Acquire(engine.SettingsFromConfig(cfg)),
	}
}

// ScopedSession is one optimizer configuration held for the duration of
// a trial.
type ScopedSession struct {
	config  types.OptimizerConfig
	session *engine.Session
}

// Config returns the configuration this session applies.
func (s *ScopedSession) Config() types.OptimizerConfig {
	return s.config
}

// Release restores the prior global settings. Idempotent.
func (s *ScopedSession) Release() {
	s.session.Release()
}

// CapturePlan plans a workload under this session's configuration
// without executing it, verifying that the plan honors the
// configuration's directives.
func (s *ScopedSession) CapturePlan(w types.Workload, enc types.Encoding) (*engine.PlanDescriptor, error) {
	desc, err := s.session.Plan(w, enc)
	if err != nil {
		return nil, err
	}
	if err := s.verify(w, desc); err != nil {
		return nil, err
	}
	return desc, nil
}

// Execute runs a workload under this session's configuration, verifying
// the captured plan before returning the result.
func (s *ScopedSession) Execute(ctx context.Context, w types.Workload, enc types.Encoding) (*engine.Result, *engine.PlanDescriptor, error) {
	res, desc, err := s.session.Execute(ctx, w, enc)
	if err != nil {
		return nil, nil, err
	}
	if err := s.verify(w, desc); err != nil {
		return nil, nil, err
	}
	return res, desc, nil
}

// verify checks the plan against the configuration's directives. Today
// the only verifiable directive is the broadcast force: a forced
// configuration whose join did not broadcast would measure the wrong
// strategy under the right label, which is worse than failing.
func (s *ScopedSession) verify(w types.Workload, desc *engine.PlanDescriptor) error {
	if w.Kind != types.WorkloadJoin {
		return nil
	}
	if s.config.BroadcastForced && desc.JoinStrategy != engine.JoinBroadcastHash {
		return errors.NewPlanMismatch(fmt.Sprintf(
			"config %q forces broadcast but the plan chose %s:\n%s",
			s.config.Name, desc.JoinStrategy, desc.Physical))
	}
	return nil
}
