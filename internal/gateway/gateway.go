// Package gateway is the uniform send(target, message) boundary over the
// external messaging providers. Provider errors never escape as panics or
// raw errors: every call returns an Outcome the dispatch queue can act on.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"notification-engine/internal/logging"
	"notification-engine/internal/metrics"
)

// ErrInvalidTarget marks a target that can never become deliverable. The
// dispatch queue fails such jobs immediately instead of retrying.
var ErrInvalidTarget = errors.New("invalid target")

// Provider is one pluggable external messaging implementation.
type Provider interface {
	Name() string
	Send(ctx context.Context, target, message string) (string, error)
}

// Outcome is the result of one send attempt.
type Outcome struct {
	Success          bool   `json:"success"`
	Disabled         bool   `json:"disabled,omitempty"`
	Provider         string `json:"provider,omitempty"`
	ProviderResponse string `json:"provider_response,omitempty"`
	Err              error  `json:"-"`
}

// Adapter validates and normalizes targets, then delegates to the configured
// provider. When the subsystem is administratively disabled it reports
// success with the Disabled flag set so callers need no special case.
type Adapter struct {
	provider Provider
	logger   *logging.Logger
	enabled  bool
}

func NewAdapter(provider Provider, logger *logging.Logger, enabled bool) *Adapter {
	a := &Adapter{provider: provider, logger: logger, enabled: enabled}
	if provider == nil && enabled {
		// Missing credentials at startup: report disabled instead of
		// failing every send.
		logger.Warnf("Gateway provider not configured, subsystem disabled")
		a.enabled = false
	}
	return a
}

// Enabled reports whether sends reach a real provider.
func (a *Adapter) Enabled() bool {
	return a.enabled
}

// ProviderName returns the active provider's name, or "" when disabled.
func (a *Adapter) ProviderName() string {
	if a.provider == nil {
		return ""
	}
	return a.provider.Name()
}

// Send delivers message to target through the configured provider.
func (a *Adapter) Send(ctx context.Context, target, message string) Outcome {
	if !a.enabled {
		return Outcome{Success: true, Disabled: true}
	}

	if !ValidateTarget(target) {
		return Outcome{
			Provider: a.provider.Name(),
			Err:      fmt.Errorf("%w %q", ErrInvalidTarget, target),
		}
	}

	normalized := NormalizeTarget(target)
	resp, err := a.provider.Send(ctx, normalized, message)
	if err != nil {
		metrics.GatewaySendsFailed.Inc()
		a.logger.Errorf("Gateway send via %s to %s failed: %v", a.provider.Name(), normalized, err)
		return Outcome{Provider: a.provider.Name(), Err: err}
	}

	metrics.GatewaySendsOK.Inc()
	a.logger.Debugf("Gateway send via %s to %s ok", a.provider.Name(), normalized)
	return Outcome{Success: true, Provider: a.provider.Name(), ProviderResponse: resp}
}
