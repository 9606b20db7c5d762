package services

import (
	"context"
)

// Provider is an external dependency the service talks to
type Provider interface {
	// Type returns the dependency name shown by the readiness probe
	Type() string

	// HealthCheck checks if the dependency is available
	HealthCheck(ctx context.Context) error
}

// BaseProvider provides common functionality for providers
type BaseProvider struct {
	serviceType string
}

// Type returns the service type
func (p *BaseProvider) Type() string {
	return p.serviceType
}

// PingFunc adapts a ping function into a Provider
type PingFunc struct {
	BaseProvider
	ping func(ctx context.Context) error
}

// NewPingFunc wraps ping as a provider named serviceType
func NewPingFunc(serviceType string, ping func(ctx context.Context) error) *PingFunc {
	return &PingFunc{
		BaseProvider: BaseProvider{serviceType: serviceType},
		ping:         ping,
	}
}

// HealthCheck calls the wrapped ping
func (p *PingFunc) HealthCheck(ctx context.Context) error {
	return p.ping(ctx)
}
