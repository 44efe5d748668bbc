package runtime

import (
	"context"
	"time"
)

// DefaultTimeout bounds monitored execution when no resource configuration
// supplies one.
const DefaultTimeout = 30 * time.Second

// ResourceConfig carries the execution knobs resolved for one operation.
type ResourceConfig struct {
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Resources is the per-operation bundle handed to an implementation:
// configuration plus named infrastructure services.
type Resources struct {
	Config   ResourceConfig
	Services map[string]any
}

// Service returns a named service from the bundle.
func (r *Resources) Service(name string) (any, bool) {
	if r == nil || r.Services == nil {
		return nil, false
	}
	s, ok := r.Services[name]
	return s, ok
}

// ResourceInjector resolves the resources an operation needs. It is an
// external collaborator injected at Context construction.
type ResourceInjector interface {
	Inject(ctx context.Context, operation string) (*Resources, error)
}

// InjectorFunc adapts a function to the ResourceInjector interface.
type InjectorFunc func(ctx context.Context, operation string) (*Resources, error)

// Inject implements ResourceInjector.
func (f InjectorFunc) Inject(ctx context.Context, operation string) (*Resources, error) {
	return f(ctx, operation)
}

// Authorizer is the infrastructure service consulted before any operation
// work begins.
type Authorizer interface {
	CheckPermission(ctx context.Context, userID, operation string) (bool, error)
}

// Messenger is the infrastructure service used to deliver messages outward.
type Messenger interface {
	Send(ctx context.Context, target string, payload map[string]any) error
}
