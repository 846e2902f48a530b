// Package actor identifies the user or system performing an action.
//
// The HTTP layer resolves the bearer token into an Actor and stores it in
// the request context; services and handlers read it back from there.
package actor

import (
	"context"
	"fmt"
)

// Roles understood by the scheduling service
const (
	RoleEmployee = "employee"
	RoleManager  = "manager"
	RoleSystem   = "system"
)

// SystemID is the actor ID of background jobs and CLI runs
const SystemID = "00000000-0000-0000-0000-000000000000"

// Actor represents the entity performing an action in the system.
type Actor struct {
	// ID is the unique identifier of the actor (user ID)
	ID string `json:"id"`

	// Role is employee, manager or system
	Role string `json:"role"`

	// Email is informational; it is not used for authorization
	Email string `json:"email,omitempty"`
}

// HasRole reports whether the actor holds one of roles
func (a *Actor) HasRole(roles ...string) bool {
	if a == nil {
		return false
	}
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

// IsManager reports whether the actor acts as a manager
func (a *Actor) IsManager() bool {
	return a.HasRole(RoleManager)
}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a == nil {
		return "system"
	}
	return fmt.Sprintf("%s (%s)", a.ID, a.Role)
}

// contextKey is the type for context keys to avoid collisions
type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present (e.g., system operations).
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	actor, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return actor
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}

// SystemActor returns an Actor representing the system itself.
// Use this for background jobs, scheduled tasks, and system-initiated operations.
func SystemActor() *Actor {
	return &Actor{ID: SystemID, Role: RoleSystem}
}

// IsSystem returns true if the actor represents the system.
func (a *Actor) IsSystem() bool {
	if a == nil {
		return true
	}
	return a.ID == SystemID
}
