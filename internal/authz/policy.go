// Package authz decides whether a principal may perform privileged audit
// operations. Decisions are pure; the two-factor gate runs after them.
package authz

import (
	"fmt"
	"strings"

	"alumni/internal/audit"
	"alumni/pkg/requestcontext"
)

// Principal is the identity presented for an authorization decision.
type Principal struct {
	ID             string
	Label          string
	Elevated       bool
	Infrastructure bool
}

// FromActor converts the request actor resolved by the auth middleware.
func FromActor(a requestcontext.Actor) Principal {
	return Principal{
		ID:             a.ID,
		Label:          a.Label,
		Elevated:       a.Elevated,
		Infrastructure: a.Infrastructure,
	}
}

// Policy authorizes restore requests. Principals named in the infrastructure
// list are treated as infrastructure even when their token does not say so.
type Policy struct {
	infra map[string]struct{}
}

func NewPolicy(infraPrincipals ...string) *Policy {
	p := &Policy{infra: make(map[string]struct{}, len(infraPrincipals))}
	for _, id := range infraPrincipals {
		if id = strings.TrimSpace(id); id != "" {
			p.infra[id] = struct{}{}
		}
	}
	return p
}

// CanRestore returns nil when p is an infrastructure principal or carries
// the elevated restore role; otherwise audit.ErrUnauthorized.
func (pol *Policy) CanRestore(p Principal) error {
	if p.ID == "" {
		return fmt.Errorf("%w: anonymous principal", audit.ErrUnauthorized)
	}
	if p.Infrastructure || p.Elevated {
		return nil
	}
	if pol != nil {
		if _, ok := pol.infra[p.ID]; ok {
			return nil
		}
	}
	return fmt.Errorf("%w: %s lacks restore privilege", audit.ErrUnauthorized, p.ID)
}
