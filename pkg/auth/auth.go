package auth

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAuditor Role = "auditor"
	RoleAnalyst Role = "analyst"
	RoleViewer  Role = "viewer"
)

type Capability string

const (
	CapFindingsRead    Capability = "findings:read"
	CapFindingsResolve Capability = "findings:resolve"
	CapAuditsRun       Capability = "audits:run"
	CapInventorySweep  Capability = "inventory:sweep"
	CapInventoryRead   Capability = "inventory:read"
	CapClientsRead     Capability = "clients:read"
)

var roleCapabilities = map[Role][]Capability{
	RoleAdmin: {
		CapFindingsRead, CapFindingsResolve, CapAuditsRun,
		CapInventorySweep, CapInventoryRead, CapClientsRead,
	},
	RoleAuditor: {
		CapFindingsRead, CapFindingsResolve, CapAuditsRun,
		CapInventorySweep, CapInventoryRead, CapClientsRead,
	},
	RoleAnalyst: {CapFindingsRead, CapFindingsResolve, CapInventoryRead, CapClientsRead},
	RoleViewer:  {CapFindingsRead, CapInventoryRead, CapClientsRead},
}

func ParseRole(s string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := roleCapabilities[role]; !ok {
		return "", fmt.Errorf("unknown role: %q", s)
	}
	return role, nil
}

// Principal is the authenticated caller. Every role but admin is bound to a
// single client.
type Principal struct {
	Subject  string
	Role     Role
	ClientID string
}

func (p Principal) Can(c Capability) bool {
	return slices.Contains(roleCapabilities[p.Role], c)
}

func (p Principal) CanAccessClient(clientID string) bool {
	if p.Role == RoleAdmin {
		return true
	}
	return p.ClientID != "" && p.ClientID == clientID
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
