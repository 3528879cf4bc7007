package domain

import "time"

// Session describes an authenticated sign-in.
type Session struct {
	TokenID   string
	Token     string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Principal is the acting user with its resolved permissions.
type Principal struct {
	Profile      Profile
	Roles        RoleSet
	Capabilities CapabilitySet
	SessionID    string
}

// NewPrincipal resolves capabilities from the held roles.
func NewPrincipal(profile Profile, roles RoleSet) *Principal {
	return &Principal{
		Profile:      profile,
		Roles:        roles,
		Capabilities: roles.Capabilities(),
	}
}

// UserID returns the profile id of the principal.
func (p *Principal) UserID() string {
	if p == nil {
		return ""
	}
	return p.Profile.ID
}

// Can reports whether the principal holds capability c.
func (p *Principal) Can(c Capability) bool {
	return p != nil && p.Capabilities.Has(c)
}
