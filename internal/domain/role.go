package domain

import (
	"sort"
	"time"
)

// Role enumerates the named capability sets a user can hold.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleManager   Role = "manager"
	RoleAllocater Role = "allocater"
	RoleDeclarant Role = "declarant"
)

// Roles lists every known role.
var Roles = []Role{RoleAdmin, RoleManager, RoleAllocater, RoleDeclarant}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Capability is a single permission flag.
type Capability uint32

const (
	CapViewAllJobs Capability = 1 << iota
	CapViewOwnJobs
	CapCreateJob
	CapEditJob
	CapDeleteJob
	CapAllocateJob
	CapClaimJob
	CapImportJobs
	CapUpdateAnyStatus
	CapUpdateAssignedStatus
	CapViewReports
	CapManageRoles
)

var capabilityNames = map[Capability]string{
	CapViewAllJobs:          "view_all_jobs",
	CapViewOwnJobs:          "view_own_jobs",
	CapCreateJob:            "create_job",
	CapEditJob:              "edit_job",
	CapDeleteJob:            "delete_job",
	CapAllocateJob:          "allocate_job",
	CapClaimJob:             "claim_job",
	CapImportJobs:           "import_jobs",
	CapUpdateAnyStatus:      "update_any_status",
	CapUpdateAssignedStatus: "update_assigned_status",
	CapViewReports:          "view_reports",
	CapManageRoles:          "manage_roles",
}

// String returns the wire name of a single capability.
func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return "unknown"
}

// CapabilitySet is a union of capability flags.
type CapabilitySet uint32

// Has reports whether every flag in c is present.
func (s CapabilitySet) Has(c Capability) bool {
	return uint32(s)&uint32(c) == uint32(c) && c != 0
}

// HasAny reports whether at least one of caps is present.
func (s CapabilitySet) HasAny(caps ...Capability) bool {
	for _, c := range caps {
		if s.Has(c) {
			return true
		}
	}
	return false
}

// Names lists the flags in the set, sorted.
func (s CapabilitySet) Names() []string {
	names := make([]string, 0, len(capabilityNames))
	for c, name := range capabilityNames {
		if s.Has(c) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func capabilities(caps ...Capability) CapabilitySet {
	var set CapabilitySet
	for _, c := range caps {
		set |= CapabilitySet(c)
	}
	return set
}

// Admin and manager are enumerated separately even though they are identical;
// neither contains the other.
var roleCapabilities = map[Role]CapabilitySet{
	RoleAdmin: capabilities(
		CapViewAllJobs, CapCreateJob, CapEditJob, CapDeleteJob, CapAllocateJob,
		CapImportJobs, CapUpdateAnyStatus, CapViewReports, CapManageRoles,
	),
	RoleManager: capabilities(
		CapViewAllJobs, CapCreateJob, CapEditJob, CapDeleteJob, CapAllocateJob,
		CapImportJobs, CapUpdateAnyStatus, CapViewReports, CapManageRoles,
	),
	RoleAllocater: capabilities(
		CapViewAllJobs, CapCreateJob, CapEditJob, CapAllocateJob, CapImportJobs,
	),
	RoleDeclarant: capabilities(
		CapViewOwnJobs, CapClaimJob, CapUpdateAssignedStatus,
	),
}

// CapabilitiesOf returns the capability set of a single role.
func CapabilitiesOf(role Role) CapabilitySet {
	return roleCapabilities[role]
}

// RoleSet is the set of roles held by one user.
type RoleSet map[Role]struct{}

// NewRoleSet builds a set from roles, ignoring unknown values.
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		if r.Valid() {
			set[r] = struct{}{}
		}
	}
	return set
}

// Has reports whether the set contains role.
func (s RoleSet) Has(role Role) bool {
	_, ok := s[role]
	return ok
}

// List returns the roles in declaration order.
func (s RoleSet) List() []Role {
	out := make([]Role, 0, len(s))
	for _, r := range Roles {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

// Capabilities is the union of every held role's capabilities.
func (s RoleSet) Capabilities() CapabilitySet {
	var set CapabilitySet
	for r := range s {
		set |= roleCapabilities[r]
	}
	return set
}

// RoleAssignment is a granted (user, role) pair.
type RoleAssignment struct {
	UserID    string
	Role      Role
	CreatedAt time.Time
}
