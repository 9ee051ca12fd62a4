// Package policy holds the authorization rules of the application as plain predicates
// over the acting user and the branch/ownership of the resource at hand.
package policy

import (
	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/user"
)

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID        int64
	Role      string
	BranchIDs []int64
}

func NewActor(usr user.User) Actor {
	return Actor{ID: usr.ID, Role: usr.Role, BranchIDs: usr.BranchIDs}
}

func (a Actor) IsSuperUser() bool  { return a.Role == user.RoleSuperUser }
func (a Actor) IsSupervisor() bool { return a.Role == user.RoleSupervisor }
func (a Actor) IsMarketing() bool  { return a.Role == user.RoleMarketing }

func (a Actor) inBranch(branchID int64) bool {
	return core.ContainsInt64(a.BranchIDs, branchID)
}

// Scope restricts list and report queries to what an actor may see.
// All wins over the other fields; otherwise rows must match BranchIDs (if set) and OwnerID (if set).
type Scope struct {
	All       bool
	BranchIDs []int64
	OwnerID   int64
}

// IsEmpty reports whether the scope cannot match anything.
func (s Scope) IsEmpty() bool {
	return !s.All && len(s.BranchIDs) == 0 && s.OwnerID == 0
}

// ScopeOf returns the lead visibility of the actor.
func ScopeOf(a Actor) Scope {
	switch a.Role {
	case user.RoleSuperUser:
		return Scope{All: true}
	case user.RoleSupervisor:
		return Scope{BranchIDs: append([]int64{}, a.BranchIDs...)}
	case user.RoleMarketing:
		return Scope{OwnerID: a.ID}
	}
	return Scope{}
}

// Narrow restricts s to a single branch; the result is empty if the branch is outside s.
func (s Scope) Narrow(branchID int64) Scope {
	if branchID == 0 {
		return s
	}
	if s.All {
		return Scope{BranchIDs: []int64{branchID}}
	}
	if len(s.BranchIDs) > 0 && !core.ContainsInt64(s.BranchIDs, branchID) {
		return Scope{BranchIDs: []int64{}}
	}
	return Scope{BranchIDs: []int64{branchID}, OwnerID: s.OwnerID}
}

func ManageBranches(a Actor) bool   { return a.IsSuperUser() }
func ManageUsers(a Actor) bool      { return a.IsSuperUser() }
func ManageReferences(a Actor) bool { return a.IsSuperUser() }
func ViewReports(a Actor) bool      { return user.IsValidRole(a.Role) }

func ViewBranch(a Actor, branchID int64) bool {
	return a.IsSuperUser() || a.inBranch(branchID)
}

func ViewLead(a Actor, branchID, ownerID int64) bool {
	switch a.Role {
	case user.RoleSuperUser:
		return true
	case user.RoleSupervisor:
		return a.inBranch(branchID)
	case user.RoleMarketing:
		return ownerID == a.ID
	}
	return false
}

func EditLead(a Actor, branchID, ownerID int64) bool {
	return ViewLead(a, branchID, ownerID)
}

func DeleteLead(a Actor, branchID int64) bool {
	return a.IsSuperUser() || (a.IsSupervisor() && a.inBranch(branchID))
}

func AssignLead(a Actor, branchID int64) bool {
	return DeleteLead(a, branchID)
}

func ReactivateLead(a Actor, branchID int64) bool {
	return DeleteLead(a, branchID)
}

func CreateLeadIn(a Actor, branchID int64) bool {
	return a.IsSuperUser() || ((a.IsSupervisor() || a.IsMarketing()) && a.inBranch(branchID))
}
