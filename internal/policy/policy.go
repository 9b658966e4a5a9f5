// Package policy is the access policy shared by every module: who may list
// all records, who may see a given record, and who may perform privileged
// transitions. It is pure and performs no I/O.
package policy

import (
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

// CanListAll reports whether role sees every record of every entity.
func CanListAll(role id.Role) bool {
	return isPrivileged(role)
}

// CanMutatePrivileged reports whether role may verify parcels, documents and
// users, and approve transactions.
func CanMutatePrivileged(role id.Role) bool {
	return isPrivileged(role)
}

// CanViewOwn reports whether actorID is one of the record's owners,
// uploaders or counterparties. Role plays no part.
func CanViewOwn(actorID id.UserID, ownerIDs ...id.UserID) bool {
	if actorID.IsNil() {
		return false
	}
	for _, owner := range ownerIDs {
		if owner == actorID {
			return true
		}
	}
	return false
}

// CanView combines CanListAll and CanViewOwn for a single record.
func CanView(actor id.Actor, ownerIDs ...id.UserID) bool {
	if !actor.IsAuthenticated() {
		return false
	}
	return CanListAll(actor.Role) || CanViewOwn(actor.UserID, ownerIDs...)
}

// RequireAuthenticated rejects anonymous actors and actors with an unknown role.
func RequireAuthenticated(actor id.Actor) error {
	if !actor.IsAuthenticated() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return nil
}

// RequirePrivileged rejects anyone who may not perform privileged transitions.
func RequirePrivileged(actor id.Actor) error {
	if err := RequireAuthenticated(actor); err != nil {
		return err
	}
	if !CanMutatePrivileged(actor.Role) {
		return dErrors.New(dErrors.CodeForbidden, "only administrators and land officers may perform this action")
	}
	return nil
}

// VisibleOwners returns the owner set a list query must be restricted to:
// nil for unrestricted access, otherwise the actor alone.
func VisibleOwners(actor id.Actor) []id.UserID {
	if CanListAll(actor.Role) {
		return nil
	}
	return []id.UserID{actor.UserID}
}

func isPrivileged(role id.Role) bool {
	return role == id.RoleAdmin || role == id.RoleLandOfficer
}
