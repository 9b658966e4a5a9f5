// Package store persists users. All backends share the same semantics:
// copies in and out, ErrAlreadyUsed on a taken username or national ID,
// and a conditional MarkVerified.
package store

import (
	"sort"

	"landregistry/internal/identity/models"
	id "landregistry/pkg/domain"
)

func containsID(ids []id.UserID, target id.UserID) bool {
	for _, candidate := range ids {
		if candidate == target {
			return true
		}
	}
	return false
}

func sortByUsername(users []*models.User) {
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
}
