// Package store persists land parcels. Every backend enforces parcel_id
// uniqueness and applies status transitions and ownership transfers as
// conditional writes.
package store

import (
	"bytes"
	"slices"
	"sort"

	"landregistry/internal/parcel/models"
	id "landregistry/pkg/domain"
)

func ownedBy(owners []id.UserID, owner id.UserID) bool {
	return owners == nil || slices.Contains(owners, owner)
}

// sortNewestFirst orders parcels by registration time, newest first, with
// the id as a stable tiebreak.
func sortNewestFirst(parcels []*models.Parcel) {
	sort.Slice(parcels, func(i, j int) bool {
		if !parcels[i].RegisteredAt.Equal(parcels[j].RegisteredAt) {
			return parcels[i].RegisteredAt.After(parcels[j].RegisteredAt)
		}
		return bytes.Compare(parcels[i].ID[:], parcels[j].ID[:]) < 0
	})
}
