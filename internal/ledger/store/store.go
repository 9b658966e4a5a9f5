// Package store persists land transactions. Status changes are conditional
// writes so a completed transaction is never completed twice, and every
// backend can also move parcel ownership inside the same unit of work.
package store

import (
	"bytes"
	"slices"
	"sort"

	"landregistry/internal/ledger/models"
	id "landregistry/pkg/domain"
)

// involves reports whether t has one of parties on either side. A nil
// parties slice matches everything.
func involves(parties []id.UserID, t *models.Transaction) bool {
	return parties == nil || slices.Contains(parties, t.FromOwner) || slices.Contains(parties, t.ToOwner)
}

func sortNewestFirst(txs []*models.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].CreatedAt.After(txs[j].CreatedAt)
		}
		return bytes.Compare(txs[i].ID[:], txs[j].ID[:]) < 0
	})
}
