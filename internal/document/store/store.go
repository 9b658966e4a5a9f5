// Package store persists document metadata. Verification is a conditional
// write so the first verifier is never overwritten, and updates apply only
// to unverified documents.
package store

import (
	"bytes"
	"slices"
	"sort"

	"landregistry/internal/document/models"
	id "landregistry/pkg/domain"
)

func uploadedBy(uploaders []id.UserID, uploader id.UserID) bool {
	return uploaders == nil || slices.Contains(uploaders, uploader)
}

func sortNewestFirst(docs []*models.Document) {
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].UploadedAt.Equal(docs[j].UploadedAt) {
			return docs[i].UploadedAt.After(docs[j].UploadedAt)
		}
		return bytes.Compare(docs[i].ID[:], docs[j].ID[:]) < 0
	})
}
