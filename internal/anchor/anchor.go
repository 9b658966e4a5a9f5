// Package anchor produces the opaque references the registry stores for
// external systems: content addresses for uploaded document bytes and ledger
// anchors for canonical record snapshots.
package anchor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	dErrors "landregistry/pkg/domain-errors"
)

// ContentAddresser derives CIDv1 (raw codec, sha2-256) content addresses,
// the same identifiers an IPFS node assigns to a single-block upload.
type ContentAddresser struct {
	prefix cid.Prefix
}

func NewContentAddresser() *ContentAddresser {
	return &ContentAddresser{prefix: cid.Prefix{
		Version:  1,
		Codec:    cid.Raw,
		MhType:   mh.SHA2_256,
		MhLength: -1,
	}}
}

// Address returns the base32 CID string for data.
func (a *ContentAddresser) Address(_ context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("anchor: empty content")
	}
	c, err := a.prefix.Sum(data)
	if err != nil {
		return "", fmt.Errorf("anchor: compute cid: %w", err)
	}
	return c.String(), nil
}

// LedgerAnchorer derives the 0x-prefixed keccak256 digest of a canonical
// record, the value a smart-contract registry would store.
type LedgerAnchorer struct{}

func NewLedgerAnchorer() *LedgerAnchorer {
	return &LedgerAnchorer{}
}

func (LedgerAnchorer) Anchor(_ context.Context, canonical []byte) (string, error) {
	if len(canonical) == 0 {
		return "", errors.New("anchor: empty record")
	}
	return crypto.Keccak256Hash(canonical).Hex(), nil
}

// Canonical encodes a record snapshot deterministically. Struct fields keep
// declaration order and map keys are sorted by encoding/json.
func Canonical(record any) ([]byte, error) {
	b, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("anchor: canonical encoding: %w", err)
	}
	return b, nil
}

// NormalizeAddress validates a 0x-prefixed 20-byte hex account address and
// returns its EIP-55 checksummed form.
func NormalizeAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", dErrors.New(dErrors.CodeValidation, "blockchain_address must start with 0x")
	}
	if !common.IsHexAddress(s) {
		return "", dErrors.New(dErrors.CodeValidation, "blockchain_address must be 20 bytes of hex")
	}
	return common.HexToAddress(s).Hex(), nil
}
