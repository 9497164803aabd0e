// Package provenance issues and verifies attestations over the
// registration-immutable fields of ledger records.
//
// Repair relinks and rehashes whatever content a record carries, so chain
// hashes alone cannot prove the registration data survived. An attestation
// is an HS256 token signed once at registration; it stays valid while the
// immutable fields hold and no repair can reissue it without the signing
// key. Audit-entry growth and cascade relinking do not invalidate it.
package provenance

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chainseal/chainseal/internal/model"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "chainseal"

// ErrMismatch indicates the record no longer matches its attestation.
var ErrMismatch = errors.New("record does not match attestation")

// Claims carried by an attestation. Digest covers every field that must
// not change after registration.
type Claims struct {
	Owner           string   `json:"owner"`
	AuthorizedUsers []string `json:"authorized_users,omitempty"`
	Index           int      `json:"ledger_index"`
	Digest          string   `json:"digest"`
	jwt.RegisteredClaims
}

// immutableFields mirrors the attested subset of a record in lexicographic
// key order, so marshaling is deterministic. PrevHash and audit entries
// are excluded: cascades rewrite the former and the latter grow by design.
type immutableFields struct {
	AuthorizedUsers []string        `json:"authorized_users,omitempty"`
	FileID          string          `json:"file_id"`
	Index           int             `json:"index"`
	Metadata        *model.Metadata `json:"metadata,omitempty"`
	Owner           string          `json:"owner"`
	Timestamp       float64         `json:"timestamp"`
}

// Digest computes the 64-hex SHA-256 digest of the registration-immutable
// fields of rec.
func Digest(rec model.Record) string {
	b, err := json.Marshal(immutableFields{
		AuthorizedUsers: rec.AuthorizedUsers,
		FileID:          rec.FileID,
		Index:           rec.Index,
		Metadata:        rec.Metadata,
		Owner:           rec.Owner,
		Timestamp:       rec.Timestamp,
	})
	if err != nil {
		panic("provenance: digest serialization: " + err.Error())
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Signer issues and verifies attestations with one HS256 key.
type Signer struct {
	key []byte
}

// NewSigner constructs a Signer. The key must not be empty.
func NewSigner(key []byte) (*Signer, error) {
	if len(key) == 0 {
		return nil, errors.New("provenance: empty signing key")
	}
	return &Signer{key: key}, nil
}

// Issue signs the immutable fields of rec. Call it at registration time,
// before any audit entry lands.
func (s *Signer) Issue(rec model.Record) (string, error) {
	claims := Claims{
		Owner:           rec.Owner,
		AuthorizedUsers: rec.AuthorizedUsers,
		Index:           rec.Index,
		Digest:          Digest(rec),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  rec.FileID,
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(epochToTime(rec.Timestamp)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Verify checks the token signature and that rec's immutable fields still
// match the attested ones. Returns ErrMismatch when content drifted and a
// plain error when the token itself is unusable.
func (s *Signer) Verify(token string, rec model.Record) error {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.key, nil
	})
	if err != nil {
		return fmt.Errorf("parse attestation: %w", err)
	}
	if !parsed.Valid {
		return errors.New("invalid attestation")
	}
	if claims.Subject != rec.FileID {
		return fmt.Errorf("%w: file id", ErrMismatch)
	}
	if claims.Owner != rec.Owner {
		return fmt.Errorf("%w: owner", ErrMismatch)
	}
	if claims.Index != rec.Index {
		return fmt.Errorf("%w: ledger index", ErrMismatch)
	}
	if claims.Digest != Digest(rec) {
		return fmt.Errorf("%w: immutable field digest", ErrMismatch)
	}
	return nil
}

func epochToTime(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
