package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// canonicalRecord mirrors Record with keys in lexicographic order and the
// hash/attestation fields dropped. encoding/json emits struct fields in
// declaration order without insignificant whitespace, so marshaling this
// mirror yields the canonical bytes.
type canonicalRecord struct {
	AuditEntries    []AuditEntry `json:"audit_entries,omitempty"`
	AuthorizedUsers []string     `json:"authorized_users,omitempty"`
	FileID          string       `json:"file_id"`
	Index           int          `json:"index"`
	Metadata        *Metadata    `json:"metadata,omitempty"`
	Owner           string       `json:"owner"`
	PrevHash        string       `json:"prev_hash"`
	Timestamp       float64      `json:"timestamp"`
}

// CanonicalRecord serializes r deterministically: lexicographic key order,
// no whitespace, empty collections omitted, Hash and Attestation excluded.
// Identical field values produce identical bytes across processes and
// store backends.
func CanonicalRecord(r Record) []byte {
	b, err := json.Marshal(canonicalRecord{
		AuditEntries:    r.AuditEntries,
		AuthorizedUsers: r.AuthorizedUsers,
		FileID:          r.FileID,
		Index:           r.Index,
		Metadata:        r.Metadata,
		Owner:           r.Owner,
		PrevHash:        r.PrevHash,
		Timestamp:       r.Timestamp,
	})
	if err != nil {
		// Only marshal-unfriendly field types can fail here and the
		// mirror contains none.
		panic("model: canonical serialization: " + err.Error())
	}
	return b
}

// RecordHash computes the 64-hex SHA-256 digest of the canonical bytes.
func RecordHash(r Record) string {
	sum := sha256.Sum256(CanonicalRecord(r))
	return hex.EncodeToString(sum[:])
}
