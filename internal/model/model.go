// Package model defines domain entities used by services and repositories.
package model

// Audit entry kinds. Every access attempt lands in exactly one of these.
const (
	AuditGranted = "granted"
	AuditDenied  = "denied"
	AuditFailed  = "failed"
)

// AuditEntry is one access attempt recorded on a ledger record.
// Field order matches the canonical key order (lexicographic by tag).
type AuditEntry struct {
	Detail    string  `json:"detail,omitempty"` // human-readable cause, empty for granted
	Kind      string  `json:"kind"`             // granted | denied | failed
	Principal string  `json:"principal"`
	Timestamp float64 `json:"timestamp"` // seconds since epoch
}

// Metadata is an optional opaque annotation attached at registration.
type Metadata struct {
	ContentHash  string `json:"content_hash,omitempty"` // sha256 hex of the plaintext
	Note         string `json:"note,omitempty"`
	OriginalName string `json:"original_name,omitempty"`
	Size         int64  `json:"size,omitempty"` // plaintext bytes
}

// Record is one entry of the hash-chained ledger. AuditEntries grow after
// registration; every other field is fixed once the record is appended.
// Hash and Attestation are stored but excluded from canonical serialization.
type Record struct {
	Index           int          `json:"index"`
	Timestamp       float64      `json:"timestamp"` // seconds since epoch
	FileID          string       `json:"file_id"`
	Owner           string       `json:"owner"`
	AuthorizedUsers []string     `json:"authorized_users,omitempty"`
	PrevHash        string       `json:"prev_hash"` // "0" for genesis
	Metadata        *Metadata    `json:"metadata,omitempty"`
	AuditEntries    []AuditEntry `json:"audit_entries,omitempty"`
	Hash            string       `json:"hash"`
	Attestation     string       `json:"attestation,omitempty"`
}

// Clone returns a deep copy. Stores hand out clones so callers cannot
// mutate the ledger's working state through shared slices.
func (r Record) Clone() Record {
	c := r
	if r.AuthorizedUsers != nil {
		c.AuthorizedUsers = append([]string(nil), r.AuthorizedUsers...)
	}
	if r.AuditEntries != nil {
		c.AuditEntries = append([]AuditEntry(nil), r.AuditEntries...)
	}
	if r.Metadata != nil {
		md := *r.Metadata
		c.Metadata = &md
	}
	return c
}

// Authorized reports whether principal may read the sealed file: the owner
// always may, everyone else must appear in the registration snapshot.
func (r Record) Authorized(principal string) bool {
	if principal == r.Owner {
		return true
	}
	for _, u := range r.AuthorizedUsers {
		if u == principal {
			return true
		}
	}
	return false
}

// Violation describes the first integrity failure found in the ledger.
type Violation struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// SealRequest bundles the inputs of the one-call seal flow.
type SealRequest struct {
	FileID          string // generated from Filename+Owner when empty
	Filename        string
	Owner           string
	AuthorizedUsers []string
	Plaintext       []byte
	Metadata        *Metadata // defaulted from Filename/Plaintext when nil
}

// SealResult reports what a seal produced.
type SealResult struct {
	Record     *Record  `json:"record"`
	Ciphertext int      `json:"ciphertext_bytes"`
	WrappedFor []string `json:"wrapped_for"`
}

// SecurityReport summarizes the security state of one sealed file.
type SecurityReport struct {
	FileID          string       `json:"file_id"`
	Owner           string       `json:"owner"`
	AuthorizedUsers []string     `json:"authorized_users,omitempty"`
	RegisteredAt    float64      `json:"registered_at"`
	ChainValid      bool         `json:"chain_valid"`
	ChainRepaired   bool         `json:"chain_repaired"` // a repair pass ran before this report
	ProvenanceValid bool         `json:"provenance_valid"`
	Granted         int          `json:"granted"`
	Denied          int          `json:"denied"`
	Failed          int          `json:"failed"`
	LastEntries     []AuditEntry `json:"last_entries,omitempty"`
}

// StorageStats aggregates counts across the three stores.
type StorageStats struct {
	Records         int   `json:"records"`
	Ciphertexts     int   `json:"ciphertexts"`
	CiphertextBytes int64 `json:"ciphertext_bytes"`
	Owners          int   `json:"owners"`
	WrappedSeeds    int   `json:"wrapped_seeds"`
}
