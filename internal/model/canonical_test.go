package model

import (
	"strings"
	"testing"
)

func sampleRecord() Record {
	return Record{
		Index:           1,
		Timestamp:       1700000000.25,
		FileID:          "file_abc123def456",
		Owner:           "alice",
		AuthorizedUsers: []string{"bob"},
		PrevHash:        "aa11",
		Metadata:        &Metadata{Note: "report"},
		AuditEntries: []AuditEntry{
			{Kind: AuditGranted, Principal: "bob", Timestamp: 1700000000.5},
		},
		Hash:        "deadbeef",
		Attestation: "token",
	}
}

func TestCanonicalRecordKeyOrder(t *testing.T) {
	got := string(CanonicalRecord(sampleRecord()))
	want := `{"audit_entries":[{"kind":"granted","principal":"bob","timestamp":1700000000.5}],` +
		`"authorized_users":["bob"],"file_id":"file_abc123def456","index":1,` +
		`"metadata":{"note":"report"},"owner":"alice","prev_hash":"aa11","timestamp":1700000000.25}`
	if got != want {
		t.Fatalf("canonical bytes mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestCanonicalRecordStable(t *testing.T) {
	r := sampleRecord()
	a := string(CanonicalRecord(r))
	b := string(CanonicalRecord(r.Clone()))
	if a != b {
		t.Fatalf("canonical bytes not stable across clones:\n%s\n%s", a, b)
	}
}

func TestRecordHashExcludesHashAndAttestation(t *testing.T) {
	a := sampleRecord()
	b := sampleRecord()
	b.Hash = "totally-different"
	b.Attestation = ""
	if RecordHash(a) != RecordHash(b) {
		t.Fatalf("hash or attestation leaked into the canonical serialization")
	}
	if len(RecordHash(a)) != 64 {
		t.Fatalf("record hash is not 64 hex chars: %q", RecordHash(a))
	}
}

func TestCanonicalOmitsEmptyCollections(t *testing.T) {
	a := Record{Index: 0, FileID: "genesis", Owner: "system", PrevHash: "0"}
	b := a
	b.AuthorizedUsers = []string{}
	b.AuditEntries = []AuditEntry{}
	if ca, cb := string(CanonicalRecord(a)), string(CanonicalRecord(b)); ca != cb {
		t.Fatalf("nil and empty collections serialize differently:\n%s\n%s", ca, cb)
	}
	if s := string(CanonicalRecord(a)); strings.Contains(s, "audit_entries") {
		t.Fatalf("empty audit_entries not omitted: %s", s)
	}
}

func TestCloneIsDeep(t *testing.T) {
	r := sampleRecord()
	c := r.Clone()
	c.AuthorizedUsers[0] = "mallory"
	c.AuditEntries[0].Principal = "mallory"
	c.Metadata.Note = "changed"
	if r.AuthorizedUsers[0] != "bob" || r.AuditEntries[0].Principal != "bob" || r.Metadata.Note != "report" {
		t.Fatalf("clone shares state with the original: %+v", r)
	}
}

func TestAuthorized(t *testing.T) {
	r := sampleRecord()
	if !r.Authorized("alice") {
		t.Errorf("owner must always be authorized")
	}
	if !r.Authorized("bob") {
		t.Errorf("listed user must be authorized")
	}
	if r.Authorized("carol") {
		t.Errorf("unlisted principal must not be authorized")
	}
}
