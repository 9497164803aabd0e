package main

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestEnvOr(t *testing.T) {
	t.Setenv("CHAINSEAL_TEST_ENV", "from-env")
	if got := envOr("CHAINSEAL_TEST_ENV", "fallback"); got != "from-env" {
		t.Fatalf("want from-env, got %q", got)
	}
	if got := envOr("CHAINSEAL_TEST_ENV_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("want fallback, got %q", got)
	}
}

func TestSplitUsers(t *testing.T) {
	if got := splitUsers(""); got != nil {
		t.Fatalf("want nil for empty input, got %v", got)
	}
	got := splitUsers(" bob , , carol,")
	want := []string{"bob", "carol"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}
}

func TestReadWriteAll(t *testing.T) {
	p := filepath.Join(t.TempDir(), "payload.bin")
	data := []byte("sealed payload")

	if err := writeAll(p, data); err != nil {
		t.Fatalf("writeAll: %v", err)
	}
	got, err := readAll(p)
	if err != nil {
		t.Fatalf("readAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("want %q, got %q", data, got)
	}

	info, err := os.Stat(p)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("want 0600 permissions, got %o", perm)
	}
}

func TestMasterKey_KeyFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "keys", "master.key")

	k1, err := masterKey(p, "")
	if err != nil {
		t.Fatalf("first masterKey: %v", err)
	}
	if len(k1) != 32 {
		t.Fatalf("want 32-byte key, got %d", len(k1))
	}
	k2, err := masterKey(p, "")
	if err != nil {
		t.Fatalf("second masterKey: %v", err)
	}
	if !bytes.Equal(k1, k2) {
		t.Fatal("key file must yield the same key on reload")
	}
}

func TestMasterKey_Passphrase(t *testing.T) {
	p := filepath.Join(t.TempDir(), "master.key")
	t.Setenv("CHAINSEAL_TEST_PASS", "correct horse")

	k1, err := masterKey(p, "CHAINSEAL_TEST_PASS")
	if err != nil {
		t.Fatalf("first masterKey: %v", err)
	}
	k2, err := masterKey(p, "CHAINSEAL_TEST_PASS")
	if err != nil {
		t.Fatalf("second masterKey: %v", err)
	}
	if !bytes.Equal(k1, k2) {
		t.Fatal("same passphrase and salt must yield the same key")
	}

	t.Setenv("CHAINSEAL_TEST_PASS", "battery staple")
	k3, err := masterKey(p, "CHAINSEAL_TEST_PASS")
	if err != nil {
		t.Fatalf("third masterKey: %v", err)
	}
	if bytes.Equal(k1, k3) {
		t.Fatal("different passphrases must yield different keys")
	}
}

func TestMasterKey_EmptyPassphrase(t *testing.T) {
	p := filepath.Join(t.TempDir(), "master.key")
	t.Setenv("CHAINSEAL_TEST_PASS", "")
	if _, err := masterKey(p, "CHAINSEAL_TEST_PASS"); err == nil {
		t.Fatal("want error for empty passphrase env")
	}
}
