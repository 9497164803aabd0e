// Command chainseal seals files with contextual hash chain encryption,
// records them on a hash-chained ledger and controls who can open them.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chainseal/chainseal/internal/crypto"
	"github.com/chainseal/chainseal/internal/ledger"
	"github.com/chainseal/chainseal/internal/migrate"
	"github.com/chainseal/chainseal/internal/model"
	"github.com/chainseal/chainseal/internal/provenance"
	"github.com/chainseal/chainseal/internal/repository"
	"github.com/chainseal/chainseal/internal/repository/badgerstore"
	"github.com/chainseal/chainseal/internal/repository/jsonfile"
	"github.com/chainseal/chainseal/internal/repository/postgres"
	"github.com/chainseal/chainseal/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// ---- helpers ----

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func writeAll(p string, b []byte) error {
	if p == "-" {
		_, err := os.Stdout.Write(b)
		return err
	}
	return os.WriteFile(p, b, 0o600)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func splitUsers(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, u := range strings.Split(s, ",") {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "chainseal:", err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, `chainseal
Usage:
  chainseal [-dsn DSN | -ledger file -data dir] [-key file] [-passphrase-env NAME] [-v] <cmd> [args]

Commands:
  version
  seal      -file <path|-> -owner <name> [-users a,b] [-id <file id>] [-name <display name>] [-note <note>]
  register  -id <file id> -owner <name> [-users a,b] [-name <display name>] [-note <note>]
  open      -id <file id> -as <principal> [-out <path|->]
  ls        -as <principal>
  audit     -id <file id>
  report    -id <file id>
  verify
  repair
  stats
  purge     -id <file id>
  migrate                                             (requires -dsn)
`)
	os.Exit(2)
}

// ---- wiring ----

// masterKey loads or derives the 32-byte master key. With a passphrase
// environment variable the key comes from argon2id over a persisted salt;
// otherwise a random key file is used.
func masterKey(keyPath, passEnv string) ([]byte, error) {
	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return nil, err
	}
	if passEnv != "" {
		pass := os.Getenv(passEnv)
		if pass == "" {
			return nil, fmt.Errorf("passphrase env %s is empty", passEnv)
		}
		salt, err := crypto.LoadOrCreateSalt(keyPath + ".salt")
		if err != nil {
			return nil, err
		}
		return crypto.DeriveMasterKey([]byte(pass), salt), nil
	}
	return crypto.LoadOrCreateKeyFile(keyPath)
}

type app struct {
	svc     service.SealService
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// buildApp wires stores, ledger and service for the selected backend:
// PostgreSQL when a DSN is given, otherwise a JSON ledger file plus an
// embedded Badger database.
func buildApp(ctx context.Context, dsn, ledgerPath, dataDir, keyPath, passEnv string, logger *zap.Logger) (*app, error) {
	master, err := masterKey(keyPath, passEnv)
	if err != nil {
		return nil, err
	}
	boxKey, err := crypto.SubKey(master, "secretbox")
	if err != nil {
		return nil, err
	}
	provKey, err := crypto.SubKey(master, "provenance")
	if err != nil {
		return nil, err
	}
	signer, err := provenance.NewSigner(provKey)
	if err != nil {
		return nil, err
	}

	var (
		records repository.RecordStore
		blobs   repository.CiphertextStore
		secrets repository.SecretStore
		closers []func() error
	)
	if dsn != "" {
		if err := migrate.Up(ctx, dsn); err != nil {
			return nil, fmt.Errorf("migrate up: %w", err)
		}
		db, err := postgres.New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() error { db.Close(); return nil })
		records = postgres.NewRecordStore(db)
		blobs = postgres.NewCiphertextStore(db)
		secrets = postgres.NewSecretStore(db, boxKey)
	} else {
		records = jsonfile.New(ledgerPath)
		store, err := badgerstore.Open(dataDir, boxKey)
		if err != nil {
			return nil, err
		}
		closers = append(closers, store.Close)
		blobs, secrets = store, store
	}

	led := ledger.New(records, signer, logger)
	if err := led.Init(ctx); err != nil {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}
	return &app{
		svc:     service.NewSealService(led, blobs, secrets, signer, logger),
		closers: closers,
	}, nil
}

// ---- main ----

func main() {
	dsn := flag.String("dsn", envOr("CHAINSEAL_DSN", ""), "PostgreSQL DSN (empty: embedded backend)")
	ledgerPath := flag.String("ledger", envOr("CHAINSEAL_LEDGER", "ledger.json"), "ledger file (embedded backend)")
	dataDir := flag.String("data", envOr("CHAINSEAL_DATA", ".chainseal/data"), "data directory (embedded backend)")
	keyPath := flag.String("key", envOr("CHAINSEAL_KEY", ".chainseal/master.key"), "master key file")
	passEnv := flag.String("passphrase-env", "", "environment variable holding the master passphrase")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewProduction()
		if err != nil {
			fail(err)
		}
		logger = l
		defer func() { _ = logger.Sync() }()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {

	case "version":
		fmt.Printf("chainseal %s (%s)\n", version, buildDate)
		return

	case "migrate":
		if *dsn == "" {
			fail(fmt.Errorf("migrate requires -dsn"))
		}
		if err := migrate.Up(ctx, *dsn); err != nil {
			fail(err)
		}
		fmt.Println("ok")
		return
	}

	a, err := buildApp(ctx, *dsn, *ledgerPath, *dataDir, *keyPath, *passEnv, logger)
	if err != nil {
		fail(err)
	}
	defer a.Close()

	switch cmd {

	case "seal":
		fs := flag.NewFlagSet("seal", flag.ExitOnError)
		file := fs.String("file", "", "plaintext path, - for stdin")
		owner := fs.String("owner", "", "owner principal")
		users := fs.String("users", "", "comma-separated authorized users")
		id := fs.String("id", "", "file id (generated when empty)")
		name := fs.String("name", "", "display name (defaults to the file name)")
		note := fs.String("note", "", "metadata note")
		_ = fs.Parse(args)
		if *file == "" || *owner == "" {
			fail(fmt.Errorf("seal needs -file and -owner"))
		}

		plaintext, err := readAll(*file)
		if err != nil {
			fail(err)
		}
		display := *name
		if display == "" {
			if *file == "-" {
				display = "stdin"
			} else {
				display = filepath.Base(*file)
			}
		}
		req := model.SealRequest{
			FileID:          *id,
			Filename:        display,
			Owner:           *owner,
			AuthorizedUsers: splitUsers(*users),
			Plaintext:       plaintext,
		}
		if *note != "" {
			req.Metadata = &model.Metadata{
				OriginalName: display,
				Size:         int64(len(plaintext)),
				ContentHash:  repository.Checksum(plaintext),
				Note:         *note,
			}
		}
		res, err := a.svc.Seal(ctx, req)
		if err != nil {
			fail(err)
		}
		printJSON(res)

	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		id := fs.String("id", "", "file id")
		owner := fs.String("owner", "", "owner principal")
		users := fs.String("users", "", "comma-separated authorized users")
		name := fs.String("name", "", "display name")
		note := fs.String("note", "", "metadata note")
		_ = fs.Parse(args)
		if *id == "" || *owner == "" {
			fail(fmt.Errorf("register needs -id and -owner"))
		}

		var md *model.Metadata
		if *name != "" || *note != "" {
			md = &model.Metadata{OriginalName: *name, Note: *note}
		}
		rec, err := a.svc.Register(ctx, *id, *owner, splitUsers(*users), md)
		if err != nil {
			fail(err)
		}
		printJSON(rec)

	case "open":
		fs := flag.NewFlagSet("open", flag.ExitOnError)
		id := fs.String("id", "", "file id")
		as := fs.String("as", "", "principal opening the file")
		out := fs.String("out", "-", "output path, - for stdout")
		_ = fs.Parse(args)
		if *id == "" || *as == "" {
			fail(fmt.Errorf("open needs -id and -as"))
		}

		plaintext, err := a.svc.Open(ctx, *id, *as)
		if err != nil {
			fail(err)
		}
		if err := writeAll(*out, plaintext); err != nil {
			fail(err)
		}

	case "ls":
		fs := flag.NewFlagSet("ls", flag.ExitOnError)
		as := fs.String("as", "", "principal")
		_ = fs.Parse(args)
		if *as == "" {
			fail(fmt.Errorf("ls needs -as"))
		}

		records, err := a.svc.ListAccessible(ctx, *as)
		if err != nil {
			fail(err)
		}
		type row struct {
			FileID       string
			Owner        string
			Name         string
			Size         int64
			RegisteredAt float64
		}
		rows := make([]row, 0, len(records))
		for _, r := range records {
			name, size := "", int64(0)
			if r.Metadata != nil {
				name, size = r.Metadata.OriginalName, r.Metadata.Size
			}
			rows = append(rows, row{
				FileID:       r.FileID,
				Owner:        r.Owner,
				Name:         name,
				Size:         size,
				RegisteredAt: r.Timestamp,
			})
		}
		printJSON(rows)

	case "audit":
		fs := flag.NewFlagSet("audit", flag.ExitOnError)
		id := fs.String("id", "", "file id")
		_ = fs.Parse(args)
		if *id == "" {
			fail(fmt.Errorf("audit needs -id"))
		}

		trail, err := a.svc.AuditTrail(ctx, *id)
		if err != nil {
			fail(err)
		}
		printJSON(trail)

	case "report":
		fs := flag.NewFlagSet("report", flag.ExitOnError)
		id := fs.String("id", "", "file id")
		_ = fs.Parse(args)
		if *id == "" {
			fail(fmt.Errorf("report needs -id"))
		}

		rep, err := a.svc.SecurityReport(ctx, *id)
		if err != nil {
			fail(err)
		}
		printJSON(rep)

	case "verify":
		ok, err := a.svc.VerifyLedger(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(map[string]bool{"valid": ok})
		if !ok {
			os.Exit(1)
		}

	case "repair":
		ok, err := a.svc.RepairLedger(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(map[string]bool{"verified": ok})
		if !ok {
			os.Exit(1)
		}

	case "stats":
		stats, err := a.svc.StorageStats(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(stats)

	case "purge":
		fs := flag.NewFlagSet("purge", flag.ExitOnError)
		id := fs.String("id", "", "file id")
		_ = fs.Parse(args)
		if *id == "" {
			fail(fmt.Errorf("purge needs -id"))
		}

		if err := a.svc.Purge(ctx, *id); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	default:
		usage()
	}
}
