// Command lychee is a command-line client for an end-to-end encrypted password vault.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/lycheelock/lycheelock/internal/config"
	"github.com/lycheelock/lycheelock/internal/errs"
	"github.com/lycheelock/lycheelock/internal/logging"
	"github.com/lycheelock/lycheelock/internal/migrate"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func usage(w io.Writer) {
	fmt.Fprintf(w, `lychee - encrypted password vault
Usage:
  lychee [-c config.json] [flags] <cmd> [args]

Commands:
  version
  migrate    [-status]
  register   -u <username>
  enroll     -u <username> [-qr file.png]
  forget     -u <username>                  (drop remembered password)
  list       -u <username> [-category c] [-q text]
  show       -u <username> -id <id> [-reveal] [-json]
  add        -u <username> -name <name> [-username ..] [-url ..] [-notes ..] [-category ..] [-password ..]
  edit       -u <username> -id <id> [-name ..] [-username ..] [-url ..] [-notes ..] [-category ..] [-password ..]
  rm         -u <username> -id <id>

Vault commands accept -remember to keep the account password in the OS keyring.
`)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(args []string, stdin *os.File, stdout, stderr io.Writer) int {
	cfg, rest, err := config.Load(args)
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		usage(stderr)
		return 2
	}
	if len(rest) < 1 {
		usage(stderr)
		return 2
	}
	cmd, cmdArgs := rest[0], rest[1:]

	if cmd == "version" {
		fmt.Fprintf(stdout, "lychee %s (%s)\n", version, buildDate)
		return 0
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cmd == "migrate" {
		mctx, cancel := context.WithTimeout(ctx, cfg.OpTimeout)
		defer cancel()
		return report(stderr, runMigrate(mctx, cfg, cmdArgs, stderr))
	}

	cctx, cancel := context.WithTimeout(ctx, cfg.OpTimeout)
	backends, err := connect(cctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("connect", zap.Error(err))
		return report(stderr, err)
	}
	defer backends.close()

	a := &app{
		cfg:    cfg,
		log:    logger,
		auth:   backends.auth,
		vaults: backends.vaults,
		out:    stdout,
		errOut: stderr,
		secret: newPrompter(stdin, stderr).secret,
	}
	return report(stderr, a.dispatch(ctx, cmd, cmdArgs))
}

func runMigrate(ctx context.Context, cfg *config.Config, args []string, stderr io.Writer) error {
	fs := newFlagSet("migrate", stderr)
	status := fs.Bool("status", false, "print migration status instead of applying")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *status {
		return migrate.Status(ctx, cfg.DatabaseDSN)
	}
	return migrate.Up(ctx, cfg.DatabaseDSN)
}

// report prints err with a hint where one helps and maps it to an exit code.
func report(w io.Writer, err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		usage(w)
		return 2
	case errors.Is(err, errs.ErrTotpNotEnrolled):
		fmt.Fprintln(w, "error: two-factor authentication is not set up; run enroll first")
	case errors.Is(err, errs.ErrTotpAlreadyEnabled):
		fmt.Fprintln(w, "error: two-factor authentication is already enabled")
	case errors.Is(err, errs.ErrRateLimited):
		fmt.Fprintln(w, "error: too many failed attempts, try again later")
	case errors.Is(err, errs.ErrUnauthorized):
		fmt.Fprintln(w, "error: wrong username, password or code")
	default:
		fmt.Fprintln(w, "error:", err)
	}
	return 1
}
