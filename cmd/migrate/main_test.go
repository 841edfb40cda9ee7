package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/billing/internal/storage/postgres"
)

func testPostgresDSN(t *testing.T) string {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("BILLING_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		t.Skipf("postgres is not available: %v", err)
	}
	_ = store.Close()
	return dsn
}

func mapLookup(values map[string]string) envLookup {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"-direction= DOWN ", "-steps=2"}, mapLookup(map[string]string{
		envPostgresDSN: " postgres://billing@localhost/billing ",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.direction != "down" || opts.steps != 2 || opts.dsn != "postgres://billing@localhost/billing" {
		t.Fatalf("unexpected options: %+v", opts)
	}

	opts, err = parseOptions([]string{"-dsn=postgres://flag"}, mapLookup(map[string]string{envPostgresDSN: "postgres://env"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.dsn != "postgres://flag" || opts.direction != "up" {
		t.Fatalf("flag should win over env: %+v", opts)
	}
}

func TestParseOptions_Errors(t *testing.T) {
	testCases := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing dsn", args: []string{"-direction=status"}, want: envPostgresDSN},
		{name: "bad direction", args: []string{"-direction=sideways", "-dsn=x"}, want: "unsupported direction"},
		{name: "negative steps", args: []string{"-steps=-1", "-dsn=x"}, want: "steps must be"},
		{name: "unknown flag", args: []string{"-force"}, want: "flag provided but not defined"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseOptions(tc.args, mapLookup(nil))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}

	if _, err := parseOptions(nil, mapLookup(nil)); !errors.Is(err, errMissingDSN) {
		t.Fatalf("expected errMissingDSN, got %v", err)
	}
}

func TestRunStatusAndMigratePaths(t *testing.T) {
	dsn := testPostgresDSN(t)
	ctx := context.Background()

	for _, direction := range []string{"status", "up", "redo", "down", "up"} {
		var out bytes.Buffer
		if err := run(ctx, options{direction: direction, dsn: dsn}, &out); err != nil {
			t.Fatalf("%s failed: %v", direction, err)
		}
		if !strings.HasPrefix(out.String(), "migrate "+direction+" ok") {
			t.Fatalf("unexpected %s output: %q", direction, out.String())
		}
	}
}

func TestFailExits(t *testing.T) {
	if os.Getenv("MIGRATE_TEST_FAIL_EXIT") == "1" {
		fail("forced failure %d", 42)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "MIGRATE_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with error")
	}
	if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}
