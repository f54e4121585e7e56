package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eugenenazirov/basic-auth/internal/credentials"
)

func setupEnv(t *testing.T) string {
	t.Helper()

	for _, key := range []string{"DB_DSN", "DB_DRIVER", "LOG_LEVEL", "PORT", "REALM"} {
		t.Setenv(key, "")
	}
	t.Setenv("PASSWORD_HASH_COST", "4")
	t.Chdir(t.TempDir())
	return "sqlite://" + filepath.Join(t.TempDir(), "creds.db")
}

func runCLI(t *testing.T, dsn string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	err := run(context.Background(), append([]string{"--db-dsn", dsn}, args...), &out)
	return out.String(), err
}

func TestAddAndList(t *testing.T) {
	dsn := setupEnv(t)

	out, err := runCLI(t, dsn, "add", "user1", "pass1", "--description", "desc1")
	if err != nil {
		t.Fatalf("add returned error: %v", err)
	}
	if out != "Action succeeded\n" {
		t.Fatalf("unexpected add output %q", out)
	}

	if _, err := runCLI(t, dsn, "add", "user2", "pass2", "-d", "desc2"); err != nil {
		t.Fatalf("add returned error: %v", err)
	}

	out, err = runCLI(t, dsn, "list")
	if err != nil {
		t.Fatalf("list returned error: %v", err)
	}
	for _, want := range []string{"USERNAME", "user1", "desc1", "user2", "desc2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in list output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "pass1") {
		t.Fatalf("list output must not contain passwords:\n%s", out)
	}
	if strings.Index(out, "user1") > strings.Index(out, "user2") {
		t.Fatalf("expected credentials ordered by username:\n%s", out)
	}
}

func TestAddDuplicate(t *testing.T) {
	dsn := setupEnv(t)

	if _, err := runCLI(t, dsn, "add", "user", "pass"); err != nil {
		t.Fatalf("add returned error: %v", err)
	}
	if _, err := runCLI(t, dsn, "add", "user", "pass"); !errors.Is(err, credentials.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	dsn := setupEnv(t)

	if _, err := runCLI(t, dsn, "add", "user", "pass"); err != nil {
		t.Fatalf("add returned error: %v", err)
	}

	out, err := runCLI(t, dsn, "remove", "user")
	if err != nil {
		t.Fatalf("remove returned error: %v", err)
	}
	if out != "Action succeeded\n" {
		t.Fatalf("unexpected remove output %q", out)
	}

	out, err = runCLI(t, dsn, "remove", "user")
	if err != nil {
		t.Fatalf("remove returned error: %v", err)
	}
	if out != "No action performed\n" {
		t.Fatalf("unexpected no-op output %q", out)
	}
}

func TestRunRequiresDatabase(t *testing.T) {
	setupEnv(t)

	var out bytes.Buffer
	if err := run(context.Background(), []string{"list"}, &out); !errors.Is(err, errNoDatabase) {
		t.Fatalf("expected errNoDatabase, got %v", err)
	}
}

func TestParseArgs(t *testing.T) {
	cmd, overrides, err := parseArgs([]string{"--config", "config.yaml", "add", "user", "pass", "-d", "desc"})
	if err != nil {
		t.Fatalf("parseArgs returned error: %v", err)
	}
	if cmd.action != "add" || cmd.username != "user" || cmd.password != "pass" || cmd.description != "desc" {
		t.Fatalf("unexpected command %+v", cmd)
	}
	if overrides.ConfigFile != "config.yaml" {
		t.Fatalf("unexpected config file %q", overrides.ConfigFile)
	}

	if _, _, err := parseArgs([]string{"add", "user"}); err == nil {
		t.Fatalf("expected error for missing password")
	}
	if _, _, err := parseArgs([]string{"rename"}); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}

func TestPrintResult(t *testing.T) {
	tests := []struct {
		name   string
		result any
		want   string
	}{
		{"nil", nil, ""},
		{"true", true, "Action succeeded\n"},
		{"false", false, "No action performed\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := printResult(&out, tc.result); err != nil {
				t.Fatalf("printResult returned error: %v", err)
			}
			if out.String() != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, out.String())
			}
		})
	}

	t.Run("list", func(t *testing.T) {
		created := time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)
		var out bytes.Buffer
		err := printResult(&out, []credentials.Credentials{
			{Username: "user1", Description: "desc1", CreatedAt: created},
			{Username: "user2", Description: "desc2", CreatedAt: created},
		})
		if err != nil {
			t.Fatalf("printResult returned error: %v", err)
		}
		for _, want := range []string{"user1", "desc1", "user2", "desc2", "2024-11-01T12:00:00Z"} {
			if !strings.Contains(out.String(), want) {
				t.Fatalf("expected %q in output:\n%s", want, out.String())
			}
		}
	})

	t.Run("unexpected type", func(t *testing.T) {
		if err := printResult(&bytes.Buffer{}, 42); err == nil {
			t.Fatalf("expected error for unexpected result type")
		}
	})
}
