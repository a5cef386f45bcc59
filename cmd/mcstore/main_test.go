package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goforj/mcstore"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := run(args, &out, &errOut)
	return out.String(), err
}

func sqliteArgs(t *testing.T) []string {
	t.Helper()
	return []string{"--driver", "sqlite", "--opt", "dsn=" + filepath.Join(t.TempDir(), "cli.db")}
}

func TestSetGetAcrossInvocations(t *testing.T) {
	base := sqliteArgs(t)

	if _, err := runCLI(t, append(base, "set", "greeting", "hello")...); err != nil {
		t.Fatalf("set: %v", err)
	}
	out, err := runCLI(t, append(base, "get", "greeting")...)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Fatalf("expected hello, got %q", out)
	}

	out, err = runCLI(t, append(base, "get", "missing")...)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if strings.TrimSpace(out) != "<no value>" {
		t.Fatalf("expected <no value>, got %q", out)
	}
}

func TestBatchSetGetManyDelFlush(t *testing.T) {
	base := sqliteArgs(t)

	if _, err := runCLI(t, append(base, "set", "a", "1", "b", "2", "c", "3")...); err != nil {
		t.Fatalf("set batch: %v", err)
	}
	if _, err := runCLI(t, append(base, "del", "b")...); err != nil {
		t.Fatalf("del: %v", err)
	}
	out, err := runCLI(t, append(base, "get-many", "a", "b", "c")...)
	if err != nil {
		t.Fatalf("get-many: %v", err)
	}
	want := "a\t1\nb\t<no value>\nc\t3\n"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}

	if _, err := runCLI(t, append(base, "flush")...); err != nil {
		t.Fatalf("flush: %v", err)
	}
	out, _ = runCLI(t, append(base, "get", "a")...)
	if strings.TrimSpace(out) != "<no value>" {
		t.Fatalf("expected flushed key to miss, got %q", out)
	}
}

func TestSetRejectsOddArgs(t *testing.T) {
	if _, err := runCLI(t, "set", "a", "1", "b"); err == nil {
		t.Fatalf("expected argument error")
	}
}

func TestUnsupportedCapabilities(t *testing.T) {
	_, err := runCLI(t, "ttl", "k")
	if !errors.Is(err, mcstore.ErrCapabilityUnsupported) {
		t.Fatalf("expected unsupported ttl, got %v", err)
	}
	_, err = runCLI(t, "keys")
	if !errors.Is(err, mcstore.ErrCapabilityUnsupported) {
		t.Fatalf("expected unsupported keys, got %v", err)
	}
}

func TestDriverFromEnvironment(t *testing.T) {
	t.Setenv("MCSTORE_DRIVER", "sqlite")
	out, err := runCLI(t, "--opt", "dsn="+filepath.Join(t.TempDir(), "env.db"), "ping")
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if strings.TrimSpace(out) != "sql ok" {
		t.Fatalf("unexpected ping output %q", out)
	}
}

func TestUnknownDriverAndBadOption(t *testing.T) {
	if _, err := runCLI(t, "--driver", "etcd", "get", "k"); err == nil || !strings.Contains(err.Error(), "unknown driver") {
		t.Fatalf("expected unknown driver error, got %v", err)
	}
	if _, err := runCLI(t, "--opt", "novalue", "get", "k"); err == nil || !strings.Contains(err.Error(), "key=value") {
		t.Fatalf("expected option error, got %v", err)
	}
}

func TestMetricsFlagWritesExposition(t *testing.T) {
	var out, errOut bytes.Buffer
	args := append(sqliteArgs(t), "--metrics", "get", "k")
	if err := run(args, &out, &errOut); err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(errOut.String(), `mcstore_ops_total{op="get",driver="sql",result="miss"} 1`) {
		t.Fatalf("expected metrics on stderr, got %q", errOut.String())
	}
}

func TestDriversListsRegistry(t *testing.T) {
	out, err := runCLI(t, "--driver", "etcd", "drivers")
	if err != nil {
		t.Fatalf("drivers: %v", err)
	}
	if !strings.Contains(out, "memcached\n") || !strings.Contains(out, "sqlite\n") {
		t.Fatalf("unexpected drivers output %q", out)
	}
}
