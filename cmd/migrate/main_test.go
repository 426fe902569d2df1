package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const snapshotJSON = `{
  "units": [
    {"id": "A", "name": "Household", "status": "active"},
    {"id": "B", "name": "Trip", "status": "archived"}
  ],
  "financialDataByUnit": {
    "A": {
      "transactions": [
        {"id": "t1", "date": "2024-01-02", "amount": 12.5, "label": "Bread", "type": "expense", "category": "food"},
        {"id": "t2", "date": "2024-01-03", "amount": 1200, "label": "Salary", "type": "income", "category": "salary"}
      ],
      "debts": [
        {"id": "d1", "person": "Sam", "totalAmount": 100, "installments": [{"id": "i1", "amount": 50, "isPaid": true}]}
      ],
      "userName": "Alex"
    }
  },
  "activeConversationId": "A"
}`

// isolateEnv clears the variables config.Load reads so the host environment
// cannot leak into a test.
func isolateEnv(t *testing.T) {
	for _, k := range []string{"SNAPSHOT_SOURCE", "REMOTE_BACKEND", "UNIT_CONCURRENCY", "ENSURE_TABLES", "AMQP_URL", "PORT", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	t.Setenv("LOG_LEVEL", "error")
}

func writeSnapshot(t *testing.T, dir, caller, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, caller+".json"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestRun_ThenVerify(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeSnapshot(t, dir, "user-1", snapshotJSON)
	remoteDB := filepath.Join(dir, "remote.db")
	args := []string{"-caller", "user-1", "-snapshot-dir", dir, "-backend", "sqlite", "-remote-sqlite", remoteDB}

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), append([]string{"verify"}, args...), &stdout, &stderr); code != exitIncomplete {
		t.Fatalf("verify before run: exit %d, stderr %s", code, stderr.String())
	}

	stdout.Reset()
	if code := run(context.Background(), append([]string{"run"}, args...), &stdout, &stderr); code != exitOK {
		t.Fatalf("run: exit %d, stderr %s", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{
		"Migrating 2 transactions for Household...",
		"Migrating 1 debts for Household...",
		"Migrating 1 installments for Household...",
		"Migration completed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("run output missing %q:\n%s", want, out)
		}
	}

	stdout.Reset()
	if code := run(context.Background(), append([]string{"verify"}, args...), &stdout, &stderr); code != exitOK {
		t.Fatalf("verify after run: exit %d\n%s", code, stdout.String())
	}
	if !strings.Contains(stdout.String(), "All records present") {
		t.Errorf("verify output:\n%s", stdout.String())
	}
}

func TestRun_CorruptSnapshotExitCode(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeSnapshot(t, dir, "user-1", `{"units": [`)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"run", "-caller", "user-1", "-snapshot-dir", dir, "-dry-run"}, &stdout, &stderr)
	if code != exitCorrupt {
		t.Fatalf("exit = %d, want %d; stderr %s", code, exitCorrupt, stderr.String())
	}
}

func TestRun_NoData(t *testing.T) {
	isolateEnv(t)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"run", "-caller", "nobody", "-snapshot-dir", t.TempDir(), "-dry-run"}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("exit = %d; stderr %s", code, stderr.String())
	}
	if strings.TrimSpace(stdout.String()) != "No data found to migrate" {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRun_ConfigErrors(t *testing.T) {
	isolateEnv(t)
	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"explode"}},
		{"missing caller", []string{"run", "-dry-run"}},
		{"bad backend", []string{"run", "-caller", "u", "-backend", "postgres"}},
		{"bad flag", []string{"run", "-nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(context.Background(), tt.args, &stdout, &stderr); code != exitError {
				t.Errorf("exit = %d, want %d", code, exitError)
			}
		})
	}
}

func TestPlan(t *testing.T) {
	var stdout bytes.Buffer
	if code := run(context.Background(), []string{"plan"}, &stdout, &stdout); code != exitOK {
		t.Fatalf("exit = %d", code)
	}
	out := stdout.String()
	unit := strings.Index(out, "unit")
	debts := strings.Index(out, "debts")
	installments := strings.Index(out, "installments")
	if unit < 0 || debts < 0 || installments < debts {
		t.Errorf("plan output out of order:\n%s", out)
	}
}

func TestEnqueue_RequiresBroker(t *testing.T) {
	isolateEnv(t)
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"enqueue", "-caller", "u"}, &stdout, &stderr); code != exitError {
		t.Errorf("exit = %d, want %d", code, exitError)
	}
	if !strings.Contains(stderr.String(), "AMQP_URL") {
		t.Errorf("stderr = %q", stderr.String())
	}
}
