package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWritesAuditTrail(t *testing.T) {
	dir := t.TempDir()
	appPath := filepath.Join(dir, "app.log")
	auditPath := filepath.Join(dir, "audit", "tx.log")

	err := Init(Config{
		Level:       "debug",
		Format:      "json",
		OutputPaths: []string{appPath},
		Audit:       AuditConfig{Enabled: true, Path: auditPath},
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = Sync() })

	Named("submit").Debug("polling receipt", "tx_hash", "0xabc")
	Audit().Info("transaction submitted", "tx_hash", "0xabc", "network", "bsc_testnet")
	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	app, err := os.ReadFile(appPath)
	if err != nil {
		t.Fatalf("read app log: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(app))), &entry); err != nil {
		t.Fatalf("decode app log %q: %v", app, err)
	}
	if entry["component"] != "submit" || entry["tx_hash"] != "0xabc" {
		t.Fatalf("unexpected app entry %v", entry)
	}

	audit, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if !strings.Contains(string(audit), `"network":"bsc_testnet"`) {
		t.Fatalf("unexpected audit log %s", audit)
	}
	if strings.Contains(string(app), "transaction submitted") {
		t.Fatalf("audit entries must not go to the app log")
	}
}

func TestInitRejectsAuditWithoutPath(t *testing.T) {
	if err := Init(Config{Audit: AuditConfig{Enabled: true}}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]string{"debug": "DEBUG", "WARN": "WARN", "error": "ERROR", "": "INFO", "verbose": "INFO"}
	for in, want := range cases {
		if got := parseLevel(in).String(); got != want {
			t.Fatalf("%q: want %s got %s", in, want, got)
		}
	}
}
