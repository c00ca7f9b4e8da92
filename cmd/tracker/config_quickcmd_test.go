package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const quickcmdConfig = `[general]
state_db = "/tmp/tracker.db"

[projects.acme]
enabled = true

[batch]
mode = "atomic" # default
timeout = "30s"
`

func TestSetStringInConfigContentReplacesExistingValue(t *testing.T) {
	out, changed, err := setStringInConfigContent(quickcmdConfig, "batch", "mode", "workflow")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Fatal("expected content to change")
	}
	if !strings.Contains(out, `mode = "workflow" # default`) {
		t.Fatalf("expected mode to be replaced with the comment kept, got:\n%s", out)
	}
	if !strings.Contains(out, `timeout = "30s"`) || !strings.HasSuffix(out, "\n") {
		t.Fatalf("unrelated lines or trailing newline lost:\n%s", out)
	}
}

func TestSetStringInConfigContentNoOpWhenUnchanged(t *testing.T) {
	out, changed, err := setStringInConfigContent(quickcmdConfig, "batch", "mode", "atomic")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed || out != quickcmdConfig {
		t.Fatal("expected no change")
	}
}

func TestSetStringInConfigContentAddsMissingKeyAndTable(t *testing.T) {
	out, changed, err := setStringInConfigContent(quickcmdConfig, "general", "log_level", "debug")
	if err != nil || !changed {
		t.Fatalf("changed=%v err=%v", changed, err)
	}
	if !strings.HasPrefix(out, "[general]\nlog_level = \"debug\"\n") {
		t.Fatalf("expected key inserted under header, got:\n%s", out)
	}

	out, changed, err = setStringInConfigContent(quickcmdConfig, "sprint", "default_length", "168h")
	if err != nil || !changed {
		t.Fatalf("changed=%v err=%v", changed, err)
	}
	if !strings.HasSuffix(out, "[sprint]\ndefault_length = \"168h\"\n") {
		t.Fatalf("expected table appended, got:\n%s", out)
	}
}

func TestSetStringInConfigContentIgnoresOtherTables(t *testing.T) {
	in := "[api]\nmode = \"x\"\n[batch]\nmode = \"atomic\"\n"
	out, _, err := setStringInConfigContent(in, "batch", "mode", "workflow")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "[api]\nmode = \"x\"") {
		t.Fatalf("other table modified:\n%s", out)
	}
}

func TestSetBatchModeInConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.toml")
	if err := os.WriteFile(path, []byte(quickcmdConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := setBatchModeInConfigFile(path, "eventual"); err == nil {
		t.Fatal("expected invalid mode to be rejected")
	}
	changed, err := setBatchModeInConfigFile(path, "Workflow")
	if err != nil || !changed {
		t.Fatalf("changed=%v err=%v", changed, err)
	}
	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), `mode = "workflow"`) {
		t.Fatalf("file not updated:\n%s", raw)
	}
}

func TestSetSprintLengthValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.toml")
	if err := os.WriteFile(path, []byte(quickcmdConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, bad := range []string{"soon", "2h"} {
		if _, err := setSprintLengthInConfigFile(path, bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
	if _, err := setSprintLengthInConfigFile(path, "168h"); err != nil {
		t.Fatal(err)
	}
}
