package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"encodesync/internal/api"
	"encodesync/internal/assets"
	"encodesync/internal/events"
	"encodesync/internal/testsupport"
)

func TestCLIAssetLifecycle(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"assets", "create", "--id", "A1", "--title", "Launch Keynote", "--source", "uploads/A1/keynote.mp4"}, env.configPath)
	if err != nil {
		t.Fatalf("assets create: %v", err)
	}
	requireContains(t, out, "Created asset A1")

	out, _, err = runCLI(t, []string{"assets", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("assets list: %v", err)
	}
	requireContains(t, out, "Launch Keynote")
	requireContains(t, out, "Draft")

	out, _, err = runCLI(t, []string{"submit", "A1"}, env.configPath)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	requireContains(t, out, "Submitted asset A1 as job job-1")

	out, _, err = runCLI(t, []string{"assets", "show", "A1", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("assets show: %v", err)
	}
	var shown api.Asset
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("decode show output: %v\n%s", err, out)
	}
	if shown.Status != string(assets.StatusProcessing) || shown.JobID != "job-1" || shown.Generation != 1 {
		t.Fatalf("unexpected asset after submit: %+v", shown)
	}

	out, _, err = runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Processing")
	requireContains(t, out, "job-1")

	out, _, err = runCLI(t, []string{"cancel", "A1"}, env.configPath)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireContains(t, out, "Cancel requested for job job-1")
	if len(env.encoder.cancelled) != 1 || env.encoder.cancelled[0] != "job-1" {
		t.Fatalf("expected job-1 cancelled, got %v", env.encoder.cancelled)
	}
}

func TestCLIListFiltersByStatus(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.NewAsset(t, env.store, "draft-1")
	testsupport.NewAsset(t, env.store, "busy-1", testsupport.Processing("job-9", "uploads/busy.mov"))

	out, _, err := runCLI(t, []string{"assets", "list", "--status", "processing", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("assets list: %v", err)
	}
	var list []api.Asset
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decode list output: %v\n%s", err, out)
	}
	if len(list) != 1 || list[0].ID != "busy-1" {
		t.Fatalf("expected only busy-1, got %+v", list)
	}
}

func TestCLIWatchStopsAtTerminalState(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.NewAsset(t, env.store, "w1", testsupport.Processing("job-w1", "uploads/w1.mp4"))
	if _, err := env.rec.Apply(context.Background(), events.Event{
		AssetID:      "w1",
		JobID:        "job-w1",
		Kind:         events.KindError,
		ErrorMessage: "codec unsupported",
		Source:       events.SourceWebhook,
	}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	out, _, err := runCLI(t, []string{"assets", "watch", "w1"}, env.configPath)
	if err != nil {
		t.Fatalf("assets watch: %v", err)
	}
	requireContains(t, out, "Failed")
	requireContains(t, out, "codec unsupported")
}

func TestCLISubmitUnknownAssetFails(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"submit", "missing"}, env.configPath); err == nil {
		t.Fatal("expected submit of unknown asset to fail")
	}
}

func TestCLITestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "ntfy topic not configured")
}

func TestCLIStatusWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "127.0.0.1:1"
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"status"}, configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "not reachable")
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote "+target)
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
}

func TestConfigShowMasksSecrets(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "api_token = '********'")
	if strings.Contains(out, "cli-token") {
		t.Fatalf("config show leaked the api token:\n%s", out)
	}
}
