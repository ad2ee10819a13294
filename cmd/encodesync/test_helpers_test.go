package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"encodesync/internal/assets"
	"encodesync/internal/broadcast"
	"encodesync/internal/config"
	"encodesync/internal/daemon"
	"encodesync/internal/events"
	"encodesync/internal/logging"
	"encodesync/internal/monitor"
	"encodesync/internal/reconcile"
	"encodesync/internal/services/mediaconvert"
	"encodesync/internal/submit"
	"encodesync/internal/testsupport"
	"encodesync/internal/webhook"
)

type fakeEncoder struct {
	mu        sync.Mutex
	submitted int
	cancelled []string
}

func (e *fakeEncoder) SubmitJob(context.Context, mediaconvert.JobSpec) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitted++
	return fmt.Sprintf("job-%d", e.submitted), nil
}

func (e *fakeEncoder) CancelJob(_ context.Context, jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled = append(e.cancelled, jobID)
	return nil
}

func (e *fakeEncoder) GetJobStatus(context.Context, string) (mediaconvert.JobStatus, error) {
	return mediaconvert.JobStatus{Status: "PROGRESSING"}, nil
}

type noProbe struct{}

func (noProbe) Check(context.Context, *assets.Asset) (events.Event, bool, error) {
	return events.Event{}, false, nil
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *assets.Store
	rec        *reconcile.Reconciler
	encoder    *fakeEncoder
	daemon     *daemon.Daemon
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("cli-token"))
	cfg.Polling.InitialDelay = 3600
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	hub := broadcast.NewHub()
	rec := reconcile.New(store, hub, cfg.CommitTimeout(), logger)
	encoder := &fakeEncoder{}
	mon := monitor.New(cfg.PollSchedule(), monitor.Dependencies{
		Jobs:       encoder,
		Probe:      noProbe{},
		Reconciler: rec,
		Assets:     store,
	}, logger)
	rec.AddListener(mon)
	sub := submit.New(cfg, submit.Dependencies{
		Encoder:    encoder,
		Assets:     store,
		Reconciler: rec,
		Monitor:    mon,
	}, logger)

	d, err := daemon.New(cfg, daemon.Dependencies{
		Store:     store,
		Monitor:   mon,
		Submitter: sub,
		Hub:       hub,
		Webhook:   webhook.NewHandler(cfg.Webhook, rec, nil, nil, logger),
		Broadcast: "in-process",
	}, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(d.Stop)

	// Point the CLI at the port the daemon actually bound.
	fileCfg := *cfg
	fileCfg.Paths.APIBind = d.Address()
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, &fileCfg)

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		rec:        rec,
		encoder:    encoder,
		daemon:     d,
		configPath: configPath,
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
