package preflight

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"encodesync/internal/api"
	"encodesync/internal/assets"
	"encodesync/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckRequired(t *testing.T) {
	if CheckRequired("Bucket", " ", "set it").Passed {
		t.Fatal("expected blank value to fail")
	}
	if !CheckRequired("Bucket", "media-out", "set it").Passed {
		t.Fatal("expected configured value to pass")
	}
}

func TestCheckWebhookURL(t *testing.T) {
	tests := []struct {
		url    string
		passed bool
	}{
		{"", false},
		{"hooks.example.com/path", false},
		{"http://localhost:8080/webhooks/mediaconvert", false},
		{"http://10.0.0.4/webhooks/mediaconvert", false},
		{"http://hooks.example.com/webhooks/mediaconvert", true},
		{"https://hooks.example.com/webhooks/mediaconvert", true},
	}
	for _, tc := range tests {
		if got := CheckWebhookURL(tc.url); got.Passed != tc.passed {
			t.Errorf("CheckWebhookURL(%q) passed=%v, want %v (%s)", tc.url, got.Passed, tc.passed, got.Detail)
		}
	}
}

func TestCheckAWSCredentials_Static(t *testing.T) {
	result := CheckAWSCredentials(context.Background(), config.AWS{
		Region:          "eu-west-1",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
	})
	if !result.Passed {
		t.Fatalf("expected static credentials to resolve, got: %s", result.Detail)
	}
}

func TestCheckNATS_Unreachable(t *testing.T) {
	result := CheckNATS("nats://127.0.0.1:1")
	if result.Passed {
		t.Fatal("expected failure for closed port")
	}
}

func TestCheckDaemon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true})
	}))
	defer srv.Close()

	if result := CheckDaemon(context.Background(), srv.URL, "good"); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result := CheckDaemon(context.Background(), srv.URL, "bad"); result.Passed {
		t.Fatal("expected failure for rejected token")
	}
	if result := CheckDaemon(context.Background(), "http://127.0.0.1:1", ""); result.Passed {
		t.Fatal("expected failure for unreachable daemon")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_ConfiguredDaemon(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIDEXAMPLE")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.AWS.Region = "us-east-1"
	cfg.AWS.RoleARN = "arn:aws:iam::123456789012:role/MediaConvert"
	cfg.Storage.UploadsBucket = "uploads"
	cfg.Storage.OutputsBucket = "outputs"
	cfg.Webhook.PublicURL = "https://hooks.example.com/webhooks/mediaconvert"

	results := RunAll(context.Background(), &cfg)
	if len(results) != 9 {
		t.Fatalf("expected 9 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
	if Failed(results) {
		t.Fatal("expected no failures")
	}
	if last := results[len(results)-1]; last.Name != "NATS" || !last.Skipped {
		t.Fatalf("expected skipped NATS check, got %+v", last)
	}
}

func TestRunAll_ReportsMissingBuckets(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()

	if !Failed(RunAll(context.Background(), &cfg)) {
		t.Fatal("expected failures for an unconfigured daemon")
	}
}

func TestCheckDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets.db")
	if result := CheckDatabase(context.Background(), path); !result.Passed {
		t.Fatalf("missing database should pass, got %s", result.Detail)
	}

	store, err := assets.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	if _, err := store.Create(context.Background(), &assets.Asset{ID: "a1"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_ = store.Close()

	result := CheckDatabase(context.Background(), path)
	if !result.Passed {
		t.Fatalf("expected healthy database, got %s", result.Detail)
	}
	if result.Detail != path+" (schema v1, 1 assets)" {
		t.Fatalf("unexpected detail %q", result.Detail)
	}

	garbage := filepath.Join(t.TempDir(), "garbage.db")
	if err := os.WriteFile(garbage, []byte("not a database at all, just text"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if result := CheckDatabase(context.Background(), garbage); result.Passed {
		t.Fatal("expected corrupt database to fail")
	}
}
