package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sys/unix"

	"encodesync/internal/assets"
	"encodesync/internal/config"
	"encodesync/internal/services/awscfg"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDatabase opens an existing asset database and runs an integrity check.
// A database that does not exist yet passes; the daemon creates it.
func CheckDatabase(ctx context.Context, path string) Result {
	const name = "Asset database"
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (created on first start)", path)}
	}
	store, err := assets.OpenPath(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	defer store.Close()

	health, err := store.CheckHealth(ctx)
	switch {
	case err != nil:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	case health.Error != "":
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s)", path, health.Error)}
	case !health.IntegrityCheck:
		return Result{Name: name, Detail: fmt.Sprintf("%s (integrity check failed)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (schema v%d, %d assets)", path, health.SchemaVersion, health.TotalAssets)}
}

// CheckRequired passes when value is set.
func CheckRequired(name, value, hint string) Result {
	if strings.TrimSpace(value) == "" {
		return Result{Name: name, Detail: "missing (" + hint + ")"}
	}
	return Result{Name: name, Passed: true, Detail: value}
}

// CheckWebhookURL verifies the callback URL SNS will deliver to. SNS only
// delivers to publicly reachable http(s) endpoints.
func CheckWebhookURL(raw string) Result {
	const name = "Webhook URL"
	if raw == "" {
		return Result{Name: name, Detail: "missing (set webhook.public_url; jobs will rely on polling)"}
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not an absolute url)", raw)}
	}
	host := parsed.Hostname()
	if host == "localhost" {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not reachable from SNS)", raw)}
	}
	if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not reachable from SNS)", raw)}
	}
	if parsed.Scheme != "https" {
		return Result{Name: name, Passed: true, Detail: raw + " (warning: plain http)"}
	}
	return Result{Name: name, Passed: true, Detail: raw}
}

// CheckAWSCredentials resolves the credential chain without calling any
// service API.
func CheckAWSCredentials(ctx context.Context, settings config.AWS) Result {
	const name = "AWS credentials"

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	awsCfg, err := awscfg.Load(checkCtx, settings)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	creds, err := awsCfg.Credentials.Retrieve(checkCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{Name: name, Detail: "credential lookup timed out"}
		}
		return Result{Name: name, Detail: fmt.Sprintf("no credentials (%v)", err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s via %s", awsCfg.Region, creds.Source)}
}

// CheckNATS verifies the broadcast server accepts a connection.
func CheckNATS(serverURL string) Result {
	const name = "NATS"
	nc, err := nats.Connect(serverURL, nats.Name("encodesync-preflight"), nats.Timeout(5*time.Second), nats.NoReconnect())
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", serverURL, err)}
	}
	defer nc.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (server %s)", serverURL, nc.ConnectedServerVersion())}
}
