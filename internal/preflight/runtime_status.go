package preflight

import (
	"context"
	"errors"
	"fmt"
	"time"

	"encodesync/internal/api"
	"encodesync/internal/services"
)

// CheckDaemon reports whether the daemon API answers and accepts the token.
func CheckDaemon(ctx context.Context, baseURL, token string) Result {
	const name = "Daemon API"

	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	client := api.NewClient(baseURL, token)
	if err := client.Health(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (not reachable)", baseURL)}
	}
	if _, err := client.Status(checkCtx); err != nil {
		if errors.Is(err, services.ErrAuthentication) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (token rejected)", baseURL)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (%v)", baseURL, err)}
	}
	return Result{Name: name, Passed: true, Detail: baseURL}
}
