package webhook

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"encodesync/internal/services"
)

// Confirmer completes an SNS subscription handshake.
type Confirmer interface {
	Confirm(ctx context.Context, msg Message) error
}

// SubscriptionAPI is the SNS operation APIConfirmer needs.
type SubscriptionAPI interface {
	ConfirmSubscription(ctx context.Context, params *sns.ConfirmSubscriptionInput, optFns ...func(*sns.Options)) (*sns.ConfirmSubscriptionOutput, error)
}

// APIConfirmer confirms through the SNS ConfirmSubscription API.
type APIConfirmer struct {
	API SubscriptionAPI
}

func (c APIConfirmer) Confirm(ctx context.Context, msg Message) error {
	if msg.TopicARN == "" || msg.Token == "" {
		return services.Wrap(services.ErrValidation, "webhook", "confirm subscription", "topic arn and token are required", nil)
	}
	var opts []func(*sns.Options)
	if region := regionFromARN(msg.TopicARN); region != "" {
		opts = append(opts, func(o *sns.Options) { o.Region = region })
	}
	_, err := c.API.ConfirmSubscription(ctx, &sns.ConfirmSubscriptionInput{
		TopicArn: aws.String(msg.TopicARN),
		Token:    aws.String(msg.Token),
	}, opts...)
	if err != nil {
		return services.Wrap(services.ErrServiceUnavailable, "webhook", "confirm subscription", msg.TopicARN, err)
	}
	return nil
}

// URLConfirmer confirms by visiting the SubscribeURL.
type URLConfirmer struct {
	Client *http.Client
}

func (c URLConfirmer) Confirm(ctx context.Context, msg Message) error {
	parsed, err := ValidateSNSURL(msg.SubscribeURL)
	if err != nil {
		return services.Wrap(services.ErrValidation, "webhook", "confirm subscription", "subscribe url rejected", err)
	}
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return fmt.Errorf("build confirm request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrServiceUnavailable, "webhook", "confirm subscription", msg.TopicARN, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrServiceUnavailable, "webhook", "confirm subscription",
			fmt.Sprintf("subscribe url returned %d", resp.StatusCode), nil)
	}
	return nil
}

// regionFromARN returns the region field of arn:partition:service:region:...
func regionFromARN(arn string) string {
	parts := strings.SplitN(arn, ":", 6)
	if len(parts) < 6 {
		return ""
	}
	return parts[3]
}
