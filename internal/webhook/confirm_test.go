package webhook_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"encodesync/internal/services"
	"encodesync/internal/webhook"
)

type fakeSubscriptionAPI struct {
	input  *sns.ConfirmSubscriptionInput
	region string
	err    error
}

func (f *fakeSubscriptionAPI) ConfirmSubscription(_ context.Context, in *sns.ConfirmSubscriptionInput, optFns ...func(*sns.Options)) (*sns.ConfirmSubscriptionOutput, error) {
	f.input = in
	opts := sns.Options{Region: "us-east-1"}
	for _, fn := range optFns {
		fn(&opts)
	}
	f.region = opts.Region
	if f.err != nil {
		return nil, f.err
	}
	return &sns.ConfirmSubscriptionOutput{SubscriptionArn: aws.String(aws.ToString(in.TopicArn) + ":sub")}, nil
}

func TestAPIConfirmerUsesTopicRegion(t *testing.T) {
	api := &fakeSubscriptionAPI{}
	msg := webhook.Message{TopicARN: "arn:aws:sns:eu-west-1:123456789012:mediaconvert", Token: "tok"}

	require.NoError(t, webhook.APIConfirmer{API: api}.Confirm(context.Background(), msg))
	assert.Equal(t, "eu-west-1", api.region)
	assert.Equal(t, "tok", aws.ToString(api.input.Token))
	assert.Equal(t, msg.TopicARN, aws.ToString(api.input.TopicArn))

	api.err = errors.New("throttled")
	err := webhook.APIConfirmer{API: api}.Confirm(context.Background(), msg)
	assert.ErrorIs(t, err, services.ErrServiceUnavailable)

	err = webhook.APIConfirmer{API: api}.Confirm(context.Background(), webhook.Message{})
	assert.ErrorIs(t, err, services.ErrValidation)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestURLConfirmer(t *testing.T) {
	var visited string
	status := http.StatusOK
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		visited = r.URL.String()
		return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader("<ok/>")), Header: http.Header{}}, nil
	})}
	confirmer := webhook.URLConfirmer{Client: client}
	msg := webhook.Message{SubscribeURL: "https://sns.us-east-1.amazonaws.com/?Action=ConfirmSubscription&Token=tok"}

	require.NoError(t, confirmer.Confirm(context.Background(), msg))
	assert.Equal(t, msg.SubscribeURL, visited)

	status = http.StatusForbidden
	assert.ErrorIs(t, confirmer.Confirm(context.Background(), msg), services.ErrServiceUnavailable)

	visited = ""
	err := confirmer.Confirm(context.Background(), webhook.Message{SubscribeURL: "https://evil.example.com/confirm"})
	assert.ErrorIs(t, err, services.ErrValidation)
	assert.Empty(t, visited)
}
