// Package mediaconvert wraps AWS Elemental MediaConvert: job submission,
// status queries and cancellation against the account-specific endpoint.
package mediaconvert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	mc "github.com/aws/aws-sdk-go-v2/service/mediaconvert"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert/types"
	"github.com/aws/smithy-go"

	"encodesync/internal/config"
	"encodesync/internal/logging"
	"encodesync/internal/services"
)

const component = "mediaconvert"

// API is the subset of the MediaConvert SDK client encodesync calls.
type API interface {
	CreateJob(ctx context.Context, params *mc.CreateJobInput, optFns ...func(*mc.Options)) (*mc.CreateJobOutput, error)
	GetJob(ctx context.Context, params *mc.GetJobInput, optFns ...func(*mc.Options)) (*mc.GetJobOutput, error)
	CancelJob(ctx context.Context, params *mc.CancelJobInput, optFns ...func(*mc.Options)) (*mc.CancelJobOutput, error)
}

// EndpointAPI discovers the account endpoint.
type EndpointAPI interface {
	DescribeEndpoints(ctx context.Context, params *mc.DescribeEndpointsInput, optFns ...func(*mc.Options)) (*mc.DescribeEndpointsOutput, error)
}

// JobStatus is the query view of one job.
type JobStatus struct {
	JobID           string
	Status          string
	PercentComplete *int
	ErrorCode       string
	ErrorMessage    string
	DurationSeconds int
	UserMetadata    map[string]string
}

// Client submits, queries and cancels encoding jobs.
type Client struct {
	settings config.AWS
	awsCfg   aws.Config
	logger   *slog.Logger

	// mu guards api only; endpoint discovery runs without it.
	mu  sync.Mutex
	api API
}

// New creates a client. The endpoint is resolved on first use and cached.
func New(settings config.AWS, awsCfg aws.Config, logger *slog.Logger) *Client {
	return &Client{
		settings: settings,
		awsCfg:   awsCfg,
		logger:   logging.NewComponentLogger(logger, component),
	}
}

// NewWithAPI creates a client bound to an existing API implementation.
func NewWithAPI(settings config.AWS, api API, logger *slog.Logger) *Client {
	c := New(settings, aws.Config{}, logger)
	c.api = api
	return c
}

func (c *Client) client(ctx context.Context) (API, error) {
	c.mu.Lock()
	api := c.api
	c.mu.Unlock()
	if api != nil {
		return api, nil
	}

	endpoint := c.settings.MediaConvertEndpoint
	if endpoint == "" {
		discoverCtx, cancel := context.WithTimeout(ctx, c.requestTimeout())
		discovered, err := DiscoverEndpoint(discoverCtx, mc.NewFromConfig(c.awsCfg))
		cancel()
		if err != nil {
			return nil, err
		}
		endpoint = discovered
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api == nil {
		c.api = mc.NewFromConfig(c.awsCfg, func(o *mc.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
		if c.settings.MediaConvertEndpoint == "" {
			c.logger.Info("mediaconvert endpoint discovered",
				logging.String("endpoint", endpoint),
				logging.String(logging.FieldEventType, "endpoint_discovered"),
			)
		}
	}
	return c.api, nil
}

func (c *Client) requestTimeout() time.Duration {
	if c.settings.RequestTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.settings.RequestTimeout) * time.Second
}

// DiscoverEndpoint asks MediaConvert for the account-specific endpoint URL.
func DiscoverEndpoint(ctx context.Context, api EndpointAPI) (string, error) {
	out, err := api.DescribeEndpoints(ctx, &mc.DescribeEndpointsInput{MaxResults: aws.Int32(1)})
	if err != nil {
		return "", classify("describe endpoints", err)
	}
	for _, endpoint := range out.Endpoints {
		if url := strings.TrimSpace(aws.ToString(endpoint.Url)); url != "" {
			return url, nil
		}
	}
	return "", services.Wrap(services.ErrServiceUnavailable, component, "describe endpoints", "no endpoint returned", nil)
}

// SubmitJob creates a job and returns its id.
func (c *Client) SubmitJob(ctx context.Context, spec JobSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", services.Wrap(services.ErrValidation, component, "submit", err.Error(), nil)
	}
	api, err := c.client(ctx)
	if err != nil {
		return "", err
	}

	input := &mc.CreateJobInput{
		Role:                 aws.String(c.settings.RoleARN),
		Settings:             spec.Settings(),
		UserMetadata:         spec.UserMetadata(),
		StatusUpdateInterval: types.StatusUpdateIntervalSeconds60,
		BillingTagsSource:    types.BillingTagsSourceJob,
		AccelerationSettings: &types.AccelerationSettings{Mode: types.AccelerationMode(c.settings.Acceleration)},
		Priority:             aws.Int32(0),
	}
	if queue := strings.TrimSpace(c.settings.Queue); queue != "" {
		input.Queue = aws.String(queue)
	}

	out, err := api.CreateJob(ctx, input)
	if err != nil {
		return "", classifyUnavailable("create job", err)
	}
	if out.Job == nil || aws.ToString(out.Job.Id) == "" {
		return "", services.Wrap(services.ErrServiceUnavailable, component, "create job", "response carried no job id", nil)
	}
	jobID := aws.ToString(out.Job.Id)
	c.logger.Info("encoding job submitted",
		logging.String(logging.FieldAssetID, spec.AssetID),
		logging.String(logging.FieldJobID, jobID),
		logging.String("source_key", spec.SourceKey),
		logging.String(logging.FieldEventType, "job_submitted"),
	)
	return jobID, nil
}

// GetJobStatus returns the current status of a job.
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (JobStatus, error) {
	api, err := c.client(ctx)
	if err != nil {
		return JobStatus{}, err
	}
	out, err := api.GetJob(ctx, &mc.GetJobInput{Id: aws.String(jobID)})
	if err != nil {
		return JobStatus{}, classify("get job", err)
	}
	if out.Job == nil {
		return JobStatus{}, services.Wrap(services.ErrNotFound, component, "get job", "job "+jobID+" missing from response", nil)
	}
	return statusFromJob(jobID, out.Job), nil
}

// CancelJob cancels a job. Cancelling an unknown job returns ErrNotFound.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	api, err := c.client(ctx)
	if err != nil {
		return err
	}
	if _, err := api.CancelJob(ctx, &mc.CancelJobInput{Id: aws.String(jobID)}); err != nil {
		return classify("cancel job", err)
	}
	c.logger.Info("encoding job cancel requested",
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldEventType, "job_cancel_requested"),
	)
	return nil
}

func statusFromJob(jobID string, job *types.Job) JobStatus {
	status := JobStatus{
		JobID:        jobID,
		Status:       string(job.Status),
		ErrorMessage: aws.ToString(job.ErrorMessage),
		UserMetadata: job.UserMetadata,
	}
	if id := aws.ToString(job.Id); id != "" {
		status.JobID = id
	}
	if job.JobPercentComplete != nil {
		percent := int(aws.ToInt32(job.JobPercentComplete))
		status.PercentComplete = &percent
	}
	if job.ErrorCode != nil {
		status.ErrorCode = strconv.Itoa(int(aws.ToInt32(job.ErrorCode)))
	}
	for _, group := range job.OutputGroupDetails {
		for _, detail := range group.OutputDetails {
			if ms := aws.ToInt32(detail.DurationInMs); ms > 0 {
				status.DurationSeconds = int(math.Round(float64(ms) / 1000))
				return status
			}
		}
	}
	return status
}

// classify maps SDK errors: NotFoundException → ErrNotFound, everything else unavailable.
func classify(operation string, err error) error {
	var notFound *types.NotFoundException
	if errors.As(err, &notFound) {
		return services.Wrap(services.ErrNotFound, component, operation, notFound.ErrorMessage(), err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFoundException" {
		return services.Wrap(services.ErrNotFound, component, operation, apiErr.ErrorMessage(), err)
	}
	return classifyUnavailable(operation, err)
}

func classifyUnavailable(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, component, operation, "request timed out", err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return services.Wrap(services.ErrServiceUnavailable, component, operation,
			fmt.Sprintf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage()), err)
	}
	return services.Wrap(services.ErrServiceUnavailable, component, operation, "request failed", err)
}
