package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	judgeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "contest",
		Subsystem: "judge",
		Name:      "submission_duration_seconds",
		Help:      "Time from enqueue to terminal status of sandbox jobs",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend", "language"})

	judgeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "contest",
		Subsystem: "judge",
		Name:      "failures_total",
		Help:      "Sandbox jobs that ended without a terminal status",
	}, []string{"backend", "reason"})
)

// Judge0Config configures the Judge0 HTTP client.
type Judge0Config struct {
	BaseURL        string
	AuthToken      string
	PollInterval   time.Duration
	MaxPolls       int
	RequestTimeout time.Duration
	HTTPClient     *http.Client
	Logger         zerolog.Logger
}

// Judge0Client submits jobs to a Judge0 compatible sandbox and polls for the verdict.
type Judge0Client struct {
	cfg    Judge0Config
	http   *http.Client
	tracer trace.Tracer
	logger zerolog.Logger
}

type judge0SubmitRequest struct {
	SourceCode     string  `json:"source_code"`
	LanguageID     int     `json:"language_id"`
	Stdin          string  `json:"stdin"`
	ExpectedOutput *string `json:"expected_output,omitempty"`
	CPUTimeLimit   float64 `json:"cpu_time_limit,omitempty"`
	MemoryLimit    int     `json:"memory_limit,omitempty"`
}

type judge0SubmitResponse struct {
	Token string `json:"token"`
}

type judge0Submission struct {
	Token  string `json:"token"`
	Status struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
	Stdout        *string `json:"stdout"`
	Stderr        *string `json:"stderr"`
	CompileOutput *string `json:"compile_output"`
	Message       *string `json:"message"`
	Time          *string `json:"time"`
	Memory        *int64  `json:"memory"`
}

// NewJudge0Client builds a client, filling unset knobs with safe defaults.
func NewJudge0Client(cfg Judge0Config) (*Judge0Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("judge0 base url is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 10
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &Judge0Client{
		cfg:    cfg,
		http:   httpClient,
		tracer: otel.Tracer("github.com/noah-isme/gema-contest-api/pkg/judge"),
		logger: logger.With().Str("component", "judge0_client").Logger(),
	}, nil
}

// Submit enqueues the job and polls on a fixed interval until the status is terminal or the
// poll budget runs out. Exhaustion and transport failures are reported as ErrExecution.
func (c *Judge0Client) Submit(parent context.Context, req Request) (Result, error) {
	ctx, span := c.tracer.Start(parent, "judge0.submit", trace.WithAttributes(
		attribute.String("judge.language", req.Language.Name),
		attribute.Int("judge.language_id", req.Language.Judge0ID),
	))
	defer span.End()

	start := time.Now()

	token, err := c.enqueue(ctx, req)
	if err != nil {
		judgeFailures.WithLabelValues("judge0", "enqueue").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "enqueue_failed")
		return Result{}, fmt.Errorf("%w: %v", ErrExecution, err)
	}
	span.SetAttributes(attribute.String("judge.token", token))

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= c.cfg.MaxPolls; attempt++ {
		select {
		case <-ctx.Done():
			judgeFailures.WithLabelValues("judge0", "cancelled").Inc()
			span.SetStatus(codes.Error, "cancelled")
			return Result{Token: token}, fmt.Errorf("%w: %v", ErrExecution, ctx.Err())
		case <-ticker.C:
		}

		submission, err := c.fetch(ctx, token)
		if err != nil {
			judgeFailures.WithLabelValues("judge0", "poll").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "poll_failed")
			return Result{Token: token}, fmt.Errorf("%w: %v", ErrExecution, err)
		}

		status := Status(submission.Status.ID)
		if !status.Terminal() {
			c.logger.Debug().Str("token", token).Int("attempt", attempt).Msg("judge job still processing")
			continue
		}

		result := submission.toResult()
		judgeDuration.WithLabelValues("judge0", req.Language.Name).Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.Int("judge.status", int(result.Status)))
		return result, nil
	}

	judgeFailures.WithLabelValues("judge0", "exhausted").Inc()
	span.SetStatus(codes.Error, "poll_budget_exhausted")
	return Result{Token: token}, fmt.Errorf("%w: job %s not finished after %d polls", ErrExecution, token, c.cfg.MaxPolls)
}

func (c *Judge0Client) enqueue(ctx context.Context, req Request) (string, error) {
	payload := judge0SubmitRequest{
		SourceCode:   req.Source,
		LanguageID:   req.Language.Judge0ID,
		Stdin:        req.Stdin,
		CPUTimeLimit: req.CPUTimeLimit,
		MemoryLimit:  req.MemoryLimitKB,
	}
	if !req.SkipComparison {
		expected := req.ExpectedOutput
		payload.ExpectedOutput = &expected
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode submission: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/submissions?base64_encoded=false&wait=false", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorise(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("post submission: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("post submission: unexpected status %d: %s", resp.StatusCode, readSnippet(resp.Body))
	}

	var created judge0SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode submission token: %w", err)
	}
	if created.Token == "" {
		return "", fmt.Errorf("sandbox returned an empty token")
	}

	return created.Token, nil
}

func (c *Judge0Client) fetch(ctx context.Context, token string) (judge0Submission, error) {
	url := fmt.Sprintf("%s/submissions/%s?base64_encoded=false&fields=token,status,stdout,stderr,compile_output,message,time,memory", c.cfg.BaseURL, token)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return judge0Submission{}, err
	}
	c.authorise(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return judge0Submission{}, fmt.Errorf("get submission: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return judge0Submission{}, fmt.Errorf("get submission: unexpected status %d: %s", resp.StatusCode, readSnippet(resp.Body))
	}

	var submission judge0Submission
	if err := json.NewDecoder(resp.Body).Decode(&submission); err != nil {
		return judge0Submission{}, fmt.Errorf("decode submission: %w", err)
	}
	return submission, nil
}

func (c *Judge0Client) authorise(req *http.Request) {
	if c.cfg.AuthToken != "" {
		req.Header.Set("X-Auth-Token", c.cfg.AuthToken)
	}
}

func (s judge0Submission) toResult() Result {
	result := Result{
		Token:         s.Token,
		Status:        Status(s.Status.ID),
		Description:   s.Status.Description,
		Stdout:        deref(s.Stdout),
		Stderr:        deref(s.Stderr),
		CompileOutput: deref(s.CompileOutput),
	}
	if result.Stderr == "" {
		result.Stderr = deref(s.Message)
	}
	if s.Time != nil {
		if parsed, err := strconv.ParseFloat(*s.Time, 64); err == nil {
			result.TimeSeconds = parsed
		}
	}
	if s.Memory != nil {
		result.MemoryKB = *s.Memory
	}
	return result
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func readSnippet(reader io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(reader, 512))
	return strings.TrimSpace(string(data))
}
