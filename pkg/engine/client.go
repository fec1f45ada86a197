package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"burnt-beats-be/internal/jobs"
	"burnt-beats-be/internal/pkg/logger"

	"github.com/google/uuid"
)

// Parameters mirrors the generation API's request contract.
type Parameters struct {
	Title        string                 `json:"title"`
	Lyrics       string                 `json:"lyrics"`
	Genre        string                 `json:"genre"`
	Tempo        int                    `json:"tempo"`
	Key          string                 `json:"key"`
	Duration     int                    `json:"duration"`
	Mood         string                 `json:"mood"`
	StyleOptions map[string]interface{} `json:"style_options,omitempty"`
}

type generateResponse struct {
	Success   bool   `json:"success"`
	SessionId string `json:"session_id"`
	Files     struct {
		Midi struct {
			Filename    string `json:"filename"`
			SizeBytes   int64  `json:"size_bytes"`
			DownloadURL string `json:"download_url"`
		} `json:"midi"`
	} `json:"files"`
	Error   string `json:"error"`
	Details string `json:"details"`
}

// Client drives the external generation service. Invoke returns immediately;
// the request runs in its own goroutine and all outcomes flow back through
// the engine report pipeline, never through the caller.
type Client struct {
	baseURL string
	http    *http.Client
	reports *jobs.ReportPublisher
	logger  logger.ILogger
}

func NewClient(baseURL string, timeout time.Duration, reports *jobs.ReportPublisher, log logger.ILogger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		reports: reports,
		logger:  log,
	}
}

// Invoke launches generation for a job. Progress percentages mark the coarse
// stages of the pipeline: request accepted, composition finished, artifact
// verified. The terminal report carries the artifact reference or the
// failure reason.
func (c *Client) Invoke(ctx context.Context, jobId uuid.UUID, params Parameters) {
	go c.run(ctx, jobId, params)
}

func (c *Client) run(ctx context.Context, jobId uuid.UUID, params Parameters) {
	c.report(ctx, jobs.EngineReport{Kind: jobs.ReportKindProgress, JobId: jobId, Percent: 10})

	body, err := json.Marshal(params)
	if err != nil {
		c.fail(ctx, jobId, fmt.Sprintf("invalid parameters: %v", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		c.fail(ctx, jobId, fmt.Sprintf("failed to build request: %v", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.fail(ctx, jobId, fmt.Sprintf("engine unreachable: %v", err))
		return
	}
	defer resp.Body.Close()

	c.report(ctx, jobs.EngineReport{Kind: jobs.ReportKindProgress, JobId: jobId, Percent: 60})

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.fail(ctx, jobId, fmt.Sprintf("failed to read engine response: %v", err))
		return
	}

	var result generateResponse
	if err := json.Unmarshal(data, &result); err != nil {
		c.fail(ctx, jobId, fmt.Sprintf("malformed engine response: %v", err))
		return
	}

	if resp.StatusCode != http.StatusOK || !result.Success {
		reason := result.Error
		if result.Details != "" {
			reason = fmt.Sprintf("%s: %s", result.Error, result.Details)
		}
		if reason == "" {
			reason = fmt.Sprintf("engine returned status %d", resp.StatusCode)
		}
		c.fail(ctx, jobId, reason)
		return
	}

	c.report(ctx, jobs.EngineReport{Kind: jobs.ReportKindProgress, JobId: jobId, Percent: 90})

	c.report(ctx, jobs.EngineReport{
		Kind:      jobs.ReportKindCompleted,
		JobId:     jobId,
		ResultRef: result.Files.Midi.DownloadURL,
	})
}

func (c *Client) fail(ctx context.Context, jobId uuid.UUID, reason string) {
	c.logger.Warn("EngineClient", "Generation failed", map[string]interface{}{
		"job_id": jobId, "reason": reason,
	})
	c.report(ctx, jobs.EngineReport{Kind: jobs.ReportKindFailed, JobId: jobId, FailureReason: reason})
}

func (c *Client) report(ctx context.Context, report jobs.EngineReport) {
	if err := c.reports.Publish(ctx, report); err != nil {
		c.logger.Error("EngineClient", "Failed to publish engine report", map[string]interface{}{
			"job_id": report.JobId, "error": err.Error(),
		})
	}
}
