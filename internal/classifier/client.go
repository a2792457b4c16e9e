// Package classifier talks to the platform's threat detection API. Each
// captured image is uploaded for analysis; the typed verdicts for a full
// sweep are then reduced to at most one incident.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bonching/apiculture-iot/internal/config"
	"github.com/bonching/apiculture-iot/internal/types"
)

// Client uploads captured images for threat detection.
type Client struct {
	baseURL    string
	uploadPath string
	context    string
	sensorID   string
	http       *http.Client
}

// NewClient creates a classifier client for one sensor
func NewClient(cfg config.ClassifierConfig, sensorID string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		uploadPath: cfg.UploadPath,
		context:    cfg.Context,
		sensorID:   sensorID,
		http: &http.Client{
			Timeout: time.Duration(cfg.TimeoutS) * time.Second,
		},
	}
}

// Analyze uploads one sample and returns its verdict. A transport fault,
// a non-2xx status or an unparseable body all count as a failed upload.
func (c *Client) Analyze(ctx context.Context, sample types.SweepSample) (types.Verdict, error) {
	file, err := os.Open(sample.FilePath)
	if err != nil {
		return types.Verdict{}, fmt.Errorf("failed to open sample: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="image"; filename="%s"`, filepath.Base(sample.FilePath)))
	header.Set("Content-Type", "image/jpeg")

	part, err := writer.CreatePart(header)
	if err != nil {
		return types.Verdict{}, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return types.Verdict{}, fmt.Errorf("failed to read sample: %w", err)
	}

	if err := writer.WriteField("context", c.context); err != nil {
		return types.Verdict{}, fmt.Errorf("failed to build upload: %w", err)
	}
	if err := writer.WriteField("sensorId", c.sensorID); err != nil {
		return types.Verdict{}, fmt.Errorf("failed to build upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return types.Verdict{}, fmt.Errorf("failed to finalize upload: %w", err)
	}

	url := c.baseURL + c.uploadPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return types.Verdict{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	slog.Debug("uploading image for threat detection",
		"url", url,
		"path", sample.FilePath,
		"angle", sample.AngleDegrees,
		"trace_id", sample.TraceID,
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return types.Verdict{}, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return types.Verdict{}, fmt.Errorf("failed to read analysis response: %w", err)
	}

	// The ingestion endpoint answers 201 Created on success; any 2xx is
	// treated as accepted.
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return types.Verdict{}, fmt.Errorf("upload rejected with status %d: %s",
			resp.StatusCode, previewBody(raw))
	}

	var analysis analysisResponse
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return types.Verdict{}, fmt.Errorf("unparseable analysis response: %w", err)
	}

	return analysis.toVerdict(sample), nil
}

// previewBody trims a response body for log and error messages.
func previewBody(raw []byte) string {
	const max = 200
	s := strings.TrimSpace(string(raw))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
