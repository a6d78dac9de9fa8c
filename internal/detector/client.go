package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"partners/internal"
	"partners/internal/config"
	"partners/internal/util"
)

// ErrRejected is returned when the service refuses an upload (HTTP 4xx).
var ErrRejected = errors.New("detection service rejected upload")

type Client struct {
	cfg         config.Config
	httpClient  *http.Client
	limiter     *RateLimiter
	maxAttempts int
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

type errorDetail struct {
	Error  string   `json:"error"`
	Errors []string `json:"errors"`
}

func NewClient(cfg config.Config) *Client {
	attempts := cfg.DetectorMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &Client{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: time.Duration(cfg.DetectorTimeoutMs) * time.Millisecond},
		limiter:     NewRateLimiter(cfg.DetectorRateLimitRPS),
		maxAttempts: attempts,
	}
}

// Detect uploads a workbook and returns the classification payload. The
// service does all scoring; this only moves bytes and decodes the answer.
func (c *Client) Detect(ctx context.Context, filename string, workbook []byte) (internal.AnalysisPayload, error) {
	if strings.TrimSpace(filename) == "" {
		filename = "upload.xlsx"
	}
	body, err := c.do(ctx, http.MethodPost, "duplicates/upload", func() (io.Reader, string, error) {
		buf := bytes.NewBuffer(nil)
		mw := multipart.NewWriter(buf)
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(workbook); err != nil {
			return nil, "", err
		}
		if err := mw.Close(); err != nil {
			return nil, "", err
		}
		return buf, mw.FormDataContentType(), nil
	})
	if err != nil {
		return internal.AnalysisPayload{}, err
	}
	return DecodePayload(body)
}

// RemoteConfig returns the thresholds the service reports for itself.
func (c *Client) RemoteConfig(ctx context.Context) (map[string]any, error) {
	body, err := c.do(ctx, http.MethodGet, "config", nil)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode remote config: %w", err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, makeBody func() (io.Reader, string, error)) ([]byte, error) {
	url := strings.TrimRight(c.cfg.DetectorAPIBaseURL, "/") + "/" + endpoint

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var reader io.Reader
		contentType := ""
		if makeBody != nil {
			r, ct, err := makeBody()
			if err != nil {
				return nil, err
			}
			reader, contentType = r, ct
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if token := strings.TrimSpace(c.cfg.DetectorAPIToken); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return body, nil
		}
		if isRetryableStatus(resp.StatusCode) && attempt < c.maxAttempts {
			lastErr = fmt.Errorf("detection service status %d", resp.StatusCode)
			if err := sleepCtx(ctx, backoff(attempt)); err != nil {
				return nil, err
			}
			continue
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, fmt.Errorf("%w: status=%d %s", ErrRejected, resp.StatusCode, describeError(body))
		}
		return nil, fmt.Errorf("detection service error: status=%d %s", resp.StatusCode, describeError(body))
	}

	if lastErr == nil {
		lastErr = errors.New("detection request failed")
	}
	return nil, lastErr
}

func backoff(attempt int) time.Duration {
	return time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func describeError(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || len(eb.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}
	var detail errorDetail
	if err := json.Unmarshal(eb.Detail, &detail); err == nil && detail.Error != "" {
		if len(detail.Errors) > 0 {
			return detail.Error + ": " + strings.Join(detail.Errors, "; ")
		}
		return detail.Error
	}
	var plain string
	if err := json.Unmarshal(eb.Detail, &plain); err == nil {
		return plain
	}
	return string(eb.Detail)
}

type rawPayload struct {
	FileID       any                      `json:"file_id"`
	TotalRecords any                      `json:"total_records"`
	Results      []map[string]any         `json:"results"`
	Progress     internal.PayloadProgress `json:"progress"`
}

// DecodePayload accepts the service response with loosely typed fields:
// ids may be numbers or strings, scores may be numbers, numeric strings or
// percentages. A result with an unreadable score keeps a nil score.
func DecodePayload(body []byte) (internal.AnalysisPayload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw rawPayload
	if err := dec.Decode(&raw); err != nil {
		return internal.AnalysisPayload{}, fmt.Errorf("decode detection payload: %w", err)
	}

	out := internal.AnalysisPayload{
		FileID:   toString(raw.FileID),
		Results:  make([]internal.PayloadResult, 0, len(raw.Results)),
		Progress: raw.Progress,
	}
	if n, ok := toInt(raw.TotalRecords); ok {
		out.TotalRecords = n
	} else {
		out.TotalRecords = len(raw.Results)
	}

	for _, r := range raw.Results {
		res := internal.PayloadResult{
			ID:              toString(r["id"]),
			InstitutionName: toString(r["institution_name"]),
			Acronym:         toString(r["acronym"]),
			Status:          toString(r["status"]),
			Similarity:      toScore(r["similarity"]),
			Reason:          toString(r["reason"]),
			WebPage:         toString(r["web_page"]),
			Type:            toString(r["type"]),
			Country:         toString(r["country"]),
		}
		if id, ok := toInt(r["clarisa_match"]); ok {
			res.ClarisaMatch = util.IntPtr(id)
		}
		out.Results = append(out.Results, res)
	}
	return out, nil
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case float64:
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		return i, err == nil
	default:
		return 0, false
	}
}

func toScore(v any) *float64 {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil
		}
		if s, ok := util.ClampScore(f); ok {
			return util.FloatPtr(s)
		}
	case float64:
		if s, ok := util.ClampScore(t); ok {
			return util.FloatPtr(s)
		}
	case string:
		if s, ok := util.ParseScore(t); ok {
			return util.FloatPtr(s)
		}
	}
	return nil
}
