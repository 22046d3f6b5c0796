package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/hubenschmidt/go-vecrag/core"
)

// quotaCodes are the structured error codes providers use for exhausted
// quotas and rate limits.
var quotaCodes = map[string]bool{
	"resource_exhausted":  true,
	"insufficient_quota":  true,
	"rate_limit_exceeded": true,
}

// quotaMarkers are checked only when a message carries no status code.
var quotaMarkers = []string{
	"insufficient_quota",
	"resource_exhausted",
	"rate limit",
	"rate_limit",
	"exceeded your current quota",
	"too many requests",
}

var (
	statusPattern = regexp.MustCompile(`(?i)status(?: code)?\W{0,3}(\d{3})\b`)
	status429     = regexp.MustCompile(`\b429\b`)
)

func isQuotaMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range quotaMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// isQuotaBody reports whether a JSON error body names a quota condition in
// its error.status, error.code or error.type field. Free text is ignored.
func isQuotaBody(body []byte) bool {
	var envelope struct {
		Error struct {
			Status string          `json:"status"`
			Code   json.RawMessage `json:"code"`
			Type   string          `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return false
	}

	e := envelope.Error
	if quotaCodes[strings.ToLower(e.Status)] || quotaCodes[strings.ToLower(e.Type)] {
		return true
	}

	var code string
	if err := json.Unmarshal(e.Code, &code); err == nil {
		return quotaCodes[strings.ToLower(code)]
	}
	var num int
	if err := json.Unmarshal(e.Code, &num); err == nil {
		return num == http.StatusTooManyRequests
	}
	return false
}

// classifyStatus turns a non-2xx provider response into a typed error.
// Only 429 or a structured quota code counts as quota; any other status is
// a ProviderError whatever its message says.
func classifyStatus(provider string, status int, body []byte) error {
	err := fmt.Errorf("API error (status %d): %s", status, truncateBody(body))
	if status == http.StatusTooManyRequests || isQuotaBody(body) {
		return &core.QuotaExceededError{Provider: provider, Err: err}
	}
	return &core.ProviderError{Provider: provider, StatusCode: status, Err: err}
}

// classifyError handles SDK errors that only expose a message. An explicit
// status code decides; message markers apply only when there is none.
// Context errors pass through untouched.
func classifyError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, core.ErrQuotaExceeded) || errors.Is(err, core.ErrProvider) {
		return err
	}

	msg := err.Error()
	if m := statusPattern.FindStringSubmatch(msg); m != nil {
		status, _ := strconv.Atoi(m[1])
		lower := strings.ToLower(msg)
		if status == http.StatusTooManyRequests ||
			strings.Contains(lower, "insufficient_quota") || strings.Contains(lower, "resource_exhausted") {
			return &core.QuotaExceededError{Provider: provider, Err: err}
		}
		return &core.ProviderError{Provider: provider, StatusCode: status, Err: err}
	}

	if status429.MatchString(msg) || isQuotaMessage(msg) {
		return &core.QuotaExceededError{Provider: provider, Err: err}
	}
	return &core.ProviderError{Provider: provider, Err: err}
}

func truncateBody(b []byte) string {
	const max = 512
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// postJSON sends reqBody as JSON and decodes a 200 response into out.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, reqBody, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &core.ProviderError{Provider: provider, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return classifyStatus(provider, resp.StatusCode, respBody)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &core.ProviderError{Provider: provider, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
