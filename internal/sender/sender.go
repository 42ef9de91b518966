package sender

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hookline/hookline/internal/models"
)

const (
	DefaultTimeout      = 30 * time.Second
	maxResponseBodySize = 100 * 1024
)

// FailedRequestError marks an attempt that did not end in a 2xx response.
// The accompanying SentResult still carries the observed status so the
// attempt can be recorded.
type FailedRequestError struct {
	Status models.AttemptStatus
}

func (e *FailedRequestError) Error() string {
	return fmt.Sprintf("request failed with status %s", e.Status)
}

// SentResult describes one completed send. ResponseBody is nil when the
// request never produced an HTTP response.
type SentResult struct {
	Status       models.AttemptStatus
	ResponseTime time.Duration
	ResponseBody *string
}

func (r *SentResult) Delivered() bool {
	return r.Status.Delivered()
}

// Sender POSTs event payloads to endpoint URLs.
type Sender struct {
	client *http.Client
}

type Option func(*Sender)

func WithTimeout(timeout time.Duration) Option {
	return func(s *Sender) {
		s.client.Timeout = timeout
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(s *Sender) {
		s.client = client
	}
}

func New(opts ...Option) *Sender {
	sender := &Sender{
		client: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(sender)
	}
	return sender
}

// Send POSTs the payload to the URL as JSON and classifies the outcome.
//
// A 2xx response yields a nil error. Any other HTTP response yields the
// result alongside a *FailedRequestError. A transport failure (DNS,
// connection, timeout) yields a result with an unknown status, no body, and
// the underlying error.
func (s *Sender) Send(ctx context.Context, payload models.Payload, url string) (*SentResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	responseTime := time.Since(start)
	if err != nil {
		result := &SentResult{
			Status:       models.UnknownStatus(classifyNetworkError(err)),
			ResponseTime: responseTime,
		}
		return result, err
	}
	defer resp.Body.Close()

	body := readBody(resp.Body)
	result := &SentResult{
		Status:       models.NumericStatus(resp.StatusCode),
		ResponseTime: responseTime,
		ResponseBody: &body,
	}
	if !result.Delivered() {
		return result, &FailedRequestError{Status: result.Status}
	}
	return result, nil
}

func readBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxResponseBodySize))
	if err != nil {
		return ""
	}
	return string(data)
}

// classifyNetworkError maps transport failures to stable reason codes so
// attempts for unreachable endpoints stay comparable across retries.
func classifyNetworkError(err error) string {
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "no such host"):
		return "dns_error"
	case strings.Contains(errStr, "connection refused"):
		return "connection_refused"
	case strings.Contains(errStr, "connection reset"):
		return "connection_reset"
	case strings.Contains(errStr, "network is unreachable"):
		return "network_unreachable"
	case strings.Contains(errStr, "context deadline exceeded"),
		strings.Contains(errStr, "Client.Timeout exceeded"),
		strings.Contains(errStr, "i/o timeout"):
		return "timeout"
	case strings.Contains(errStr, "tls:"),
		strings.Contains(errStr, "certificate"):
		return "tls_error"
	default:
		return "network_error"
	}
}
