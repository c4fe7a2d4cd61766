package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nearlist/nearlist/internal/models"
)

// GatewaySender sends notifications by POSTing JSON payloads to an external
// push gateway.
type GatewaySender struct {
	URL    string
	APIKey string
	Client *http.Client
}

// NewGatewaySender creates a sender for the given gateway URL.
func NewGatewaySender(url, apiKey string) *GatewaySender {
	return &GatewaySender{
		URL:    url,
		APIKey: apiKey,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send delivers one payload and classifies any failure.
func (s *GatewaySender) Send(ctx context.Context, payload models.NotificationPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Code: CodeUnknown, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewBuffer(body))
	if err != nil {
		return &Error{Code: CodeUnknown, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &Error{Code: CodeTimeout, Err: err}
		}
		return &Error{Code: CodeTransient, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	httpErr := fmt.Errorf("gateway returned %d: %s", resp.StatusCode, msg)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return &Error{Code: CodeEndpointInvalid, Err: httpErr}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &Error{Code: CodePermissionDenied, Err: httpErr}
	case resp.StatusCode == http.StatusRequestTimeout:
		return &Error{Code: CodeTimeout, Err: httpErr}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &Error{Code: CodeTransient, Err: httpErr}
	default:
		return &Error{Code: CodeUnknown, Err: httpErr}
	}
}
