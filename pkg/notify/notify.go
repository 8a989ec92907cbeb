// Package notify delivers event records to an outbound channel.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Sink receives one record at a time. Callers treat failures as non-fatal.
type Sink interface {
	Send(ctx context.Context, record map[string]any) error
}

// WebhookSink posts records to a chat workflow webhook as
// {"event_data": "<indented JSON>"}.
type WebhookSink struct {
	URL    string
	Client *http.Client
}

func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (s *WebhookSink) Send(ctx context.Context, record map[string]any) error {
	pretty, err := json.MarshalIndent(record, "", "    ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	body, err := json.Marshal(map[string]string{"event_data": string(pretty)})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// LogSink writes records to the logger. Used when no webhook is configured.
type LogSink struct {
	Logger *zerolog.Logger
}

func (s LogSink) Send(_ context.Context, record map[string]any) error {
	logger := log.Logger
	if s.Logger != nil {
		logger = *s.Logger
	}
	logger.Info().Fields(record).Msg("Event")
	return nil
}

// Sanitize deletes fields from record in place and returns it.
func Sanitize(record map[string]any, fields []string) map[string]any {
	for _, f := range fields {
		delete(record, f)
	}
	return record
}

// DefaultStripFields are removed from events before they leave the process.
var DefaultStripFields = []string{
	"msp_name", "msp_id", "tenant_name", "tenant_id",
	"mitre_classifications",
	"recorded_device_info",
	"file_status", "sandbox_status",
}
