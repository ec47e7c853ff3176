package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// WebhookSink posts drivers' booking responses to the booking service.
type WebhookSink struct {
	Endpoint string
	Client   *http.Client
	Logger   *slog.Logger
}

func NewWebhookSink(endpoint string, logger *slog.Logger) *WebhookSink {
	return &WebhookSink{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}, Logger: logger}
}

// RideResponse forwards payload unchanged; failures are logged only.
func (s *WebhookSink) RideResponse(ctx context.Context, driverID string, payload map[string]any) {
	if err := s.post(ctx, driverID, payload); err != nil {
		s.Logger.Error("booking webhook failed", "driver_id", driverID, "error", err)
	}
}

func (s *WebhookSink) post(ctx context.Context, driverID string, payload map[string]any) error {
	b, err := json.Marshal(map[string]any{"driverId": driverID, "response": payload})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
