package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// SlackNotifier posts message to a Slack incoming webhook URL.
type SlackNotifier struct {
	WebhookURL string
	Channel    string
	Client     *http.Client
}

func (s *SlackNotifier) Notify(ctx context.Context, message string) error {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	payload := map[string]string{"text": message}
	if s.Channel != "" {
		payload["channel"] = s.Channel
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("slack notify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack API returned %d", resp.StatusCode)
	}
	return nil
}
