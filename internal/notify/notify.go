// Package notify delivers achievement and report messages to external
// endpoints.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"goalpace/internal/config"
)

const defaultTimeout = 5 * time.Second

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

type Message struct {
	Kind      string `json:"kind"`
	Text      string `json:"text"`
	Pool      string `json:"pool,omitempty"`
	PeriodKey string `json:"period_key,omitempty"`
	Level     int    `json:"level,omitempty"`
	EventID   int64  `json:"event_id,omitempty"`
}

// Webhook posts each message as JSON. Delivery is attempted once.
type Webhook struct {
	URL    string
	Secret string
	Client *http.Client
}

func NewWebhook(hook config.WebhookConfig) Webhook {
	timeout := defaultTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	return Webhook{
		URL:    strings.TrimSpace(hook.URL),
		Secret: hook.Secret,
		Client: &http.Client{Timeout: timeout},
	}
}

func (w Webhook) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goalpace-Event", msg.Kind)
	req.Header.Set("X-Goalpace-Delivery", uuid.NewString())
	if strings.TrimSpace(w.Secret) != "" {
		req.Header.Set("X-Goalpace-Secret", w.Secret)
	}
	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
