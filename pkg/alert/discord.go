package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// discordMaxField is Discord's limit for an embed field value.
const discordMaxField = 1024

// Discord sends notifications via Discord webhook.
type Discord struct {
	client     *http.Client
	webhookURL string
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string, timeout time.Duration) *Discord {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Discord{
		client:     &http.Client{Timeout: timeout},
		webhookURL: webhookURL,
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, n *Notification) error {
	fields := []map[string]any{
		{"name": "Step", "value": n.Step, "inline": true},
		{"name": "Cycle", "value": n.Cycle, "inline": true},
	}
	if n.Error != "" {
		fields = append(fields, map[string]any{"name": "Error", "value": truncate(n.Error, discordMaxField)})
	}

	embed := map[string]any{
		"title":       n.Title,
		"description": n.Body,
		"color":       0xFF6600,
		"fields":      fields,
		"timestamp":   n.Time.UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(map[string]any{"embeds": []map[string]any{embed}})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	if err := postJSON(ctx, d.client, d.webhookURL, body, nil); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
