package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	colorRed    = 16711680
	colorOrange = 16753920
	colorGreen  = 65280
)

type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Fields      []DiscordField `json:"fields,omitempty"`
}

type DiscordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Discord posts embeds to a webhook. A Discord with an empty URL sends
// nothing.
type Discord struct {
	url    string
	client *http.Client
}

func NewDiscord(url string) *Discord {
	return &Discord{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

func (d *Discord) Enabled() bool { return d != nil && d.url != "" }

func (d *Discord) SendError(ctx context.Context, errorMessage string, fields ...DiscordField) error {
	return d.send(ctx, DiscordEmbed{
		Title:       "🚨 Batch failed",
		Description: errorMessage,
		Color:       colorRed,
		Fields:      fields,
	})
}

func (d *Discord) SendWarning(ctx context.Context, message string, fields ...DiscordField) error {
	return d.send(ctx, DiscordEmbed{
		Title:       "⚠️ Batch finished with errors",
		Description: message,
		Color:       colorOrange,
		Fields:      fields,
	})
}

func (d *Discord) SendSuccess(ctx context.Context, message string, fields ...DiscordField) error {
	return d.send(ctx, DiscordEmbed{
		Title:       "✅ Batch finished",
		Description: message,
		Color:       colorGreen,
		Fields:      fields,
	})
}

func (d *Discord) send(ctx context.Context, embed DiscordEmbed) error {
	if !d.Enabled() {
		return nil
	}
	payload, err := json.Marshal(DiscordMessage{Embeds: []DiscordEmbed{embed}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to send Discord notification, status code: %d", resp.StatusCode)
	}
	return nil
}
