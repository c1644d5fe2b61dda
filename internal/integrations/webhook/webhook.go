// Package webhook posts Discord-compatible embed payloads to an incoming
// webhook URL. Most chat tools used by event-ops crews (Discord, and
// Slack/Teams via bridge) accept this shape.
package webhook

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"
)

// Embed is a minimal embed object: title, body, accent color, footer.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

type EmbedFooter struct {
	Text string `json:"text,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Payload is the JSON body for the webhook POST.
type Payload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Post sends the payload. Returns the HTTP status code and any transport
// error; an empty URL is a silent no-op so notification wiring stays
// optional.
func Post(webhookURL string, payload Payload) (int, error) {
	if webhookURL == "" {
		return 0, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	client := &http.Client{Timeout: 8 * time.Second}
	req, err := http.NewRequest(http.MethodPost, webhookURL, bytes.NewReader(b))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// NewEmbed creates an embed stamped with the current UTC time.
func NewEmbed(title, description string, color int, footer string) Embed {
	return Embed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Footer:      &EmbedFooter{Text: footer},
	}
}
