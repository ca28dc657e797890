package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/voxnote/backend/internal/models"
)

const slackSummaryRunes = 300

// SlackConfig configures the Slack Web API client.
type SlackConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SlackClient posts messages with a bot token.
type SlackClient struct {
	cfg    SlackConfig
	client *http.Client
}

// NewSlackClient creates a client.
func NewSlackClient(cfg SlackConfig) *SlackClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &SlackClient{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// PostMessage calls chat.postMessage. Slack reports failures in the body with ok=false.
func (c *SlackClient) PostMessage(ctx context.Context, token, channel, text string) error {
	raw, err := json.Marshal(map[string]any{
		"channel":      channel,
		"text":         text,
		"mrkdwn":       true,
		"unfurl_links": false,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat.postMessage", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack http %d", resp.StatusCode)
	}
	var sr slackResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return fmt.Errorf("slack decode: %w", err)
	}
	if !sr.OK {
		return fmt.Errorf("slack: %s", sr.Error)
	}
	return nil
}

// SlackMessage renders the notification text: title, a short summary and links.
func SlackMessage(doc Document, links []Link) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", doc.Title)
	if s := summary(doc.Content, slackSummaryRunes); s != "" {
		b.WriteString(s)
		b.WriteString("\n")
	}
	for _, l := range links {
		fmt.Fprintf(&b, "<%s|Open in %s>\n", l.URL, displayName(l.Destination))
	}
	return strings.TrimRight(b.String(), "\n")
}

// summary flattens the first Markdown blocks into plain text up to n runes.
func summary(content string, n int) string {
	var parts []string
	for _, blk := range ParseMarkdown(content) {
		if blk.Type == BlockHeading {
			continue
		}
		parts = append(parts, blk.Text)
	}
	r := []rune(strings.Join(parts, " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "…"
}

func displayName(dest string) string {
	switch dest {
	case models.StepNotion:
		return "Notion"
	default:
		return dest
	}
}

type slackNotifier struct {
	client  *SlackClient
	token   string
	channel string
}

func (n *slackNotifier) Name() string { return models.StepSlack }

func (n *slackNotifier) Notify(ctx context.Context, doc Document, links []Link) error {
	return n.client.PostMessage(ctx, n.token, n.channel, SlackMessage(doc, links))
}
