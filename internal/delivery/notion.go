package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/voxnote/backend/internal/models"
)

const (
	notionMaxChildren = 100
	notionMaxText     = 2000
)

// NotionConfig configures the Notion API client.
type NotionConfig struct {
	BaseURL       string
	Version       string
	RatePerSecond int
	Timeout       time.Duration
}

// NotionClient creates pages in a user's Notion database.
type NotionClient struct {
	cfg     NotionConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewNotionClient creates a client. Requests are throttled to RatePerSecond across all users.
func NewNotionClient(cfg NotionConfig) *NotionClient {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Version == "" {
		cfg.Version = "2022-06-28"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &NotionClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RatePerSecond),
	}
}

type notionPage struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type notionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreatePage creates a page titled doc.Title in databaseID with the content as
// blocks. Blocks beyond the first 100 are appended in further requests.
func (c *NotionClient) CreatePage(ctx context.Context, token, databaseID string, doc Document) (string, error) {
	children := NotionBlocks(ParseMarkdown(doc.Content))
	first := children
	if len(first) > notionMaxChildren {
		first = children[:notionMaxChildren]
	}
	body := map[string]any{
		"parent": map[string]string{"database_id": databaseID},
		"properties": map[string]any{
			"title": map[string]any{"title": richText(doc.Title)},
		},
		"children": first,
	}
	var page notionPage
	if err := c.do(ctx, http.MethodPost, "/pages", token, body, &page); err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	for start := notionMaxChildren; start < len(children); start += notionMaxChildren {
		end := min(start+notionMaxChildren, len(children))
		if err := c.do(ctx, http.MethodPatch, "/blocks/"+page.ID+"/children", token,
			map[string]any{"children": children[start:end]}, nil); err != nil {
			return page.URL, fmt.Errorf("append blocks: %w", err)
		}
	}
	return page.URL, nil
}

func (c *NotionClient) do(ctx context.Context, method, path, token string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Notion-Version", c.cfg.Version)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var ne notionError
		if json.Unmarshal(b, &ne) == nil && ne.Message != "" {
			return fmt.Errorf("notion http %d %s: %s", resp.StatusCode, ne.Code, ne.Message)
		}
		return fmt.Errorf("notion http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// NotionBlocks maps parsed blocks to Notion block objects.
func NotionBlocks(blocks []Block) []map[string]any {
	out := make([]map[string]any, 0, len(blocks))
	for _, b := range blocks {
		kind := string(b.Type)
		content := map[string]any{"rich_text": richText(b.Text)}
		switch b.Type {
		case BlockHeading:
			kind = fmt.Sprintf("heading_%d", b.Level)
		case BlockTodo:
			content["checked"] = b.Checked
		}
		out = append(out, map[string]any{"object": "block", "type": kind, kind: content})
	}
	return out
}

// richText splits s into text objects within Notion's per-object length limit.
func richText(s string) []map[string]any {
	r := []rune(s)
	parts := make([]map[string]any, 0, len(r)/notionMaxText+1)
	for len(r) > notionMaxText {
		parts = append(parts, textObject(string(r[:notionMaxText])))
		r = r[notionMaxText:]
	}
	return append(parts, textObject(string(r)))
}

func textObject(s string) map[string]any {
	return map[string]any{"type": "text", "text": map[string]string{"content": s}}
}

type notionDestination struct {
	client     *NotionClient
	token      string
	databaseID string
}

func (d *notionDestination) Name() string { return models.StepNotion }

func (d *notionDestination) Deliver(ctx context.Context, doc Document) (string, error) {
	return d.client.CreatePage(ctx, d.token, d.databaseID, doc)
}
