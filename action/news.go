package action

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agentpipe/agentpipe/core"
)

const (
	newsPageSize     = 10
	newsArticleLimit = 5
	newsContentCap   = 1000
)

const searchTermTemplate = `Extract the news search topic from this message. Respond with only the topic, nothing else.

Message: %s`

// NewsOptions configures the current-news action. BaseURL and HTTPClient are
// injectable for tests.
type NewsOptions struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewsAction fetches current news headlines for a topic extracted from the
// received message, delivers a digest through the callback and stores it as
// a conversation memory.
type NewsAction struct {
	opts NewsOptions
}

// NewNewsAction creates the current-news action.
func NewNewsAction(optFns ...func(o *NewsOptions)) *NewsAction {
	opts := NewsOptions{
		BaseURL:    "https://newsapi.org",
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &NewsAction{opts: opts}
}

func (a *NewsAction) Name() string { return "CURRENT_NEWS" }

func (a *NewsAction) Similes() []string {
	return []string{"NEWS", "GET_NEWS", "GET_CURRENT_NEWS"}
}

func (a *NewsAction) Description() string {
	return "Fetch and summarize current news for a topic in the message"
}

// Validate requires an API key; without one the action is silently skipped.
func (a *NewsAction) Validate(ctx context.Context, actx *core.AgentContext, msg *core.Memory) bool {
	return a.opts.APIKey != ""
}

func (a *NewsAction) Handle(ctx context.Context, actx *core.AgentContext, msg *core.Memory, st *core.State, opts map[string]any, cb core.Callback) error {
	term := a.extractTerm(ctx, actx, msg.Content.Text)

	digest, err := a.fetchNews(ctx, term)
	if err != nil {
		return fmt.Errorf("fetch news: %w", err)
	}

	content := core.Content{
		Text:      fmt.Sprintf("The current news for %s:\n\n%s", term, digest),
		Actions:   []string{"CURRENT_NEWS_RESPONSE"},
		InReplyTo: msg.ID,
		Source:    msg.Content.Source,
	}

	if actx.Store != nil {
		response := core.NewMemory(msg.RoomID, actx.AgentID, actx.AgentID, content)
		if err := actx.Store.CreateMemory(ctx, response, "messages"); err != nil && !core.IsDuplicate(err) {
			actx.Log().Warn("failed to store news response", "error", err)
		}
	}

	if cb == nil {
		return nil
	}
	return cb(ctx, content)
}

// extractTerm asks a small model for the topic, falling back to the raw
// message text.
func (a *NewsAction) extractTerm(ctx context.Context, actx *core.AgentContext, text string) string {
	if actx.Model == nil {
		return text
	}
	res, err := actx.Model.Invoke(ctx, core.ModelTextSmall, core.ModelParams{
		Prompt: fmt.Sprintf(searchTermTemplate, text),
		Stop:   []string{"\n"},
	})
	if err != nil || strings.TrimSpace(res.Text) == "" {
		return text
	}
	return strings.TrimSpace(res.Text)
}

type newsResponse struct {
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		Content     string `json:"content"`
	} `json:"articles"`
}

func (a *NewsAction) fetchNews(ctx context.Context, term string) (string, error) {
	endpoint := fmt.Sprintf("%s/v2/everything?q=%s&sortBy=publishedAt&pageSize=%d&apiKey=%s",
		a.opts.BaseURL, url.QueryEscape(term), newsPageSize, a.opts.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.opts.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("news api status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var nr newsResponse
	if err := json.NewDecoder(resp.Body).Decode(&nr); err != nil {
		return "", fmt.Errorf("decode news response: %w", err)
	}
	if len(nr.Articles) == 0 {
		return "No recent articles found.", nil
	}

	articles := nr.Articles
	if len(articles) > newsArticleLimit {
		articles = articles[:newsArticleLimit]
	}
	var parts []string
	for _, art := range articles {
		content := art.Content
		if len(content) > newsContentCap {
			content = content[:newsContentCap]
		}
		parts = append(parts, strings.TrimSpace(fmt.Sprintf("%s\n%s\n%s\n%s", art.Title, art.Description, art.URL, content)))
	}
	return strings.Join(parts, "\n\n"), nil
}
