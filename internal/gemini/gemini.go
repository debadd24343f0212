// Package gemini answers perspective questions the keyword rules cannot
// decide, using the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/deusflow/ainews/internal/cache"
	"github.com/deusflow/ainews/internal/dom"
	"github.com/deusflow/ainews/internal/news"
	"github.com/deusflow/ainews/internal/ratelimit"
	"github.com/deusflow/ainews/internal/retry"
)

const (
	DefaultModel = "gemini-1.5-flash"

	maxPromptContent = 1200
	answerTTL        = 24 * time.Hour
)

// ErrBudgetExhausted is returned once the daily call budget is spent.
var ErrBudgetExhausted = errors.New("gemini daily budget exhausted")

type generateFunc func(ctx context.Context, prompt string) (string, error)

type Client struct {
	client   *genai.Client
	generate generateFunc
	budget   *ratelimit.Budget
	answers  *cache.Cache
	policy   retry.Policy
	logger   *slog.Logger
}

// Options tune a Client. Zero values pick defaults.
type Options struct {
	Model  string
	Budget *ratelimit.Budget
	// Answers caches verdicts per title+content so repeated runs in one
	// process do not ask twice.
	Answers *cache.Cache
	Retry   retry.Policy
}

func NewClient(ctx context.Context, apiKey string, opts Options, logger *slog.Logger) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	name := opts.Model
	if name == "" {
		name = DefaultModel
	}
	model := client.GenerativeModel(name)
	model.SetTemperature(0)

	c := newClient(func(ctx context.Context, prompt string) (string, error) {
		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return "", fmt.Errorf("failed to generate content: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			return "", retry.Permanent(fmt.Errorf("no response from Gemini"))
		}
		return fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0]), nil
	}, opts, logger)
	c.client = client
	return c, nil
}

func newClient(generate generateFunc, opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Answers == nil {
		opts.Answers = cache.New(0)
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultPolicy
	}
	return &Client{
		generate: generate,
		budget:   opts.Budget,
		answers:  opts.Answers,
		policy:   opts.Retry,
		logger:   logger.With("component", "gemini"),
	}
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// ClassifyPerspective asks the model for one perspective label. An answer
// naming none of the perspectives is reported as undecided, not an error.
func (c *Client) ClassifyPerspective(ctx context.Context, title, content string) (news.Perspective, bool, error) {
	content = dom.Truncate(strings.TrimSpace(content), maxPromptContent)
	key := cache.GenerateKey("perspective", title, content)
	if v, ok := c.answers.Get(key); ok {
		return parseAnswer(v.(string))
	}

	if c.budget != nil && !c.budget.Take() {
		return "", false, ErrBudgetExhausted
	}

	prompt := "请只输出一个英文标签：product 或 technology 或 industry。\n标题:" + title + "\n内容:" + content

	var answer string
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		var err error
		answer, err = c.generate(ctx, prompt)
		return err
	})
	if err != nil {
		return "", false, err
	}

	c.answers.Set(key, answer, answerTTL)
	p, ok, _ := parseAnswer(answer)
	c.logger.Debug("perspective from model", "title", title, "answer", strings.TrimSpace(answer), "perspective", p)
	return p, ok, nil
}

func parseAnswer(answer string) (news.Perspective, bool, error) {
	p, ok := news.ParsePerspective(answer)
	return p, ok, nil
}
