package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/invoice-audit/internal/domain/ai"
	"github.com/bryanwahyu/invoice-audit/internal/infra/ai/prompt"
)

const maxTokens = 1024

type Client struct {
	*openai.Client
	Model string
}

// NewClient; baseURL kosong berarti api.openai.com
func NewClient(apiKey, model, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}
}

// ReviewSeller asks the model for a JSON verdict on one seller and returns
// the validated JSON text.
func (c *Client) ReviewSeller(ctx context.Context, p ai.SellerProfile) (string, error) {
	model := c.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	user, err := prompt.GetUserPrompt(p)
	if err != nil {
		return "", err
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if isReasoningModel(model) {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return "", errors.Mark(errors.Wrap(err, "chat completion"), ai.ErrQuotaExceeded)
		}
		return "", errors.Wrap(err, "failed to create chat completion")
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ai.ErrEmptyReview
	}

	review, err := prompt.ParseReview(resp.Choices[0].Message.Content)
	if err != nil {
		return "", err
	}
	if review.GSTIN == "" {
		review.GSTIN = p.Ratio.SellerGSTIN
	}
	out, err := json.Marshal(review)
	if err != nil {
		return "", errors.Wrap(err, "encoding review")
	}
	return string(out), nil
}

func isReasoningModel(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}
