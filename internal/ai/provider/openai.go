package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/folioworks/vitae/internal/ai"
	"github.com/folioworks/vitae/internal/config"
)

// OpenAIClient talks to OpenAI-compatible chat completion APIs.
type OpenAIClient struct {
	name   string
	cfg    config.ProviderConfig
	client *http.Client
}

func NewOpenAIClient(name string, cfg config.ProviderConfig, client *http.Client) *OpenAIClient {
	return &OpenAIClient{name: name, cfg: cfg, client: client}
}

func (c *OpenAIClient) Name() string { return c.name }

func (c *OpenAIClient) Complete(ctx context.Context, req *ai.Request) (*ai.Response, error) {
	started := time.Now()

	body := openAIRequestBody{
		Model:    c.cfg.Model,
		Messages: buildMessages(req),
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal openai request: %w", err)
	}

	url := c.cfg.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	for k, v := range c.cfg.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read openai response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{
			Provider:   c.name,
			Status:     resp.StatusCode,
			Message:    string(respBody),
			RetryAfter: resp.Header.Get("Retry-After"),
		}
	}

	var oaiResp openAIResponseBody
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, fmt.Errorf("unmarshal openai response: %w", err)
	}

	var content string
	if len(oaiResp.Choices) > 0 {
		content = oaiResp.Choices[0].Message.Content
	}

	return &ai.Response{
		RequestID: req.ID,
		Provider:  c.name,
		Model:     oaiResp.Model,
		Content:   content,
		Usage:     oaiResp.Usage,
		Duration:  time.Since(started),
	}, nil
}

// buildMessages maps a request onto the chat format: structured context
// (resume data, job description) travels as a system message, the prompt
// as the user message.
func buildMessages(req *ai.Request) []chatMessage {
	var msgs []chatMessage
	if len(req.Context) > 0 {
		ctxJSON, err := json.Marshal(req.Context)
		if err == nil {
			msgs = append(msgs, chatMessage{Role: "system", Content: string(ctxJSON)})
		}
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})
	return msgs
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequestBody struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type openAIResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int         `json:"index"`
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage ai.Usage `json:"usage"`
}
