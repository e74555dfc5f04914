package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultAPIURL = "https://openrouter.ai/api/v1/chat/completions"

// Email categories the classifier may return.
const (
	CategoryNeedsResponse  = "needs_response"
	CategoryActionRequired = "action_required"
	CategoryFYI            = "fyi"
	CategoryWaiting        = "waiting"
	CategoryIgnore         = "ignore"
)

type Client struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
	model      *string // Optional: if nil, uses the account default
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey: apiKey,
		apiURL: DefaultAPIURL,
		httpClient: &http.Client{
			Timeout: 300 * time.Second, // free-tier models are slow
		},
		model: nil,
	}
}

// SetModel sets a specific model to use (optional)
func (c *Client) SetModel(model string) {
	c.model = &model
}

// SetAPIURL overrides the endpoint, for tests.
func (c *Client) SetAPIURL(url string) {
	c.apiURL = url
}

// EmailData is the classifier/drafter view of one message.
type EmailData struct {
	From    string
	Subject string
	Body    string
}

// Classification is the model's verdict on an inbound email.
type Classification struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// ClassifyEmail asks the model to bucket one email into a category.
func (c *Client) ClassifyEmail(ctx context.Context, email EmailData) (*Classification, error) {
	prompt := fmt.Sprintf(`You are an email triage assistant. Classify the email below into exactly one category:
- "needs_response": the sender expects a reply from the recipient
- "action_required": the recipient must do something, but no reply is expected
- "fyi": informational, no action needed
- "waiting": the recipient is waiting on the sender, no action needed now
- "ignore": newsletters, promotions, automated notifications

Return STRICT JSON only: {"category": "...", "confidence": 0.0-1.0, "reasoning": "one sentence"}

From: %s
Subject: %s

%s`, email.From, email.Subject, email.Body)

	content, err := c.chat(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var result Classification
	if err := json.Unmarshal([]byte(c.cleanJSONResponse(content)), &result); err != nil {
		return nil, fmt.Errorf("failed to parse classification JSON: %w", err)
	}
	if result.Category == "" {
		return nil, fmt.Errorf("classification missing category")
	}
	return &result, nil
}

// GenerateReply asks the model for a reply draft. Instructions are
// optional rework feedback.
func (c *Client) GenerateReply(ctx context.Context, email EmailData, instructions string) (string, error) {
	prompt := fmt.Sprintf(`Write a concise, professional reply to the email below. Return only the reply body, no subject line, no signature placeholders.

From: %s
Subject: %s

%s`, email.From, email.Subject, email.Body)

	if instructions != "" {
		prompt += fmt.Sprintf("\n\nRevision instructions from the recipient: %s", instructions)
	}

	content, err := c.chat(ctx, prompt)
	if err != nil {
		return "", err
	}

	reply := strings.TrimSpace(content)
	if reply == "" {
		return "", fmt.Errorf("empty reply from LLM")
	}
	return reply, nil
}

// chat sends one user message and returns the first choice's content.
func (c *Client) chat(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": prompt,
			},
		},
	}
	if c.model != nil {
		reqBody["model"] = *c.model
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse API response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("no response from LLM")
	}

	return apiResp.Choices[0].Message.Content, nil
}

// cleanJSONResponse removes markdown code blocks and extra whitespace from LLM response
func (c *Client) cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)

	// Find the first { and last } to extract just the JSON object
	startIdx := strings.Index(content, "{")
	endIdx := strings.LastIndex(content, "}")

	if startIdx == -1 || endIdx == -1 || startIdx > endIdx {
		// No valid JSON found, return as is and let JSON parser fail with proper error
		return content
	}

	return strings.TrimSpace(content[startIdx : endIdx+1])
}
