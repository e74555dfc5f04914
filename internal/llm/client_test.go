package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCleanJSONResponse(t *testing.T) {
	client := NewClient("test-key")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain JSON",
			input:    `{"category": "needs_response"}`,
			expected: `{"category": "needs_response"}`,
		},
		{
			name:     "JSON with markdown code blocks",
			input:    "```json\n{\"category\": \"fyi\"}\n```",
			expected: `{"category": "fyi"}`,
		},
		{
			name:     "JSON with explanatory text before",
			input:    "Here is my classification:\n{\"category\": \"waiting\"}",
			expected: `{"category": "waiting"}`,
		},
		{
			name:     "JSON with text before and after",
			input:    "Output:\n{\"category\": \"ignore\"}\nDone.",
			expected: `{"category": "ignore"}`,
		},
		{
			name:     "no JSON at all",
			input:    "I cannot classify this email.",
			expected: "I cannot classify this email.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := client.cleanJSONResponse(tt.input)
			if result != tt.expected {
				t.Errorf("Expected:\n%s\n\nGot:\n%s", tt.expected, result)
			}
		})
	}
}

// chatServer fakes the completions endpoint, returning content as the
// single choice.
func chatServer(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", r.Header.Get("Authorization"))
		}
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"error":"nope"}`))
			return
		}
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestClassifyEmail(t *testing.T) {
	reply := "```json\n" + `{"category":"needs_response","confidence":0.9,"reasoning":"direct question"}` + "\n```"
	server := chatServer(t, reply, http.StatusOK)
	defer server.Close()

	client := NewClient("test-key")
	client.SetAPIURL(server.URL)

	got, err := client.ClassifyEmail(context.Background(), EmailData{
		From:    "alice@example.com",
		Subject: "Quick question",
		Body:    "Can you send the report?",
	})
	if err != nil {
		t.Fatalf("ClassifyEmail failed: %v", err)
	}
	if got.Category != CategoryNeedsResponse {
		t.Errorf("expected needs_response, got %s", got.Category)
	}
	if got.Confidence != 0.9 {
		t.Errorf("expected confidence 0.9, got %f", got.Confidence)
	}
}

func TestClassifyEmailMissingCategory(t *testing.T) {
	server := chatServer(t, `{"confidence":0.5}`, http.StatusOK)
	defer server.Close()

	client := NewClient("test-key")
	client.SetAPIURL(server.URL)

	if _, err := client.ClassifyEmail(context.Background(), EmailData{}); err == nil {
		t.Fatal("expected error for classification without category")
	}
}

func TestClassifyEmailBadJSON(t *testing.T) {
	server := chatServer(t, "sorry, I had trouble with that", http.StatusOK)
	defer server.Close()

	client := NewClient("test-key")
	client.SetAPIURL(server.URL)

	if _, err := client.ClassifyEmail(context.Background(), EmailData{}); err == nil {
		t.Fatal("expected error for unparsable classification")
	}
}

func TestGenerateReply(t *testing.T) {
	server := chatServer(t, "  Thanks, I'll send it over today.  ", http.StatusOK)
	defer server.Close()

	client := NewClient("test-key")
	client.SetAPIURL(server.URL)

	reply, err := client.GenerateReply(context.Background(), EmailData{
		From:    "alice@example.com",
		Subject: "Quick question",
		Body:    "Can you send the report?",
	}, "")
	if err != nil {
		t.Fatalf("GenerateReply failed: %v", err)
	}
	if reply != "Thanks, I'll send it over today." {
		t.Errorf("expected trimmed reply, got %q", reply)
	}
}

func TestGenerateReplyEmpty(t *testing.T) {
	server := chatServer(t, "   ", http.StatusOK)
	defer server.Close()

	client := NewClient("test-key")
	client.SetAPIURL(server.URL)

	if _, err := client.GenerateReply(context.Background(), EmailData{}, ""); err == nil {
		t.Fatal("expected error for empty reply")
	}
}

func TestChatAPIError(t *testing.T) {
	server := chatServer(t, "", http.StatusBadGateway)
	defer server.Close()

	client := NewClient("test-key")
	client.SetAPIURL(server.URL)

	if _, err := client.ClassifyEmail(context.Background(), EmailData{}); err == nil {
		t.Fatal("expected error for non-200 API response")
	}
}
