package gemini

import (
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/conciergebot/concierge/internal/database"
)

func TestContentsFromMessages(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	messages := []database.Message{
		{SessionID: "s1", Role: database.RoleUser, Content: "remind me later", Timestamp: ts},
		{SessionID: "s1", Role: database.RoleAssistant, Content: "when?", Timestamp: ts.Add(time.Second)},
		{SessionID: "s1", Role: database.RoleUser, Content: "at 6pm", Timestamp: ts.Add(2 * time.Second)},
	}

	contents := contentsFromMessages(messages)
	if len(contents) != len(messages) {
		t.Fatalf("contents = %d, want one per message (%d)", len(contents), len(messages))
	}

	wantRoles := []genai.Role{genai.RoleUser, genai.RoleModel, genai.RoleUser}
	for i, c := range contents {
		if c.Role != string(wantRoles[i]) {
			t.Errorf("contents[%d].Role = %q, want %q", i, c.Role, wantRoles[i])
		}
		if len(c.Parts) != 1 || c.Parts[0].Text != messages[i].Content {
			t.Errorf("contents[%d].Parts = %+v, want the message text %q", i, c.Parts, messages[i].Content)
		}
	}
}

func TestExtractText(t *testing.T) {
	t.Parallel()

	t.Run("Returns trimmed candidate text", func(t *testing.T) {
		t.Parallel()
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{
				{Content: &genai.Content{Parts: []*genai.Part{{Text: "  hello there \n"}}}},
			},
		}

		text, err := extractText(resp)
		if err != nil {
			t.Fatalf("extractText: %v", err)
		}
		if text != "hello there" {
			t.Errorf("text = %q, want %q", text, "hello there")
		}
	})

	t.Run("Safety block is an error", func(t *testing.T) {
		t.Parallel()
		resp := &genai.GenerateContentResponse{
			PromptFeedback: &genai.GenerateContentResponsePromptFeedback{
				BlockReason: genai.BlockedReasonSafety,
			},
		}

		if _, err := extractText(resp); err == nil {
			t.Error("expected an error for a safety-blocked prompt")
		}
	})

	t.Run("Empty response is an error", func(t *testing.T) {
		t.Parallel()
		if _, err := extractText(&genai.GenerateContentResponse{}); err == nil {
			t.Error("expected an error when no candidates are returned")
		}
	})
}
