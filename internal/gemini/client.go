// Package gemini implements the external generation capability using Google's
// Gemini API. It is an opaque, possibly slow collaborator: the routing engine
// never inspects it and only consumes its text output after a handler (or the
// fallback) has already been selected.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/conciergebot/concierge/internal/config"
	"github.com/conciergebot/concierge/internal/database"
)

// Client defines the generation operations the engine consumes.
type Client interface {
	// GenerateReply produces a conversational answer for the given ordered
	// message history.
	GenerateReply(ctx context.Context, messages []database.Message) (string, error)

	// SummarizeConversation synthesizes a compact digest of the given turns,
	// used by message-store compaction.
	SummarizeConversation(ctx context.Context, messages []database.Message) (string, error)
}

type sdkClient struct {
	genaiClient        *genai.Client
	log                *slog.Logger
	contentConfig      *genai.GenerateContentConfig
	summaryInstruction string
	defaultModelName   string
	maxRetries         int
	retryDelay         time.Duration
}

// NewClient creates a new Gemini client with the provided configuration.
func NewClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	baseCfg := &genai.GenerateContentConfig{
		Temperature: &cfg.Temperature,

		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}
	if cfg.SystemInstruction != "" {
		baseCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.SystemInstruction}}}
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized successfully", "model", cfg.ModelName)
	return &sdkClient{
		genaiClient:        gi,
		log:                logger,
		contentConfig:      baseCfg,
		summaryInstruction: cfg.SummaryInstruction,
		defaultModelName:   cfg.ModelName,
		maxRetries:         cfg.MaxRetries,
		retryDelay:         time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}, nil
}

func (c *sdkClient) generateContentWithRetries(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.genaiClient.Models.GenerateContent(ctx, c.defaultModelName, contents, cfg)
		if err == nil {
			return resp, nil
		}

		c.log.WarnContext(ctx, "Gemini API call failed, checking for retry",
			"attempt", i+1, "max_retries", c.maxRetries, "error", err)

		var apiErr *genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503) {
			if i < c.maxRetries {
				c.log.InfoContext(ctx, "Retrying Gemini API call", "delay", c.retryDelay, "code", apiErr.Code)
				select {
				case <-time.After(c.retryDelay):
					continue
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return nil, fmt.Errorf("gemini API call failed after %d retries (APIError code %d): %w", c.maxRetries, apiErr.Code, err)
		}

		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return nil, err
}

// GenerateReply produces a conversational answer for the given history.
func (c *sdkClient) GenerateReply(ctx context.Context, messages []database.Message) (string, error) {
	c.log.DebugContext(ctx, "Generating reply", "message_count", len(messages))

	contents := contentsFromMessages(messages)
	resp, err := c.generateContentWithRetries(ctx, contents, c.contentConfig)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini reply generation failed", "error", err)
		return "", err
	}

	return extractText(resp)
}

// SummarizeConversation synthesizes a compact digest of the given turns.
func (c *sdkClient) SummarizeConversation(ctx context.Context, messages []database.Message) (string, error) {
	c.log.DebugContext(ctx, "Summarizing conversation", "message_count", len(messages))

	var sb strings.Builder
	sb.WriteString(c.summaryInstruction)
	sb.WriteString("\n\n")
	for _, m := range messages {
		sb.WriteString(fmt.Sprintf("[%s] %s: %s\n", m.Timestamp.Format("2006-01-02 15:04"), m.Role, m.Content))
	}

	copyCfg := *c.contentConfig
	copyCfg.SystemInstruction = nil
	contents := []*genai.Content{genai.NewContentFromText(sb.String(), genai.RoleUser)}

	resp, err := c.generateContentWithRetries(ctx, contents, &copyCfg)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini summary generation failed", "error", err)
		return "", err
	}

	return extractText(resp)
}

func contentsFromMessages(messages []database.Message) []*genai.Content {
	var contents []*genai.Content
	for _, m := range messages {
		var role genai.Role = genai.RoleUser
		if m.Role == database.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		return "", fmt.Errorf("generation blocked by safety filter: %s", reasonMsg)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("generation returned no content")
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("generation returned empty text")
	}
	return text, nil
}
