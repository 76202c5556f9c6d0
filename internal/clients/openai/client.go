package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	types "github.com/lumenlms/tutor-backend/internal/domain"
	"github.com/lumenlms/tutor-backend/internal/pkg/httpx"
	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
)

// ChatRequest is the typed shape of one tutoring-chat call: the sanitized
// user message plus bounded history and session metadata.
type ChatRequest struct {
	Message      string
	History      []types.ConversationTurn
	SystemPrompt string
	CourseID     string
	UserID       string
	Metadata     map[string]string
}

// ChatReply is the validated response. SpeechVariant, when present, is a
// spoken-friendly rendition of Reply used for synthesis.
type ChatReply struct {
	Reply         string `json:"reply"`
	SpeechVariant string `json:"speech_variant,omitempty"`
}

// Synthesis carries synthesized speech audio. EstimatedDuration is derived
// from the text when the provider does not report one; it drives the text
// reveal pacing.
type Synthesis struct {
	Audio             []byte
	MimeType          string
	EstimatedDuration time.Duration
}

// Client is the tutoring AI provider used by the session controller.
type Client interface {
	TutorReply(ctx context.Context, req ChatRequest) (*ChatReply, error)
	Synthesize(ctx context.Context, text string, voice string) (*Synthesis, error)
}

type client struct {
	log      *logger.Logger
	baseURL  string
	apiKey   string
	model    string
	ttsModel string
	ttsVoice string

	httpClient *http.Client
	maxRetries int
}

func NewClient(log *logger.Logger) (Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if model == "" {
		model = "gpt-4o-mini"
	}
	ttsModel := strings.TrimSpace(os.Getenv("OPENAI_TTS_MODEL"))
	if ttsModel == "" {
		ttsModel = "tts-1"
	}
	ttsVoice := strings.TrimSpace(os.Getenv("OPENAI_TTS_VOICE"))
	if ttsVoice == "" {
		ttsVoice = "alloy"
	}
	return &client{
		log:        log.With("service", "openai.Client"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		ttsModel:   ttsModel,
		ttsVoice:   ttsVoice,
		httpClient: &http.Client{Timeout: 90 * time.Second},
		maxRetries: 2,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *client) TutorReply(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	msgs := make([]chatMessage, 0, len(req.History)+2)
	system := strings.TrimSpace(req.SystemPrompt)
	if system == "" {
		system = "You are a friendly, encouraging course tutor. Keep answers short and conversational."
	}
	if len(req.Metadata) > 0 {
		var sb strings.Builder
		sb.WriteString(system)
		sb.WriteString("\nSession context:")
		for k, v := range req.Metadata {
			fmt.Fprintf(&sb, " %s=%s;", k, v)
		}
		system = sb.String()
	}
	msgs = append(msgs, chatMessage{Role: "system", Content: system})
	for _, t := range req.History {
		role := t.Role
		if role != types.RoleUser && role != types.RoleAssistant {
			continue
		}
		msgs = append(msgs, chatMessage{Role: role, Content: t.Content})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Message})

	body := map[string]any{
		"model":    c.model,
		"messages": msgs,
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "tutor_reply",
				"strict": true,
				"schema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"reply":          map[string]any{"type": "string"},
						"speech_variant": map[string]any{"type": "string"},
					},
					"required":             []string{"reply", "speech_variant"},
					"additionalProperties": false,
				},
			},
		},
	}

	raw, err := c.postJSON(ctx, "/chat/completions", body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("chat response decode: %w", err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("chat response empty")
	}

	var out ChatReply
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &out); err != nil {
		// Some models occasionally ignore the schema; fall back to plain text.
		out = ChatReply{Reply: strings.TrimSpace(parsed.Choices[0].Message.Content)}
	}
	if strings.TrimSpace(out.Reply) == "" {
		return nil, fmt.Errorf("chat reply empty")
	}
	return &out, nil
}

func (c *client) Synthesize(ctx context.Context, text string, voice string) (*Synthesis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty synthesis text")
	}
	if strings.TrimSpace(voice) == "" {
		voice = c.ttsVoice
	}
	body := map[string]any{
		"model":           c.ttsModel,
		"input":           text,
		"voice":           voice,
		"response_format": "mp3",
	}
	raw, err := c.postJSON(ctx, "/audio/speech", body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("synthesis returned no audio")
	}
	return &Synthesis{
		Audio:             raw,
		MimeType:          "audio/mpeg",
		EstimatedDuration: EstimateSpeechDuration(text),
	}, nil
}

// EstimateSpeechDuration approximates spoken length at a conversational
// cadence of ~2.5 words per second.
func EstimateSpeechDuration(text string) time.Duration {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return time.Duration(float64(words)/2.5*1000) * time.Millisecond
}

func (c *client) postJSON(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			raw, readErr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if readErr != nil {
				lastErr = readErr
			} else if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return raw, nil
			} else {
				lastErr = fmt.Errorf("openai %s: status %d: %s", path, resp.StatusCode, truncate(string(raw), 300))
				if !httpx.IsRetryableHTTPStatus(resp.StatusCode) {
					return nil, lastErr
				}
				backoff = httpx.RetryAfterDuration(resp, backoff, 30*time.Second)
			}
		}
		if attempt == c.maxRetries {
			break
		}
		c.log.Warn("openai call failed, retrying", "path", path, "attempt", attempt+1, "error", lastErr)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(httpx.JitterSleep(backoff)):
		}
		backoff *= 2
	}
	return nil, lastErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
