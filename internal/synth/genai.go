package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/rcliao/sofie/internal/identity"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.0-flash"

// GenAIOption configures a GenAI synthesizer.
type GenAIOption func(*genAIConfig)

type genAIConfig struct {
	model   string
	system  string
	baseURL string
	temp    float32
}

// WithModel sets the model name.
func WithModel(model string) GenAIOption {
	return func(c *genAIConfig) {
		if model != "" {
			c.model = model
		}
	}
}

// WithSystemInstruction sets the system instruction sent with every request.
func WithSystemInstruction(s string) GenAIOption {
	return func(c *genAIConfig) {
		c.system = s
	}
}

// WithBaseURL points the client at a different API endpoint.
func WithBaseURL(u string) GenAIOption {
	return func(c *genAIConfig) {
		c.baseURL = u
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) GenAIOption {
	return func(c *genAIConfig) {
		c.temp = t
	}
}

// GenAI synthesizes replies with the Gemini API.
type GenAI struct {
	client *genai.Client
	cfg    genAIConfig
}

// NewGenAI creates a Gemini-backed synthesizer.
func NewGenAI(ctx context.Context, apiKey string, opts ...GenAIOption) (*GenAI, error) {
	if apiKey == "" {
		return nil, errors.New("GenAI API key is required")
	}
	cfg := genAIConfig{model: DefaultModel, temp: 0.7}
	for _, opt := range opts {
		opt(&cfg)
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAI{client: client, cfg: cfg}, nil
}

// Model returns the configured model name.
func (g *GenAI) Model() string {
	return g.cfg.model
}

func (g *GenAI) Synthesize(ctx context.Context, input string, chamber int) (string, error) {
	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.cfg.temp),
	}
	if g.cfg.system != "" {
		gc.SystemInstruction = genai.NewContentFromText(g.cfg.system, genai.RoleUser)
	}

	prompt := fmt.Sprintf("[Chamber %d]\n%s", chamber, input)
	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.model, genai.Text(prompt), gc)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("GenAI returned no text")
	}
	return text, nil
}

// SystemPrompt renders an identity profile as a system instruction.
func SystemPrompt(p identity.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are SOFIE, the voice of %s (%s).\n", p.Name, p.Alias)
	fmt.Fprintf(&b, "Tone: %s.\n", p.Tone)
	if len(p.Values) > 0 {
		b.WriteString("Values:\n")
		for _, v := range p.Values {
			fmt.Fprintf(&b, "- %s\n", v)
		}
	}
	if len(p.VoicePatterns) > 0 {
		b.WriteString("Speak with phrases like:\n")
		for _, v := range p.VoicePatterns {
			fmt.Fprintf(&b, "- %s\n", v)
		}
	}
	if len(p.Forbidden) > 0 {
		b.WriteString("Never say:\n")
		for _, v := range p.Forbidden {
			fmt.Fprintf(&b, "- %s\n", v)
		}
	}
	b.WriteString("The user is studying in one of nine chambers; the chamber number prefixes each message.")
	return b.String()
}
