package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

// Gemini extracts transactions and infers sign conventions using the GenAI
// API. It implements both Extractor and SignInferrer; the two calls are
// independent and may run concurrently.
type Gemini struct {
	client *genai.Client
	model  string
	log    zerolog.Logger
}

// NewGemini creates a Gemini client. Credentials are resolved from the
// environment the same way as the rest of the GenAI SDK.
func NewGemini(ctx context.Context, model string, log zerolog.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("extraction: create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}
	return &Gemini{client: client, model: model, log: log}, nil
}

// Extract sends the text to the model and decodes the strict JSON array it
// returns into raw candidates. One attempt per invocation; retries belong
// to the caller's contract, not this layer.
func (g *Gemini) Extract(ctx context.Context, text string) ([]Candidate, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: extractionPrompt + text},
			},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: generate content: %v", ErrUnavailable, err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("%w: empty response from model", ErrUnavailable)
	}

	candidates, err := decodeCandidates(rawText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	g.log.Info().Int("count", len(candidates)).Msg("Extraction returned candidates")
	return candidates, nil
}

// InferInverted asks the model a single YES/NO question about the sample's
// sign convention. Absence of a definitive answer always resolves to false.
func (g *Gemini) InferInverted(ctx context.Context, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: signConventionPrompt + text},
			},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		g.log.Warn().Err(err).Msg("Sign convention inference failed, assuming no inversion")
		return false
	}

	answer := strings.ToUpper(strings.TrimSpace(resp.Text()))
	inverted := strings.HasPrefix(answer, "YES")

	g.log.Info().Bool("invert_signs", inverted).Msg("Sign convention inferred")
	return inverted
}

// decodeCandidates parses the model output into raw candidates. It tolerates
// a top-level {"transactions": [...]} wrapper in case the model ignores the
// array instruction.
func decodeCandidates(raw string) ([]Candidate, error) {
	clean := cleanModelJSON(raw)

	var asArray []Candidate
	if err := json.Unmarshal([]byte(clean), &asArray); err == nil {
		return asArray, nil
	}

	var asObject struct {
		Transactions []Candidate `json:"transactions"`
	}
	if err := json.Unmarshal([]byte(clean), &asObject); err != nil {
		return nil, fmt.Errorf("unmarshal model output: %v", err)
	}
	if asObject.Transactions == nil {
		return nil, fmt.Errorf("model output has no transactions array")
	}
	return asObject.Transactions, nil
}

// cleanModelJSON strips Markdown fences and surrounding junk if the model
// ignored the raw-JSON instruction.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	// If there is still junk around the JSON, keep only from the first
	// opening bracket to the last closing one.
	if start := strings.IndexAny(s, "[{"); start != -1 {
		if end := strings.LastIndexAny(s, "]}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
