package engine

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/pelden/lingobridge/internal/history"
)

// Gemini translates through the Google Gemini API with a structured
// response schema, so the model is constrained to the expected JSON shape.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini engine for the given API key and model.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Name() string { return "gemini" }

var breakdownSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"original":        {Type: genai.TypeString},
			"sourceTerm":      {Type: genai.TypeString},
			"translated":      {Type: genai.TypeString},
			"transliteration": {Type: genai.TypeString},
		},
		Required: []string{"original", "sourceTerm", "translated"},
	},
}

var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"sourceTransliteration": {Type: genai.TypeString},
		"targetText":            {Type: genai.TypeString},
		"targetTransliteration": {Type: genai.TypeString},
		"breakdown":             breakdownSchema,
	},
	Required: []string{"sourceTransliteration", "targetText", "targetTransliteration", "breakdown"},
}

func (g *Gemini) Translate(ctx context.Context, req Request) (*history.TranslationResult, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(buildPrompt(req)),
		&genai.GenerateContentConfig{
			Temperature:      genai.Ptr[float32](0.1),
			TopP:             genai.Ptr[float32](0.95),
			TopK:             genai.Ptr[float32](40),
			ThinkingConfig:   &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](0)},
			ResponseMIMEType: "application/json",
			ResponseSchema:   responseSchema,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("gemini returned an empty response")
	}
	return parseResult(text, req)
}
