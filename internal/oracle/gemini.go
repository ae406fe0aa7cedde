package oracle

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// Gemini implements Oracle on top of the Gemini API. The client reads
// its credentials from the environment (GOOGLE_API_KEY or ADC).
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGemini: create genai client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Infer(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", &Error{Op: "Gemini.Infer: generate content", Err: err}
	}

	text := resp.Text()
	if text == "" {
		return "", &Error{Op: "Gemini.Infer", Err: errors.New("empty response from model")}
	}
	return text, nil
}
