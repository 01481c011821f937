package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiOCR implements Recognizer using Google Gemini
type GeminiOCR struct {
	apiKey    string
	modelName string
}

// NewGeminiOCR creates a new GeminiOCR. A client is opened for every call.
func NewGeminiOCR(apiKey string, modelName string) (*GeminiOCR, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}
	return &GeminiOCR{apiKey: apiKey, modelName: modelName}, nil
}

// Recognize transcribes the text in a PNG image
func (g *GeminiOCR) Recognize(ctx context.Context, image []byte, mediaType, language string) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return "", fmt.Errorf("creating gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.modelName)

	// genai.ImageData expects the format suffix ("png"), not the full MIME type
	format := strings.TrimPrefix(mediaType, "image/")
	resp, err := model.GenerateContent(ctx,
		genai.ImageData(format, image),
		genai.Text(fmt.Sprintf(transcribePrompt, language)),
	)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return stripFences(text.String()), nil
}
