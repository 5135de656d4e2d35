package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

const defaultGeminiModel = "gemini-1.5-pro"

// refusalPhrases mark a model answer that must fail the stage instead of
// being published as extracted text.
var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// VertexExtractor turns an ordered image set into text with a Gemini model.
type VertexExtractor struct {
	baseClient *genai.Client
	modelName  string
}

// NewVertexExtractor creates a Gemini client for projectID in region.
func NewVertexExtractor(ctx context.Context, projectID, region, model string) (*VertexExtractor, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexExtractor: projectID and region cannot be empty")
	}
	if model == "" {
		model = defaultGeminiModel
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &VertexExtractor{baseClient: baseClient, modelName: model}, nil
}

// ExtractText sends every image, in order, followed by the user prompt.
func (v *VertexExtractor) ExtractText(ctx context.Context, images [][]byte, systemPrompt, userPrompt string) (string, error) {
	if len(images) == 0 {
		return "", fmt.Errorf("no images to extract text from")
	}

	model := v.baseClient.GenerativeModel(v.modelName)
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}

	parts := make([]genai.Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, genai.ImageData("jpeg", img))
	}
	parts = append(parts, genai.Text(userPrompt))

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}

	text := responseText(resp)
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return "", fmt.Errorf("gemini response indicates refusal: %q", phrase)
		}
	}
	return text, nil
}

func (v *VertexExtractor) Close() error {
	if v.baseClient != nil {
		return v.baseClient.Close()
	}
	return nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	var textPartsFound int
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
			textPartsFound++
		}
	}
	if textPartsFound > 1 {
		slog.Warn("Gemini response contained several text parts; they have been concatenated.", "parts", textPartsFound)
	}
	return strings.TrimSpace(b.String())
}
