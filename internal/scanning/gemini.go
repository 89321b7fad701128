package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const geminiTimeout = 60 * time.Second

// Gemini implements TextExtractor and Structurer using Google Gemini
type Gemini struct {
	client    *genai.Client
	ocrModel  *genai.GenerativeModel
	jsonModel *genai.GenerativeModel
	logger    *slog.Logger
}

// NewGemini creates a new Gemini client. Extra options are passed to the SDK.
func NewGemini(apiKey string, modelName string, logger *slog.Logger, opts ...option.ClientOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	jsonModel := client.GenerativeModel(modelName)
	jsonModel.ResponseMIMEType = "application/json"
	// Receipts trip the default filters on product names now and then
	jsonModel.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &Gemini{
		client:    client,
		ocrModel:  client.GenerativeModel(modelName),
		jsonModel: jsonModel,
		logger:    logger,
	}, nil
}

// ExtractText transcribes the receipt image
func (g *Gemini) ExtractText(ctx context.Context, img Image) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, geminiTimeout)
	defer cancel()

	pngData, err := toPNG(img.Data, img.ContentType)
	if err != nil {
		return "", err
	}

	// genai.ImageData expects the format suffix, not the full MIME type
	resp, err := g.ocrModel.GenerateContent(ctx, genai.ImageData("png", pngData), genai.Text(ocrPrompt))
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// StructureText asks Gemini to turn receipt text into the payload contract
func (g *Gemini) StructureText(ctx context.Context, text string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, geminiTimeout)
	defer cancel()

	resp, err := g.jsonModel.GenerateContent(ctx, genai.Text(structurePrompt+text))
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	answer, err := responseText(resp)
	if err != nil {
		return nil, err
	}

	payload, err := parsePayloadJSON(answer, g.logger)
	if err != nil {
		return nil, fmt.Errorf("parsing receipt payload: %w", err)
	}
	return payload, nil
}

// responseText concatenates the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
