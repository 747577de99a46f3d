package eligibility

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/hsa-archiver/internal/mail"
)

// DefaultModel is the Gemini model used for eligibility classification.
const DefaultModel = "gemini-2.5-flash"

// Classifier sends receipt bytes to Gemini and returns the raw
// per-transaction items. Normalization is a separate step so the output
// contract can be validated independently of the network call.
type Classifier struct {
	model string
}

// NewClassifier creates a classifier for the given model name, falling
// back to DefaultModel when empty.
func NewClassifier(model string) *Classifier {
	if model == "" {
		model = DefaultModel
	}
	return &Classifier{model: model}
}

// Classify sends the document to the model and decodes its JSON array
// output. Markdown code fences around the array are tolerated and
// stripped.
func (c *Classifier) Classify(ctx context.Context, data []byte, contentType mail.ContentType) ([]RawItem, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("Classify: create genai client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: classifyPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: string(contentType),
						Data:     data,
					},
				},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("Classify: generate content: %w", err)
	}

	rawText := resp.Text()
	if strings.TrimSpace(rawText) == "" {
		return nil, ErrEmptyResponse
	}

	return DecodeItems(rawText)
}

// DecodeItems parses the model's text output into raw items, stripping
// markdown fences if the model ignored instructions.
func DecodeItems(rawText string) ([]RawItem, error) {
	clean := cleanResponseJSON(rawText)

	var items []RawItem
	if err := json.Unmarshal([]byte(clean), &items); err != nil {
		return nil, fmt.Errorf("decoding model output: %v: %w", err, ErrMalformedResponse)
	}
	return items, nil
}

// cleanResponseJSON strips ```json fences and surrounding junk, keeping
// only the first top-level JSON array.
func cleanResponseJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
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

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
