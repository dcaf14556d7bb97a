package services

import (
	"context"
	"fmt"
	"iter"
	"os"

	"google.golang.org/genai"
)

// ImageCaptioner turns a stored image into a natural-language description.
type ImageCaptioner interface {
	Describe(ctx context.Context, imagePath string) (string, error)
}

// AnswerStreamer produces a lazy, finite, non-restartable sequence of text
// fragments for a grounded prompt. An error terminates the sequence; the
// fragments yielded before it remain valid.
type AnswerStreamer interface {
	Stream(ctx context.Context, systemPrompt, userPrompt string) iter.Seq2[string, error]
}

const captionPrompt = "Describe this image in detail. If it is a diagram or chart, " +
	"explain its components, the relationships between them, and the process it illustrates."

// GeminiService implements both collaborators on a single shared Gemini
// client: vision captioning for retrieved images and streaming generation
// for the final answer.
type GeminiService struct {
	client          *genai.Client
	captionModel    string
	answerModel     string
	temperature     float32
	maxOutputTokens int32
}

func NewGeminiService(client *genai.Client, captionModel, answerModel string, temperature float64, maxOutputTokens int) *GeminiService {
	return &GeminiService{
		client:          client,
		captionModel:    captionModel,
		answerModel:     answerModel,
		temperature:     float32(temperature),
		maxOutputTokens: int32(maxOutputTokens),
	}
}

// Describe sends the image inline to the vision model and returns its
// description. One synchronous call per image.
func (g *GeminiService) Describe(ctx context.Context, imagePath string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", &CollaboratorError{Op: "caption", Err: fmt.Errorf("read image %s: %w", imagePath, err)}
	}

	content := &genai.Content{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{Text: captionPrompt},
			{InlineData: &genai.Blob{MIMEType: "image/png", Data: data}},
		},
	}
	result, err := g.client.Models.GenerateContent(ctx, g.captionModel, []*genai.Content{content}, nil)
	if err != nil {
		return "", &CollaboratorError{Op: "caption", Err: err}
	}

	text := result.Text()
	if text == "" {
		return "", &CollaboratorError{Op: "caption", Err: fmt.Errorf("vision model returned no description")}
	}
	return text, nil
}

// Stream forwards each generated fragment as soon as it arrives. The caller
// may stop iterating at any point; the upstream call is not guaranteed to
// abort server-side.
func (g *GeminiService) Stream(ctx context.Context, systemPrompt, userPrompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		config := &genai.GenerateContentConfig{
			Temperature:     genai.Ptr(g.temperature),
			MaxOutputTokens: g.maxOutputTokens,
		}
		if contents := genai.Text(systemPrompt); len(contents) > 0 {
			config.SystemInstruction = contents[0]
		}

		for result, err := range g.client.Models.GenerateContentStream(ctx, g.answerModel, genai.Text(userPrompt), config) {
			if err != nil {
				yield("", &CollaboratorError{Op: "generate", Err: err})
				return
			}
			if text := result.Text(); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}
