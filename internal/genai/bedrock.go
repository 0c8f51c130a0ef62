// Package genai generates personalized section content just-in-time through
// AWS Bedrock. One invocation per recipient covers every personalized
// section in the campaign, and the model is held to a strict JSON schema so
// the result maps cleanly back onto section IDs.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/ozlistings/outreach-engine/internal/domain"
)

// Generator produces section_id -> content for a recipient.
type Generator interface {
	GenerateSections(ctx context.Context, sections []domain.Section, recipientData map[string]string) (map[string]string, error)
}

// modelInvoker is the slice of the Bedrock runtime client we use.
type modelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// anthropicRequest is the Anthropic messages envelope for InvokeModel.
type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
	Temperature      float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

const systemPrompt = `You write short personalized snippets for outbound business emails.
Respond with a single JSON object and nothing else, matching exactly:
{"sections": [{"section_id": "<id>", "content": "<generated text>"}]}
Include one entry per requested section ID. No markdown, no commentary.`

// BedrockGenerator implements Generator against AWS Bedrock.
type BedrockGenerator struct {
	client    modelInvoker
	modelID   string
	maxTokens int
}

// NewBedrockGenerator creates a generator using the default AWS credential
// chain for the given region.
func NewBedrockGenerator(ctx context.Context, region, modelID string, maxTokens int) (*BedrockGenerator, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &BedrockGenerator{
		client:    bedrockruntime.NewFromConfig(cfg),
		modelID:   modelID,
		maxTokens: maxTokens,
	}, nil
}

// GenerateSections invokes the model once for the recipient and returns the
// generated text per personalized section ID. Returns an empty map when the
// campaign has no personalized sections. A section the model skipped is
// simply absent from the map; the renderer shows a placeholder for it.
func (g *BedrockGenerator) GenerateSections(ctx context.Context, sections []domain.Section, recipientData map[string]string) (map[string]string, error) {
	var personalized []domain.Section
	for _, s := range sections {
		if s.Mode == domain.ModePersonalized {
			personalized = append(personalized, s)
		}
	}
	if len(personalized) == 0 {
		return map[string]string{}, nil
	}

	req := anthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        g.maxTokens,
		System:           systemPrompt,
		Messages: []anthropicMessage{{
			Role:    "user",
			Content: []anthropicContentBlock{{Type: "text", Text: buildPrompt(sections, personalized, recipientData)}},
		}},
		Temperature: 0.7,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	out, err := g.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(g.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke model: %w", err)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("empty response from model")
	}

	return parseSections(resp.Content[0].Text)
}

// parseSections extracts the structured payload from the model's reply,
// tolerating code fences and leading prose around the JSON object.
func parseSections(text string) (map[string]string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model response")
	}

	var payload struct {
		Sections []struct {
			SectionID string `json:"section_id"`
			Content   string `json:"content"`
		} `json:"sections"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}

	result := make(map[string]string, len(payload.Sections))
	for _, s := range payload.Sections {
		if s.SectionID != "" {
			result[s.SectionID] = s.Content
		}
	}
	return result, nil
}
