package adapters

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/reelscript/reelscript/internal/breaker"
	"github.com/reelscript/reelscript/internal/model"
)

// GenerationRequest carries everything the prompt needs.
type GenerationRequest struct {
	Idea       string
	Tone       string
	Intensity  string
	HookOnly   bool
	Mode       string
	Transcript string

	SceneSummaries []string
	VisualCues     []string

	// Prior-context partitions, both optional.
	SameIdeaSummaries []string
	OtherIdeaBodies   []string

	Memory *model.UserMemory

	FramePaths []string
}

// GenerationResult is a produced script plus attribution.
type GenerationResult struct {
	ScriptText string
	Generator  string
	DurationMs int64
}

// Generator produces scripts and structured analyses through the OpenAI
// API. Script calls ride the generation circuit, analysis calls the
// analysis circuit.
type Generator struct {
	client  *openai.Client
	model   string
	genBrk  *breaker.Breaker
	anBrk   *breaker.Breaker
	timeout time.Duration
	log     zerolog.Logger
}

func NewGenerator(apiKey, modelName string, genBrk, anBrk *breaker.Breaker, timeout time.Duration, log zerolog.Logger) *Generator {
	return &Generator{
		client:  openai.NewClient(apiKey),
		model:   modelName,
		genBrk:  genBrk,
		anBrk:   anBrk,
		timeout: timeout,
		log:     log,
	}
}

const systemPrompt = `You are a short-form video scriptwriter. Produce a spoken script in exactly this layout:

[HOOK]
<one or two attention-grabbing lines>

[BODY]
<the main content>

[CTA]
<one closing call to action>

Write natural spoken language. No hashtags, no emoji, no camera directions.`

// GenerateMultimodal runs the one-shot path: frames plus transcript in a
// single call.
func (g *Generator) GenerateMultimodal(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: BuildPrompt(req)},
	}
	for _, fp := range req.FramePaths {
		dataURL, err := encodeFrame(fp)
		if err != nil {
			g.log.Warn().Err(err).Str("frame", fp).Msg("skipping unreadable frame")
			continue
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL,
				Detail: openai.ImageURLDetailLow,
			},
		})
	}
	return g.complete(ctx, g.genBrk, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, MultiContent: parts},
	})
}

// GenerateTextOnly runs the cheap path against a cached analysis.
func (g *Generator) GenerateTextOnly(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	return g.complete(ctx, g.genBrk, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(req)},
	})
}

func (g *Generator) complete(ctx context.Context, brk *breaker.Breaker, msgs []openai.ChatCompletionMessage) (*GenerationResult, error) {
	var out *GenerationResult
	err := brk.Execute(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		start := time.Now()
		resp, err := g.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:    g.model,
			Messages: msgs,
		})
		if err != nil {
			return classifyOpenAIError(CircuitGeneration, err)
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return &model.UpstreamError{Service: CircuitGeneration, Permanent: false,
				Cause: fmt.Errorf("empty completion")}
		}
		out = &GenerationResult{
			ScriptText: strings.TrimSpace(resp.Choices[0].Message.Content),
			Generator:  g.model,
			DurationMs: time.Since(start).Milliseconds(),
		}
		return nil
	})
	return out, err
}

// Transcribe runs speech-to-text over the extracted audio.
func (g *Generator) Transcribe(ctx context.Context, audioPath string) (string, error) {
	var transcript string
	err := g.anBrk.Execute(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		resp, err := g.client.CreateTranscription(callCtx, openai.AudioRequest{
			Model:    openai.Whisper1,
			FilePath: audioPath,
		})
		if err != nil {
			return classifyOpenAIError(CircuitAnalysis, err)
		}
		transcript = strings.TrimSpace(resp.Text)
		return nil
	})
	return transcript, err
}

// structuredAnalysis is the JSON shape requested from the model.
type structuredAnalysis struct {
	Tone           string   `json:"tone"`
	HookType       string   `json:"hook_type"`
	Niche          string   `json:"niche"`
	ContentType    string   `json:"content_type"`
	VisualCues     []string `json:"visual_cues"`
	SceneSummaries []string `json:"scene_summaries"`
}

// AnalyzeStructured issues the explicit analysis call used to populate the
// tier-1 cache record.
func (g *Generator) AnalyzeStructured(ctx context.Context, transcript string, framePaths []string) (*model.ReelAnalysis, error) {
	prompt := "Analyze this short-form video. Return a JSON object with keys: " +
		`"tone", "hook_type", "niche", "content_type", "visual_cues" (array of strings), "scene_summaries" (array of strings).`
	if transcript != "" {
		prompt += "\n\nTranscript:\n" + transcript
	}
	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: prompt}}
	for _, fp := range framePaths {
		dataURL, err := encodeFrame(fp)
		if err != nil {
			continue
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL,
				Detail: openai.ImageURLDetailLow,
			},
		})
	}

	var analysis *model.ReelAnalysis
	err := g.anBrk.Execute(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		resp, err := g.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:    g.model,
			Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, MultiContent: parts}},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			return classifyOpenAIError(CircuitAnalysis, err)
		}
		if len(resp.Choices) == 0 {
			return &model.UpstreamError{Service: CircuitAnalysis, Permanent: false,
				Cause: fmt.Errorf("empty analysis")}
		}
		var sa structuredAnalysis
		if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &sa); err != nil {
			return &model.UpstreamError{Service: CircuitAnalysis, Permanent: false,
				Cause: fmt.Errorf("unparseable analysis: %w", err)}
		}
		analysis = &model.ReelAnalysis{
			Transcript:     transcript,
			Tone:           sa.Tone,
			HookType:       sa.HookType,
			Niche:          sa.Niche,
			ContentType:    sa.ContentType,
			VisualCues:     sa.VisualCues,
			SceneSummaries: sa.SceneSummaries,
		}
		return nil
	})
	return analysis, err
}

// BuildPrompt renders the user prompt. Pure, so the prompt contract is
// testable without network.
func BuildPrompt(req GenerationRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a speaking script for a new short video based on this reference reel.\n\n")
	fmt.Fprintf(&b, "The creator's idea: %s\n", req.Idea)
	if req.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s\n", req.Tone)
	}
	switch req.Intensity {
	case "lite":
		b.WriteString("Keep it short and punchy.\n")
	case "deep":
		b.WriteString("Go in depth; it is fine to be longer and more detailed.\n")
	}
	if req.HookOnly || req.Mode == model.ModeHookOnly {
		b.WriteString("Only produce the [HOOK] section.\n")
	}
	if req.Transcript != "" {
		fmt.Fprintf(&b, "\nReference transcript:\n%s\n", req.Transcript)
	}
	if len(req.SceneSummaries) > 0 {
		fmt.Fprintf(&b, "\nReference scenes:\n- %s\n", strings.Join(req.SceneSummaries, "\n- "))
	}
	if len(req.VisualCues) > 0 {
		fmt.Fprintf(&b, "\nVisual cues: %s\n", strings.Join(req.VisualCues, ", "))
	}
	if len(req.SameIdeaSummaries) > 0 {
		b.WriteString("\nYou already wrote these openings for the same idea; do not repeat them:\n")
		for _, s := range req.SameIdeaSummaries {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	if len(req.OtherIdeaBodies) > 0 {
		b.WriteString("\nStyle reference from the creator's earlier scripts:\n")
		for _, s := range req.OtherIdeaBodies {
			fmt.Fprintf(&b, "---\n%s\n", s)
		}
	}
	if req.Memory != nil {
		if req.Memory.PreferredTone != "" && req.Tone == "" {
			fmt.Fprintf(&b, "\nThe creator usually prefers a %s tone.\n", req.Memory.PreferredTone)
		}
		if len(req.Memory.DislikedHooks) > 0 {
			fmt.Fprintf(&b, "Avoid hooks like: %s\n", strings.Join(req.Memory.DislikedHooks, " | "))
		}
	}
	return b.String()
}

func encodeFrame(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(raw), nil
}

func classifyOpenAIError(service string, err error) error {
	s := strings.ToLower(err.Error())
	permanent := strings.Contains(s, "401") || strings.Contains(s, "invalid api key") ||
		strings.Contains(s, "invalid_request_error")
	return &model.UpstreamError{Service: service, Permanent: permanent, Cause: err}
}
