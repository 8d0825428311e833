package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnavailable signals that the AI classifier could not produce a verdict.
// Callers fall back to the heuristic rules; the error is never surfaced to
// the submitting user.
var ErrUnavailable = errors.New("moderation: classification service unavailable")

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiModel          = "gemini-2.5-flash-lite"
	defaultGeminiTimeout = 30 * time.Second
)

// GeminiClient classifies content via the Gemini generateContent API.
type GeminiClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger
}

// NewGeminiClient returns a client with defaults applied.
func NewGeminiClient(baseURL, apiKey string, logger *slog.Logger) *GeminiClient {
	u := strings.TrimSpace(baseURL)
	if u == "" {
		u = defaultGeminiBaseURL
	}
	return &GeminiClient{
		BaseURL: u,
		APIKey:  strings.TrimSpace(apiKey),
		Logger:  logger,
	}
}

type generateContentRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
	SafetySettings   []safetySetting  `json:"safetySettings"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generateContentResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content       geminiContent  `json:"content"`
	SafetyRatings []safetyRating `json:"safetyRatings"`
}

type safetyRating struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
}

var safetyCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// Classify asks Gemini whether the content is safe. It returns ErrUnavailable
// when no API key is configured, the request fails, or the response cannot be
// interpreted; the caller decides how to degrade.
func (c *GeminiClient) Classify(ctx context.Context, content string) (Verdict, error) {
	if c.APIKey == "" {
		return Verdict{}, ErrUnavailable
	}

	payload := generateContentRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: "Please analyze this content for safety and appropriateness. " +
				"Respond with only 'SAFE' if the content is appropriate, or 'UNSAFE' followed by the reason " +
				"if it contains inappropriate content. Content to analyze: " + content}}},
		},
		GenerationConfig: generationConfig{
			Temperature:     0.1,
			MaxOutputTokens: 50,
		},
	}
	for _, cat := range safetyCategories {
		payload.SafetySettings = append(payload.SafetySettings, safetySetting{
			Category:  cat,
			Threshold: "BLOCK_MEDIUM_AND_ABOVE",
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Verdict{}, fmt.Errorf("encode request: %w", err)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultGeminiTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(c.BaseURL, "/"), geminiModel, url.QueryEscape(c.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		c.logger().Warn("Gemini request failed", "error", err.Error())
		return Verdict{}, ErrUnavailable
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger().Warn("Gemini response unreadable", "error", err.Error())
		return Verdict{}, ErrUnavailable
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.logger().Warn("Gemini API failed", "status", resp.StatusCode, "response", string(respBody))
		return Verdict{}, ErrUnavailable
	}

	var parsed generateContentResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		c.logger().Warn("Gemini response undecodable", "error", err.Error())
		return Verdict{}, ErrUnavailable
	}

	return c.interpret(parsed)
}

// interpret maps a Gemini response to a verdict. Safety ratings take priority
// over the text answer: a MEDIUM or HIGH probability on any category rejects
// the content even if the model answered SAFE.
func (c *GeminiClient) interpret(resp generateContentResponse) (Verdict, error) {
	if len(resp.Candidates) == 0 {
		return Verdict{}, ErrUnavailable
	}
	cand := resp.Candidates[0]

	var flagged []string
	for _, rating := range cand.SafetyRatings {
		if rating.Probability == "MEDIUM" || rating.Probability == "HIGH" {
			flagged = append(flagged, rating.Category)
		}
	}
	if len(flagged) > 0 {
		return Verdict{
			Status:     StatusRejected,
			Reason:     "Content flagged by Gemini safety filters: " + strings.Join(flagged, ", "),
			Confidence: 0.9,
		}, nil
	}

	var text string
	if len(cand.Content.Parts) > 0 {
		text = cand.Content.Parts[0].Text
	}
	text = strings.ToUpper(strings.TrimSpace(text))

	switch {
	case strings.HasPrefix(text, "SAFE"):
		return Verdict{
			Status:     StatusApproved,
			Reason:     "Content passed Gemini AI moderation",
			Confidence: 0.95,
		}, nil
	case strings.HasPrefix(text, "UNSAFE"):
		detail := strings.TrimSpace(strings.TrimPrefix(text, "UNSAFE"))
		if detail == "" {
			detail = "Inappropriate content detected"
		}
		return Verdict{
			Status:     StatusRejected,
			Reason:     "Content flagged by Gemini: " + detail,
			Confidence: 0.9,
		}, nil
	}

	// An answer we cannot parse is not an approval.
	return Verdict{}, ErrUnavailable
}

func (c *GeminiClient) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
