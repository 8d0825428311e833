package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/neilotoole/slogt"
)

func geminiResponse(text string, ratings ...safetyRating) string {
	resp := generateContentResponse{
		Candidates: []candidate{
			{
				Content:       geminiContent{Parts: []geminiPart{{Text: text}}},
				SafetyRatings: ratings,
			},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestGeminiClient_Classify(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		want       Verdict
		wantErr    error
	}{
		{
			name:   "Safe",
			status: 200,
			body:   geminiResponse("SAFE"),
			want: Verdict{
				Status:     StatusApproved,
				Reason:     "Content passed Gemini AI moderation",
				Confidence: 0.95,
			},
		},
		{
			name:   "SafeLowercaseWithWhitespace",
			status: 200,
			body:   geminiResponse("  safe\n"),
			want: Verdict{
				Status:     StatusApproved,
				Reason:     "Content passed Gemini AI moderation",
				Confidence: 0.95,
			},
		},
		{
			name:   "UnsafeWithReason",
			status: 200,
			body:   geminiResponse("UNSAFE hate speech"),
			want: Verdict{
				Status:     StatusRejected,
				Reason:     "Content flagged by Gemini: HATE SPEECH",
				Confidence: 0.9,
			},
		},
		{
			name:   "UnsafeWithoutReason",
			status: 200,
			body:   geminiResponse("UNSAFE"),
			want: Verdict{
				Status:     StatusRejected,
				Reason:     "Content flagged by Gemini: Inappropriate content detected",
				Confidence: 0.9,
			},
		},
		{
			name:   "SafetyRatingOverridesText",
			status: 200,
			body: geminiResponse("SAFE",
				safetyRating{Category: "HARM_CATEGORY_HARASSMENT", Probability: "HIGH"},
				safetyRating{Category: "HARM_CATEGORY_HATE_SPEECH", Probability: "NEGLIGIBLE"},
			),
			want: Verdict{
				Status:     StatusRejected,
				Reason:     "Content flagged by Gemini safety filters: HARM_CATEGORY_HARASSMENT",
				Confidence: 0.9,
			},
		},
		{
			name:   "MediumProbabilityBlocks",
			status: 200,
			body: geminiResponse("SAFE",
				safetyRating{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Probability: "MEDIUM"},
			),
			want: Verdict{
				Status:     StatusRejected,
				Reason:     "Content flagged by Gemini safety filters: HARM_CATEGORY_DANGEROUS_CONTENT",
				Confidence: 0.9,
			},
		},
		{
			name:    "UnparsableAnswer",
			status:  200,
			body:    geminiResponse("MAYBE, hard to tell"),
			wantErr: ErrUnavailable,
		},
		{
			name:    "EmptyCandidates",
			status:  200,
			body:    `{"candidates":[]}`,
			wantErr: ErrUnavailable,
		},
		{
			name:    "ServerError",
			status:  500,
			body:    `{"error":"internal"}`,
			wantErr: ErrUnavailable,
		},
		{
			name:    "NotJSON",
			status:  200,
			body:    `<html>rate limited</html>`,
			wantErr: ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.URL.Query().Get("key"); got != "test-key" {
					t.Errorf("Got key %q, want test-key", got)
				}
				var req generateContentRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					t.Errorf("Could not decode request: %v", err)
				}
				if len(req.SafetySettings) != 4 {
					t.Errorf("Got %d safety settings, want 4", len(req.SafetySettings))
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			cli := NewGeminiClient(srv.URL, "test-key", slogt.New(t))
			got, err := cli.Classify(context.Background(), "hello world")

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Got error %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Verdict mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGeminiClient_NoAPIKey(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	cli := NewGeminiClient(srv.URL, "", slogt.New(t))
	_, err := cli.Classify(context.Background(), "hello")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Got error %v, want ErrUnavailable", err)
	}
	if called {
		t.Error("Client issued a request without an API key")
	}
}

func TestGeminiClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	cli := NewGeminiClient(srv.URL, "test-key", slogt.New(t))
	_, err := cli.Classify(context.Background(), "hello")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Got error %v, want ErrUnavailable", err)
	}
}
