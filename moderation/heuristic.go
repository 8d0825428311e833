package moderation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// bannedWords are matched as case-insensitive substrings.
var bannedWords = []string{
	"spam", "scam", "fake", "hate", "violence", "harassment",
	"inappropriate", "offensive", "abusive", "threat", "dangerous",
}

const (
	capsRatioLimit     = 0.7
	capsMinLength      = 10
	repetitionLimit    = 3
	repetitionMinWords = 5
)

// ClassifyHeuristic classifies content using the local rule set. It is the
// fallback when the AI classifier is unavailable or the daily quota is spent,
// and it never fails: every input yields a verdict.
func ClassifyHeuristic(content string) Verdict {
	lower := strings.ToLower(content)
	for _, word := range bannedWords {
		if strings.Contains(lower, word) {
			return Verdict{
				Status:     StatusRejected,
				Reason:     fmt.Sprintf("Content contains potentially inappropriate language: %s", word),
				Confidence: 0.8,
			}
		}
	}

	if length := utf8.RuneCountInString(content); length > 0 {
		upper := 0
		for _, r := range content {
			if unicode.IsUpper(r) {
				upper++
			}
		}
		if float64(upper)/float64(length) > capsRatioLimit && length > capsMinLength {
			return Verdict{
				Status:     StatusRejected,
				Reason:     "Content appears to be spam (excessive capitalization)",
				Confidence: 0.6,
			}
		}
	}

	// Tokens are produced by a plain split on single spaces and counted as-is,
	// without normalization.
	words := strings.Split(content, " ")
	counts := make(map[string]int, len(words))
	maxRepetition := 0
	for _, w := range words {
		counts[w]++
		if counts[w] > maxRepetition {
			maxRepetition = counts[w]
		}
	}
	if maxRepetition > repetitionLimit && len(words) > repetitionMinWords {
		return Verdict{
			Status:     StatusRejected,
			Reason:     "Content appears to be spam (excessive word repetition)",
			Confidence: 0.7,
		}
	}

	return Verdict{
		Status:     StatusApproved,
		Reason:     "Content passed basic moderation rules",
		Confidence: 0.9,
	}
}
