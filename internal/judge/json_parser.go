package judge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Judges are instructed to emit raw JSON, but models still occasionally
// wrap it in code fences, leave a trailing comma, or preface it with
// prose. Parse recovers from the common failure shapes instead of burning
// a retry on each one.

// Pre-compiled patterns; compiling per parse is ~15x slower.
var (
	// Matches ```json\n{...}\n```, ```{...}```, etc., newlines optional
	codeFenceRegex = regexp.MustCompile("(?s)`{3}(?:json)?\\s*\\n?([\\s\\S]*?)\\n?`{3}")

	trailingCommaRegex     = regexp.MustCompile(`,(\s*[}\]])`)
	singleLineCommentRegex = regexp.MustCompile(`(?m)//.*$`)
	multiLineCommentRegex  = regexp.MustCompile(`(?s)/\*.*?\*/`)

	// Greedy so nested structures are captured whole
	objectRegex = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	arrayRegex  = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
)

// maxParseInput bounds parser input. Judge responses are capped at a few
// thousand tokens; anything bigger than this is not a verdict.
const maxParseInput = 1 << 20

// ParseResult reports a parse outcome without panicking on bad input
type ParseResult[T any] struct {
	Success bool
	Data    T
	Error   string
}

// Parse attempts to decode a judge response with fallback strategies:
//
//  1. Direct JSON parse
//  2. Strip code fences and retry
//  3. Fix trailing commas and comments and retry
//  4. Extract the JSON object/array from surrounding prose and retry
//
// The context string labels error messages and debug logs.
func Parse[T any](text, context string) ParseResult[T] {
	if len(text) > maxParseInput {
		return parseError[T](fmt.Sprintf("input exceeds size limit (%d > %d bytes)", len(text), maxParseInput), context)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return parseError[T]("empty input", context)
	}

	// Strategy 1: direct parse
	if result, err := tryParse[T](trimmed); err == nil {
		return ParseResult[T]{Success: true, Data: result}
	} else {
		slog.Debug("direct JSON parse failed, trying cleanup strategies",
			"error", err.Error(),
			"textPreview", truncate(text, 100),
			"context", context)
	}

	// Strategy 2: remove code fences
	withoutFences := removeCodeFences(trimmed)
	if withoutFences != trimmed {
		if result, err := tryParse[T](withoutFences); err == nil {
			return ParseResult[T]{Success: true, Data: result}
		}
	}

	// Strategy 3: fix trailing commas and strip comments
	cleaned := cleanupJSON(withoutFences)
	if result, err := tryParse[T](cleaned); err == nil {
		return ParseResult[T]{Success: true, Data: result}
	}

	// Strategy 4: extract JSON from mixed content
	if extracted := extractJSON(cleaned); extracted != "" {
		if result, err := tryParse[T](extracted); err == nil {
			return ParseResult[T]{Success: true, Data: result}
		}
	}

	return parseError[T]("all JSON parsing strategies failed", context)
}

func tryParse[T any](text string) (T, error) {
	var result T
	err := json.Unmarshal([]byte(text), &result)
	return result, err
}

// removeCodeFences strips markdown code fences wherever they appear
func removeCodeFences(text string) string {
	cleaned := codeFenceRegex.ReplaceAllString(text, "$1")

	// Single backticks wrapping the whole payload
	if strings.HasPrefix(cleaned, "`") && strings.HasSuffix(cleaned, "`") {
		cleaned = strings.TrimSuffix(strings.TrimPrefix(cleaned, "`"), "`")
	}

	return strings.TrimSpace(cleaned)
}

// cleanupJSON fixes trailing commas and strips // and /* */ comments.
// Single quotes are left alone: rewriting them would corrupt valid JSON
// containing apostrophes.
func cleanupJSON(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = trailingCommaRegex.ReplaceAllString(cleaned, "$1")
	cleaned = singleLineCommentRegex.ReplaceAllString(cleaned, "")
	cleaned = multiLineCommentRegex.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// extractJSON pulls a JSON object or array out of mixed content. The
// first-character check keeps an array from being mis-extracted as its
// first element.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) > 0 {
		switch trimmed[0] {
		case '[':
			if match := arrayRegex.FindString(text); match != "" {
				return match
			}
		case '{':
			if match := objectRegex.FindString(text); match != "" {
				return match
			}
		}
	}

	if match := objectRegex.FindString(text); match != "" {
		return match
	}
	return arrayRegex.FindString(text)
}

func parseError[T any](message, context string) ParseResult[T] {
	var zero T
	if context != "" {
		message = context + ": " + message
	}
	return ParseResult[T]{Success: false, Data: zero, Error: message}
}

// truncate shortens a string for log and error output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
