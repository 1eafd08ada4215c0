package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/kaptinlin/jsonrepair"

	"github.com/yanbot/internal/tasks"
)

// ErrInvalidPayload covers undecodable or schema-violating callback bodies.
var ErrInvalidPayload = errors.New("invalid callback payload")

// CallbackMetadata is the correlation block echoed back by the agent.
type CallbackMetadata struct {
	JobID    string `json:"job_id"`
	UserID   int64  `json:"user_id"`
	TaskKind string `json:"task_kind,omitempty"`
	TaskType string `json:"task_type,omitempty"`
}

// CallbackPayload is the body of POST /openserv_webhook.
type CallbackPayload struct {
	CallbackMetadata CallbackMetadata `json:"callback_metadata"`
	ResultMarkdown   string           `json:"result_markdown"`
}

// Kind resolves the echoed task kind. task_kind wins over the legacy
// task_type when both are present.
func (p *CallbackPayload) Kind() (tasks.Kind, error) {
	name := p.CallbackMetadata.TaskKind
	if name == "" {
		name = p.CallbackMetadata.TaskType
	}
	return tasks.Parse(name)
}

// decodeCallback repairs, validates and decodes a callback body.
func decodeCallback(body []byte, schema *openapi3.Schema) (*CallbackPayload, repairStats, error) {
	repaired, stats, err := repairJSON(string(body))
	if err != nil {
		return nil, stats, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(repaired), &doc); err != nil {
		return nil, stats, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if err := schema.VisitJSON(doc); err != nil {
		return nil, stats, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	var p CallbackPayload
	if err := json.Unmarshal([]byte(repaired), &p); err != nil {
		return nil, stats, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if strings.TrimSpace(p.ResultMarkdown) == "" {
		return nil, stats, fmt.Errorf("%w: result_markdown is blank", ErrInvalidPayload)
	}
	if stats.WasRepaired && !resultIntact(body, p.ResultMarkdown) {
		return nil, stats, fmt.Errorf("%w: repair altered result_markdown", ErrInvalidPayload)
	}
	if _, err := p.Kind(); err != nil {
		return nil, stats, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return &p, stats, nil
}

// repairStats records what repairJSON had to do.
type repairStats struct {
	OriginalBytes int
	RepairedBytes int
	Strategies    []string
	WasRepaired   bool
}

// ErrTruncatedBody is returned for bodies that end before their last string
// or object is closed. They are never completed: a cut-off result would use up
// the job's only completion.
var ErrTruncatedBody = errors.New("callback body is truncated")

// repairJSON fixes the malformations agents commonly produce without touching
// string content, in order:
// 1. Reject truncated bodies
// 2. Remove trailing commas outside strings
// 3. Fall back to the jsonrepair library
func repairJSON(raw string) (string, repairStats, error) {
	stats := repairStats{OriginalBytes: len(raw)}

	if json.Valid([]byte(raw)) {
		stats.RepairedBytes = len(raw)
		return raw, stats, nil
	}

	stats.WasRepaired = true
	repaired := strings.TrimSpace(raw)
	if repaired == "" {
		return "", stats, errors.New("empty body")
	}

	// Strategy 1: Refuse to guess at missing content
	if isTruncated(repaired) {
		return "", stats, ErrTruncatedBody
	}

	// Strategy 2: Remove trailing commas
	if fixed := stripTrailingCommas(repaired); fixed != repaired {
		repaired = fixed
		stats.Strategies = append(stats.Strategies, "trailing_commas")
	}

	if json.Valid([]byte(repaired)) {
		stats.RepairedBytes = len(repaired)
		return repaired, stats, nil
	}

	// Strategy 3: Use jsonrepair library as sophisticated fallback
	libraryRepaired, err := jsonrepair.JSONRepair(repaired)
	if err == nil && json.Valid([]byte(libraryRepaired)) {
		stats.Strategies = append(stats.Strategies, "jsonrepair_library")
		stats.RepairedBytes = len(libraryRepaired)
		return libraryRepaired, stats, nil
	}

	stats.RepairedBytes = len(repaired)
	return "", stats, fmt.Errorf("JSON repair failed after %d strategies", len(stats.Strategies)+1)
}

// isTruncated reports whether s ends inside a string or with an object or
// array still open. Delimiters inside strings are ignored.
func isTruncated(s string) bool {
	depth := 0
	inString, escaped := false, false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		}
	}
	return inString || depth > 0
}

// stripTrailingCommas drops commas that directly precede a closing brace or
// bracket. Commas inside strings are kept.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// resultIntact reports whether the decoded result text appears in the raw body,
// either verbatim or in its JSON-escaped form.
func resultIntact(raw []byte, result string) bool {
	if strings.Contains(string(raw), result) {
		return true
	}
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(result); err != nil {
		return false
	}
	escaped := strings.TrimSuffix(buf.String(), "\n")
	escaped = escaped[1 : len(escaped)-1]
	return strings.Contains(string(raw), escaped)
}
