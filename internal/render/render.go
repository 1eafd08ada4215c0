// Package render turns a completed job's raw result into the message the user
// sees, including tip and compose buttons for the kinds that carry them.
package render

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/yanbot/internal/message"
	"github.com/yanbot/internal/rewrite"
	"github.com/yanbot/internal/store"
	"github.com/yanbot/internal/tasks"
)

// ErrRenderFailed wraps any failure to produce content.
var ErrRenderFailed = errors.New("render failed")

// DefaultComposeURL is the Warpcast compose action used by buttons.
const DefaultComposeURL = "https://warpcast.com/~/compose"

// MaxLeaderboardTips caps the tip buttons on a leaderboard.
const MaxLeaderboardTips = 5

const suggestionsIntro = "Here are a few ideas to get you started\\. Click any button to open it directly in Warpcast\\!\n\n\\-\\-\\-\n\n"

var (
	usernamePattern = regexp.MustCompile(`Username: (\S+)`)
	numberedItem    = regexp.MustCompile(`\d+\.\s`)
)

// Renderer renders job results
type Renderer struct {
	rewriter   rewrite.Rewriter
	composeURL string
}

// New creates a renderer. An empty composeURL uses DefaultComposeURL.
func New(r rewrite.Rewriter, composeURL string) *Renderer {
	if composeURL == "" {
		composeURL = DefaultComposeURL
	}
	return &Renderer{rewriter: r, composeURL: composeURL}
}

// Render rewrites raw into prose and applies the kind's strategy.
func (r *Renderer) Render(ctx context.Context, kind tasks.Kind, raw string, user *store.User) (message.Content, error) {
	if !kind.Valid() {
		return message.Content{}, fmt.Errorf("%w: %w", ErrRenderFailed, tasks.ErrUnknownKind)
	}

	handle := ""
	if user != nil {
		handle = user.XHandle
	}

	text, err := r.rewriter.Rewrite(ctx, kind.Instruction(handle), raw)
	if err != nil {
		return message.Content{}, fmt.Errorf("%w: %s: %w", ErrRenderFailed, kind, err)
	}
	if strings.TrimSpace(text) == "" {
		return message.Content{}, fmt.Errorf("%w: %s: %w", ErrRenderFailed, kind, rewrite.ErrMalformedOutput)
	}

	switch kind.Spec().Strategy {
	case tasks.Leaderboard:
		return r.leaderboard(text, raw), nil
	case tasks.Suggestions:
		return r.suggestions(text), nil
	default:
		return message.Content{Text: message.FromMarkdown(text), Format: message.MarkdownV2}, nil
	}
}

func (r *Renderer) leaderboard(text, raw string) message.Content {
	content := message.Content{Text: message.FromMarkdown(text), Format: message.MarkdownV2}
	for _, username := range ExtractUsernames(raw, MaxLeaderboardTips) {
		content.Affordances = append(content.Affordances, message.Affordance{
			Label:     fmt.Sprintf("💸 Tip @%s 100 $DEGEN", username),
			ActionURL: r.composeLink(fmt.Sprintf("Great content! @%s 100 $DEGEN", username)),
		})
	}
	return content
}

func (r *Renderer) suggestions(text string) message.Content {
	ideas := SplitSuggestions(text)
	if len(ideas) == 0 {
		return message.Content{Text: message.FromMarkdown(text), Format: message.MarkdownV2}
	}

	var b strings.Builder
	b.WriteString(suggestionsIntro)
	content := message.Content{Format: message.MarkdownV2}
	for i, idea := range ideas {
		n := i + 1
		fmt.Fprintf(&b, "*Idea %d*\n_%s_\n\n", n, message.EscapeMarkdownV2(idea))
		content.Affordances = append(content.Affordances, message.Affordance{
			Label:     fmt.Sprintf("✍️ Use Idea %d", n),
			ActionURL: r.composeLink(idea),
		})
	}
	content.Text = strings.TrimRight(b.String(), "\n")
	return content
}

func (r *Renderer) composeLink(text string) string {
	return r.composeURL + "?text=" + url.QueryEscape(text)
}

// ExtractUsernames returns up to limit usernames matching "Username: <token>"
// in the order they appear. A leading @ on the token is dropped.
func ExtractUsernames(raw string, limit int) []string {
	var names []string
	for _, m := range usernamePattern.FindAllStringSubmatch(raw, -1) {
		if len(names) == limit {
			break
		}
		if name := strings.TrimLeft(m[1], "@"); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// SplitSuggestions splits a numbered list ("1. foo 2. bar") into its items.
// Text before the first number is discarded, as are empty items. Bold
// markers wrapping an item are removed.
func SplitSuggestions(text string) []string {
	parts := numberedItem.Split(text, -1)
	if len(parts) < 2 {
		return nil
	}
	var ideas []string
	for _, part := range parts[1:] {
		idea := strings.TrimSpace(strings.Trim(strings.TrimSpace(part), "*"))
		if idea != "" {
			ideas = append(ideas, idea)
		}
	}
	return ideas
}
