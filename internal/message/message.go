// Package message holds the transport-neutral shape of an outgoing chat message.
package message

// Format is the markup dialect of Content.Text.
type Format int

const (
	// Plain text, sent without a parse mode.
	Plain Format = iota
	// MarkdownV2 is Telegram's escaped markdown dialect.
	MarkdownV2
)

// Affordance is a clickable button. Exactly one of ActionURL or Choice is set:
// URL buttons open a link, choice buttons post Choice back to the bot.
type Affordance struct {
	Label     string
	ActionURL string
	Choice    string
}

// Content is a rendered message with optional buttons, one per row.
type Content struct {
	Text        string
	Format      Format
	Affordances []Affordance
}

// Text builds plain content without buttons.
func Text(s string) Content {
	return Content{Text: s, Format: Plain}
}
