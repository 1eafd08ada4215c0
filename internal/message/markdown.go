package message

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// markdownV2Special lists every character Telegram MarkdownV2 requires to be
// escaped outside of entities.
const markdownV2Special = "_*[]()~`>#+-=|{}.!\\"

// EscapeMarkdownV2 backslash-escapes text for literal display.
func EscapeMarkdownV2(text string) string {
	if !strings.ContainsAny(text, markdownV2Special) {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + 16)
	for _, r := range text {
		if strings.ContainsRune(markdownV2Special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FromMarkdown converts the common markdown a language model writes into
// MarkdownV2. Bold (**x**, __x__) becomes *x*, single-delimiter emphasis
// becomes _x_, inline code is kept, headings turn bold and "* "/"- " list
// markers become bullets. Everything else is escaped, so the result always
// parses.
func FromMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = convertLine(line)
	}
	return strings.Join(lines, "\n")
}

func convertLine(line string) string {
	trimmed := strings.TrimLeft(line, " \t")
	indent := line[:len(line)-len(trimmed)]

	if rest := strings.TrimLeft(trimmed, "#"); len(rest) < len(trimmed) && strings.HasPrefix(rest, " ") {
		heading := strings.TrimSpace(strings.NewReplacer("**", "", "__", "").Replace(rest))
		if heading == "" {
			return indent
		}
		return indent + "*" + EscapeMarkdownV2(heading) + "*"
	}
	if strings.HasPrefix(trimmed, "* ") || strings.HasPrefix(trimmed, "- ") {
		return indent + "• " + convertInline(trimmed[2:])
	}
	return indent + convertInline(trimmed)
}

func convertInline(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	for i := 0; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], "**") || strings.HasPrefix(s[i:], "__"):
			delim := s[i : i+2]
			if end := strings.Index(s[i+2:], delim); end > 0 {
				b.WriteString("*" + EscapeMarkdownV2(s[i+2:i+2+end]) + "*")
				i += end + 4
				continue
			}
		case s[i] == '`':
			if end := strings.IndexByte(s[i+1:], '`'); end > 0 {
				code := strings.ReplaceAll(s[i+1:i+1+end], `\`, `\\`)
				b.WriteString("`" + code + "`")
				i += end + 2
				continue
			}
		case s[i] == '*' || (s[i] == '_' && !wordBefore(s, i)):
			if end := strings.IndexByte(s[i+1:], s[i]); end > 0 && s[i+1] != ' ' {
				b.WriteString("_" + EscapeMarkdownV2(s[i+1:i+1+end]) + "_")
				i += end + 2
				continue
			}
		}

		r, size := utf8.DecodeRuneInString(s[i:])
		if strings.ContainsRune(markdownV2Special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
		i += size
	}
	return b.String()
}

// wordBefore reports whether s[i] follows a letter or digit, as in snake_case.
func wordBefore(s string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
