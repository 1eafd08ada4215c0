// Package tasks defines the closed set of analysis kinds a user can request.
// Each kind carries its wire name, bot command, rewrite instruction and
// rendering strategy as data.
package tasks

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned when a wire name does not match any kind.
var ErrUnknownKind = errors.New("unknown task kind")

// Kind is one of the fixed analysis categories.
type Kind int

const (
	Persona Kind = iota
	Report
	Trending
	Fans
	Cast
	Optimal

	numKinds
)

// Strategy selects how a rewritten result is turned into a message.
type Strategy int

const (
	// Plain sends the rewritten prose as-is.
	Plain Strategy = iota
	// Leaderboard attaches one tip button per username found in the raw text.
	Leaderboard
	// Suggestions splits a numbered list into ideas with one compose button each.
	Suggestions
)

// Spec is the per-kind data.
type Spec struct {
	Name        string
	Command     string
	Description string
	Instruction string
	Strategy    Strategy
}

// kindSpecs is indexed by Kind; the array length keeps it exhaustive.
var kindSpecs = [numKinds]Spec{
	Persona: {
		Name:        "persona",
		Description: "persona analysis",
		Instruction: "You are YAN, an AI wingman. Your new user, @{handle}, signed up. Rephrase this technical persona analysis into a warm, welcoming message. Highlight 2-3 key interests and their positive communication style. End with an enthusiastic call to action. Use emojis (🚀, ✨, 👋).",
		Strategy:    Plain,
	},
	Report: {
		Name:        "report",
		Command:     "report",
		Description: "weekly Farcaster report",
		Instruction: "You are YAN. Format this weekly Farcaster data into a visually appealing summary. Use Markdown and emojis (📈, 🔥, ⭐). Start with '📈 Your Weekly Farcaster Report'. Group new power followers, provide an actionable tip, and list trending topics as 'Conversation Starters'.",
		Strategy:    Plain,
	},
	Trending: {
		Name:        "trending",
		Command:     "trending",
		Description: "trending topics",
		Instruction: "You are YAN. Format this raw trending data into a clear summary. Use a '🔥 Trending on Farcaster' heading. For each topic, provide a brief summary, the 'Why Now?' context, and an 'Actionable Insight' on how to engage. Use emojis and markdown.",
		Strategy:    Plain,
	},
	Fans: {
		Name:        "fans",
		Command:     "fans",
		Description: "top fans leaderboard",
		Instruction: "You are YAN. Format this raw follower data into a '🏆 Your Top Fans' leaderboard. List the top 5-7 followers with emojis (🥇, 🥈, etc.), showing their username and follower count. End with a sentence encouraging engagement.",
		Strategy:    Leaderboard,
	},
	Cast: {
		Name:        "cast",
		Command:     "cast",
		Description: "cast ideas",
		Instruction: "You are YAN. The user wants 5 cast ideas. Format the provided raw text into a clean, numbered list. Each idea should be bolded. Do not add any extra intro or outro text, just the formatted list of 5 suggestions.",
		Strategy:    Suggestions,
	},
	Optimal: {
		Name:        "optimal",
		Command:     "optimal",
		Description: "optimal casting times",
		Instruction: "You are YAN. Format this timing data into a clear summary. Use a '⏰ Your Optimal Casting Times' heading. Create a '🎯 Sweet Spot' section for the best day/hour. List top time blocks under 'Peak Activity Windows (UTC)'. Add a friendly disclaimer about experimenting.",
		Strategy:    Plain,
	},
}

// All returns every kind in declaration order.
func All() []Kind {
	kinds := make([]Kind, 0, numKinds)
	for k := Kind(0); k < numKinds; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k >= 0 && k < numKinds
}

// Spec returns the per-kind data. It panics on an invalid kind.
func (k Kind) Spec() Spec {
	if !k.Valid() {
		panic(fmt.Sprintf("tasks: invalid kind %d", int(k)))
	}
	return kindSpecs[k]
}

// String returns the wire name.
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindSpecs[k].Name
}

// Instruction returns the rewrite prompt with the user's handle filled in.
func (k Kind) Instruction(handle string) string {
	return strings.ReplaceAll(k.Spec().Instruction, "{handle}", handle)
}

// MarshalText encodes the kind by its wire name.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a wire name.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Parse maps a wire name to its kind.
func Parse(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k := Kind(0); k < numKinds; k++ {
		if kindSpecs[k].Name == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// ForCommand maps a bot command (without the slash) to its kind. Persona has
// no command; it is only dispatched by onboarding.
func ForCommand(command string) (Kind, bool) {
	command = strings.ToLower(strings.TrimPrefix(command, "/"))
	if command == "" {
		return 0, false
	}
	for k := Kind(0); k < numKinds; k++ {
		if kindSpecs[k].Command == command {
			return k, true
		}
	}
	return 0, false
}
