// Package onboarding runs the short conversation that links a chat user to
// their X handle and Farcaster id before any analysis can be requested.
//
// The flow is collecting-handle → collecting-id → awaiting-confirmation, then
// either confirmed (profile saved, persona analysis dispatched) or cancelled.
// /start at any point restarts from the beginning.
package onboarding

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yanbot/internal/message"
	"github.com/yanbot/internal/store"
	"github.com/yanbot/internal/tasks"
)

// Button payloads on the confirmation message.
const (
	ChoiceConfirm = "confirm"
	ChoiceEdit    = "edit"
)

const (
	textWelcome       = "👋 Welcome to YAN, your AI Wingman for SocialFi!\n\nTo get started, what's your X (Twitter) handle?"
	textAskHandle     = "Please send your X (Twitter) handle, for example @yan."
	textBadHandle     = "That doesn't look like an X handle. Please send just your handle, for example @yan."
	textAskID         = "Got it, @%s!\n\nNow, please enter your numeric Farcaster ID (FID)."
	textInvalidID     = "Hmm, that doesn't look like a valid Farcaster ID. It should only be numbers.\nPlease try entering your FID again."
	textConfirm       = "Awesome\\! Just to confirm:\n\n🐦 *X Handle:* `%s`\n🆔 *Farcaster ID:* `%d`\n\nIs this correct?"
	textUseButtons    = "Please use the buttons above to confirm your details, or send /cancel."
	textAnalyzing     = "Perfect! I'm now analyzing your online persona as @%s. I'll send you the summary as soon as it's ready. This usually takes about a minute. 🤖✨"
	textStartOver     = "No problem! Let's start over.\n\nWhat is your X (Twitter) handle?"
	textCancelled     = "Okay, cancelled. You can start over anytime with /start."
	textNothingCancel = "There's nothing to cancel. Send /start to set up your profile."
	textExpired       = "That confirmation has expired. Send /start to set up your profile."
	textSaveFailed    = "Sorry, I couldn't save your details right now. Please tap ✅ again in a moment."
	textStoreDown     = "Sorry, something went wrong on my side. Please try /start again in a moment."
)

// Replier sends and edits chat messages.
type Replier interface {
	SendMessage(ctx context.Context, chatID int64, content message.Content) (int64, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, content message.Content) error
}

// Profiles reads and updates user records.
type Profiles interface {
	GetOrCreateUser(ctx context.Context, id int64) (*store.User, error)
	UpdateUser(ctx context.Context, id int64, handle string, farcasterID int64) (*store.User, error)
}

// JobCreator allocates pending jobs.
type JobCreator interface {
	CreateJob(ctx context.Context, userID int64, kind tasks.Kind) (string, error)
}

// Dispatcher sends a job to the analysis agent.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind tasks.Kind, user *store.User, jobID string) error
}

// InputGuard screens text that will later be placed in a model prompt.
type InputGuard interface {
	Safe(ctx context.Context, text string) bool
}

// Machine drives onboarding conversations
type Machine struct {
	sessions   SessionStore
	profiles   Profiles
	jobs       JobCreator
	dispatcher Dispatcher
	replier    Replier
	guard      InputGuard
	now        func() time.Time
}

// NewMachine wires the state machine to its collaborators
func NewMachine(sessions SessionStore, profiles Profiles, jobs JobCreator, dispatcher Dispatcher, replier Replier) *Machine {
	return &Machine{
		sessions:   sessions,
		profiles:   profiles,
		jobs:       jobs,
		dispatcher: dispatcher,
		replier:    replier,
		now:        time.Now,
	}
}

// WithGuard screens handle candidates with g. The handle is interpolated into
// the persona rewrite prompt.
func (m *Machine) WithGuard(g InputGuard) *Machine {
	m.guard = g
	return m
}

// Start begins (or restarts) onboarding, discarding any scratch state.
func (m *Machine) Start(ctx context.Context, userID int64) error {
	if _, err := m.profiles.GetOrCreateUser(ctx, userID); err != nil {
		m.reply(ctx, userID, message.Text(textStoreDown))
		return fmt.Errorf("start onboarding: %w", err)
	}
	if err := m.put(ctx, &Session{UserID: userID, Stage: CollectingHandle}); err != nil {
		m.reply(ctx, userID, message.Text(textStoreDown))
		return err
	}
	m.reply(ctx, userID, message.Text(textWelcome))
	return nil
}

// State returns the user's current stage, or "" when no session exists.
func (m *Machine) State(ctx context.Context, userID int64) (Stage, error) {
	s, err := m.sessions.Get(ctx, userID)
	if err != nil || s == nil {
		return "", err
	}
	return s.Stage, nil
}

// HandleText feeds free text into the conversation. It returns false when the
// user has no session so the caller can treat the text elsewhere.
func (m *Machine) HandleText(ctx context.Context, userID int64, text string) (bool, error) {
	s, err := m.sessions.Get(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		return false, nil
	}

	text = strings.TrimSpace(text)
	switch s.Stage {
	case CollectingHandle:
		handle := strings.TrimSpace(strings.TrimLeft(text, "@"))
		if handle == "" {
			m.reply(ctx, userID, message.Text(textAskHandle))
			return true, nil
		}
		if m.guard != nil && !m.guard.Safe(ctx, handle) {
			m.reply(ctx, userID, message.Text(textBadHandle))
			return true, nil
		}
		s.Handle = handle
		s.Stage = CollectingID
		if err := m.put(ctx, s); err != nil {
			return true, err
		}
		m.reply(ctx, userID, message.Text(fmt.Sprintf(textAskID, handle)))

	case CollectingID:
		fid, ok := parseFarcasterID(text)
		if !ok {
			m.reply(ctx, userID, message.Text(textInvalidID))
			return true, nil
		}
		s.FarcasterID = fid
		s.Stage = AwaitingConfirmation
		if err := m.put(ctx, s); err != nil {
			return true, err
		}
		m.reply(ctx, userID, confirmation(s))

	case AwaitingConfirmation:
		m.reply(ctx, userID, message.Text(textUseButtons))
	}
	return true, nil
}

// HandleChoice processes a confirmation button press. messageID identifies
// the confirmation message so it can be edited in place.
func (m *Machine) HandleChoice(ctx context.Context, userID, messageID int64, choice string) error {
	s, err := m.sessions.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if s == nil || s.Stage != AwaitingConfirmation {
		m.edit(ctx, userID, messageID, message.Text(textExpired))
		return nil
	}

	switch choice {
	case ChoiceConfirm:
		return m.confirm(ctx, s, messageID)
	case ChoiceEdit:
		if err := m.put(ctx, &Session{UserID: userID, Stage: CollectingHandle}); err != nil {
			return err
		}
		m.edit(ctx, userID, messageID, message.Text(textStartOver))
		return nil
	default:
		log.Warn().Int64("user_id", userID).Str("choice", choice).Msg("Unknown onboarding choice")
		return nil
	}
}

func (m *Machine) confirm(ctx context.Context, s *Session, messageID int64) error {
	user, err := m.profiles.UpdateUser(ctx, s.UserID, s.Handle, s.FarcasterID)
	if err != nil {
		m.reply(ctx, s.UserID, message.Text(textSaveFailed))
		return fmt.Errorf("confirm onboarding: %w", err)
	}

	jobID, err := m.jobs.CreateJob(ctx, s.UserID, tasks.Persona)
	if err != nil {
		m.reply(ctx, s.UserID, message.Text(textSaveFailed))
		return fmt.Errorf("confirm onboarding: %w", err)
	}

	if err := m.sessions.Delete(ctx, s.UserID); err != nil {
		log.Warn().Err(err).Int64("user_id", s.UserID).Msg("Failed to clear onboarding session")
	}

	if err := m.dispatcher.Dispatch(ctx, tasks.Persona, user, jobID); err != nil {
		log.Error().Err(err).
			Int64("user_id", s.UserID).
			Str("job_id", jobID).
			Msg("Persona dispatch failed; job left pending")
	}

	m.edit(ctx, s.UserID, messageID, message.Text(fmt.Sprintf(textAnalyzing, s.Handle)))
	log.Info().Int64("user_id", s.UserID).Str("x_handle", s.Handle).Msg("Onboarding confirmed")
	return nil
}

// Cancel abandons onboarding without saving anything.
func (m *Machine) Cancel(ctx context.Context, userID int64) error {
	s, err := m.sessions.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		m.reply(ctx, userID, message.Text(textNothingCancel))
		return nil
	}
	if err := m.sessions.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	m.reply(ctx, userID, message.Text(textCancelled))
	return nil
}

func (m *Machine) put(ctx context.Context, s *Session) error {
	s.UpdatedAt = m.now()
	if err := m.sessions.Put(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (m *Machine) reply(ctx context.Context, chatID int64, content message.Content) {
	if _, err := m.replier.SendMessage(ctx, chatID, content); err != nil {
		log.Error().Err(err).Int64("user_id", chatID).Msg("Failed to send onboarding reply")
	}
}

func (m *Machine) edit(ctx context.Context, chatID, messageID int64, content message.Content) {
	if messageID == 0 {
		m.reply(ctx, chatID, content)
		return
	}
	if err := m.replier.EditMessageText(ctx, chatID, messageID, content); err != nil {
		log.Warn().Err(err).Int64("user_id", chatID).Msg("Failed to edit onboarding message, sending new one")
		m.reply(ctx, chatID, content)
	}
}

func confirmation(s *Session) message.Content {
	return message.Content{
		Text:   fmt.Sprintf(textConfirm, message.EscapeMarkdownV2(s.Handle), s.FarcasterID),
		Format: message.MarkdownV2,
		Affordances: []message.Affordance{
			{Label: "✅ Looks Good!", Choice: ChoiceConfirm},
			{Label: "✏️ Edit", Choice: ChoiceEdit},
		},
	}
}

// parseFarcasterID accepts only a positive all-digit id.
func parseFarcasterID(text string) (int64, bool) {
	if text == "" {
		return 0, false
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	fid, err := strconv.ParseInt(text, 10, 64)
	if err != nil || fid == 0 {
		return 0, false
	}
	return fid, true
}
