// Package bot routes chat updates to onboarding and the task commands.
package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/yanbot/internal/message"
	"github.com/yanbot/internal/onboarding"
	"github.com/yanbot/internal/store"
	"github.com/yanbot/internal/tasks"
	"github.com/yanbot/internal/telegram"
)

const (
	textNotOnboarded = "I don't have your Farcaster details yet. Please run /start to get set up first."
	textOnIt         = "On it! I'm generating your %s. I'll message you here when it's ready. 🚀"
	textTryAgain     = "Sorry, I couldn't start that right now. Please try again in a moment."
	textUnknown      = "I didn't catch that. Send /help to see what I can do."
)

// Messenger is the chat transport used by the router.
type Messenger interface {
	onboarding.Replier
	AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error
}

// Users looks up user profiles.
type Users interface {
	GetOrCreateUser(ctx context.Context, id int64) (*store.User, error)
}

// Router dispatches updates by kind and command.
type Router struct {
	users      Users
	jobs       onboarding.JobCreator
	dispatcher onboarding.Dispatcher
	onboarding *onboarding.Machine
	messenger  Messenger
}

func NewRouter(users Users, jobs onboarding.JobCreator, dispatcher onboarding.Dispatcher, machine *onboarding.Machine, messenger Messenger) *Router {
	return &Router{
		users:      users,
		jobs:       jobs,
		dispatcher: dispatcher,
		onboarding: machine,
		messenger:  messenger,
	}
}

// HandleUpdate processes one update. Errors are returned for logging by the
// queue worker; the user has already been answered where possible.
func (r *Router) HandleUpdate(ctx context.Context, u telegram.Update) error {
	switch {
	case u.CallbackQuery != nil:
		return r.handleCallbackQuery(ctx, u.CallbackQuery)
	case u.Message != nil && u.Message.Text != "":
		return r.handleMessage(ctx, u.Message)
	default:
		log.Debug().Int64("update_id", u.UpdateID).Msg("Ignoring update without text or callback")
		return nil
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *telegram.Message) error {
	userID := msg.Chat.ID
	if msg.From != nil {
		userID = msg.From.ID
	}

	command, ok := parseCommand(msg.Text)
	if !ok {
		handled, err := r.onboarding.HandleText(ctx, userID, msg.Text)
		if err != nil {
			return err
		}
		if !handled {
			r.reply(ctx, userID, message.Text(textUnknown))
		}
		return nil
	}

	switch command {
	case "start":
		return r.onboarding.Start(ctx, userID)
	case "cancel":
		return r.onboarding.Cancel(ctx, userID)
	case "help":
		r.reply(ctx, userID, message.Text(HelpText()))
		return nil
	}

	kind, ok := tasks.ForCommand(command)
	if !ok {
		r.reply(ctx, userID, message.Text(textUnknown))
		return nil
	}
	return r.RunTask(ctx, userID, kind)
}

// RunTask creates a job for an onboarded user, acknowledges it and
// dispatches it to the agent.
func (r *Router) RunTask(ctx context.Context, userID int64, kind tasks.Kind) error {
	user, err := r.users.GetOrCreateUser(ctx, userID)
	if err != nil {
		r.reply(ctx, userID, message.Text(textTryAgain))
		return fmt.Errorf("run %s: %w", kind, err)
	}
	if !user.Onboarded() {
		r.reply(ctx, userID, message.Text(textNotOnboarded))
		return nil
	}

	jobID, err := r.jobs.CreateJob(ctx, userID, kind)
	if err != nil {
		r.reply(ctx, userID, message.Text(textTryAgain))
		return fmt.Errorf("run %s: %w", kind, err)
	}

	r.reply(ctx, userID, message.Text(fmt.Sprintf(textOnIt, kind.Spec().Description)))

	if err := r.dispatcher.Dispatch(ctx, kind, user, jobID); err != nil {
		log.Error().Err(err).
			Int64("user_id", userID).
			Str("job_id", jobID).
			Str("task_kind", kind.String()).
			Msg("Dispatch failed; job left pending")
	}
	return nil
}

func (r *Router) handleCallbackQuery(ctx context.Context, q *telegram.CallbackQuery) error {
	if err := r.messenger.AnswerCallbackQuery(ctx, q.ID, ""); err != nil {
		log.Warn().Err(err).Str("callback_query_id", q.ID).Msg("Failed to answer callback query")
	}

	var messageID int64
	if q.Message != nil {
		messageID = q.Message.MessageID
	}

	switch q.Data {
	case onboarding.ChoiceConfirm, onboarding.ChoiceEdit:
		return r.onboarding.HandleChoice(ctx, q.From.ID, messageID, q.Data)
	default:
		log.Debug().Str("data", q.Data).Int64("user_id", q.From.ID).Msg("Ignoring unknown callback data")
		return nil
	}
}

func (r *Router) reply(ctx context.Context, chatID int64, content message.Content) {
	if _, err := r.messenger.SendMessage(ctx, chatID, content); err != nil {
		log.Error().Err(err).Int64("user_id", chatID).Msg("Failed to send reply")
	}
}

// HelpText lists the available commands.
func HelpText() string {
	var b strings.Builder
	b.WriteString("Here's what I can do:\n\n")
	b.WriteString("/start - set up or update your profile\n")
	for _, k := range tasks.All() {
		spec := k.Spec()
		if spec.Command == "" {
			continue
		}
		fmt.Fprintf(&b, "/%s - %s\n", spec.Command, spec.Description)
	}
	b.WriteString("/cancel - stop the current setup\n")
	b.WriteString("/help - show this message")
	return b.String()
}

// parseCommand extracts "report" from "/report@yan_bot extra".
func parseCommand(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	fields := strings.Fields(text)
	cmd := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	if cmd == "" {
		return "", false
	}
	return strings.ToLower(cmd), true
}
