// Package rewrite turns raw analysis text into user-facing prose with a
// language model.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/yanbot/internal/logging"
	"github.com/yanbot/internal/metrics"
	"github.com/yanbot/internal/retry"
)

var (
	// ErrUnavailable means the model could not be reached or refused the request.
	ErrUnavailable = errors.New("rewrite capability unavailable")
	// ErrMalformedOutput means the model answered with nothing usable.
	ErrMalformedOutput = errors.New("rewrite output malformed")
)

// Rewriter rewrites raw text following an instruction.
type Rewriter interface {
	Rewrite(ctx context.Context, instruction, raw string) (string, error)
}

// Options selects the model provider.
type Options struct {
	Provider string // googleai or openai
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// LLMRewriter calls a langchaingo model with retries on transient failures
type LLMRewriter struct {
	model   llms.Model
	name    string
	retry   retry.Config
	timeout time.Duration
}

// New creates the model client for the configured provider
func New(ctx context.Context, opts Options) (*LLMRewriter, error) {
	var (
		model llms.Model
		err   error
	)

	switch opts.Provider {
	case "googleai", "gemini", "":
		gopts := []googleai.Option{
			googleai.WithAPIKey(opts.APIKey),
		}
		if opts.Model != "" {
			gopts = append(gopts, googleai.WithDefaultModel(opts.Model))
		}
		model, err = googleai.New(ctx, gopts...)
	case "openai":
		oopts := []openai.Option{
			openai.WithToken(opts.APIKey),
		}
		if opts.Model != "" {
			oopts = append(oopts, openai.WithModel(opts.Model))
		}
		if opts.BaseURL != "" {
			oopts = append(oopts, openai.WithBaseURL(opts.BaseURL))
		}
		model, err = openai.New(oopts...)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", opts.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s model: %w", opts.Provider, err)
	}

	log.Debug().
		Str("provider", opts.Provider).
		Str("model", opts.Model).
		Msg("Rewrite model created")

	return NewWithModel(model, opts.Model, opts.Timeout), nil
}

// NewWithModel wraps an existing model.
func NewWithModel(model llms.Model, name string, timeout time.Duration) *LLMRewriter {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	cfg := retry.RewriteConfig()
	cfg.OnRetry = func(int, error) { metrics.RewriteRetries.Inc() }
	return &LLMRewriter{
		model:   model,
		name:    name,
		retry:   cfg,
		timeout: timeout,
	}
}

// BuildPrompt appends the raw data block to the instruction.
func BuildPrompt(instruction, raw string) string {
	return instruction + "\n\nHere is the raw data:\n---\n" + raw + "\n---"
}

// Rewrite sends the instruction and raw data to the model.
func (r *LLMRewriter) Rewrite(ctx context.Context, instruction, raw string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	prompt := BuildPrompt(instruction, raw)
	logger := logging.ForJob(JobIDFromContext(ctx), "rewrite")

	var text string
	result := retry.Do(ctx, r.retry, func(ctx context.Context) error {
		var callOptions []llms.CallOption
		if r.name != "" {
			callOptions = append(callOptions, llms.WithModel(r.name))
		}
		out, err := llms.GenerateFromSinglePrompt(ctx, r.model, prompt, callOptions...)
		if err != nil {
			return err
		}
		out = strings.TrimSpace(out)
		if out == "" {
			return fmt.Errorf("%w: %w", ErrMalformedOutput, retry.ErrPermanent)
		}
		text = out
		return nil
	}, logger)

	if !result.Success {
		if errors.Is(result.LastError, ErrMalformedOutput) {
			return "", ErrMalformedOutput
		}
		return "", fmt.Errorf("%w: %w", ErrUnavailable, result.LastError)
	}
	return text, nil
}

type jobIDKey struct{}

// WithJobID tags ctx so rewrite logs carry the job id.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, jobID)
}

// JobIDFromContext returns the job id set by WithJobID.
func JobIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey{}).(string)
	return id
}
