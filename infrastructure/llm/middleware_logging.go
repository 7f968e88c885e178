package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/ahrav/go-consensus/internal/domain"
)

// loggingLLM emits one structured log line per request.
type loggingLLM struct {
	next     CoreLLM
	provider string
	logger   *slog.Logger
}

// LoggingMiddleware creates middleware that logs request outcomes. Successes
// are logged at debug level and failures at warn level. A nil logger selects
// slog.Default.
func LoggingMiddleware(provider string, logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next CoreLLM) CoreLLM {
		return &loggingLLM{next: next, provider: provider, logger: logger}
	}
}

// DoRequest executes the request and logs its outcome.
func (l *loggingLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, tokensIn, tokensOut, err := l.next.DoRequest(ctx, prompt, opts)

	attrs := []any{
		"provider", l.provider,
		"model", ExtractOptionalString(opts, "model", l.next.GetModel(), IsNonEmptyString),
		"elapsed", time.Since(start),
	}
	if err != nil {
		attrs = append(attrs, "kind", domain.ClassifyFailure(err), "error", err)
		l.logger.WarnContext(ctx, "completion failed", attrs...)
		return response, tokensIn, tokensOut, err
	}

	attrs = append(attrs, "tokens_in", tokensIn, "tokens_out", tokensOut)
	l.logger.DebugContext(ctx, "completion succeeded", attrs...)
	return response, tokensIn, tokensOut, nil
}

// GetModel returns the model name from the wrapped implementation.
func (l *loggingLLM) GetModel() string { return l.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (l *loggingLLM) SetModel(m string) { l.next.SetModel(m) }
