package metering

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/asystentai/backend/pkg/ledger"
)

var (
	// ErrAccountBlocked is returned by Authorize when the blocking policy is
	// enabled and the account is balance-deficient from an earlier overdraft.
	ErrAccountBlocked = errors.New("metering: account blocked until balance is topped up")

	// ErrProvider wraps generation provider failures.
	ErrProvider = errors.New("metering: generation provider error")
)

// Provider is the opaque AI-generation capability the gate meters.
type Provider interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

// GenerateRequest describes a single generation call.
type GenerateRequest struct {
	Prompt string
	System string
	// History carries prior turns of the exchange, oldest first, sent
	// between the system prompt and the current prompt.
	History          []Turn
	Model            string
	MaxTokens        int
	Temperature      float64
	FrequencyPenalty float64
}

// Turn is one prior message of a multi-turn exchange.
type Turn struct {
	Role    string
	Content string
}

// GenerateResult carries the provider's output and its exact token usage.
type GenerateResult struct {
	Text           string
	TokensConsumed int64
}

// Config controls gate policy.
type Config struct {
	// BlockDeficient blocks further requests from accounts that went
	// negative on a previous settlement. Off by default: the original
	// policy is to allow the request and let the product surface payment.
	BlockDeficient bool `env:"METERING_BLOCK_DEFICIENT" envDefault:"false"`

	// GenerateTimeout bounds a single provider call.
	GenerateTimeout time.Duration `env:"METERING_GENERATE_TIMEOUT" envDefault:"120s"`
}

// Gate checks balances before generation and settles exact usage after.
type Gate struct {
	ledger   *ledger.Service
	users    ledger.UserStore
	provider Provider
	cfg      Config
	logger   *slog.Logger
}

// NewGate creates a consumption gate. Panics on nil dependencies to fail
// fast during initialization.
func NewGate(svc *ledger.Service, users ledger.UserStore, provider Provider, cfg Config, logger *slog.Logger) *Gate {
	if svc == nil {
		panic("metering: ledger service is required")
	}
	if users == nil {
		panic("metering: user store is required")
	}
	if provider == nil {
		panic("metering: generation provider is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 120 * time.Second
	}
	return &Gate{ledger: svc, users: users, provider: provider, cfg: cfg, logger: logger}
}

// Authorize checks whether the user may start a generation estimated to cost
// the given number of tokens. It never mutates the ledger.
func (g *Gate) Authorize(ctx context.Context, userID uuid.UUID, estimatedCost int64) error {
	user, err := g.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if g.cfg.BlockDeficient && user.BalanceDeficient {
		return ErrAccountBlocked
	}

	if estimatedCost > user.TokenBalance {
		return ledger.ErrInsufficientBalance
	}

	return nil
}

// Settle debits the exact usage the provider reported. Usage-based billing
// is exact after the fact: settlement proceeds even when it drives the
// balance negative, flagging the account instead of failing.
func (g *Gate) Settle(ctx context.Context, userID uuid.UUID, actualTokens int64, label string) (*ledger.Transaction, error) {
	tx, deficient, err := g.ledger.DebitOverdraft(ctx, userID, actualTokens, label)
	if err != nil {
		return nil, err
	}

	if deficient {
		g.logger.WarnContext(ctx, "settlement drove balance negative",
			slog.String("user_id", userID.String()),
			slog.Int64("tokens", actualTokens))
	}

	return tx, nil
}

// Generate runs the full metered flow: authorize with the estimate, call the
// provider with a bounded timeout, settle the exact usage. The provider call
// happens outside any ledger lock.
func (g *Gate) Generate(ctx context.Context, userID uuid.UUID, estimatedCost int64, label string, req GenerateRequest) (*GenerateResult, error) {
	if err := g.Authorize(ctx, userID, estimatedCost); err != nil {
		return nil, err
	}

	genCtx, cancel := context.WithTimeout(ctx, g.cfg.GenerateTimeout)
	defer cancel()

	result, err := g.provider.Generate(genCtx, req)
	if err != nil {
		return nil, errors.Join(ErrProvider, err)
	}

	if _, err := g.Settle(ctx, userID, result.TokensConsumed, label); err != nil {
		// Usage happened but the debit did not persist fully; the
		// reconciliation pass will recover the balance.
		g.logger.ErrorContext(ctx, "failed to settle generation usage",
			slog.String("user_id", userID.String()),
			slog.Int64("tokens", result.TokensConsumed),
			slog.Any("error", err))
		return result, err
	}

	return result, nil
}
