// Package sweep implements the withdrawal settlement pipeline: release
// funds from the exchange ledger, wait for them to settle on the ckBTC
// ledger, then sweep them to the controlling wallet.
//
// Each run terminates in exactly one of three states: ok, a hard error
// naming the step that failed, or partial when funds left the exchange
// but could not be confirmed or swept within this run.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"odinsweep/internal/cfg"
	"odinsweep/internal/exchange/odin"
	"odinsweep/internal/ledger"
	"odinsweep/internal/metrics"
	"odinsweep/internal/session"
	"odinsweep/internal/units"
)

// Exchange is the exchange-ledger side of the pipeline.
type Exchange interface {
	Balance(ctx context.Context, sess *session.Session, tokenID string) (int64, error)
	Withdraw(ctx context.Context, sess *session.Session, req odin.WithdrawRequest) error
}

// Ledger is the intermediate on-chain ledger.
type Ledger interface {
	BalanceOf(ctx context.Context, owner string) (int64, error)
	Transfer(ctx context.Context, sess *session.Session, to string, amountSats int64) (int64, error)
}

// Sessions provides authenticated signing contexts per bot.
type Sessions interface {
	Acquire(ctx context.Context, bot string) (*session.Session, error)
}

// Orchestrator runs the six-step settlement flow. It is safe to share
// across goroutines as long as no two runs target the same bot.
type Orchestrator struct {
	exchange        Exchange
	ledger          Ledger
	sessions        Sessions
	walletPrincipal string

	feeSats     int64
	settleWait  time.Duration
	readRetries int
	retryDelays []time.Duration

	displayRate float64 // BTC/USD, display only, 0 = unknown
	metrics     *metrics.Wrapper
	log         zerolog.Logger
}

func New(ex Exchange, lg Ledger, sessions Sessions, walletPrincipal string, c cfg.Settings, m *metrics.Wrapper, log zerolog.Logger) *Orchestrator {
	fee := c.TransferFeeSats
	if fee == 0 {
		fee = ledger.FeeSats
	}
	return &Orchestrator{
		exchange:        ex,
		ledger:          lg,
		sessions:        sessions,
		walletPrincipal: walletPrincipal,
		feeSats:         fee,
		settleWait:      c.SettleWait,
		readRetries:     c.ReadRetries,
		retryDelays:     []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
		metrics:         m,
		log:             log,
	}
}

// SetDisplayRate supplies a BTC/USD rate used only to decorate log
// lines. It never influences amounts.
func (o *Orchestrator) SetDisplayRate(rate float64) {
	o.displayRate = rate
}

// Run executes the pipeline for one request and always returns a
// terminal outcome.
func (o *Orchestrator) Run(ctx context.Context, req Request) Outcome {
	start := time.Now()
	out := o.run(ctx, req)
	o.metrics.ObservePipeline(time.Since(start))
	switch out.Status {
	case StatusOK:
		o.metrics.SweepOK(out.WithdrawnSats, out.TransferredSats)
	case StatusPartial:
		o.metrics.SweepPartial(out.WithdrawnSats)
	case StatusError:
		o.metrics.SweepFailed()
	}
	return out
}

func (o *Orchestrator) run(ctx context.Context, req Request) Outcome {
	log := o.log.With().Str("bot", req.Bot).Logger()

	// Step 1: authenticated session.
	sess, err := o.sessions.Acquire(ctx, req.Bot)
	if err != nil {
		return Fail(StepAuth, err.Error())
	}
	log.Info().Str("principal", sess.Principal).Msg("step 1: session ready")

	// Step 2: exchange balance, msat floored to sats. This read is the
	// upper bound for the whole run; it is never re-queried.
	balMsat, err := o.readBalance(ctx, log, "exchange balance", func() (int64, error) {
		return o.exchange.Balance(ctx, sess, "btc")
	})
	if err != nil {
		return Fail(StepBalance, err.Error())
	}
	balSats := units.MsatToSats(balMsat)
	log.Info().Str("balance", units.FmtSats(balSats, o.displayRate)).Msg("step 2: exchange balance")

	// Step 3: resolve the amount. Validations happen strictly before any
	// mutating call.
	withdrawSats := req.Sats
	if req.All {
		withdrawSats = balSats
	}
	if withdrawSats <= 0 {
		return Fail(StepResolve, "no funds to withdraw")
	}
	if withdrawSats > balSats {
		return Fail(StepResolve, fmt.Sprintf("insufficient balance, available %s", units.FmtSats(balSats, o.displayRate)))
	}
	log.Info().Str("amount", units.FmtSats(withdrawSats, o.displayRate)).Msg("step 3: amount resolved")

	// Step 4: release funds from the exchange.
	err = o.exchange.Withdraw(ctx, sess, odin.WithdrawRequest{
		Protocol:   "ckbtc",
		TokenID:    "btc",
		Address:    sess.Principal,
		AmountMsat: units.SatsToMsat(withdrawSats),
	})
	var decodeErr *odin.DecodeError
	switch {
	case err == nil:
		log.Info().Msg("step 4: withdrawal released")
	case errors.As(err, &decodeErr):
		// The canister sometimes garbles its response even when the
		// withdrawal went through. Ambiguous success: verify downstream.
		log.Warn().Err(err).Msg("step 4: withdrawal response unparseable, checking if it completed anyway")
	default:
		return Fail(StepRelease, err.Error())
	}

	// Step 5: settlement wait. The release is committed at this point, so
	// the run proceeds to a terminal state regardless of cancellation.
	log.Info().Dur("wait", o.settleWait).Msg("step 5: waiting for settlement")
	time.Sleep(o.settleWait)

	// Step 6: verify arrival on the ckBTC ledger.
	botSats, err := o.readBalance(ctx, log, "ledger balance", func() (int64, error) {
		return o.ledger.BalanceOf(ctx, sess.Principal)
	})
	if err != nil {
		return Partial(withdrawSats, fmt.Sprintf("could not confirm arrival on ledger: %v", err))
	}
	log.Info().Str("received", units.FmtSats(botSats, o.displayRate)).Msg("step 6: ledger balance")
	if botSats <= o.feeSats {
		return Partial(withdrawSats, "ckBTC balance too low to sweep; withdrawal may still be pending")
	}

	// Step 7: sweep to the wallet, minus the fixed ledger fee. Never
	// auto-retried: a repeat risks double movement.
	sweepSats := botSats - o.feeSats
	blockIdx, err := o.ledger.Transfer(ctx, sess, o.walletPrincipal, sweepSats)
	if err != nil {
		return Fail(StepTransfer, err.Error())
	}
	log.Info().
		Str("swept", units.FmtSats(sweepSats, o.displayRate)).
		Int64("block", blockIdx).
		Msg("step 7: swept to wallet")

	// Step 8: wallet balance for the success report only.
	walletSats, err := o.readBalance(ctx, log, "wallet balance", func() (int64, error) {
		return o.ledger.BalanceOf(ctx, o.walletPrincipal)
	})
	if err != nil {
		log.Warn().Err(err).Msg("wallet balance query failed after sweep")
		walletSats = 0
	}
	log.Info().Str("wallet", units.FmtSats(walletSats, o.displayRate)).Msg("withdrawal complete")

	return OK(withdrawSats, sweepSats, walletSats)
}

// readBalance runs a read-only query with bounded increasing backoff.
// Only transport-level failures are retried; a canister-reported error
// is a valid response and returns immediately.
func (o *Orchestrator) readBalance(ctx context.Context, log zerolog.Logger, label string, fn func() (int64, error)) (int64, error) {
	var lastErr error
	for attempt := 0; attempt <= o.readRetries; attempt++ {
		if attempt > 0 {
			o.metrics.ReadRetry()
			delay := o.retryDelays[min(attempt-1, len(o.retryDelays)-1)]
			log.Warn().Err(lastErr).Dur("wait", delay).Msgf("%s query failed, retrying", label)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
		v, err := fn()
		if err == nil {
			return v, nil
		}
		var apiErr *odin.APIError
		if errors.As(err, &apiErr) {
			return 0, err
		}
		lastErr = err
	}
	return 0, lastErr
}
