package sweep

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odinsweep/internal/cfg"
	"odinsweep/internal/exchange/odin"
	"odinsweep/internal/session"
)

const walletPrincipal = "wallet-principal"

type fakeSessions struct {
	err error
}

func (f *fakeSessions) Acquire(ctx context.Context, bot string) (*session.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &session.Session{
		Bot:       bot,
		Principal: bot + "-principal",
		Token:     "tok",
		Secret:    "sec",
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

type fakeExchange struct {
	mu sync.Mutex

	balanceMsat  int64
	balanceErr   error
	withdrawErr  error
	panicOnBot   string
	errOnBot     string
	errForBot    error
	withdrawReqs []odin.WithdrawRequest
}

func (f *fakeExchange) Balance(ctx context.Context, sess *session.Session, tokenID string) (int64, error) {
	if f.panicOnBot != "" && sess.Bot == f.panicOnBot {
		panic("exchange adapter blew up")
	}
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	return f.balanceMsat, nil
}

func (f *fakeExchange) Withdraw(ctx context.Context, sess *session.Session, req odin.WithdrawRequest) error {
	f.mu.Lock()
	f.withdrawReqs = append(f.withdrawReqs, req)
	f.mu.Unlock()
	if f.errOnBot != "" && sess.Bot == f.errOnBot {
		return f.errForBot
	}
	return f.withdrawErr
}

func (f *fakeExchange) withdrawCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.withdrawReqs)
}

type fakeLedger struct {
	mu sync.Mutex

	botBalance    int64
	walletBalance int64
	balanceErr    error
	transferErr   error
	blockIdx      int64
	transfers     []transferCall
}

type transferCall struct {
	to     string
	amount int64
}

func (f *fakeLedger) BalanceOf(ctx context.Context, owner string) (int64, error) {
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	if owner == walletPrincipal {
		return f.walletBalance, nil
	}
	return f.botBalance, nil
}

func (f *fakeLedger) Transfer(ctx context.Context, sess *session.Session, to string, amountSats int64) (int64, error) {
	f.mu.Lock()
	f.transfers = append(f.transfers, transferCall{to: to, amount: amountSats})
	f.mu.Unlock()
	if f.transferErr != nil {
		return 0, f.transferErr
	}
	return f.blockIdx, nil
}

func (f *fakeLedger) transferCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transfers)
}

func newTestOrchestrator(ex Exchange, lg Ledger, sessions Sessions) *Orchestrator {
	o := New(ex, lg, sessions, walletPrincipal, cfg.Settings{
		SettleWait:      0, // no settlement latency in tests
		ReadRetries:     0,
		TransferFeeSats: 10,
	}, nil, zerolog.Nop())
	o.retryDelays = []time.Duration{time.Millisecond}
	return o
}

func TestRunSpecificAmount(t *testing.T) {
	ex := &fakeExchange{balanceMsat: 5_000_000} // 5000 sats
	lg := &fakeLedger{botBalance: 4990, walletBalance: 50_000, blockIdx: 7}
	o := newTestOrchestrator(ex, lg, &fakeSessions{})

	out := o.Run(context.Background(), Request{Bot: "bot-1", Sats: 3000})

	require.Equal(t, StatusOK, out.Status)
	assert.Equal(t, int64(3000), out.WithdrawnSats)
	assert.Equal(t, int64(4990-10), out.TransferredSats)
	assert.Equal(t, int64(50_000), out.WalletBalanceSats)

	require.Len(t, ex.withdrawReqs, 1)
	assert.Equal(t, int64(3_000_000), ex.withdrawReqs[0].AmountMsat, "release must be submitted in msat")
	assert.Equal(t, "ckbtc", ex.withdrawReqs[0].Protocol)
	assert.Equal(t, "bot-1-principal", ex.withdrawReqs[0].Address)

	require.Len(t, lg.transfers, 1)
	assert.Equal(t, walletPrincipal, lg.transfers[0].to)
	assert.Equal(t, int64(4980), lg.transfers[0].amount)
}

func TestRunAllUsesBalanceObservedAtStepTwo(t *testing.T) {
	ex := &fakeExchange{balanceMsat: 10_000_000} // 10000 sats
	lg := &fakeLedger{botBalance: 9990, walletBalance: 60_000}
	o := newTestOrchestrator(ex, lg, &fakeSessions{})

	out := o.Run(context.Background(), Request{Bot: "bot-1", All: true})

	require.Equal(t, StatusOK, out.Status)
	assert.Equal(t, int64(10_000), out.WithdrawnSats)
	assert.Equal(t, int64(9980), out.TransferredSats)
}

func TestRunZeroBalanceAll(t *testing.T) {
	ex := &fakeExchange{balanceMsat: 0}
	lg := &fakeLedger{}
	o := newTestOrchestrator(ex, lg, &fakeSessions{})

	out := o.Run(context.Background(), Request{Bot: "bot-1", All: true})

	require.Equal(t, StatusError, out.Status)
	assert.Equal(t, StepResolve, out.Step)
	assert.Contains(t, out.Err, "no funds")
	assert.Zero(t, ex.withdrawCalls(), "no mutating call may be issued")
	assert.Zero(t, lg.transferCalls())
}

func TestRunInsufficientBalance(t *testing.T) {
	ex := &fakeExchange{balanceMsat: 500_000} // 500 sats
	lg := &fakeLedger{}
	o := newTestOrchestrator(ex, lg, &fakeSessions{})

	out := o.Run(context.Background(), Request{Bot: "bot-1", Sats: 10_000})

	require.Equal(t, StatusError, out.Status)
	assert.Equal(t, StepResolve, out.Step)
	assert.Contains(t, out.Err, "insufficient balance")
	assert.Zero(t, ex.withdrawCalls())
	assert.Zero(t, lg.transferCalls())
}

func TestRunAuthFailure(t *testing.T) {
	ex := &fakeExchange{}
	lg := &fakeLedger{}
	o := newTestOrchestrator(ex, lg, &fakeSessions{err: &session.AuthError{Bot: "bot-1", Err: fmt.Errorf("login failed")}})

	out := o.Run(context.Background(), Request{Bot: "bot-1", All: true})

	require.Equal(t, StatusError, out.Status)
	assert.Equal(t, StepAuth, out.Step)
	assert.Zero(t, ex.withdrawCalls())
}

func TestRunDecodeErrorOnReleaseIsAmbiguousSuccess(t *testing.T) {
	ex := &fakeExchange{
		balanceMsat: 10_000_000,
		withdrawErr: &odin.DecodeError{Method: "token_withdraw", Err: fmt.Errorf("malformed candid payload")},
	}
	lg := &fakeLedger{botBalance: 9990, walletBalance: 60_000}
	o := newTestOrchestrator(ex, lg, &fakeSessions{})

	out := o.Run(context.Background(), Request{Bot: "bot-1", All: true})

	require.Equal(t, StatusOK, out.Status, "decode error must soft-continue to verification")
	assert.Equal(t, int64(10_000), out.WithdrawnSats)
	assert.Equal(t, int64(9980), out.TransferredSats)
	assert.Equal(t, 1, lg.transferCalls())
}

func TestRunStructuredErrorOnRelease(t *testing.T) {
	ex := &fakeExchange{
		balanceMsat: 10_000_000,
		withdrawErr: &odin.APIError{Method: "token_withdraw", Message: "withdrawals disabled"},
	}
	lg := &fakeLedger{botBalance: 9990}
	o := newTestOrchestrator(ex, lg, &fakeSessions{})

	out := o.Run(context.Background(), Request{Bot: "bot-1", All: true})

	require.Equal(t, StatusError, out.Status)
	assert.Equal(t, StepRelease, out.Step)
	assert.Contains(t, out.Err, "withdrawals disabled")
	assert.Zero(t, lg.transferCalls(), "sweep must never run after a rejected release")
}

func TestRunBalanceAtOrBelowFeeIsPartial(t *testing.T) {
	for _, botBalance := range []int64{0, 5, 10} {
		ex := &fakeExchange{balanceMsat: 10_000_000}
		lg := &fakeLedger{botBalance: botBalance}
		o := newTestOrchestrator(ex, lg, &fakeSessions{})

		out := o.Run(context.Background(), Request{Bot: "bot-1", All: true})

		require.Equal(t, StatusPartial, out.Status, "botBalance=%d", botBalance)
		assert.Equal(t, int64(10_000), out.WithdrawnSats)
		assert.Contains(t, out.Err, "pending")
		assert.Zero(t, lg.transferCalls())
	}
}

func TestRunTransferFailure(t *testing.T) {
	ex := &fakeExchange{balanceMsat: 10_000_000}
	lg := &fakeLedger{botBalance: 9990, transferErr: fmt.Errorf("ledger transfer rejected: InsufficientFunds")}
	o := newTestOrchestrator(ex, lg, &fakeSessions{})

	out := o.Run(context.Background(), Request{Bot: "bot-1", All: true})

	require.Equal(t, StatusError, out.Status)
	assert.Equal(t, StepTransfer, out.Step)
}

func TestRunEndToEnd(t *testing.T) {
	// balance=10,000 sats, request all, post-wait ledger balance 9,990,
	// fee=10, sweep 9,980.
	ex := &fakeExchange{balanceMsat: 10_000_000}
	lg := &fakeLedger{botBalance: 9990, walletBalance: 9980, blockIdx: 1}
	o := newTestOrchestrator(ex, lg, &fakeSessions{})

	out := o.Run(context.Background(), Request{Bot: "bot-1", All: true})

	require.Equal(t, StatusOK, out.Status)
	assert.Equal(t, int64(10_000), out.WithdrawnSats)
	assert.Equal(t, int64(9980), out.TransferredSats)
	assert.Equal(t, int64(9980), out.WalletBalanceSats)
}

func TestReadBalanceRetriesTransportErrors(t *testing.T) {
	calls := 0
	o := newTestOrchestrator(&fakeExchange{}, &fakeLedger{}, &fakeSessions{})
	o.readRetries = 2

	v, err := o.readBalance(context.Background(), zerolog.Nop(), "test", func() (int64, error) {
		calls++
		if calls < 3 {
			return 0, fmt.Errorf("connection reset")
		}
		return 123, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(123), v)
	assert.Equal(t, 3, calls)
}

func TestReadBalanceDoesNotRetryCanisterErrors(t *testing.T) {
	calls := 0
	o := newTestOrchestrator(&fakeExchange{}, &fakeLedger{}, &fakeSessions{})
	o.readRetries = 3

	_, err := o.readBalance(context.Background(), zerolog.Nop(), "test", func() (int64, error) {
		calls++
		return 0, &odin.APIError{Method: "getBalance", Message: "unknown principal"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "a canister-reported error is a valid response, not a transport failure")
}

func TestOutcomeJSONShape(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		raw, err := json.Marshal(OK(10_000, 9980, 60_000))
		require.NoError(t, err)
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &m))
		assert.Equal(t, "ok", m["status"])
		assert.Equal(t, float64(10_000), m["withdrawn_sats"])
		assert.Equal(t, float64(9980), m["transferred_sats"])
		assert.Equal(t, float64(60_000), m["wallet_balance_sats"])
		assert.NotContains(t, m, "step")
		assert.NotContains(t, m, "error")
	})

	t.Run("error", func(t *testing.T) {
		raw, err := json.Marshal(Fail(StepRelease, "withdrawals disabled"))
		require.NoError(t, err)
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &m))
		assert.Equal(t, "error", m["status"])
		assert.Equal(t, "release", m["step"])
		assert.Equal(t, "withdrawals disabled", m["error"])
		assert.NotContains(t, m, "withdrawn_sats")
	})

	t.Run("partial", func(t *testing.T) {
		raw, err := json.Marshal(Partial(10_000, "withdrawal may still be pending"))
		require.NoError(t, err)
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &m))
		assert.Equal(t, "partial", m["status"])
		assert.Equal(t, float64(10_000), m["withdrawn_sats"])
		assert.NotContains(t, m, "step")
		assert.NotContains(t, m, "transferred_sats")
	})
}
