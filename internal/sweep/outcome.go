package sweep

import "encoding/json"

// Status is the terminal state of one withdrawal pipeline run.
type Status string

const (
	StatusOK      Status = "ok"      // released, settled and swept
	StatusError   Status = "error"   // hard failure at a named step
	StatusPartial Status = "partial" // released but not confirmed/swept
)

// Pipeline step names reported on hard failures.
const (
	StepAuth     = "auth"
	StepWallet   = "wallet"
	StepBalance  = "balance"
	StepResolve  = "resolve"
	StepRelease  = "release"
	StepTransfer = "transfer"
	StepInternal = "internal"
)

// Outcome is the structured result of one pipeline run. Exactly one of
// the three statuses is set and only the fields belonging to that status
// appear in the JSON encoding; this shape is the stable caller contract.
type Outcome struct {
	Status            Status
	Step              string
	Err               string
	WithdrawnSats     int64
	TransferredSats   int64
	WalletBalanceSats int64
}

func OK(withdrawn, transferred, walletBalance int64) Outcome {
	return Outcome{
		Status:            StatusOK,
		WithdrawnSats:     withdrawn,
		TransferredSats:   transferred,
		WalletBalanceSats: walletBalance,
	}
}

func Fail(step, msg string) Outcome {
	return Outcome{Status: StatusError, Step: step, Err: msg}
}

func Partial(withdrawn int64, msg string) Outcome {
	return Outcome{Status: StatusPartial, Err: msg, WithdrawnSats: withdrawn}
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{"status": string(o.Status)}
	switch o.Status {
	case StatusOK:
		m["withdrawn_sats"] = o.WithdrawnSats
		m["transferred_sats"] = o.TransferredSats
		m["wallet_balance_sats"] = o.WalletBalanceSats
	case StatusError:
		m["step"] = o.Step
		m["error"] = o.Err
	case StatusPartial:
		m["error"] = o.Err
		m["withdrawn_sats"] = o.WithdrawnSats
	}
	return json.Marshal(m)
}
