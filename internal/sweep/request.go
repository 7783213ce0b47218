package sweep

import (
	"fmt"
	"strconv"
	"strings"
)

// Request describes one withdrawal: a bot and either an explicit sat
// amount or the entire available exchange balance. Immutable once built.
type Request struct {
	Bot  string
	All  bool
	Sats int64
}

// NewRequest parses the CLI amount form: a plain positive integer number
// of sats, or the literal "all". Fractional sats do not exist.
func NewRequest(bot, amount string) (Request, error) {
	if bot == "" {
		return Request{}, fmt.Errorf("bot name is required")
	}
	if strings.EqualFold(amount, "all") {
		return Request{Bot: bot, All: true}, nil
	}
	sats, err := strconv.ParseInt(amount, 10, 64)
	if err != nil {
		return Request{}, fmt.Errorf("amount must be an integer number of sats or 'all', got %q", amount)
	}
	if sats <= 0 {
		return Request{}, fmt.Errorf("amount must be positive, got %d", sats)
	}
	return Request{Bot: bot, Sats: sats}, nil
}
