package sweep

import (
	"context"
	"fmt"
	"sync"
)

// BotResult pairs a bot name with its pipeline outcome.
type BotResult struct {
	Bot     string  `json:"bot"`
	Outcome Outcome `json:"result"`
}

// RunAll runs the pipeline for each bot with at most workers in flight.
// Bots are fully independent, so failures are isolated per bot and the
// returned slice preserves the input order regardless of completion
// order.
func RunAll(ctx context.Context, o *Orchestrator, bots []string, amount string, workers int) []BotResult {
	if len(bots) == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}

	results := make([]BotResult, len(bots))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, bot := range bots {
		wg.Add(1)
		go func(i int, bot string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = BotResult{Bot: bot, Outcome: o.runIsolated(ctx, bot, amount)}
			o.log.Info().Str("bot", bot).Int("done", i+1).Int("total", len(bots)).Msg("bot pipeline finished")
		}(i, bot)
	}
	wg.Wait()

	return results
}

// runIsolated converts a panic inside one bot's pipeline into an error
// outcome so it cannot take down the other bots' runs.
func (o *Orchestrator) runIsolated(ctx context.Context, bot, amount string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Str("bot", bot).Interface("panic", r).Msg("pipeline panicked")
			out = Fail(StepInternal, fmt.Sprintf("panic: %v", r))
		}
	}()

	req, err := NewRequest(bot, amount)
	if err != nil {
		return Fail(StepResolve, err.Error())
	}
	return o.Run(ctx, req)
}
