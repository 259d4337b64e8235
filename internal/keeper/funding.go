package keeper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"

	"github.com/eatthepie/bots/internal/lottery"
)

// ErrFundingExhausted means every configured funding candidate was
// rejected as too low. Fatal: either the fee moved far beyond the
// configured range or the candidates are misconfigured.
var ErrFundingExhausted = errors.New("funding attempts exhausted")

type drawInitiator interface {
	InitiateDraw(ctx context.Context, value *big.Int) (lottery.Result, error)
}

// initiateWithFunding attempts initiateDraw with each candidate amount in
// order. Only a value-too-low rejection advances to the next candidate;
// every other rejection is returned as-is so that, for example, a timing
// gate is never masked by throwing more money at it. The first accepted
// amount wins.
func initiateWithFunding(ctx context.Context, submitter drawInitiator, candidates []*big.Int) (lottery.Result, error) {
	if len(candidates) == 0 {
		return lottery.Result{}, errors.New("no funding candidates configured")
	}

	for i, amount := range candidates {
		res, err := submitter.InitiateDraw(ctx, amount)
		if err != nil {
			return lottery.Result{}, err
		}
		if res.Outcome == lottery.OutcomeInsufficientValue {
			if i+1 < len(candidates) {
				log.Printf("[info] initiateDraw value=%s wei too low (%q); escalating to %s",
					amount.String(), res.Raw, candidates[i+1].String())
			}
			continue
		}
		return res, nil
	}
	return lottery.Result{}, fmt.Errorf("%w: %d candidates rejected", ErrFundingExhausted, len(candidates))
}
