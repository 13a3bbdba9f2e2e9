package fee

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/AlexZinkM/relay-wallet/internal/common"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

var errNoPrice = errors.New("network returned no fee price")

// PriceSource reads the live network unit price
type PriceSource interface {
	GetFeePrice(ctx context.Context) (*big.Int, error)
}

// FeeQuote is a priced gas estimate. Amounts are in wei.
type FeeQuote struct {
	Kind           Kind
	EstimatedUnits uint64
	BufferedUnits  uint64
	UnitPrice      *big.Int
	TotalCost      *big.Int
	Fallback       bool
}

// Oracle prices gas estimates under a FeePolicy
type Oracle struct {
	source PriceSource
	policy FeePolicy
}

// NewOracle creates an Oracle. The policy must already be validated.
func NewOracle(source PriceSource, policy FeePolicy) *Oracle {
	return &Oracle{source: source, policy: policy}
}

// Policy returns the oracle's policy
func (o *Oracle) Policy() FeePolicy {
	return o.policy
}

// Quote prices estimatedUnits. Read failures are retried with backoff and then replaced by
// the fallback price, so only a cancelled ctx makes Quote fail.
func (o *Oracle) Quote(ctx context.Context, kind Kind, estimatedUnits uint64) (*FeeQuote, error) {
	raw, fallback, err := o.readPrice(ctx)
	if err != nil {
		return nil, err
	}

	band := o.policy.Band(kind)
	price := clamp(raw, band.Min, band.Max)
	price = common.AddPercent(price, band.MultiplierPercent)
	price = minBig(price, band.Max)

	quote := o.build(kind, estimatedUnits, price)
	quote.Fallback = fallback

	log.Debug().
		Str("kind", kind.String()).
		Str("raw_price", raw.String()).
		Str("unit_price", price.String()).
		Uint64("units", quote.BufferedUnits).
		Bool("fallback", fallback).
		Msg("fee quoted")
	return quote, nil
}

// Bump re-prices a quote after the network rejected it as underpriced.
// The bumped price stays within the band.
func (o *Oracle) Bump(q *FeeQuote) *FeeQuote {
	band := o.policy.Band(q.Kind)
	price := minBig(common.AddPercent(q.UnitPrice, o.policy.BumpPercent), band.Max)

	bumped := o.build(q.Kind, q.EstimatedUnits, price)
	bumped.Fallback = q.Fallback
	return bumped
}

func (o *Oracle) build(kind Kind, estimatedUnits uint64, price *big.Int) *FeeQuote {
	buffered := estimatedUnits * uint64(100+o.policy.GasBufferPercent) / 100
	return &FeeQuote{
		Kind:           kind,
		EstimatedUnits: estimatedUnits,
		BufferedUnits:  buffered,
		UnitPrice:      price,
		TotalCost:      new(big.Int).Mul(price, new(big.Int).SetUint64(buffered)),
	}
}

func (o *Oracle) readPrice(ctx context.Context) (*big.Int, bool, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.policy.RetryInitial

	price, err := backoff.Retry(ctx, func() (*big.Int, error) {
		p, err := o.source.GetFeePrice(ctx)
		if err != nil {
			return nil, err
		}
		if p == nil || p.Sign() <= 0 {
			return nil, errNoPrice
		}
		return p, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(o.policy.RetryAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Dur("retry_in", next).Msg("fee price read failed")
		}),
	)
	if err == nil {
		return price, false, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, false, ctxErr
	}

	log.Warn().Err(err).Str("fallback_price", o.policy.FallbackPrice.String()).Msg("using fallback fee price")
	return new(big.Int).Set(o.policy.FallbackPrice), true, nil
}

func clamp(v, lo, hi *big.Int) *big.Int {
	if v.Cmp(lo) < 0 {
		return new(big.Int).Set(lo)
	}
	if v.Cmp(hi) > 0 {
		return new(big.Int).Set(hi)
	}
	return new(big.Int).Set(v)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) > 0 {
		return new(big.Int).Set(b)
	}
	return a
}
