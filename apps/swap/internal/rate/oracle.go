package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	ModeRealtime = "realtime"
	ModeManual   = "manual"

	// Amounts and rates are priced to 6 decimal places.
	RatePrecision = 6
)

// Quote is the rate in effect at the moment of the call. Rate already has the
// platform markup applied; BaseRate is the raw market rate.
type Quote struct {
	Rate          decimal.Decimal `json:"rate"`
	BaseRate      decimal.Decimal `json:"base_rate"`
	MarkupPercent decimal.Decimal `json:"markup_percent"`
	Mode          string          `json:"mode"`
}

// Oracle prices new orders in source tokens per target token. In realtime mode
// it quotes from a primary feed, falls back to a secondary feed, then to the
// last successfully fetched rate, then to a configured default. GetRate never
// fails; order creation must always be able to price.
type Oracle struct {
	mode          string
	sourceSymbol  string
	targetSymbol  string
	manualRate    decimal.Decimal
	markupPercent decimal.Decimal
	defaultRate   decimal.Decimal
	primary       PriceFeed
	secondary     PriceFeed
	logger        *zap.Logger

	mu         sync.RWMutex
	cachedRate decimal.Decimal
	cachedAt   time.Time
	hasCache   bool
}

func NewOracle(mode, sourceSymbol, targetSymbol string, manualRate, markupPercent, defaultRate decimal.Decimal,
	primary, secondary PriceFeed, logger *zap.Logger) *Oracle {
	return &Oracle{
		mode:          mode,
		sourceSymbol:  sourceSymbol,
		targetSymbol:  targetSymbol,
		manualRate:    manualRate,
		markupPercent: markupPercent,
		defaultRate:   defaultRate,
		primary:       primary,
		secondary:     secondary,
		logger:        logger,
	}
}

// GetRate returns the current quote. The markup reduces the amount paid out:
// rate = base * (1 - markup/100), rounded half away from zero to 6 places.
func (o *Oracle) GetRate(ctx context.Context) Quote {
	var baseRate decimal.Decimal

	if o.mode == ModeManual {
		baseRate = o.manualRate
	} else {
		fetched, err := o.fetchBaseRate(ctx)
		if err != nil {
			baseRate = o.lastKnownRate()
		} else {
			baseRate = fetched
			o.storeCache(fetched)
		}
	}

	baseRate = baseRate.Round(RatePrecision)

	oneHundred := decimal.NewFromInt(100)
	rate := baseRate.Mul(oneHundred.Sub(o.markupPercent)).Div(oneHundred).Round(RatePrecision)

	return Quote{
		Rate:          rate,
		BaseRate:      baseRate,
		MarkupPercent: o.markupPercent,
		Mode:          o.mode,
	}
}

func (o *Oracle) fetchBaseRate(ctx context.Context) (decimal.Decimal, error) {
	rate, err := o.rateFromFeed(ctx, o.primary)
	if err == nil {
		return rate, nil
	}

	o.logger.Warn("Primary rate feed failed, trying secondary", zap.Error(err))

	rate, err = o.rateFromFeed(ctx, o.secondary)
	if err == nil {
		return rate, nil
	}

	o.logger.Warn("Secondary rate feed failed", zap.Error(err))
	return decimal.Zero, err
}

func (o *Oracle) rateFromFeed(ctx context.Context, feed PriceFeed) (decimal.Decimal, error) {
	sourcePrice, err := feed.GetPrice(ctx, o.sourceSymbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to price %s: %w", o.sourceSymbol, err)
	}

	targetPrice, err := feed.GetPrice(ctx, o.targetSymbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to price %s: %w", o.targetSymbol, err)
	}

	if targetPrice.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("non-positive target price %s", targetPrice)
	}

	// Source tokens buy source/target target tokens.
	return sourcePrice.Div(targetPrice), nil
}

func (o *Oracle) lastKnownRate() decimal.Decimal {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.hasCache {
		o.logger.Warn("All rate feeds failed, using last known rate",
			zap.String("rate", o.cachedRate.String()),
			zap.Time("cached_at", o.cachedAt))
		return o.cachedRate
	}

	o.logger.Warn("All rate feeds failed and no cached rate exists, using configured default",
		zap.String("default_rate", o.defaultRate.String()))
	return o.defaultRate
}

func (o *Oracle) storeCache(rate decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cachedRate = rate
	o.cachedAt = time.Now()
	o.hasCache = true
}
