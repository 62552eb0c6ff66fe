package oracle

import (
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"lendcore/observability"
)

var (
	ErrNoPriceFeed  = errors.New("oracle: no price feed configured for asset")
	ErrStalePrice   = errors.New("oracle: price older than staleness threshold")
	ErrInvalidPrice = errors.New("oracle: price must be positive")
)

// PriceDecimals is the fixed-point precision of every USD price returned by
// the oracle. Feeds reporting other precisions are normalised on read.
const PriceDecimals = 8

// Feed is an external price source. Price is expressed with the returned
// decimal precision; UpdatedAt is the observation timestamp used for the
// staleness check.
type Feed interface {
	Latest() (price *big.Int, decimals uint8, updatedAt time.Time, err error)
}

type entry struct {
	feed        Feed
	manualPrice *big.Int
	manualAt    time.Time
	useManual   bool
	staleAfter  time.Duration
}

// Oracle maps asset identifiers to guarded USD prices. A manual price is a
// first-class feed for assets without an external reference; whichever source
// was configured last for an asset is authoritative.
type Oracle struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	staleAfter time.Duration
	now        func() time.Time
}

// New constructs an oracle applying the supplied default staleness threshold.
// A non-positive threshold disables the staleness check.
func New(staleAfter time.Duration) *Oracle {
	return &Oracle{
		entries:    make(map[string]*entry),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// SetClock overrides the time source. Intended for deterministic tests.
func (o *Oracle) SetClock(now func() time.Time) {
	if o == nil || now == nil {
		return
	}
	o.mu.Lock()
	o.now = now
	o.mu.Unlock()
}

func normaliseAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

func (o *Oracle) ensure(asset string) *entry {
	key := normaliseAsset(asset)
	e, ok := o.entries[key]
	if !ok {
		e = &entry{}
		o.entries[key] = e
	}
	return e
}

// SetFeed registers an external feed for the asset and makes it the
// authoritative source.
func (o *Oracle) SetFeed(asset string, feed Feed) {
	if o == nil || feed == nil || normaliseAsset(asset) == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	e := o.ensure(asset)
	e.feed = feed
	e.useManual = false
}

// SetManualPrice records a USD price (PriceDecimals fixed point) stamped with
// the current clock and makes it the authoritative source for the asset.
func (o *Oracle) SetManualPrice(asset string, price *big.Int) error {
	if o == nil || normaliseAsset(asset) == "" {
		return ErrNoPriceFeed
	}
	if price == nil || price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	e := o.ensure(asset)
	e.manualPrice = new(big.Int).Set(price)
	e.manualAt = o.now()
	e.useManual = true
	return nil
}

// SetStaleAfter overrides the staleness threshold for one asset.
func (o *Oracle) SetStaleAfter(asset string, staleAfter time.Duration) {
	if o == nil || normaliseAsset(asset) == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ensure(asset).staleAfter = staleAfter
}

// Price resolves the USD price for the asset in PriceDecimals fixed point.
// It fails with ErrNoPriceFeed when the asset is unconfigured, ErrStalePrice
// when the newest observation exceeds the staleness threshold, and
// ErrInvalidPrice on a non-positive read.
func (o *Oracle) Price(asset string) (*big.Int, error) {
	if o == nil {
		return nil, ErrNoPriceFeed
	}
	o.mu.RLock()
	e, ok := o.entries[normaliseAsset(asset)]
	staleAfter := o.staleAfter
	now := o.now()
	var (
		feed      Feed
		price     *big.Int
		updatedAt time.Time
		useManual bool
	)
	if ok {
		if e.staleAfter != 0 {
			staleAfter = e.staleAfter
		}
		feed = e.feed
		useManual = e.useManual && e.manualPrice != nil
		if useManual {
			price = new(big.Int).Set(e.manualPrice)
			updatedAt = e.manualAt
		}
	}
	o.mu.RUnlock()
	if !ok {
		return nil, ErrNoPriceFeed
	}

	switch {
	case useManual:
	case feed != nil:
		raw, decimals, ts, err := feed.Latest()
		if err != nil {
			return nil, err
		}
		price = rescale(raw, decimals, PriceDecimals)
		updatedAt = ts
	default:
		return nil, ErrNoPriceFeed
	}

	if price == nil || price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if staleAfter > 0 {
		if updatedAt.IsZero() || now.Sub(updatedAt) > staleAfter {
			observability.LendingMetrics().RecordStaleOracleRead(normaliseAsset(asset))
			return nil, ErrStalePrice
		}
	}
	return price, nil
}

// USDValue converts an asset amount expressed with the supplied decimal
// precision into its USD value in PriceDecimals fixed point. Heterogeneous
// asset precisions are normalised before multiplication so cross-asset sums
// compare on a common base.
func (o *Oracle) USDValue(asset string, amount *big.Int, decimals uint8) (*big.Int, error) {
	if amount == nil || amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrInvalidPrice
	}
	price, err := o.Price(asset)
	if err != nil {
		return nil, err
	}
	value := new(big.Int).Mul(amount, price)
	return value.Quo(value, pow10(decimals)), nil
}

func rescale(price *big.Int, from, to uint8) *big.Int {
	if price == nil {
		return nil
	}
	if from == to {
		return new(big.Int).Set(price)
	}
	if from < to {
		return new(big.Int).Mul(price, pow10(to-from))
	}
	return new(big.Int).Quo(price, pow10(from-to))
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
