package oracle

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

type staticFeed struct {
	price     *big.Int
	decimals  uint8
	updatedAt time.Time
	err       error
}

func (f *staticFeed) Latest() (*big.Int, uint8, time.Time, error) {
	return f.price, f.decimals, f.updatedAt, f.err
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestPriceRequiresConfiguredSource(t *testing.T) {
	o := New(time.Minute)
	if _, err := o.Price("ETH"); !errors.Is(err, ErrNoPriceFeed) {
		t.Fatalf("err = %v, want ErrNoPriceFeed", err)
	}
}

func TestManualPriceRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	o := New(time.Minute)
	o.SetClock(fixedClock(now))

	want := big.NewInt(350_000_000_000) // $3500 at 8 decimals
	if err := o.SetManualPrice("eth", want); err != nil {
		t.Fatalf("set manual price: %v", err)
	}
	got, err := o.Price("ETH")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if got.Cmp(want) != 0 {
		t.Fatalf("price = %s, want %s", got, want)
	}
}

func TestManualPriceRejectsNonPositive(t *testing.T) {
	o := New(time.Minute)
	if err := o.SetManualPrice("ETH", big.NewInt(0)); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("err = %v, want ErrInvalidPrice", err)
	}
	if err := o.SetManualPrice("ETH", nil); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("nil err = %v, want ErrInvalidPrice", err)
	}
}

func TestStalePriceRejected(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	current := start
	o := New(5 * time.Minute)
	o.SetClock(func() time.Time { return current })

	if err := o.SetManualPrice("ETH", big.NewInt(100)); err != nil {
		t.Fatalf("set manual price: %v", err)
	}
	current = start.Add(5 * time.Minute)
	if _, err := o.Price("ETH"); err != nil {
		t.Fatalf("price at threshold: %v", err)
	}
	current = start.Add(5*time.Minute + time.Second)
	if _, err := o.Price("ETH"); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("err = %v, want ErrStalePrice", err)
	}
}

func TestPerAssetStalenessOverride(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	current := start
	o := New(time.Minute)
	o.SetClock(func() time.Time { return current })

	if err := o.SetManualPrice("BTC", big.NewInt(100)); err != nil {
		t.Fatalf("set manual price: %v", err)
	}
	o.SetStaleAfter("BTC", time.Hour)

	current = start.Add(30 * time.Minute)
	if _, err := o.Price("BTC"); err != nil {
		t.Fatalf("price within override window: %v", err)
	}
}

func TestFeedPricesAreRescaled(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	o := New(time.Minute)
	o.SetClock(fixedClock(now))

	// A 6-decimal feed reporting $3000 normalises to 8 decimals.
	o.SetFeed("ETH", &staticFeed{price: big.NewInt(3_000_000_000), decimals: 6, updatedAt: now})
	got, err := o.Price("ETH")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if got.Cmp(big.NewInt(300_000_000_000)) != 0 {
		t.Fatalf("price = %s, want 300000000000", got)
	}
}

func TestLastConfiguredSourceWins(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	o := New(time.Minute)
	o.SetClock(fixedClock(now))

	o.SetFeed("ETH", &staticFeed{price: big.NewInt(100), decimals: 8, updatedAt: now})
	if err := o.SetManualPrice("ETH", big.NewInt(200)); err != nil {
		t.Fatalf("set manual price: %v", err)
	}
	got, err := o.Price("ETH")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if got.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("price = %s, want manual 200", got)
	}

	o.SetFeed("ETH", &staticFeed{price: big.NewInt(300), decimals: 8, updatedAt: now})
	got, err = o.Price("ETH")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("price = %s, want feed 300", got)
	}
}

func TestUSDValueNormalisesDecimals(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	o := New(time.Minute)
	o.SetClock(fixedClock(now))

	// $3500 per whole unit of an 18-decimal asset.
	if err := o.SetManualPrice("ETH", big.NewInt(350_000_000_000)); err != nil {
		t.Fatalf("set manual price: %v", err)
	}
	amount, _ := new(big.Int).SetString("10000000000000000000", 10) // 10 units
	value, err := o.USDValue("ETH", amount, 18)
	if err != nil {
		t.Fatalf("usd value: %v", err)
	}
	if value.Cmp(big.NewInt(3_500_000_000_000)) != 0 {
		t.Fatalf("value = %s, want 3500000000000", value)
	}
}

func TestUSDValueZeroAmount(t *testing.T) {
	o := New(time.Minute)
	value, err := o.USDValue("ETH", big.NewInt(0), 18)
	if err != nil {
		t.Fatalf("usd value: %v", err)
	}
	if value.Sign() != 0 {
		t.Fatalf("value = %s, want 0", value)
	}
}
