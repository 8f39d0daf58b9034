package domain

import "fmt"

// Money is an amount in minor units (cents) tagged with an ISO currency code.
// The zero value is the "no money" amount and is compatible with any currency.
type Money struct {
	Amount   int64
	Currency string
}

func NewMoney(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

func (m Money) IsZero() bool {
	return m.Amount == 0 && m.Currency == ""
}

// Add sums two amounts. Mixing currencies fails with ErrCurrencyMismatch;
// the zero value takes on the other side's currency.
func (m Money) Add(other Money) (Money, error) {
	if m.IsZero() {
		return other, nil
	}
	if other.IsZero() {
		return m, nil
	}
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// MulNights multiplies a nightly amount by a number of nights.
func (m Money) MulNights(nights int) Money {
	return Money{Amount: m.Amount * int64(nights), Currency: m.Currency}
}

func (m Money) String() string {
	return fmt.Sprintf("%d.%02d %s", m.Amount/100, m.Amount%100, m.Currency)
}
