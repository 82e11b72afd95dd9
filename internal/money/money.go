// Package money holds the accepted denominations and the change calculator.
package money

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Denominations are the accepted note and coin values in rupees, ascending.
var Denominations = []int64{5, 10, 20, 25, 50, 100, 200}

// IsValidDenomination reports whether d is one of Denominations.
func IsValidDenomination(d int64) bool {
	for _, v := range Denominations {
		if v == d {
			return true
		}
	}
	return false
}

// MaxCount bounds how many pieces of one denomination a single purchase takes.
const MaxCount = 1000

// MaxAmount is the largest value the decimal(8,2) money columns hold.
var MaxAmount = decimal.RequireFromString("999999.99")

// Inserted is a count per denomination fed into the machine.
type Inserted map[int64]int

// Validate rejects unknown denominations and counts outside 0..MaxCount.
func (in Inserted) Validate() error {
	for d, n := range in {
		if !IsValidDenomination(d) {
			return fmt.Errorf("invalid denomination %d", d)
		}
		if n < 0 {
			return fmt.Errorf("negative count for denomination %d", d)
		}
		if n > MaxCount {
			return fmt.Errorf("count for denomination %d exceeds %d", d, MaxCount)
		}
	}
	return nil
}

// Total is the sum of denomination × count.
func (in Inserted) Total() decimal.Decimal {
	total := decimal.Zero
	for d, n := range in {
		total = total.Add(decimal.NewFromInt(d).Mul(decimal.NewFromInt(int64(n))))
	}
	return total
}

// NonZero returns the denominations with a positive count, ascending.
func (in Inserted) NonZero() []int64 {
	out := make([]int64, 0, len(in))
	for d, n := range in {
		if n > 0 {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Breakdown is the result of MakeChange.
type Breakdown struct {
	Counts map[int64]int
	// Remainder is the part of the amount below the smallest denomination,
	// which is not paid out.
	Remainder decimal.Decimal
}

// Dispensed is the amount actually covered by Counts.
func (b Breakdown) Dispensed() decimal.Decimal {
	return Inserted(b.Counts).Total()
}

// Denominations returns the denominations used, largest first.
func (b Breakdown) Denominations() []int64 {
	out := Inserted(b.Counts).NonZero()
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}

// MakeChange takes the largest denomination as many times as it fits, then
// the next one, and so on. The result is only optimal for canonical sets such
// as Denominations. A negative amount yields no change.
func MakeChange(amount decimal.Decimal, denominations []int64) Breakdown {
	b := Breakdown{Counts: map[int64]int{}, Remainder: decimal.Zero}
	if !amount.IsPositive() {
		return b
	}

	desc := append([]int64(nil), denominations...)
	sort.Slice(desc, func(i, j int) bool { return desc[i] > desc[j] })

	remaining := amount
	for _, d := range desc {
		if d <= 0 {
			continue
		}
		dd := decimal.NewFromInt(d)
		n := remaining.Div(dd).Floor().IntPart()
		if n > 0 {
			b.Counts[d] = int(n)
			remaining = remaining.Sub(dd.Mul(decimal.NewFromInt(n)))
		}
	}
	b.Remainder = remaining
	return b
}

// SumInserted is the value of the inserted counts.
func SumInserted(in map[int64]int) decimal.Decimal {
	return Inserted(in).Total()
}
