// Package commission computes the payout a seller receives for a WLD sale.
//
// The calculator is pure and total: any amount or price (including zero
// and negative values, which are treated as zero) yields a Quote without
// error.
package commission

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultScheduleSpec is the tier schedule published in the commission table.
const DefaultScheduleSpec = "0:0.10,50:0.08,200:0.06"

// Tier applies Percentage to any amount >= MinAmount (until the next tier).
type Tier struct {
	MinAmount  decimal.Decimal `json:"min_amount"`
	Percentage decimal.Decimal `json:"percentage"`
}

// Schedule is an ordered list of tiers. The first tier always starts at 0.
type Schedule []Tier

// Quote is the result of a commission calculation.
type Quote struct {
	Amount               decimal.Decimal `json:"amount"`
	Price                decimal.Decimal `json:"price"`
	CommissionPercentage decimal.Decimal `json:"commission_percentage"`
	Commission           decimal.Decimal `json:"commission"`
	NetTokens            decimal.Decimal `json:"net_tokens"`
	NetAmount            decimal.Decimal `json:"net_amount"`
}

// DefaultSchedule returns the schedule described by DefaultScheduleSpec.
func DefaultSchedule() Schedule {
	s, err := ParseSchedule(DefaultScheduleSpec)
	if err != nil {
		panic(fmt.Sprintf("invalid default commission schedule: %v", err))
	}
	return s
}

// FlatSchedule returns a single-tier schedule applying pct to every amount.
func FlatSchedule(pct decimal.Decimal) Schedule {
	return Schedule{{MinAmount: decimal.Zero, Percentage: pct}}
}

// ParseSchedule parses "min:pct,min:pct,..." into a Schedule.
// Tiers must start at 0, have strictly increasing minimums, and use
// percentages in [0, 1).
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	var s Schedule
	for _, part := range strings.Split(spec, ",") {
		minStr, pctStr, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("invalid tier %q: expected min:percentage", part)
		}
		min, err := decimal.NewFromString(strings.TrimSpace(minStr))
		if err != nil {
			return nil, fmt.Errorf("invalid tier minimum %q: %w", minStr, err)
		}
		pct, err := decimal.NewFromString(strings.TrimSpace(pctStr))
		if err != nil {
			return nil, fmt.Errorf("invalid tier percentage %q: %w", pctStr, err)
		}
		s = append(s, Tier{MinAmount: min, Percentage: pct})
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the schedule invariants.
func (s Schedule) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("schedule has no tiers")
	}
	if !s[0].MinAmount.IsZero() {
		return fmt.Errorf("first tier must start at 0, got %s", s[0].MinAmount)
	}
	one := decimal.NewFromInt(1)
	for i, t := range s {
		if t.Percentage.IsNegative() || t.Percentage.GreaterThanOrEqual(one) {
			return fmt.Errorf("tier %d: percentage %s out of range [0, 1)", i, t.Percentage)
		}
		if i > 0 && !t.MinAmount.GreaterThan(s[i-1].MinAmount) {
			return fmt.Errorf("tier %d: minimum %s must be greater than %s", i, t.MinAmount, s[i-1].MinAmount)
		}
	}
	return nil
}

// Percentage returns the commission percentage for amount.
func (s Schedule) Percentage(amount decimal.Decimal) decimal.Decimal {
	if len(s) == 0 {
		return decimal.Zero
	}
	amount = nonNegative(amount)
	i := sort.Search(len(s), func(i int) bool { return s[i].MinAmount.GreaterThan(amount) })
	if i == 0 {
		return s[0].Percentage
	}
	return s[i-1].Percentage
}

// String renders the schedule in the format accepted by ParseSchedule.
func (s Schedule) String() string {
	parts := make([]string, len(s))
	for i, t := range s {
		parts[i] = t.MinAmount.String() + ":" + t.Percentage.String()
	}
	return strings.Join(parts, ",")
}

// Calculate returns the commission and net payout for selling amount tokens
// at the given unit price.
func (s Schedule) Calculate(amount, price decimal.Decimal) Quote {
	amount = nonNegative(amount)
	price = nonNegative(price)

	pct := s.Percentage(amount)
	fee := amount.Mul(pct)
	netTokens := amount.Sub(fee)

	return Quote{
		Amount:               amount,
		Price:                price,
		CommissionPercentage: pct,
		Commission:           fee,
		NetTokens:            netTokens,
		NetAmount:            netTokens.Mul(price),
	}
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
