package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/AltanReisoglu/UCP-AGENT/internal/domain"
)

type DiscountKind string

const (
	DiscountKindPercentage DiscountKind = "percentage"
	DiscountKindFixed      DiscountKind = "fixed-amount"
	DiscountKindAutomatic  DiscountKind = "automatic-rule"
)

// DiscountRule describes one merchant discount. Codes are matched
// case-insensitively; automatic rules have no code and apply whenever
// eligible.
type DiscountRule struct {
	Code        string
	Title       string
	Kind        DiscountKind
	Percent     int   // percentage kind
	Amount      int64 // fixed-amount and automatic kinds, minor units
	MinSubtotal int64 // eligibility floor, 0 = always eligible
	Expired     bool
	Priority    int
}

func (r DiscountRule) eligible(subtotal int64) bool {
	return !r.Expired && subtotal >= r.MinSubtotal
}

// computeAmount caps every discount at the remaining subtotal.
// Percentages round half-up.
func (r DiscountRule) computeAmount(subtotal int64) int64 {
	var amount int64
	switch r.Kind {
	case DiscountKindPercentage:
		amount = (subtotal*int64(r.Percent) + 50) / 100
	default:
		amount = r.Amount
	}
	if amount > subtotal {
		amount = subtotal
	}
	return amount
}

// DiscountTable maps uppercase codes to rules, plus automatic rules
// that are always evaluated.
type DiscountTable struct {
	byCode    map[string]DiscountRule
	automatic []DiscountRule
}

func NewDiscountTable(rules ...DiscountRule) *DiscountTable {
	t := &DiscountTable{byCode: make(map[string]DiscountRule)}
	for _, r := range rules {
		if r.Kind == DiscountKindAutomatic {
			t.automatic = append(t.automatic, r)
			continue
		}
		t.byCode[strings.ToUpper(r.Code)] = r
	}
	return t
}

func (t *DiscountTable) lookup(code string) (DiscountRule, bool) {
	r, ok := t.byCode[strings.ToUpper(code)]
	return r, ok
}

// DefaultDiscounts mirrors the merchant's sample code table.
func DefaultDiscounts() *DiscountTable {
	return NewDiscountTable(
		DiscountRule{Code: "SAVE10", Title: "10% Off Your Order", Kind: DiscountKindPercentage, Percent: 10, Priority: 1},
		DiscountRule{Code: "SAVE20", Title: "$20 Off Your Order", Kind: DiscountKindFixed, Amount: 2000, MinSubtotal: 5000, Priority: 1},
		DiscountRule{Code: "WELCOME", Title: "Welcome Discount", Kind: DiscountKindFixed, Amount: 500, Priority: 2},
		DiscountRule{Code: "EXPIRED", Title: "Expired Code", Kind: DiscountKindFixed, Amount: 1000, Expired: true, Priority: 1},
		DiscountRule{Title: "Bulk Order Discount", Kind: DiscountKindAutomatic, Amount: 500, MinSubtotal: 10000, Priority: 99},
	)
}

// DiscountStage re-evaluates every code on the session against the
// current line items, so removing items can invalidate a code. A code
// that no longer qualifies is dropped with a warning, not a failure.
type DiscountStage struct {
	table *DiscountTable
}

func NewDiscountStage(table *DiscountTable) *DiscountStage {
	return &DiscountStage{table: table}
}

func (d *DiscountStage) Name() string { return "discount" }

func (d *DiscountStage) Apply(_ context.Context, s *domain.CheckoutSession, pc *Context) error {
	if pc.Patch != nil && pc.Patch.DiscountCodes != nil {
		s.DiscountCodes = append([]string(nil), (*pc.Patch.DiscountCodes)...)
	}

	var subtotal int64
	for _, li := range s.LineItems {
		subtotal += li.Subtotal()
	}

	var kept []string
	var applied []domain.AppliedDiscount
	for _, code := range s.DiscountCodes {
		rule, ok := d.table.lookup(code)
		if !ok || !rule.eligible(subtotal) {
			pc.AddWarning(WarningDiscountInvalidated,
				fmt.Sprintf("discount code %q no longer qualifies and was removed", code))
			continue
		}
		kept = append(kept, code)
		applied = append(applied, domain.AppliedDiscount{
			Code:     strings.ToUpper(code),
			Title:    rule.Title,
			Amount:   rule.computeAmount(subtotal),
			Priority: rule.Priority,
		})
	}

	for _, rule := range d.table.automatic {
		if rule.eligible(subtotal) {
			applied = append(applied, domain.AppliedDiscount{
				Title:     rule.Title,
				Amount:    rule.computeAmount(subtotal),
				Automatic: true,
				Priority:  rule.Priority,
			})
		}
	}

	sort.SliceStable(applied, func(i, j int) bool { return applied[i].Priority < applied[j].Priority })

	s.DiscountCodes = kept
	s.Discounts = applied
	s.RecomputeTotals()
	return nil
}
