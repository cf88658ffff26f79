/*
interest.go - Daily interest accrual and installment aging

PURPOSE:
  Computes the moratory and punitive interest an overdue installment has
  earned up to a reference date, and applies only the portion not already
  recorded on the installment. Repeated runs with advancing reference dates
  are therefore idempotent and incremental: interest is never double-applied.

FORMULA:
  totalToDate = outstandingPrincipal * (annualRate / 100 / 365) * daysOverdue
  applied     = max(0, totalToDate - alreadyAccruedOfThatKind)

  daysOverdue counts only for installments that are Overdue, or Pending with
  a due date already in the past relative to the reference date.

IMMUTABLE UPDATES:
  ApplyDailyInterest and UpdateInstallmentStatesByDueDate return NEW
  installment values; callers splice them back into the aggregate.

SEE ALSO:
  - types.go: Installment, Debt.ReplaceInstallments
  - dailyupdate.go: The daily sweep composing these operations
*/
package collections

import (
	"time"

	"github.com/shopspring/decimal"
)

// yearBasis is rate/100/365 folded into one divisor.
var yearBasis = decimal.NewFromInt(36500)

// =============================================================================
// PER-INSTALLMENT CALCULATION
// =============================================================================

// InterestResult is the interest to apply to one installment for one run.
type InterestResult struct {
	Moratory    decimal.Decimal
	Punitive    decimal.Decimal
	DaysOverdue int
}

func (r InterestResult) IsZero() bool {
	return r.Moratory.IsZero() && r.Punitive.IsZero()
}

// CalculateDailyInterest computes the interest to apply to an installment as
// of the reference date. Paid and UnderAgreement installments never accrue.
// A nil or non-positive rate contributes zero for that kind.
func CalculateDailyInterest(inst Installment, moratoryRate, punitiveRate *decimal.Decimal, ref time.Time) InterestResult {
	zero := InterestResult{Moratory: decimal.Zero, Punitive: decimal.Zero}

	if inst.State == InstallmentPaid || inst.State == InstallmentUnderAgreement {
		return zero
	}
	if !inst.Delinquent(ref) {
		return zero
	}

	daysOverdue := DaysBetween(inst.DueDate, ref)
	if daysOverdue <= 0 {
		return zero
	}

	return InterestResult{
		Moratory:    interestDelta(inst.OutstandingPrincipal, moratoryRate, daysOverdue, inst.AccruedMoratoryInterest),
		Punitive:    interestDelta(inst.OutstandingPrincipal, punitiveRate, daysOverdue, inst.AccruedPunitiveInterest),
		DaysOverdue: daysOverdue,
	}
}

// interestDelta returns the not-yet-recorded portion of the theoretical
// interest to date, clamped at zero so a run never reduces accrued interest.
func interestDelta(principal decimal.Decimal, rate *decimal.Decimal, days int, alreadyAccrued decimal.Decimal) decimal.Decimal {
	if rate == nil || !rate.IsPositive() {
		return decimal.Zero
	}

	totalToDate := principal.
		Mul(*rate).
		Mul(decimal.NewFromInt(int64(days))).
		Div(yearBasis)

	delta := totalToDate.Sub(alreadyAccrued)
	if delta.IsNegative() {
		return decimal.Zero
	}
	return delta
}

// =============================================================================
// PER-DEBT APPLICATION
// =============================================================================

// AppliedInterest totals one accrual run over a debt.
type AppliedInterest struct {
	Moratory decimal.Decimal
	Punitive decimal.Decimal
}

func (a AppliedInterest) IsZero() bool {
	return a.Moratory.IsZero() && a.Punitive.IsZero()
}

// ApplyDailyInterest computes interest for every installment of the debt and
// returns NEW installment values for those with nonzero interest, with the
// accrued fields incremented (principal and due date unchanged). Installments
// with zero interest are omitted; the caller retains their existing values.
func ApplyDailyInterest(d *Debt, ref time.Time) ([]Installment, AppliedInterest) {
	totals := AppliedInterest{Moratory: decimal.Zero, Punitive: decimal.Zero}
	var updated []Installment

	for _, inst := range d.Installments {
		result := CalculateDailyInterest(inst, d.MoratoryAnnualRate, d.PunitiveAnnualRate, ref)
		if result.IsZero() {
			continue
		}

		next := inst
		next.AccruedMoratoryInterest = inst.AccruedMoratoryInterest.Add(result.Moratory)
		next.AccruedPunitiveInterest = inst.AccruedPunitiveInterest.Add(result.Punitive)
		updated = append(updated, next)

		totals.Moratory = totals.Moratory.Add(result.Moratory)
		totals.Punitive = totals.Punitive.Add(result.Punitive)
	}

	return updated, totals
}

// =============================================================================
// INSTALLMENT AGING
// =============================================================================

// UpdateInstallmentStatesByDueDate transitions Pending installments whose due
// date has passed into Overdue. Overdue, Paid and UnderAgreement installments
// pass through unchanged. The full list is returned with replacements applied
// positionally.
func UpdateInstallmentStatesByDueDate(installments []Installment, ref time.Time) []Installment {
	out := make([]Installment, len(installments))
	for i, inst := range installments {
		if inst.State == InstallmentPending && DayOf(inst.DueDate).Before(DayOf(ref)) {
			aged := inst
			aged.State = InstallmentOverdue
			out[i] = aged
			continue
		}
		out[i] = inst
	}
	return out
}
