/*
dailyupdate.go - The daily interest-accrual and aging sweep

PURPOSE:
  Once a day, every active debt is refreshed against a reference date:

  1. Recompute days-overdue (oldest delinquent installment) and
     days-in-management (collector assignment date)
  2. Apply daily interest; accumulate run totals
  3. Age Pending installments past their due date into Overdue
  4. If the debt is WithAgreement and the agreement has expired, move it back
     to InManagement - but only when the graph says that edge is legal
  5. Recompute aggregate totals
  6. Persist the debt

  The run produces a summary with per-debt change descriptions; that log is
  the audit trail tests assert against.

FAILURE MODE:
  Debts are processed independently and sequentially, but a repository or
  validator error aborts the remainder of the batch; the summary returned
  alongside the error shows how far the run got.

SEE ALSO:
  - interest.go: The composed accrual and aging operations
  - api/scheduler.go: The in-process timer driving this
*/
package collections

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SUMMARY - The run's audit trail
// =============================================================================

// DebtChangeLog lists human-readable change descriptions for one debt.
type DebtChangeLog struct {
	DebtID  string
	Changes []string
}

type DailyUpdateSummary struct {
	ReferenceDate time.Time

	DebtsProcessed        int
	DebtsWithInterest     int
	DebtsWithStateChanged int
	MoratoryInterestTotal decimal.Decimal
	PunitiveInterestTotal decimal.Decimal

	ChangeLog []DebtChangeLog
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

type DailyUpdateService struct {
	Debts     DebtRepository
	Validator *TransitionValidator
}

// Run sweeps every debt returned by the repository's daily-update selection.
// A zero reference date means now.
func (ds *DailyUpdateService) Run(ctx context.Context, referenceDate time.Time) (*DailyUpdateSummary, error) {
	if referenceDate.IsZero() {
		referenceDate = time.Now()
	}

	summary := &DailyUpdateSummary{
		ReferenceDate:         referenceDate,
		MoratoryInterestTotal: decimal.Zero,
		PunitiveInterestTotal: decimal.Zero,
	}

	debts, err := ds.Debts.ListForDailyUpdate(ctx)
	if err != nil {
		return summary, err
	}

	for _, debt := range debts {
		entry := DebtChangeLog{DebtID: debt.ID}

		// 1. Refresh the day counters.
		if oldest := debt.OldestDelinquentDueDate(referenceDate); oldest != nil {
			days := DaysBetween(*oldest, referenceDate)
			if days < 0 {
				days = 0
			}
			if days != debt.DaysOverdue {
				entry.Changes = append(entry.Changes,
					fmt.Sprintf("days overdue: %d -> %d", debt.DaysOverdue, days))
				debt.DaysOverdue = days
			}
		} else if debt.DaysOverdue != 0 {
			entry.Changes = append(entry.Changes,
				fmt.Sprintf("days overdue: %d -> 0", debt.DaysOverdue))
			debt.DaysOverdue = 0
		}

		if debt.CollectorAssignedAt != nil {
			days := DaysBetween(*debt.CollectorAssignedAt, referenceDate)
			if days < 0 {
				days = 0
			}
			debt.DaysInManagement = days
		}

		// 2. Apply daily interest.
		updated, applied := ApplyDailyInterest(debt, referenceDate)
		if !applied.IsZero() {
			debt.ReplaceInstallments(updated)
			summary.DebtsWithInterest++
			summary.MoratoryInterestTotal = summary.MoratoryInterestTotal.Add(applied.Moratory)
			summary.PunitiveInterestTotal = summary.PunitiveInterestTotal.Add(applied.Punitive)
			entry.Changes = append(entry.Changes,
				fmt.Sprintf("interest applied: moratory %s, punitive %s",
					applied.Moratory.StringFixed(4), applied.Punitive.StringFixed(4)))
		}

		// 3. Age pending installments past their due date.
		aged := UpdateInstallmentStatesByDueDate(debt.Installments, referenceDate)
		agedCount := 0
		for i := range aged {
			if aged[i].State != debt.Installments[i].State {
				agedCount++
			}
		}
		debt.Installments = aged
		if agedCount > 0 {
			entry.Changes = append(entry.Changes,
				fmt.Sprintf("%d installment(s) moved to overdue", agedCount))
		}

		// 4. Expired agreement falls back to management, graph permitting.
		if debt.State == StateWithAgreement &&
			debt.AgreementExpiration != nil &&
			DayOf(*debt.AgreementExpiration).Before(DayOf(referenceDate)) {

			check, err := ds.Validator.Validate(ctx, StateWithAgreement, StateInManagement)
			if err != nil {
				return summary, err
			}
			if check.Allowed {
				debt.State = StateInManagement
				summary.DebtsWithStateChanged++
				entry.Changes = append(entry.Changes,
					fmt.Sprintf("agreement expired: state %s -> %s", StateWithAgreement, StateInManagement))
			}
		}

		// 5. Refresh the aggregate totals.
		debt.RecalculateTotals()

		// 6. Persist.
		if err := ds.Debts.SaveDebt(ctx, debt); err != nil {
			return summary, err
		}

		summary.DebtsProcessed++
		if len(entry.Changes) > 0 {
			summary.ChangeLog = append(summary.ChangeLog, entry)
		}
	}

	return summary, nil
}
