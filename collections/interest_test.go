package collections_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/collections-engine/collections"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decP(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func overdueInstallment(id string, principal string, dueDate time.Time) collections.Installment {
	return collections.Installment{
		ID:                      id,
		Number:                  1,
		DueDate:                 dueDate,
		OriginalPrincipal:       dec(principal),
		OutstandingPrincipal:    dec(principal),
		AccruedMoratoryInterest: decimal.Zero,
		AccruedPunitiveInterest: decimal.Zero,
		State:                   collections.InstallmentOverdue,
	}
}

// =============================================================================
// DAILY INTEREST CALCULATION
// =============================================================================

func TestCalculateDailyInterest_TenDaysOverdue(t *testing.T) {
	// GIVEN: 1000 outstanding, 10% moratory, 5% punitive, due 10 days ago
	// WHEN: Interest is calculated
	// THEN: moratory = 1000*10*10/36500 = 2.7397, punitive = 1.3699

	ref := day(2026, time.March, 11)
	inst := overdueInstallment("i-1", "1000", day(2026, time.March, 1))

	result := collections.CalculateDailyInterest(inst, decP("10"), decP("5"), ref)

	if result.DaysOverdue != 10 {
		t.Errorf("expected 10 days overdue, got %d", result.DaysOverdue)
	}
	if got := result.Moratory.StringFixed(4); got != "2.7397" {
		t.Errorf("expected moratory 2.7397, got %s", got)
	}
	if got := result.Punitive.StringFixed(4); got != "1.3699" {
		t.Errorf("expected punitive 1.3699, got %s", got)
	}
}

func TestCalculateDailyInterest_SubtractsAlreadyAccrued(t *testing.T) {
	// GIVEN: Same installment but 1.00 moratory and 0.50 punitive already recorded
	// WHEN: Interest is calculated
	// THEN: Only the unrecorded remainder is applied

	ref := day(2026, time.March, 11)
	inst := overdueInstallment("i-1", "1000", day(2026, time.March, 1))
	inst.AccruedMoratoryInterest = dec("1.0")
	inst.AccruedPunitiveInterest = dec("0.5")

	result := collections.CalculateDailyInterest(inst, decP("10"), decP("5"), ref)

	if got := result.Moratory.StringFixed(4); got != "1.7397" {
		t.Errorf("expected moratory 1.7397, got %s", got)
	}
	if got := result.Punitive.StringFixed(4); got != "0.8699" {
		t.Errorf("expected punitive 0.8699, got %s", got)
	}
}

func TestCalculateDailyInterest_ClampsAtZero(t *testing.T) {
	// GIVEN: Accrued interest already exceeds the theoretical total to date
	// WHEN: Interest is calculated
	// THEN: Zero is applied, never a negative correction

	ref := day(2026, time.March, 11)
	inst := overdueInstallment("i-1", "1000", day(2026, time.March, 1))
	inst.AccruedMoratoryInterest = dec("50")

	result := collections.CalculateDailyInterest(inst, decP("10"), nil, ref)

	if !result.Moratory.IsZero() {
		t.Errorf("expected zero moratory, got %s", result.Moratory)
	}
}

func TestCalculateDailyInterest_ExcludedStates(t *testing.T) {
	// GIVEN: Paid and under-agreement installments past their due date
	// WHEN: Interest is calculated
	// THEN: Both accrue nothing

	ref := day(2026, time.March, 11)
	for _, state := range []collections.InstallmentState{
		collections.InstallmentPaid,
		collections.InstallmentUnderAgreement,
	} {
		inst := overdueInstallment("i-1", "1000", day(2026, time.March, 1))
		inst.State = state

		result := collections.CalculateDailyInterest(inst, decP("10"), decP("5"), ref)
		if !result.IsZero() {
			t.Errorf("state %s: expected zero interest, got moratory=%s punitive=%s",
				state, result.Moratory, result.Punitive)
		}
	}
}

func TestCalculateDailyInterest_NotYetDue(t *testing.T) {
	// GIVEN: A pending installment due in the future
	// WHEN: Interest is calculated
	// THEN: Nothing accrues

	ref := day(2026, time.March, 11)
	inst := overdueInstallment("i-1", "1000", day(2026, time.April, 1))
	inst.State = collections.InstallmentPending

	result := collections.CalculateDailyInterest(inst, decP("10"), decP("5"), ref)
	if !result.IsZero() {
		t.Errorf("expected zero interest, got moratory=%s", result.Moratory)
	}
}

func TestCalculateDailyInterest_NilRates(t *testing.T) {
	// GIVEN: No rates configured on the debt
	// WHEN: Interest is calculated for an overdue installment
	// THEN: Both kinds are zero

	ref := day(2026, time.March, 11)
	inst := overdueInstallment("i-1", "1000", day(2026, time.March, 1))

	result := collections.CalculateDailyInterest(inst, nil, nil, ref)
	if !result.IsZero() {
		t.Errorf("expected zero interest without rates, got moratory=%s", result.Moratory)
	}
}

func TestCalculateDailyInterest_PendingPastDue(t *testing.T) {
	// GIVEN: A Pending installment whose due date has passed but which has not
	//        been aged to Overdue yet
	// WHEN: Interest is calculated
	// THEN: It accrues exactly like an Overdue installment

	ref := day(2026, time.March, 11)
	inst := overdueInstallment("i-1", "1000", day(2026, time.March, 1))
	inst.State = collections.InstallmentPending

	result := collections.CalculateDailyInterest(inst, decP("10"), nil, ref)
	if got := result.Moratory.StringFixed(4); got != "2.7397" {
		t.Errorf("expected moratory 2.7397, got %s", got)
	}
}

// =============================================================================
// PER-DEBT APPLICATION
// =============================================================================

func TestApplyDailyInterest_SameDayRerunIsIdempotent(t *testing.T) {
	// GIVEN: A debt whose accrual has already run for the reference date
	// WHEN: The accrual runs again with the same date
	// THEN: The second run applies nothing

	ref := day(2026, time.March, 11)
	debt, err := collections.NewDebt("d-1", "c-1", "s-1", []collections.Installment{
		overdueInstallment("i-1", "1000", day(2026, time.March, 1)),
	})
	if err != nil {
		t.Fatalf("NewDebt: %v", err)
	}
	debt.MoratoryAnnualRate = decP("10")

	updated, first := collections.ApplyDailyInterest(debt, ref)
	if first.IsZero() {
		t.Fatal("first run should apply interest")
	}
	debt.ReplaceInstallments(updated)

	_, second := collections.ApplyDailyInterest(debt, ref)
	if !second.IsZero() {
		t.Errorf("second run should apply nothing, got moratory=%s", second.Moratory)
	}
}

func TestApplyDailyInterest_AdvancingDateAccruesIncrementally(t *testing.T) {
	// GIVEN: A debt accrued through day 10
	// WHEN: The accrual runs again at day 20
	// THEN: Exactly the additional 10 days of interest is applied

	debt, err := collections.NewDebt("d-1", "c-1", "s-1", []collections.Installment{
		overdueInstallment("i-1", "1000", day(2026, time.March, 1)),
	})
	if err != nil {
		t.Fatalf("NewDebt: %v", err)
	}
	debt.MoratoryAnnualRate = decP("10")

	updated, _ := collections.ApplyDailyInterest(debt, day(2026, time.March, 11))
	debt.ReplaceInstallments(updated)

	_, second := collections.ApplyDailyInterest(debt, day(2026, time.March, 21))
	if got := second.Moratory.StringFixed(4); got != "2.7397" {
		t.Errorf("expected incremental moratory 2.7397, got %s", got)
	}
}

func TestApplyDailyInterest_OnlyChangedInstallmentsReturned(t *testing.T) {
	// GIVEN: One overdue and one future-pending installment
	// WHEN: The accrual runs
	// THEN: Only the overdue installment appears in the update set

	ref := day(2026, time.March, 11)
	future := overdueInstallment("i-2", "500", day(2026, time.June, 1))
	future.State = collections.InstallmentPending

	debt, err := collections.NewDebt("d-1", "c-1", "s-1", []collections.Installment{
		overdueInstallment("i-1", "1000", day(2026, time.March, 1)),
		future,
	})
	if err != nil {
		t.Fatalf("NewDebt: %v", err)
	}
	debt.MoratoryAnnualRate = decP("10")

	updated, _ := collections.ApplyDailyInterest(debt, ref)
	if len(updated) != 1 {
		t.Fatalf("expected 1 updated installment, got %d", len(updated))
	}
	if updated[0].ID != "i-1" {
		t.Errorf("expected i-1 updated, got %s", updated[0].ID)
	}
}

// =============================================================================
// INSTALLMENT AGING
// =============================================================================

func TestUpdateInstallmentStatesByDueDate(t *testing.T) {
	// GIVEN: Installments pending-past-due, pending-due-today, pending-future,
	//        and one already paid
	// WHEN: Aging runs
	// THEN: Only the past-due pending installment moves to overdue

	ref := day(2026, time.March, 11)

	pastDue := overdueInstallment("i-1", "100", day(2026, time.March, 1))
	pastDue.State = collections.InstallmentPending
	dueToday := overdueInstallment("i-2", "100", day(2026, time.March, 11))
	dueToday.State = collections.InstallmentPending
	future := overdueInstallment("i-3", "100", day(2026, time.April, 1))
	future.State = collections.InstallmentPending
	paid := overdueInstallment("i-4", "100", day(2026, time.January, 1))
	paid.State = collections.InstallmentPaid

	aged := collections.UpdateInstallmentStatesByDueDate(
		[]collections.Installment{pastDue, dueToday, future, paid}, ref)

	want := []collections.InstallmentState{
		collections.InstallmentOverdue,
		collections.InstallmentPending,
		collections.InstallmentPending,
		collections.InstallmentPaid,
	}
	for i, st := range want {
		if aged[i].State != st {
			t.Errorf("installment %d: expected %s, got %s", i, st, aged[i].State)
		}
	}
}

// =============================================================================
// AGGREGATE TOTALS
// =============================================================================

func TestRecalculateTotals(t *testing.T) {
	// GIVEN: Pending, overdue and paid installments plus collection costs
	// WHEN: Totals are recalculated
	// THEN: Paid principal is excluded and interest folds into the total

	overdue := overdueInstallment("i-1", "1000", day(2026, time.March, 1))
	overdue.AccruedMoratoryInterest = dec("2.5")
	overdue.AccruedPunitiveInterest = dec("1.5")
	pending := overdueInstallment("i-2", "500", day(2026, time.June, 1))
	pending.State = collections.InstallmentPending
	paid := overdueInstallment("i-3", "300", day(2026, time.January, 1))
	paid.State = collections.InstallmentPaid

	debt, err := collections.NewDebt("d-1", "c-1", "s-1",
		[]collections.Installment{overdue, pending, paid})
	if err != nil {
		t.Fatalf("NewDebt: %v", err)
	}
	debt.CollectionCosts = dec("25")
	debt.RecalculateTotals()

	if got := debt.OutstandingPrincipalTotal.String(); got != "1500" {
		t.Errorf("expected principal total 1500, got %s", got)
	}
	if got := debt.MoratoryInterestTotal.String(); got != "2.5" {
		t.Errorf("expected moratory total 2.5, got %s", got)
	}
	if got := debt.TotalDebt.String(); got != "1529" {
		t.Errorf("expected total debt 1529, got %s", got)
	}
}

func TestNewDebt_RejectsNegativePrincipal(t *testing.T) {
	// GIVEN: An installment with negative outstanding principal
	// WHEN: The debt is constructed
	// THEN: Construction fails

	bad := overdueInstallment("i-1", "100", day(2026, time.March, 1))
	bad.OutstandingPrincipal = dec("-1")

	if _, err := collections.NewDebt("d-1", "c-1", "s-1", []collections.Installment{bad}); err == nil {
		t.Error("expected error for negative principal")
	}
}

func TestOldestDelinquentDueDate(t *testing.T) {
	// GIVEN: Two delinquent installments and one future one
	// WHEN: The oldest delinquent due date is queried
	// THEN: The earliest past due date is returned

	ref := day(2026, time.March, 11)
	older := overdueInstallment("i-1", "100", day(2026, time.January, 5))
	newer := overdueInstallment("i-2", "100", day(2026, time.February, 5))
	future := overdueInstallment("i-3", "100", day(2026, time.June, 5))
	future.State = collections.InstallmentPending

	debt, err := collections.NewDebt("d-1", "c-1", "s-1",
		[]collections.Installment{newer, older, future})
	if err != nil {
		t.Fatalf("NewDebt: %v", err)
	}

	oldest := debt.OldestDelinquentDueDate(ref)
	if oldest == nil {
		t.Fatal("expected a delinquent due date")
	}
	if !oldest.Equal(day(2026, time.January, 5)) {
		t.Errorf("expected 2026-01-05, got %v", oldest)
	}
}
