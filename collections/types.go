/*
Package collections provides the core debt-collection engine.

PURPOSE:
  This package contains the domain types and algorithms that govern how a
  debt's state may change, who must authorize that change, and how daily
  interest accrues. Everything else (HTTP, persistence mapping, UI) is an
  adapter around this package.

KEY CONCEPTS IN THIS FILE (types.go):
  - Debt: The aggregate tracking a collectable obligation and its state
  - Installment: One scheduled payment slice with its own aging state
  - FollowUp: A logged collector action against one or more debts
  - Supervisor: An approver in the authorization workflow
  - RequestPriority: Low/Medium/High, derived from the debt total

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for all money and rates
  2. Immutable installment updates: accrual/aging return NEW values
  3. Smart constructors: invalid aggregates are rejected at creation
  4. No I/O here: repositories are injected interfaces (see store.go)

SEE ALSO:
  - interest.go: Daily accrual and installment aging
  - rules.go: Transition-rule selection
  - followup.go / dailyupdate.go: The two orchestration flows
*/
package collections

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DEBT STATE - Lifecycle of a collectable obligation
// =============================================================================

type DebtState string

const (
	StateNew           DebtState = "new"
	StateInManagement  DebtState = "in_management"
	StateWithAgreement DebtState = "with_agreement"
	StateCancelled     DebtState = "cancelled"
	StateUncollectible DebtState = "uncollectible"
	StateJudicialized  DebtState = "judicialized"
	StateDeceased      DebtState = "deceased"
	StateSuspended     DebtState = "suspended"
)

// AllDebtStates lists every valid state, used for input validation.
var AllDebtStates = []DebtState{
	StateNew, StateInManagement, StateWithAgreement, StateCancelled,
	StateUncollectible, StateJudicialized, StateDeceased, StateSuspended,
}

func (s DebtState) Valid() bool {
	for _, st := range AllDebtStates {
		if s == st {
			return true
		}
	}
	return false
}

// =============================================================================
// INSTALLMENT - One scheduled payment slice
// =============================================================================

type InstallmentState string

const (
	InstallmentPending        InstallmentState = "pending"
	InstallmentOverdue        InstallmentState = "overdue"
	InstallmentPaid           InstallmentState = "paid"
	InstallmentUnderAgreement InstallmentState = "under_agreement"
)

// Installment is a value object: accrual and aging never mutate it in place,
// they return a replacement (see interest.go).
type Installment struct {
	ID                      string
	Number                  int
	DueDate                 time.Time
	OriginalPrincipal       decimal.Decimal
	OutstandingPrincipal    decimal.Decimal
	AccruedMoratoryInterest decimal.Decimal
	AccruedPunitiveInterest decimal.Decimal
	State                   InstallmentState
	LastPaymentDate         *time.Time
	ScheduledAmount         *decimal.Decimal
}

// Delinquent reports whether the installment counts toward days-overdue and
// interest accrual at the reference date: Overdue outright, or Pending with
// a due date already in the past.
func (i Installment) Delinquent(ref time.Time) bool {
	switch i.State {
	case InstallmentOverdue:
		return true
	case InstallmentPending:
		return DayOf(i.DueDate).Before(DayOf(ref))
	default:
		return false
	}
}

// =============================================================================
// DEBT - The aggregate
// =============================================================================

type Debt struct {
	ID                  string
	CreditorID          string
	SubjectID           string
	State               DebtState
	AssignedCollectorID *string

	DaysOverdue      int
	DaysInManagement int

	OutstandingPrincipalTotal decimal.Decimal
	TotalDebt                 decimal.Decimal
	CollectionCosts           decimal.Decimal
	MoratoryInterestTotal     decimal.Decimal
	PunitiveInterestTotal     decimal.Decimal

	// Annual percentage rates. Nil means that interest kind does not accrue.
	MoratoryAnnualRate *decimal.Decimal
	PunitiveAnnualRate *decimal.Decimal

	AgreementExpiration *time.Time
	CollectorAssignedAt *time.Time

	Installments []Installment
}

// NewDebt is the smart constructor: a Debt enters the system in StateNew with
// zero aggregates, and malformed input is rejected here rather than later.
func NewDebt(id, creditorID, subjectID string, installments []Installment) (*Debt, error) {
	if id == "" {
		return nil, errors.New("debt id is required")
	}
	if creditorID == "" {
		return nil, errors.New("creditor id is required")
	}
	if subjectID == "" {
		return nil, errors.New("subject id is required")
	}
	for _, inst := range installments {
		if inst.OriginalPrincipal.IsNegative() || inst.OutstandingPrincipal.IsNegative() {
			return nil, errors.New("installment principal cannot be negative")
		}
	}

	d := &Debt{
		ID:           id,
		CreditorID:   creditorID,
		SubjectID:    subjectID,
		State:        StateNew,
		Installments: installments,
	}
	d.RecalculateTotals()
	return d, nil
}

// RecalculateTotals enforces the aggregate invariant:
//
//	TotalDebt = sum over {pending, overdue} installments of
//	            (outstanding principal + accrued moratory + accrued punitive)
//	            + collection costs
//
// It also refreshes the per-kind interest totals and the outstanding
// principal total.
func (d *Debt) RecalculateTotals() {
	principal := decimal.Zero
	moratory := decimal.Zero
	punitive := decimal.Zero

	for _, inst := range d.Installments {
		if inst.State != InstallmentPending && inst.State != InstallmentOverdue {
			continue
		}
		principal = principal.Add(inst.OutstandingPrincipal)
		moratory = moratory.Add(inst.AccruedMoratoryInterest)
		punitive = punitive.Add(inst.AccruedPunitiveInterest)
	}

	d.OutstandingPrincipalTotal = principal
	d.MoratoryInterestTotal = moratory
	d.PunitiveInterestTotal = punitive
	d.TotalDebt = principal.Add(moratory).Add(punitive).Add(d.CollectionCosts)
}

// ReplaceInstallments swaps in updated installment values by ID, leaving
// untouched installments in place. Positions are preserved.
func (d *Debt) ReplaceInstallments(updated []Installment) {
	if len(updated) == 0 {
		return
	}
	byID := make(map[string]Installment, len(updated))
	for _, inst := range updated {
		byID[inst.ID] = inst
	}
	for i, inst := range d.Installments {
		if repl, ok := byID[inst.ID]; ok {
			d.Installments[i] = repl
		}
	}
}

// OldestDelinquentDueDate returns the due date of the oldest installment that
// is Overdue or past-due Pending at the reference date, or nil if none.
func (d *Debt) OldestDelinquentDueDate(ref time.Time) *time.Time {
	var oldest *time.Time
	for _, inst := range d.Installments {
		if !inst.Delinquent(ref) {
			continue
		}
		due := inst.DueDate
		if oldest == nil || due.Before(*oldest) {
			oldest = &due
		}
	}
	return oldest
}

// =============================================================================
// FOLLOW-UP - A logged collector action
// =============================================================================

// FollowUp is created once per orchestration call, regardless of how many
// debts it covers, and is immutable thereafter.
type FollowUp struct {
	ID               string
	CollectorID      string
	SubjectID        string
	ManagementTypeID string
	OccurredAt       time.Time
	Note             string
	NeedsFollowUp    bool
	NextFollowUpAt   *time.Time
}

// =============================================================================
// SUPERVISOR - Approver in the authorization workflow
// =============================================================================

type Supervisor struct {
	ID     string
	Name   string
	Email  string
	Active bool
}

// =============================================================================
// REQUEST PRIORITY - Derived from the debt total at request creation
// =============================================================================

type RequestPriority string

const (
	PriorityLow    RequestPriority = "low"
	PriorityMedium RequestPriority = "medium"
	PriorityHigh   RequestPriority = "high"
)

var (
	highPriorityThreshold = decimal.NewFromInt(100000)
	lowPriorityThreshold  = decimal.NewFromInt(10000)
)

// PriorityForAmount maps a debt total to a request priority:
// above 100,000 is High, below 10,000 is Low, everything else Medium.
func PriorityForAmount(total decimal.Decimal) RequestPriority {
	switch {
	case total.GreaterThan(highPriorityThreshold):
		return PriorityHigh
	case total.LessThan(lowPriorityThreshold):
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// =============================================================================
// TIME HELPERS - Day-granularity arithmetic
// =============================================================================

// DayOf truncates a timestamp to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns whole days from one calendar day to another.
// Negative when `to` precedes `from`.
func DaysBetween(from, to time.Time) int {
	return int(DayOf(to).Sub(DayOf(from)).Hours() / 24)
}
