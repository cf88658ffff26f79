/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY AT THE EDGE:
  Domain money is decimal.Decimal. The API renders it as JSON strings
  (exact) so clients never see float drift; day counts stay plain ints.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - collections/: The domain types these mirror
*/
package api

import (
	"time"

	"github.com/warp/collections-engine/collections"
	"github.com/warp/collections-engine/store/sqlite"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// InstallmentDTO represents one payment slice of a debt.
type InstallmentDTO struct {
	ID                      string  `json:"id"`
	Number                  int     `json:"number"`
	DueDate                 string  `json:"due_date"`
	OriginalPrincipal       string  `json:"original_principal"`
	OutstandingPrincipal    string  `json:"outstanding_principal"`
	AccruedMoratoryInterest string  `json:"accrued_moratory_interest"`
	AccruedPunitiveInterest string  `json:"accrued_punitive_interest"`
	State                   string  `json:"state"`
	LastPaymentDate         *string `json:"last_payment_date,omitempty"`
	ScheduledAmount         *string `json:"scheduled_amount,omitempty"`
}

// DebtDTO represents a debt in API responses.
type DebtDTO struct {
	ID                        string           `json:"id"`
	CreditorID                string           `json:"creditor_id"`
	SubjectID                 string           `json:"subject_id"`
	State                     string           `json:"state"`
	AssignedCollectorID       *string          `json:"assigned_collector_id,omitempty"`
	DaysOverdue               int              `json:"days_overdue"`
	DaysInManagement          int              `json:"days_in_management"`
	OutstandingPrincipalTotal string           `json:"outstanding_principal_total"`
	TotalDebt                 string           `json:"total_debt"`
	CollectionCosts           string           `json:"collection_costs"`
	MoratoryInterestTotal     string           `json:"moratory_interest_total"`
	PunitiveInterestTotal     string           `json:"punitive_interest_total"`
	MoratoryAnnualRate        *string          `json:"moratory_annual_rate,omitempty"`
	PunitiveAnnualRate        *string          `json:"punitive_annual_rate,omitempty"`
	AgreementExpiration       *string          `json:"agreement_expiration,omitempty"`
	Installments              []InstallmentDTO `json:"installments"`
}

// CreateFollowUpRequest is the request body for a collector follow-up.
type CreateFollowUpRequest struct {
	CollectorID      string   `json:"collector_id"`
	SubjectID        string   `json:"subject_id"`
	DebtIDs          []string `json:"debt_ids"`
	ManagementTypeID string   `json:"management_type_id"`
	Note             string   `json:"note,omitempty"`
	NextFollowUpAt   *string  `json:"next_follow_up_at,omitempty"` // RFC3339
}

// DebtOutcomeDTO is the per-debt result of a follow-up.
type DebtOutcomeDTO struct {
	DebtID                    string `json:"debt_id"`
	PreviousState             string `json:"previous_state"`
	NewState                  string `json:"new_state"`
	AuthorizationPending      bool   `json:"authorization_pending"`
	EdgeRequiresAuthorization bool   `json:"edge_requires_authorization"`
}

// FollowUpResponseDTO is the response after submitting a follow-up.
type FollowUpResponseDTO struct {
	FollowUpID string                    `json:"follow_up_id"`
	Outcomes   []DebtOutcomeDTO          `json:"outcomes"`
	Requests   []AuthorizationRequestDTO `json:"authorization_requests,omitempty"`
}

// AuthorizationRequestDTO represents an authorization request.
type AuthorizationRequestDTO struct {
	ID                    string  `json:"id"`
	FollowUpID            string  `json:"follow_up_id"`
	DebtID                string  `json:"debt_id"`
	OriginState           string  `json:"origin_state"`
	DestinationState      string  `json:"destination_state"`
	RequestingCollectorID string  `json:"requesting_collector_id"`
	AssignedSupervisorID  *string `json:"assigned_supervisor_id,omitempty"`
	Status                string  `json:"status"`
	Priority              string  `json:"priority"`
	RequestedAt           string  `json:"requested_at"`
	ResolvedAt            *string `json:"resolved_at,omitempty"`
	RequesterComment      string  `json:"requester_comment,omitempty"`
	SupervisorComment     string  `json:"supervisor_comment,omitempty"`
}

// ResolveRequestDTO is the request body for a supervisor decision.
type ResolveRequestDTO struct {
	SupervisorID string `json:"supervisor_id"`
	Approve      bool   `json:"approve"`
	Comment      string `json:"comment,omitempty"`
}

// ResolutionResponseDTO is the response after resolving a request.
type ResolutionResponseDTO struct {
	RequestID    string  `json:"request_id"`
	Status       string  `json:"status"`
	DebtUpdated  bool    `json:"debt_updated"`
	NewDebtState *string `json:"new_debt_state,omitempty"`
}

// DailyUpdateRequestDTO triggers a manual daily update run.
type DailyUpdateRequestDTO struct {
	ReferenceDate *string `json:"reference_date,omitempty"` // ISO date; nil = today
}

// DailyUpdateSummaryDTO is the result of a daily update run.
type DailyUpdateSummaryDTO struct {
	ReferenceDate         string             `json:"reference_date"`
	DebtsProcessed        int                `json:"debts_processed"`
	DebtsWithInterest     int                `json:"debts_with_interest"`
	DebtsWithStateChanged int                `json:"debts_with_state_changed"`
	MoratoryInterestTotal string             `json:"moratory_interest_total"`
	PunitiveInterestTotal string             `json:"punitive_interest_total"`
	ChangeLog             []DebtChangeLogDTO `json:"change_log,omitempty"`
}

// DebtChangeLogDTO lists what changed for one debt during a run.
type DebtChangeLogDTO struct {
	DebtID  string   `json:"debt_id"`
	Changes []string `json:"changes"`
}

// DailyRunDTO is an audit record of a past daily update run.
type DailyRunDTO struct {
	ID                    string  `json:"id"`
	ReferenceDate         string  `json:"reference_date"`
	Status                string  `json:"status"`
	DebtsProcessed        int     `json:"debts_processed"`
	DebtsWithInterest     int     `json:"debts_with_interest"`
	DebtsWithStateChanged int     `json:"debts_with_state_changed"`
	MoratoryInterestTotal string  `json:"moratory_interest_total"`
	PunitiveInterestTotal string  `json:"punitive_interest_total"`
	Error                 string  `json:"error,omitempty"`
	StartedAt             string  `json:"started_at"`
	CompletedAt           *string `json:"completed_at,omitempty"`
}

// TransitionEdgeDTO represents one edge of the allowed-transition graph.
type TransitionEdgeDTO struct {
	Origin                string `json:"origin"`
	Destination           string `json:"destination"`
	RequiresAuthorization bool   `json:"requires_authorization"`
	Description           string `json:"description,omitempty"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toInstallmentDTO(inst collections.Installment) InstallmentDTO {
	dto := InstallmentDTO{
		ID:                      inst.ID,
		Number:                  inst.Number,
		DueDate:                 inst.DueDate.Format("2006-01-02"),
		OriginalPrincipal:       inst.OriginalPrincipal.String(),
		OutstandingPrincipal:    inst.OutstandingPrincipal.String(),
		AccruedMoratoryInterest: inst.AccruedMoratoryInterest.String(),
		AccruedPunitiveInterest: inst.AccruedPunitiveInterest.String(),
		State:                   string(inst.State),
	}
	if inst.LastPaymentDate != nil {
		s := inst.LastPaymentDate.Format("2006-01-02")
		dto.LastPaymentDate = &s
	}
	if inst.ScheduledAmount != nil {
		s := inst.ScheduledAmount.String()
		dto.ScheduledAmount = &s
	}
	return dto
}

func toDebtDTO(d *collections.Debt) DebtDTO {
	dto := DebtDTO{
		ID:                        d.ID,
		CreditorID:                d.CreditorID,
		SubjectID:                 d.SubjectID,
		State:                     string(d.State),
		AssignedCollectorID:       d.AssignedCollectorID,
		DaysOverdue:               d.DaysOverdue,
		DaysInManagement:          d.DaysInManagement,
		OutstandingPrincipalTotal: d.OutstandingPrincipalTotal.String(),
		TotalDebt:                 d.TotalDebt.String(),
		CollectionCosts:           d.CollectionCosts.String(),
		MoratoryInterestTotal:     d.MoratoryInterestTotal.String(),
		PunitiveInterestTotal:     d.PunitiveInterestTotal.String(),
		Installments:              make([]InstallmentDTO, 0, len(d.Installments)),
	}
	if d.MoratoryAnnualRate != nil {
		s := d.MoratoryAnnualRate.String()
		dto.MoratoryAnnualRate = &s
	}
	if d.PunitiveAnnualRate != nil {
		s := d.PunitiveAnnualRate.String()
		dto.PunitiveAnnualRate = &s
	}
	if d.AgreementExpiration != nil {
		s := d.AgreementExpiration.Format("2006-01-02")
		dto.AgreementExpiration = &s
	}
	for _, inst := range d.Installments {
		dto.Installments = append(dto.Installments, toInstallmentDTO(inst))
	}
	return dto
}

func toRequestDTO(r *collections.AuthorizationRequest) AuthorizationRequestDTO {
	dto := AuthorizationRequestDTO{
		ID:                    r.ID,
		FollowUpID:            r.FollowUpID,
		DebtID:                r.DebtID,
		OriginState:           string(r.OriginState),
		DestinationState:      string(r.DestinationState),
		RequestingCollectorID: r.RequestingCollectorID,
		AssignedSupervisorID:  r.AssignedSupervisorID,
		Status:                string(r.Status),
		Priority:              string(r.Priority),
		RequestedAt:           r.RequestedAt.Format(time.RFC3339),
		RequesterComment:      r.RequesterComment,
		SupervisorComment:     r.SupervisorComment,
	}
	if r.ResolvedAt != nil {
		s := r.ResolvedAt.Format(time.RFC3339)
		dto.ResolvedAt = &s
	}
	return dto
}

func toRequestDTOs(rs []*collections.AuthorizationRequest) []AuthorizationRequestDTO {
	dtos := make([]AuthorizationRequestDTO, len(rs))
	for i, r := range rs {
		dtos[i] = toRequestDTO(r)
	}
	return dtos
}

func toSummaryDTO(s *collections.DailyUpdateSummary) DailyUpdateSummaryDTO {
	dto := DailyUpdateSummaryDTO{
		ReferenceDate:         s.ReferenceDate.Format("2006-01-02"),
		DebtsProcessed:        s.DebtsProcessed,
		DebtsWithInterest:     s.DebtsWithInterest,
		DebtsWithStateChanged: s.DebtsWithStateChanged,
		MoratoryInterestTotal: s.MoratoryInterestTotal.String(),
		PunitiveInterestTotal: s.PunitiveInterestTotal.String(),
	}
	for _, entry := range s.ChangeLog {
		dto.ChangeLog = append(dto.ChangeLog, DebtChangeLogDTO{DebtID: entry.DebtID, Changes: entry.Changes})
	}
	return dto
}

func toDailyRunDTO(run sqlite.DailyRunRecord) DailyRunDTO {
	dto := DailyRunDTO{
		ID:                    run.ID,
		ReferenceDate:         run.ReferenceDate.Format("2006-01-02"),
		Status:                run.Status,
		DebtsProcessed:        run.DebtsProcessed,
		DebtsWithInterest:     run.DebtsWithInterest,
		DebtsWithStateChanged: run.DebtsWithStateChanged,
		MoratoryInterestTotal: run.MoratoryInterestTotal.String(),
		PunitiveInterestTotal: run.PunitiveInterestTotal.String(),
		Error:                 run.Error,
		StartedAt:             run.StartedAt.Format(time.RFC3339),
	}
	if run.CompletedAt != nil {
		s := run.CompletedAt.Format(time.RFC3339)
		dto.CompletedAt = &s
	}
	return dto
}
