/*
dto.go - Request/response data structures

PURPOSE:
  JSON shapes for the HTTP API. DTOs are separate from domain types so the
  wire format can stay stable while internals evolve. Dates travel as
  "YYYY-MM-DD" strings, amounts as integer minutes.
*/
package api

import (
	"github.com/avincentLoyco/yalty-backend-sub001/engine"
)

// =============================================================================
// REQUESTS
// =============================================================================

type AssignmentRequest struct {
	EmployeeID     string  `json:"employee_id"`
	ResourceKind   string  `json:"resource_kind"`
	ResourceID     string  `json:"resource_id"`
	CategoryID     string  `json:"category_id,omitempty"`
	EffectiveAt    string  `json:"effective_at"`
	OccupationRate float64 `json:"occupation_rate,omitempty"`
}

type BalanceEntryRequest struct {
	CategoryID     string `json:"category_id"`
	AccountID      string `json:"account_id,omitempty"`
	AssignmentID   string `json:"assignment_id,omitempty"`
	PolicyID       string `json:"policy_id,omitempty"`
	Kind           string `json:"kind"`
	EffectiveAt    string `json:"effective_at"`
	ValidityDate   string `json:"validity_date,omitempty"`
	ResourceAmount *int64 `json:"resource_amount,omitempty"`
	ManualAmount   *int64 `json:"manual_amount,omitempty"`
	TimeOffID      string `json:"time_off_id,omitempty"`
}

type ContractEndRequest struct {
	ContractEndDate    string `json:"contract_end_date"`
	OldContractEndDate string `json:"old_contract_end_date,omitempty"`
	// NextHireDate bounds the truncation when a rehire already exists.
	NextHireDate string `json:"next_hire_date,omitempty"`
}

type RehireRequest struct {
	HireDate string `json:"hire_date"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type AssignmentDTO struct {
	ID             string `json:"id"`
	EmployeeID     string `json:"employee_id"`
	ResourceKind   string `json:"resource_kind"`
	ResourceID     string `json:"resource_id"`
	CategoryID     string `json:"category_id,omitempty"`
	EffectiveAt    string `json:"effective_at"`
	EffectiveTill  string `json:"effective_till,omitempty"`
	Reset          bool   `json:"reset,omitempty"`
	OccupationRate string `json:"occupation_rate,omitempty"`
}

type BalanceEntryDTO struct {
	ID             string `json:"id"`
	EmployeeID     string `json:"employee_id"`
	CategoryID     string `json:"category_id"`
	Kind           string `json:"kind"`
	EffectiveAt    string `json:"effective_at"`
	Sequence       int    `json:"sequence"`
	ResourceAmount int64  `json:"resource_amount"`
	ManualAmount   int64  `json:"manual_amount"`
	Amount         int64  `json:"amount"`
	Balance        int64  `json:"balance"`
	ValidityDate   string `json:"validity_date,omitempty"`
	BeingProcessed bool   `json:"being_processed"`
	TimeOffID      string `json:"time_off_id,omitempty"`
	RemovalID      string `json:"removal_id,omitempty"`
}

type PeriodDTO struct {
	Type         string `json:"type"`
	StartDate    string `json:"start_date"`
	ValidityDate string `json:"validity_date,omitempty"`
	AmountTaken  int64  `json:"amount_taken"`
	PeriodResult int64  `json:"period_result"`
	Balance      int64  `json:"balance"`
}

type CategoryOverviewDTO struct {
	Category string      `json:"category"`
	Periods  []PeriodDTO `json:"periods"`
}

type RunDTO struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employee_id"`
	CategoryID string `json:"category_id"`
	Status     string `json:"status"`
	Entries    int    `json:"entries"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

type ErrorResponse struct {
	Error   string              `json:"error"`
	Details string              `json:"details,omitempty"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toAssignmentDTO(a engine.PolicyAssignment) AssignmentDTO {
	dto := AssignmentDTO{
		ID:           a.ID,
		EmployeeID:   a.EmployeeID,
		ResourceKind: string(a.Kind),
		ResourceID:   a.ResourceID,
		CategoryID:   a.CategoryID,
		EffectiveAt:  a.EffectiveAt.String(),
		Reset:        a.Reset,
	}
	if a.EffectiveTill != nil {
		dto.EffectiveTill = a.EffectiveTill.String()
	}
	if !a.OccupationRate.IsZero() {
		dto.OccupationRate = a.OccupationRate.String()
	}
	return dto
}

func toEntryDTOs(entries []engine.BalanceEntry) []BalanceEntryDTO {
	dtos := make([]BalanceEntryDTO, 0, len(entries))
	balance := engine.NewMinutes(0)
	for i := range entries {
		e := &entries[i]
		balance = balance.Add(e.Amount)
		dto := BalanceEntryDTO{
			ID:             e.ID,
			EmployeeID:     e.EmployeeID,
			CategoryID:     e.CategoryID,
			Kind:           string(e.Kind),
			EffectiveAt:    e.Key.Date.String(),
			Sequence:       e.Key.Sequence,
			ResourceAmount: e.ResourceAmount.Value.IntPart(),
			ManualAmount:   e.ManualAmount.Value.IntPart(),
			Amount:         e.Amount.Value.IntPart(),
			Balance:        balance.Value.IntPart(),
			BeingProcessed: e.BeingProcessed,
			TimeOffID:      e.TimeOffID,
			RemovalID:      e.RemovalID,
		}
		if e.ValidityDate != nil {
			dto.ValidityDate = e.ValidityDate.String()
		}
		dtos = append(dtos, dto)
	}
	return dtos
}

func toOverviewDTOs(overviews []engine.CategoryOverview) []CategoryOverviewDTO {
	dtos := make([]CategoryOverviewDTO, 0, len(overviews))
	for _, o := range overviews {
		dto := CategoryOverviewDTO{Category: o.Category.Name}
		for _, p := range o.Periods {
			pd := PeriodDTO{
				Type:         string(p.Type),
				StartDate:    p.Start.String(),
				AmountTaken:  p.AmountTaken.Value.IntPart(),
				PeriodResult: p.PeriodResult.Value.IntPart(),
				Balance:      p.Balance.Value.IntPart(),
			}
			if p.ValidityDate != nil {
				pd.ValidityDate = p.ValidityDate.String()
			}
			dto.Periods = append(dto.Periods, pd)
		}
		dtos = append(dtos, dto)
	}
	return dtos
}
