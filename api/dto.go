/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for the operational API. These types decouple
  the internal domain model from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Response: Wrapper types for compound responses

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/recurrence-engine/recurring"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// TemplateDTO represents a recurring template in API responses.
type TemplateDTO struct {
	ID            string `json:"id"`
	UserID        string `json:"userId"`
	Name          string `json:"name"`
	Category      string `json:"category"`
	PaymentMethod string `json:"paymentMethod"`
	Amount        string `json:"amount"`
	Kind          string `json:"kind"`
	Frequency     string `json:"frequency"`
	Status        string `json:"status"`
	AnchorDate    string `json:"anchorDate"`
	NextRunDate   string `json:"nextRunDate,omitempty"`
}

func toTemplateDTO(tpl recurring.RecurringTemplate) TemplateDTO {
	dto := TemplateDTO{
		ID:            string(tpl.ID),
		UserID:        string(tpl.UserID),
		Name:          tpl.Name,
		Category:      tpl.Category,
		PaymentMethod: tpl.PaymentMethod,
		Amount:        tpl.Amount.String(),
		Kind:          string(tpl.Kind),
		Frequency:     string(tpl.Frequency),
		Status:        string(tpl.Status),
		AnchorDate:    tpl.Anchor.String(),
	}
	if tpl.HasNextRun {
		dto.NextRunDate = tpl.NextRun.String()
	}
	return dto
}

// TransactionDTO represents a generated ledger transaction.
type TransactionDTO struct {
	ID         string `json:"id"`
	UserID     string `json:"userId"`
	TemplateID string `json:"templateId,omitempty"`
	Date       string `json:"date"`
	Amount     string `json:"amount"`
	Kind       string `json:"kind"`
	Category   string `json:"category"`
	Note       string `json:"note"`
}

func toTransactionDTO(tx recurring.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:         string(tx.ID),
		UserID:     string(tx.UserID),
		TemplateID: string(tx.TemplateID),
		Date:       tx.Date.String(),
		Amount:     tx.Amount.String(),
		Kind:       string(tx.Kind),
		Category:   tx.Category,
		Note:       tx.Note,
	}
}

// RunDTO represents one batch-run audit record.
type RunDTO struct {
	ID          string `json:"id"`
	UserID      string `json:"userId,omitempty"`
	Trigger     string `json:"trigger"`
	Created     int    `json:"created"`
	Skipped     int    `json:"skipped"`
	Errors      int    `json:"errors"`
	Error       string `json:"error,omitempty"`
	StartedAt   string `json:"startedAt"`
	CompletedAt string `json:"completedAt,omitempty"`
}

func toRunDTO(run recurring.RunRecord) RunDTO {
	dto := RunDTO{
		ID:        run.ID,
		UserID:    string(run.UserID),
		Trigger:   run.Trigger,
		Created:   run.Stats.Created,
		Skipped:   run.Stats.Skipped,
		Errors:    run.Stats.Errors,
		Error:     run.Error,
		StartedAt: run.StartedAt.UTC().Format(time.RFC3339),
	}
	if !run.CompletedAt.IsZero() {
		dto.CompletedAt = run.CompletedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

// TriggerRunResponse is returned by POST /api/runs.
type TriggerRunResponse struct {
	RunID   string `json:"runId"`
	Created int    `json:"created"`
	Skipped int    `json:"skipped"`
	Errors  int    `json:"errors"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
