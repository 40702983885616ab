package recurring

import (
	"context"
	"fmt"
)

// =============================================================================
// IDEMPOTENCY GUARD - Has this occurrence already been materialized?
// =============================================================================

// IdempotencyGuard answers whether a materialization already happened for a
// (template, calendar day) pair by consulting the ledger.
//
// The guard exists independently of the claim on the next-run pointer: if a
// previous run inserted the transaction but crashed before advancing the
// pointer, the template re-presents as due on the next pass, and only this
// check prevents a second transaction for the same day.
type IdempotencyGuard struct {
	Ledger LedgerStore
}

// AlreadyMaterialized reports whether the ledger holds a transaction for the
// template on the given day. Time-of-day never participates.
func (g *IdempotencyGuard) AlreadyMaterialized(ctx context.Context, userID UserID, templateID TemplateID, day Date) (bool, error) {
	exists, err := g.Ledger.HasTransactionOn(ctx, userID, templateID, day)
	if err != nil {
		return false, fmt.Errorf("idempotency check for %s on %s: %w", templateID, day, err)
	}
	return exists, nil
}
