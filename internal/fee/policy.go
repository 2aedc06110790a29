package fee

import (
	"context"
	"fmt"

	"github.com/nfturvy/market-ledger/internal/domain"
	"github.com/nfturvy/market-ledger/internal/store"
)

// Policy computes and validates the flat listing fee. The fee is a single
// operator-mutable setting persisted in the key-value store; the configured
// default applies until the operator sets one. Routing of a collected fee to
// the operator account happens inside the listing creation transaction, so it
// cannot fail independently once the fee amount is validated.
type Policy struct {
	store      store.Store
	operator   string
	defaultFee domain.Amount
}

// NewPolicy creates a fee policy with the operator identity and the
// configured default fee
func NewPolicy(st store.Store, operator string, defaultFee domain.Amount) *Policy {
	return &Policy{
		store:      st,
		operator:   domain.NormalizeAddress(operator),
		defaultFee: defaultFee.Canonical(),
	}
}

// CurrentFee returns the listing fee in effect
func (p *Policy) CurrentFee(ctx context.Context) (domain.Amount, error) {
	fee, err := p.store.GetListingFee(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read fee setting: %w", err)
	}
	if fee == "" {
		return p.defaultFee, nil
	}
	return fee, nil
}

// SetFee updates the listing fee. Caller identity is enforced at the API
// boundary; the policy only validates the amount.
func (p *Policy) SetFee(ctx context.Context, amount domain.Amount) error {
	if !amount.Positive() {
		return domain.ErrInvalidPrice
	}
	return p.store.SetListingFee(ctx, amount)
}

// Operator returns the account credited with collected fees
func (p *Policy) Operator() string {
	return p.operator
}
