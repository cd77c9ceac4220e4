package service

import (
	"context"
)

// Entitlements answers the premium-access question for other services.
type Entitlements struct {
	subs SubscriptionStore
}

func NewEntitlements(subs SubscriptionStore) *Entitlements {
	return &Entitlements{subs: subs}
}

// IsPremium reports whether the account's mapped customer has an active or
// trialing subscription. Accounts without a customer are not premium.
func (e *Entitlements) IsPremium(ctx context.Context, accountID int64) (bool, error) {
	sub, err := e.subs.GetByAccountID(ctx, accountID)
	if err != nil {
		return false, transient("get subscription", err)
	}
	if sub == nil {
		return false, nil
	}
	return sub.Status.Premium(), nil
}
