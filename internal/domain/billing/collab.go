package billing

import "context"

// UserStore is the read/write-user-row contract exposed by the profile CRUD
// layer. The billing engine consumes the account row only through it: reads
// for validation, and a narrow column-level billing update so a concurrent
// profile save can never clobber a credit grant (and vice versa).
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*User, error)
}

// OnboardingReader is co-located on the same user-facing API surface but
// irrelevant to billing; declared here so the dashboard wiring has a single
// collaborator contract to implement. No implementation lives in this service.
type OnboardingReader interface {
	GetOnboardingState(ctx context.Context, userID string) (map[string]interface{}, error)
}
