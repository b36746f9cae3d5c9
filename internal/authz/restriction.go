package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RestrictionToggle flips a community between open and restricted admin
// access. Two states, two transitions: Enable (Open -> Restricted, guarded by
// the admin self-grant) and Disable (Restricted -> Open, unconditional).
type RestrictionToggle struct {
	store  Store
	scopes ScopeResolver
}

// NewRestrictionToggle constructs a RestrictionToggle.
func NewRestrictionToggle(store Store, scopes ScopeResolver) (*RestrictionToggle, error) {
	if store == nil {
		return nil, errors.New("authz: store is required")
	}
	if scopes == nil {
		return nil, errors.New("authz: scope resolver is required")
	}
	return &RestrictionToggle{store: store, scopes: scopes}, nil
}

// Enable switches the community into restricted mode, first ensuring the
// acting user holds a non-expiring community_admin grant so the toggle can
// never lock its own actor out. Both steps commit atomically in the store;
// if the grant step fails the community stays in open mode. Calling Enable
// twice is a no-op the second time.
func (t *RestrictionToggle) Enable(ctx context.Context, communityID, actorID string) error {
	communityID = strings.TrimSpace(communityID)
	actorID = strings.TrimSpace(actorID)
	if communityID == "" || actorID == "" {
		return fmt.Errorf("%w: community_id and acting user_id are required", ErrInvalidInput)
	}
	return t.store.EnableRestriction(ctx, communityID, actorID)
}

// Disable switches the community back to open mode. No grant manipulation
// occurs: open mode grants blanket access to all members regardless of
// grants, so disabling is always safe and existing grants survive for the
// next Enable.
func (t *RestrictionToggle) Disable(ctx context.Context, communityID string) error {
	communityID = strings.TrimSpace(communityID)
	if communityID == "" {
		return fmt.Errorf("%w: community_id is required", ErrInvalidInput)
	}
	return t.store.SetCommunityRestricted(ctx, communityID, false)
}
