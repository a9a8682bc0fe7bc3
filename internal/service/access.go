package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/prn-tf/boxvault/internal/auth"
	"github.com/prn-tf/boxvault/internal/domain"
	"github.com/prn-tf/boxvault/internal/repository"
)

// Authorizer decides read and write access to a box.
type Authorizer struct {
	memberships     repository.MembershipRepository
	serviceAccounts repository.ServiceAccountRepository
}

// NewAuthorizer creates an Authorizer.
func NewAuthorizer(memberships repository.MembershipRepository, serviceAccounts repository.ServiceAccountRepository) *Authorizer {
	return &Authorizer{memberships: memberships, serviceAccounts: serviceAccounts}
}

// CanRead reports whether the identity may read the box: public boxes are
// readable by anyone, private ones by the owner, members and the
// organization's service accounts.
func (a *Authorizer) CanRead(ctx context.Context, id auth.Identity, org *domain.Organization, box *domain.Box) (bool, error) {
	if box.IsPublic {
		return true, nil
	}
	if id.Anonymous {
		return false, nil
	}
	if id.IsServiceAccount {
		return a.serviceAccountOf(ctx, id.ID, org.ID)
	}
	if box.UserID != 0 && box.UserID == id.ID {
		return true, nil
	}
	m, err := a.membership(ctx, id.ID, org.ID)
	if err != nil || m == nil {
		return false, err
	}
	return true, nil
}

// CanWrite reports whether the identity may mutate the box's artifacts:
// moderators and admins of the organization, or its service accounts.
func (a *Authorizer) CanWrite(ctx context.Context, id auth.Identity, org *domain.Organization, box *domain.Box) (bool, error) {
	if id.Anonymous {
		return false, nil
	}
	if id.IsServiceAccount {
		return a.serviceAccountOf(ctx, id.ID, org.ID)
	}
	m, err := a.membership(ctx, id.ID, org.ID)
	if err != nil || m == nil {
		return false, err
	}
	return m.Role.CanWrite(), nil
}

// RequireRead returns nil when reading is allowed, auth.ErrUnauthenticated for
// anonymous callers and domain.ErrForbidden otherwise.
func (a *Authorizer) RequireRead(ctx context.Context, id auth.Identity, org *domain.Organization, box *domain.Box) error {
	ok, err := a.CanRead(ctx, id, org, box)
	return decide(ok, err, id)
}

// RequireWrite is RequireRead for mutation.
func (a *Authorizer) RequireWrite(ctx context.Context, id auth.Identity, org *domain.Organization, box *domain.Box) error {
	ok, err := a.CanWrite(ctx, id, org, box)
	return decide(ok, err, id)
}

func decide(ok bool, err error, id auth.Identity) error {
	switch {
	case err != nil:
		return fmt.Errorf("authorization check failed: %w", err)
	case ok:
		return nil
	case id.Anonymous:
		return auth.ErrUnauthenticated
	}
	return domain.ErrForbidden
}

func (a *Authorizer) membership(ctx context.Context, userID, orgID int64) (*domain.Membership, error) {
	m, err := a.memberships.Get(ctx, userID, orgID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return m, err
}

func (a *Authorizer) serviceAccountOf(ctx context.Context, saID, orgID int64) (bool, error) {
	sa, err := a.serviceAccounts.GetByID(ctx, saID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sa.OrganizationID == orgID && !sa.IsExpired(), nil
}
