package service

import (
	"context"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/apierror"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/model"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Permissions gating register operations.
const (
	PermSale       = "pos:sale"
	PermRefund     = "pos:refund"
	PermCashRefund = "pos:cash-refund"
	PermCashOpen   = "pos:cash-open"
	PermCashClose  = "pos:cash-close"
)

var rolePermissions = map[string]map[string]bool{
	"cashier": {
		PermSale:     true,
		PermCashOpen: true,
	},
	"supervisor": {
		PermSale:       true,
		PermRefund:     true,
		PermCashRefund: true,
		PermCashOpen:   true,
		PermCashClose:  true,
	},
	"admin": {
		PermSale:       true,
		PermRefund:     true,
		PermCashRefund: true,
		PermCashOpen:   true,
		PermCashClose:  true,
	},
}

func RoleHasPermission(role, perm string) bool {
	return rolePermissions[role][perm]
}

// AuthzService resolves whether a cashier may perform a gated operation,
// either through their own role or through a supervisor PIN override.
type AuthzService interface {
	// Authorize returns the authorizing user: the actor when their role
	// carries the permission, otherwise the supervisor matching the PIN.
	Authorize(ctx context.Context, tenantID, actorID uuid.UUID, perm, pin string) (*model.User, error)
}

type authzService struct {
	users repository.UserRepository
}

func NewAuthzService(users repository.UserRepository) AuthzService {
	return &authzService{users: users}
}

func (s *authzService) Authorize(ctx context.Context, tenantID, actorID uuid.UUID, perm, pin string) (*model.User, error) {
	actor, err := s.users.FindByID(ctx, tenantID, actorID)
	if err != nil {
		return nil, apierror.Unauthorized("user %s not found", actorID)
	}
	if !actor.Active {
		return nil, apierror.Unauthorized("user %s is inactive", actor.Username)
	}
	if RoleHasPermission(actor.Role, perm) {
		return actor, nil
	}
	if pin == "" {
		return nil, apierror.Unauthorized("%s requires supervisor authorization", perm)
	}
	supervisor, err := s.resolvePIN(ctx, tenantID, pin)
	if err != nil {
		return nil, err
	}
	if !RoleHasPermission(supervisor.Role, perm) {
		return nil, apierror.Unauthorized("authorizing user %s lacks %s", supervisor.Username, perm)
	}
	return supervisor, nil
}

// resolvePIN bcrypt-compares the entered PIN against every active user that
// has one set. The pool of PIN holders per tenant is small, so the linear
// scan is acceptable; PINs are not unique identifiers and carry no index.
func (s *authzService) resolvePIN(ctx context.Context, tenantID uuid.UUID, pin string) (*model.User, error) {
	users, err := s.users.ListActiveWithPIN(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].PINHash == nil {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(*users[i].PINHash), []byte(pin)) == nil {
			return &users[i], nil
		}
	}
	return nil, apierror.Unauthorized("supervisor PIN not recognized")
}
