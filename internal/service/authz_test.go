package service

import (
	"context"
	"testing"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/apierror"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestRoleHasPermission(t *testing.T) {
	assert.True(t, RoleHasPermission("cashier", PermSale))
	assert.True(t, RoleHasPermission("cashier", PermCashOpen))
	assert.False(t, RoleHasPermission("cashier", PermRefund))
	assert.False(t, RoleHasPermission("cashier", PermCashRefund))
	assert.False(t, RoleHasPermission("cashier", PermCashClose))

	for _, role := range []string{"supervisor", "admin"} {
		for _, perm := range []string{PermSale, PermRefund, PermCashRefund, PermCashOpen, PermCashClose} {
			assert.True(t, RoleHasPermission(role, perm), "%s should hold %s", role, perm)
		}
	}

	assert.False(t, RoleHasPermission("intruder", PermSale))
}

func TestAuthorizeOwnRole(t *testing.T) {
	users := newStubUserRepo()
	svc := NewAuthzService(users)
	tenantID := uuid.New()
	super := users.add(&model.User{TenantID: tenantID, Username: "super", Role: "supervisor", Active: true})

	authorizer, err := svc.Authorize(context.Background(), tenantID, super.ID, PermRefund, "")
	require.NoError(t, err)
	assert.Equal(t, super.ID, authorizer.ID)
}

func TestAuthorizeInactiveOrUnknownUser(t *testing.T) {
	users := newStubUserRepo()
	svc := NewAuthzService(users)
	tenantID := uuid.New()
	inactive := users.add(&model.User{TenantID: tenantID, Username: "gone", Role: "admin", Active: false})

	_, err := svc.Authorize(context.Background(), tenantID, inactive.ID, PermSale, "")
	assert.Equal(t, apierror.KindUnauthorized, apierror.KindOf(err))

	_, err = svc.Authorize(context.Background(), tenantID, uuid.New(), PermSale, "")
	assert.Equal(t, apierror.KindUnauthorized, apierror.KindOf(err))
}

func TestAuthorizePINOverride(t *testing.T) {
	users := newStubUserRepo()
	svc := NewAuthzService(users)
	tenantID := uuid.New()

	cashier := users.add(&model.User{TenantID: tenantID, Username: "cajero", Role: "cashier", Active: true})
	hash, err := bcrypt.GenerateFromPassword([]byte("1234"), bcrypt.MinCost)
	require.NoError(t, err)
	pin := string(hash)
	super := users.add(&model.User{TenantID: tenantID, Username: "super", Role: "supervisor", Active: true, PINHash: &pin})

	// No PIN: blocked.
	_, err = svc.Authorize(context.Background(), tenantID, cashier.ID, PermRefund, "")
	assert.Equal(t, apierror.KindUnauthorized, apierror.KindOf(err))

	// Wrong PIN: blocked.
	_, err = svc.Authorize(context.Background(), tenantID, cashier.ID, PermRefund, "0000")
	assert.Equal(t, apierror.KindUnauthorized, apierror.KindOf(err))

	// Matching PIN resolves the supervisor as the authorizer.
	authorizer, err := svc.Authorize(context.Background(), tenantID, cashier.ID, PermRefund, "1234")
	require.NoError(t, err)
	assert.Equal(t, super.ID, authorizer.ID)
}

func TestAuthorizePINHolderMustCarryPermission(t *testing.T) {
	users := newStubUserRepo()
	svc := NewAuthzService(users)
	tenantID := uuid.New()

	cashier := users.add(&model.User{TenantID: tenantID, Username: "cajero", Role: "cashier", Active: true})
	hash, err := bcrypt.GenerateFromPassword([]byte("5555"), bcrypt.MinCost)
	require.NoError(t, err)
	pin := string(hash)
	// Another cashier with a PIN cannot grant what their own role lacks.
	users.add(&model.User{TenantID: tenantID, Username: "cajero2", Role: "cashier", Active: true, PINHash: &pin})

	_, err = svc.Authorize(context.Background(), tenantID, cashier.ID, PermRefund, "5555")
	assert.Equal(t, apierror.KindUnauthorized, apierror.KindOf(err))
}
