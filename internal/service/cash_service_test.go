package service

import (
	"context"
	"testing"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/apierror"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/dto"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) cashSvc() CashService {
	return NewCashService(f.cash, f.branches, f.authz)
}

func TestOpenSession(t *testing.T) {
	f := newFixture()
	svc := f.cashSvc()
	cashier := f.addCashier()

	resp, err := svc.OpenSession(context.Background(), f.tenantID, cashier.ID, dto.OpenSessionRequest{
		PointOfSaleID: f.pos.ID.String(),
		OpeningAmount: dec("1500.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.SessionOpen, resp.Status)
	assert.True(t, resp.OpeningAmount.Equal(dec("1500.00")))

	// One open session per cashier per register.
	_, err = svc.OpenSession(context.Background(), f.tenantID, cashier.ID, dto.OpenSessionRequest{
		PointOfSaleID: f.pos.ID.String(),
		OpeningAmount: dec("0"),
	})
	assert.Equal(t, apierror.KindConflict, apierror.KindOf(err))
}

func TestOpenSessionValidation(t *testing.T) {
	f := newFixture()
	svc := f.cashSvc()

	_, err := svc.OpenSession(context.Background(), f.tenantID, uuid.New(), dto.OpenSessionRequest{
		PointOfSaleID: f.pos.ID.String(),
		OpeningAmount: dec("-1"),
	})
	assert.Equal(t, apierror.KindValidation, apierror.KindOf(err))

	_, err = svc.OpenSession(context.Background(), f.tenantID, uuid.New(), dto.OpenSessionRequest{
		PointOfSaleID: uuid.NewString(),
		OpeningAmount: dec("100"),
	})
	assert.Equal(t, apierror.KindNotFound, apierror.KindOf(err))
}

func TestCloseSessionReconciliation(t *testing.T) {
	f := newFixture()
	svc := f.cashSvc()
	super := f.addSupervisor(t, "")

	opened, err := svc.OpenSession(context.Background(), f.tenantID, super.ID, dto.OpenSessionRequest{
		PointOfSaleID: f.pos.ID.String(),
		OpeningAmount: dec("1000.00"),
	})
	require.NoError(t, err)
	sessionID := uuid.MustParse(opened.ID)

	// Simulate a day of trading: 800 cash in, 150 withdrawn.
	session := f.cash.sessions[sessionID]
	session.TotalCash = dec("650.00")
	session.WithdrawalsTotal = dec("150.00")

	closed, err := svc.CloseSession(context.Background(), f.tenantID, super.ID, sessionID, dto.CloseSessionRequest{
		DeclaredAmount: dec("1600.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.SessionClosed, closed.Status)
	require.NotNil(t, closed.ExpectedAmount)
	assert.True(t, closed.ExpectedAmount.Equal(dec("1650.00")), "float plus net cash")
	require.NotNil(t, closed.Difference)
	assert.True(t, closed.Difference.Equal(dec("-50.00")), "drawer is 50 short")
	require.NotNil(t, closed.ClosedAt)

	_, err = svc.CloseSession(context.Background(), f.tenantID, super.ID, sessionID, dto.CloseSessionRequest{
		DeclaredAmount: dec("1600.00"),
	})
	assert.Equal(t, apierror.KindInvalidState, apierror.KindOf(err))
}

func TestCloseSessionRequiresPermission(t *testing.T) {
	f := newFixture()
	svc := f.cashSvc()
	cashier := f.addCashier()

	opened, err := svc.OpenSession(context.Background(), f.tenantID, cashier.ID, dto.OpenSessionRequest{
		PointOfSaleID: f.pos.ID.String(),
		OpeningAmount: dec("500.00"),
	})
	require.NoError(t, err)

	_, err = svc.CloseSession(context.Background(), f.tenantID, cashier.ID, uuid.MustParse(opened.ID), dto.CloseSessionRequest{
		DeclaredAmount: dec("500.00"),
	})
	assert.Equal(t, apierror.KindUnauthorized, apierror.KindOf(err), "cashiers cannot close the drawer themselves")
}

func TestRegisterWithdrawalChecksDrawer(t *testing.T) {
	f := newFixture()
	svc := f.cashSvc()
	super := f.addSupervisor(t, "")

	opened, err := svc.OpenSession(context.Background(), f.tenantID, super.ID, dto.OpenSessionRequest{
		PointOfSaleID: f.pos.ID.String(),
		OpeningAmount: dec("200.00"),
	})
	require.NoError(t, err)
	sessionID := uuid.MustParse(opened.ID)

	_, err = svc.RegisterMovement(context.Background(), f.tenantID, super.ID, sessionID, dto.RegisterMovementRequest{
		Type:        model.MovementWithdrawal,
		Amount:      dec("250.00"),
		Description: "bank deposit run",
	})
	assert.Equal(t, apierror.KindInsufficientFunds, apierror.KindOf(err))

	mov, err := svc.RegisterMovement(context.Background(), f.tenantID, super.ID, sessionID, dto.RegisterMovementRequest{
		Type:        model.MovementWithdrawal,
		Amount:      dec("150.00"),
		Description: "bank deposit run",
	})
	require.NoError(t, err)
	assert.Equal(t, model.MovementWithdrawal, mov.Type)

	session := f.cash.sessions[sessionID]
	assert.True(t, session.TotalCash.Equal(dec("-150.00")))
	assert.True(t, session.WithdrawalsTotal.Equal(dec("150.00")))
}

func TestRegisterWithdrawalPINOverride(t *testing.T) {
	f := newFixture()
	svc := f.cashSvc()
	cashier := f.addCashier()
	super := f.addSupervisor(t, "2580")

	opened, err := svc.OpenSession(context.Background(), f.tenantID, cashier.ID, dto.OpenSessionRequest{
		PointOfSaleID: f.pos.ID.String(),
		OpeningAmount: dec("300.00"),
	})
	require.NoError(t, err)
	sessionID := uuid.MustParse(opened.ID)

	req := dto.RegisterMovementRequest{
		Type:        model.MovementWithdrawal,
		Amount:      dec("100.00"),
		Description: "change pickup",
	}
	_, err = svc.RegisterMovement(context.Background(), f.tenantID, cashier.ID, sessionID, req)
	assert.Equal(t, apierror.KindUnauthorized, apierror.KindOf(err))

	req.SupervisorPIN = "2580"
	_, err = svc.RegisterMovement(context.Background(), f.tenantID, cashier.ID, sessionID, req)
	require.NoError(t, err)

	require.Len(t, f.cash.movements, 1)
	assert.True(t, f.cash.movements[0].RequiresAuth)
	require.NotNil(t, f.cash.movements[0].AuthorizedByUserID)
	assert.Equal(t, super.ID, *f.cash.movements[0].AuthorizedByUserID)
}

func TestRegisterDepositAndListMovements(t *testing.T) {
	f := newFixture()
	svc := f.cashSvc()
	cashier := f.addCashier()

	opened, err := svc.OpenSession(context.Background(), f.tenantID, cashier.ID, dto.OpenSessionRequest{
		PointOfSaleID: f.pos.ID.String(),
		OpeningAmount: dec("100.00"),
	})
	require.NoError(t, err)
	sessionID := uuid.MustParse(opened.ID)

	_, err = svc.RegisterMovement(context.Background(), f.tenantID, cashier.ID, sessionID, dto.RegisterMovementRequest{
		Type:        model.MovementDeposit,
		Amount:      dec("50.00"),
		Description: "change from the safe",
	})
	require.NoError(t, err)
	assert.True(t, f.cash.sessions[sessionID].TotalCash.Equal(dec("50.00")))

	movs, err := svc.ListMovements(context.Background(), f.tenantID, sessionID)
	require.NoError(t, err)
	require.Len(t, movs, 1)
	assert.Equal(t, model.MovementDeposit, movs[0].Type)
}

func TestSessionTenantIsolation(t *testing.T) {
	f := newFixture()
	svc := f.cashSvc()
	cashier := f.addCashier()

	opened, err := svc.OpenSession(context.Background(), f.tenantID, cashier.ID, dto.OpenSessionRequest{
		PointOfSaleID: f.pos.ID.String(),
		OpeningAmount: dec("100.00"),
	})
	require.NoError(t, err)

	_, err = svc.GetSession(context.Background(), uuid.New(), uuid.MustParse(opened.ID))
	assert.Equal(t, apierror.KindNotFound, apierror.KindOf(err))
}
