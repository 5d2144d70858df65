package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/apierror"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/dto"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) saleRequest(p *model.Product, qty int, payments ...dto.PaymentRequest) dto.CreateSaleRequest {
	return dto.CreateSaleRequest{
		BranchID:      f.branch.ID.String(),
		PointOfSaleID: f.pos.ID.String(),
		Items: []dto.SaleItemRequest{
			{ProductID: p.ID.String(), Quantity: qty},
		},
		Payments: payments,
	}
}

func cashPayment(amount string) dto.PaymentRequest {
	return dto.PaymentRequest{Method: model.PayCash, Amount: dec(amount)}
}

func TestCreateSaleTotalsAndTax(t *testing.T) {
	f := newFixture()
	p := f.addProduct("121.00", "21", 10)
	cashier := uuid.New()

	resp, err := f.saleSvc.CreateSale(context.Background(), f.tenantID, cashier, f.saleRequest(p, 1, cashPayment("121.00")))
	require.NoError(t, err)

	assert.True(t, resp.Subtotal.Equal(dec("121.00")))
	assert.True(t, resp.Discount.IsZero())
	assert.True(t, resp.Total.Equal(dec("121.00")))
	assert.True(t, resp.TaxAmount.Equal(dec("21.00")), "tax is the portion contained in the gross price")
	assert.True(t, resp.Change.IsZero())
	assert.Equal(t, model.SaleCompleted, resp.Status)

	require.Len(t, resp.Items, 1)
	assert.True(t, resp.Items[0].TaxAmount.Equal(dec("21.00")))
	assert.True(t, resp.Items[0].Subtotal.Equal(dec("121.00")))

	// Stock moved down by the quantity sold.
	assert.Equal(t, 9, f.products.stock[p.ID])
}

func TestCreateSaleLineDiscount(t *testing.T) {
	f := newFixture()
	p := f.addProduct("100.00", "21", 10)
	req := f.saleRequest(p, 2, cashPayment("180.00"))
	req.Items[0].Discount = dec("20.00")

	resp, err := f.saleSvc.CreateSale(context.Background(), f.tenantID, uuid.New(), req)
	require.NoError(t, err)
	// The subtotal already carries the line discount, so it equals the total.
	assert.True(t, resp.Subtotal.Equal(dec("180.00")))
	assert.True(t, resp.Discount.Equal(dec("20.00")))
	assert.True(t, resp.Total.Equal(dec("180.00")))
	// Tax is computed on the discounted gross: 180*21/121 = 31.24.
	assert.True(t, resp.TaxAmount.Equal(dec("31.24")))
}

func TestCreateSaleOverTenderReturnsChange(t *testing.T) {
	f := newFixture()
	p := f.addProduct("171.00", "21", 5)

	resp, err := f.saleSvc.CreateSale(context.Background(), f.tenantID, uuid.New(), f.saleRequest(p, 1, cashPayment("200.00")))
	require.NoError(t, err)
	assert.True(t, resp.Change.Equal(dec("29.00")))
}

func TestCreateSaleOverTenderAcceptedForAnyMethod(t *testing.T) {
	f := newFixture()
	p := f.addProduct("121.00", "21", 5)

	// Over-tender is never refused, whatever the method mix; the excess is
	// reported as change even when no cash was tendered.
	resp, err := f.saleSvc.CreateSale(context.Background(), f.tenantID, uuid.New(),
		f.saleRequest(p, 1, dto.PaymentRequest{Method: model.PayCard, Amount: dec("150.00")}))
	require.NoError(t, err)
	assert.True(t, resp.Change.Equal(dec("29.00")))

	mixed, err := f.saleSvc.CreateSale(context.Background(), f.tenantID, uuid.New(),
		f.saleRequest(p, 1,
			dto.PaymentRequest{Method: model.PayCard, Amount: dec("81.00")},
			cashPayment("50.00")))
	require.NoError(t, err)
	assert.True(t, mixed.Change.Equal(dec("10.00")))
}

func TestCreateSaleUnderTenderRejected(t *testing.T) {
	f := newFixture()
	p := f.addProduct("100.00", "21", 5)

	_, err := f.saleSvc.CreateSale(context.Background(), f.tenantID, uuid.New(), f.saleRequest(p, 1, cashPayment("99.99")))
	assert.Equal(t, apierror.KindInsufficientFunds, apierror.KindOf(err))
}

func TestCreateSaleUnknownPaymentMethod(t *testing.T) {
	f := newFixture()
	p := f.addProduct("50.00", "21", 5)

	_, err := f.saleSvc.CreateSale(context.Background(), f.tenantID, uuid.New(),
		f.saleRequest(p, 1, dto.PaymentRequest{Method: "BARTER", Amount: dec("50.00")}))
	assert.Equal(t, apierror.KindValidation, apierror.KindOf(err))
}

func TestCreateSaleFreeTextItemValidation(t *testing.T) {
	f := newFixture()

	req := dto.CreateSaleRequest{
		BranchID:      f.branch.ID.String(),
		PointOfSaleID: f.pos.ID.String(),
		Items:         []dto.SaleItemRequest{{Quantity: 1, UnitPrice: dec("30.00")}},
		Payments:      []dto.PaymentRequest{cashPayment("30.00")},
	}
	_, err := f.saleSvc.CreateSale(context.Background(), f.tenantID, uuid.New(), req)
	assert.Equal(t, apierror.KindValidation, apierror.KindOf(err), "free-text items need a description")

	req.Items[0].Description = "Bolsa reutilizable"
	resp, err := f.saleSvc.CreateSale(context.Background(), f.tenantID, uuid.New(), req)
	require.NoError(t, err)
	assert.True(t, resp.Items[0].TaxRate.Equal(decimal.NewFromInt(21)), "free-text items default to the standard rate")
}

func TestCreateSaleNumberFormatAndSequence(t *testing.T) {
	f := newFixture()
	p := f.addProduct("10.00", "0", 100)
	day := time.Now().Format("20060102")

	for want := 1; want <= 3; want++ {
		resp, err := f.saleSvc.CreateSale(context.Background(), f.tenantID, uuid.New(), f.saleRequest(p, 1, cashPayment("10.00")))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("CENTRO-CAJA1-%s-%d", day, want), resp.SaleNumber)
	}
}

func TestCreateSaleNegativeTotalIssuesStoreCredit(t *testing.T) {
	f := newFixture()
	p := f.addProduct("80.00", "21", 10)

	req := dto.CreateSaleRequest{
		BranchID:      f.branch.ID.String(),
		PointOfSaleID: f.pos.ID.String(),
		Items:         []dto.SaleItemRequest{{ProductID: p.ID.String(), Quantity: -2}},
	}
	resp, err := f.saleSvc.CreateSale(context.Background(), f.tenantID, uuid.New(), req)
	require.NoError(t, err)
	assert.True(t, resp.Total.Equal(dec("-160.00")))
	require.NotNil(t, resp.StoreCreditCode)

	credit, err := f.scRepo.FindByCode(context.Background(), f.tenantID, *resp.StoreCreditCode)
	require.NoError(t, err)
	assert.True(t, credit.CurrentBalance.Equal(dec("160.00")))
	assert.Equal(t, model.StoreCreditActive, credit.Status)

	// Returned units go back on the shelf.
	assert.Equal(t, 12, f.products.stock[p.ID])
}

func TestCreateSaleNegativeTotalRejectsPayments(t *testing.T) {
	f := newFixture()
	p := f.addProduct("80.00", "21", 10)

	req := dto.CreateSaleRequest{
		BranchID:      f.branch.ID.String(),
		PointOfSaleID: f.pos.ID.String(),
		Items:         []dto.SaleItemRequest{{ProductID: p.ID.String(), Quantity: -1}},
		Payments:      []dto.PaymentRequest{cashPayment("10.00")},
	}
	_, err := f.saleSvc.CreateSale(context.Background(), f.tenantID, uuid.New(), req)
	assert.Equal(t, apierror.KindValidation, apierror.KindOf(err))
}

func TestCreateSaleGiftCardTenderRedeemsThroughOutbox(t *testing.T) {
	f := newFixture()
	p := f.addProduct("500.00", "21", 5)
	issued := issueGiftCard(t, f.giftCards, f.tenantID, "1000.00")

	resp, err := f.saleSvc.CreateSale(context.Background(), f.tenantID, uuid.New(),
		f.saleRequest(p, 1, dto.PaymentRequest{Method: model.PayGiftCard, Amount: dec("500.00"), InstrumentCode: issued.Code}))
	require.NoError(t, err)
	assert.Empty(t, resp.RedemptionWarnings)

	// The card was debited after commit.
	card, err := f.gcRepo.FindByCode(context.Background(), f.tenantID, issued.Code)
	require.NoError(t, err)
	assert.True(t, card.CurrentBalance.Equal(dec("500.00")))

	// The outbox row ended DONE.
	require.Len(t, f.outbox.redemptions, 1)
	for _, pr := range f.outbox.redemptions {
		assert.Equal(t, model.RedemptionDone, pr.Status)
		assert.Equal(t, model.KindGiftCard, pr.InstrumentKind)
		assert.Equal(t, 1, pr.Attempts)
	}
}

func TestCreateSaleGiftCardMissingCode(t *testing.T) {
	f := newFixture()
	p := f.addProduct("50.00", "21", 5)

	_, err := f.saleSvc.CreateSale(context.Background(), f.tenantID, uuid.New(),
		f.saleRequest(p, 1, dto.PaymentRequest{Method: model.PayGiftCard, Amount: dec("50.00")}))
	assert.Equal(t, apierror.KindValidation, apierror.KindOf(err))
}

func TestCreateSaleGiftCardInsufficientBalanceFailsPreFlight(t *testing.T) {
	f := newFixture()
	p := f.addProduct("500.00", "21", 5)
	issued := issueGiftCard(t, f.giftCards, f.tenantID, "100.00")

	_, err := f.saleSvc.CreateSale(context.Background(), f.tenantID, uuid.New(),
		f.saleRequest(p, 1, dto.PaymentRequest{Method: model.PayGiftCard, Amount: dec("500.00"), InstrumentCode: issued.Code}))
	assert.Equal(t, apierror.KindInsufficientFunds, apierror.KindOf(err))
	assert.Empty(t, f.sales.sales, "no sale may be recorded when the tender fails pre-flight")
	assert.Equal(t, 5, f.products.stock[p.ID])
}

func TestCreateSaleAppliesSessionTotals(t *testing.T) {
	f := newFixture()
	p := f.addProduct("100.00", "21", 10)
	cashier := uuid.New()

	session := &model.CashSession{
		TenantID:      f.tenantID,
		PointOfSaleID: f.pos.ID,
		UserID:        cashier,
		Status:        model.SessionOpen,
		OpeningAmount: dec("1000.00"),
	}
	require.NoError(t, f.cash.CreateSession(context.Background(), session))

	resp, err := f.saleSvc.CreateSale(context.Background(), f.tenantID, cashier,
		f.saleRequest(p, 2,
			cashPayment("150.00"),
			dto.PaymentRequest{Method: model.PayCard, Amount: dec("100.00")}))
	require.NoError(t, err)
	assert.True(t, resp.Change.Equal(dec("50.00")))

	// The drawer counts the gross cash tendered; change handed back is not
	// netted out of the running total.
	assert.True(t, session.TotalCash.Equal(dec("150.00")))
	assert.True(t, session.TotalCard.Equal(dec("100.00")))
	assert.Equal(t, 1, session.SalesCount)
	assert.True(t, session.SalesTotal.Equal(dec("200.00")))
}

func TestCreateSaleSessionCashIsGrossOfChange(t *testing.T) {
	f := newFixture()
	p := f.addProduct("121.00", "21", 5)
	cashier := uuid.New()

	session := &model.CashSession{
		TenantID:      f.tenantID,
		PointOfSaleID: f.pos.ID,
		UserID:        cashier,
		Status:        model.SessionOpen,
		OpeningAmount: dec("500.00"),
	}
	require.NoError(t, f.cash.CreateSession(context.Background(), session))

	resp, err := f.saleSvc.CreateSale(context.Background(), f.tenantID, cashier,
		f.saleRequest(p, 1, cashPayment("150.00")))
	require.NoError(t, err)
	assert.True(t, resp.Change.Equal(dec("29.00")))
	assert.True(t, session.TotalCash.Equal(dec("150.00")))
}

func TestCreateSaleWithoutOpenSessionStillCompletes(t *testing.T) {
	f := newFixture()
	p := f.addProduct("60.00", "21", 3)

	resp, err := f.saleSvc.CreateSale(context.Background(), f.tenantID, uuid.New(), f.saleRequest(p, 1, cashPayment("60.00")))
	require.NoError(t, err)
	assert.Equal(t, model.SaleCompleted, resp.Status)
}

func TestCreateSaleClaimsPaymentOrder(t *testing.T) {
	f := newFixture()
	p := f.addProduct("250.00", "21", 3)

	order := &model.MercadoPagoOrder{
		TenantID:          f.tenantID,
		ExternalReference: "POS-REF-001",
		Status:            model.OrderProcessed,
		Amount:            dec("250.00"),
	}
	require.NoError(t, f.orders.Create(context.Background(), order))

	resp, err := f.saleSvc.CreateSale(context.Background(), f.tenantID, uuid.New(),
		f.saleRequest(p, 1, dto.PaymentRequest{Method: model.PayQR, Amount: dec("250.00"), ExternalReference: "POS-REF-001"}))
	require.NoError(t, err)

	require.NotNil(t, order.SaleID)
	assert.Equal(t, resp.ID, order.SaleID.String())
}

func TestCancelSaleRestocksAndFlips(t *testing.T) {
	f := newFixture()
	p := f.addProduct("40.00", "21", 10)

	created, err := f.saleSvc.CreateSale(context.Background(), f.tenantID, uuid.New(), f.saleRequest(p, 3, cashPayment("120.00")))
	require.NoError(t, err)
	assert.Equal(t, 7, f.products.stock[p.ID])

	saleID := uuid.MustParse(created.ID)
	cancelled, err := f.saleSvc.CancelSale(context.Background(), f.tenantID, saleID)
	require.NoError(t, err)
	assert.Equal(t, model.SaleCancelled, cancelled.Status)
	assert.Equal(t, 10, f.products.stock[p.ID])

	_, err = f.saleSvc.CancelSale(context.Background(), f.tenantID, saleID)
	assert.Equal(t, apierror.KindInvalidState, apierror.KindOf(err), "a cancelled sale cannot be cancelled again")
}

func TestGetSaleTenantIsolation(t *testing.T) {
	f := newFixture()
	p := f.addProduct("10.00", "21", 5)

	created, err := f.saleSvc.CreateSale(context.Background(), f.tenantID, uuid.New(), f.saleRequest(p, 1, cashPayment("10.00")))
	require.NoError(t, err)

	_, err = f.saleSvc.GetSale(context.Background(), uuid.New(), uuid.MustParse(created.ID))
	assert.Equal(t, apierror.KindNotFound, apierror.KindOf(err))
}

func TestListSalesFiltersByStatus(t *testing.T) {
	f := newFixture()
	p := f.addProduct("10.00", "21", 50)

	for i := 0; i < 3; i++ {
		_, err := f.saleSvc.CreateSale(context.Background(), f.tenantID, uuid.New(), f.saleRequest(p, 1, cashPayment("10.00")))
		require.NoError(t, err)
	}

	list, err := f.saleSvc.ListSales(context.Background(), f.tenantID, dto.SaleFilter{Status: model.SaleCompleted})
	require.NoError(t, err)
	assert.Equal(t, int64(3), list.Total)
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, 20, list.Limit)

	none, err := f.saleSvc.ListSales(context.Background(), f.tenantID, dto.SaleFilter{Status: model.SaleCancelled})
	require.NoError(t, err)
	assert.Equal(t, int64(0), none.Total)
}
