package service

import (
	"context"
	"errors"
	"time"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/dto"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/infra"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/model"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// In-memory repository stubs. The services run their transactions through
// runTx, which passes a nil *gorm.DB straight through, so every stub ignores
// the tx argument.

var errDuplicateKey = errors.New("duplicate key value violates unique constraint (SQLSTATE 23505)")

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ── sales ────────────────────────────────────────────────────────────────────

type stubSaleRepo struct {
	sales map[uuid.UUID]*model.Sale
	seqs  map[string]int
}

func newStubSaleRepo() *stubSaleRepo {
	return &stubSaleRepo{sales: make(map[uuid.UUID]*model.Sale), seqs: make(map[string]int)}
}

func (r *stubSaleRepo) Create(_ context.Context, _ *gorm.DB, s *model.Sale) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	for i := range s.Items {
		if s.Items[i].ID == uuid.Nil {
			s.Items[i].ID = uuid.New()
		}
		s.Items[i].SaleID = s.ID
	}
	for i := range s.Payments {
		if s.Payments[i].ID == uuid.Nil {
			s.Payments[i].ID = uuid.New()
		}
		s.Payments[i].SaleID = s.ID
	}
	r.sales[s.ID] = s
	return nil
}

func (r *stubSaleRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*model.Sale, error) {
	s, ok := r.sales[id]
	if !ok || s.TenantID != tenantID {
		return nil, gorm.ErrRecordNotFound
	}
	// Emulate the RefundItems preload from the mirror sales in the store.
	for i := range s.Items {
		s.Items[i].RefundItems = r.mirrorsOf(s.Items[i].ID)
	}
	return s, nil
}

func (r *stubSaleRepo) mirrorsOf(itemID uuid.UUID) []model.SaleItem {
	var mirrors []model.SaleItem
	for _, sale := range r.sales {
		for _, it := range sale.Items {
			if it.OriginalItemID != nil && *it.OriginalItemID == itemID {
				mirrors = append(mirrors, it)
			}
		}
	}
	return mirrors
}

func (r *stubSaleRepo) FindItemByID(_ context.Context, tenantID, itemID uuid.UUID) (*model.SaleItem, error) {
	for _, sale := range r.sales {
		if sale.TenantID != tenantID {
			continue
		}
		for i := range sale.Items {
			if sale.Items[i].ID == itemID {
				return &sale.Items[i], nil
			}
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubSaleRepo) UpdateStatusTx(_ *gorm.DB, id uuid.UUID, status string) error {
	s, ok := r.sales[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.Status = status
	return nil
}

func (r *stubSaleRepo) RefundedQuantityTx(_ *gorm.DB, originalItemID uuid.UUID) (int, error) {
	total := 0
	for _, m := range r.mirrorsOf(originalItemID) {
		if m.Quantity < 0 {
			total += -m.Quantity
		} else {
			total += m.Quantity
		}
	}
	return total, nil
}

func (r *stubSaleRepo) NextSequenceTx(_ context.Context, _ *gorm.DB, tenantID, posID uuid.UUID, day string) (int, error) {
	key := tenantID.String() + posID.String() + day
	r.seqs[key]++
	return r.seqs[key], nil
}

func (r *stubSaleRepo) List(_ context.Context, tenantID uuid.UUID, filter dto.SaleFilter) ([]model.Sale, int64, error) {
	var out []model.Sale
	for _, s := range r.sales {
		if s.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && filter.Status != "all" && s.Status != filter.Status {
			continue
		}
		out = append(out, *s)
	}
	return out, int64(len(out)), nil
}

func (r *stubSaleRepo) DB() *gorm.DB { return nil }

var _ repository.SaleRepository = (*stubSaleRepo)(nil)

// ── catalog ──────────────────────────────────────────────────────────────────

type stubProductRepo struct {
	products map[uuid.UUID]*model.Product
	stock    map[uuid.UUID]int
}

func newStubProductRepo() *stubProductRepo {
	return &stubProductRepo{products: make(map[uuid.UUID]*model.Product), stock: make(map[uuid.UUID]int)}
}

func (r *stubProductRepo) add(p *model.Product, stock int) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.products[p.ID] = p
	r.stock[p.ID] = stock
}

func (r *stubProductRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*model.Product, error) {
	p, ok := r.products[id]
	if !ok || p.TenantID != tenantID || !p.Active {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (r *stubProductRepo) AdjustStockTx(_ *gorm.DB, productID, _ uuid.UUID, delta int) error {
	r.stock[productID] += delta
	return nil
}

func (r *stubProductRepo) StockLevel(_ context.Context, productID, branchID uuid.UUID) (*model.StockLevel, error) {
	qty, ok := r.stock[productID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &model.StockLevel{ProductID: productID, BranchID: branchID, Quantity: qty, Available: qty}, nil
}

var _ repository.ProductRepository = (*stubProductRepo)(nil)

type stubBranchRepo struct {
	branches map[uuid.UUID]*model.Branch
	pointsOfSale map[uuid.UUID]*model.PointOfSale
}

func newStubBranchRepo() *stubBranchRepo {
	return &stubBranchRepo{
		branches:     make(map[uuid.UUID]*model.Branch),
		pointsOfSale: make(map[uuid.UUID]*model.PointOfSale),
	}
}

func (r *stubBranchRepo) FindBranch(_ context.Context, tenantID, id uuid.UUID) (*model.Branch, error) {
	b, ok := r.branches[id]
	if !ok || b.TenantID != tenantID {
		return nil, gorm.ErrRecordNotFound
	}
	return b, nil
}

func (r *stubBranchRepo) FindPointOfSale(_ context.Context, tenantID, id uuid.UUID) (*model.PointOfSale, error) {
	p, ok := r.pointsOfSale[id]
	if !ok || p.TenantID != tenantID {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

var _ repository.BranchRepository = (*stubBranchRepo)(nil)

type stubUserRepo struct {
	users map[uuid.UUID]*model.User
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[uuid.UUID]*model.User)}
}

func (r *stubUserRepo) add(u *model.User) *model.User {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	r.users[u.ID] = u
	return u
}

func (r *stubUserRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*model.User, error) {
	u, ok := r.users[id]
	if !ok || u.TenantID != tenantID {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (r *stubUserRepo) ListActiveWithPIN(_ context.Context, tenantID uuid.UUID) ([]model.User, error) {
	var out []model.User
	for _, u := range r.users {
		if u.TenantID == tenantID && u.Active && u.PINHash != nil {
			out = append(out, *u)
		}
	}
	return out, nil
}

var _ repository.UserRepository = (*stubUserRepo)(nil)

// ── cash ─────────────────────────────────────────────────────────────────────

type stubCashRepo struct {
	sessions  map[uuid.UUID]*model.CashSession
	movements []model.CashMovement
}

func newStubCashRepo() *stubCashRepo {
	return &stubCashRepo{sessions: make(map[uuid.UUID]*model.CashSession)}
}

func (r *stubCashRepo) CreateSession(_ context.Context, s *model.CashSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	r.sessions[s.ID] = s
	return nil
}

func (r *stubCashRepo) FindSessionByID(_ context.Context, id uuid.UUID) (*model.CashSession, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return s, nil
}

func (r *stubCashRepo) FindOpenSession(_ context.Context, tenantID, userID, posID uuid.UUID) (*model.CashSession, error) {
	for _, s := range r.sessions {
		if s.TenantID == tenantID && s.UserID == userID && s.PointOfSaleID == posID && s.Status == model.SessionOpen {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubCashRepo) UpdateSession(_ context.Context, s *model.CashSession) error {
	r.sessions[s.ID] = s
	return nil
}

func (r *stubCashRepo) ApplySaleTotalsTx(_ *gorm.DB, sessionID uuid.UUID, tenders map[string]decimal.Decimal, saleTotal decimal.Decimal) error {
	s, ok := r.sessions[sessionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for method, amount := range tenders {
		switch method {
		case model.PayCash:
			s.TotalCash = s.TotalCash.Add(amount)
		case model.PayCard, model.PayCredit:
			s.TotalCard = s.TotalCard.Add(amount)
		case model.PayDebit:
			s.TotalDebit = s.TotalDebit.Add(amount)
		case model.PayQR:
			s.TotalQr = s.TotalQr.Add(amount)
		case model.PayTransfer:
			s.TotalTransfer = s.TotalTransfer.Add(amount)
		default:
			s.TotalOther = s.TotalOther.Add(amount)
		}
	}
	s.SalesCount++
	s.SalesTotal = s.SalesTotal.Add(saleTotal)
	return nil
}

func (r *stubCashRepo) ApplyWithdrawalTx(_ *gorm.DB, sessionID uuid.UUID, amount decimal.Decimal) error {
	s, ok := r.sessions[sessionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.TotalCash = s.TotalCash.Sub(amount)
	s.WithdrawalsTotal = s.WithdrawalsTotal.Add(amount)
	return nil
}

func (r *stubCashRepo) ApplyDepositTx(_ *gorm.DB, sessionID uuid.UUID, amount decimal.Decimal) error {
	s, ok := r.sessions[sessionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.TotalCash = s.TotalCash.Add(amount)
	return nil
}

func (r *stubCashRepo) CreateMovementTx(_ *gorm.DB, m *model.CashMovement) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	r.movements = append(r.movements, *m)
	return nil
}

func (r *stubCashRepo) ListMovements(_ context.Context, sessionID uuid.UUID) ([]model.CashMovement, error) {
	var out []model.CashMovement
	for _, m := range r.movements {
		if m.CashSessionID == sessionID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *stubCashRepo) DB() *gorm.DB { return nil }

var _ repository.CashRepository = (*stubCashRepo)(nil)

// ── payment orders ───────────────────────────────────────────────────────────

type stubOrderRepo struct {
	orders      map[uuid.UUID]*model.MercadoPagoOrder
	usedTxIDs   map[string]bool
}

func newStubOrderRepo() *stubOrderRepo {
	return &stubOrderRepo{orders: make(map[uuid.UUID]*model.MercadoPagoOrder), usedTxIDs: make(map[string]bool)}
}

func (r *stubOrderRepo) Create(_ context.Context, o *model.MercadoPagoOrder) error {
	for _, other := range r.orders {
		if other.TenantID == o.TenantID && other.ExternalReference == o.ExternalReference {
			return errDuplicateKey
		}
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	r.orders[o.ID] = o
	return nil
}

func (r *stubOrderRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*model.MercadoPagoOrder, error) {
	o, ok := r.orders[id]
	if !ok || o.TenantID != tenantID {
		return nil, gorm.ErrRecordNotFound
	}
	return o, nil
}

func (r *stubOrderRepo) FindByOrderID(_ context.Context, tenantID uuid.UUID, orderID string) (*model.MercadoPagoOrder, error) {
	for _, o := range r.orders {
		if o.TenantID == tenantID && o.OrderID != nil && *o.OrderID == orderID {
			return o, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubOrderRepo) FindByExternalReference(_ context.Context, tenantID uuid.UUID, ref string) (*model.MercadoPagoOrder, error) {
	for _, o := range r.orders {
		if o.TenantID == tenantID && o.ExternalReference == ref {
			return o, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubOrderRepo) Update(_ context.Context, o *model.MercadoPagoOrder) error {
	r.orders[o.ID] = o
	return nil
}

func (r *stubOrderRepo) ClaimTx(_ *gorm.DB, tenantID uuid.UUID, externalRef string, saleID uuid.UUID) (bool, error) {
	for _, o := range r.orders {
		if o.TenantID == tenantID && o.ExternalReference == externalRef && o.SaleID == nil {
			o.SaleID = &saleID
			return true, nil
		}
	}
	return false, nil
}

func (r *stubOrderRepo) ListOrphans(_ context.Context, tenantID uuid.UUID) ([]model.MercadoPagoOrder, error) {
	var out []model.MercadoPagoOrder
	for _, o := range r.orders {
		if o.TenantID == tenantID && o.Status == model.OrderProcessed && o.SaleID == nil {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *stubOrderRepo) PaymentTransactionExists(_ context.Context, _ uuid.UUID, transactionID string) (bool, error) {
	return r.usedTxIDs[transactionID], nil
}

func (r *stubOrderRepo) DB() *gorm.DB { return nil }

var _ repository.OrderRepository = (*stubOrderRepo)(nil)

// ── outbox ───────────────────────────────────────────────────────────────────

type stubOutboxRepo struct {
	redemptions map[uuid.UUID]*model.PendingRedemption
	creditNotes map[uuid.UUID]*model.CreditNote
}

func newStubOutboxRepo() *stubOutboxRepo {
	return &stubOutboxRepo{
		redemptions: make(map[uuid.UUID]*model.PendingRedemption),
		creditNotes: make(map[uuid.UUID]*model.CreditNote),
	}
}

func (r *stubOutboxRepo) CreateRedemptionTx(_ *gorm.DB, p *model.PendingRedemption) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.redemptions[p.ID] = p
	return nil
}

func (r *stubOutboxRepo) FindRedemption(_ context.Context, id uuid.UUID) (*model.PendingRedemption, error) {
	p, ok := r.redemptions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (r *stubOutboxRepo) ListDueRedemptions(_ context.Context, now time.Time, limit int) ([]model.PendingRedemption, error) {
	var due []model.PendingRedemption
	for _, p := range r.redemptions {
		if p.Status != model.RedemptionPending {
			continue
		}
		if p.NextRetryAt != nil && p.NextRetryAt.After(now) {
			continue
		}
		due = append(due, *p)
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

func (r *stubOutboxRepo) UpdateRedemption(_ context.Context, p *model.PendingRedemption) error {
	r.redemptions[p.ID] = p
	return nil
}

func (r *stubOutboxRepo) CreateCreditNote(_ context.Context, cn *model.CreditNote) error {
	if cn.ID == uuid.Nil {
		cn.ID = uuid.New()
	}
	if cn.Status == "" {
		cn.Status = "PENDING"
	}
	r.creditNotes[cn.ID] = cn
	return nil
}

func (r *stubOutboxRepo) FindCreditNote(_ context.Context, id uuid.UUID) (*model.CreditNote, error) {
	cn, ok := r.creditNotes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return cn, nil
}

func (r *stubOutboxRepo) ListDueCreditNotes(_ context.Context, now time.Time, limit int) ([]model.CreditNote, error) {
	var due []model.CreditNote
	for _, cn := range r.creditNotes {
		if cn.Status != "PENDING" {
			continue
		}
		if cn.NextRetryAt != nil && cn.NextRetryAt.After(now) {
			continue
		}
		due = append(due, *cn)
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

func (r *stubOutboxRepo) UpdateCreditNote(_ context.Context, cn *model.CreditNote) error {
	r.creditNotes[cn.ID] = cn
	return nil
}

var _ repository.OutboxRepository = (*stubOutboxRepo)(nil)

// ── instruments ──────────────────────────────────────────────────────────────

type stubGiftCardRepo struct {
	cards   map[uuid.UUID]*model.GiftCard
	ledgers map[uuid.UUID][]model.InstrumentTransaction
}

func newStubGiftCardRepo() *stubGiftCardRepo {
	return &stubGiftCardRepo{
		cards:   make(map[uuid.UUID]*model.GiftCard),
		ledgers: make(map[uuid.UUID][]model.InstrumentTransaction),
	}
}

func (r *stubGiftCardRepo) Create(_ context.Context, _ *gorm.DB, gc *model.GiftCard) error {
	for _, other := range r.cards {
		if other.TenantID == gc.TenantID && other.Code == gc.Code {
			return errDuplicateKey
		}
	}
	if gc.ID == uuid.Nil {
		gc.ID = uuid.New()
	}
	r.cards[gc.ID] = gc
	return nil
}

func (r *stubGiftCardRepo) FindByCode(_ context.Context, tenantID uuid.UUID, code string) (*model.GiftCard, error) {
	for _, gc := range r.cards {
		if gc.TenantID == tenantID && gc.Code == code {
			return gc, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubGiftCardRepo) FindByIDTx(_ *gorm.DB, id uuid.UUID) (*model.GiftCard, error) {
	gc, ok := r.cards[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return gc, nil
}

func (r *stubGiftCardRepo) DecrementBalanceTx(_ *gorm.DB, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	gc, ok := r.cards[id]
	if !ok || gc.CurrentBalance.LessThan(amount) {
		return false, nil
	}
	gc.CurrentBalance = gc.CurrentBalance.Sub(amount)
	return true, nil
}

func (r *stubGiftCardRepo) UpdateStatusTx(_ *gorm.DB, id uuid.UUID, status string) error {
	gc, ok := r.cards[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	gc.Status = status
	return nil
}

func (r *stubGiftCardRepo) AppendTransactionTx(_ *gorm.DB, t *model.InstrumentTransaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	r.ledgers[*t.GiftCardID] = append(r.ledgers[*t.GiftCardID], *t)
	return nil
}

func (r *stubGiftCardRepo) ListTransactions(_ context.Context, id uuid.UUID) ([]model.InstrumentTransaction, error) {
	return r.ledgers[id], nil
}

func (r *stubGiftCardRepo) DB() *gorm.DB { return nil }

var _ repository.GiftCardRepository = (*stubGiftCardRepo)(nil)

type stubStoreCreditRepo struct {
	credits map[uuid.UUID]*model.StoreCredit
	ledgers map[uuid.UUID][]model.InstrumentTransaction
}

func newStubStoreCreditRepo() *stubStoreCreditRepo {
	return &stubStoreCreditRepo{
		credits: make(map[uuid.UUID]*model.StoreCredit),
		ledgers: make(map[uuid.UUID][]model.InstrumentTransaction),
	}
}

func (r *stubStoreCreditRepo) Create(_ context.Context, _ *gorm.DB, sc *model.StoreCredit) error {
	for _, other := range r.credits {
		if other.TenantID == sc.TenantID && other.Code == sc.Code {
			return errDuplicateKey
		}
	}
	if sc.ID == uuid.Nil {
		sc.ID = uuid.New()
	}
	r.credits[sc.ID] = sc
	return nil
}

func (r *stubStoreCreditRepo) FindByCode(_ context.Context, tenantID uuid.UUID, code string) (*model.StoreCredit, error) {
	for _, sc := range r.credits {
		if sc.TenantID == tenantID && sc.Code == code {
			return sc, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubStoreCreditRepo) FindByIDTx(_ *gorm.DB, id uuid.UUID) (*model.StoreCredit, error) {
	sc, ok := r.credits[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return sc, nil
}

func (r *stubStoreCreditRepo) DecrementBalanceTx(_ *gorm.DB, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	sc, ok := r.credits[id]
	if !ok || sc.CurrentBalance.LessThan(amount) {
		return false, nil
	}
	sc.CurrentBalance = sc.CurrentBalance.Sub(amount)
	return true, nil
}

func (r *stubStoreCreditRepo) UpdateStatusTx(_ *gorm.DB, id uuid.UUID, status string) error {
	sc, ok := r.credits[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	sc.Status = status
	return nil
}

func (r *stubStoreCreditRepo) AppendTransactionTx(_ *gorm.DB, t *model.InstrumentTransaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	r.ledgers[*t.StoreCreditID] = append(r.ledgers[*t.StoreCreditID], *t)
	return nil
}

func (r *stubStoreCreditRepo) ListTransactions(_ context.Context, id uuid.UUID) ([]model.InstrumentTransaction, error) {
	return r.ledgers[id], nil
}

func (r *stubStoreCreditRepo) DB() *gorm.DB { return nil }

var _ repository.StoreCreditRepository = (*stubStoreCreditRepo)(nil)

// ── infra stubs ──────────────────────────────────────────────────────────────

type stubEmitter struct {
	fail     bool
	requests []infra.CreditNoteRequest
}

func (e *stubEmitter) EmitCreditNote(_ context.Context, req infra.CreditNoteRequest) (*infra.CreditNoteResponse, error) {
	e.requests = append(e.requests, req)
	if e.fail {
		return nil, errors.New("taxdoc: returned 503")
	}
	return &infra.CreditNoteResponse{
		Success:       true,
		InvoiceID:     "INV-0001",
		CAE:           "71234567890123",
		VoucherNumber: 42,
	}, nil
}

var _ infra.TaxDocEmitter = (*stubEmitter)(nil)

type stubProvider struct {
	orders    map[string]*infra.MPOrder
	payments  map[string]*infra.MPPayment
	createErr error
	cancelErr error
	created   []infra.MPOrderRequest
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		orders:   make(map[string]*infra.MPOrder),
		payments: make(map[string]*infra.MPPayment),
	}
}

func (p *stubProvider) CreateOrder(_ context.Context, req infra.MPOrderRequest) (*infra.MPOrder, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.created = append(p.created, req)
	order := &infra.MPOrder{
		ID:                "mpo-" + req.ExternalReference,
		Status:            "created",
		ExternalReference: req.ExternalReference,
		TotalAmount:       req.Amount,
	}
	p.orders[order.ID] = order
	return order, nil
}

func (p *stubProvider) GetOrder(_ context.Context, orderID string) (*infra.MPOrder, error) {
	o, ok := p.orders[orderID]
	if !ok {
		return nil, errors.New("mercadopago: GET returned 404")
	}
	return o, nil
}

func (p *stubProvider) CancelOrder(_ context.Context, _ string) error { return p.cancelErr }

func (p *stubProvider) GetPayment(_ context.Context, paymentID string) (*infra.MPPayment, error) {
	pay, ok := p.payments[paymentID]
	if !ok {
		return nil, errors.New("mercadopago: GET returned 404")
	}
	return pay, nil
}

var _ infra.PaymentProvider = (*stubProvider)(nil)

// ── fixture ──────────────────────────────────────────────────────────────────

// fixture assembles the full service graph over stubs for sale/refund tests.
type fixture struct {
	tenantID uuid.UUID
	branch   *model.Branch
	pos      *model.PointOfSale

	sales    *stubSaleRepo
	products *stubProductRepo
	branches *stubBranchRepo
	cash     *stubCashRepo
	orders   *stubOrderRepo
	outbox   *stubOutboxRepo
	users    *stubUserRepo
	gcRepo   *stubGiftCardRepo
	scRepo   *stubStoreCreditRepo

	giftCards   GiftCardService
	storeCredit StoreCreditService
	authz       AuthzService
	saleSvc     SaleService
}

func newFixture() *fixture {
	f := &fixture{
		tenantID: uuid.New(),
		sales:    newStubSaleRepo(),
		products: newStubProductRepo(),
		branches: newStubBranchRepo(),
		cash:     newStubCashRepo(),
		orders:   newStubOrderRepo(),
		outbox:   newStubOutboxRepo(),
		users:    newStubUserRepo(),
		gcRepo:   newStubGiftCardRepo(),
		scRepo:   newStubStoreCreditRepo(),
	}
	f.branch = &model.Branch{ID: uuid.New(), TenantID: f.tenantID, Code: "CENTRO", Name: "Casa Central", Active: true}
	f.branches.branches[f.branch.ID] = f.branch
	f.pos = &model.PointOfSale{ID: uuid.New(), TenantID: f.tenantID, BranchID: f.branch.ID, Code: "CAJA1", Name: "Caja 1", Active: true}
	f.branches.pointsOfSale[f.pos.ID] = f.pos

	f.giftCards = NewGiftCardService(f.gcRepo)
	f.storeCredit = NewStoreCreditService(f.scRepo)
	f.authz = NewAuthzService(f.users)
	f.saleSvc = NewSaleService(f.sales, f.products, f.branches, f.cash, f.orders, f.outbox, f.giftCards, f.storeCredit)
	return f
}

func (f *fixture) addProduct(price string, taxRate string, stock int) *model.Product {
	p := &model.Product{
		TenantID:    f.tenantID,
		SKU:         "SKU-" + uuid.NewString()[:8],
		Name:        "Producto",
		Price:       dec(price),
		TaxRate:     dec(taxRate),
		TracksStock: true,
		Active:      true,
	}
	f.products.add(p, stock)
	return p
}

func (f *fixture) refundSvc(emitter infra.TaxDocEmitter, cb *infra.CircuitBreaker) RefundService {
	return NewRefundService(f.sales, f.products, f.branches, f.cash, f.outbox, f.storeCredit, f.authz, emitter, cb)
}
