//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"saas-billing-core/internal/domain"
	"saas-billing-core/internal/domain/model"
	"saas-billing-core/internal/domain/ports/adapter"
	"saas-billing-core/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// =============================
// Repositories
// =============================

// ---- Mock PaymentRepo ----

type MockPaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*model.Payment

	SaveFunc                  func(ctx context.Context, tx repository.Tx, p *model.Payment) error
	FindByIDFunc              func(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error)
	FindByOrderIDFunc         func(ctx context.Context, tx repository.Tx, orderID string) (*model.Payment, error)
	UpdateStatusIfPendingFunc func(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, paymentKey *string, confirmedAt *time.Time, failReason string) (bool, error)
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{payments: make(map[string]*model.Payment)}
}

func (m *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, tx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.Payment, error) {
	if m.FindByOrderIDFunc != nil {
		return m.FindByOrderIDFunc(ctx, tx, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.OrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPaymentRepo) FindByPaymentKey(ctx context.Context, tx repository.Tx, paymentKey string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.PaymentKey != nil && *p.PaymentKey == paymentKey {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPaymentRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, paymentKey *string, confirmedAt *time.Time, failReason string) (bool, error) {
	if m.UpdateStatusIfPendingFunc != nil {
		return m.UpdateStatusIfPendingFunc(ctx, tx, id, status, paymentKey, confirmedAt, failReason)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = status
	p.PaymentKey = paymentKey
	p.ConfirmedAt = confirmedAt
	p.FailReason = failReason
	p.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockPaymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payment
	for _, p := range m.payments {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- Mock SubscriptionRepo ----

type MockSubscriptionRepo struct {
	mu   sync.Mutex
	subs map[string]*model.Subscription

	SaveFunc             func(ctx context.Context, tx repository.Tx, s *model.Subscription) error
	FindActiveByUserFunc func(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error)
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{subs: make(map[string]*model.Subscription)}
}

func (m *MockSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.subs[s.ID] = &cp
	return nil
}

func (m *MockSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockSubscriptionRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	if m.FindActiveByUserFunc != nil {
		return m.FindActiveByUserFunc(ctx, tx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.UserID == userID && (s.Status == model.SubscriptionStatusActive || s.Status == model.SubscriptionStatusPastDue) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) ListDueForRenewal(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.subs {
		if s.Status != model.SubscriptionStatusActive {
			continue
		}
		due := s.CurrentPeriodEnd
		if s.NextRenewalAt != nil {
			due = *s.NextRenewalAt
		}
		if due.Before(cutoff) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockSubscriptionRepo) CountActiveByBillingKey(ctx context.Context, tx repository.Tx, billingKeyID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.subs {
		if s.Status == model.SubscriptionStatusActive && s.BillingKeyID != nil && *s.BillingKeyID == billingKeyID {
			n++
		}
	}
	return n, nil
}

// ---- Mock BillingKeyRepo ----

type MockBillingKeyRepo struct {
	mu   sync.Mutex
	keys map[string]*model.BillingKey

	SaveFunc       func(ctx context.Context, tx repository.Tx, k *model.BillingKey) error
	DeleteFunc     func(ctx context.Context, tx repository.Tx, id string) error
	SetDefaultFunc func(ctx context.Context, tx repository.Tx, userID, keyID string) error
}

var _ repository.BillingKeyRepository = (*MockBillingKeyRepo)(nil)

func NewMockBillingKeyRepo() *MockBillingKeyRepo {
	return &MockBillingKeyRepo{keys: make(map[string]*model.BillingKey)}
}

func (m *MockBillingKeyRepo) Save(ctx context.Context, tx repository.Tx, k *model.BillingKey) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, k)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *k
	m.keys[k.ID] = &cp
	return nil
}

func (m *MockBillingKeyRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.BillingKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *k
	return &cp, nil
}

func (m *MockBillingKeyRepo) FindDefaultByUser(ctx context.Context, tx repository.Tx, userID string) (*model.BillingKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.UserID == userID && k.IsDefault {
			cp := *k
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockBillingKeyRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.BillingKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.BillingKey
	for _, k := range m.keys {
		if k.UserID == userID {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockBillingKeyRepo) SetDefault(ctx context.Context, tx repository.Tx, userID, keyID string) error {
	if m.SetDefaultFunc != nil {
		return m.SetDefaultFunc(ctx, tx, userID, keyID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.UserID == userID {
			k.IsDefault = k.ID == keyID
		}
	}
	return nil
}

func (m *MockBillingKeyRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, tx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, id)
	return nil
}

func (m *MockBillingKeyRepo) CountByUser(ctx context.Context, tx repository.Tx, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, k := range m.keys {
		if k.UserID == userID {
			n++
		}
	}
	return n, nil
}

// ---- Mock RefundRequestRepo ----

type MockRefundRequestRepo struct {
	mu       sync.Mutex
	requests map[string]*model.RefundRequest
}

var _ repository.RefundRequestRepository = (*MockRefundRequestRepo)(nil)

func NewMockRefundRequestRepo() *MockRefundRequestRepo {
	return &MockRefundRequestRepo{requests: make(map[string]*model.RefundRequest)}
}

func (m *MockRefundRequestRepo) Put(req *model.RefundRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	m.requests[req.ID] = &cp
}

func (m *MockRefundRequestRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.RefundRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MockRefundRequestRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.RefundStatus, offset, limit int) ([]*model.RefundRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.RefundRequest
	for _, r := range m.requests {
		if r.Status == status {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockRefundRequestRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.RefundRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.RefundRequest
	for _, r := range m.requests {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- Mock CompensationRepo ----

type MockCompensationRepo struct {
	mu      sync.Mutex
	Records []*model.CompensationRecord

	SaveFunc func(ctx context.Context, tx repository.Tx, rec *model.CompensationRecord) error
}

var _ repository.CompensationRepository = (*MockCompensationRepo)(nil)

func NewMockCompensationRepo() *MockCompensationRepo { return &MockCompensationRepo{} }

func (m *MockCompensationRepo) Save(ctx context.Context, tx repository.Tx, rec *model.CompensationRecord) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.Records = append(m.Records, &cp)
	return nil
}

func (m *MockCompensationRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.CompensationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.Records {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockCompensationRepo) ListPending(ctx context.Context, tx repository.Tx, manualOnly bool, limit int) ([]*model.CompensationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CompensationRecord
	for _, r := range m.Records {
		if r.Status != model.CompensationStatusPending {
			continue
		}
		if manualOnly && !r.RequiresManualIntervention {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MockCompensationRepo) MarkProcessed(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.Records {
		if r.ID == id {
			r.Status = model.CompensationStatusProcessed
			r.ProcessedAt = &at
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *MockCompensationRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Records)
}

// ---- Mock WebhookLogRepo ----

type MockWebhookLogRepo struct {
	mu      sync.Mutex
	entries map[string]*model.WebhookLogEntry
	seq     int

	UpsertIfAbsentFunc func(ctx context.Context, tx repository.Tx, key, eventType string, payload []byte) (*model.WebhookLogEntry, bool, error)
	MarkResultFunc     func(ctx context.Context, tx repository.Tx, id string, status model.WebhookStatus, errMsg string, at time.Time) error
}

var _ repository.WebhookLogRepository = (*MockWebhookLogRepo)(nil)

func NewMockWebhookLogRepo() *MockWebhookLogRepo {
	return &MockWebhookLogRepo{entries: make(map[string]*model.WebhookLogEntry)}
}

func (m *MockWebhookLogRepo) UpsertIfAbsent(ctx context.Context, tx repository.Tx, key, eventType string, payload []byte) (*model.WebhookLogEntry, bool, error) {
	if m.UpsertIfAbsentFunc != nil {
		return m.UpsertIfAbsentFunc(ctx, tx, key, eventType, payload)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		cp := *e
		return &cp, false, nil
	}
	m.seq++
	e := &model.WebhookLogEntry{
		ID:             fmt.Sprintf("wh-%d", m.seq),
		IdempotencyKey: key,
		EventType:      eventType,
		Payload:        payload,
		Status:         model.WebhookStatusPending,
		CreatedAt:      time.Now(),
	}
	m.entries[key] = e
	cp := *e
	return &cp, true, nil
}

func (m *MockWebhookLogRepo) MarkResult(ctx context.Context, tx repository.Tx, id string, status model.WebhookStatus, errMsg string, at time.Time) error {
	if m.MarkResultFunc != nil {
		return m.MarkResultFunc(ctx, tx, id, status, errMsg, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.Status = status
			e.Error = errMsg
			e.ProcessedAt = &at
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *MockWebhookLogRepo) Entry(key string) *model.WebhookLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		cp := *e
		return &cp
	}
	return nil
}

// ---- Mock PlanRepo ----

type MockPlanRepo struct {
	mu    sync.Mutex
	plans map[string]*model.Plan
}

var _ repository.PlanRepository = (*MockPlanRepo)(nil)

func NewMockPlanRepo() *MockPlanRepo {
	return &MockPlanRepo{plans: make(map[string]*model.Plan)}
}

func (m *MockPlanRepo) Put(p *model.Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.plans[p.ID] = &cp
}

func (m *MockPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPlanRepo) List(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Plan
	for _, p := range m.plans {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// =============================
// Atomic procedures
// =============================

// MockProcedures records every call and defaults to success; individual
// procedures are overridden per test via the Func fields.
type MockProcedures struct {
	mu    sync.Mutex
	Calls []string

	ConfirmSubscriptionFunc       func(ctx context.Context, tx repository.Tx, args repository.ConfirmSubscriptionArgs) error
	RenewSubscriptionFunc         func(ctx context.Context, tx repository.Tx, args repository.RenewSubscriptionArgs) error
	ChangePlanImmediateFunc       func(ctx context.Context, tx repository.Tx, args repository.ChangePlanImmediateArgs) error
	SchedulePlanChangeFunc        func(ctx context.Context, tx repository.Tx, args repository.SchedulePlanChangeArgs) error
	ProcessSimpleRefundFunc       func(ctx context.Context, tx repository.Tx, args repository.RefundArgs) error
	ProcessCreditRefundFunc       func(ctx context.Context, tx repository.Tx, args repository.RefundArgs) error
	ProcessSubscriptionRefundFunc func(ctx context.Context, tx repository.Tx, args repository.RefundArgs) error
	DeductCreditForRefundFunc     func(ctx context.Context, tx repository.Tx, args repository.RefundArgs) error
	UpdateRefundRequestStatusFunc func(ctx context.Context, tx repository.Tx, args repository.RefundRequestUpdateArgs) error
	CalculateProratedRefundFunc   func(ctx context.Context, tx repository.Tx, paymentID string) (int64, error)

	StatusUpdates []repository.RefundRequestUpdateArgs
}

var _ repository.LedgerProcedures = (*MockProcedures)(nil)

func NewMockProcedures() *MockProcedures { return &MockProcedures{} }

func (m *MockProcedures) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, name)
}

func (m *MockProcedures) Called(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.Calls {
		if c == name {
			return true
		}
	}
	return false
}

func (m *MockProcedures) ConfirmSubscription(ctx context.Context, tx repository.Tx, args repository.ConfirmSubscriptionArgs) error {
	m.record("confirm_subscription")
	if m.ConfirmSubscriptionFunc != nil {
		return m.ConfirmSubscriptionFunc(ctx, tx, args)
	}
	return nil
}

func (m *MockProcedures) RenewSubscription(ctx context.Context, tx repository.Tx, args repository.RenewSubscriptionArgs) error {
	m.record("renew_subscription")
	if m.RenewSubscriptionFunc != nil {
		return m.RenewSubscriptionFunc(ctx, tx, args)
	}
	return nil
}

func (m *MockProcedures) ChangePlanImmediate(ctx context.Context, tx repository.Tx, args repository.ChangePlanImmediateArgs) error {
	m.record("change_plan_immediate")
	if m.ChangePlanImmediateFunc != nil {
		return m.ChangePlanImmediateFunc(ctx, tx, args)
	}
	return nil
}

func (m *MockProcedures) SchedulePlanChange(ctx context.Context, tx repository.Tx, args repository.SchedulePlanChangeArgs) error {
	m.record("schedule_plan_change")
	if m.SchedulePlanChangeFunc != nil {
		return m.SchedulePlanChangeFunc(ctx, tx, args)
	}
	return nil
}

func (m *MockProcedures) CancelScheduledPlanChange(ctx context.Context, tx repository.Tx, subscriptionID string) error {
	m.record("cancel_scheduled_plan_change")
	return nil
}

func (m *MockProcedures) ProcessSimpleRefund(ctx context.Context, tx repository.Tx, args repository.RefundArgs) error {
	m.record("process_simple_refund")
	if m.ProcessSimpleRefundFunc != nil {
		return m.ProcessSimpleRefundFunc(ctx, tx, args)
	}
	return nil
}

func (m *MockProcedures) ProcessCreditRefund(ctx context.Context, tx repository.Tx, args repository.RefundArgs) error {
	m.record("process_credit_refund")
	if m.ProcessCreditRefundFunc != nil {
		return m.ProcessCreditRefundFunc(ctx, tx, args)
	}
	return nil
}

func (m *MockProcedures) ProcessSubscriptionRefund(ctx context.Context, tx repository.Tx, args repository.RefundArgs) error {
	m.record("process_subscription_refund")
	if m.ProcessSubscriptionRefundFunc != nil {
		return m.ProcessSubscriptionRefundFunc(ctx, tx, args)
	}
	return nil
}

func (m *MockProcedures) DeductCreditForRefund(ctx context.Context, tx repository.Tx, args repository.RefundArgs) error {
	m.record("deduct_credit_for_refund")
	if m.DeductCreditForRefundFunc != nil {
		return m.DeductCreditForRefundFunc(ctx, tx, args)
	}
	return nil
}

func (m *MockProcedures) CreateRefundRequest(ctx context.Context, tx repository.Tx, req *model.RefundRequest) error {
	m.record("create_refund_request")
	return nil
}

func (m *MockProcedures) UpdateRefundRequestStatus(ctx context.Context, tx repository.Tx, args repository.RefundRequestUpdateArgs) error {
	m.record("update_refund_request_status")
	m.mu.Lock()
	m.StatusUpdates = append(m.StatusUpdates, args)
	m.mu.Unlock()
	if m.UpdateRefundRequestStatusFunc != nil {
		return m.UpdateRefundRequestStatusFunc(ctx, tx, args)
	}
	return nil
}

func (m *MockProcedures) CalculateProratedRefund(ctx context.Context, tx repository.Tx, paymentID string) (int64, error) {
	m.record("calculate_prorated_refund")
	if m.CalculateProratedRefundFunc != nil {
		return m.CalculateProratedRefundFunc(ctx, tx, paymentID)
	}
	return 0, nil
}

func (m *MockProcedures) DeactivateSubscriptionsByBillingKey(ctx context.Context, tx repository.Tx, billingKeyID string) error {
	m.record("deactivate_subscriptions_by_billing_key")
	return nil
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockGateway struct {
	mu          sync.Mutex
	CancelCalls int
	ChargeCalls int

	ConfirmPaymentFunc  func(ctx context.Context, paymentKey, orderID string, amount int64) (*adapter.Receipt, error)
	CancelPaymentFunc   func(ctx context.Context, paymentKey, reason string, amount *int64) (*adapter.CancelReceipt, error)
	IssueBillingKeyFunc func(ctx context.Context, authKey, customerKey string) (*adapter.BillingKeyInfo, error)
	ChargeBillingFunc   func(ctx context.Context, billingKey, customerKey string, amount int64, orderID, orderName string) (*adapter.Receipt, error)
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) ConfirmPayment(ctx context.Context, paymentKey, orderID string, amount int64) (*adapter.Receipt, error) {
	if m.ConfirmPaymentFunc != nil {
		return m.ConfirmPaymentFunc(ctx, paymentKey, orderID, amount)
	}
	return &adapter.Receipt{PaymentKey: paymentKey, OrderID: orderID, TotalAmount: amount, ApprovedAt: time.Now()}, nil
}

func (m *MockGateway) CancelPayment(ctx context.Context, paymentKey, reason string, amount *int64) (*adapter.CancelReceipt, error) {
	m.mu.Lock()
	m.CancelCalls++
	m.mu.Unlock()
	if m.CancelPaymentFunc != nil {
		return m.CancelPaymentFunc(ctx, paymentKey, reason, amount)
	}
	var amt int64
	if amount != nil {
		amt = *amount
	}
	return &adapter.CancelReceipt{PaymentKey: paymentKey, CancelAmount: amt, CanceledAt: time.Now()}, nil
}

func (m *MockGateway) IssueBillingKey(ctx context.Context, authKey, customerKey string) (*adapter.BillingKeyInfo, error) {
	if m.IssueBillingKeyFunc != nil {
		return m.IssueBillingKeyFunc(ctx, authKey, customerKey)
	}
	return &adapter.BillingKeyInfo{
		BillingKey:  "bk-" + authKey,
		CustomerKey: customerKey,
		CardCompany: "TestBank",
		CardNumber:  "1234-****-****-5678",
		CardType:    "credit",
	}, nil
}

func (m *MockGateway) ChargeBilling(ctx context.Context, billingKey, customerKey string, amount int64, orderID, orderName string) (*adapter.Receipt, error) {
	m.mu.Lock()
	m.ChargeCalls++
	m.mu.Unlock()
	if m.ChargeBillingFunc != nil {
		return m.ChargeBillingFunc(ctx, billingKey, customerKey, amount, orderID, orderName)
	}
	return &adapter.Receipt{PaymentKey: "pk-" + orderID, OrderID: orderID, TotalAmount: amount, Method: "card", ApprovedAt: time.Now()}, nil
}

// ---- Mock AdminAlerter ----

type MockAlerter struct {
	mu    sync.Mutex
	Sent  []string
	Fail  bool
}

var _ adapter.AdminAlerter = (*MockAlerter)(nil)

func (m *MockAlerter) Alert(ctx context.Context, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return context.DeadlineExceeded
	}
	m.Sent = append(m.Sent, subject+": "+body)
	return nil
}

// ---- Mock Encryptor ----

// MockEncryptor is a reversible toy cipher so tests can assert the plaintext
// key never reaches storage.
type MockEncryptor struct{}

func (MockEncryptor) Encrypt(plaintext string) (string, error) { return "enc:" + plaintext, nil }

func (MockEncryptor) Decrypt(ciphertext string) (string, error) {
	if len(ciphertext) > 4 && ciphertext[:4] == "enc:" {
		return ciphertext[4:], nil
	}
	return "", domain.ErrInvalidArgument
}

// ---- Mock TxManager ----

// MockTxManager runs the callback with no real transaction. WithTxFunc lets a
// test observe rollbacks (the callback error) or fail the begin itself.
type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
	Began      int
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.Began++
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}
