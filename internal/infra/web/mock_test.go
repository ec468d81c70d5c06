//go:build !integration

package web

import (
	"context"
	"sync"
	"time"

	"saas-billing-core/internal/domain"
	"saas-billing-core/internal/domain/model"
	"saas-billing-core/internal/domain/ports/repository"
	"saas-billing-core/internal/usecase"
)

// --- Mocks ---

type mockWebhookUC struct {
	ProcessFunc func(ctx context.Context, rawBody []byte, transmissionID string) (usecase.WebhookOutcome, error)
	Calls       int
}

var _ usecase.WebhookUseCase = (*mockWebhookUC)(nil)

func (m *mockWebhookUC) Process(ctx context.Context, rawBody []byte, transmissionID string) (usecase.WebhookOutcome, error) {
	m.Calls++
	if m.ProcessFunc != nil {
		return m.ProcessFunc(ctx, rawBody, transmissionID)
	}
	return usecase.WebhookProcessed, nil
}

type mockRefundUC struct {
	RequestFunc func(ctx context.Context, userID, paymentID string, amount *int64, reason string) (*usecase.RefundResult, error)
	CreateFunc  func(ctx context.Context, userID, paymentID string, amount int64, typ model.RefundType, reason string) (*model.RefundRequest, error)
	CancelFunc  func(ctx context.Context, userID, requestID string) error
	ApproveFunc func(ctx context.Context, requestID, adminNote string) (*usecase.RefundResult, error)
	RejectFunc  func(ctx context.Context, requestID, reason string) error
}

var _ usecase.RefundUseCase = (*mockRefundUC)(nil)

func (m *mockRefundUC) RequestRefund(ctx context.Context, userID, paymentID string, amount *int64, reason string) (*usecase.RefundResult, error) {
	if m.RequestFunc != nil {
		return m.RequestFunc(ctx, userID, paymentID, amount, reason)
	}
	return &usecase.RefundResult{PaymentID: paymentID, Amount: 1000}, nil
}

func (m *mockRefundUC) CreateRefundRequest(ctx context.Context, userID, paymentID string, amount int64, typ model.RefundType, reason string) (*model.RefundRequest, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, userID, paymentID, amount, typ, reason)
	}
	return &model.RefundRequest{ID: "req-1", PaymentID: paymentID, Status: model.RefundStatusPending}, nil
}

func (m *mockRefundUC) CancelRefundRequest(ctx context.Context, userID, requestID string) error {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, userID, requestID)
	}
	return nil
}

func (m *mockRefundUC) ApproveRefundRequest(ctx context.Context, requestID, adminNote string) (*usecase.RefundResult, error) {
	if m.ApproveFunc != nil {
		return m.ApproveFunc(ctx, requestID, adminNote)
	}
	return &usecase.RefundResult{PaymentID: "pay-1", Amount: 1000}, nil
}

func (m *mockRefundUC) RejectRefundRequest(ctx context.Context, requestID, reason string) error {
	if m.RejectFunc != nil {
		return m.RejectFunc(ctx, requestID, reason)
	}
	return nil
}

type mockSubscriptionUC struct {
	PrepareFunc func(ctx context.Context, userID, planID string, cycle model.BillingCycle) (*model.Payment, error)
	ConfirmFunc func(ctx context.Context, userID string, in usecase.ConfirmSubscriptionInput) (*model.Subscription, error)
	CancelFunc  func(ctx context.Context, userID string, atPeriodEnd bool) error
}

var _ usecase.SubscriptionUseCase = (*mockSubscriptionUC)(nil)

func (m *mockSubscriptionUC) PrepareSubscription(ctx context.Context, userID, planID string, cycle model.BillingCycle) (*model.Payment, error) {
	if m.PrepareFunc != nil {
		return m.PrepareFunc(ctx, userID, planID, cycle)
	}
	return &model.Payment{ID: "pay-1", OrderID: "order-1", Amount: 29900, Status: model.PaymentStatusPending, CreatedAt: time.Now()}, nil
}

func (m *mockSubscriptionUC) ConfirmSubscription(ctx context.Context, userID string, in usecase.ConfirmSubscriptionInput) (*model.Subscription, error) {
	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(ctx, userID, in)
	}
	return &model.Subscription{ID: "sub-1", UserID: userID, PlanID: in.PlanID, Status: model.SubscriptionStatusActive}, nil
}

func (m *mockSubscriptionUC) RenewSubscription(ctx context.Context, subscriptionID string) error {
	return nil
}

func (m *mockSubscriptionUC) CancelSubscription(ctx context.Context, userID string, atPeriodEnd bool) error {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, userID, atPeriodEnd)
	}
	return nil
}

type mockPlanChangeUC struct {
	PrepareFunc func(ctx context.Context, userID, newPlanID string, newCycle model.BillingCycle) (*usecase.PlanChangeQuote, error)
	ConfirmFunc func(ctx context.Context, userID string, in usecase.ConfirmPlanChangeInput) error
	CancelFunc  func(ctx context.Context, userID string) error
}

var _ usecase.PlanChangeUseCase = (*mockPlanChangeUC)(nil)

func (m *mockPlanChangeUC) PreparePlanChange(ctx context.Context, userID, newPlanID string, newCycle model.BillingCycle) (*usecase.PlanChangeQuote, error) {
	if m.PrepareFunc != nil {
		return m.PrepareFunc(ctx, userID, newPlanID, newCycle)
	}
	return &usecase.PlanChangeQuote{NewPlanID: newPlanID, NewCycle: newCycle}, nil
}

func (m *mockPlanChangeUC) ConfirmPlanChange(ctx context.Context, userID string, in usecase.ConfirmPlanChangeInput) error {
	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(ctx, userID, in)
	}
	return nil
}

func (m *mockPlanChangeUC) CancelScheduledChange(ctx context.Context, userID string) error {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, userID)
	}
	return nil
}

type mockBillingKeyUC struct {
	ListFunc       func(ctx context.Context, userID string) ([]*model.BillingKey, error)
	SetDefaultFunc func(ctx context.Context, userID, keyID string) error
	DeleteFunc     func(ctx context.Context, userID, keyID string) error
}

var _ usecase.BillingKeyUseCase = (*mockBillingKeyUC)(nil)

func (m *mockBillingKeyUC) ListPaymentMethods(ctx context.Context, userID string) ([]*model.BillingKey, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockBillingKeyUC) SetDefaultPaymentMethod(ctx context.Context, userID, keyID string) error {
	if m.SetDefaultFunc != nil {
		return m.SetDefaultFunc(ctx, userID, keyID)
	}
	return nil
}

func (m *mockBillingKeyUC) DeletePaymentMethod(ctx context.Context, userID, keyID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, userID, keyID)
	}
	return nil
}

type mockRefundRequestRepo struct {
	mu       sync.Mutex
	requests []*model.RefundRequest
	ListErr  error
}

var _ repository.RefundRequestRepository = (*mockRefundRequestRepo)(nil)

func (m *mockRefundRequestRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.RefundRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockRefundRequestRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.RefundStatus, offset, limit int) ([]*model.RefundRequest, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.RefundRequest
	for _, r := range m.requests {
		if r.Status == status {
			out = append(out, r)
		}
	}
	if offset >= len(out) {
		return []*model.RefundRequest{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (m *mockRefundRequestRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.RefundRequest, error) {
	return nil, nil
}

type mockCompensationRepo struct {
	mu      sync.Mutex
	records []*model.CompensationRecord
}

var _ repository.CompensationRepository = (*mockCompensationRepo)(nil)

func (m *mockCompensationRepo) Save(ctx context.Context, tx repository.Tx, rec *model.CompensationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *mockCompensationRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.CompensationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockCompensationRepo) ListPending(ctx context.Context, tx repository.Tx, manualOnly bool, limit int) ([]*model.CompensationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CompensationRecord
	for _, r := range m.records {
		if r.Status != model.CompensationStatusPending {
			continue
		}
		if manualOnly && !r.RequiresManualIntervention {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockCompensationRepo) MarkProcessed(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id && r.Status == model.CompensationStatusPending {
			r.Status = model.CompensationStatusProcessed
			r.ProcessedAt = &at
			return nil
		}
	}
	return domain.ErrNotFound
}

type mockWebhookCache struct {
	mu     sync.Mutex
	seen   map[string]bool
	Marked []string
}

func (m *mockWebhookCache) Seen(ctx context.Context, transmissionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[transmissionID], nil
}

func (m *mockWebhookCache) Mark(ctx context.Context, transmissionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	m.seen[transmissionID] = true
	m.Marked = append(m.Marked, transmissionID)
	return nil
}
