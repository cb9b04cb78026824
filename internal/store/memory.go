package store

import (
	"context"
	"sync"
	"time"

	"exchange-service/internal/apperr"
	"exchange-service/internal/models"
)

// MemoryStore is an in-process Repository with the same semantics as Store.
// It backs unit tests and the STORE_DRIVER=memory mode; nothing survives a restart.
type MemoryStore struct {
	mu sync.RWMutex

	materials     map[string]models.Material
	organizations map[string]models.Organization

	transactions  []*models.Transaction
	requests      []*models.MaterialRequest
	feedback      []*models.Feedback
	reports       []*models.SellerReport
	notifications []*models.Notification
	totals        map[string]*models.RatingTotals

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		materials:     make(map[string]models.Material),
		organizations: make(map[string]models.Organization),
		totals:        make(map[string]*models.RatingTotals),
		now:           time.Now,
	}
}

// PutMaterial seeds a catalog material
func (m *MemoryStore) PutMaterial(material models.Material) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.materials[material.ID] = material
}

// PutOrganization seeds a seller organization
func (m *MemoryStore) PutOrganization(org models.Organization) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.organizations[org.ID] = org
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) GetMaterialByID(_ context.Context, id string) (*models.Material, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	material, ok := m.materials[id]
	if !ok {
		return nil, apperr.NotFound("material", id)
	}
	return &material, nil
}

func (m *MemoryStore) GetOrganizationByID(_ context.Context, id string) (*models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	org, ok := m.organizations[id]
	if !ok {
		return nil, apperr.NotFound("organization", id)
	}
	return &org, nil
}

func (m *MemoryStore) CreateTransaction(_ context.Context, tx *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.transactions {
		if existing.BuyerID == tx.BuyerID && existing.MaterialID == tx.MaterialID && !models.IsTerminal(existing.Status) {
			return apperr.Validation("you have already requested this material")
		}
	}
	now := m.now()
	tx.CreatedAt, tx.UpdatedAt = now, now
	stored := *tx
	m.transactions = append(m.transactions, &stored)
	return nil
}

func (m *MemoryStore) GetTransactionByID(_ context.Context, id string) (*models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx := m.findTransaction(id)
	if tx == nil {
		return nil, apperr.NotFound("transaction", id)
	}
	out := *tx
	return &out, nil
}

func (m *MemoryStore) TransitionTransaction(_ context.Context, id, from, to string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := m.findTransaction(id)
	if tx == nil {
		return nil, apperr.NotFound("transaction", id)
	}
	if tx.Status != from {
		return nil, apperr.InvalidState("transaction %s is %s, expected %s", id, tx.Status, from)
	}
	tx.Status = to
	tx.UpdatedAt = m.now()
	out := *tx
	return &out, nil
}

func (m *MemoryStore) GetOpenTransaction(_ context.Context, buyerID, materialID string) (*models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.transactions) - 1; i >= 0; i-- {
		tx := m.transactions[i]
		if tx.BuyerID == buyerID && tx.MaterialID == materialID && !models.IsTerminal(tx.Status) {
			out := *tx
			return &out, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) GetTransactionsByBuyerID(_ context.Context, buyerID string) ([]models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Transaction{}
	for i := len(m.transactions) - 1; i >= 0; i-- {
		if m.transactions[i].BuyerID == buyerID {
			out = append(out, *m.transactions[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) GetTransactionsBySellerOrgID(_ context.Context, sellerOrgID string) ([]models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Transaction{}
	for i := len(m.transactions) - 1; i >= 0; i-- {
		if m.transactions[i].SellerOrgID == sellerOrgID {
			out = append(out, *m.transactions[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) CountTransactionsByStatus(_ context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, tx := range m.transactions {
		counts[tx.Status]++
	}
	return counts, nil
}

func (m *MemoryStore) CreateRequest(_ context.Context, req *models.MaterialRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	req.CreatedAt, req.UpdatedAt = now, now
	stored := *req
	m.requests = append(m.requests, &stored)
	return nil
}

func (m *MemoryStore) GetRequestByID(_ context.Context, id string) (*models.MaterialRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req := m.findRequest(id)
	if req == nil {
		return nil, apperr.NotFound("request", id)
	}
	out := *req
	return &out, nil
}

func (m *MemoryStore) MarkRequestFulfilled(_ context.Context, id, materialID string) (*models.MaterialRequest, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req := m.findRequest(id)
	if req == nil {
		return nil, false, apperr.NotFound("request", id)
	}
	if req.Status == models.RequestStatusFulfilled {
		out := *req
		return &out, false, nil
	}
	req.Status = models.RequestStatusFulfilled
	req.MaterialID = materialID
	req.UpdatedAt = m.now()
	out := *req
	return &out, true, nil
}

func (m *MemoryStore) GetRequestsByBuyerID(_ context.Context, buyerID string) ([]models.MaterialRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.MaterialRequest{}
	for i := len(m.requests) - 1; i >= 0; i-- {
		if m.requests[i].BuyerID == buyerID {
			out = append(out, *m.requests[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) CountRequestsByStatus(_ context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, req := range m.requests {
		counts[req.Status]++
	}
	return counts, nil
}

func (m *MemoryStore) CreateFeedback(_ context.Context, fb *models.Feedback, onePerStage bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findTransaction(fb.TransactionID) == nil {
		return apperr.NotFound("transaction", fb.TransactionID)
	}
	if onePerStage {
		for _, existing := range m.feedback {
			if existing.TransactionID == fb.TransactionID && existing.Stage == fb.Stage {
				return apperr.Validation("feedback already submitted for this transaction at stage %s", models.StageLabel(fb.Stage))
			}
		}
	}

	fb.CreatedAt = m.now()
	stored := *fb
	m.feedback = append(m.feedback, &stored)

	totals, ok := m.totals[fb.SellerOrgID]
	if !ok {
		totals = &models.RatingTotals{SellerOrgID: fb.SellerOrgID}
		m.totals[fb.SellerOrgID] = totals
	}
	totals.Count++
	totals.Sum += int64(fb.Rating)
	return nil
}

func (m *MemoryStore) GetRatingTotals(_ context.Context, sellerOrgID string) (*models.RatingTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if totals, ok := m.totals[sellerOrgID]; ok {
		out := *totals
		return &out, nil
	}
	return &models.RatingTotals{SellerOrgID: sellerOrgID}, nil
}

func (m *MemoryStore) GetFeedbackBySellerOrgID(_ context.Context, sellerOrgID string) ([]models.Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Feedback{}
	for i := len(m.feedback) - 1; i >= 0; i-- {
		if m.feedback[i].SellerOrgID == sellerOrgID {
			out = append(out, *m.feedback[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) GetFeedbackByTransactionID(_ context.Context, transactionID string) ([]models.Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Feedback{}
	for i := len(m.feedback) - 1; i >= 0; i-- {
		if m.feedback[i].TransactionID == transactionID {
			out = append(out, *m.feedback[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateSellerReport(_ context.Context, report *models.SellerReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findTransaction(report.TransactionID) == nil {
		return apperr.NotFound("transaction", report.TransactionID)
	}
	report.CreatedAt = m.now()
	stored := *report
	m.reports = append(m.reports, &stored)
	return nil
}

func (m *MemoryStore) GetSellerReportsBySellerOrgID(_ context.Context, sellerOrgID string) ([]models.SellerReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.SellerReport{}
	for i := len(m.reports) - 1; i >= 0; i-- {
		if m.reports[i].SellerOrgID == sellerOrgID {
			out = append(out, *m.reports[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateNotification(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.CreatedAt = m.now()
	stored := *n
	m.notifications = append(m.notifications, &stored)
	return nil
}

func (m *MemoryStore) GetNotificationByID(_ context.Context, id string) (*models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := m.findNotification(id)
	if n == nil {
		return nil, apperr.NotFound("notification", id)
	}
	out := *n
	return &out, nil
}

func (m *MemoryStore) MarkNotificationRead(_ context.Context, id string) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.findNotification(id)
	if n == nil {
		return nil, apperr.NotFound("notification", id)
	}
	n.Read = true
	out := *n
	return &out, nil
}

func (m *MemoryStore) GetNotificationsByBuyerID(_ context.Context, buyerID string) ([]models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Notification{}
	for i := len(m.notifications) - 1; i >= 0; i-- {
		if m.notifications[i].RecipientBuyerID == buyerID {
			out = append(out, *m.notifications[i])
		}
	}
	return out, nil
}

// callers hold mu
func (m *MemoryStore) findTransaction(id string) *models.Transaction {
	for _, tx := range m.transactions {
		if tx.ID == id {
			return tx
		}
	}
	return nil
}

func (m *MemoryStore) findRequest(id string) *models.MaterialRequest {
	for _, req := range m.requests {
		if req.ID == id {
			return req
		}
	}
	return nil
}

func (m *MemoryStore) findNotification(id string) *models.Notification {
	for _, n := range m.notifications {
		if n.ID == id {
			return n
		}
	}
	return nil
}
