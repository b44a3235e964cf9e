// Package memory holds in-memory repository implementations. They back the
// service tests and keep the same semantics as the postgres versions,
// including atomic conditional balance and status transitions.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"brandotp/internal/app/apperr"
	"brandotp/internal/app/model"
	"brandotp/internal/app/storage"
)

var (
	_ storage.UserRepository         = (*Users)(nil)
	_ storage.LedgerRepository       = (*Ledger)(nil)
	_ storage.OtpRequestRepository   = (*Requests)(nil)
	_ storage.ServiceRepository      = (*Services)(nil)
	_ storage.PaymentOrderRepository = (*Orders)(nil)
	_ storage.IdempotencyRepository  = (*Keys)(nil)
)

type idempotencyEntry struct {
	status int
	body   []byte
}

// Store is the shared state behind the per-entity repositories.
type Store struct {
	mu           sync.Mutex
	users        map[uuid.UUID]*model.User
	transactions []*model.Transaction
	requests     map[uuid.UUID]*model.OtpRequest
	services     map[uuid.UUID]*model.Service
	orders       map[string]*model.PaymentOrder
	idempotency  map[string]idempotencyEntry
}

func NewStore() *Store {
	return &Store{
		users:       make(map[uuid.UUID]*model.User),
		requests:    make(map[uuid.UUID]*model.OtpRequest),
		services:    make(map[uuid.UUID]*model.Service),
		orders:      make(map[string]*model.PaymentOrder),
		idempotency: make(map[string]idempotencyEntry),
	}
}

func (s *Store) Users() *Users       { return &Users{s} }
func (s *Store) Ledger() *Ledger     { return &Ledger{s} }
func (s *Store) Requests() *Requests { return &Requests{s} }
func (s *Store) Services() *Services { return &Services{s} }
func (s *Store) Orders() *Orders     { return &Orders{s} }
func (s *Store) Keys() *Keys         { return &Keys{s} }

// AddUser seeds a user with a starting balance.
func (s *Store) AddUser(email string, balance decimal.Decimal) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := &model.User{
		ID:        uuid.New(),
		Email:     email,
		Role:      model.RoleUser,
		Balance:   balance,
		CreatedAt: time.Now(),
	}
	s.users[u.ID] = u

	return u
}

// AddService seeds a catalog entry.
func (s *Store) AddService(name string, price decimal.Decimal, status model.ServiceStatus) *model.Service {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := &model.Service{
		ID:        uuid.New(),
		Name:      name,
		Price:     price,
		CountryID: 91,
		Status:    status,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.services[m.ID] = m

	return m
}

// TransactionCount of user, for test assertions.
func (s *Store) TransactionCount(userID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.transactions {
		if m.UserID == userID {
			n++
		}
	}

	return n
}

// RequestCount of user, for test assertions.
func (s *Store) RequestCount(userID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.requests {
		if m.UserID == userID {
			n++
		}
	}

	return n
}

type Users struct {
	s *Store
}

func (r *Users) Create(ctx context.Context, m *model.User) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if u.Email == m.Email {
			return nil, apperr.ErrConflict
		}
	}

	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	if m.Role == "" {
		m.Role = model.RoleUser
	}
	r.s.users[m.ID] = m

	return m, nil
}

func (r *Users) Read(ctx context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	c := *u

	return &c, nil
}

func (r *Users) ReadByEmail(ctx context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}

	return nil, apperr.ErrNotFound
}

func (r *Users) ReadByEmailAndPassword(ctx context.Context, email, password string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if u.Email == email && u.Password == password {
			c := *u
			return &c, nil
		}
	}

	return nil, apperr.ErrNotFound
}

type Ledger struct {
	s *Store
}

// Apply checks and adjusts the balance under one lock, matching the
// atomicity of the conditional UPDATE in postgres.
func (r *Ledger) Apply(ctx context.Context, userID uuid.UUID, delta decimal.Decimal, m *model.Transaction) (*model.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return nil, apperr.ErrNotFound
	}

	newBalance := u.Balance.Add(delta)
	if newBalance.IsNegative() {
		return nil, apperr.ErrInsufficientBalance
	}

	m.ID = uuid.New()
	m.UserID = userID
	m.PreviousBalance = u.Balance
	m.NewBalance = newBalance
	m.Status = model.TransactionStatusCompleted
	m.CreatedAt = time.Now()

	u.Balance = newBalance
	r.s.transactions = append(r.s.transactions, m)

	return m, nil
}

func (r *Ledger) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return decimal.Zero, apperr.ErrNotFound
	}

	return u.Balance, nil
}

func (r *Ledger) Transactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	all := make([]*model.Transaction, 0)
	for i := len(r.s.transactions) - 1; i >= 0; i-- {
		if r.s.transactions[i].UserID == userID {
			all = append(all, r.s.transactions[i])
		}
	}

	if offset >= len(all) {
		return []*model.Transaction{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}

	return all, nil
}

type Requests struct {
	s *Store
}

func (r *Requests) Create(ctx context.Context, m *model.OtpRequest) (*model.OtpRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	r.s.requests[m.ID] = m

	return m, nil
}

func (r *Requests) Read(ctx context.Context, id uuid.UUID) (*model.OtpRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.requests[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	c := *m

	return &c, nil
}

func (r *Requests) ReadOwned(ctx context.Context, id, userID uuid.UUID) (*model.OtpRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.requests[id]
	if !ok || m.UserID != userID {
		return nil, apperr.ErrNotFound
	}
	c := *m

	return &c, nil
}

func (r *Requests) AllByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.OtpRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	all := make([]*model.OtpRequest, 0)
	for _, m := range r.s.requests {
		if m.UserID == userID {
			c := *m
			all = append(all, &c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if offset >= len(all) {
		return []*model.OtpRequest{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}

	return all, nil
}

func (r *Requests) AllAwaitingCode(ctx context.Context) ([]*model.OtpRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	res := make([]*model.OtpRequest, 0)
	for _, m := range r.s.requests {
		if !m.Status.Terminal() && m.ProviderRequestID.Valid {
			c := *m
			res = append(res, &c)
		}
	}

	return res, nil
}

func (r *Requests) TransitionStatus(ctx context.Context, id uuid.UUID, from []model.OtpRequestStatus, to model.OtpRequestStatus, number, code string) (*model.OtpRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.requests[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}

	matched := false
	for _, f := range from {
		if m.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return nil, apperr.ErrInvalidState
	}

	m.Status = to
	if number != "" {
		m.Number.String = number
		m.Number.Valid = true
	}
	if code != "" {
		m.OtpCode.String = code
		m.OtpCode.Valid = true
	}
	if to == model.OtpStatusCancelled {
		m.CancelledAt.Time = time.Now()
		m.CancelledAt.Valid = true
	}
	m.UpdatedAt = time.Now()
	c := *m

	return &c, nil
}

type Services struct {
	s *Store
}

func (r *Services) Create(ctx context.Context, m *model.Service) (*model.Service, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	if m.Status == "" {
		m.Status = model.ServiceStatusActive
	}
	r.s.services[m.ID] = m

	return m, nil
}

func (r *Services) Read(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.services[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	c := *m

	return &c, nil
}

func (r *Services) Update(ctx context.Context, m *model.Service) (*model.Service, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.services[m.ID]; !ok {
		return nil, apperr.ErrNotFound
	}
	m.UpdatedAt = time.Now()
	r.s.services[m.ID] = m

	return m, nil
}

func (r *Services) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.services[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(r.s.services, id)

	return nil
}

func (r *Services) All(ctx context.Context, onlyActive bool) ([]*model.Service, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	res := make([]*model.Service, 0)
	for _, m := range r.s.services {
		if onlyActive && !m.Active() {
			continue
		}
		c := *m
		res = append(res, &c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })

	return res, nil
}

type Orders struct {
	s *Store
}

func (r *Orders) Create(ctx context.Context, m *model.PaymentOrder) (*model.PaymentOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.orders[m.OrderID]; ok {
		return nil, apperr.ErrConflict
	}

	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	if m.Status == "" {
		m.Status = model.PaymentStatusPending
	}
	r.s.orders[m.OrderID] = m

	return m, nil
}

func (r *Orders) ReadByOrderID(ctx context.Context, orderID string) (*model.PaymentOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.orders[orderID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	c := *m

	return &c, nil
}

func (r *Orders) MarkCompleted(ctx context.Context, orderID string) (*model.PaymentOrder, error) {
	return r.transition(orderID, model.PaymentStatusCompleted)
}

func (r *Orders) MarkFailed(ctx context.Context, orderID string) (*model.PaymentOrder, error) {
	return r.transition(orderID, model.PaymentStatusFailed)
}

func (r *Orders) Reopen(ctx context.Context, orderID string) (*model.PaymentOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.orders[orderID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if m.Status != model.PaymentStatusCompleted {
		return nil, apperr.ErrInvalidState
	}

	m.Status = model.PaymentStatusPending
	m.UpdatedAt = time.Now()
	c := *m

	return &c, nil
}

func (r *Orders) transition(orderID string, to model.PaymentOrderStatus) (*model.PaymentOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.orders[orderID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if m.Status != model.PaymentStatusPending {
		return nil, apperr.ErrInvalidState
	}

	m.Status = to
	m.UpdatedAt = time.Now()
	c := *m

	return &c, nil
}

type Keys struct {
	s *Store
}

func (r *Keys) Claim(ctx context.Context, key string, userID uuid.UUID) (*storage.IdempotentResponse, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	k := key + "/" + userID.String()
	e, ok := r.s.idempotency[k]
	if !ok {
		r.s.idempotency[k] = idempotencyEntry{}
		return nil, nil
	}
	if e.status == 0 {
		return nil, apperr.ErrConflict
	}

	return &storage.IdempotentResponse{Status: e.status, Body: e.body}, nil
}

func (r *Keys) Save(ctx context.Context, key string, userID uuid.UUID, status int, body []byte) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	k := key + "/" + userID.String()
	if e, ok := r.s.idempotency[k]; ok && e.status == 0 {
		r.s.idempotency[k] = idempotencyEntry{status: status, body: body}
	}

	return nil
}

func (r *Keys) Release(ctx context.Context, key string, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	k := key + "/" + userID.String()
	if e, ok := r.s.idempotency[k]; ok && e.status == 0 {
		delete(r.s.idempotency, k)
	}

	return nil
}
