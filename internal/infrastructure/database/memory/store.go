// Package memory keeps the ledger in process memory. It backs single-terminal
// deployments and the domain tests.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"pos-ledger/internal/domain/ledger"
	"pos-ledger/internal/pkg/apperrors"
)

type Store struct {
	mu        sync.RWMutex
	customers map[int64]*ledger.Customer
	credits   map[int64]*ledger.Credit
	purchases map[int64][]*ledger.Purchase

	cfgMu   sync.Mutex
	loyalty ledger.LoyaltyConfig

	// one-slot semaphores so a waiting WithinTx can give up on ctx;
	// an entry lives only while some WithinTx holds or waits on it
	locksMu sync.Mutex
	locks   map[int64]*customerLock

	customerSeq atomic.Int64
	creditSeq   atomic.Int64
	purchaseSeq atomic.Int64

	logger *slog.Logger
}

var _ ledger.Store = (*Store)(nil)

func New(loyalty ledger.LoyaltyConfig, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	return &Store{
		customers: make(map[int64]*ledger.Customer),
		credits:   make(map[int64]*ledger.Credit),
		purchases: make(map[int64][]*ledger.Purchase),
		locks:     make(map[int64]*customerLock),
		loyalty:   loyalty,
		logger:    logger.With("component", "MemoryStore"),
	}
}

func cloneCustomer(c *ledger.Customer) *ledger.Customer {
	v := *c
	return &v
}

func cloneCredit(c *ledger.Credit) *ledger.Credit {
	v := *c
	return &v
}

func clonePurchase(p *ledger.Purchase) *ledger.Purchase {
	v := *p
	if p.CreditID != nil {
		id := *p.CreditID
		v.CreditID = &id
	}
	return &v
}

func (s *Store) CreateCustomer(ctx context.Context, c *ledger.Customer) error {
	if c == nil {
		return fmt.Errorf("%w: customer cannot be nil", apperrors.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.ID = s.customerSeq.Add(1)

	s.mu.Lock()
	s.customers[c.ID] = cloneCustomer(c)
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "Customer inserted", slog.Int64("customerID", c.ID))
	return nil
}

func (s *Store) GetCustomer(ctx context.Context, customerID int64) (*ledger.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[customerID]
	if !ok {
		return nil, ledger.NotFound("customer", customerID)
	}
	return cloneCustomer(c), nil
}

func (s *Store) GetCredit(ctx context.Context, creditID int64) (*ledger.Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.credits[creditID]
	if !ok {
		return nil, ledger.NotFound("credit", creditID)
	}
	return cloneCredit(c), nil
}

func (s *Store) CustomersByStatus(ctx context.Context, status ledger.CustomerStatus) ([]*ledger.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ledger.Customer, 0)
	for _, c := range s.customers {
		if c.Status == status {
			out = append(out, cloneCustomer(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreditsByStatus(ctx context.Context, status ledger.CreditStatus) ([]*ledger.Credit, error) {
	if status != "" && !status.Stored() {
		return nil, fmt.Errorf("%w: credit status %s is never stored", apperrors.ErrInvalidArgument, status)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ledger.Credit, 0)
	for _, c := range s.credits {
		if status == "" || c.Status == status {
			out = append(out, cloneCredit(c))
		}
	}
	sortByID(out)
	return out, nil
}

func (s *Store) CreditsByCustomer(ctx context.Context, customerID int64) ([]*ledger.Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.customers[customerID]; !ok {
		return nil, ledger.NotFound("customer", customerID)
	}
	return s.creditsOfLocked(customerID), nil
}

func (s *Store) creditsOfLocked(customerID int64) []*ledger.Credit {
	out := make([]*ledger.Credit, 0)
	for _, c := range s.credits {
		if c.CustomerID == customerID {
			out = append(out, cloneCredit(c))
		}
	}
	sortByID(out)
	return out
}

func sortByID(credits []*ledger.Credit) {
	sort.Slice(credits, func(i, j int) bool { return credits[i].ID < credits[j].ID })
}

func (s *Store) QueryOverdue(ctx context.Context, now time.Time, after ledger.OverdueCursor, limit int) ([]*ledger.Credit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]*ledger.Credit, 0)
	for _, c := range s.credits {
		if c.IsOverdue(now) && after.After(c) {
			out = append(out, cloneCredit(c))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) PurchaseSummary(ctx context.Context, customerID int64) (ledger.PurchaseSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.customers[customerID]; !ok {
		return ledger.PurchaseSummary{}, ledger.NotFound("customer", customerID)
	}
	summary := ledger.PurchaseSummary{Total: decimal.Zero}
	for _, p := range s.purchases[customerID] {
		summary.Total = summary.Total.Add(p.Amount)
		summary.Count++
		if summary.LastPurchaseAt == nil || p.PurchasedAt.After(*summary.LastPurchaseAt) {
			at := p.PurchasedAt
			summary.LastPurchaseAt = &at
		}
	}
	return summary, nil
}

func (s *Store) LoyaltyConfig(ctx context.Context) (ledger.LoyaltyConfig, error) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.loyalty, nil
}

func (s *Store) UpdateLoyaltyConfig(ctx context.Context, fn func(current ledger.LoyaltyConfig) (ledger.LoyaltyConfig, error)) (ledger.LoyaltyConfig, error) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	next, err := fn(s.loyalty)
	if err != nil {
		return s.loyalty, err
	}
	if err := ctx.Err(); err != nil {
		return s.loyalty, err
	}
	s.loyalty = next
	return next, nil
}

type customerLock struct {
	sem  chan struct{}
	refs int
}

func (s *Store) acquireLock(customerID int64) *customerLock {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[customerID]
	if !ok {
		l = &customerLock{sem: make(chan struct{}, 1)}
		s.locks[customerID] = l
	}
	l.refs++
	return l
}

func (s *Store) releaseLock(customerID int64, l *customerLock) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(s.locks, customerID)
	}
}

func (s *Store) lockCount() int {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return len(s.locks)
}

func (s *Store) WithinTx(ctx context.Context, customerID int64, fn func(ctx context.Context, tx ledger.Tx) error) (err error) {
	l := s.acquireLock(customerID)
	defer s.releaseLock(customerID, l)
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.sem }()

	cust, err := s.GetCustomer(ctx, customerID)
	if err != nil {
		return err
	}

	tx := &memTx{
		store:    s,
		customer: cust,
		credits:  make(map[int64]*ledger.Credit),
		deleted:  make(map[int64]bool),
	}

	defer func() {
		if p := recover(); p != nil {
			s.logger.ErrorContext(ctx, "Panic inside ledger transaction, discarding changes", slog.Int64("customerID", customerID), slog.Any("panic", p))
			panic(p)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		s.logger.DebugContext(ctx, "Ledger transaction rolled back", slog.Int64("customerID", customerID), slog.Any("error", err))
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}

	s.commit(tx)
	return nil
}

func (s *Store) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := tx.customer.ID
	if tx.customerDeleted {
		delete(s.customers, id)
		for creditID, c := range s.credits {
			if c.CustomerID == id {
				delete(s.credits, creditID)
			}
		}
		delete(s.purchases, id)
		return
	}

	s.customers[id] = cloneCustomer(tx.customer)
	for creditID := range tx.deleted {
		delete(s.credits, creditID)
	}
	for creditID, c := range tx.credits {
		s.credits[creditID] = cloneCredit(c)
	}
	s.purchases[id] = append(s.purchases[id], tx.purchases...)
}

// memTx stages every write and only touches the store maps on commit.
type memTx struct {
	store           *Store
	customer        *ledger.Customer
	customerDeleted bool
	credits         map[int64]*ledger.Credit
	deleted         map[int64]bool
	purchases       []*ledger.Purchase
}

func (t *memTx) live() error {
	if t.customerDeleted {
		return ledger.NotFound("customer", t.customer.ID)
	}
	return nil
}

func (t *memTx) Customer(ctx context.Context) (*ledger.Customer, error) {
	if err := t.live(); err != nil {
		return nil, err
	}
	return cloneCustomer(t.customer), nil
}

func (t *memTx) PutCustomer(ctx context.Context, c *ledger.Customer) error {
	if err := t.live(); err != nil {
		return err
	}
	if c.ID != t.customer.ID {
		return fmt.Errorf("%w: transaction holds customer %d, not %d", apperrors.ErrInvalidArgument, t.customer.ID, c.ID)
	}
	t.customer = cloneCustomer(c)
	return nil
}

func (t *memTx) DeleteCustomer(ctx context.Context) error {
	if err := t.live(); err != nil {
		return err
	}
	t.customerDeleted = true
	return nil
}

func (t *memTx) GetCredit(ctx context.Context, creditID int64) (*ledger.Credit, error) {
	if err := t.live(); err != nil {
		return nil, err
	}
	if t.deleted[creditID] {
		return nil, ledger.NotFound("credit", creditID)
	}
	if c, ok := t.credits[creditID]; ok {
		return cloneCredit(c), nil
	}
	c, err := t.store.GetCredit(ctx, creditID)
	if err != nil {
		return nil, err
	}
	if c.CustomerID != t.customer.ID {
		return nil, ledger.NotFound("credit", creditID)
	}
	return c, nil
}

func (t *memTx) Credits(ctx context.Context) ([]*ledger.Credit, error) {
	if err := t.live(); err != nil {
		return nil, err
	}
	t.store.mu.RLock()
	stored := t.store.creditsOfLocked(t.customer.ID)
	t.store.mu.RUnlock()

	out := make([]*ledger.Credit, 0, len(stored)+len(t.credits))
	for _, c := range stored {
		if t.deleted[c.ID] {
			continue
		}
		if _, staged := t.credits[c.ID]; staged {
			continue
		}
		out = append(out, c)
	}
	for _, c := range t.credits {
		out = append(out, cloneCredit(c))
	}
	sortByID(out)
	return out, nil
}

func (t *memTx) PutCredit(ctx context.Context, c *ledger.Credit) error {
	if err := t.live(); err != nil {
		return err
	}
	if c.CustomerID != t.customer.ID {
		return fmt.Errorf("%w: credit belongs to customer %d, transaction holds %d", apperrors.ErrInvalidArgument, c.CustomerID, t.customer.ID)
	}
	if !c.Status.Stored() {
		return fmt.Errorf("%w: credit status %q cannot be stored", apperrors.ErrInvalidArgument, c.Status)
	}
	if c.ID == 0 {
		c.ID = t.store.creditSeq.Add(1)
	} else if _, err := t.GetCredit(ctx, c.ID); err != nil {
		return err
	}
	t.credits[c.ID] = cloneCredit(c)
	return nil
}

func (t *memTx) DeleteCredit(ctx context.Context, creditID int64) error {
	if _, err := t.GetCredit(ctx, creditID); err != nil {
		return err
	}
	delete(t.credits, creditID)
	t.deleted[creditID] = true
	return nil
}

func (t *memTx) InsertPurchase(ctx context.Context, p *ledger.Purchase) error {
	if err := t.live(); err != nil {
		return err
	}
	if p.CustomerID != t.customer.ID {
		return fmt.Errorf("%w: purchase belongs to customer %d, transaction holds %d", apperrors.ErrInvalidArgument, p.CustomerID, t.customer.ID)
	}
	p.ID = t.store.purchaseSeq.Add(1)
	t.purchases = append(t.purchases, clonePurchase(p))
	return nil
}
