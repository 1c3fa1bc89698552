// Package memstore keeps the ledger in process memory. It backs the
// "memory" store driver and the service tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"hardware_ledger/ledger"
	"hardware_ledger/models"
)

type Store struct {
	mu    sync.Mutex
	items map[string]*models.Item
	loans map[string]*models.Loan
	now   func() time.Time

	// creation sequence, breaks CreatedAt ties
	seq  map[string]uint64
	next uint64
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		items: make(map[string]*models.Item),
		loans: make(map[string]*models.Loan),
		now:   time.Now,
		seq:   make(map[string]uint64),
	}
}

func cloneItem(it *models.Item) *models.Item {
	cp := *it
	if it.Code != nil {
		c := *it.Code
		cp.Code = &c
	}
	return &cp
}

// loanView copies l and attaches a copy of its item. Caller holds mu.
func (s *Store) loanView(l *models.Loan) *models.Loan {
	cp := *l
	if l.ReturnDate != nil {
		rd := *l.ReturnDate
		cp.ReturnDate = &rd
	}
	cp.Item = nil
	if it, ok := s.items[l.ItemID]; ok {
		cp.Item = cloneItem(it)
	}
	return &cp
}

// codeTaken reports whether another item already uses code. Caller holds mu.
func (s *Store) codeTaken(code *string, exceptID string) bool {
	if code == nil {
		return false
	}
	for id, it := range s.items {
		if id != exceptID && it.Code != nil && *it.Code == *code {
			return true
		}
	}
	return false
}

func (s *Store) openLoans(itemID string) int {
	n := 0
	for _, l := range s.loans {
		if l.ItemID == itemID && l.IsOpen() {
			n++
		}
	}
	return n
}

// Items

func (s *Store) ListItems(_ context.Context) ([]models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, *cloneItem(it))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return s.seq[out[i].ID] > s.seq[out[j].ID]
	})
	return out, nil
}

func (s *Store) FindItemByID(_ context.Context, id string) (*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, ledger.ErrItemNotFound
	}
	return cloneItem(it), nil
}

func (s *Store) FindItemByCode(_ context.Context, code string) (*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.Code != nil && *it.Code == code {
			return cloneItem(it), nil
		}
	}
	return nil, ledger.ErrItemNotFound
}

func (s *Store) CreateItem(_ context.Context, it *models.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codeTaken(it.Code, it.ID) {
		return ledger.ErrDuplicateCode
	}
	now := s.now()
	it.CreatedAt, it.UpdatedAt = now, now
	s.next++
	s.seq[it.ID] = s.next
	s.items[it.ID] = cloneItem(it)
	return nil
}

func (s *Store) SaveItem(_ context.Context, it *models.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[it.ID]
	if !ok {
		return ledger.ErrItemNotFound
	}
	if s.codeTaken(it.Code, it.ID) {
		return ledger.ErrDuplicateCode
	}
	it.CreatedAt = cur.CreatedAt
	it.UpdatedAt = s.now()
	s.items[it.ID] = cloneItem(it)
	return nil
}

func (s *Store) DeleteItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ledger.ErrItemNotFound
	}
	if s.openLoans(id) > 0 {
		return ledger.ErrItemHasOpenLoans
	}
	delete(s.items, id)
	delete(s.seq, id)
	return nil
}

func (s *Store) ReconcileItem(_ context.Context, id string) (*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, ledger.ErrItemNotFound
	}
	it.IssuedCount = s.openLoans(id)
	it.AvailableCount = max(it.TotalCount-it.IssuedCount, 0)
	it.UpdatedAt = s.now()
	return cloneItem(it), nil
}

// Loans

func (s *Store) OpenLoan(_ context.Context, l *models.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[l.ItemID]
	if !ok {
		return ledger.ErrItemNotFound
	}
	if it.AvailableCount <= 0 {
		return ledger.ErrNoAvailableUnits
	}
	now := s.now()
	it.AvailableCount--
	it.IssuedCount++
	it.UpdatedAt = now

	l.CreatedAt, l.UpdatedAt = now, now
	stored := *l
	stored.Item = nil
	s.loans[l.ID] = &stored
	l.Item = cloneItem(it)
	return nil
}

func (s *Store) CloseLoan(_ context.Context, id string, at time.Time) (*models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loans[id]
	if !ok {
		return nil, ledger.ErrLoanNotFound
	}
	if !l.IsOpen() {
		return nil, ledger.ErrAlreadyReturned
	}
	l.Status = models.LoanReturned
	l.ReturnDate = &at
	l.UpdatedAt = s.now()
	if it, ok := s.items[l.ItemID]; ok {
		it.AvailableCount++
		it.IssuedCount = max(it.IssuedCount-1, 0)
		it.UpdatedAt = l.UpdatedAt
	}
	return s.loanView(l), nil
}

func (s *Store) FindLoanByID(_ context.Context, id string) (*models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loans[id]
	if !ok {
		return nil, ledger.ErrLoanNotFound
	}
	return s.loanView(l), nil
}

func (s *Store) ListLoans(_ context.Context, f ledger.LoanFilter) ([]models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Loan, 0)
	for _, l := range s.loans {
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.DueFrom != nil && l.DueDate.Before(*f.DueFrom) {
			continue
		}
		if f.DueBefore != nil && !l.DueDate.Before(*f.DueBefore) {
			continue
		}
		out = append(out, *s.loanView(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssueDate.After(out[j].IssueDate) })
	return out, nil
}

func (s *Store) PatchLoan(_ context.Context, id string, p ledger.LoanPatch) (*models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loans[id]
	if !ok {
		return nil, ledger.ErrLoanNotFound
	}
	p.Apply(l)
	l.UpdatedAt = s.now()
	return s.loanView(l), nil
}

func (s *Store) DeleteLoan(_ context.Context, id string) (*models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loans[id]
	if !ok {
		return nil, ledger.ErrLoanNotFound
	}
	if l.IsOpen() {
		if it, ok := s.items[l.ItemID]; ok {
			it.AvailableCount++
			it.IssuedCount = max(it.IssuedCount-1, 0)
			it.UpdatedAt = s.now()
		}
	}
	view := s.loanView(l)
	delete(s.loans, id)
	return view, nil
}
