package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"tenapay/internal/model"
	"tenapay/internal/repository"
	"tenapay/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// In-memory collaborators for exercising the service flows, including the
// concurrency properties, without MySQL or Redis. All fakes are mutex-guarded
// so tests can hammer them from many goroutines.

type fakeLedger struct {
	mu         sync.Mutex
	balances   map[int64]decimal.Decimal
	entries    []*model.Transaction
	creditRefs map[string]*model.Transaction
}

func newFakeLedger(balances map[int64]decimal.Decimal) *fakeLedger {
	if balances == nil {
		balances = make(map[int64]decimal.Decimal)
	}
	return &fakeLedger{
		balances:   balances,
		creditRefs: make(map[string]*model.Transaction),
	}
}

func (l *fakeLedger) Credit(ctx context.Context, userID int64, amount decimal.Decimal, description, reference, event string) (*LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applyLocked(userID, amount, model.TransactionTypeCredit, idgen.GenerateTransactionNo(), description, reference)
}

func (l *fakeLedger) Debit(ctx context.Context, userID int64, amount decimal.Decimal, description, reference, event string) (*LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[userID].LessThan(amount) {
		return nil, repository.ErrInsufficientFunds
	}
	return l.applyLocked(userID, amount, model.TransactionTypeDebit, idgen.GenerateTransactionNo(), description, reference)
}

func (l *fakeLedger) CreditIfAbsent(ctx context.Context, userID int64, amount decimal.Decimal, description, reference, event string) (*LedgerEntry, bool, error) {
	return l.creditOnce(userID, amount, idgen.GenerateTransactionNo(), description, reference)
}

func (l *fakeLedger) Reverse(ctx context.Context, userID int64, amount decimal.Decimal, description, reference, event string) (*LedgerEntry, bool, error) {
	return l.creditOnce(userID, amount, idgen.GenerateReversalNo(), description, reference)
}

func (l *fakeLedger) creditOnce(userID int64, amount decimal.Decimal, transactionNo, description, reference string) (*LedgerEntry, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.creditRefs[reference]; ok {
		return &LedgerEntry{Transaction: existing, NewBalance: l.balances[userID]}, false, nil
	}

	entry, err := l.applyLocked(userID, amount, model.TransactionTypeCredit, transactionNo, description, reference)
	if err != nil {
		return nil, false, err
	}
	l.creditRefs[reference] = entry.Transaction
	return entry, true, nil
}

func (l *fakeLedger) applyLocked(userID int64, amount decimal.Decimal, txnType, transactionNo, description, reference string) (*LedgerEntry, error) {
	before := l.balances[userID]
	after := before.Add(amount)
	if txnType == model.TransactionTypeDebit {
		after = before.Sub(amount)
	}
	l.balances[userID] = after

	trans := &model.Transaction{
		TransactionNo: transactionNo,
		UserID:        userID,
		Type:          txnType,
		Amount:        amount,
		Description:   description,
		Reference:     optionalString(reference),
		BalanceBefore: before,
		BalanceAfter:  after,
	}
	l.entries = append(l.entries, trans)
	return &LedgerEntry{Transaction: trans, NewBalance: after}, nil
}

func (l *fakeLedger) balance(userID int64) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

func (l *fakeLedger) entriesOfType(txnType string) []*model.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*model.Transaction
	for _, e := range l.entries {
		if e.Type == txnType {
			out = append(out, e)
		}
	}
	return out
}

type fakeClaimStore struct {
	mu     sync.Mutex
	claims map[string]*model.Claim
}

func newFakeClaimStore() *fakeClaimStore {
	return &fakeClaimStore{claims: make(map[string]*model.Claim)}
}

func (s *fakeClaimStore) Create(ctx context.Context, tx *gorm.DB, claim *model.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *claim
	s.claims[claim.ClaimNo] = &copied
	return nil
}

func (s *fakeClaimStore) Transition(ctx context.Context, tx *gorm.DB, claimNo, fromStatus, toStatus string, extra map[string]interface{}) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return repository.ErrClaimStatusInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	claim, ok := s.claims[claimNo]
	if !ok {
		return repository.ErrClaimNotFound
	}
	if claim.Status != fromStatus {
		return repository.ErrClaimStatusInvalid
	}

	claim.Status = toStatus
	if v, ok := extra["transaction_no"]; ok {
		claim.TransactionNo = v.(string)
	}
	if v, ok := extra["reversal_no"]; ok {
		claim.ReversalNo = v.(string)
	}
	if v, ok := extra["fail_reason"]; ok {
		claim.FailReason = v.(string)
	}
	return nil
}

func (s *fakeClaimStore) get(claimNo string) *model.Claim {
	s.mu.Lock()
	defer s.mu.Unlock()

	if claim, ok := s.claims[claimNo]; ok {
		copied := *claim
		return &copied
	}
	return nil
}

type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[int64]*model.Account
	ledger   *fakeLedger
}

func newFakeAccounts(ledger *fakeLedger, accounts ...*model.Account) *fakeAccounts {
	byID := make(map[int64]*model.Account)
	for _, a := range accounts {
		byID[a.ID] = a
	}
	return &fakeAccounts{accounts: byID, ledger: ledger}
}

func (f *fakeAccounts) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	account, ok := f.accounts[id]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	copied := *account
	copied.Balance = f.ledger.balance(id)
	return &copied, nil
}

func (f *fakeAccounts) GetByPhone(ctx context.Context, phone string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, account := range f.accounts {
		if account.Phone == phone {
			copied := *account
			copied.Balance = f.ledger.balance(account.ID)
			return &copied, nil
		}
	}
	return nil, repository.ErrAccountNotFound
}

// fakeTransfer fails the first failTimes calls, then succeeds.
type fakeTransfer struct {
	mu        sync.Mutex
	calls     int
	failTimes int
	sessions  []string
	phones    []string
}

func (t *fakeTransfer) TransferB2C(ctx context.Context, sessionID, phone string) (json.RawMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls++
	t.sessions = append(t.sessions, sessionID)
	t.phones = append(t.phones, phone)
	if t.calls <= t.failTimes {
		return nil, errors.New("gateway timeout")
	}
	return json.RawMessage(`{"status":"SUCCESS"}`), nil
}

func (t *fakeTransfer) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// mutexLocker serialises per user the way the redis lock does in production.
type mutexLocker struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newMutexLocker() *mutexLocker {
	return &mutexLocker{locks: make(map[int64]*sync.Mutex)}
}

func (l *mutexLocker) Acquire(ctx context.Context, userID int64) (func(), error) {
	l.mu.Lock()
	userLock, ok := l.locks[userID]
	if !ok {
		userLock = &sync.Mutex{}
		l.locks[userID] = userLock
	}
	l.mu.Unlock()

	userLock.Lock()
	return userLock.Unlock, nil
}

type dispatched struct {
	userID int64
	typ    string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []dispatched
}

func (n *fakeNotifier) Dispatch(ctx context.Context, account *model.Account, notifType, title, message string) *model.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.sent = append(n.sent, dispatched{userID: account.ID, typ: notifType})
	return &model.Notification{UserID: account.ID, Type: notifType, Title: title, Message: message}
}

func (n *fakeNotifier) typesSent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []string
	for _, d := range n.sent {
		out = append(out, d.typ)
	}
	return out
}

type fakeAudits struct {
	mu      sync.Mutex
	entries []*model.AuditLog
}

func (a *fakeAudits) Create(ctx context.Context, entry *model.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.entries = append(a.entries, entry)
	return nil
}

func (a *fakeAudits) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []string
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type fakeTransactionLister struct {
	ledger *fakeLedger
}

func (f *fakeTransactionLister) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	f.ledger.mu.Lock()
	defer f.ledger.mu.Unlock()

	var out []*model.Transaction
	for _, e := range f.ledger.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, int64(len(out)), nil
}

type fakeSessionMarker struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeSessionMarker() *fakeSessionMarker {
	return &fakeSessionMarker{seen: make(map[string]bool)}
}

func (m *fakeSessionMarker) Seen(ctx context.Context, sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[sessionID]
}

func (m *fakeSessionMarker) Mark(ctx context.Context, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[sessionID] = true
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("bad decimal in test: %s", s))
	}
	return d
}
