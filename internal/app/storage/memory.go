package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/bankaccount"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/demobank"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/host"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/ledger"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/subscriber"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/withdrawalop"
)

// Store is an in-memory implementation of every storage interface, used as
// the default for any field left nil on Stores, and directly in tests.
type Store struct {
	mu sync.Mutex

	hosts        map[string]host.Host
	subscribers  map[string]subscriber.Subscriber // keyed by ID
	orderIDs     map[string]bool                  // hostID|partnerID|orderID
	demobanks    map[string]demobank.Demobank
	customers    map[string]demobank.Customer
	accounts     map[string]bankaccount.Account
	transactions map[string]ledger.Transaction // keyed by ID
	statements   map[string]ledger.Statement
	withdrawals  map[string]withdrawalop.Op
	uploadTx     map[string]UploadTx
	downloadTx   map[string]DownloadTx
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		hosts:        make(map[string]host.Host),
		subscribers:  make(map[string]subscriber.Subscriber),
		orderIDs:     make(map[string]bool),
		demobanks:    make(map[string]demobank.Demobank),
		customers:    make(map[string]demobank.Customer),
		accounts:     make(map[string]bankaccount.Account),
		transactions: make(map[string]ledger.Transaction),
		statements:   make(map[string]ledger.Statement),
		withdrawals:  make(map[string]withdrawalop.Op),
		uploadTx:     make(map[string]UploadTx),
		downloadTx:   make(map[string]DownloadTx),
	}
}

var (
	_ HostStore        = (*Store)(nil)
	_ SubscriberStore   = (*Store)(nil)
	_ DemobankStore     = (*Store)(nil)
	_ BankAccountStore  = (*Store)(nil)
	_ LedgerStore       = (*Store)(nil)
	_ WithdrawalStore   = (*Store)(nil)
	_ EbicsTxStore      = (*Store)(nil)
)

// --- HostStore ---------------------------------------------------------

func (s *Store) CreateHost(_ context.Context, h host.Host) (host.Host, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.hosts[h.HostID]; exists {
		return host.Host{}, fmt.Errorf("host %s already exists", h.HostID)
	}
	s.hosts[h.HostID] = h
	return h, nil
}

func (s *Store) GetHost(_ context.Context, hostID string) (host.Host, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hosts[hostID]
	if !ok {
		return host.Host{}, fmt.Errorf("host %s not found", hostID)
	}
	return h, nil
}

func (s *Store) ListHosts(_ context.Context) ([]host.Host, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]host.Host, 0, len(s.hosts))
	for _, h := range s.hosts {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HostID < out[j].HostID })
	return out, nil
}

// --- SubscriberStore -----------------------------------------------------

func (s *Store) CreateSubscriber(_ context.Context, sub subscriber.Subscriber) (subscriber.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	s.subscribers[sub.ID] = sub
	return sub, nil
}

func (s *Store) UpdateSubscriber(_ context.Context, sub subscriber.Subscriber) (subscriber.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[sub.ID]; !ok {
		return subscriber.Subscriber{}, fmt.Errorf("subscriber %s not found", sub.ID)
	}
	s.subscribers[sub.ID] = sub
	return sub, nil
}

func (s *Store) GetSubscriber(_ context.Context, hostID, partnerID, userID string) (subscriber.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscribers {
		if sub.HostID == hostID && sub.PartnerID == partnerID && sub.UserID == userID {
			return sub, nil
		}
	}
	return subscriber.Subscriber{}, fmt.Errorf("subscriber %s/%s/%s not found", hostID, partnerID, userID)
}

func (s *Store) GetSubscriberByID(_ context.Context, id string) (subscriber.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscribers[id]
	if !ok {
		return subscriber.Subscriber{}, fmt.Errorf("subscriber %s not found", id)
	}
	return sub, nil
}

func (s *Store) ListSubscribers(_ context.Context, hostID string) ([]subscriber.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []subscriber.Subscriber
	for _, sub := range s.subscribers {
		if sub.HostID == hostID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) SaveOrderSignature(_ context.Context, sig subscriber.OrderSignature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// order signature bodies aren't separately queried in the sandbox; the
	// order-ID uniqueness check is what matters operationally.
	return nil
}

func (s *Store) HasOrderID(_ context.Context, hostID, partnerID, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := hostID + "|" + partnerID + "|" + orderID
	if s.orderIDs[key] {
		return true, nil
	}
	s.orderIDs[key] = true
	return false, nil
}

// --- DemobankStore ---------------------------------------------------------

func (s *Store) CreateDemobank(_ context.Context, d demobank.Demobank) (demobank.Demobank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	s.demobanks[d.ID] = d
	return d, nil
}

func (s *Store) UpdateDemobank(_ context.Context, d demobank.Demobank) (demobank.Demobank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.demobanks[d.ID]; !ok {
		return demobank.Demobank{}, fmt.Errorf("demobank %s not found", d.ID)
	}
	s.demobanks[d.ID] = d
	return d, nil
}

func (s *Store) GetDemobank(_ context.Context, id string) (demobank.Demobank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.demobanks[id]
	if !ok {
		return demobank.Demobank{}, fmt.Errorf("demobank %s not found", id)
	}
	return d, nil
}

func (s *Store) GetDemobankByName(_ context.Context, name string) (demobank.Demobank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.demobanks {
		if d.Name == name {
			return d, nil
		}
	}
	return demobank.Demobank{}, fmt.Errorf("demobank %q not found", name)
}

func (s *Store) ListDemobanks(_ context.Context) ([]demobank.Demobank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]demobank.Demobank, 0, len(s.demobanks))
	for _, d := range s.demobanks {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateCustomer(_ context.Context, c demobank.Customer) (demobank.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.customers[c.ID] = c
	return c, nil
}

func (s *Store) GetCustomerByUsername(_ context.Context, demobankID, username string) (demobank.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.customers {
		if c.DemobankID == demobankID && c.Username == username {
			return c, nil
		}
	}
	return demobank.Customer{}, fmt.Errorf("customer %q not found", username)
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (demobank.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok {
		return demobank.Customer{}, fmt.Errorf("customer %s not found", id)
	}
	return c, nil
}

// --- BankAccountStore -------------------------------------------------------

func (s *Store) CreateAccount(_ context.Context, a bankaccount.Account) (bankaccount.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.accounts[a.ID] = a
	return a, nil
}

func (s *Store) UpdateAccount(_ context.Context, a bankaccount.Account) (bankaccount.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; !ok {
		return bankaccount.Account{}, fmt.Errorf("account %s not found", a.ID)
	}
	s.accounts[a.ID] = a
	return a, nil
}

func (s *Store) GetAccount(_ context.Context, id string) (bankaccount.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return bankaccount.Account{}, fmt.Errorf("account %s not found", id)
	}
	return a, nil
}

func (s *Store) GetAccountByIBAN(_ context.Context, demobankID, iban string) (bankaccount.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.DemobankID == demobankID && a.IBAN == iban {
			return a, nil
		}
	}
	return bankaccount.Account{}, fmt.Errorf("account with IBAN %s not found", iban)
}

func (s *Store) GetAccountBySubscriberID(_ context.Context, subscriberID string) (bankaccount.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.SubscriberID == subscriberID {
			return a, nil
		}
	}
	return bankaccount.Account{}, fmt.Errorf("account for subscriber %s not found", subscriberID)
}

func (s *Store) ListAccountsByCustomer(_ context.Context, customerID string) ([]bankaccount.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []bankaccount.Account
	for _, a := range s.accounts {
		if a.CustomerID == customerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListPublicAccounts(_ context.Context, demobankID string) ([]bankaccount.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []bankaccount.Account
	for _, a := range s.accounts {
		if a.DemobankID == demobankID && a.IsPublic {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IBAN < out[j].IBAN })
	return out, nil
}

func (s *Store) ListTalerExchangeAccounts(_ context.Context, demobankID string) ([]bankaccount.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []bankaccount.Account
	for _, a := range s.accounts {
		if a.DemobankID == demobankID && a.IsTalerExchange {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IBAN < out[j].IBAN })
	return out, nil
}

func (s *Store) ListAllAccounts(_ context.Context, demobankID string) ([]bankaccount.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []bankaccount.Account
	for _, a := range s.accounts {
		if a.DemobankID == demobankID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IBAN < out[j].IBAN })
	return out, nil
}

// --- LedgerStore -------------------------------------------------------

func (s *Store) CreateTransaction(_ context.Context, t ledger.Transaction) (ledger.Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.findTransactionByPmtInfIDLocked(t.AccountID, t.PmtInfID); ok {
		return existing, false, nil
	}
	s.insertTransactionLocked(&t)
	return t, true, nil
}

// CreateCreditTransferPair books a credit transfer's debit and credit legs
// under one lock acquisition: both rows are inserted or neither is, mirroring
// the atomicity a real transactional store provides.
func (s *Store) CreateCreditTransferPair(_ context.Context, debit ledger.Transaction, credit *ledger.Transaction) (ledger.Transaction, *ledger.Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.findTransactionByPmtInfIDLocked(debit.AccountID, debit.PmtInfID); ok {
		return existing, nil, false, nil
	}
	s.insertTransactionLocked(&debit)
	if credit != nil {
		s.insertTransactionLocked(credit)
	}
	return debit, credit, true, nil
}

func (s *Store) findTransactionByPmtInfIDLocked(accountID, pmtInfID string) (ledger.Transaction, bool) {
	for _, existing := range s.transactions {
		if existing.AccountID == accountID && existing.PmtInfID != "" && existing.PmtInfID == pmtInfID {
			return existing, true
		}
	}
	return ledger.Transaction{}, false
}

func (s *Store) insertTransactionLocked(t *ledger.Transaction) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	s.transactions[t.ID] = *t
}

func (s *Store) FindTransactionByPmtInfID(_ context.Context, accountID, pmtInfID string) (ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.transactions {
		if t.AccountID == accountID && t.PmtInfID == pmtInfID {
			return t, nil
		}
	}
	return ledger.Transaction{}, fmt.Errorf("transaction with pmtInfId %s not found", pmtInfID)
}

func (s *Store) ListFreshTransactions(_ context.Context, accountID string) ([]ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Transaction
	for _, t := range s.transactions {
		if t.AccountID == accountID && t.StatementID == "" {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookingDate.Before(out[j].BookingDate) })
	return out, nil
}

func (s *Store) ListTransactions(_ context.Context, accountID string, limit, offset int) ([]ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []ledger.Transaction
	for _, t := range s.transactions {
		if t.AccountID == accountID {
			all = append(all, t)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].BookingDate.After(all[j].BookingDate) })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *Store) CloseStatement(_ context.Context, accountID string, stmt ledger.Statement) (ledger.Statement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stmt.ID == "" {
		stmt.ID = uuid.NewString()
	}
	for id, t := range s.transactions {
		if t.AccountID == accountID && t.StatementID == "" {
			t.StatementID = stmt.ID
			s.transactions[id] = t
		}
	}
	s.statements[stmt.ID] = stmt
	return stmt, nil
}

func (s *Store) ListStatements(_ context.Context, accountID string) ([]ledger.Statement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Statement
	for _, st := range s.statements {
		if st.AccountID == accountID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StatementNumber < out[j].StatementNumber })
	return out, nil
}

func (s *Store) GetStatement(_ context.Context, id string) (ledger.Statement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statements[id]
	if !ok {
		return ledger.Statement{}, fmt.Errorf("statement %s not found", id)
	}
	return st, nil
}

func (s *Store) LatestStatement(_ context.Context, accountID string) (ledger.Statement, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest ledger.Statement
	found := false
	for _, st := range s.statements {
		if st.AccountID != accountID {
			continue
		}
		if !found || st.StatementNumber > latest.StatementNumber {
			latest = st
			found = true
		}
	}
	return latest, found, nil
}

// --- WithdrawalStore -----------------------------------------------------

func (s *Store) CreateWithdrawal(_ context.Context, op withdrawalop.Op) (withdrawalop.Op, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if op.Wopid == "" {
		op.Wopid = uuid.NewString()
	}
	s.withdrawals[op.Wopid] = op
	return op, nil
}

func (s *Store) UpdateWithdrawal(_ context.Context, op withdrawalop.Op) (withdrawalop.Op, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.withdrawals[op.Wopid]; !ok {
		return withdrawalop.Op{}, fmt.Errorf("withdrawal %s not found", op.Wopid)
	}
	s.withdrawals[op.Wopid] = op
	return op, nil
}

func (s *Store) GetWithdrawal(_ context.Context, wopid string) (withdrawalop.Op, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.withdrawals[wopid]
	if !ok {
		return withdrawalop.Op{}, fmt.Errorf("withdrawal %s not found", wopid)
	}
	return op, nil
}

func (s *Store) ListWithdrawalsByAccount(_ context.Context, accountID string) ([]withdrawalop.Op, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ops []withdrawalop.Op
	for _, op := range s.withdrawals {
		if op.AccountID == accountID {
			ops = append(ops, op)
		}
	}
	return ops, nil
}

// --- EbicsTxStore ----------------------------------------------------------

func (s *Store) CreateUploadTx(_ context.Context, tx UploadTx) (UploadTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadTx[tx.TransactionID] = tx
	return tx, nil
}

func (s *Store) GetUploadTx(_ context.Context, transactionID string) (UploadTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.uploadTx[transactionID]
	if !ok {
		return UploadTx{}, fmt.Errorf("upload transaction %s not found", transactionID)
	}
	return tx, nil
}

func (s *Store) UpdateUploadTx(_ context.Context, tx UploadTx) (UploadTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadTx[tx.TransactionID] = tx
	return tx, nil
}

func (s *Store) CreateDownloadTx(_ context.Context, tx DownloadTx) (DownloadTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloadTx[tx.TransactionID] = tx
	return tx, nil
}

func (s *Store) GetDownloadTx(_ context.Context, transactionID string) (DownloadTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.downloadTx[transactionID]
	if !ok {
		return DownloadTx{}, fmt.Errorf("download transaction %s not found", transactionID)
	}
	return tx, nil
}

func (s *Store) UpdateDownloadTx(_ context.Context, tx DownloadTx) (DownloadTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloadTx[tx.TransactionID] = tx
	return tx, nil
}

// Stores bundles every store interface the application wires together. Any
// field left nil falls back to a shared in-memory Store via ApplyDefaults.
type Stores struct {
	Host        HostStore
	Subscriber  SubscriberStore
	Demobank    DemobankStore
	BankAccount BankAccountStore
	Ledger      LedgerStore
	Withdrawal  WithdrawalStore
	EbicsTx     EbicsTxStore
}

// ApplyDefaults fills any nil field with mem, a shared in-memory Store.
func (s *Stores) ApplyDefaults(mem *Store) {
	if s.Host == nil {
		s.Host = mem
	}
	if s.Subscriber == nil {
		s.Subscriber = mem
	}
	if s.Demobank == nil {
		s.Demobank = mem
	}
	if s.BankAccount == nil {
		s.BankAccount = mem
	}
	if s.Ledger == nil {
		s.Ledger = mem
	}
	if s.Withdrawal == nil {
		s.Withdrawal = mem
	}
	if s.EbicsTx == nil {
		s.EbicsTx = mem
	}
}
