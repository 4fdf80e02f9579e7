// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/stanisci/ebics-sandbox/internal/app/domain/bankaccount"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/demobank"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/host"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/subscriber"
	"github.com/stanisci/ebics-sandbox/internal/app/storage"
)

// Store implements the storage interfaces on top of a *sqlx.DB.
type Store struct {
	db *sqlx.DB
}

var (
	_ storage.HostStore       = (*Store)(nil)
	_ storage.SubscriberStore = (*Store)(nil)
	_ storage.DemobankStore   = (*Store)(nil)
)

// New wraps an existing *sql.DB (the "postgres" driver) for sqlx use.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

// rowScanner abstracts over *sql.Row and *sql.Rows so scan helpers can be
// shared between single-row Get and multi-row List queries.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func fromNullString(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

func toNullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func fromNullTime(nt sql.NullTime) time.Time {
	if !nt.Valid {
		return time.Time{}
	}
	return nt.Time
}

// --- HostStore ---------------------------------------------------------

func (s *Store) CreateHost(ctx context.Context, h host.Host) (host.Host, error) {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO ebics_hosts (host_id, ebics_version, use_x002, encryption_priv_key,
			encryption_pub_key, auth_priv_key, auth_pub_key, created_at)
		VALUES (:host_id, :ebics_version, :use_x002, :encryption_priv_key,
			:encryption_pub_key, :auth_priv_key, :auth_pub_key, :created_at)
	`, hostRow(h))
	if err != nil {
		return host.Host{}, err
	}
	return h, nil
}

func (s *Store) GetHost(ctx context.Context, hostID string) (host.Host, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT host_id, ebics_version, use_x002, encryption_priv_key,
			encryption_pub_key, auth_priv_key, auth_pub_key, created_at
		FROM ebics_hosts WHERE host_id = $1
	`, hostID)
	return scanHost(row)
}

func (s *Store) ListHosts(ctx context.Context) ([]host.Host, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT host_id, ebics_version, use_x002, encryption_priv_key,
			encryption_pub_key, auth_priv_key, auth_pub_key, created_at
		FROM ebics_hosts ORDER BY host_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []host.Host
	for rows.Next() {
		h, err := scanHost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanHost(row rowScanner) (host.Host, error) {
	var h host.Host
	if err := row.Scan(&h.HostID, &h.EbicsVersion, &h.UseX002, &h.EncryptionPrivKey,
		&h.EncryptionPubKey, &h.AuthPrivKey, &h.AuthPubKey, &h.CreatedAt); err != nil {
		return host.Host{}, err
	}
	return h, nil
}

type hostRowFields struct {
	HostID             string    `db:"host_id"`
	EbicsVersion       string    `db:"ebics_version"`
	UseX002            bool      `db:"use_x002"`
	EncryptionPrivKey  []byte    `db:"encryption_priv_key"`
	EncryptionPubKey   []byte    `db:"encryption_pub_key"`
	AuthPrivKey        []byte    `db:"auth_priv_key"`
	AuthPubKey         []byte    `db:"auth_pub_key"`
	CreatedAt          time.Time `db:"created_at"`
}

func hostRow(h host.Host) hostRowFields {
	return hostRowFields{
		HostID: h.HostID, EbicsVersion: h.EbicsVersion, UseX002: h.UseX002,
		EncryptionPrivKey: h.EncryptionPrivKey, EncryptionPubKey: h.EncryptionPubKey,
		AuthPrivKey: h.AuthPrivKey, AuthPubKey: h.AuthPubKey, CreatedAt: h.CreatedAt,
	}
}

// --- SubscriberStore -----------------------------------------------------

func (s *Store) CreateSubscriber(ctx context.Context, sub subscriber.Subscriber) (subscriber.Subscriber, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sub.CreatedAt, sub.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ebics_subscribers (id, host_id, partner_id, user_id, system_id, state,
			signature_pub_key, authentication_pub_key, encryption_pub_key, signature_class,
			next_order_seq, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, sub.ID, sub.HostID, sub.PartnerID, sub.UserID, toNullString(sub.SystemID), sub.State,
		sub.SignaturePubKey, sub.AuthenticationPubKey, sub.EncryptionPubKey, sub.SignatureClass,
		sub.NextOrderSeq, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return subscriber.Subscriber{}, err
	}
	return sub, nil
}

func (s *Store) UpdateSubscriber(ctx context.Context, sub subscriber.Subscriber) (subscriber.Subscriber, error) {
	sub.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE ebics_subscribers
		SET state=$2, signature_pub_key=$3, authentication_pub_key=$4, encryption_pub_key=$5,
			signature_class=$6, system_id=$7, next_order_seq=$8, updated_at=$9
		WHERE id=$1
	`, sub.ID, sub.State, sub.SignaturePubKey, sub.AuthenticationPubKey, sub.EncryptionPubKey,
		sub.SignatureClass, toNullString(sub.SystemID), sub.NextOrderSeq, sub.UpdatedAt)
	if err != nil {
		return subscriber.Subscriber{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return subscriber.Subscriber{}, sql.ErrNoRows
	}
	return sub, nil
}

func (s *Store) GetSubscriber(ctx context.Context, hostID, partnerID, userID string) (subscriber.Subscriber, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, host_id, partner_id, user_id, system_id, state,
			signature_pub_key, authentication_pub_key, encryption_pub_key, signature_class,
			next_order_seq, created_at, updated_at
		FROM ebics_subscribers WHERE host_id=$1 AND partner_id=$2 AND user_id=$3
	`, hostID, partnerID, userID)
	return scanSubscriber(row)
}

func (s *Store) GetSubscriberByID(ctx context.Context, id string) (subscriber.Subscriber, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, host_id, partner_id, user_id, system_id, state,
			signature_pub_key, authentication_pub_key, encryption_pub_key, signature_class,
			next_order_seq, created_at, updated_at
		FROM ebics_subscribers WHERE id=$1
	`, id)
	return scanSubscriber(row)
}

func (s *Store) ListSubscribers(ctx context.Context, hostID string) ([]subscriber.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, host_id, partner_id, user_id, system_id, state,
			signature_pub_key, authentication_pub_key, encryption_pub_key, signature_class,
			next_order_seq, created_at, updated_at
		FROM ebics_subscribers WHERE host_id=$1 ORDER BY partner_id, user_id
	`, hostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []subscriber.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func scanSubscriber(row rowScanner) (subscriber.Subscriber, error) {
	var (
		sub      subscriber.Subscriber
		systemID sql.NullString
	)
	if err := row.Scan(&sub.ID, &sub.HostID, &sub.PartnerID, &sub.UserID, &systemID, &sub.State,
		&sub.SignaturePubKey, &sub.AuthenticationPubKey, &sub.EncryptionPubKey, &sub.SignatureClass,
		&sub.NextOrderSeq, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return subscriber.Subscriber{}, err
	}
	sub.SystemID = fromNullString(systemID)
	return sub, nil
}

func (s *Store) SaveOrderSignature(ctx context.Context, sig subscriber.OrderSignature) error {
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ebics_order_signatures (id, subscriber_id, order_id, order_type, signature, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, sig.ID, sig.SubscriberID, sig.OrderID, sig.OrderType, sig.Signature, sig.CreatedAt)
	return err
}

func (s *Store) HasOrderID(ctx context.Context, hostID, partnerID, orderID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM ebics_used_order_ids WHERE host_id=$1 AND partner_id=$2 AND order_id=$3
		)
	`, hostID, partnerID, orderID).Scan(&exists)
	if err != nil {
		return false, err
	}
	if exists {
		return true, nil
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ebics_used_order_ids (host_id, partner_id, order_id, created_at)
		VALUES ($1,$2,$3,$4) ON CONFLICT DO NOTHING
	`, hostID, partnerID, orderID, time.Now().UTC())
	return false, err
}

// --- DemobankStore ---------------------------------------------------------

func (s *Store) CreateDemobank(ctx context.Context, d demobank.Demobank) (demobank.Demobank, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO demobank_configs (id, name, currency, default_debt_limit, suggested_exchange_account, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, d.ID, d.Name, d.Currency, d.DefaultDebtLimit, toNullString(d.SuggestedExchangeAccount), d.CreatedAt)
	if err != nil {
		return demobank.Demobank{}, err
	}
	return d, nil
}

func (s *Store) UpdateDemobank(ctx context.Context, d demobank.Demobank) (demobank.Demobank, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE demobank_configs
		SET name=$2, currency=$3, default_debt_limit=$4, suggested_exchange_account=$5
		WHERE id=$1
	`, d.ID, d.Name, d.Currency, d.DefaultDebtLimit, toNullString(d.SuggestedExchangeAccount))
	if err != nil {
		return demobank.Demobank{}, err
	}
	return d, nil
}

func (s *Store) GetDemobank(ctx context.Context, id string) (demobank.Demobank, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, currency, default_debt_limit, suggested_exchange_account, created_at
		FROM demobank_configs WHERE id=$1
	`, id)
	return scanDemobank(row)
}

func (s *Store) GetDemobankByName(ctx context.Context, name string) (demobank.Demobank, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, currency, default_debt_limit, suggested_exchange_account, created_at
		FROM demobank_configs WHERE name=$1
	`, name)
	return scanDemobank(row)
}

func (s *Store) ListDemobanks(ctx context.Context) ([]demobank.Demobank, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, currency, default_debt_limit, suggested_exchange_account, created_at
		FROM demobank_configs ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []demobank.Demobank
	for rows.Next() {
		d, err := scanDemobank(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDemobank(row rowScanner) (demobank.Demobank, error) {
	var (
		d        demobank.Demobank
		exchange sql.NullString
	)
	if err := row.Scan(&d.ID, &d.Name, &d.Currency, &d.DefaultDebtLimit, &exchange, &d.CreatedAt); err != nil {
		return demobank.Demobank{}, err
	}
	d.SuggestedExchangeAccount = fromNullString(exchange)
	return d, nil
}

func (s *Store) CreateCustomer(ctx context.Context, c demobank.Customer) (demobank.Customer, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO demobank_customers (id, demobank_id, username, password_hash, full_name, phone, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, c.ID, c.DemobankID, c.Username, c.PasswordHash, c.FullName, toNullString(c.Phone), c.CreatedAt)
	if err != nil {
		return demobank.Customer{}, err
	}
	return c, nil
}

func (s *Store) GetCustomerByUsername(ctx context.Context, demobankID, username string) (demobank.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, demobank_id, username, password_hash, full_name, phone, created_at
		FROM demobank_customers WHERE demobank_id=$1 AND username=$2
	`, demobankID, username)
	return scanCustomer(row)
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (demobank.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, demobank_id, username, password_hash, full_name, phone, created_at
		FROM demobank_customers WHERE id=$1
	`, id)
	return scanCustomer(row)
}

func scanCustomer(row rowScanner) (demobank.Customer, error) {
	var (
		c     demobank.Customer
		phone sql.NullString
	)
	if err := row.Scan(&c.ID, &c.DemobankID, &c.Username, &c.PasswordHash, &c.FullName, &phone, &c.CreatedAt); err != nil {
		return demobank.Customer{}, err
	}
	c.Phone = fromNullString(phone)
	return c, nil
}

// --- BankAccountStore -------------------------------------------------------

func (s *Store) CreateAccount(ctx context.Context, a bankaccount.Account) (bankaccount.Account, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bank_accounts (id, demobank_id, customer_id, subscriber_id, iban, bic, owner_name,
			currency, debt_limit, is_public, is_taler_exchange, last_balance, last_balance_date,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, a.ID, a.DemobankID, a.CustomerID, toNullString(a.SubscriberID), a.IBAN, a.BIC, a.OwnerName,
		a.Currency, a.DebtLimit, a.IsPublic, a.IsTalerExchange, a.LastBalance, toNullTime(a.LastBalanceDate),
		a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return bankaccount.Account{}, err
	}
	return a, nil
}

func (s *Store) UpdateAccount(ctx context.Context, a bankaccount.Account) (bankaccount.Account, error) {
	a.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE bank_accounts
		SET owner_name=$2, debt_limit=$3, is_public=$4, is_taler_exchange=$5,
			last_balance=$6, last_balance_date=$7, updated_at=$8
		WHERE id=$1
	`, a.ID, a.OwnerName, a.DebtLimit, a.IsPublic, a.IsTalerExchange, a.LastBalance,
		toNullTime(a.LastBalanceDate), a.UpdatedAt)
	if err != nil {
		return bankaccount.Account{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return bankaccount.Account{}, sql.ErrNoRows
	}
	return a, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (bankaccount.Account, error) {
	row := s.db.QueryRowContext(ctx, accountSelect+" WHERE id=$1", id)
	return scanAccount(row)
}

func (s *Store) GetAccountByIBAN(ctx context.Context, demobankID, iban string) (bankaccount.Account, error) {
	row := s.db.QueryRowContext(ctx, accountSelect+" WHERE demobank_id=$1 AND iban=$2", demobankID, iban)
	return scanAccount(row)
}

func (s *Store) GetAccountBySubscriberID(ctx context.Context, subscriberID string) (bankaccount.Account, error) {
	row := s.db.QueryRowContext(ctx, accountSelect+" WHERE subscriber_id=$1", subscriberID)
	return scanAccount(row)
}

func (s *Store) ListAccountsByCustomer(ctx context.Context, customerID string) ([]bankaccount.Account, error) {
	return s.queryAccounts(ctx, accountSelect+" WHERE customer_id=$1 ORDER BY created_at", customerID)
}

func (s *Store) ListPublicAccounts(ctx context.Context, demobankID string) ([]bankaccount.Account, error) {
	return s.queryAccounts(ctx, accountSelect+" WHERE demobank_id=$1 AND is_public ORDER BY iban", demobankID)
}

func (s *Store) ListTalerExchangeAccounts(ctx context.Context, demobankID string) ([]bankaccount.Account, error) {
	return s.queryAccounts(ctx, accountSelect+" WHERE demobank_id=$1 AND is_taler_exchange ORDER BY iban", demobankID)
}

func (s *Store) ListAllAccounts(ctx context.Context, demobankID string) ([]bankaccount.Account, error) {
	return s.queryAccounts(ctx, accountSelect+" WHERE demobank_id=$1 ORDER BY iban", demobankID)
}

const accountSelect = `
	SELECT id, demobank_id, customer_id, subscriber_id, iban, bic, owner_name, currency,
		debt_limit, is_public, is_taler_exchange, last_balance, last_balance_date,
		created_at, updated_at
	FROM bank_accounts`

func (s *Store) queryAccounts(ctx context.Context, query string, args ...interface{}) ([]bankaccount.Account, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []bankaccount.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAccount(row rowScanner) (bankaccount.Account, error) {
	var (
		a            bankaccount.Account
		subscriberID sql.NullString
		lastBalDate  sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.DemobankID, &a.CustomerID, &subscriberID, &a.IBAN, &a.BIC, &a.OwnerName,
		&a.Currency, &a.DebtLimit, &a.IsPublic, &a.IsTalerExchange, &a.LastBalance, &lastBalDate,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return bankaccount.Account{}, err
	}
	a.SubscriberID = fromNullString(subscriberID)
	a.LastBalanceDate = fromNullTime(lastBalDate)
	return a, nil
}
