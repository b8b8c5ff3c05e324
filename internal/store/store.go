package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/payflowhq/payflow/internal/model"
)

// Store persists invoices, payment records and contacts in a single sqlite
// file. Rows carry the full JSON payload plus a few indexed columns; cross
// process writes are serialized through a file lock.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS invoices (
			invoice_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_invoices_status_created ON invoices(status, created_at DESC);",
		`CREATE TABLE IF NOT EXISTS payments (
			payment_id TEXT PRIMARY KEY,
			invoice_id TEXT,
			status TEXT NOT NULL,
			tx_hash TEXT,
			created_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_payments_status_created ON payments(status, created_at DESC);",
		`CREATE TABLE IF NOT EXISTS contacts (
			contact_id TEXT PRIMARY KEY,
			address TEXT NOT NULL,
			ens_name TEXT,
			payload BLOB NOT NULL
		);`,
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_contacts_address ON contacts(address);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init store schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) withLock(fn func() error) error {
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

func (s *Store) SaveInvoice(invoice model.Invoice) error {
	if strings.TrimSpace(invoice.ID) == "" {
		return fmt.Errorf("save invoice: missing id")
	}
	return s.withLock(func() error {
		payload, err := json.Marshal(invoice)
		if err != nil {
			return fmt.Errorf("marshal invoice: %w", err)
		}
		createdUnix := rfc3339Unix(invoice.CreatedAt)
		_, err = s.db.Exec(`
			INSERT INTO invoices (invoice_id, status, created_at, payload)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(invoice_id) DO UPDATE SET
				status=excluded.status,
				payload=excluded.payload
		`, invoice.ID, invoice.Status, createdUnix, payload)
		if err != nil {
			return fmt.Errorf("save invoice: %w", err)
		}
		return nil
	})
}

func (s *Store) GetInvoice(invoiceID string) (model.Invoice, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM invoices WHERE invoice_id = ?", invoiceID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Invoice{}, fmt.Errorf("invoice not found: %s", invoiceID)
		}
		return model.Invoice{}, fmt.Errorf("read invoice: %w", err)
	}
	var invoice model.Invoice
	if err := json.Unmarshal(payload, &invoice); err != nil {
		return model.Invoice{}, fmt.Errorf("decode invoice payload: %w", err)
	}
	return invoice, nil
}

func (s *Store) ListInvoices(status string, limit int) ([]model.Invoice, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(status) == "" {
		rows, err = s.db.Query("SELECT payload FROM invoices ORDER BY created_at DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.Query("SELECT payload FROM invoices WHERE status = ? ORDER BY created_at DESC LIMIT ?", status, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	invoices := make([]model.Invoice, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan invoice row: %w", err)
		}
		var invoice model.Invoice
		if err := json.Unmarshal(payload, &invoice); err != nil {
			return nil, fmt.Errorf("decode invoice row: %w", err)
		}
		invoices = append(invoices, invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoice rows: %w", err)
	}
	return invoices, nil
}

func (s *Store) SavePayment(payment model.PaymentRecord) error {
	if strings.TrimSpace(payment.ID) == "" {
		return fmt.Errorf("save payment: missing id")
	}
	return s.withLock(func() error {
		payload, err := json.Marshal(payment)
		if err != nil {
			return fmt.Errorf("marshal payment: %w", err)
		}
		createdUnix := rfc3339Unix(payment.CreatedAt)
		_, err = s.db.Exec(`
			INSERT INTO payments (payment_id, invoice_id, status, tx_hash, created_at, payload)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(payment_id) DO UPDATE SET
				invoice_id=excluded.invoice_id,
				status=excluded.status,
				tx_hash=excluded.tx_hash,
				payload=excluded.payload
		`, payment.ID, payment.InvoiceID, payment.Status, payment.TxHash, createdUnix, payload)
		if err != nil {
			return fmt.Errorf("save payment: %w", err)
		}
		return nil
	})
}

func (s *Store) GetPayment(paymentID string) (model.PaymentRecord, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM payments WHERE payment_id = ?", paymentID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PaymentRecord{}, fmt.Errorf("payment not found: %s", paymentID)
		}
		return model.PaymentRecord{}, fmt.Errorf("read payment: %w", err)
	}
	var payment model.PaymentRecord
	if err := json.Unmarshal(payload, &payment); err != nil {
		return model.PaymentRecord{}, fmt.Errorf("decode payment payload: %w", err)
	}
	return payment, nil
}

func (s *Store) ListPayments(status string, limit int) ([]model.PaymentRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(status) == "" {
		rows, err = s.db.Query("SELECT payload FROM payments ORDER BY created_at DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.Query("SELECT payload FROM payments WHERE status = ? ORDER BY created_at DESC LIMIT ?", status, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]model.PaymentRecord, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan payment row: %w", err)
		}
		var payment model.PaymentRecord
		if err := json.Unmarshal(payload, &payment); err != nil {
			return nil, fmt.Errorf("decode payment row: %w", err)
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment rows: %w", err)
	}
	return payments, nil
}

func (s *Store) SaveContact(contact model.Contact) error {
	if strings.TrimSpace(contact.ID) == "" {
		return fmt.Errorf("save contact: missing id")
	}
	if strings.TrimSpace(contact.Address) == "" {
		return fmt.Errorf("save contact: missing address")
	}
	return s.withLock(func() error {
		payload, err := json.Marshal(contact)
		if err != nil {
			return fmt.Errorf("marshal contact: %w", err)
		}
		_, err = s.db.Exec(`
			INSERT INTO contacts (contact_id, address, ens_name, payload)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(contact_id) DO UPDATE SET
				address=excluded.address,
				ens_name=excluded.ens_name,
				payload=excluded.payload
		`, contact.ID, strings.ToLower(contact.Address), contact.ENSName, payload)
		if err != nil {
			return fmt.Errorf("save contact: %w", err)
		}
		return nil
	})
}

func (s *Store) GetContactByAddress(address string) (model.Contact, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM contacts WHERE address = ?", strings.ToLower(strings.TrimSpace(address))).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Contact{}, fmt.Errorf("contact not found: %s", address)
		}
		return model.Contact{}, fmt.Errorf("read contact: %w", err)
	}
	var contact model.Contact
	if err := json.Unmarshal(payload, &contact); err != nil {
		return model.Contact{}, fmt.Errorf("decode contact payload: %w", err)
	}
	return contact, nil
}

func (s *Store) ListContacts(limit int) ([]model.Contact, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query("SELECT payload FROM contacts ORDER BY address LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]model.Contact, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan contact row: %w", err)
		}
		var contact model.Contact
		if err := json.Unmarshal(payload, &contact); err != nil {
			return nil, fmt.Errorf("decode contact row: %w", err)
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contact rows: %w", err)
	}
	return contacts, nil
}

// RecordPaymentForContact bumps the payment counters after a successful
// send, creating the contact when it does not exist yet.
func (s *Store) RecordPaymentForContact(address, ensName, contactID string) error {
	contact, err := s.GetContactByAddress(address)
	if err != nil {
		contact = model.Contact{
			ID:      contactID,
			Address: strings.ToLower(strings.TrimSpace(address)),
			ENSName: ensName,
		}
	}
	contact.PaymentCount++
	contact.LastPaidAt = time.Now().UTC().Format(time.RFC3339)
	if ensName != "" {
		contact.ENSName = ensName
	}
	return s.SaveContact(contact)
}

func rfc3339Unix(v string) int64 {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Now().UTC().Unix()
	}
	return t.UTC().Unix()
}
