package store

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/payflowhq/payflow/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "payflow.db"), filepath.Join(dir, "payflow.lock"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInvoiceRoundTrip(t *testing.T) {
	s := openTestStore(t)

	invoice := model.Invoice{
		ID: NewInvoiceID(),
		Parsed: model.ParsedInvoice{
			Recipient: "0x2222222222222222222222222222222222222222",
			Amount:    "150.00",
			Token:     "USDC",
			Chain:     "base",
			Memo:      "design work",
		},
		Status:    "pending",
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.SaveInvoice(invoice); err != nil {
		t.Fatalf("SaveInvoice failed: %v", err)
	}

	got, err := s.GetInvoice(invoice.ID)
	if err != nil {
		t.Fatalf("GetInvoice failed: %v", err)
	}
	if got.Parsed.Amount != "150.00" || got.Parsed.Token != "USDC" {
		t.Fatalf("unexpected invoice: %+v", got)
	}

	// Upsert flips the status in place.
	invoice.Status = "paid"
	if err := s.SaveInvoice(invoice); err != nil {
		t.Fatalf("SaveInvoice update failed: %v", err)
	}
	got, _ = s.GetInvoice(invoice.ID)
	if got.Status != "paid" {
		t.Fatalf("expected paid, got %s", got.Status)
	}

	pending, err := s.ListInvoices("pending", 10)
	if err != nil {
		t.Fatalf("ListInvoices failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending invoices, got %d", len(pending))
	}
	paid, _ := s.ListInvoices("paid", 10)
	if len(paid) != 1 {
		t.Fatalf("expected one paid invoice, got %d", len(paid))
	}
}

func TestGetInvoiceMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetInvoice("inv_missing"); err == nil {
		t.Fatal("expected error for missing invoice")
	}
}

func TestPaymentListOrderAndFilter(t *testing.T) {
	s := openTestStore(t)

	older := model.PaymentRecord{
		ID:        NewPaymentID(),
		Status:    "success",
		TxHash:    "0xold",
		CreatedAt: time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
	}
	newer := model.PaymentRecord{
		ID:        NewPaymentID(),
		Status:    "failed",
		TxHash:    "0xnew",
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.SavePayment(older); err != nil {
		t.Fatalf("SavePayment failed: %v", err)
	}
	if err := s.SavePayment(newer); err != nil {
		t.Fatalf("SavePayment failed: %v", err)
	}

	all, err := s.ListPayments("", 10)
	if err != nil {
		t.Fatalf("ListPayments failed: %v", err)
	}
	if len(all) != 2 || all[0].TxHash != "0xnew" {
		t.Fatalf("expected newest first, got %+v", all)
	}

	failed, _ := s.ListPayments("failed", 10)
	if len(failed) != 1 || failed[0].ID != newer.ID {
		t.Fatalf("unexpected filter result: %+v", failed)
	}
}

func TestContactLookupIsCaseInsensitive(t *testing.T) {
	s := openTestStore(t)

	contact := model.Contact{
		ID:      NewContactID(),
		Address: "0xABCDABCDABCDABCDABCDABCDABCDABCDABCDABCD",
		Name:    "Alice",
	}
	if err := s.SaveContact(contact); err != nil {
		t.Fatalf("SaveContact failed: %v", err)
	}

	got, err := s.GetContactByAddress("0xabcdabcdabcdabcdabcdabcdabcdabcdabcdabcd")
	if err != nil {
		t.Fatalf("GetContactByAddress failed: %v", err)
	}
	if got.Name != "Alice" {
		t.Fatalf("unexpected contact: %+v", got)
	}
}

func TestRecordPaymentForContact(t *testing.T) {
	s := openTestStore(t)
	address := "0x2222222222222222222222222222222222222222"

	if err := s.RecordPaymentForContact(address, "bob.eth", NewContactID()); err != nil {
		t.Fatalf("RecordPaymentForContact failed: %v", err)
	}
	contact, err := s.GetContactByAddress(address)
	if err != nil {
		t.Fatalf("contact not created: %v", err)
	}
	if contact.PaymentCount != 1 || contact.ENSName != "bob.eth" {
		t.Fatalf("unexpected contact: %+v", contact)
	}

	if err := s.RecordPaymentForContact(address, "", NewContactID()); err != nil {
		t.Fatalf("second RecordPaymentForContact failed: %v", err)
	}
	contact, _ = s.GetContactByAddress(address)
	if contact.PaymentCount != 2 {
		t.Fatalf("expected count 2, got %d", contact.PaymentCount)
	}
	if contact.ENSName != "bob.eth" {
		t.Fatal("blank ens name must not clear the stored one")
	}
	if contact.LastPaidAt == "" {
		t.Fatal("last paid timestamp missing")
	}
}

func TestNewIDPrefixes(t *testing.T) {
	if !strings.HasPrefix(NewInvoiceID(), "inv_") {
		t.Fatal("invoice ids carry the inv_ prefix")
	}
	if !strings.HasPrefix(NewPaymentID(), "pay_") {
		t.Fatal("payment ids carry the pay_ prefix")
	}
	if !strings.HasPrefix(NewContactID(), "con_") {
		t.Fatal("contact ids carry the con_ prefix")
	}
	if NewPaymentID() == NewPaymentID() {
		t.Fatal("ids must be unique")
	}
}
