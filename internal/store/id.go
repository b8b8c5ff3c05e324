package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

func NewInvoiceID() string { return newID("inv") }
func NewPaymentID() string { return newID("pay") }
func NewContactID() string { return newID("con") }

func newID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return prefix + "_unknown"
	}
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(b))
}
