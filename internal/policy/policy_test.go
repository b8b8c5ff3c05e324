package policy

import "testing"

func TestCheckCommandAllowed(t *testing.T) {
	if err := CheckCommandAllowed(nil, "invoices list"); err != nil {
		t.Fatalf("unexpected error with empty allowlist: %v", err)
	}
	if err := CheckCommandAllowed([]string{"invoices list"}, "invoices list"); err != nil {
		t.Fatalf("expected exact match to be allowed: %v", err)
	}
	if err := CheckCommandAllowed([]string{"chains list"}, "invoices list"); err == nil {
		t.Fatal("expected command to be blocked")
	}
}

func TestCheckCommandAllowedGroupEntry(t *testing.T) {
	if err := CheckCommandAllowed([]string{"invoices"}, "invoices pay"); err != nil {
		t.Fatalf("group entry should cover its subcommands: %v", err)
	}
	if err := CheckCommandAllowed([]string{"invoices"}, "send"); err == nil {
		t.Fatal("group entry must not cover unrelated commands")
	}
	// "invoices pay" must not be unlocked by a listing of "invoices payall".
	if err := CheckCommandAllowed([]string{"invoices payall"}, "invoices pay"); err == nil {
		t.Fatal("prefix matching must respect word boundaries")
	}
}

func TestCheckCommandAllowedNormalizesCase(t *testing.T) {
	if err := CheckCommandAllowed([]string{"  Chains   List "}, "chains list"); err != nil {
		t.Fatalf("allowlist entries should be normalized: %v", err)
	}
}
