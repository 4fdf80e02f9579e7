package ledger

import "testing"

func TestParseAmountCents(t *testing.T) {
	cases := map[string]int64{
		"10.50": 1050,
		"10":    1000,
		"10.5":  1050,
		"-3.20": -320,
		"0.00":  0,
	}
	for in, want := range cases {
		got, err := parseAmountCents(in)
		if err != nil {
			t.Fatalf("parseAmountCents(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("parseAmountCents(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseAmountCentsRejectsTooManyFractionalDigits(t *testing.T) {
	if _, err := parseAmountCents("10.501"); err == nil {
		t.Fatal("expected error for three fractional digits")
	}
}

func TestFormatAmountCentsRoundTrips(t *testing.T) {
	for _, s := range []string{"10.50", "0.00", "-3.20", "1000.00"} {
		cents, err := parseAmountCents(s)
		if err != nil {
			t.Fatalf("parseAmountCents(%q): %v", s, err)
		}
		if got := formatAmountCents(cents); got != s {
			t.Errorf("formatAmountCents(parseAmountCents(%q)) = %q, want %q", s, got, s)
		}
	}
}

func TestSumCentsAppliesDirection(t *testing.T) {
	acc, err := sumCents(0, Credit, "10.00")
	if err != nil {
		t.Fatalf("sumCents credit: %v", err)
	}
	acc, err = sumCents(acc, Debit, "4.00")
	if err != nil {
		t.Fatalf("sumCents debit: %v", err)
	}
	if acc != 600 {
		t.Fatalf("got %d, want 600", acc)
	}
}
