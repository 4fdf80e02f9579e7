package metrics

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"/":                                         "/",
		"/metrics":                                  "/metrics",
		"/demobanks":                                 "/demobanks/:demobank",
		"/demobanks/default":                         "/demobanks/:demobank",
		"/demobanks/default/access-api/accounts/42":  "/demobanks/:demobank/access-api/accounts/42",
		"/admin":                                     "/admin",
		"/admin/hosts":                               "/admin/hosts",
	}
	for in, want := range cases {
		if got := canonicalPath(in); got != want {
			t.Errorf("canonicalPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordHelpersDoNotPanicOnEmptyLabels(t *testing.T) {
	RecordEbicsRequest("", "", "", 0)
	RecordBooking("", 0)
	RecordStatementTick("", 0)
	RecordWithdrawalTransition("")
}
