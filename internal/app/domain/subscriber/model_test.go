package subscriber

import "testing"

func TestNextState(t *testing.T) {
	var s Subscriber
	if s.NextState() != StateNew {
		t.Errorf("expected StateNew, got %s", s.NextState())
	}

	s.SignaturePubKey = []byte("sig")
	if got := s.NextState(); got != StatePartiallyInitialized {
		t.Errorf("expected StatePartiallyInitialized, got %s", got)
	}

	s.AuthenticationPubKey = []byte("auth")
	s.EncryptionPubKey = []byte("enc")
	if got := s.NextState(); got != StateInitialized {
		t.Errorf("expected StateInitialized, got %s", got)
	}
}

func TestCanTransact(t *testing.T) {
	cases := map[State]bool{
		StateNew:                  false,
		StatePartiallyInitialized: false,
		StateInitialized:          true,
		StateReady:                true,
	}
	for state, want := range cases {
		s := Subscriber{State: state}
		if got := s.CanTransact(); got != want {
			t.Errorf("state %s: CanTransact() = %v, want %v", state, got, want)
		}
	}
}
