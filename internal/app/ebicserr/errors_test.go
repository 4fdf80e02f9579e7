package ebicserr

import "testing"

func TestErrorString(t *testing.T) {
	err := New(InvalidRequest, "multi-segment upload not implemented")
	want := "ebics error 060102: [EBICS_INVALID_REQUEST] Signature verification failed or request could not be processed (multi-segment upload not implemented)"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestIsOK(t *testing.T) {
	if !IsOK(OK) {
		t.Error("expected OK to report true")
	}
	if IsOK(InvalidRequest) {
		t.Error("expected InvalidRequest to report false")
	}
}

func TestMeaningDefaultsToProcessingError(t *testing.T) {
	if Code("999999").Meaning() != ProcessingError.Meaning() {
		t.Error("expected unknown code to fall back to the processing-error meaning")
	}
}
