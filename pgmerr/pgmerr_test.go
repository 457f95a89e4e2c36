package pgmerr

import "testing"

func TestErrorMessage(t *testing.T) {
	err := New(DomainPacket, CodeChecksum, "bad checksum %d", 7)
	want := "pgm: PACKET/CKSUM: bad checksum 7"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestIs(t *testing.T) {
	err := New(DomainSocket, CodeConnReset, "")
	if !Is(err, DomainSocket, CodeConnReset) {
		t.Error("Is() should match domain+code")
	}
	if Is(err, DomainSocket, CodeAgain) {
		t.Error("Is() should not match differing code")
	}
	if Is(nil, DomainSocket, CodeConnReset) {
		t.Error("Is(nil, ...) should be false")
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		Normal:       "NORMAL",
		WouldBlock:   "WOULD_BLOCK",
		RateLimited:  "RATE_LIMITED",
		TimerPending: "TIMER_PENDING",
		Reset:        "RESET",
		EOF:          "EOF",
		ErrorStatus:  "ERROR",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", s, got, want)
		}
	}
}
