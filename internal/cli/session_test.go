package cli

import (
	"errors"
	"testing"
)

func TestSessionRoundTrip(t *testing.T) {
	t.Setenv("FIN_HOME", t.TempDir())

	if _, err := LoadSession(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("load before save: err=%v want ErrNoSession", err)
	}

	saved := Session{
		AccessToken:  "tok-123",
		RefreshToken: "ref-456",
		Address:      "addr-789",
		UserID:       "user-1",
	}
	if err := SaveSession(saved); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadSession()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != saved {
		t.Fatalf("loaded %+v want %+v", got, saved)
	}

	if err := ClearSession(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := LoadSession(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("load after clear: err=%v want ErrNoSession", err)
	}
	if err := ClearSession(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestLoadSessionRejectsEmptyToken(t *testing.T) {
	t.Setenv("FIN_HOME", t.TempDir())
	if err := SaveSession(Session{Address: "addr"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := LoadSession(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err=%v want ErrNoSession", err)
	}
}
