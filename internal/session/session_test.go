package session_test

import (
	"context"
	"testing"

	"github.com/seantiz/anvil/internal/session"
)

func TestSessionIDsAreUnique(t *testing.T) {
	a := session.New(context.Background())
	b := session.New(context.Background())
	if a.ID() == b.ID() {
		t.Errorf("two sessions share ID %q", a.ID())
	}
}

func TestCancelPropagates(t *testing.T) {
	s := session.New(context.Background())
	if s.Err() != nil {
		t.Fatalf("fresh session Err = %v", s.Err())
	}

	s.Cancel()

	select {
	case <-s.Done():
	default:
		t.Error("Done not closed after Cancel")
	}
	if s.Err() == nil {
		t.Error("Err nil after Cancel")
	}
	if s.Context().Err() == nil {
		t.Error("run context not cancelled")
	}
}

func TestParentCancellationReachesSession(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	s := session.New(parent)
	cancel()

	select {
	case <-s.Done():
	default:
		t.Error("parent cancellation did not reach session")
	}
}
