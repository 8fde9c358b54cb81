package chat

import (
	"errors"
	"sort"
	"testing"
)

func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(r *Registry)
		connID   string
		identity Identity
		wantErr  error
	}{
		{
			name:     "first registration succeeds",
			setup:    func(*Registry) {},
			connID:   "c1",
			identity: Identity{Label: "alice@example.com"},
			wantErr:  nil,
		},
		{
			name: "duplicate registration fails",
			setup: func(r *Registry) {
				_ = r.Register("c1", Identity{Label: "alice@example.com"})
			},
			connID:   "c1",
			identity: Identity{Label: "alice@example.com"},
			wantErr:  ErrDuplicateConnection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			tt.setup(r)
			err := r.Register(tt.connID, tt.identity)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistry_IdentityOf(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("c1", Identity{Label: "bob@example.com", UserID: "42"}); err != nil {
		t.Fatalf("Register() unexpected error: %v", err)
	}

	id, err := r.IdentityOf("c1")
	if err != nil {
		t.Fatalf("IdentityOf() unexpected error: %v", err)
	}
	if id.Label != "bob@example.com" || id.UserID != "42" {
		t.Errorf("IdentityOf() = %+v, want label bob@example.com uid 42", id)
	}

	if _, err := r.IdentityOf("nope"); !errors.Is(err, ErrUnknownConnection) {
		t.Errorf("IdentityOf(unknown) error = %v, want ErrUnknownConnection", err)
	}
}

func TestRegistry_DefaultsToAnonymous(t *testing.T) {
	r := NewRegistry()
	_ = r.Register("c1", Identity{})
	id, _ := r.IdentityOf("c1")
	if id.Label != "Anonymous" {
		t.Errorf("label = %q, want Anonymous", id.Label)
	}
}

func TestRegistry_SetLabel(t *testing.T) {
	r := NewRegistry()
	_ = r.Register("c1", Identity{})

	if err := r.SetLabel("c1", "carol@example.com"); err != nil {
		t.Fatalf("SetLabel() unexpected error: %v", err)
	}
	id, _ := r.IdentityOf("c1")
	if id.Label != "carol@example.com" {
		t.Errorf("label = %q, want carol@example.com", id.Label)
	}

	// Empty labels are ignored, not applied
	if err := r.SetLabel("c1", ""); err != nil {
		t.Fatalf("SetLabel(empty) unexpected error: %v", err)
	}
	id, _ = r.IdentityOf("c1")
	if id.Label != "carol@example.com" {
		t.Errorf("label after empty relabel = %q, want carol@example.com", id.Label)
	}

	if err := r.SetLabel("nope", "x"); !errors.Is(err, ErrUnknownConnection) {
		t.Errorf("SetLabel(unknown) error = %v, want ErrUnknownConnection", err)
	}
}

func TestRegistry_DeregisterReturnsRooms(t *testing.T) {
	r := NewRegistry()
	_ = r.Register("c1", Identity{Label: "dan@example.com"})
	r.roomJoined("c1", "3542519")
	r.roomJoined("c1", "99942")
	r.roomLeft("c1", "99942")
	r.roomJoined("c1", "2000433")

	got := r.Deregister("c1")
	sort.Strings(got)
	want := []string{"2000433", "3542519"}
	if len(got) != len(want) {
		t.Fatalf("Deregister() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Deregister() = %v, want %v", got, want)
		}
	}

	// Idempotent: second call returns nothing
	if again := r.Deregister("c1"); len(again) != 0 {
		t.Errorf("second Deregister() = %v, want empty", again)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d after deregister, want 0", r.Len())
	}
}
