package session

import (
	"strings"
	"testing"
	"time"

	"continuouscare/internal/models"
)

func newTestRegistry(capacity int, ttl time.Duration) (*Registry, *time.Time) {
	r := NewRegistry(capacity, ttl)
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }
	r.client.now = clock
	r.medic.now = clock
	return r, &now
}

func TestIssueReturnsSameTokenWhileLive(t *testing.T) {
	r, _ := newTestRegistry(10, time.Hour)
	defer r.Close()

	first := r.Issue(models.RoleClient, "alice")
	second := r.Issue(models.RoleClient, "alice")
	if first != second {
		t.Errorf("live user got a second token: %q vs %q", first, second)
	}

	user, ok := r.Lookup(models.RoleClient, first)
	if !ok || user != "alice" {
		t.Errorf("Lookup = (%q, %v), want (alice, true)", user, ok)
	}
}

func TestIssueRotatesAfterExpiry(t *testing.T) {
	r, now := newTestRegistry(10, time.Hour)
	defer r.Close()

	first := r.Issue(models.RoleClient, "alice")
	*now = now.Add(2 * time.Hour)

	if _, ok := r.Lookup(models.RoleClient, first); ok {
		t.Error("expired token still resolves")
	}
	second := r.Issue(models.RoleClient, "alice")
	if first == second {
		t.Error("expired token reissued unchanged")
	}
}

func TestRolesAreIsolated(t *testing.T) {
	r, _ := newTestRegistry(10, time.Hour)
	defer r.Close()

	token := r.Issue(models.RoleClient, "alice")
	if _, ok := r.Lookup(models.RoleMedic, token); ok {
		t.Error("client token resolved in the medic table")
	}
}

func TestRevoke(t *testing.T) {
	r, _ := newTestRegistry(10, time.Hour)
	defer r.Close()

	token := r.Issue(models.RoleMedic, "bob")
	if !r.Revoke(models.RoleMedic, token) {
		t.Fatal("Revoke reported unknown token")
	}
	if _, ok := r.Lookup(models.RoleMedic, token); ok {
		t.Error("revoked token still resolves")
	}
	if r.Revoke(models.RoleMedic, token) {
		t.Error("double revoke reported success")
	}
}

func TestTokenOf(t *testing.T) {
	r, _ := newTestRegistry(10, time.Hour)
	defer r.Close()

	token := r.Issue(models.RoleClient, "alice")
	got, ok := r.TokenOf(models.RoleClient, "alice")
	if !ok || got != token {
		t.Errorf("TokenOf = (%q, %v), want (%q, true)", got, ok, token)
	}
	if _, ok := r.TokenOf(models.RoleClient, "nobody"); ok {
		t.Error("TokenOf found a token for an unknown user")
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	r, now := newTestRegistry(2, time.Hour)
	defer r.Close()

	first := r.Issue(models.RoleClient, "alice")
	*now = now.Add(time.Minute)
	r.Issue(models.RoleClient, "bob")
	*now = now.Add(time.Minute)
	r.Issue(models.RoleClient, "carol")

	if _, ok := r.Lookup(models.RoleClient, first); ok {
		t.Error("oldest token survived eviction at capacity")
	}
	if _, ok := r.TokenOf(models.RoleClient, "bob"); !ok {
		t.Error("newer token evicted instead of the oldest")
	}
	if _, ok := r.TokenOf(models.RoleClient, "carol"); !ok {
		t.Error("newly issued token missing")
	}
}

func TestTokenShape(t *testing.T) {
	for i := 0; i < 50; i++ {
		token := randomToken()
		if len(token) < tokenMinLen || len(token) > tokenMaxLen {
			t.Fatalf("token length %d outside [%d, %d]", len(token), tokenMinLen, tokenMaxLen)
		}
		for _, c := range token {
			if !strings.ContainsRune(tokenAlphabet, c) {
				t.Fatalf("token contains %q outside the alphabet", c)
			}
		}
	}
}
