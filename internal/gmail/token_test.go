package gmail

import (
	"context"
	"testing"
	"time"

	"github.com/inboxagent/sync-worker/internal/models"
)

type noopStore struct {
	updated bool
}

func (s *noopStore) UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error {
	s.updated = true
	return nil
}

func TestTokenExpired(t *testing.T) {
	if !tokenExpired(nil) {
		t.Error("nil expiry must count as expired")
	}

	past := time.Now().Add(-time.Hour)
	if !tokenExpired(&past) {
		t.Error("past expiry must count as expired")
	}

	soon := time.Now().Add(2 * time.Minute)
	if !tokenExpired(&soon) {
		t.Error("expiry inside the 5-minute buffer must count as expired")
	}

	later := time.Now().Add(time.Hour)
	if tokenExpired(&later) {
		t.Error("expiry an hour out must not count as expired")
	}
}

func TestEnsureAccessTokenUsesFreshToken(t *testing.T) {
	client := NewClient("id", "secret")
	access := "fresh-token"
	expires := time.Now().Add(time.Hour)
	user := &models.User{ID: "u1", AccessToken: &access, AccessTokenExpiresAt: &expires}
	store := &noopStore{}

	token, err := client.EnsureAccessToken(context.Background(), user, store)
	if err != nil {
		t.Fatalf("EnsureAccessToken failed: %v", err)
	}
	if token != "fresh-token" {
		t.Errorf("expected stored token, got %q", token)
	}
	if store.updated {
		t.Error("fresh token must not trigger a refresh")
	}
}

func TestEnsureAccessTokenMissingToken(t *testing.T) {
	client := NewClient("id", "secret")
	user := &models.User{ID: "u1"}

	if _, err := client.EnsureAccessToken(context.Background(), user, &noopStore{}); err == nil {
		t.Fatal("expected error for user without tokens")
	}
}

func TestEnsureAccessTokenExpiredWithoutRefreshToken(t *testing.T) {
	client := NewClient("id", "secret")
	access := "stale-token"
	expires := time.Now().Add(-time.Hour)
	user := &models.User{ID: "u1", AccessToken: &access, AccessTokenExpiresAt: &expires}

	if _, err := client.EnsureAccessToken(context.Background(), user, &noopStore{}); err == nil {
		t.Fatal("expected error when expired and no refresh token")
	}
}
