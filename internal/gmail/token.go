package gmail

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/inboxagent/sync-worker/internal/models"
)

// TokenStore persists rotated tokens after a refresh.
type TokenStore interface {
	UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error
}

// EnsureAccessToken returns a usable access token for the user,
// refreshing and persisting it when the stored one is expired or
// about to expire.
func (c *Client) EnsureAccessToken(ctx context.Context, user *models.User, store TokenStore) (string, error) {
	if user.AccessToken == nil {
		return "", fmt.Errorf("user %s missing access token", user.ID)
	}

	if !tokenExpired(user.AccessTokenExpiresAt) {
		return *user.AccessToken, nil
	}

	if user.RefreshToken == nil {
		return "", fmt.Errorf("user %s token expired and no refresh token available", user.ID)
	}

	log.Printf("Access token expired for user %s, refreshing...", user.ID)
	result, err := c.RefreshAccessToken(ctx, *user.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}

	if err := store.UpdateTokens(ctx, user.ID, result.AccessToken, result.RefreshToken, result.ExpiresAt); err != nil {
		return "", fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}

	user.AccessToken = &result.AccessToken
	user.RefreshToken = &result.RefreshToken
	user.AccessTokenExpiresAt = &result.ExpiresAt
	return result.AccessToken, nil
}

// tokenExpired treats a token expiring within 5 minutes as expired.
func tokenExpired(expiresAt *time.Time) bool {
	if expiresAt == nil {
		return true
	}
	return time.Now().Add(5 * time.Minute).After(*expiresAt)
}
