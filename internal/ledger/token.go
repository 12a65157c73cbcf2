package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/Moof29/batchly/internal/breaker"
	"github.com/Moof29/batchly/internal/config"
	"github.com/Moof29/batchly/internal/errors"
	"github.com/Moof29/batchly/internal/models"
)

// ConnectionStore is the slice of the datastore the token manager needs.
type ConnectionStore interface {
	GetConnection(ctx context.Context, orgID string) (*models.Connection, error)
	UpdateConnectionTokens(ctx context.Context, orgID, accessToken, refreshToken string, expiresAt time.Time) error
}

// TokenManager supplies the bearer credential for ledger calls. Refresh is
// proactive: a token within RefreshMargin of expiry is refreshed before use,
// never only reactively on a 401. The refresh call itself goes through its
// own breaker surface so a degraded auth endpoint cannot cause a refresh
// storm.
type TokenManager struct {
	store   ConnectionStore
	cfg     *config.LedgerConfig
	breaker *breaker.Breaker
	logger  *logrus.Logger
}

// NewTokenManager creates a token manager.
func NewTokenManager(store ConnectionStore, cfg *config.LedgerConfig, breakers *breaker.Registry, logger *logrus.Logger) *TokenManager {
	return &TokenManager{
		store:   store,
		cfg:     cfg,
		breaker: breakers.For(breaker.SurfaceAuthRefresh),
		logger:  logger,
	}
}

// Token returns a valid bearer token and the realm id for an organization.
func (t *TokenManager) Token(ctx context.Context, orgID string) (string, string, error) {
	conn, err := t.store.GetConnection(ctx, orgID)
	if err != nil {
		return "", "", fmt.Errorf("failed to get connection: %w", err)
	}
	if conn == nil {
		return "", "", errors.NewAuthError(fmt.Sprintf("no ledger connection for organization %s", orgID), nil)
	}
	if !conn.IsActive {
		return "", "", errors.NewAuthError(fmt.Sprintf("ledger connection for organization %s is disconnected", orgID), nil)
	}

	if !conn.TokenExpiresWithin(t.cfg.RefreshMargin) {
		return conn.AccessToken, conn.RealmID, nil
	}

	logger := t.logger.WithFields(logrus.Fields{
		"organization": orgID,
		"expires_at":   conn.TokenExpiresAt,
	})
	logger.Info("Access token near expiry, refreshing")

	var refreshed *oauth2.Token
	err = t.breaker.Execute(ctx, func(ctx context.Context) error {
		var refreshErr error
		refreshed, refreshErr = t.refresh(ctx, conn.RefreshToken)
		return refreshErr
	})
	if err != nil {
		logger.WithError(err).Error("Failed to refresh access token")
		return "", "", fmt.Errorf("failed to refresh token: %w", err)
	}

	refreshToken := refreshed.RefreshToken
	if refreshToken == "" {
		refreshToken = conn.RefreshToken
	}
	if err := t.store.UpdateConnectionTokens(ctx, orgID, refreshed.AccessToken, refreshToken, refreshed.Expiry); err != nil {
		return "", "", fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}

	logger.WithField("new_expiry", refreshed.Expiry).Info("Access token refreshed")
	return refreshed.AccessToken, conn.RealmID, nil
}

func (t *TokenManager) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	oauthCfg := &oauth2.Config{
		ClientID:     t.cfg.ClientID,
		ClientSecret: t.cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: t.cfg.TokenURL},
	}

	source := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, errors.NewAuthError("token refresh failed", err)
	}
	return token, nil
}
