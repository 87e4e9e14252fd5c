package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"meetpoll/internal/domain"
	"meetpoll/internal/service"
	"meetpoll/pkg/errors"
	"meetpoll/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

// googleUserinfoURL is the OpenID Connect userinfo endpoint. Access tokens
// are resolved to an identity there rather than decoded locally.
const googleUserinfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

const shareTokenIssuer = "meetpoll"

// Service implements the AuthService interface
type Service struct {
	userinfoURL string
	shareSecret []byte
	httpClient  *http.Client
	logger      *logger.Logger
}

// NewService creates a new auth service. shareSecret signs public share
// tokens; it must not be empty.
func NewService(shareSecret string, logger *logger.Logger) service.AuthService {
	return &Service{
		userinfoURL: googleUserinfoURL,
		shareSecret: []byte(shareSecret),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// NewServiceWithEndpoint creates an auth service that validates tokens
// against a custom userinfo endpoint. Used in tests.
func NewServiceWithEndpoint(userinfoURL, shareSecret string, logger *logger.Logger) service.AuthService {
	s := NewService(shareSecret, logger).(*Service)
	s.userinfoURL = userinfoURL
	return s
}

// userinfoResponse is the subset of the OIDC userinfo payload we use.
type userinfoResponse struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// ValidateAccessToken resolves a Google OAuth access token to the user it
// belongs to. Any non-200 answer from the userinfo endpoint means the token
// is invalid or expired.
func (s *Service) ValidateAccessToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, errors.NewAuthenticationError("Access token is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userinfoURL, nil)
	if err != nil {
		return nil, errors.NewInternalError("Failed to create userinfo request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.WithError(err).Error("Failed to call userinfo endpoint")
		return nil, errors.NewExternalError("Failed to reach identity provider", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.WithField("status_code", resp.StatusCode).Warn("Userinfo rejected access token")
		return nil, errors.NewAuthenticationError("Invalid or expired access token")
	}

	var info userinfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, errors.NewInternalError("Failed to decode userinfo response", err)
	}

	if info.Sub == "" {
		return nil, errors.NewAuthenticationError("Invalid token: no user identifier")
	}

	user := &domain.User{
		ID:        info.Sub,
		Name:      info.Name,
		Email:     info.Email,
		AvatarURL: info.Picture,
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id": user.ID,
		"email":   user.Email,
	}).Debug("Access token validated")

	return user, nil
}

// IssueShareToken mints an HMAC-signed token that lets anonymous voters
// reach one specific poll. Expiry is tied to the poll's own expiry so a
// link cannot outlive its poll.
func (s *Service) IssueShareToken(pollID string, expiresAt time.Time) (string, error) {
	if len(s.shareSecret) == 0 {
		return "", errors.NewInternalError("Share token secret is not configured", nil)
	}

	claims := jwt.RegisteredClaims{
		Issuer:    shareTokenIssuer,
		Subject:   pollID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.shareSecret)
	if err != nil {
		return "", errors.NewInternalError("Failed to sign share token", err)
	}
	return signed, nil
}

// ValidateShareToken verifies a share token's signature and expiry and
// returns the poll id it is bound to.
func (s *Service) ValidateShareToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.shareSecret, nil
	}, jwt.WithIssuer(shareTokenIssuer))
	if err != nil {
		return "", errors.NewAuthenticationError("Invalid or expired share link")
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", errors.NewAuthenticationError("Invalid share link")
	}
	return claims.Subject, nil
}
