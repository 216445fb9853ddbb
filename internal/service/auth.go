package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/commandlinecommandos/campus-marketplace/internal/hash"
	"github.com/commandlinecommandos/campus-marketplace/internal/logging"
	"github.com/commandlinecommandos/campus-marketplace/internal/models"
	"github.com/commandlinecommandos/campus-marketplace/internal/mykafka"
	"github.com/commandlinecommandos/campus-marketplace/internal/repo"
	"github.com/commandlinecommandos/campus-marketplace/internal/tokens"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountInactive    = errors.New("account is disabled")
	ErrRefreshExpired     = errors.New("refresh token expired")
	ErrUserNotFound       = repo.ErrUserNotFound
)

// EventPublisher decouples the issuer from the Kafka writer; a nil publisher
// disables events entirely.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, event interface{}) error
}

// AuthService orchestrates login, refresh and logout over the credential
// codec and the refresh token ledger.
type AuthService struct {
	Repo   *repo.GormRepo
	Codec  *tokens.Codec
	Events EventPublisher

	// Now is overridable in tests; nil means time.Now.
	Now func() time.Time
}

type LoginResult struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	Roles        []string
	Username     string
	UserID       uuid.UUID
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Login verifies the password against the identity store, then issues an
// access token plus a fresh refresh token recorded in the ledger under the
// device that requested it.
func (s *AuthService) Login(ctx context.Context, username, password, deviceInfo string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "username", username)

	user, err := s.Repo.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			l.Warn("login_failed", "status", 401, "reason", "unknown_username")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !hash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "status", 401, "reason", "password_mismatch")
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		l.Warn("login_failed", "status", 401, "reason", "account_inactive")
		return nil, ErrAccountInactive
	}

	result, err := s.issueSession(ctx, user, deviceInfo)
	if err != nil {
		l.Error("login_failed", "status", 500, "error", err)
		return nil, err
	}

	s.publishEvent(ctx, user, "user_logged_in")
	l.Info("login_successful", "user_id", user.ID)
	return result, nil
}

// Register creates a student account. New students always receive both BUYER
// and SELLER; ADMIN is never self-assignable here. On success the session is
// issued immediately, the same as a login.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register", "username", username)

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		l.Error("register_failed", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}
	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: pwHash,
		Active:       true,
	}
	if err := s.Repo.CreateUser(ctx, user, []string{models.RoleBuyer, models.RoleSeller}); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) || errors.Is(err, repo.ErrEmailAlreadyExist) {
			l.Warn("register_failed", "status", 409, "reason", err.Error())
		} else {
			l.Error("register_failed", "status", 500, "error", err)
		}
		return nil, err
	}

	result, err := s.issueSession(ctx, user, "Registration")
	if err != nil {
		l.Error("register_failed", "status", 500, "error", err)
		return nil, err
	}

	s.publishEvent(ctx, user, "user_registered")
	l.Info("register_successful", "user_id", user.ID)
	return result, nil
}

// Refresh exchanges a still-valid refresh token for a new access token. The
// refresh token itself is not rotated: the same string stays usable until it
// expires or is revoked, and two concurrent refreshes with it both succeed.
// A stored record found past its expiry is deleted on the spot.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	claims, err := s.Codec.VerifyRefresh(refreshToken)
	if err != nil {
		l.Warn("refresh_failed", "status", 401, "reason", err.Error())
		return nil, err
	}

	record, err := s.Repo.FindActiveRefresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, repo.ErrTokenNotFound) || errors.Is(err, repo.ErrTokenRevoked) {
			l.Warn("refresh_failed", "status", 401, "reason", err.Error(), "subject", claims.Subject)
		}
		return nil, err
	}

	if record.ExpiresAt < s.now().Unix() {
		if err := s.Repo.DeleteRefresh(ctx, refreshToken); err != nil {
			l.Error("refresh_cleanup_failed", "error", err)
		}
		l.Warn("refresh_failed", "status", 401, "reason", "record_expired", "subject", claims.Subject)
		return nil, ErrRefreshExpired
	}

	user, err := s.Repo.FindUserByID(ctx, record.UserID)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		l.Warn("refresh_failed", "status", 401, "reason", "account_inactive", "subject", claims.Subject)
		return nil, ErrAccountInactive
	}

	accessToken, _, err := s.Codec.IssueAccess(user.Username, user.ID.String(), user.RoleNames())
	if err != nil {
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, err
	}

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.Codec.AccessTTL.Seconds()),
		Roles:        user.RoleNames(),
		Username:     user.Username,
		UserID:       user.ID,
	}, nil
}

// Logout revokes the refresh token. It is idempotent: an unknown or
// already-revoked token succeeds silently, so a client retrying logout never
// sees an error.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout")

	// Resolve the owner before the flag flips, for the audit event. An
	// unknown or already-revoked token just means no event.
	var user *models.User
	if record, err := s.Repo.FindActiveRefresh(ctx, refreshToken); err == nil {
		user, _ = s.Repo.FindUserByID(ctx, record.UserID)
	}

	if err := s.Repo.RevokeRefresh(ctx, refreshToken); err != nil {
		l.Error("logout_failed", "status", 500, "error", err)
		return err
	}

	if user != nil {
		s.publishEvent(ctx, user, "user_logged_out")
	}
	l.Info("logout_successful")
	return nil
}

// LogoutAllDevices revokes every active refresh token the user holds, in one
// logical operation. Also the hook for forced de-authorization on suspension.
func (s *AuthService) LogoutAllDevices(ctx context.Context, username string) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout_all", "username", username)

	user, err := s.Repo.FindUserByUsername(ctx, username)
	if err != nil {
		return err
	}
	revoked, err := s.Repo.RevokeAllRefresh(ctx, user.ID)
	if err != nil {
		l.Error("logout_all_failed", "status", 500, "error", err)
		return err
	}

	s.publishEvent(ctx, user, "user_logged_out_all")
	l.Info("logout_all_successful", "revoked", revoked)
	return nil
}

// GetCurrentUser materializes the authenticated principal for downstream
// authorization decisions.
func (s *AuthService) GetCurrentUser(ctx context.Context, username string) (*models.User, error) {
	return s.Repo.FindUserByUsername(ctx, username)
}

// PruneExpiredTokens is called from the background housekeeping loop.
func (s *AuthService) PruneExpiredTokens(ctx context.Context) (int64, error) {
	return s.Repo.PruneExpiredRefresh(ctx, s.now())
}

func (s *AuthService) issueSession(ctx context.Context, user *models.User, deviceInfo string) (*LoginResult, error) {
	roles := user.RoleNames()

	accessToken, _, err := s.Codec.IssueAccess(user.Username, user.ID.String(), roles)
	if err != nil {
		return nil, err
	}
	refreshToken, refreshExp, err := s.Codec.IssueRefresh(user.Username, user.ID.String())
	if err != nil {
		return nil, err
	}

	refreshClaims, err := s.Codec.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.StoreRefresh(ctx, refreshToken, refreshClaims.ID, user.ID, deviceInfo, s.now(), refreshExp); err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.Codec.AccessTTL.Seconds()),
		Roles:        roles,
		Username:     user.Username,
		UserID:       user.ID,
	}, nil
}

func (s *AuthService) publishEvent(ctx context.Context, user *models.User, eventType string) {
	if s.Events == nil {
		return
	}
	event := map[string]interface{}{
		"type":     eventType,
		"user_id":  user.ID,
		"username": user.Username,
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Events.PublishEvent(pubCtx, mykafka.UserEventsTopic, user.ID.String(), event); err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "type", eventType, "error", err)
	}
}
