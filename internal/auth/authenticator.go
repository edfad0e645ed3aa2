package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"reqtrack/internal/audit"
	"reqtrack/internal/config"
	"reqtrack/internal/models"
)

// Authenticator resolves bearer credentials to user rows using exactly one
// strategy chosen at construction.
type Authenticator struct {
	db       *gorm.DB
	mode     string
	identity IdentityVerifier
	sessions *SessionIssuer
	audit    *audit.Recorder
	lg       *zap.SugaredLogger
	now      func() time.Time
}

func NewAuthenticator(db *gorm.DB, mode string, identity IdentityVerifier, sessions *SessionIssuer, rec *audit.Recorder, lg *zap.SugaredLogger) (*Authenticator, error) {
	if identity == nil {
		return nil, errors.New("identity verifier is required")
	}
	switch mode {
	case config.AuthModeIdentity:
	case config.AuthModeSession:
		if sessions == nil {
			return nil, errors.New("session issuer is required in session mode")
		}
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}
	return &Authenticator{db: db, mode: mode, identity: identity, sessions: sessions, audit: rec, lg: lg, now: time.Now}, nil
}

// Authenticate resolves a bearer credential. Identity tokens provision unknown
// users; session tokens must name an existing user.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (models.User, error) {
	if a.mode == config.AuthModeIdentity {
		id, err := a.identity.Verify(ctx, token)
		if err != nil {
			return models.User{}, err
		}
		return a.provision(a.db.WithContext(ctx), id)
	}

	claims, err := a.sessions.Verify(token)
	if err != nil {
		return models.User{}, err
	}
	var u models.User
	err = a.db.WithContext(ctx).Where("email = ?", claims.Email()).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, fmt.Errorf("%w: %s", ErrUnknownUser, claims.Email())
	}
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}

type LoginResult struct {
	Token     string      `json:"token"`
	TokenType string      `json:"token_type"`
	ExpiresIn int64       `json:"expires_in"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"-"`
}

// Login exchanges an identity token for the credential clients send on
// subsequent calls, stamping last_login and auditing the event.
func (a *Authenticator) Login(ctx context.Context, idToken, ip string) (LoginResult, error) {
	if strings.TrimSpace(idToken) == "" {
		return LoginResult{}, fmt.Errorf("%w: missing id_token", ErrInvalidInput)
	}
	id, err := a.identity.Verify(ctx, idToken)
	if err != nil {
		return LoginResult{}, err
	}

	res := LoginResult{TokenType: "Bearer"}
	if a.mode == config.AuthModeIdentity {
		res.Token, res.ExpiresAt = idToken, id.ExpiresAt
	}
	// Sign inside the transaction: a signing failure must roll back last_login and the audit row.
	err = a.audit.Transaction(a.db.WithContext(ctx), func(tx *gorm.DB) error {
		u, err := a.provision(tx, id)
		if err != nil {
			return err
		}
		now := a.now().UTC()
		if err := tx.Model(&u).Update("last_login", now).Error; err != nil {
			return err
		}
		u.LastLogin = &now
		if a.mode == config.AuthModeSession {
			if res.Token, res.ExpiresAt, err = a.sessions.Sign(u.Email, u.Role); err != nil {
				return err
			}
		}
		res.User = u
		return a.audit.Record(tx, audit.Entry{Actor: u.Email, Action: "login", Details: "User logged in", IP: ip})
	})
	if err != nil {
		return LoginResult{}, err
	}
	res.ExpiresIn = int64(res.ExpiresAt.Sub(a.now()).Seconds())
	if res.ExpiresIn < 0 {
		res.ExpiresIn = 0
	}
	return res, nil
}

func (a *Authenticator) provision(tx *gorm.DB, id Identity) (models.User, error) {
	var u models.User
	err := tx.Where("email = ?", id.Email).First(&u).Error
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, err
	}
	u = models.User{
		Email:     id.Email,
		Name:      id.Name,
		Picture:   id.Picture,
		Role:      models.RoleNormal,
		CreatedAt: a.now().UTC(),
	}
	if err := tx.Create(&u).Error; err != nil {
		return models.User{}, fmt.Errorf("provision user: %w", err)
	}
	a.lg.Infow("provisioned user", "email", u.Email)
	return u, nil
}
