package gormstore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/DoyleJ11/battlezone/internal/backend"
)

const minPasswordLen = 6

var errWeakPassword = fmt.Errorf("%w: password must be at least %d characters", backend.ErrInvalidInput, minPasswordLen)
var errBadEmail = fmt.Errorf("%w: email address", backend.ErrInvalidInput)

type account struct {
	ID           string `gorm:"primaryKey;type:varchar(64)"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
}

// authSession is one issued token, keyed by the token's jti so sign-out can
// revoke it.
type authSession struct {
	Token     string `gorm:"primaryKey;type:varchar(64)"`
	UserID    string `gorm:"index;not null"`
	Email     string
	CreatedAt time.Time
}

// Auth issues HS256 session tokens for e-mail/password accounts. A token is
// valid while its signature checks out and its session row exists.
type Auth struct {
	store  *Store
	cost   int
	secret []byte

	mu        sync.Mutex
	listeners map[chan backend.AuthEvent]struct{}
}

// NewAuth signs tokens with secret. An empty secret is replaced by a random
// one, so tokens do not survive a restart.
func NewAuth(store *Store, secret []byte) *Auth {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
	}
	return &Auth{
		store:     store,
		cost:      bcrypt.DefaultCost,
		secret:    secret,
		listeners: make(map[chan backend.AuthEvent]struct{}),
	}
}

// SignUp creates the account and its profile, then signs the user in. The
// initial username is the local part of the e-mail address.
func (a *Auth) SignUp(ctx context.Context, email, password string) (backend.AuthSession, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return backend.AuthSession{}, errBadEmail
	}
	if len(password) < minPasswordLen {
		return backend.AuthSession{}, errWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return backend.AuthSession{}, fmt.Errorf("hash password: %w", err)
	}

	acc := account{ID: uuid.NewString(), Email: email, PasswordHash: string(hash)}
	err = a.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&account{}).Where("email = ?", email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return backend.ErrEmailTaken
		}
		if err := tx.Create(&acc).Error; err != nil {
			return err
		}
		return tx.Create(&backend.Profile{
			ID:       acc.ID,
			Username: strings.SplitN(email, "@", 2)[0],
			Avatar:   "https://picsum.photos/200/200?random=" + acc.ID[:8],
			Balance:  a.store.startingBalance,
		}).Error
	})
	if err != nil {
		return backend.AuthSession{}, err
	}
	a.store.log.Info("account created", zap.String("user_id", acc.ID))
	return a.issue(ctx, acc)
}

func (a *Auth) SignIn(ctx context.Context, email, password string) (backend.AuthSession, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var acc account
	err := a.store.db.WithContext(ctx).First(&acc, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return backend.AuthSession{}, backend.ErrInvalidCredentials
	}
	if err != nil {
		return backend.AuthSession{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		return backend.AuthSession{}, backend.ErrInvalidCredentials
	}
	return a.issue(ctx, acc)
}

func (a *Auth) SignOut(ctx context.Context, token string) error {
	sess, err := a.lookup(ctx, token)
	if err != nil {
		return err
	}
	if err := a.store.db.WithContext(ctx).Delete(&authSession{}, "token = ?", sess.Token).Error; err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	var remaining int64
	if err := a.store.db.WithContext(ctx).Model(&authSession{}).Where("user_id = ?", sess.UserID).Count(&remaining).Error; err != nil {
		return err
	}
	if remaining == 0 {
		a.emit(backend.AuthEvent{Type: backend.SignedOut, UserID: sess.UserID})
	}
	return nil
}

func (a *Auth) Current(ctx context.Context, token string) (backend.AuthSession, error) {
	sess, err := a.lookup(ctx, token)
	if err != nil {
		return backend.AuthSession{}, err
	}
	return backend.AuthSession{Token: token, UserID: sess.UserID, Email: sess.Email}, nil
}

// lookup verifies the token and loads its session row.
func (a *Auth) lookup(ctx context.Context, token string) (authSession, error) {
	if token == "" {
		return authSession{}, backend.ErrUnauthenticated
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || claims.ID == "" {
		return authSession{}, backend.ErrUnauthenticated
	}

	var sess authSession
	err = a.store.db.WithContext(ctx).First(&sess, "token = ? AND user_id = ?", claims.ID, claims.Subject).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return authSession{}, backend.ErrUnauthenticated
	}
	return sess, err
}

func (a *Auth) Events() (<-chan backend.AuthEvent, func()) {
	ch := make(chan backend.AuthEvent, 16)
	a.mu.Lock()
	a.listeners[ch] = struct{}{}
	a.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.listeners, ch)
			close(ch)
			a.mu.Unlock()
		})
	}
}

func (a *Auth) issue(ctx context.Context, acc account) (backend.AuthSession, error) {
	sess := authSession{Token: uuid.NewString(), UserID: acc.ID, Email: acc.Email}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:       sess.Token,
		Subject:  acc.ID,
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}).SignedString(a.secret)
	if err != nil {
		return backend.AuthSession{}, fmt.Errorf("sign token: %w", err)
	}
	if err := a.store.db.WithContext(ctx).Create(&sess).Error; err != nil {
		return backend.AuthSession{}, fmt.Errorf("create session: %w", err)
	}
	a.emit(backend.AuthEvent{Type: backend.SignedIn, UserID: acc.ID})
	return backend.AuthSession{Token: signed, UserID: sess.UserID, Email: sess.Email}, nil
}

func (a *Auth) emit(ev backend.AuthEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for ch := range a.listeners {
		select {
		case ch <- ev:
		default:
			a.store.log.Warn("auth listener slow, event dropped", zap.String("type", string(ev.Type)))
		}
	}
}
