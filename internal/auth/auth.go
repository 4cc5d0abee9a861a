// Package auth is the simulated account and session store. Accounts, password
// hashes and live sessions are kept in memory and persisted as one snapshot
// under persist.AuthKey.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/clipwave/clipwave/internal/logging"
	"github.com/clipwave/clipwave/internal/metrics"
	"github.com/clipwave/clipwave/internal/persist"
	"github.com/clipwave/clipwave/internal/videoutil"
	"github.com/clipwave/clipwave/pkg/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("Este e-mail já está cadastrado")
	ErrInvalidCredentials = errors.New("E-mail ou senha incorretos")
	ErrUserNotFound       = errors.New("user not found")
	ErrTooManyAttempts    = errors.New("too many login attempts, try again later")
	// ErrNotHydrated is returned until the persisted snapshot has been read.
	// Callers should retry.
	ErrNotHydrated = errors.New("account store is still loading")
)

// Account field rules
const (
	MinNameLength     = 3
	MinPasswordLength = 6
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Google login always yields this simulated profile
const (
	googleName  = "Usuário Google"
	googleEmail = "usuario@gmail.com"
)

// Session is an authenticated login
type Session struct {
	ID        string      `json:"id"`
	User      models.User `json:"user"`
	CreatedAt time.Time   `json:"created_at"`
}

// Limiter throttles login attempts per key. *cache.Cache satisfies it.
type Limiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error)
}

// Config tunes the simulated store
type Config struct {
	// Latency is waited before each signup and login, Google logins wait 1.5x
	Latency     time.Duration
	LoginLimit  int64
	LoginWindow time.Duration
}

type account struct {
	User         models.User `json:"user"`
	PasswordHash string      `json:"password_hash,omitempty"`
}

type sessionRecord struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type snapshot struct {
	Accounts []account               `json:"accounts"`
	Sessions map[string]sessionRecord `json:"sessions"`
}

// Store holds registered accounts and their sessions
type Store struct {
	adapter persist.Adapter
	logger  *logging.Logger
	cfg     Config
	limiter Limiter
	cost    int
	now     func() time.Time

	mu       sync.RWMutex
	accounts map[string]*account // by user id
	emails   map[string]string   // lower-cased email -> user id
	sessions map[string]sessionRecord
	hydrated bool
}

// NewStore creates an empty, not yet hydrated store. adapter may be nil.
func NewStore(adapter persist.Adapter, cfg Config, logger *logging.Logger) *Store {
	return &Store{
		adapter:  adapter,
		logger:   logger.WithComponent("auth"),
		cfg:      cfg,
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
		accounts: make(map[string]*account),
		emails:   make(map[string]string),
		sessions: make(map[string]sessionRecord),
	}
}

// SetLimiter enables login throttling
func (s *Store) SetLimiter(l Limiter) {
	s.limiter = l
}

// Signup registers a password account and opens a session for it
func (s *Store) Signup(ctx context.Context, name, email, password string) (*Session, error) {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if err := validateSignup(name, email, password); err != nil {
		metrics.RecordAuthAttempt("signup", "invalid")
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := s.wait(ctx, s.cfg.Latency); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	s.mu.Lock()
	key := strings.ToLower(email)
	if _, taken := s.emails[key]; taken {
		s.mu.Unlock()
		metrics.RecordAuthAttempt("signup", "email_taken")
		return nil, ErrEmailTaken
	}
	acc := &account{User: newUser(strconv.FormatInt(s.now().UnixMilli(), 10), name, email), PasswordHash: string(hash)}
	for s.accounts[acc.User.ID] != nil {
		acc.User.ID = videoutil.GenerateID()
	}
	s.accounts[acc.User.ID] = acc
	s.emails[key] = acc.User.ID
	sess := s.openLocked(acc.User)
	s.mu.Unlock()

	metrics.RecordAuthAttempt("signup", "success")
	s.logger.WithUserID(acc.User.ID).Info("account created")
	s.persist(ctx)
	return sess, nil
}

// Login opens a session for a password account. The email is matched
// case-insensitively.
func (s *Store) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := s.throttle(ctx, email); err != nil {
		return nil, err
	}
	if err := s.wait(ctx, s.cfg.Latency); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var acc account
	id, ok := s.emails[strings.ToLower(email)]
	if ok {
		acc = *s.accounts[id]
	}
	s.mu.RUnlock()

	if !ok || bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		metrics.RecordAuthAttempt("password", "failure")
		return nil, ErrInvalidCredentials
	}

	s.mu.Lock()
	sess := s.openLocked(s.accounts[id].User)
	s.mu.Unlock()

	metrics.RecordAuthAttempt("password", "success")
	s.persist(ctx)
	return sess, nil
}

// LoginWithGoogle simulates an OAuth round trip. Every call creates a fresh
// account with id google_<unix millis>.
func (s *Store) LoginWithGoogle(ctx context.Context) (*Session, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := s.wait(ctx, s.cfg.Latency*3/2); err != nil {
		return nil, err
	}

	s.mu.Lock()
	user := newUser(fmt.Sprintf("google_%d", s.now().UnixMilli()), googleName, googleEmail)
	for s.accounts[user.ID] != nil {
		user.ID = "google_" + videoutil.GenerateID()
	}
	s.accounts[user.ID] = &account{User: user}
	sess := s.openLocked(user)
	s.mu.Unlock()

	metrics.RecordAuthAttempt("google", "success")
	s.persist(ctx)
	return sess, nil
}

// Logout ends a session. Unknown ids are ignored.
func (s *Store) Logout(ctx context.Context, sessionID string) {
	s.mu.Lock()
	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	live := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return
	}
	metrics.ActiveSessions.Set(float64(live))
	s.persist(ctx)
}

// UpdateUser merges patch into the profile of userID
func (s *Store) UpdateUser(ctx context.Context, userID string, patch models.UserPatch) (models.User, error) {
	if patch.Name != nil && len([]rune(strings.TrimSpace(*patch.Name))) < MinNameLength {
		return models.User{}, videoutil.InvalidField("name", fmt.Errorf("must have at least %d characters", MinNameLength))
	}
	if patch.Plan != nil {
		if _, ok := models.FindPlan(*patch.Plan); !ok {
			return models.User{}, videoutil.InvalidField("plan", fmt.Errorf("unknown plan %q", *patch.Plan))
		}
	}

	s.mu.Lock()
	acc, ok := s.accounts[userID]
	if !ok {
		s.mu.Unlock()
		return models.User{}, ErrUserNotFound
	}
	patch.Apply(&acc.User)
	user := acc.User
	s.mu.Unlock()

	s.persist(ctx)
	return user, nil
}

// Authenticate resolves a session id to its user
func (s *Store) Authenticate(sessionID string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return models.User{}, false
	}
	acc, ok := s.accounts[rec.UserID]
	if !ok {
		return models.User{}, false
	}
	return acc.User, true
}

// Hydrated reports whether the persisted snapshot has been read
func (s *Store) Hydrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrated
}

// Hydrate replaces the in-memory state with the persisted snapshot. A missing
// snapshot leaves the store empty. On error the store stays unhydrated.
func (s *Store) Hydrate(ctx context.Context) error {
	if s.adapter == nil {
		s.markHydrated()
		return nil
	}

	data, err := s.adapter.Load(ctx, persist.AuthKey)
	if errors.Is(err, persist.ErrNotFound) {
		s.markHydrated()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load auth snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode auth snapshot: %w", err)
	}

	s.mu.Lock()
	s.accounts = make(map[string]*account, len(snap.Accounts))
	s.emails = make(map[string]string)
	for i := range snap.Accounts {
		acc := snap.Accounts[i]
		s.accounts[acc.User.ID] = &acc
		if acc.PasswordHash != "" {
			s.emails[strings.ToLower(acc.User.Email)] = acc.User.ID
		}
	}
	s.sessions = make(map[string]sessionRecord, len(snap.Sessions))
	for id, rec := range snap.Sessions {
		if _, ok := s.accounts[rec.UserID]; ok {
			s.sessions[id] = rec
		}
	}
	s.hydrated = true
	live := len(s.sessions)
	s.mu.Unlock()

	metrics.ActiveSessions.Set(float64(live))
	s.logger.WithFields(map[string]interface{}{
		"accounts": len(snap.Accounts),
		"sessions": live,
	}).Info("auth store hydrated")
	return nil
}

// Save writes the snapshot through the adapter. Before Hydrate succeeds it
// returns ErrNotHydrated and writes nothing, so a partial in-memory state
// never replaces the persisted one.
func (s *Store) Save(ctx context.Context) error {
	if s.adapter == nil {
		return nil
	}

	s.mu.RLock()
	if !s.hydrated {
		s.mu.RUnlock()
		return ErrNotHydrated
	}
	snap := snapshot{Sessions: make(map[string]sessionRecord, len(s.sessions))}
	for _, acc := range s.accounts {
		snap.Accounts = append(snap.Accounts, *acc)
	}
	for id, rec := range s.sessions {
		snap.Sessions[id] = rec
	}
	s.mu.RUnlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode auth snapshot: %w", err)
	}
	if err := s.adapter.Save(ctx, persist.AuthKey, data); err != nil {
		return fmt.Errorf("failed to save auth snapshot: %w", err)
	}
	return nil
}

func (s *Store) persist(ctx context.Context) {
	if err := s.Save(ctx); err != nil {
		s.logger.WithError(err).Warn("auth snapshot not persisted")
	}
}

func (s *Store) ready() error {
	if !s.Hydrated() {
		metrics.RecordError("auth", "not_hydrated")
		return ErrNotHydrated
	}
	return nil
}

func (s *Store) markHydrated() {
	s.mu.Lock()
	s.hydrated = true
	s.mu.Unlock()
}

func (s *Store) openLocked(user models.User) *Session {
	sess := &Session{ID: uuid.New().String(), User: user, CreatedAt: s.now().UTC()}
	s.sessions[sess.ID] = sessionRecord{UserID: user.ID, CreatedAt: sess.CreatedAt}
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return sess
}

func (s *Store) throttle(ctx context.Context, email string) error {
	if s.limiter == nil || s.cfg.LoginLimit <= 0 {
		return nil
	}
	ok, err := s.limiter.CheckRateLimit(ctx, "login:"+strings.ToLower(email), s.cfg.LoginLimit, s.cfg.LoginWindow)
	if err != nil {
		// Throttling is best effort
		s.logger.WithError(err).Warn("login rate limit check failed")
		return nil
	}
	if !ok {
		metrics.RecordAuthAttempt("password", "throttled")
		return ErrTooManyAttempts
	}
	return nil
}

func (s *Store) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func newUser(id, name, email string) models.User {
	return models.User{
		ID:           id,
		Name:         name,
		Email:        email,
		Plan:         models.PlanFree,
		MinutesUsed:  0,
		MinutesLimit: models.FreeMinutesLimit,
	}
}

func validateSignup(name, email, password string) error {
	if len([]rune(name)) < MinNameLength {
		return videoutil.InvalidField("name", fmt.Errorf("must have at least %d characters", MinNameLength))
	}
	if !emailPattern.MatchString(email) {
		return videoutil.InvalidField("email", errors.New("invalid email address"))
	}
	if len(password) < MinPasswordLength {
		return videoutil.InvalidField("password", fmt.Errorf("must have at least %d characters", MinPasswordLength))
	}
	return nil
}
