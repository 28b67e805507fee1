package staff

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/consultia/clinic-agent/pkg/logging"
)

const defaultTokenTTL = 8 * time.Hour

// Service authenticates dashboard users and issues their tokens.
type Service struct {
	store  Store
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
	logger *logging.Logger
}

type Option func(*Service)

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithBcryptCost lowers the hashing cost, mainly for tests.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.cost = cost
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds the account service. An empty secret still allows
// account management but every token request fails with ErrSigningDisabled.
func NewService(store Store, secret string, logger *logging.Logger, opts ...Option) *Service {
	if store == nil {
		panic("staff: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		store:  store,
		secret: []byte(secret),
		ttl:    defaultTokenTTL,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login checks the password and returns a signed token. Unknown emails and
// wrong passwords both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("staff login rejected", "tenant_id", user.TenantID, "user_id", user.ID)
		return "", nil, ErrInvalidCredentials
	}
	token, err := s.IssueToken(user)
	if err != nil {
		return "", nil, err
	}
	s.logger.Info("staff login", "tenant_id", user.TenantID, "user_id", user.ID, "role", user.Role)
	return token, user, nil
}

// CreateUser hashes the password and stores a new account. The role
// defaults to secretary.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	u, err := s.newUser(in)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// EnsureAdmin creates or resets an admin account for a tenant.
func (s *Service) EnsureAdmin(ctx context.Context, in NewUser) (*User, error) {
	in.Role = RoleAdmin
	u, err := s.newUser(in)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpsertAdmin(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) newUser(in NewUser) (*User, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" || email == "" || in.Password == "" {
		return nil, errors.New("staff: name, email and password are required")
	}
	if strings.TrimSpace(in.TenantID) == "" {
		return nil, errors.New("staff: tenant id is required")
	}
	role := in.Role
	switch role {
	case "":
		role = RoleSecretary
	case RoleAdmin, RoleSecretary:
	default:
		return nil, fmt.Errorf("staff: unknown role %q", role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("staff: hash password: %w", err)
	}
	return &User{
		TenantID:     in.TenantID,
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	}, nil
}

// IssueToken signs an HS256 token for user.
func (s *Service) IssueToken(user *User) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrSigningDisabled
	}
	now := s.now()
	claims := Claims{
		UserID:   user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Role:     user.Role,
		TenantID: user.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("staff: sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates an HS256 token and returns its claims.
func ParseToken(secret, token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
