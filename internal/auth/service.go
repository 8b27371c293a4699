package auth

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/clockpay/backend/internal/models"
)

// ErrDuplicateEmail is returned when registering with an email that already exists.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrInvalidCredentials is returned on a failed login.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Identity is the authenticated caller: a worker or an admin, always scoped
// to one organization.
type Identity struct {
	AccountID      uuid.UUID
	OrganizationID uuid.UUID
	Role           string
}

func (i Identity) IsAdmin() bool { return i.Role == models.RoleAdmin }

type Service interface {
	Register(ctx context.Context, organizationID uuid.UUID, email, password, displayName, role string) (*models.Account, error)
	Login(ctx context.Context, email, password string) (string, error)
	ValidateToken(ctx context.Context, token string) (Identity, error)
}

type service struct {
	repo   *Repository
	secret []byte
}

func NewService(repo *Repository) *service {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "supersecretdev"
	}
	return &service{repo: repo, secret: []byte(secret)}
}

var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	OrganizationID string `json:"org"`
	Role           string `json:"role"`
}

func (s *service) Register(ctx context.Context, organizationID uuid.UUID, email, password, displayName, role string) (*models.Account, error) {
	if role != models.RoleWorker && role != models.RoleAdmin {
		return nil, errors.New("invalid role")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	acc, err := s.repo.Create(ctx, organizationID, email, string(hash), displayName, role)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return acc, nil
}

func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	acc, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if acc == nil {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.issueToken(acc)
}

func (s *service) issueToken(acc *models.Account) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		OrganizationID: acc.OrganizationID.String(),
		Role:           acc.Role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(ctx context.Context, token string) (Identity, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return Identity{}, err
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return Identity{}, errors.New("invalid token")
	}
	accountID, err := uuid.Parse(c.Subject)
	if err != nil {
		return Identity{}, err
	}
	orgID, err := uuid.Parse(c.OrganizationID)
	if err != nil {
		return Identity{}, err
	}
	return Identity{AccountID: accountID, OrganizationID: orgID, Role: c.Role}, nil
}
