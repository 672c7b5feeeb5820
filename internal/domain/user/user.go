package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"motorent/internal/domain/station"
)

var (
	ErrIDRequired          = errors.New("user: id is required")
	ErrEmailRequired       = errors.New("user: email is required")
	ErrPasswordHashMissing = errors.New("user: password hash is required")
	ErrNameRequired        = errors.New("user: name is required")
	ErrInvalidRole         = errors.New("user: invalid role")
	ErrEmailAlreadyUsed    = errors.New("user: email already used")
	ErrNotFound            = errors.New("user: not found")
	ErrInactive            = errors.New("user: account is not active")
	ErrStationRequired     = errors.New("user: staff accounts require a station")
	ErrForbidden           = errors.New("user: operation not permitted for this account")
)

type ID string

type Role string

const (
	RoleRenter Role = "renter"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
)

// KYCStatus is the identity-verification flag maintained by the external
// document-verification pipeline. This engine only reads it.
type KYCStatus string

const (
	KYCNotSubmitted KYCStatus = "not_submitted"
	KYCPending      KYCStatus = "pending"
	KYCApproved     KYCStatus = "approved"
	KYCRejected     KYCStatus = "rejected"
)

type User struct {
	ID           ID
	Email        string
	Name         string
	Phone        string
	PasswordHash string
	Roles        []Role
	StationID    station.ID
	KYC          KYCStatus
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	Save(ctx context.Context, user *User) error
}

type CreateParams struct {
	ID           ID
	Email        string
	Name         string
	Phone        string
	PasswordHash string
	Roles        []Role
	StationID    station.ID
	CreatedAt    time.Time
}

func NewUser(params CreateParams) (*User, error) {
	id := strings.TrimSpace(string(params.ID))
	if id == "" {
		return nil, ErrIDRequired
	}
	email := normalizeEmail(params.Email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if strings.TrimSpace(params.PasswordHash) == "" {
		return nil, ErrPasswordHashMissing
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	roles, err := normalizeRoles(params.Roles)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:           ID(id),
		Email:        email,
		Name:         name,
		Phone:        strings.TrimSpace(params.Phone),
		PasswordHash: params.PasswordHash,
		Roles:        roles,
		StationID:    params.StationID,
		KYC:          KYCNotSubmitted,
		Active:       true,
	}
	if u.HasRole(RoleStaff) && u.StationID == "" {
		return nil, ErrStationRequired
	}
	now := params.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	u.CreatedAt = now.UTC()
	u.UpdatedAt = u.CreatedAt
	return u, nil
}

func (u *User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsStaffOf reports whether the user is staff assigned to the given station.
func (u *User) IsStaffOf(id station.ID) bool {
	return u.HasRole(RoleStaff) && u.StationID == id
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeRoles(roles []Role) ([]Role, error) {
	if len(roles) == 0 {
		return []Role{RoleRenter}, nil
	}
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		switch r {
		case RoleRenter, RoleStaff, RoleAdmin:
			out = append(out, r)
		default:
			return nil, ErrInvalidRole
		}
	}
	return out, nil
}
