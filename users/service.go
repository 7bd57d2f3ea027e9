package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/warp/loyalty-engine/auth"
	"github.com/warp/loyalty-engine/ledger"
)

var utoridPattern = regexp.MustCompile(`^[a-zA-Z0-9]{1,16}$`)

// Service registers members and manages their flags and roles.
type Service struct {
	store ledger.Store
}

func NewService(store ledger.Store) *Service {
	return &Service{store: store}
}

// =============================================================================
// REGISTRATION
// =============================================================================

type RegisterInput struct {
	Utorid   string
	Name     string
	Email    string
	Password string
}

// Register creates a regular, unverified member with a zero balance.
func (s *Service) Register(ctx context.Context, actor ledger.Actor, in RegisterInput) (*ledger.User, error) {
	if !utoridPattern.MatchString(in.Utorid) {
		return nil, fmt.Errorf("%w: utorid must be 1-16 letters or digits", ledger.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ledger.ErrInvalidInput)
	}
	if err := actor.Require(ledger.CapRegisterUser); err != nil {
		return nil, err
	}
	return s.create(ctx, actor.Utorid, in, ledger.RoleRegular, false)
}

func (s *Service) create(ctx context.Context, by string, in RegisterInput, role ledger.Role, verified bool) (*ledger.User, error) {
	u := &ledger.User{
		Utorid:   in.Utorid,
		Name:     in.Name,
		Email:    in.Email,
		Role:     role,
		Verified: verified,
	}
	if in.Password != "" {
		hash, err := auth.HashPassword(in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		u.PasswordHash = hash
	}
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		return tx.CreateUser(ctx, u)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"utorid": u.Utorid, "role": u.Role, "actor": by}).Info("user registered")
	return u, nil
}

// EnsureSuperuser creates the bootstrap superuser if utorid does not exist.
func (s *Service) EnsureSuperuser(ctx context.Context, utorid, password string) error {
	_, err := s.Get(ctx, utorid)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return err
	}
	_, err = s.create(ctx, "bootstrap", RegisterInput{Utorid: utorid, Name: utorid, Password: password},
		ledger.RoleSuperuser, true)
	return err
}

// =============================================================================
// LOOKUP / AUTHENTICATION
// =============================================================================

func (s *Service) Get(ctx context.Context, utorid string) (*ledger.User, error) {
	var u *ledger.User
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		var err error
		u, err = tx.UserByUtorid(ctx, utorid)
		return err
	})
	return u, err
}

// Authenticate returns the user when password matches.
func (s *Service) Authenticate(ctx context.Context, utorid, password string) (*ledger.User, error) {
	u, err := s.Get(ctx, utorid)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, ledger.ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, ledger.ErrUnauthenticated
	}
	return u, nil
}

// =============================================================================
// FLAGS AND ROLES
// =============================================================================

type UpdateInput struct {
	Verified   *bool
	Suspicious *bool
	Role       *ledger.Role
}

// Update changes a member's flags or role. Only superusers may grant
// manager or superuser, and nobody may change their own role.
func (s *Service) Update(ctx context.Context, actor ledger.Actor, utorid string, in UpdateInput) (*ledger.User, error) {
	if in.Role != nil && !in.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ledger.ErrInvalidInput, *in.Role)
	}
	if err := actor.Require(ledger.CapManageUsers); err != nil {
		return nil, err
	}
	if in.Role != nil {
		if in.Role.AtLeast(ledger.RoleManager) && actor.Role != ledger.RoleSuperuser {
			return nil, fmt.Errorf("%w: only superusers grant %s", ledger.ErrForbidden, *in.Role)
		}
		if actor.Utorid == utorid {
			return nil, fmt.Errorf("%w: cannot change your own role", ledger.ErrForbidden)
		}
	}

	var u *ledger.User
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		var err error
		if u, err = tx.UserByUtorid(ctx, utorid); err != nil {
			return err
		}
		if in.Verified != nil {
			u.Verified = *in.Verified
		}
		if in.Suspicious != nil {
			u.Suspicious = *in.Suspicious
		}
		if err := tx.UpdateUserFlags(ctx, utorid, u.Verified, u.Suspicious); err != nil {
			return err
		}
		if in.Role != nil {
			u.Role = *in.Role
			return tx.UpdateUserRole(ctx, utorid, u.Role)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"utorid":     utorid,
		"verified":   u.Verified,
		"suspicious": u.Suspicious,
		"role":       u.Role,
		"actor":      actor.Utorid,
	}).Info("user updated")
	return u, nil
}
