package account

import (
	"context"
	"strings"

	"cesworld/pkg/errutil"
	"cesworld/pkg/repository"
	"cesworld/services/audit"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db    *gorm.DB
	audit audit.Recorder
	user  repository.Repository[User]
}

type Params struct {
	fx.In
	DB    *gorm.DB
	Audit audit.Recorder
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		audit: p.Audit,
		user:  repository.ProvideStore[User](p.DB),
	}
}

// RoleOf returns the stored role of userID, or "" when the user is unknown.
func (s *Service) RoleOf(ctx context.Context, userID string) (string, error) {
	u, err := s.user.FindOne(ctx, &User{ID: userID})
	if err != nil {
		zap.L().Error("failed to look up role", zap.String("user_id", userID), zap.Error(err))
		return "", err
	}
	if u == nil {
		return "", nil
	}
	return string(u.Role), nil
}

func (s *Service) Get(ctx context.Context, userID string) (*User, error) {
	u, err := s.user.FindOne(ctx, &User{ID: userID})
	if err != nil {
		return nil, errutil.Internal("failed to load user", err)
	}
	if u == nil {
		return nil, errutil.NotFound("user not found", nil)
	}
	return u, nil
}

// Upsert creates the user or refreshes its email and name. The role of an
// existing user is left alone.
func (s *Service) Upsert(ctx context.Context, u *User) error {
	if u.Role == "" {
		u.Role = RoleCustomer
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "updated_at"}),
	}).Create(u).Error
	if err != nil {
		zap.L().Error("failed to upsert user", zap.String("user_id", u.ID), zap.Error(err))
		return errutil.Internal("failed to save user", err)
	}
	return nil
}

func (s *Service) ChangeRole(ctx context.Context, actor audit.Actor, userID, role string) (*User, error) {
	next, ok := ParseRole(strings.ToLower(strings.TrimSpace(role)))
	if !ok {
		return nil, errutil.ValidationFailed("unknown role", nil,
			errutil.WithDetails(errutil.Detail{Field: "role", Message: "must be customer, designer or admin"}))
	}

	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	before := u.Role
	if before == next {
		return u, nil
	}

	if err := s.user.Update(ctx, u.ID, map[string]any{"role": next}); err != nil {
		zap.L().Error("failed to change role", zap.String("user_id", userID), zap.Error(err))
		return nil, errutil.Internal("failed to change role", err)
	}
	u.Role = next

	s.audit.Record(ctx, audit.Entry{
		Action:       audit.ActionRoleChange,
		Actor:        actor,
		TargetUserID: u.ID,
		Details:      audit.Change{Before: before, After: next},
	})

	zap.L().Info("role changed",
		zap.String("user_id", u.ID),
		zap.String("performed_by", actor.UserID),
		zap.String("from", string(before)),
		zap.String("to", string(next)),
	)
	return u, nil
}
