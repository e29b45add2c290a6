package reward

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cesworld/pkg/config"
	"cesworld/pkg/db/option"
	"cesworld/pkg/db/pagination"
	"cesworld/pkg/errutil"
	"cesworld/pkg/repository"
	"cesworld/pkg/sequence"
	"cesworld/services/membership"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultValidityDays = 90

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	seq      sequence.Generator
	members  *membership.Service
	catalog  Catalog
	validity time.Duration
	now      func() time.Time

	reward repository.Repository[Reward]
}

type Params struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Config  *config.Config
	Seq     sequence.Generator
	Members *membership.Service
}

func NewService(p Params) *Service {
	days := p.Config.Membership.RewardValidityDays
	if days <= 0 {
		days = defaultValidityDays
	}
	return &Service{
		db:       p.DB,
		node:     p.Node,
		seq:      p.Seq,
		members:  p.Members,
		catalog:  NewCatalog(p.Config),
		validity: time.Duration(days) * 24 * time.Hour,
		now:      time.Now,

		reward: repository.ProvideStore[Reward](p.DB),
	}
}

func logger(ctx context.Context) *zap.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return zap.L()
	}
	return zap.L().With(zap.String("trace_id", sc.TraceID().String()))
}

func (s *Service) Catalog() Catalog {
	return s.catalog
}

func (s *Service) nextCode(ctx context.Context) string {
	code, err := s.seq.NextRewardCode(ctx)
	if err != nil {
		logger(ctx).Warn("sequence unavailable, falling back to id based code", zap.Error(err))
		return fmt.Sprintf("RWD-%s", s.node.Generate().Base36())
	}
	return code
}

// Redeem spends points on a catalog reward. The points check runs against the
// locked member row, so concurrent redemptions cannot overdraw the balance.
func (s *Service) Redeem(ctx context.Context, userID string, typ Type) (*Reward, *membership.Member, error) {
	zapLog := logger(ctx).With(zap.String("user_id", userID), zap.String("reward_type", string(typ)))

	item, ok := s.catalog.Lookup(Type(strings.ToLower(string(typ))))
	if !ok {
		return nil, nil, errutil.ValidationFailed("unknown reward type", nil,
			errutil.WithDetails(errutil.Detail{Field: "rewardType", Message: "must be discount, free_shipping or birthday_gift"}))
	}

	now := s.now().UTC()
	reward := &Reward{
		ID:         s.node.Generate().String(),
		Code:       s.nextCode(ctx),
		RewardType: item.Type,
		PointsCost: item.PointsCost,
		AmountOff:  item.AmountOff,
		Status:     StatusActive,
		RedeemedAt: now,
		ExpiresAt:  now.Add(s.validity),
	}

	guard := func(m *membership.Member) error {
		if m.Points < item.PointsCost {
			return errutil.InsufficientPoints(
				fmt.Sprintf("%s costs %d points, balance is %d", item.Type, item.PointsCost, m.Points), nil)
		}
		if item.Type == TypeBirthdayGift && (m.BirthdayMonth == nil || *m.BirthdayMonth != int(now.Month())) {
			return errutil.UnprocessableEntity("birthday gift can only be redeemed in the birthday month", nil)
		}
		return nil
	}

	var member *membership.Member
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, txn, err := s.members.ApplyWithin(ctx, tx, &membership.Member{UserID: userID}, membership.TransactionRequest{
			Type:        membership.TypeRedeem,
			Points:      -item.PointsCost,
			Description: fmt.Sprintf("Redeemed %s reward %s", item.Type, reward.Code),
			OrderID:     "reward-" + reward.ID,
		}, guard)
		if err != nil {
			return err
		}

		reward.MemberID = m.ID
		reward.TransactionID = txn.ID
		if err := s.reward.WithTrx(tx).Create(ctx, reward); err != nil {
			return errutil.Internal("failed to save reward", err)
		}
		member = m
		return nil
	})
	if err != nil {
		if be, ok := errutil.As(err); !ok || be.Code.HTTPStatus() >= 500 {
			zapLog.Error("failed to redeem reward", zap.Error(err))
		}
		return nil, nil, err
	}

	zapLog.Info("reward redeemed",
		zap.String("reward_id", reward.ID),
		zap.String("member_id", member.ID),
		zap.Int64("points", member.Points),
	)
	return reward, member, nil
}

type Filter struct {
	Status string `form:"status"`
	pagination.Pagination
}

func (s *Service) List(ctx context.Context, userID string, f Filter) ([]*Reward, pagination.PageInfo, error) {
	m, err := s.members.GetMemberByUser(ctx, userID)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	query := &Reward{MemberID: m.ID}
	if f.Status != "" {
		status := Status(strings.ToLower(f.Status))
		if !status.Valid() {
			return nil, pagination.PageInfo{}, errutil.ValidationFailed("unknown reward status", nil,
				errutil.WithDetails(errutil.Detail{Field: "status", Message: "must be active, used or expired"}))
		}
		query.Status = status
	}

	rows, err := s.reward.Find(ctx, query, option.ApplyPagination(f.Pagination))
	if err != nil {
		logger(ctx).Error("failed to list rewards", zap.String("member_id", m.ID), zap.Error(err))
		return nil, pagination.PageInfo{}, errutil.Internal("failed to list rewards", err)
	}

	data, page := pagination.Page(rows, f.Pagination, func(r *Reward) string { return r.ID })
	return data, page, nil
}

// Use marks an active reward as used. A reward found past its expiry is
// flipped to expired instead and reported as not active.
func (s *Service) Use(ctx context.Context, userID, rewardID string) (*Reward, error) {
	m, err := s.members.GetMemberByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	r, err := s.reward.FindOne(ctx, &Reward{ID: rewardID, MemberID: m.ID})
	if err != nil {
		return nil, errutil.Internal("failed to load reward", err)
	}
	if r == nil {
		return nil, errutil.NotFound("reward not found", nil)
	}

	now := s.now().UTC()
	if r.Status == StatusActive && !now.Before(r.ExpiresAt) {
		if _, err := s.expire(ctx, now, r.ID); err != nil {
			return nil, err
		}
		return nil, errutil.RewardNotActive("reward has expired", nil)
	}
	if r.Status != StatusActive {
		return nil, errutil.RewardNotActive(fmt.Sprintf("reward is %s", r.Status), nil)
	}

	res := s.db.WithContext(ctx).Model(&Reward{}).
		Where("id = ? AND status = ?", r.ID, StatusActive).
		Updates(map[string]any{"status": StatusUsed, "used_at": now})
	if res.Error != nil {
		logger(ctx).Error("failed to use reward", zap.String("reward_id", r.ID), zap.Error(res.Error))
		return nil, errutil.Internal("failed to use reward", res.Error)
	}
	if res.RowsAffected == 0 {
		// used or expired by a concurrent request
		return nil, errutil.RewardNotActive("reward is no longer active", nil)
	}

	r.Status = StatusUsed
	r.UsedAt = &now
	logger(ctx).Info("reward used", zap.String("reward_id", r.ID), zap.String("member_id", m.ID))
	return r, nil
}

// ExpireDue flips every active reward whose expiry has passed to expired.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.expire(ctx, now.UTC())
	if err != nil {
		return 0, err
	}
	logger(ctx).Info("expired rewards", zap.Int64("count", n), zap.Time("now", now))
	return n, nil
}

// expire flips due rewards; ids narrows it to specific rewards.
func (s *Service) expire(ctx context.Context, now time.Time, ids ...string) (int64, error) {
	q := s.db.WithContext(ctx).Model(&Reward{}).
		Where("status = ? AND expires_at <= ?", StatusActive, now)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	res := q.Update("status", StatusExpired)
	if res.Error != nil {
		logger(ctx).Error("failed to expire rewards", zap.Error(res.Error))
		return 0, errutil.Internal("failed to expire rewards", res.Error)
	}
	return res.RowsAffected, nil
}
