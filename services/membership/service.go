package membership

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cesworld/pkg/config"
	"cesworld/pkg/db/option"
	"cesworld/pkg/db/pagination"
	"cesworld/pkg/errutil"
	"cesworld/pkg/featureflags"
	"cesworld/pkg/minio"
	"cesworld/pkg/repository"
	"cesworld/pkg/sequence"
	"cesworld/services/audit"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	seq     sequence.Generator
	audit   audit.Recorder
	archive minio.ObjectStore
	flags   featureflags.FeatureFlag
	cfg     *config.Config
	now     func() time.Time

	member      repository.Repository[Member]
	transaction repository.Repository[Transaction]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Config  *config.Config
	Seq     sequence.Generator
	Audit   audit.Recorder
	Archive minio.ObjectStore
	Flags   featureflags.FeatureFlag
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		seq:     p.Seq,
		audit:   p.Audit,
		archive: p.Archive,
		flags:   p.Flags,
		cfg:     p.Config,
		now:     time.Now,

		member:      repository.ProvideStore[Member](p.DB),
		transaction: repository.ProvideStore[Transaction](p.DB),
	}
}

func logger(ctx context.Context) *zap.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return zap.L()
	}
	return zap.L().With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

func validateBirthday(month, day *int) error {
	if day != nil && month == nil {
		return errutil.ValidationFailed("birthdayDay requires birthdayMonth", nil,
			errutil.WithDetails(errutil.Detail{Field: "birthdayMonth", Message: "required when birthdayDay is set"}))
	}
	if month != nil && (*month < 1 || *month > 12) {
		return errutil.ValidationFailed("birthdayMonth must be between 1 and 12", nil,
			errutil.WithDetails(errutil.Detail{Field: "birthdayMonth", Message: "must be between 1 and 12"}))
	}
	if day != nil && (*day < 1 || *day > 31) {
		return errutil.ValidationFailed("birthdayDay must be between 1 and 31", nil,
			errutil.WithDetails(errutil.Detail{Field: "birthdayDay", Message: "must be between 1 and 31"}))
	}
	return nil
}

// Enroll creates the member record of a user. Enrolling twice returns the
// existing member with created=false.
func (s *Service) Enroll(ctx context.Context, userID string, month, day *int) (*Member, bool, error) {
	zapLog := logger(ctx).With(zap.String("user_id", userID))

	if userID == "" {
		return nil, false, errutil.BadRequest("userId is required", nil)
	}
	if err := validateBirthday(month, day); err != nil {
		return nil, false, err
	}

	existing, err := s.member.FindOne(ctx, &Member{UserID: userID})
	if err != nil {
		zapLog.Error("failed to query member", zap.Error(err))
		return nil, false, errutil.Internal("failed to load member", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	now := s.now().UTC()
	m := &Member{
		ID:             s.node.Generate().String(),
		UserID:         userID,
		Tier:           TierMember,
		Points:         0,
		AnnualSpending: decimal.Zero,
		BirthdayMonth:  month,
		BirthdayDay:    day,
		JoinedAt:       now,
		LastTierUpdate: now,
	}
	if err := s.member.Create(ctx, m); err != nil {
		// lost a race with a concurrent enrollment of the same user
		if again, _ := s.member.FindOne(ctx, &Member{UserID: userID}); again != nil {
			return again, false, nil
		}
		zapLog.Error("failed to create member", zap.Error(err))
		return nil, false, errutil.Internal("failed to enroll member", err)
	}

	zapLog.Info("member enrolled", zap.String("member_id", m.ID))
	return m, true, nil
}

func (s *Service) findMember(ctx context.Context, query *Member) (*Member, error) {
	m, err := s.member.FindOne(ctx, query)
	if err != nil {
		logger(ctx).Error("failed to query member", zap.Error(err))
		return nil, errutil.Internal("failed to load member", err)
	}
	if m == nil {
		return nil, errutil.NotFound("member not found", nil)
	}
	return m, nil
}

func (s *Service) GetMember(ctx context.Context, memberID string) (*Member, error) {
	return s.findMember(ctx, &Member{ID: memberID})
}

func (s *Service) GetMemberByUser(ctx context.Context, userID string) (*Member, error) {
	return s.findMember(ctx, &Member{UserID: userID})
}

type MemberFilter struct {
	Tier string `form:"tier"`
	pagination.Pagination
}

func (s *Service) ListMembers(ctx context.Context, f MemberFilter) ([]*Member, pagination.PageInfo, error) {
	query := &Member{}
	if f.Tier != "" {
		tier, ok := ParseTier(f.Tier)
		if !ok {
			return nil, pagination.PageInfo{}, errutil.ValidationFailed("unknown tier", nil,
				errutil.WithDetails(errutil.Detail{Field: "tier", Message: "must be member, plus or premier"}))
		}
		query.Tier = tier
	}

	rows, err := s.member.Find(ctx, query, option.ApplyPagination(f.Pagination))
	if err != nil {
		logger(ctx).Error("failed to list members", zap.Error(err))
		return nil, pagination.PageInfo{}, errutil.Internal("failed to list members", err)
	}

	data, page := pagination.Page(rows, f.Pagination, func(m *Member) string { return m.ID })
	return data, page, nil
}

// UpdateBirthday sets or clears the birthday. Day is not checked against the
// length of the month.
func (s *Service) UpdateBirthday(ctx context.Context, userID string, month, day *int) (*Member, error) {
	if err := validateBirthday(month, day); err != nil {
		return nil, err
	}

	m, err := s.GetMemberByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.member.Update(ctx, m.ID, map[string]any{
		"birthday_month": month,
		"birthday_day":   day,
	}); err != nil {
		logger(ctx).Error("failed to update birthday", zap.String("member_id", m.ID), zap.Error(err))
		return nil, errutil.Internal("failed to update birthday", err)
	}

	m.BirthdayMonth, m.BirthdayDay = month, day
	return m, nil
}

func (s *Service) nextCode(ctx context.Context) string {
	code, err := s.seq.NextTransactionCode(ctx)
	if err != nil {
		logger(ctx).Warn("sequence unavailable, falling back to id based code", zap.Error(err))
		return fmt.Sprintf("TXN-%s", s.node.Generate().Base36())
	}
	return code
}

func (s *Service) newTransaction(memberID, code string, req TransactionRequest) (*Transaction, error) {
	txn := &Transaction{
		ID:          s.node.Generate().String(),
		Code:        code,
		MemberID:    memberID,
		Type:        req.Type,
		Amount:      req.Amount.Round(2),
		Points:      req.Points,
		Description: req.Description,
	}
	if req.OrderID != "" {
		orderID := req.OrderID
		txn.OrderID = &orderID
	}
	if req.CreatedAt != nil {
		txn.CreatedAt = req.CreatedAt.UTC()
	}
	if len(req.Metadata) > 0 {
		b, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, errutil.BadRequest("invalid metadata", err)
		}
		txn.Metadata = b
	}
	return txn, nil
}

func (s *Service) lockMember(ctx context.Context, tx *gorm.DB, query *Member) (*Member, error) {
	m, err := s.member.WithTrx(tx).FindOne(ctx, query, option.WithLockingUpdate())
	if err != nil {
		return nil, errutil.Internal("failed to load member", err)
	}
	if m == nil {
		return nil, errutil.NotFound("member not found", nil)
	}
	return m, nil
}

func (s *Service) insertTransaction(ctx context.Context, tx *gorm.DB, txn *Transaction) error {
	if txn.OrderID != nil {
		dup, err := s.transaction.WithTrx(tx).FindOne(ctx, &Transaction{
			MemberID: txn.MemberID,
			Type:     txn.Type,
			OrderID:  txn.OrderID,
		})
		if err != nil {
			return errutil.Internal("failed to check order reference", err)
		}
		if dup != nil {
			return errutil.Conflict(fmt.Sprintf("%s for order %s already recorded", txn.Type, *txn.OrderID), nil)
		}
	}

	if err := s.transaction.WithTrx(tx).Create(ctx, txn); err != nil {
		return errutil.Internal("failed to save transaction", err)
	}
	return nil
}

func (s *Service) saveBalance(ctx context.Context, tx *gorm.DB, m *Member, out Outcome) error {
	Stamp(m, out, s.now().UTC())

	fields := map[string]any{
		"points":          m.Points,
		"annual_spending": m.AnnualSpending,
		"tier":            m.Tier,
	}
	if out.TierChanged {
		fields["last_tier_update"] = m.LastTierUpdate
	}

	if err := s.member.WithTrx(tx).Update(ctx, m.ID, fields); err != nil {
		return errutil.Internal("failed to update member", err)
	}
	return nil
}

// Guard inspects the locked member before a transaction is applied and may
// veto it by returning an error.
type Guard func(m *Member) error

// ApplyWithin applies one ledger event inside tx: the member row is locked,
// the transaction row appended and the member balance written back.
func (s *Service) ApplyWithin(ctx context.Context, tx *gorm.DB, query *Member, req TransactionRequest, guard Guard) (*Member, *Transaction, error) {
	entry := req.Entry()
	if err := entry.Validate(); err != nil {
		return nil, nil, err
	}

	m, err := s.lockMember(ctx, tx, query)
	if err != nil {
		return nil, nil, err
	}
	if guard != nil {
		if err := guard(m); err != nil {
			return nil, nil, err
		}
	}

	txn, err := s.newTransaction(m.ID, s.nextCode(ctx), req)
	if err != nil {
		return nil, nil, err
	}
	if err := s.insertTransaction(ctx, tx, txn); err != nil {
		return nil, nil, err
	}

	if err := s.saveBalance(ctx, tx, m, Apply(m.Balance(), entry)); err != nil {
		return nil, nil, err
	}

	return m, txn, nil
}

// ApplyTransaction records a ledger event against a member in its own
// database transaction.
func (s *Service) ApplyTransaction(ctx context.Context, query *Member, req TransactionRequest) (*Member, *Transaction, error) {
	zapLog := logger(ctx).With(zap.String("type", string(req.Type)), zap.String("order_id", req.OrderID))

	var (
		member *Member
		txn    *Transaction
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		member, txn, err = s.ApplyWithin(ctx, tx, query, req, nil)
		return err
	})
	if err != nil {
		if be, ok := errutil.As(err); !ok || be.Code.HTTPStatus() >= 500 {
			zapLog.Error("failed to apply transaction", zap.Error(err))
		}
		return nil, nil, err
	}

	zapLog.Info("transaction applied",
		zap.String("member_id", member.ID),
		zap.String("transaction_id", txn.ID),
		zap.Int64("points", member.Points),
		zap.String("annual_spending", member.AnnualSpending.StringFixed(2)),
		zap.String("tier", string(member.Tier)),
	)
	return member, txn, nil
}

// RecordManualTransaction is an admin-entered ledger event; it is audited.
func (s *Service) RecordManualTransaction(ctx context.Context, actor audit.Actor, memberID string, req TransactionRequest) (*Member, *Transaction, error) {
	m, txn, err := s.ApplyTransaction(ctx, &Member{ID: memberID}, req)
	if err != nil {
		return nil, nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Action:       audit.ActionManualEntry,
		Actor:        actor,
		TargetUserID: m.UserID,
		Details: map[string]any{
			"member_id":      m.ID,
			"transaction_id": txn.ID,
			"type":           txn.Type,
			"amount":         txn.Amount.StringFixed(2),
			"points":         txn.Points,
		},
	})
	return m, txn, nil
}

func (s *Service) ListTransactions(ctx context.Context, memberID string, p pagination.Pagination) ([]*Transaction, pagination.PageInfo, error) {
	rows, err := s.transaction.Find(ctx, &Transaction{MemberID: memberID}, option.ApplyPagination(p))
	if err != nil {
		logger(ctx).Error("failed to list transactions", zap.String("member_id", memberID), zap.Error(err))
		return nil, pagination.PageInfo{}, errutil.Internal("failed to list transactions", err)
	}

	data, page := pagination.Page(rows, p, func(t *Transaction) string { return t.ID })
	return data, page, nil
}

type OverrideRequest struct {
	Tier           *Tier
	Points         *int64
	AnnualSpending *decimal.Decimal
	Reason         string
}

func (r OverrideRequest) Validate() error {
	var details []errutil.Detail
	if r.Tier == nil && r.Points == nil && r.AnnualSpending == nil {
		details = append(details, errutil.Detail{Field: "body", Message: "one of tier, points or annualSpending is required"})
	}
	if r.Tier != nil && !r.Tier.Valid() {
		details = append(details, errutil.Detail{Field: "tier", Message: "must be member, plus or premier"})
	}
	if r.Points != nil && *r.Points < 0 {
		details = append(details, errutil.Detail{Field: "points", Message: "must not be negative"})
	}
	if r.AnnualSpending != nil {
		if r.AnnualSpending.IsNegative() {
			details = append(details, errutil.Detail{Field: "annualSpending", Message: "must not be negative"})
		} else if !r.AnnualSpending.Equal(r.AnnualSpending.Round(2)) {
			details = append(details, errutil.Detail{Field: "annualSpending", Message: "must have at most 2 fraction digits"})
		}
	}
	if len(details) > 0 {
		return errutil.ValidationFailed(details[0].Field+": "+details[0].Message, nil, errutil.WithDetails(details...))
	}
	return nil
}

type memberSnapshot struct {
	Tier           Tier   `json:"tier"`
	Points         int64  `json:"points"`
	AnnualSpending string `json:"annual_spending"`
}

func snapshot(m *Member) memberSnapshot {
	return memberSnapshot{Tier: m.Tier, Points: m.Points, AnnualSpending: m.AnnualSpending.StringFixed(2)}
}

// Override sets balances directly. A spending override re-derives the tier
// unless a tier is given too; a tier alone pins the tier as given.
func (s *Service) Override(ctx context.Context, actor audit.Actor, memberID string, req OverrideRequest) (*Member, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var before, after memberSnapshot
	var member *Member
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.lockMember(ctx, tx, &Member{ID: memberID})
		if err != nil {
			return err
		}
		before = snapshot(m)

		next := m.Balance()
		if req.Points != nil {
			next.Points = *req.Points
		}
		if req.AnnualSpending != nil {
			next.AnnualSpending = *req.AnnualSpending
			next.Tier = TierFor(next.AnnualSpending)
		}
		if req.Tier != nil {
			next.Tier = *req.Tier
		}

		if err := s.saveBalance(ctx, tx, m, Outcome{Balance: next, TierChanged: next.Tier != m.Tier}); err != nil {
			return err
		}
		after = snapshot(m)
		member = m
		return nil
	})
	if err != nil {
		if be, ok := errutil.As(err); !ok || be.Code.HTTPStatus() >= 500 {
			logger(ctx).Error("failed to override member", zap.String("member_id", memberID), zap.Error(err))
		}
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Action:       audit.ActionMemberOverride,
		Actor:        actor,
		TargetUserID: member.UserID,
		Details:      audit.Change{Before: before, After: after, Reason: req.Reason},
	})
	return member, nil
}

func isNotFound(err error) bool {
	return errutil.Is(err, errutil.StatusNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
