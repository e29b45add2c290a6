package audit

import (
	"context"
	"encoding/json"

	"cesworld/pkg/db/option"
	"cesworld/pkg/db/pagination"
	"cesworld/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var writeFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cesworld_audit_write_failures_total",
		Help: "Audit log entries that could not be written",
	},
	[]string{"action"},
)

func init() {
	prometheus.MustRegister(writeFailures)
}

// Recorder appends audit entries. Record never fails the caller.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

type Service struct {
	node *snowflake.Node
	log  repository.Repository[LogEntry]
}

type Params struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p Params) *Service {
	return &Service{
		node: p.Node,
		log:  repository.ProvideStore[LogEntry](p.DB),
	}
}

func (s *Service) Record(ctx context.Context, e Entry) {
	sc := trace.SpanContextFromContext(ctx)
	zapLog := zap.L().With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("action", e.Action),
		zap.String("performed_by", e.Actor.UserID),
		zap.String("target_user_id", e.TargetUserID),
	)

	details, err := json.Marshal(e.Details)
	if err != nil {
		zapLog.Error("failed to encode audit details", zap.Error(err))
		writeFailures.WithLabelValues(e.Action).Inc()
		return
	}

	entry := &LogEntry{
		ID:           s.node.Generate().String(),
		Action:       e.Action,
		PerformedBy:  e.Actor.UserID,
		TargetUserID: e.TargetUserID,
		Details:      details,
		IPAddress:    e.Actor.IPAddress,
		UserAgent:    e.Actor.UserAgent,
	}

	// detached from request cancellation so a client hang-up does not lose the entry
	if err := s.log.Create(context.WithoutCancel(ctx), entry); err != nil {
		zapLog.Error("failed to write audit log", zap.Error(err))
		writeFailures.WithLabelValues(e.Action).Inc()
	}
}

type Filter struct {
	Action       string `form:"action"`
	TargetUserID string `form:"targetUserId"`
	pagination.Pagination
}

func (s *Service) List(ctx context.Context, f Filter) ([]*LogEntry, pagination.PageInfo, error) {
	rows, err := s.log.Find(ctx, &LogEntry{
		Action:       f.Action,
		TargetUserID: f.TargetUserID,
	}, option.ApplyPagination(f.Pagination))
	if err != nil {
		zap.L().Error("failed to list audit logs", zap.Error(err))
		return nil, pagination.PageInfo{}, err
	}

	data, page := pagination.Page(rows, f.Pagination, func(e *LogEntry) string { return e.ID })
	return data, page, nil
}
