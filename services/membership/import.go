package membership

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cesworld/pkg/errutil"
	"cesworld/pkg/featureflags"
	"cesworld/services/audit"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ImportRow is one parsed CSV line; Line is the 1-based line in the upload.
type ImportRow struct {
	Line    int
	Request TransactionRequest
}

type ImportResult struct {
	Created int
	Errors  []string
	Member  *Member
}

// HTTPStatus is 201 when every row was stored, 207 when some were and 400
// when none were.
func (r *ImportResult) HTTPStatus() int {
	switch {
	case r.Created == 0:
		return http.StatusBadRequest
	case len(r.Errors) > 0:
		return http.StatusMultiStatus
	default:
		return http.StatusCreated
	}
}

var createdAtLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func parseCreatedAt(s string) (time.Time, error) {
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid createdAt %q", s)
}

func isHeader(record []string) bool {
	return len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "type")
}

func parseRecord(record []string) (TransactionRequest, error) {
	if len(record) < 4 {
		return TransactionRequest{}, fmt.Errorf("expected at least 4 columns (type, amount, points, description), got %d", len(record))
	}
	if len(record) > 6 {
		return TransactionRequest{}, fmt.Errorf("expected at most 6 columns, got %d", len(record))
	}

	typ, ok := ParseTransactionType(record[0])
	if !ok {
		return TransactionRequest{}, fmt.Errorf("unknown transaction type %q", strings.TrimSpace(record[0]))
	}

	amount := decimal.Zero
	if raw := strings.TrimSpace(record[1]); raw != "" {
		var err error
		if amount, err = decimal.NewFromString(raw); err != nil {
			return TransactionRequest{}, fmt.Errorf("invalid amount %q", raw)
		}
	}

	var points int64
	if raw := strings.TrimSpace(record[2]); raw != "" {
		var err error
		if points, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return TransactionRequest{}, fmt.Errorf("invalid points %q", raw)
		}
	}

	req := TransactionRequest{
		Type:        typ,
		Amount:      amount,
		Points:      points,
		Description: strings.TrimSpace(record[3]),
	}
	if len(record) > 4 {
		req.OrderID = strings.TrimSpace(record[4])
	}
	if len(record) > 5 {
		if raw := strings.TrimSpace(record[5]); raw != "" {
			createdAt, err := parseCreatedAt(raw)
			if err != nil {
				return TransactionRequest{}, err
			}
			req.CreatedAt = &createdAt
		}
	}

	if err := req.Entry().Validate(); err != nil {
		if be, ok := errutil.As(err); ok {
			return TransactionRequest{}, errors.New(be.Message)
		}
		return TransactionRequest{}, err
	}
	return req, nil
}

// ParseImport reads the CSV upload. Columns are type, amount, points,
// description and optionally orderId and createdAt; a header row is skipped.
// Rows that fail to parse are reported as "row N: reason".
func ParseImport(text string, maxRows int) ([]ImportRow, []string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var (
		rows     []ImportRow
		rowErrs  []string
		dataRows int
		first    = true
	)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, errutil.BadRequest("malformed csv", err,
				errutil.WithDetails(errutil.Detail{Field: "csv", Message: err.Error()}))
		}

		line, _ := r.FieldPos(0)
		if first {
			first = false
			if isHeader(record) {
				continue
			}
		}

		dataRows++
		if maxRows > 0 && dataRows > maxRows {
			return nil, nil, errutil.ValidationFailed(fmt.Sprintf("import is limited to %d rows", maxRows), nil)
		}

		req, err := parseRecord(record)
		if err != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("row %d: %v", line, err))
			continue
		}
		rows = append(rows, ImportRow{Line: line, Request: req})
	}

	if dataRows == 0 {
		return nil, nil, errutil.ValidationFailed("csv contains no transactions", nil)
	}
	return rows, rowErrs, nil
}

// ImportTransactions appends one transaction per valid row and applies the
// summed delta to the member once. A row that fails to persist is rolled back
// to its savepoint and reported; the rest of the batch continues.
func (s *Service) ImportTransactions(ctx context.Context, actor audit.Actor, memberID, text string) (*ImportResult, error) {
	zapLog := logger(ctx).With(zap.String("member_id", memberID), zap.String("performed_by", actor.UserID))

	if !s.flags.IsEnabled(ctx, featureflags.BulkImport, true) {
		return nil, errutil.FeatureDisabled("bulk import is disabled", nil)
	}

	rows, rowErrs, err := ParseImport(text, s.cfg.Membership.ImportMaxRows)
	if err != nil {
		return nil, err
	}

	if _, err := s.GetMember(ctx, memberID); err != nil {
		return nil, err
	}

	result := &ImportResult{Errors: rowErrs}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.lockMember(ctx, tx, &Member{ID: memberID})
		if err != nil {
			return err
		}

		applied := make([]Entry, 0, len(rows))
		for _, row := range rows {
			txn, err := s.newTransaction(m.ID, s.nextCode(ctx), row.Request)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("row %d: %s", row.Line, errMessage(err)))
				continue
			}

			savepoint := fmt.Sprintf("import_row_%d", row.Line)
			if err := tx.SavePoint(savepoint).Error; err != nil {
				return errutil.Internal("failed to create savepoint", err)
			}
			if err := s.insertTransaction(ctx, tx, txn); err != nil {
				if rbErr := tx.RollbackTo(savepoint).Error; rbErr != nil {
					return errutil.Internal("failed to roll back row", rbErr)
				}
				zapLog.Warn("import row rejected", zap.Int("line", row.Line), zap.Error(err))
				result.Errors = append(result.Errors, fmt.Sprintf("row %d: %s", row.Line, errMessage(err)))
				continue
			}
			applied = append(applied, row.Request.Entry())
		}

		result.Created = len(applied)
		if len(applied) > 0 {
			if err := s.saveBalance(ctx, tx, m, ApplyDelta(m.Balance(), Aggregate(applied))); err != nil {
				return err
			}
		}
		result.Member = m
		return nil
	})
	if err != nil {
		zapLog.Error("bulk import failed", zap.Error(err))
		return nil, err
	}

	archiveKey := s.archiveUpload(ctx, memberID, text)

	s.audit.Record(ctx, audit.Entry{
		Action:       audit.ActionBulkUpload,
		Actor:        actor,
		TargetUserID: result.Member.UserID,
		Details: map[string]any{
			"member_id": memberID,
			"created":   result.Created,
			"failed":    len(result.Errors),
			"errors":    result.Errors,
			"archive":   archiveKey,
		},
	})

	zapLog.Info("bulk import finished", zap.Int("created", result.Created), zap.Int("failed", len(result.Errors)))
	return result, nil
}

func (s *Service) archiveUpload(ctx context.Context, memberID, text string) string {
	bucket := s.cfg.Membership.ImportArchiveBucket
	if s.archive == nil || bucket == "" {
		return ""
	}

	key := fmt.Sprintf("%s/%s.csv", memberID, s.node.Generate().String())
	if err := s.archive.Put(ctx, bucket, key, []byte(text), "text/csv"); err != nil {
		logger(ctx).Warn("failed to archive import", zap.String("member_id", memberID), zap.Error(err))
		return ""
	}
	return bucket + "/" + key
}

func errMessage(err error) string {
	if be, ok := errutil.As(err); ok {
		return be.Message
	}
	return err.Error()
}
