package membership

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"cesworld/pkg/db/pagination"
	"cesworld/pkg/errutil"
	"cesworld/pkg/httpapi"
	"cesworld/pkg/middleware"
	"cesworld/services/audit"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/shopspring/decimal"
)

const maxImportBody = 8 << 20

type MemberResponse struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Tier           Tier      `json:"tier"`
	Points         int64     `json:"points"`
	AnnualSpending string    `json:"annualSpending"`
	BirthdayMonth  *int      `json:"birthdayMonth"`
	BirthdayDay    *int      `json:"birthdayDay"`
	JoinedAt       time.Time `json:"joinedAt"`
	LastTierUpdate time.Time `json:"lastTierUpdate"`
}

func NewMemberResponse(m *Member) MemberResponse {
	return MemberResponse{
		ID:             m.ID,
		UserID:         m.UserID,
		Tier:           m.Tier,
		Points:         m.Points,
		AnnualSpending: m.AnnualSpending.StringFixed(2),
		BirthdayMonth:  m.BirthdayMonth,
		BirthdayDay:    m.BirthdayDay,
		JoinedAt:       m.JoinedAt,
		LastTierUpdate: m.LastTierUpdate,
	}
}

type TransactionResponse struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	MemberID    string          `json:"memberId"`
	Type        TransactionType `json:"type"`
	Amount      string          `json:"amount"`
	Points      int64           `json:"points"`
	Description string          `json:"description"`
	OrderID     *string         `json:"orderId"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func NewTransactionResponse(t *Transaction) TransactionResponse {
	return TransactionResponse{
		ID:          t.ID,
		Code:        t.Code,
		MemberID:    t.MemberID,
		Type:        t.Type,
		Amount:      t.Amount.StringFixed(2),
		Points:      t.Points,
		Description: t.Description,
		OrderID:     t.OrderID,
		CreatedAt:   t.CreatedAt,
	}
}

func transactionResponses(rows []*Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(rows))
	for _, t := range rows {
		out = append(out, NewTransactionResponse(t))
	}
	return out
}

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func registerRoutes(routes *httpapi.Routes, h *Handler) {
	routes.Member.POST("", h.Enroll)
	routes.Member.GET("/me", h.Me)
	routes.Member.PATCH("/me/birthday", h.UpdateBirthday)
	routes.Member.GET("/me/transactions", h.MyTransactions)

	routes.Admin.GET("/members", h.ListMembers)
	routes.Admin.GET("/members/:id", h.GetMember)
	routes.Admin.PATCH("/members/:id", h.Override)
	routes.Admin.GET("/members/:id/transactions", h.ListTransactions)
	routes.Admin.POST("/members/:id/transactions", h.CreateTransaction)
	routes.Admin.POST("/members/:id/transactions/import", h.ImportTransactions)
}

func sessionUser(c *gin.Context) string {
	s, _ := middleware.SessionFrom(c)
	return s.UserID
}

type birthdayBody struct {
	BirthdayMonth *int `json:"birthdayMonth"`
	BirthdayDay   *int `json:"birthdayDay"`
}

func (h *Handler) Enroll(c *gin.Context) {
	var body birthdayBody
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	m, created, err := h.service.Enroll(c.Request.Context(), sessionUser(c), body.BirthdayMonth, body.BirthdayDay)
	if err != nil {
		c.Error(err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, NewMemberResponse(m))
}

func (h *Handler) Me(c *gin.Context) {
	m, err := h.service.GetMemberByUser(c.Request.Context(), sessionUser(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, NewMemberResponse(m))
}

func (h *Handler) UpdateBirthday(c *gin.Context) {
	var body birthdayBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	m, err := h.service.UpdateBirthday(c.Request.Context(), sessionUser(c), body.BirthdayMonth, body.BirthdayDay)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, NewMemberResponse(m))
}

func (h *Handler) MyTransactions(c *gin.Context) {
	m, err := h.service.GetMemberByUser(c.Request.Context(), sessionUser(c))
	if err != nil {
		c.Error(err)
		return
	}
	h.listTransactions(c, m.ID)
}

func (h *Handler) ListTransactions(c *gin.Context) {
	if _, err := h.service.GetMember(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	h.listTransactions(c, c.Param("id"))
}

func (h *Handler) listTransactions(c *gin.Context, memberID string) {
	var p pagination.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		c.Error(errutil.BadRequest("invalid query", err))
		return
	}

	rows, page, err := h.service.ListTransactions(c.Request.Context(), memberID, p)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": transactionResponses(rows), "page": page})
}

func (h *Handler) ListMembers(c *gin.Context) {
	var f MemberFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		c.Error(errutil.BadRequest("invalid query", err))
		return
	}

	rows, page, err := h.service.ListMembers(c.Request.Context(), f)
	if err != nil {
		c.Error(err)
		return
	}

	data := make([]MemberResponse, 0, len(rows))
	for _, m := range rows {
		data = append(data, NewMemberResponse(m))
	}
	c.JSON(http.StatusOK, gin.H{"data": data, "page": page})
}

func (h *Handler) GetMember(c *gin.Context) {
	m, err := h.service.GetMember(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, NewMemberResponse(m))
}

type overrideBody struct {
	Tier           *string          `json:"tier"`
	Points         *int64           `json:"points"`
	AnnualSpending *decimal.Decimal `json:"annualSpending"`
	Reason         string           `json:"reason"`
}

func (h *Handler) Override(c *gin.Context) {
	var body overrideBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	req := OverrideRequest{
		Points:         body.Points,
		AnnualSpending: body.AnnualSpending,
		Reason:         body.Reason,
	}
	if body.Tier != nil {
		tier := Tier(strings.ToLower(strings.TrimSpace(*body.Tier)))
		req.Tier = &tier
	}

	m, err := h.service.Override(c.Request.Context(), audit.ActorFrom(c), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, NewMemberResponse(m))
}

type transactionBody struct {
	Type        string          `json:"type" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Points      int64           `json:"points"`
	Description string          `json:"description"`
	OrderID     string          `json:"orderId"`
	CreatedAt   *time.Time      `json:"createdAt"`
}

func (h *Handler) CreateTransaction(c *gin.Context) {
	var body transactionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	m, txn, err := h.service.RecordManualTransaction(c.Request.Context(), audit.ActorFrom(c), c.Param("id"), TransactionRequest{
		Type:        TransactionType(strings.ToLower(strings.TrimSpace(body.Type))),
		Amount:      body.Amount,
		Points:      body.Points,
		Description: body.Description,
		OrderID:     body.OrderID,
		CreatedAt:   body.CreatedAt,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"member":      NewMemberResponse(m),
		"transaction": NewTransactionResponse(txn),
	})
}

type importBody struct {
	CSV string `json:"csv" binding:"required"`
}

// ImportTransactions accepts either a text/csv body or {"csv": "..."}.
// Bodies over maxImportBody are rejected whole.
func (h *Handler) ImportTransactions(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBody+1))
	if err != nil {
		c.Error(errutil.BadRequest("failed to read body", err))
		return
	}
	if len(raw) > maxImportBody {
		c.Error(errutil.BadRequest("csv body too large", nil))
		return
	}

	text := string(raw)
	if !strings.HasPrefix(c.ContentType(), "text/") {
		var body importBody
		if err := binding.JSON.BindBody(raw, &body); err != nil {
			c.Error(errutil.BadRequest("invalid request body", err))
			return
		}
		text = body.CSV
	}

	result, err := h.service.ImportTransactions(c.Request.Context(), audit.ActorFrom(c), c.Param("id"), text)
	if err != nil {
		c.Error(err)
		return
	}

	errs := result.Errors
	if errs == nil {
		errs = []string{}
	}
	c.JSON(result.HTTPStatus(), gin.H{
		"created": result.Created,
		"errors":  errs,
		"member":  NewMemberResponse(result.Member),
	})
}
