package reward

import (
	"net/http"
	"time"

	"cesworld/pkg/errutil"
	"cesworld/pkg/httpapi"
	"cesworld/pkg/middleware"
	"cesworld/services/membership"

	"github.com/gin-gonic/gin"
)

type RewardResponse struct {
	ID         string     `json:"id"`
	Code       string     `json:"code"`
	MemberID   string     `json:"memberId"`
	RewardType Type       `json:"rewardType"`
	PointsCost int64      `json:"pointsCost"`
	AmountOff  string     `json:"amountOff"`
	Status     Status     `json:"status"`
	RedeemedAt time.Time  `json:"redeemedAt"`
	UsedAt     *time.Time `json:"usedAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
}

func NewRewardResponse(r *Reward) RewardResponse {
	return RewardResponse{
		ID:         r.ID,
		Code:       r.Code,
		MemberID:   r.MemberID,
		RewardType: r.RewardType,
		PointsCost: r.PointsCost,
		AmountOff:  r.AmountOff.StringFixed(2),
		Status:     r.Status,
		RedeemedAt: r.RedeemedAt,
		UsedAt:     r.UsedAt,
		ExpiresAt:  r.ExpiresAt,
	}
}

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func registerRoutes(routes *httpapi.Routes, h *Handler) {
	routes.Member.GET("/me/rewards", h.List)
	routes.Member.POST("/me/rewards", h.Redeem)
	routes.Member.POST("/me/rewards/:id/use", h.Use)
}

func sessionUser(c *gin.Context) string {
	s, _ := middleware.SessionFrom(c)
	return s.UserID
}

func (h *Handler) List(c *gin.Context) {
	var f Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		c.Error(errutil.BadRequest("invalid query", err))
		return
	}

	rows, page, err := h.service.List(c.Request.Context(), sessionUser(c), f)
	if err != nil {
		c.Error(err)
		return
	}

	data := make([]RewardResponse, 0, len(rows))
	for _, r := range rows {
		data = append(data, NewRewardResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{"data": data, "page": page})
}

type redeemBody struct {
	RewardType string `json:"rewardType" binding:"required"`
}

func (h *Handler) Redeem(c *gin.Context) {
	var body redeemBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	r, m, err := h.service.Redeem(c.Request.Context(), sessionUser(c), Type(body.RewardType))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"reward": NewRewardResponse(r),
		"member": membership.NewMemberResponse(m),
	})
}

func (h *Handler) Use(c *gin.Context) {
	r, err := h.service.Use(c.Request.Context(), sessionUser(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, NewRewardResponse(r))
}
