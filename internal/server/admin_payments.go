package server

import (
	"net/http"
	"strings"

	paymentdomain "github.com/UrrutyLabs/encuentraya-payments/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type listPaymentsQuery struct {
	PageToken    string `form:"page_token"`
	PageSize     int    `form:"page_size"`
	Provider     string `form:"provider"`
	Status       string `form:"status"`
	ClientUserID string `form:"client_user_id"`
}

type captureRequest struct {
	Amount *int64 `json:"amount"`
}

type refundRequest struct {
	Amount *int64 `json:"amount"`
}

func (s *Server) ListPayments(c *gin.Context) {
	act, ok := actorFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query listPaymentsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	req := paymentdomain.ListPaymentsRequest{
		Provider: query.Provider,
		Status:   query.Status,
	}
	req.PageToken = query.PageToken
	req.PageSize = query.PageSize
	if raw := strings.TrimSpace(query.ClientUserID); raw != "" {
		clientUserID, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.ClientUserID = clientUserID
	}

	resp, err := s.paymentSvc.AdminListPayments(c.Request.Context(), act, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetPaymentByID(c *gin.Context) {
	act, ok := actorFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	paymentID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	detail, err := s.paymentSvc.AdminGetPayment(c.Request.Context(), act, paymentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

func (s *Server) SyncPayment(c *gin.Context) {
	act, ok := actorFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	paymentID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.paymentSvc.SyncPaymentStatus(c.Request.Context(), act, paymentID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) CapturePayment(c *gin.Context) {
	act, ok := actorFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	paymentID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req captureRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
	}

	resp, err := s.paymentSvc.CapturePayment(c.Request.Context(), act, paymentID, req.Amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) RefundPayment(c *gin.Context) {
	act, ok := actorFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	paymentID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req refundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
	}

	if err := s.paymentSvc.RefundPayment(c.Request.Context(), act, paymentID, req.Amount); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
