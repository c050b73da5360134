package server

import (
	"net/http"

	auditdomain "github.com/UrrutyLabs/encuentraya-payments/internal/audit/domain"
	"github.com/gin-gonic/gin"
)

type listAuditLogsQuery struct {
	PageToken  string `form:"page_token"`
	PageSize   int    `form:"page_size"`
	Action     string `form:"action"`
	TargetType string `form:"target_type"`
	TargetID   string `form:"target_id"`
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	var query listAuditLogsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	req := auditdomain.ListAuditLogRequest{
		Action:     query.Action,
		TargetType: query.TargetType,
		TargetID:   query.TargetID,
	}
	req.PageToken = query.PageToken
	req.PageSize = query.PageSize

	resp, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
