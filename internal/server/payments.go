package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) CreatePreauth(c *gin.Context) {
	act, ok := actorFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	orderID, err := snowflake.ParseString(strings.TrimSpace(c.Param("order_id")))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.paymentSvc.CreatePreauthForOrder(c.Request.Context(), act, orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}
