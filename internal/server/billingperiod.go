package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) CalculateStorage(c *gin.Context) {
	periodID, err := snowflake.ParseString(c.Param("period_id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	summary, err := s.billingperiodsvc.CalculateStorage(c.Request.Context(), periodID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
