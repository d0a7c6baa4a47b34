package server

import (
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	usagedomain "github.com/shipyardhq/shipyard/internal/usage/domain"
)

func (s *Server) GetUsageSummary(c *gin.Context) {
	ownerID, err := snowflake.ParseString(c.Param("owner_id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	summary, err := s.usagesvc.GetUsageSummary(c.Request.Context(), ownerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) ListUsage(c *gin.Context) {
	ownerID, err := snowflake.ParseString(c.Param("owner_id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	pageSize, _ := strconv.Atoi(c.Query("page_size"))

	resp, err := s.usagesvc.List(c.Request.Context(), usagedomain.ListUsageRequest{
		OwnerID:   ownerID,
		UsageType: usagedomain.Type(c.Query("usage_type")),
		PageToken: c.Query("page_token"),
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type recordBuildMinutesRequest struct {
	RunID   snowflake.ID `json:"run_id" binding:"required"`
	OwnerID snowflake.ID `json:"owner_id"`
}

func (s *Server) RecordBuildMinutes(c *gin.Context) {
	var req recordBuildMinutesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	record, err := s.usagesvc.RecordBuildMinutes(c.Request.Context(), req.RunID, req.OwnerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

type recordArtifactStorageRequest struct {
	ArtifactID snowflake.ID `json:"artifact_id" binding:"required"`
	Action     string       `json:"action" binding:"required"`
}

func (s *Server) RecordArtifactStorage(c *gin.Context) {
	var req recordArtifactStorageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err := s.usagesvc.RecordArtifactStorage(c.Request.Context(), req.ArtifactID, usagedomain.ArtifactAction(req.Action))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}
