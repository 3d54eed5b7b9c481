package handler

import (
	"errors"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/chirp_analysis/internal/api/middleware"
	"github.com/qs3c/chirp_analysis/internal/model/dto"
	"github.com/qs3c/chirp_analysis/internal/pkg/response"
	"github.com/qs3c/chirp_analysis/internal/service"
)

type JobHandler struct {
	jobService *service.JobService
}

func NewJobHandler(jobService *service.JobService) *JobHandler {
	return &JobHandler{
		jobService: jobService,
	}
}

// Enqueue 提交分析任务
// POST /api/v1/jobs
func (h *JobHandler) Enqueue(c *gin.Context) {
	var req dto.EnqueueJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.jobService.Enqueue(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionMismatch):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrSessionAnalyzed), errors.Is(err, service.ErrJobInFlight):
			response.ConflictError(c, err.Error())
		case errors.Is(err, service.ErrEnqueueUnavailable):
			response.UnavailableError(c, service.ErrEnqueueUnavailable.Error())
		default:
			log.Printf("Enqueue failed for session %s: %v", req.SessionID, err)
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "已提交", resp)
}

// Get 获取任务状态
// GET /api/v1/jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	detail, err := h.jobService.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	if !canWatch(c, detail.SessionID) {
		response.PermissionError(c, "")
		return
	}

	response.Success(c, detail)
}

// SessionAnalysis 获取练习记录的分析结果
// GET /api/v1/sessions/:id/analysis
func (h *JobHandler) SessionAnalysis(c *gin.Context) {
	sessionID := c.Param("id")
	if !canWatch(c, sessionID) {
		response.PermissionError(c, "")
		return
	}

	analysis, err := h.jobService.GetSessionAnalysis(c.Request.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, service.ErrAnalysisNotReady):
			response.NotReadyError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, analysis)
}

// Unlocks 获取孩子的奖励解锁
// GET /api/v1/children/:id/unlocks
func (h *JobHandler) Unlocks(c *gin.Context) {
	items, err := h.jobService.ListUnlocks(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, gin.H{"items": items})
}

func canWatch(c *gin.Context, sessionID string) bool {
	claims, ok := middleware.GetClaims(c)
	return ok && claims.CanWatch(sessionID)
}
