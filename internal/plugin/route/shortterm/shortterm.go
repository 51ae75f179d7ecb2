package shortterm

import (
	"errors"
	"net/http"

	"github.com/agentmem/memory-service/internal/model"
	registryshortterm "github.com/agentmem/memory-service/internal/registry/shortterm"
	"github.com/agentmem/memory-service/internal/service"
	"github.com/gin-gonic/gin"
)

// MountRoutes mounts the short-term (TTL tier) write routes.
func MountRoutes(r *gin.Engine, svc *service.Service) {
	for _, cat := range []model.Category{model.CategoryCache, model.CategoryWorking} {
		cat := cat
		g := r.Group("/short-term/" + string(cat))
		g.POST("", func(c *gin.Context) {
			putRecord(c, svc, cat)
		})
		g.PATCH("", func(c *gin.Context) {
			updateRecord(c, svc, cat)
		})
		g.DELETE("", func(c *gin.Context) {
			deleteRecord(c, svc, cat)
		})
		g.DELETE("/all", func(c *gin.Context) {
			deleteAll(c, svc, cat)
		})
	}

	r.POST("/short-term/working/persist", func(c *gin.Context) {
		persistWorking(c, svc)
	})
}

func handleError(c *gin.Context, err error) {
	if errors.Is(err, registryshortterm.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "record not found"})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

func putRecord(c *gin.Context, svc *service.Service, cat model.Category) {
	var req struct {
		AgentID           string        `json:"agent_id"`
		Memory            model.Payload `json:"memory"`
		TTL               int           `json:"ttl"`
		MessageID         string        `json:"message_id"`
		RunID             string        `json:"run_id"`
		WorkflowID        string        `json:"workflow_id"`
		Stages            []string      `json:"stages"`
		CurrentStage      string        `json:"current_stage"`
		ContextLogSummary string        `json:"context_log_summary"`
		UserQuery         string        `json:"user_query"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.AgentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_id is required"})
		return
	}
	if req.Memory == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "memory is required"})
		return
	}

	rec := model.ShortTermRecord{
		AgentID:   req.AgentID,
		Memory:    req.Memory,
		Category:  cat,
		TTL:       req.TTL,
		MessageID: req.MessageID,
		RunID:     req.RunID,
	}
	if cat == model.CategoryWorking {
		rec.WorkflowID = req.WorkflowID
		rec.Stages = req.Stages
		rec.CurrentStage = req.CurrentStage
		rec.ContextLogSummary = req.ContextLogSummary
		rec.UserQuery = req.UserQuery
	}

	stored, err := svc.ShortTerm.Put(c.Request.Context(), rec)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

func updateRecord(c *gin.Context, svc *service.Service, cat model.Category) {
	var req struct {
		AgentID   string `json:"agent_id"`
		MessageID string `json:"message_id"`
		model.ShortTermUpdate
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.AgentID == "" || req.MessageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_id and message_id are required"})
		return
	}

	updated, err := svc.ShortTerm.Update(c.Request.Context(), cat, req.AgentID, req.MessageID, req.ShortTermUpdate)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func deleteRecord(c *gin.Context, svc *service.Service, cat model.Category) {
	agentID := c.Query("agent_id")
	messageID := c.Query("message_id")
	if agentID == "" || messageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_id and message_id are required"})
		return
	}
	if err := svc.ShortTerm.DeleteOne(c.Request.Context(), cat, agentID, messageID); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "message_id": messageID})
}

func deleteAll(c *gin.Context, svc *service.Service, cat model.Category) {
	agentID := c.Query("agent_id")
	if agentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_id is required"})
		return
	}
	count, err := svc.ShortTerm.DeleteAll(c.Request.Context(), cat, agentID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "count": count})
}

func persistWorking(c *gin.Context, svc *service.Service) {
	var req struct {
		AgentID    string `json:"agent_id"`
		WorkflowID string `json:"workflow_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.AgentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_id is required"})
		return
	}

	report, err := svc.PersistWorkingMemory(c.Request.Context(), req.AgentID, req.WorkflowID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
