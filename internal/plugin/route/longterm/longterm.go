package longterm

import (
	"errors"
	"net/http"

	"github.com/agentmem/memory-service/internal/ident"
	"github.com/agentmem/memory-service/internal/model"
	registrylongterm "github.com/agentmem/memory-service/internal/registry/longterm"
	"github.com/agentmem/memory-service/internal/service"
	"github.com/gin-gonic/gin"
)

// proceduralCategories maps the wire subtype onto the durable partition.
var proceduralCategories = map[string]model.Category{
	"agent_store":    model.CategoryProceduralAgent,
	"tool_store":     model.CategoryProceduralTool,
	"workflow_store": model.CategoryProceduralWorkflow,
}

var episodicCategories = map[string]model.Category{
	"conversational": model.CategoryEpisodicConversational,
	"summaries":      model.CategoryEpisodicSummaries,
	"observations":   model.CategoryEpisodicObservations,
}

// MountRoutes mounts the long-term (durable tier) write routes.
func MountRoutes(r *gin.Engine, svc *service.Service) {
	g := r.Group("/long-term")

	g.POST("/semantic", func(c *gin.Context) { addSemantic(c, svc) })
	g.PATCH("/semantic", func(c *gin.Context) { updateSemantic(c, svc) })
	g.DELETE("/semantic", func(c *gin.Context) { deleteSemantic(c, svc) })
	g.DELETE("/semantic/all", func(c *gin.Context) { deleteAllSemantic(c, svc) })

	g.POST("/episodic/:kind", func(c *gin.Context) { addEpisodic(c, svc) })

	g.POST("/procedural", func(c *gin.Context) { addProcedural(c, svc) })
	g.PATCH("/procedural", func(c *gin.Context) { updateProcedural(c, svc) })

	g.POST("/working-persisted", func(c *gin.Context) { addWorkingPersisted(c, svc) })
	g.PATCH("/working-persisted", func(c *gin.Context) { updateWorkingPersisted(c, svc) })
}

func handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registrylongterm.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "record not found"})
	case errors.Is(err, registrylongterm.ErrImmutableCategory):
		c.JSON(http.StatusBadRequest, gin.H{"error": "episodic records are append-only"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

type createRequest struct {
	AgentID   string        `json:"agent_id"`
	Memory    model.Payload `json:"memory"`
	MessageID string        `json:"message_id"`
	RunID     string        `json:"run_id"`

	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	RecallRecovery string `json:"recall_recovery"`

	ObservationID  string `json:"observation_id"`
	ObservationKPI string `json:"observation_kpi"`

	Subtype     string          `json:"subtype"`
	Name        string          `json:"name"`
	Config      model.Payload   `json:"config"`
	Integration model.Payload   `json:"integration"`
	Status      string          `json:"status"`
	ChangeNote  string          `json:"change_note"`
	Steps       []model.Payload `json:"steps"`

	NormalizedText string   `json:"normalized_text"`
	WorkflowID     string   `json:"workflow_id"`
	Tags           []string `json:"tags"`
}

func (req *createRequest) validate(c *gin.Context) bool {
	if req.AgentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_id is required"})
		return false
	}
	if req.Memory == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "memory is required"})
		return false
	}
	return true
}

func (req *createRequest) record(cat model.Category) model.DurableRecord {
	return model.DurableRecord{
		AgentID:        req.AgentID,
		MessageID:      req.MessageID,
		Memory:         req.Memory,
		Category:       cat,
		Subtype:        req.Subtype,
		RunID:          req.RunID,
		WorkflowID:     req.WorkflowID,
		ConversationID: req.ConversationID,
		Role:           req.Role,
		RecallRecovery: req.RecallRecovery,
		ObservationID:  req.ObservationID,
		ObservationKPI: req.ObservationKPI,
		Name:           req.Name,
		Config:         req.Config,
		Integration:    req.Integration,
		Status:         req.Status,
		ChangeNote:     req.ChangeNote,
		Steps:          req.Steps,
		NormalizedText: req.NormalizedText,
		Tags:           req.Tags,
	}
}

func bindCreate(c *gin.Context) (*createRequest, bool) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	if !req.validate(c) {
		return nil, false
	}
	if req.MessageID == "" {
		req.MessageID = ident.NewMessageID()
	}
	return &req, true
}

func addSemantic(c *gin.Context, svc *service.Service) {
	req, ok := bindCreate(c)
	if !ok {
		return
	}
	created, err := svc.AddSemantic(c.Request.Context(), req.record(model.CategorySemantic))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func updateSemantic(c *gin.Context, svc *service.Service) {
	req, ok := bindUpdate(c)
	if !ok {
		return
	}
	updated, err := svc.UpdateSemantic(c.Request.Context(), req.AgentID, req.MessageID, req.DurableUpdate)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func deleteSemantic(c *gin.Context, svc *service.Service) {
	agentID := c.Query("agent_id")
	messageID := c.Query("message_id")
	if agentID == "" || messageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_id and message_id are required"})
		return
	}
	if err := svc.DeleteSemantic(c.Request.Context(), agentID, messageID); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "message_id": messageID})
}

func deleteAllSemantic(c *gin.Context, svc *service.Service) {
	agentID := c.Query("agent_id")
	if agentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_id is required"})
		return
	}
	count, err := svc.DeleteAllSemantic(c.Request.Context(), agentID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "count": count})
}

func addEpisodic(c *gin.Context, svc *service.Service) {
	cat, ok := episodicCategories[c.Param("kind")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "unknown episodic partition"})
		return
	}
	req, bound := bindCreate(c)
	if !bound {
		return
	}
	if cat == model.CategoryEpisodicConversational && req.ConversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation_id is required"})
		return
	}
	created, err := svc.LongTerm.Create(c.Request.Context(), req.record(cat))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func addProcedural(c *gin.Context, svc *service.Service) {
	req, ok := bindCreate(c)
	if !ok {
		return
	}
	cat, known := proceduralCategories[req.Subtype]
	if !known {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subtype must be one of agent_store, tool_store, workflow_store"})
		return
	}
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	rec := req.record(cat)
	if rec.Status == "" {
		rec.Status = "active"
	}
	created, err := svc.LongTerm.Create(c.Request.Context(), rec)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func updateProcedural(c *gin.Context, svc *service.Service) {
	req, ok := bindUpdate(c)
	if !ok {
		return
	}
	cat, known := proceduralCategories[req.Subtype]
	if !known {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subtype must be one of agent_store, tool_store, workflow_store"})
		return
	}
	updated, err := svc.LongTerm.Update(c.Request.Context(), cat, req.AgentID, req.MessageID, req.DurableUpdate)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func addWorkingPersisted(c *gin.Context, svc *service.Service) {
	req, ok := bindCreate(c)
	if !ok {
		return
	}
	created, err := svc.LongTerm.Create(c.Request.Context(), req.record(model.CategoryWorkingPersisted))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func updateWorkingPersisted(c *gin.Context, svc *service.Service) {
	req, ok := bindUpdate(c)
	if !ok {
		return
	}
	updated, err := svc.LongTerm.Update(c.Request.Context(), model.CategoryWorkingPersisted, req.AgentID, req.MessageID, req.DurableUpdate)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

type updateRequest struct {
	AgentID   string `json:"agent_id"`
	MessageID string `json:"message_id"`
	model.DurableUpdate
}

func bindUpdate(c *gin.Context) (*updateRequest, bool) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	if req.AgentID == "" || req.MessageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_id and message_id are required"})
		return nil, false
	}
	return &req, true
}
