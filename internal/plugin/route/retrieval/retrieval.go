package retrieval

import (
	"net/http"
	"strconv"

	"github.com/agentmem/memory-service/internal/model"
	"github.com/agentmem/memory-service/internal/service"
	"github.com/gin-gonic/gin"
)

var episodicCategories = map[string]model.Category{
	"conversational": model.CategoryEpisodicConversational,
	"summaries":      model.CategoryEpisodicSummaries,
	"observations":   model.CategoryEpisodicObservations,
}

var proceduralCategories = map[string]model.Category{
	"agents":    model.CategoryProceduralAgent,
	"tools":     model.CategoryProceduralTool,
	"workflows": model.CategoryProceduralWorkflow,
}

// MountRoutes mounts the read-side routes for every tier.
func MountRoutes(r *gin.Engine, svc *service.Service) {
	g := r.Group("/retrieve")

	g.GET("/short-term", func(c *gin.Context) { getShortTerm(c, svc, "") })
	g.GET("/working", func(c *gin.Context) { getShortTerm(c, svc, model.CategoryWorking) })
	g.GET("/semantic", func(c *gin.Context) { getSemantic(c, svc) })
	g.GET("/episodic/:kind", func(c *gin.Context) { getEpisodic(c, svc) })
	g.GET("/procedural/:kind", func(c *gin.Context) { getProcedural(c, svc) })
	g.GET("/working-persisted", func(c *gin.Context) { getWorkingPersisted(c, svc) })
}

func requireAgentID(c *gin.Context) (string, bool) {
	agentID := c.Query("agent_id")
	if agentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_id is required"})
		return "", false
	}
	return agentID, true
}

func getShortTerm(c *gin.Context, svc *service.Service, cat model.Category) {
	agentID, ok := requireAgentID(c)
	if !ok {
		return
	}
	if cat == "" {
		parsed, err := model.ParseShortTermCategory(c.DefaultQuery("memory_type", "cache"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cat = parsed
	}

	records, err := svc.ShortTerm.GetMany(c.Request.Context(), cat, agentID, model.ShortTermFilter{
		MessageID:  c.Query("message_id"),
		RunID:      c.Query("run_id"),
		WorkflowID: c.Query("workflow_id"),
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records, "count": len(records)})
}

// getSemantic serves two shapes of read: with a query it is a vector
// similarity search; without one it is a metadata listing from the durable
// tier.
func getSemantic(c *gin.Context, svc *service.Service) {
	agentID, ok := requireAgentID(c)
	if !ok {
		return
	}

	if query := c.Query("query"); query != "" {
		k, _ := strconv.Atoi(c.DefaultQuery("k", "5"))
		results, err := svc.SearchSemantic(c.Request.Context(), agentID, query, k)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": results, "count": len(results)})
		return
	}

	listDurable(c, svc, model.CategorySemantic, agentID)
}

func getEpisodic(c *gin.Context, svc *service.Service) {
	cat, ok := episodicCategories[c.Param("kind")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "unknown episodic partition"})
		return
	}
	agentID, bound := requireAgentID(c)
	if !bound {
		return
	}
	listDurable(c, svc, cat, agentID)
}

func getProcedural(c *gin.Context, svc *service.Service) {
	cat, ok := proceduralCategories[c.Param("kind")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "unknown procedural partition"})
		return
	}
	agentID, bound := requireAgentID(c)
	if !bound {
		return
	}
	listDurable(c, svc, cat, agentID)
}

func getWorkingPersisted(c *gin.Context, svc *service.Service) {
	agentID, ok := requireAgentID(c)
	if !ok {
		return
	}
	listDurable(c, svc, model.CategoryWorkingPersisted, agentID)
}

func listDurable(c *gin.Context, svc *service.Service, cat model.Category, agentID string) {
	records, err := svc.LongTerm.GetMany(c.Request.Context(), cat, agentID, model.DurableFilter{
		Subtype:        c.Query("subtype"),
		MessageID:      c.Query("message_id"),
		RunID:          c.Query("run_id"),
		WorkflowID:     c.Query("workflow_id"),
		ConversationID: c.Query("conversation_id"),
		Name:           c.Query("name"),
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records, "count": len(records)})
}
