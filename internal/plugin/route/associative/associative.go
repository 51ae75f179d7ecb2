package associative

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/agentmem/memory-service/internal/service"
	"github.com/gin-gonic/gin"
)

// MountRoutes mounts the associative (graph tier) routes. Every handler
// resolves the graph store per request so deployments without one answer
// with a clear error instead of a panic.
func MountRoutes(r *gin.Engine, svc *service.Service) {
	g := r.Group("/long-term")

	g.POST("/entity", func(c *gin.Context) { upsertEntity(c, svc) })
	g.GET("/entity/:name", func(c *gin.Context) { getEntity(c, svc) })
	g.POST("/associate", func(c *gin.Context) { associate(c, svc) })
	g.GET("/outbound", func(c *gin.Context) { listRelations(c, svc, true) })
	g.GET("/inbound", func(c *gin.Context) { listRelations(c, svc, false) })
	g.GET("/path", func(c *gin.Context) { pathBetween(c, svc) })
}

func upsertEntity(c *gin.Context, svc *service.Service) {
	store, err := svc.GraphStore()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Name   string         `json:"name"`
		Labels []string       `json:"labels"`
		Props  map[string]any `json:"props"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	if err := store.UpsertEntity(c.Request.Context(), req.Name, req.Labels, req.Props); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "name": req.Name})
}

func getEntity(c *gin.Context, svc *service.Service) {
	store, err := svc.GraphStore()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	entity, err := store.GetEntity(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if entity == nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "entity not found"})
		return
	}
	c.JSON(http.StatusOK, entity)
}

func associate(c *gin.Context, svc *service.Service) {
	store, err := svc.GraphStore()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Source  string         `json:"source"`
		RelType string         `json:"rel_type"`
		Target  string         `json:"target"`
		Props   map[string]any `json:"props"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Source == "" || req.Target == "" || req.RelType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source, rel_type and target are required"})
		return
	}

	// Relation types are normalized to SCREAMING_SNAKE before validation.
	relType := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(req.RelType), " ", "_"))

	if err := store.UpsertRelation(c.Request.Context(), req.Source, relType, req.Target, req.Props); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "source": req.Source, "rel": relType, "target": req.Target})
}

func listRelations(c *gin.Context, svc *service.Service, outbound bool) {
	store, err := svc.GraphStore()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	list := store.Inbound
	if outbound {
		list = store.Outbound
	}
	relations, err := list(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": relations, "count": len(relations)})
}

func pathBetween(c *gin.Context, svc *service.Service) {
	store, err := svc.GraphStore()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	from := c.Query("from")
	to := c.Query("to")
	if from == "" || to == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to are required"})
		return
	}
	maxHops, _ := strconv.Atoi(c.DefaultQuery("max_hops", "4"))

	paths, err := store.PathBetween(c.Request.Context(), from, to, maxHops)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": paths, "count": len(paths)})
}
