package api

import (
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/giftloop/draw-engine/internal/db"
	"github.com/giftloop/draw-engine/internal/draw"
	"github.com/giftloop/draw-engine/internal/solver"
	"github.com/giftloop/draw-engine/pkg/models"
)

type APIHandler struct {
	dbStore *db.PostgresStore
	wsHub   *Hub
	draws   *draw.Service
}

func SetupRouter(dbStore *db.PostgresStore, wsHub *Hub, draws *draw.Service) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://giftloop.app,https://www.giftloop.app
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			// Check if the request origin is in the allowed list
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{dbStore: dbStore, wsHub: wsHub, draws: draws}

	limiter := NewRateLimiter(120, 30)

	api := r.Group("/api/v1")
	api.Use(limiter.Middleware())
	{
		api.GET("/health", handler.handleHealth)
		api.GET("/stream", wsHub.Subscribe)

		protected := api.Group("")
		protected.Use(AuthMiddleware())
		{
			protected.POST("/groups", handler.handleCreateGroup)
			protected.GET("/groups/:id/members", handler.handleListMembers)
			protected.POST("/groups/:id/members", handler.handleAddMember)
			protected.DELETE("/members/:id", handler.handleRemoveMember)
			protected.GET("/groups/:id/exclusions", handler.handleListExclusions)
			protected.POST("/groups/:id/exclusions", handler.handleAddExclusion)
			protected.POST("/groups/:id/preview", handler.handlePreviewDraw)
			protected.POST("/groups/:id/draws", handler.handleCreateDraw)
			protected.GET("/draws/:id", handler.handleGetDraw)
			protected.POST("/draws/:id/execute", handler.handleExecuteDraw)
			protected.GET("/draws/:id/assignments", handler.handleListAssignments)
		}
	}

	return r
}

// drawErrorStatus maps a solving failure to an HTTP status: bad input is the
// caller's fault, infeasibility is a domain outcome, and a lost execution
// race is a conflict.
func drawErrorStatus(err error) int {
	switch {
	case solver.IsInvalidInput(err):
		return http.StatusBadRequest
	case solver.IsImpossible(err):
		return http.StatusUnprocessableEntity
	case solver.IsTimeout(err):
		return http.StatusGatewayTimeout
	case errors.Is(err, models.ErrAssignmentsExist):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	dbConnected := h.dbStore != nil

	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "GiftLoop Draw Engine v1.0",
		"capabilities": gin.H{
			"seeded_draws":          true,
			"mutual_exclusions":     true,
			"historical_exclusions": true,
			"scheduled_draws":       true,
			"dry_run_preview":       true,
		},
		"dbConnected": dbConnected,
	})
}

func (h *APIHandler) handleCreateGroup(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {name}"})
		return
	}

	group, err := h.dbStore.CreateGroup(c.Request.Context(), req.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create group", "details": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, group)
}

func (h *APIHandler) handleListMembers(c *gin.Context) {
	members, err := h.dbStore.ListActiveMembers(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch members", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": members})
}

func (h *APIHandler) handleAddMember(c *gin.Context) {
	var req struct {
		Name  string `json:"name" binding:"required"`
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {name, email?}"})
		return
	}

	member, err := h.dbStore.CreateMember(c.Request.Context(), c.Param("id"), req.Name, req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add member", "details": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, member)
}

func (h *APIHandler) handleRemoveMember(c *gin.Context) {
	if err := h.dbStore.DeactivateMember(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Failed to remove member", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

func (h *APIHandler) handleListExclusions(c *gin.Context) {
	exclusions, err := h.dbStore.ListExclusions(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch exclusions", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": exclusions})
}

func (h *APIHandler) handleAddExclusion(c *gin.Context) {
	var req struct {
		GiverID    string `json:"giverId" binding:"required"`
		ReceiverID string `json:"receiverId" binding:"required"`
		Mutual     bool   `json:"mutual"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {giverId, receiverId, mutual?}"})
		return
	}
	if req.GiverID == req.ReceiverID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Self-exclusion is not allowed"})
		return
	}

	ex, err := h.dbStore.CreateExclusion(c.Request.Context(), c.Param("id"), req.GiverID, req.ReceiverID, req.Mutual)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add exclusion", "details": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, ex)
}

// handlePreviewDraw runs the solver for a group without persisting anything —
// a feasibility dry run for organizers.
// POST /api/v1/groups/:id/preview { "seed": "optional", "lookback": 2 }
func (h *APIHandler) handlePreviewDraw(c *gin.Context) {
	var req struct {
		Seed     string `json:"seed"`
		Lookback int    `json:"lookback"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {seed?, lookback?}"})
		return
	}

	mapping, err := h.draws.Preview(c.Request.Context(), c.Param("id"), req.Seed, req.Lookback)
	if err != nil {
		c.JSON(drawErrorStatus(err), gin.H{"error": "Preview failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignments": mapping, "feasible": true})
}

func (h *APIHandler) handleCreateDraw(c *gin.Context) {
	var req struct {
		Name        string     `json:"name" binding:"required"`
		Seed        string     `json:"seed"`
		Lookback    int        `json:"lookback"`
		ScheduledAt *time.Time `json:"scheduledAt"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {name, seed?, lookback?, scheduledAt?}"})
		return
	}
	if req.Lookback < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Lookback must be >= 0"})
		return
	}

	d, err := h.dbStore.CreateDraw(c.Request.Context(), c.Param("id"), req.Name, req.Seed, req.Lookback, req.ScheduledAt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create draw", "details": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *APIHandler) handleGetDraw(c *gin.Context) {
	d, err := h.dbStore.GetDraw(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Draw not found", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, d)
}

// handleExecuteDraw runs the assignment pipeline for a pending draw. The
// first-writer-wins guarantee lives in the store's batch insert, so two
// racing executes cannot both succeed — the loser gets 409.
func (h *APIHandler) handleExecuteDraw(c *gin.Context) {
	drawID := c.Param("id")

	records, err := h.draws.ExecuteDraw(c.Request.Context(), drawID)
	if err != nil {
		status := drawErrorStatus(err)
		if status == http.StatusInternalServerError {
			log.Printf("Failed to execute draw %s: %v", drawID, err)
		}
		c.JSON(status, gin.H{"error": "Draw execution failed", "details": err.Error()})
		return
	}

	if h.wsHub != nil && len(records) > 0 {
		BroadcastDrawEvent(h.wsHub)(DrawEvent{
			Type:        "draw_completed",
			DrawID:      drawID,
			Assignments: len(records),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "completed",
		"drawId":      drawID,
		"assignments": records,
	})
}

func (h *APIHandler) handleListAssignments(c *gin.Context) {
	// Parse pagination parameters
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	assignments, totalCount, err := h.dbStore.ListAssignments(c.Request.Context(), c.Param("id"), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch assignments", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       assignments,
		"totalCount": totalCount,
		"page":       page,
		"limit":      limit,
	})
}
