package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/extension-bridge/backend/internal/buffer"
	"github.com/extension-bridge/backend/internal/model"
	"github.com/extension-bridge/backend/internal/progress"
	"github.com/extension-bridge/backend/internal/webview"
)

// BridgeStatus is the live state the debug endpoints read.
type BridgeStatus interface {
	Connected() bool
	Webviews() *webview.Manager
	Progress() *progress.Manager
	PendingIDs() []string
	Trace() []buffer.Frame
}

// WebviewHistory lists webviews recorded by the audit store.
type WebviewHistory interface {
	ListWebviews(ctx context.Context, limit int) ([]*model.WebviewRecord, error)
}

// DebugHandler serves read-only views of the bridge's state.
type DebugHandler struct {
	status  BridgeStatus
	history WebviewHistory
	started time.Time
}

// NewDebugHandler creates a DebugHandler. history may be nil when no audit
// store is configured.
func NewDebugHandler(status BridgeStatus, history WebviewHistory) *DebugHandler {
	return &DebugHandler{status: status, history: history, started: time.Now()}
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
	Webviews  int    `json:"webviews"`
	Pending   int    `json:"pending"`
	Uptime    string `json:"uptime"`
}

// WebviewResponse represents a live webview panel.
type WebviewResponse struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Column  int    `json:"column"`
	State   string `json:"state"`
	Active  bool   `json:"active"`
	Visible bool   `json:"visible"`
}

// ProgressResponse represents an open progress scope.
type ProgressResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Health handles GET /health.
func (h *DebugHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Connected: h.status.Connected(),
		Webviews:  h.status.Webviews().Len(),
		Pending:   len(h.status.PendingIDs()),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	})
}

// Webviews handles GET /debug/webviews.
func (h *DebugHandler) Webviews(c *gin.Context) {
	panels := h.status.Webviews().List()
	resp := make([]WebviewResponse, 0, len(panels))
	for _, p := range panels {
		view := p.ViewState()
		resp = append(resp, WebviewResponse{
			ID:      p.ID(),
			Title:   p.Title(),
			Column:  int(p.Column()),
			State:   p.State().String(),
			Active:  view.Active,
			Visible: view.Visible,
		})
	}
	c.JSON(http.StatusOK, gin.H{"webviews": resp})
}

// WebviewHistory handles GET /debug/webviews/history?limit=N.
func (h *DebugHandler) WebviewHistory(c *gin.Context) {
	if h.history == nil {
		sendError(c, http.StatusNotFound, "AUDIT_DISABLED", "No audit store is configured")
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := h.history.ListWebviews(c.Request.Context(), limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list webviews: "+err.Error())
		return
	}
	if records == nil {
		records = []*model.WebviewRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"webviews": records})
}

// Pending handles GET /debug/pending.
func (h *DebugHandler) Pending(c *gin.Context) {
	ids := h.status.PendingIDs()
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"pending": ids})
}

// Progress handles GET /debug/progress.
func (h *DebugHandler) Progress(c *gin.Context) {
	scopes := h.status.Progress().Open()
	resp := make([]ProgressResponse, 0, len(scopes))
	for _, s := range scopes {
		resp = append(resp, ProgressResponse{ID: s.ID(), Title: s.Title()})
	}
	c.JSON(http.StatusOK, gin.H{"progress": resp})
}

// Trace handles GET /debug/trace.
func (h *DebugHandler) Trace(c *gin.Context) {
	frames := h.status.Trace()
	if frames == nil {
		frames = []buffer.Frame{}
	}
	c.JSON(http.StatusOK, gin.H{"frames": frames})
}

// RegisterRoutes registers the health and debug routes.
func (h *DebugHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.Health)

	debug := r.Group("/debug")
	{
		debug.GET("/webviews", h.Webviews)
		debug.GET("/webviews/history", h.WebviewHistory)
		debug.GET("/pending", h.Pending)
		debug.GET("/progress", h.Progress)
		debug.GET("/trace", h.Trace)
	}
}
