package search

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type SearchHandler struct {
	service *Service
}

func NewSearchHandler(s *Service) *SearchHandler {
	return &SearchHandler{
		service: s,
	}
}

func (h *SearchHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/v1/flights/search", h.StartSearchHandler)
	router.GET("/v1/flights/search/:id", h.SnapshotHandler)
	router.POST("/v1/flights/search/:id/filter", h.FilterHandler)
	router.POST("/v1/flights/search/:id/sort", h.SortHandler)
	router.POST("/v1/flights/search/:id/more", h.LoadMoreHandler)
	router.DELETE("/v1/flights/search/:id", h.StopHandler)
	router.GET("/health", h.HealthHandler)
}

type startSearchRequest struct {
	Criteria
	// ReplacesSessionID cancels the session the consumer is abandoning;
	// any criteria change means a brand-new session.
	ReplacesSessionID string `json:"replaces_session_id,omitempty"`
}

func (h *SearchHandler) StartSearchHandler(c *gin.Context) {
	var req startSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid JSON body",
			"code":  ErrorCodeValidation,
		})
		return
	}

	snapshot, err := h.service.StartSearch(c.Request.Context(), req.Criteria, req.ReplacesSessionID)
	if err != nil {
		sendError(c, err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

func (h *SearchHandler) SnapshotHandler(c *gin.Context) {
	snapshot, err := h.service.Snapshot(c.Param("id"))
	if err != nil {
		sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *SearchHandler) FilterHandler(c *gin.Context) {
	var filters FilterOptions
	if err := c.ShouldBindJSON(&filters); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid JSON body",
			"code":  ErrorCodeValidation,
		})
		return
	}

	snapshot, err := h.service.UpdateFilters(c.Param("id"), filters)
	if err != nil {
		sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *SearchHandler) SortHandler(c *gin.Context) {
	var sortOpt SortOptions
	if err := c.ShouldBindJSON(&sortOpt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid JSON body",
			"code":  ErrorCodeValidation,
		})
		return
	}

	snapshot, err := h.service.UpdateSort(c.Param("id"), sortOpt)
	if err != nil {
		sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *SearchHandler) LoadMoreHandler(c *gin.Context) {
	snapshot, err := h.service.LoadMore(c.Param("id"))
	if err != nil {
		sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *SearchHandler) StopHandler(c *gin.Context) {
	h.service.StopSearch(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (h *SearchHandler) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func sendError(c *gin.Context, err error) {
	var appErr *AppError

	if errors.As(err, &appErr) {
		c.JSON(appErr.Status, gin.H{
			"error": appErr.Message,
			"code":  appErr.Code,
		})
		return
	}

	// Default to 500 for unknown errors
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "Internal Server Error",
		"code":  ErrorCodeInternalFailure,
	})
}
