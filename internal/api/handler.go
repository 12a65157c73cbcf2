package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Moof29/batchly/internal/breaker"
	"github.com/Moof29/batchly/internal/db"
	"github.com/Moof29/batchly/internal/engine"
	apperrors "github.com/Moof29/batchly/internal/errors"
	"github.com/Moof29/batchly/internal/models"
)

// Handler holds the services the operator surface exposes.
type Handler struct {
	syncService *engine.Service
	reporter    *engine.Reporter
	store       db.Store
	breakers    *breaker.Registry
	logger      *logrus.Logger
}

// NewHandler creates the API handler.
func NewHandler(syncService *engine.Service, reporter *engine.Reporter, store db.Store, breakers *breaker.Registry, logger *logrus.Logger) *Handler {
	return &Handler{
		syncService: syncService,
		reporter:    reporter,
		store:       store,
		breakers:    breakers,
		logger:      logger,
	}
}

// BatchSyncRequest is the body of a batch sync trigger.
type BatchSyncRequest struct {
	OrganizationID string   `json:"organization_id" binding:"required"`
	IDs            []string `json:"ids" binding:"required"`
	Direction      string   `json:"direction"`
}

// EntityConfigPatch carries the editable fields of an entity sync config.
type EntityConfigPatch struct {
	IsEnabled     *bool   `json:"is_enabled"`
	Direction     *string `json:"sync_direction"`
	Priority      *int    `json:"priority"`
	BatchSize     *int    `json:"batch_size"`
	FrequencyMins *int    `json:"frequency_minutes"`
}

// RequestBatchSync enqueues sync operations for the given record ids.
// @Summary Request a batch sync
// @Description Enqueue pending sync operations for specific records of one entity type
// @Tags sync
// @Accept json
// @Produce json
// @Param entityType path string true "Entity type" Enums(customer,vendor,item,invoice,bill,payment)
// @Param request body BatchSyncRequest true "Batch sync request"
// @Success 202 {object} engine.BatchResult
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sync/{entityType} [post]
func (h *Handler) RequestBatchSync(c *gin.Context) {
	var req BatchSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.syncService.RequestBatchSync(c.Request.Context(), engine.BatchRequest{
		OrganizationID: req.OrganizationID,
		EntityType:     models.EntityType(c.Param("entityType")),
		IDs:            req.IDs,
		Direction:      models.SyncDirection(req.Direction),
	})
	if err != nil {
		h.respondWithAppError(c, err, "Failed to request batch sync")
		return
	}

	c.JSON(http.StatusAccepted, result)
}

// ProcessPending drains the pending operation queue for an organization.
// @Summary Process pending sync operations
// @Description Drain the pending operation queue for an organization
// @Tags sync
// @Accept json
// @Produce json
// @Param org query string true "Organization ID"
// @Success 200 {object} engine.DrainResult
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sync/process [post]
func (h *Handler) ProcessPending(c *gin.Context) {
	orgID := c.Query("org")
	if orgID == "" {
		respondWithError(c, http.StatusBadRequest, "Missing org parameter")
		return
	}

	result, err := h.syncService.ProcessPending(c.Request.Context(), orgID)
	if err != nil {
		h.respondWithAppError(c, err, "Failed to process pending operations")
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListOperations lists recent sync operations.
// @Summary List sync operations
// @Description List recent sync operations, optionally filtered by status
// @Tags sync
// @Accept json
// @Produce json
// @Param org query string true "Organization ID"
// @Param status query string false "Operation status filter" Enums(pending,in_progress,success,failed,rollback,conflict)
// @Param limit query int false "Maximum rows to return" default(50)
// @Success 200 {array} models.SyncOperation
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sync/operations [get]
func (h *Handler) ListOperations(c *gin.Context) {
	orgID := c.Query("org")
	if orgID == "" {
		respondWithError(c, http.StatusBadRequest, "Missing org parameter")
		return
	}

	limit, err := getIntQueryParam(c, "limit", 50)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "Invalid limit parameter")
		return
	}

	ops, err := h.store.ListOperations(c.Request.Context(), orgID, models.OperationStatus(c.Query("status")), limit)
	if err != nil {
		h.respondWithAppError(c, err, "Failed to list operations")
		return
	}

	c.JSON(http.StatusOK, ops)
}

// RetryOperation re-enqueues a failed operation.
// @Summary Retry a failed sync operation
// @Description Re-enqueue a failed operation as a new pending operation
// @Tags sync
// @Accept json
// @Produce json
// @Param org query string true "Organization ID"
// @Param id path string true "Operation ID"
// @Success 202 {object} models.SyncOperation
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sync/operations/{id}/retry [post]
func (h *Handler) RetryOperation(c *gin.Context) {
	orgID := c.Query("org")
	if orgID == "" {
		respondWithError(c, http.StatusBadRequest, "Missing org parameter")
		return
	}

	retry, err := h.syncService.RetryOperation(c.Request.Context(), orgID, c.Param("id"))
	if err != nil {
		h.respondWithAppError(c, err, "Failed to retry operation")
		return
	}

	c.JSON(http.StatusAccepted, retry)
}

// ListSyncErrors lists rows from the error registry.
// @Summary List sync errors
// @Description List deduplicated sync errors for an organization
// @Tags errors
// @Accept json
// @Produce json
// @Param org query string true "Organization ID"
// @Param unresolved query bool false "Only unresolved errors" default(true)
// @Param limit query int false "Maximum rows to return" default(50)
// @Success 200 {array} models.SyncError
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sync/errors [get]
func (h *Handler) ListSyncErrors(c *gin.Context) {
	orgID := c.Query("org")
	if orgID == "" {
		respondWithError(c, http.StatusBadRequest, "Missing org parameter")
		return
	}

	limit, err := getIntQueryParam(c, "limit", 50)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "Invalid limit parameter")
		return
	}

	unresolvedOnly := c.DefaultQuery("unresolved", "true") == "true"

	errs, err := h.store.ListSyncErrors(c.Request.Context(), orgID, unresolvedOnly, limit)
	if err != nil {
		h.respondWithAppError(c, err, "Failed to list sync errors")
		return
	}

	c.JSON(http.StatusOK, errs)
}

// ResolveSyncError marks an error registry row resolved.
// @Summary Resolve a sync error
// @Description Mark an error registry row as resolved
// @Tags errors
// @Accept json
// @Produce json
// @Param org query string true "Organization ID"
// @Param id path string true "Error ID"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sync/errors/{id}/resolve [post]
func (h *Handler) ResolveSyncError(c *gin.Context) {
	orgID := c.Query("org")
	if orgID == "" {
		respondWithError(c, http.StatusBadRequest, "Missing org parameter")
		return
	}

	if err := h.syncService.ResolveError(c.Request.Context(), orgID, c.Param("id")); err != nil {
		h.respondWithAppError(c, err, "Failed to resolve sync error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}

// ListEntityConfigs lists per-entity sync configuration.
// @Summary List entity sync configs
// @Description List the sync configuration rows for an organization
// @Tags configs
// @Accept json
// @Produce json
// @Param org query string true "Organization ID"
// @Success 200 {array} models.EntityConfig
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /entity-configs [get]
func (h *Handler) ListEntityConfigs(c *gin.Context) {
	orgID := c.Query("org")
	if orgID == "" {
		respondWithError(c, http.StatusBadRequest, "Missing org parameter")
		return
	}

	configs, err := h.store.ListEntityConfigs(c.Request.Context(), orgID)
	if err != nil {
		h.respondWithAppError(c, err, "Failed to list entity configs")
		return
	}

	c.JSON(http.StatusOK, configs)
}

// PatchEntityConfig updates fields of one entity sync config.
// @Summary Patch an entity sync config
// @Description Update the editable fields of one entity sync configuration
// @Tags configs
// @Accept json
// @Produce json
// @Param org query string true "Organization ID"
// @Param entityType path string true "Entity type"
// @Param patch body EntityConfigPatch true "Fields to update"
// @Success 200 {object} models.EntityConfig
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /entity-configs/{entityType} [patch]
func (h *Handler) PatchEntityConfig(c *gin.Context) {
	orgID := c.Query("org")
	if orgID == "" {
		respondWithError(c, http.StatusBadRequest, "Missing org parameter")
		return
	}

	entityType := models.EntityType(c.Param("entityType"))
	if !models.IsKnown(entityType) {
		respondWithError(c, http.StatusBadRequest, "Unknown entity type")
		return
	}

	var patch EntityConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	cfg, err := h.store.GetEntityConfig(c.Request.Context(), orgID, entityType)
	if err != nil {
		h.respondWithAppError(c, err, "Failed to get entity config")
		return
	}
	if cfg == nil {
		respondWithError(c, http.StatusNotFound, "Entity config not found")
		return
	}

	if patch.IsEnabled != nil {
		cfg.IsEnabled = *patch.IsEnabled
	}
	if patch.Direction != nil {
		cfg.Direction = models.SyncDirection(*patch.Direction)
	}
	if patch.Priority != nil {
		cfg.Priority = *patch.Priority
	}
	if patch.BatchSize != nil {
		cfg.BatchSize = *patch.BatchSize
	}
	if patch.FrequencyMins != nil {
		cfg.FrequencyMins = *patch.FrequencyMins
	}

	if err := h.store.UpdateEntityConfig(c.Request.Context(), cfg); err != nil {
		h.respondWithAppError(c, err, "Failed to update entity config")
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// Reconciliation generates a drift report for one entity type.
// @Summary Get a reconciliation report
// @Description Sample local records and classify drift against the mapping table
// @Tags reconciliation
// @Accept json
// @Produce json
// @Param org query string true "Organization ID"
// @Param entityType path string true "Entity type"
// @Param sample query int false "Sample size" default(50)
// @Success 200 {object} engine.DriftReport
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /reconciliation/{entityType} [get]
func (h *Handler) Reconciliation(c *gin.Context) {
	orgID := c.Query("org")
	if orgID == "" {
		respondWithError(c, http.StatusBadRequest, "Missing org parameter")
		return
	}

	entityType := models.EntityType(c.Param("entityType"))
	if !models.IsKnown(entityType) {
		respondWithError(c, http.StatusBadRequest, "Unknown entity type")
		return
	}

	sample, err := getIntQueryParam(c, "sample", 0)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "Invalid sample parameter")
		return
	}

	report, err := h.reporter.Report(c.Request.Context(), orgID, entityType, sample)
	if err != nil {
		h.respondWithAppError(c, err, "Failed to generate reconciliation report")
		return
	}

	c.JSON(http.StatusOK, report)
}

// Health reports liveness and the current breaker states.
// @Summary Health check
// @Description Liveness probe with current circuit breaker states
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"breakers": h.breakers.States(),
	})
}

// respondWithAppError maps classified application errors to HTTP statuses.
func (h *Handler) respondWithAppError(c *gin.Context, err error, fallback string) {
	switch {
	case apperrors.IsValidation(err):
		respondWithError(c, http.StatusBadRequest, err.Error())
	case apperrors.IsNotFound(err):
		respondWithError(c, http.StatusNotFound, err.Error())
	case apperrors.IsCircuitOpen(err):
		respondWithError(c, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.WithError(err).Error(fallback)
		respondWithError(c, http.StatusInternalServerError, fallback)
	}
}

func respondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, ErrorResponse{Error: message})
}

func getIntQueryParam(c *gin.Context, param string, defaultValue int) (int, error) {
	value := c.Query(param)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}
