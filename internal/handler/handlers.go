// Package handler provides HTTP request handlers for the node manager API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	managererrors "github.com/sayfpack13/TrustQuery-sub002/internal/errors"
	"github.com/sayfpack13/TrustQuery-sub002/internal/metrics"
	"github.com/sayfpack13/TrustQuery-sub002/internal/model"
	"github.com/sayfpack13/TrustQuery-sub002/internal/service"
	"go.uber.org/zap"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	orchestrator *service.Orchestrator
	metrics      *metrics.Metrics
	logger       *zap.Logger
	timeout      time.Duration
	// validateTimeout budgets pure validation calls, which never touch
	// the filesystem and should fail fast
	validateTimeout time.Duration
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(orchestrator *service.Orchestrator, m *metrics.Metrics, logger *zap.Logger, timeout, validateTimeout time.Duration) *Handlers {
	if validateTimeout <= 0 {
		validateTimeout = timeout
	}
	return &Handlers{
		orchestrator:    orchestrator,
		metrics:         m,
		logger:          logger,
		timeout:         timeout,
		validateTimeout: validateTimeout,
	}
}

// validateRequest is the body of POST /v1/nodes/validate.
type validateRequest struct {
	Node         *model.NodeConfig `json:"node"`
	OriginalName string            `json:"original_name,omitempty"`
}

// moveRequest is the body of POST /v1/nodes/{name}/move.
type moveRequest struct {
	TargetBasePath string `json:"target_base_path"`
	PreserveData   *bool  `json:"preserve_data"`
}

// copyRequest is the body of POST /v1/nodes/{name}/copy.
type copyRequest struct {
	NewName        string `json:"new_name"`
	TargetBasePath string `json:"target_base_path"`
	CopyData       bool   `json:"copy_data"`
}

// lifecycleResponse acknowledges an accepted start or stop command.
type lifecycleResponse struct {
	Node     string `json:"node"`
	Action   string `json:"action"`
	Accepted bool   `json:"accepted"`
}

// conflictResponse is the 409 body for a rejected create/update/copy: the
// error plus the full validation result so the caller can self-correct.
type conflictResponse struct {
	Error      *errorBody              `json:"error"`
	Validation *model.ValidationResult `json:"validation"`
}

type errorBody struct {
	Code      int                    `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// ListNodes handles GET /v1/nodes requests.
func (h *Handlers) ListNodes(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.opContext(r)
	defer cancel()

	refresh := r.URL.Query().Get("refresh") == "true"
	nodes, err := h.orchestrator.ListNodes(ctx, refresh)
	if err != nil {
		h.writeError(w, r, "list_nodes", err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"nodes": nodes})
}

// GetNode handles GET /v1/nodes/{name} requests.
func (h *Handlers) GetNode(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.opContext(r)
	defer cancel()

	node, err := h.orchestrator.GetNode(ctx, mux.Vars(r)["name"])
	if err != nil {
		h.writeError(w, r, "get_node", err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, node)
}

// CreateNode handles POST /v1/nodes requests.
func (h *Handlers) CreateNode(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.opContext(r)
	defer cancel()

	var candidate model.NodeConfig
	if err := json.NewDecoder(r.Body).Decode(&candidate); err != nil {
		h.writeError(w, r, "create_node", managererrors.InvalidArgument("invalid request body", err))
		return
	}

	node, result, err := h.orchestrator.CreateNode(ctx, &candidate)
	if err != nil {
		h.writeConflictOrError(w, r, "create_node", result, err)
		return
	}
	h.writeJSONResponse(w, http.StatusCreated, node)
}

// UpdateNode handles PUT /v1/nodes/{name} requests.
func (h *Handlers) UpdateNode(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.opContext(r)
	defer cancel()

	var candidate model.NodeConfig
	if err := json.NewDecoder(r.Body).Decode(&candidate); err != nil {
		h.writeError(w, r, "update_node", managererrors.InvalidArgument("invalid request body", err))
		return
	}

	node, result, err := h.orchestrator.UpdateNode(ctx, mux.Vars(r)["name"], &candidate)
	if err != nil {
		h.writeConflictOrError(w, r, "update_node", result, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, node)
}

// DeleteNode handles DELETE /v1/nodes/{name} requests.
func (h *Handlers) DeleteNode(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.opContext(r)
	defer cancel()

	if err := h.orchestrator.DeleteNode(ctx, mux.Vars(r)["name"]); err != nil {
		h.writeError(w, r, "delete_node", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ValidateNode handles POST /v1/nodes/validate requests. Conflicts are
// data, not failures: the response is 200 with the validation result.
func (h *Handlers) ValidateNode(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.validateTimeout)
	defer cancel()

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Node == nil {
		h.writeError(w, r, "validate_node", managererrors.InvalidArgument("invalid request body: a node object is required", err))
		return
	}

	result, err := h.orchestrator.Validate(ctx, req.Node, req.OriginalName)
	if err != nil {
		h.writeError(w, r, "validate_node", err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, result)
}

// StartNode handles POST /v1/nodes/{name}/start requests.
func (h *Handlers) StartNode(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.opContext(r)
	defer cancel()

	name := mux.Vars(r)["name"]
	if err := h.orchestrator.StartNode(ctx, name); err != nil {
		h.writeError(w, r, "start_node", err)
		return
	}
	h.writeJSONResponse(w, http.StatusAccepted, lifecycleResponse{Node: name, Action: "start", Accepted: true})
}

// StopNode handles POST /v1/nodes/{name}/stop requests.
func (h *Handlers) StopNode(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.opContext(r)
	defer cancel()

	name := mux.Vars(r)["name"]
	if err := h.orchestrator.StopNode(ctx, name); err != nil {
		h.writeError(w, r, "stop_node", err)
		return
	}
	h.writeJSONResponse(w, http.StatusAccepted, lifecycleResponse{Node: name, Action: "stop", Accepted: true})
}

// MoveNode handles POST /v1/nodes/{name}/move requests. preserve_data is
// required so data loss is always an explicit choice.
func (h *Handlers) MoveNode(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.opContext(r)
	defer cancel()

	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, "move_node", managererrors.InvalidArgument("invalid request body", err))
		return
	}
	if req.TargetBasePath == "" {
		h.writeError(w, r, "move_node", managererrors.InvalidArgument("target_base_path is required", nil))
		return
	}
	if req.PreserveData == nil {
		h.writeError(w, r, "move_node", managererrors.InvalidArgument("preserve_data must be set explicitly; false discards the node's data", nil))
		return
	}

	node, err := h.orchestrator.MoveNode(ctx, mux.Vars(r)["name"], req.TargetBasePath, *req.PreserveData)
	if err != nil {
		h.writeError(w, r, "move_node", err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, node)
}

// CopyNode handles POST /v1/nodes/{name}/copy requests.
func (h *Handlers) CopyNode(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.opContext(r)
	defer cancel()

	var req copyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, "copy_node", managererrors.InvalidArgument("invalid request body", err))
		return
	}
	if req.NewName == "" || req.TargetBasePath == "" {
		h.writeError(w, r, "copy_node", managererrors.InvalidArgument("new_name and target_base_path are required", nil))
		return
	}

	node, result, err := h.orchestrator.CopyNode(ctx, mux.Vars(r)["name"], req.NewName, req.TargetBasePath, req.CopyData)
	if err != nil {
		h.writeConflictOrError(w, r, "copy_node", result, err)
		return
	}
	h.writeJSONResponse(w, http.StatusCreated, node)
}

// ListClusters handles GET /v1/clusters requests.
func (h *Handlers) ListClusters(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.opContext(r)
	defer cancel()

	clusters, err := h.orchestrator.Clusters(ctx)
	if err != nil {
		h.writeError(w, r, "list_clusters", err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"clusters": clusters})
}

func (h *Handlers) opContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.timeout)
}

// writeConflictOrError attaches the validation result to conflict
// rejections so one round trip carries both the verdict and the fixes.
func (h *Handlers) writeConflictOrError(w http.ResponseWriter, r *http.Request, operation string, result *model.ValidationResult, err error) {
	var me *managererrors.ManagerError
	if result != nil && errors.As(err, &me) && me.Code == managererrors.ErrCodeConflict {
		if h.metrics != nil {
			h.metrics.RecordError(operation, "conflict")
		}
		h.writeJSONResponse(w, http.StatusConflict, conflictResponse{
			Error:      h.errorBodyFor(r, me),
			Validation: result,
		})
		return
	}
	h.writeError(w, r, operation, err)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := managererrors.HTTPStatusFor(err)

	var me *managererrors.ManagerError
	if !errors.As(err, &me) {
		me = managererrors.InternalError("internal error", err)
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("operation", operation),
			zap.Int("status", status),
			zap.Error(err))
	} else {
		h.logger.Warn("request rejected",
			zap.String("operation", operation),
			zap.Int("status", status),
			zap.Error(err))
	}
	if h.metrics != nil {
		h.metrics.RecordError(operation, http.StatusText(status))
	}

	h.writeJSONResponse(w, status, map[string]interface{}{"error": h.errorBodyFor(r, me)})
}

func (h *Handlers) errorBodyFor(r *http.Request, me *managererrors.ManagerError) *errorBody {
	body := &errorBody{
		Code:      int(me.Code),
		Message:   me.Message,
		RequestID: r.Header.Get("X-Request-ID"),
	}
	if len(me.Details) > 0 {
		body.Details = me.Details
	}
	return body
}

// writeJSONResponse writes a JSON response to the HTTP response writer.
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
