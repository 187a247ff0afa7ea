package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/pinpincloud/internal/errors"
	"github.com/pinpincloud/internal/logging"
	"github.com/pinpincloud/internal/service"
	"github.com/pinpincloud/internal/types"
)

// handleSession handles GET /api/session - ensure role, plan and directory entry
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	session, err := s.deps.Accounts.Bootstrap(r.Context(), principal)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

// handleGetPlan handles GET /api/plan
func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	plan, err := s.deps.Plans.GetPlan(r.Context(), principal.UserID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, plan)
}

// handleActivatePlan handles POST /api/plan/activate - redeem a premium key
func (s *Server) handleActivatePlan(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req struct {
		Key string `json:"key"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondInvalidBody(w)
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		respondServiceError(w, r, errors.NewInvalidParameterError("key", "is required"))
		return
	}

	plan, err := s.deps.Keys.Redeem(r.Context(), principal, req.Key)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	// The new plan moves the user to another rate limit tier
	s.rateLimiter.Reset(principal.UserID)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"plan":    plan,
	})
}

// handleUserStats handles GET /api/stats
func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	stats, err := s.deps.Stats.UserStats(r.Context(), principal.UserID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// handleAdminStats handles GET /api/admin/stats
func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	stats, err := s.deps.Stats.AdminStats(r.Context(), principal)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// handleListUsers handles GET /api/admin/users
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	users, err := s.deps.Accounts.ListUsers(r.Context(), principal)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
		"count": len(users),
	})
}

// handleUpdateRole handles PUT /api/admin/users/{id}/role
func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req struct {
		Role types.Role `json:"role"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondInvalidBody(w)
		return
	}

	targetID := mux.Vars(r)["id"]
	if err := s.deps.Accounts.UpdateRole(r.Context(), principal, targetID, req.Role); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"userId":  targetID,
		"role":    req.Role,
	})
}

// handleDeleteUser handles DELETE /api/admin/users/{id}
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	targetID := mux.Vars(r)["id"]
	if err := s.deps.Accounts.DeleteUser(r.Context(), principal, targetID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"userId":  targetID,
	})
}

// handleListKeys handles GET /api/keys
func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	keys, err := s.deps.Keys.List(r.Context(), principal)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"keys":  keys,
		"count": len(keys),
	})
}

// handleKeyStats handles GET /api/keys/stats
func (s *Server) handleKeyStats(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	stats, err := s.deps.Keys.Stats(r.Context(), principal)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// generateKeyResponse is the body of POST /api/keys/generate
type generateKeyResponse struct {
	Success bool   `json:"success"`
	Key     string `json:"key,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
}

// handleGenerateKey handles POST /api/keys/generate
func (s *Server) handleGenerateKey(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var input service.GenerateKeyInput
	if err := parseJSONBody(r, &input); err != nil {
		respondJSON(w, http.StatusBadRequest, generateKeyResponse{
			Error:   ErrCodeInvalidInput,
			Message: "Invalid request body",
		})
		return
	}

	key, err := s.deps.Keys.Generate(r.Context(), principal, &input)
	if err != nil {
		catErr := errors.Categorize(err)
		if errors.IsSystemError(catErr) {
			logging.FromContext(r.Context()).WithError(err).Error("Key generation failed")
		}
		respondJSON(w, catErr.StatusCode, generateKeyResponse{
			Error:   catErr.Code,
			Message: catErr.Message,
		})
		return
	}

	respondJSON(w, http.StatusCreated, generateKeyResponse{
		Success: true,
		Key:     key.Key,
		Message: "Premium key generated",
	})
}

// handleDeleteKey handles DELETE /api/keys/{key}
func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	code := mux.Vars(r)["key"]
	if err := s.deps.Keys.Delete(r.Context(), principal, code); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"key":     code,
	})
}

// handleGetMaintenance handles GET /api/maintenance
func (s *Server) handleGetMaintenance(w http.ResponseWriter, r *http.Request) {
	record, err := s.deps.Maintenance.Get(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, record)
}

// handleUpdateMaintenance handles PUT /api/maintenance
func (s *Server) handleUpdateMaintenance(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var input service.UpdateMaintenanceInput
	if err := parseJSONBody(r, &input); err != nil {
		respondInvalidBody(w)
		return
	}

	record, err := s.deps.Maintenance.Update(r.Context(), principal, &input)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, record)
}
