package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/verdantlogic/greenhouse-core/internal/audit"
)

// createGreenhouseRequest is the request body for POST /api/greenhouses.
type createGreenhouseRequest struct {
	GreenhouseName     string   `json:"greenhouse_name"`
	MainModuleID       string   `json:"main_module_id"`
	SecondaryModuleIDs []string `json:"secondary_module_ids"`
}

// handleCreateGreenhouse groups the caller's modules under a new greenhouse.
// The main module's targets are copied onto every secondary as it joins.
// The whole operation is atomic: any rejected module leaves no greenhouse
// and no grouping behind.
func (s *Server) handleCreateGreenhouse(w http.ResponseWriter, r *http.Request) {
	var req createGreenhouseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	gh, err := s.greenhouses.Create(r.Context(), userID(r), req.GreenhouseName, req.MainModuleID, req.SecondaryModuleIDs)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.recordActivity(r.Context(), userID(r), audit.ActionCreateGroup, "greenhouse", gh.ID, map[string]any{"name": gh.Name})

	writeJSON(w, http.StatusCreated, gh)
}

// handleListUserGreenhouses returns the caller's greenhouses.
func (s *Server) handleListUserGreenhouses(w http.ResponseWriter, r *http.Request) {
	greenhouses, err := s.greenhouses.ListByOwner(r.Context(), userID(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"greenhouses": greenhouses, "count": len(greenhouses)})
}

// handleGetGreenhouse returns a greenhouse with its member modules.
func (s *Server) handleGetGreenhouse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	gh, err := s.greenhouses.GetByID(r.Context(), id, userID(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	members, err := s.modules.ListByGreenhouse(r.Context(), gh.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"greenhouse": gh, "modules": members})
}

// handleDeleteGreenhouse dissolves a greenhouse. Members become ungrouped
// but keep their targets; favourite pointers at the greenhouse are cleared.
func (s *Server) handleDeleteGreenhouse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.greenhouses.Delete(r.Context(), id, userID(r)); err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.recordActivity(r.Context(), userID(r), audit.ActionDeleteGroup, "greenhouse", id, nil)

	writeJSON(w, http.StatusOK, map[string]any{"greenhouse_id": id, "deleted": true})
}

// handleSetMainModule promotes a member to main. The new main's targets are
// pushed onto every other member in the same transaction.
func (s *Server) handleSetMainModule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		MainModuleID string `json:"main_module_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	uid := userID(r)
	if err := s.greenhouses.SetMainModule(r.Context(), id, uid, req.MainModuleID); err != nil {
		s.writeDomainError(w, err)
		return
	}

	gh, err := s.greenhouses.GetByID(r.Context(), id, uid)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.recordActivity(r.Context(), uid, audit.ActionPromoteMain, "greenhouse", id, map[string]any{"main_module_id": req.MainModuleID})

	writeJSON(w, http.StatusOK, gh)
}
