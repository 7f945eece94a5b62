package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dom/dreamhome-studio/internal/api/middleware"
	"github.com/dom/dreamhome-studio/internal/domain"
	"github.com/dom/dreamhome-studio/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type DesignHandler struct {
	gallery    *service.GalleryService
	generation *service.GenerationService
	logger     *slog.Logger
}

func NewDesignHandler(gallery *service.GalleryService, generation *service.GenerationService, logger *slog.Logger) *DesignHandler {
	return &DesignHandler{
		gallery:    gallery,
		generation: generation,
		logger:     logger,
	}
}

type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

type CreateDesignRequest struct {
	Image  string `json:"image"`
	Prompt string `json:"prompt"`
}

type DesignResponse struct {
	ID        string    `json:"id,omitempty"`
	Image     string    `json:"image"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"createdAt"`
}

type DesignListResponse struct {
	Designs []DesignResponse `json:"designs"`
}

func toDesignResponse(d *domain.Design) DesignResponse {
	resp := DesignResponse{
		Image:     d.Image,
		Prompt:    d.Prompt,
		CreatedAt: d.CreatedAt,
	}
	if d.Persisted() {
		resp.ID = d.ID.String()
	}
	return resp
}

func (h *DesignHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	designs, err := h.gallery.List(r.Context(), userID)
	if err != nil {
		writeInternalError(w, h.logger, "list designs", err)
		return
	}

	resp := DesignListResponse{Designs: make([]DesignResponse, 0, len(designs))}
	for _, d := range designs {
		resp.Designs = append(resp.Designs, toDesignResponse(d))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *DesignHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req CreateDesignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid-request", "Invalid request body")
		return
	}

	design, err := h.gallery.Append(r.Context(), userID, &domain.Design{
		Image:  req.Image,
		Prompt: req.Prompt,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidDesign) {
			writeError(w, http.StatusBadRequest, "invalid-design", err.Error())
			return
		}
		writeInternalError(w, h.logger, "append design", err)
		return
	}

	writeJSON(w, http.StatusCreated, toDesignResponse(design))
}

func (h *DesignHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid-request", "Invalid request body")
		return
	}

	design, err := h.generation.Generate(r.Context(), req.Prompt)
	if err != nil {
		if errors.Is(err, service.ErrEmptyPrompt) {
			writeError(w, http.StatusBadRequest, "invalid-prompt", "Prompt is required")
			return
		}
		var genErr *domain.GenerationError
		if errors.As(err, &genErr) {
			writeGenerationError(w, genErr)
			return
		}
		writeInternalError(w, h.logger, "generate", err)
		return
	}

	writeJSON(w, http.StatusOK, toDesignResponse(design))
}

func (h *DesignHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	designID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid-id", "Invalid design id")
		return
	}

	if err := h.gallery.Remove(r.Context(), userID, designID); err != nil {
		writeInternalError(w, h.logger, "remove design", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
