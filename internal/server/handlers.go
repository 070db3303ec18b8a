package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/waifuvault/WaifuFiles/internal/errvalues"
	"github.com/waifuvault/WaifuFiles/internal/restrictions"
	"github.com/waifuvault/WaifuFiles/internal/services"
	"github.com/waifuvault/WaifuFiles/internal/vault"
	"github.com/waifuvault/WaifuFiles/pkg/models"
)

type Server struct {
	uploads      *services.UploadService
	restrictions *restrictions.Service
	maxChunkSize int64
}

type Config struct {
	Uploads      *services.UploadService
	Restrictions *restrictions.Service
	MaxChunkSize int64
}

func New(cfg Config) *Server {
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = services.DefaultChunkSize
	}
	return &Server{
		uploads:      cfg.Uploads,
		restrictions: cfg.Restrictions,
		maxChunkSize: cfg.MaxChunkSize,
	}
}

// Routes builds the HTTP surface. cloudflareIPs switches client-IP
// resolution to the CF-Connecting-IP header.
func (s *Server) Routes(cloudflareIPs bool) http.Handler {
	r := chi.NewRouter()
	r.Use(ClientIPMiddleware(cloudflareIPs))
	r.Use(RequestIDMiddleware)
	r.Post("/upload", s.uploadHandler)
	r.Post("/upload/chunk", s.chunkHandler)
	r.Post("/upload/finalize", s.finalizeHandler)
	r.Post("/upload/cleanup", s.cleanupHandler)
	r.Get("/restrictions", s.restrictionsHandler)
	return r
}

func (s *Server) chunkHandler(w http.ResponseWriter, r *http.Request) {
	logger := slog.With(slog.String("req_id", requestID(r.Context())))

	// One extra MiB of form overhead beyond the chunk itself.
	if err := r.ParseMultipartForm(s.maxChunkSize + 1<<20); err != nil {
		logger.Error("chunk upload error", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Chunk upload failed")
		return
	}
	uploadID := r.FormValue("uploadId")
	chunk, header, err := r.FormFile("chunk")
	if err != nil {
		logger.Error("chunk upload error", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Chunk upload failed")
		return
	}
	defer chunk.Close()

	if header.Size > s.maxChunkSize {
		writeError(w, http.StatusRequestEntityTooLarge, "Chunk too large")
		return
	}

	chunkIndex, err := strconv.Atoi(r.FormValue("chunkIndex"))
	if err != nil {
		logger.Error("chunk upload with invalid index", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Chunk upload failed")
		return
	}
	totalChunks, err := strconv.Atoi(r.FormValue("totalChunks"))
	if err != nil {
		logger.Error("chunk upload with invalid total", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Chunk upload failed")
		return
	}

	err = s.uploads.SaveChunk(r.Context(), uploadID, chunkIndex, header.Size, chunk)
	if err != nil {
		if errors.Is(err, errvalues.ErrChunkTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Chunk too large")
			return
		}
		logger.Error("chunk upload error",
			slog.String("upload_id", uploadID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Chunk upload failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":     fmt.Sprintf("Chunk %d/%d uploaded", chunkIndex+1, totalChunks),
		"chunkIndex":  chunkIndex,
		"totalChunks": totalChunks,
	})
}

type finalizeRequest struct {
	UploadID string               `json:"uploadId"`
	Options  models.UploadOptions `json:"options"`
}

func (s *Server) finalizeHandler(w http.ResponseWriter, r *http.Request) {
	logger := slog.With(slog.String("req_id", requestID(r.Context())))

	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("finalize request with invalid body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	defer r.Body.Close()

	stored, err := s.uploads.Finalize(r.Context(), req.UploadID, req.Options)
	if err != nil {
		logger.Error("finalize upload error",
			slog.String("upload_id", req.UploadID),
			slog.String("error", err.Error()))
		if errors.Is(err, errvalues.ErrNoBucketToken) {
			writeError(w, http.StatusInternalServerError, "Bucket token not configured")
			return
		}
		status := httpStatusFromError(err)
		if status == http.StatusInternalServerError {
			writeJSON(w, status, map[string]any{
				"error":   "Failed to finalize upload",
				"details": err.Error(),
			})
			return
		}
		writeError(w, status, err.Error())
		return
	}
	logger.Info("upload finalized",
		slog.String("upload_id", req.UploadID),
		slog.String("url", stored.URL))
	writeJSON(w, http.StatusOK, stored)
}

type cleanupRequest struct {
	UploadID string `json:"uploadId"`
}

// cleanupHandler always answers {success: bool}; cleanup is best-effort by
// contract and never fails the caller.
func (s *Server) cleanupHandler(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UploadID == "" {
		writeJSON(w, http.StatusOK, map[string]any{"success": false})
		return
	}
	defer r.Body.Close()
	ok := s.uploads.Cleanup(r.Context(), req.UploadID)
	writeJSON(w, http.StatusOK, map[string]any{"success": ok})
}

// uploadHandler forwards a whole file to the vault in one request, for
// clients that skip the chunked path.
func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	logger := slog.With(slog.String("req_id", requestID(r.Context())))

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	opts := models.UploadOptions{Filename: header.Filename}
	if raw := r.FormValue("options"); raw != "" {
		if err = json.Unmarshal([]byte(raw), &opts); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid options format")
			return
		}
		if opts.Filename == "" {
			opts.Filename = header.Filename
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		logger.Error("error reading upload body", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Upload failed")
		return
	}

	stored, err := s.uploads.Upload(r.Context(), data, opts)
	if err != nil {
		if errors.Is(err, errvalues.ErrInvalidExpiry) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var ve *vault.Error
		if errors.As(err, &ve) {
			writeJSON(w, ve.Status, map[string]any{
				"error":  ve.Message,
				"name":   ve.Name,
				"status": ve.Status,
			})
			return
		}
		logger.Error("upload error", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Upload failed")
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) restrictionsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, s-maxage=3600, stale-while-revalidate=86400")
	writeJSON(w, http.StatusOK, s.restrictions.Get(r.Context()))
}
