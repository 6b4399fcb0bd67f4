package server

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skourtis/boomtown/internal/domain"
)

// handlePublicAsset handles GET /api/assets/{key...}: immutable public game
// art served with long-lived cache headers.
func (s *Server) handlePublicAsset(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	asset, err := s.assets.GetPublic(r.Context(), key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", asset.ContentType)
	w.Header().Set("Cache-Control", asset.CacheControl)
	if _, err := w.Write(asset.Body); err != nil {
		s.log.Debug().Err(err).Str("key", key).Msg("Asset write aborted")
	}
}

// handlePreviewAsset handles GET /api/admin/previews/{key}: private, never
// shared-cached.
func (s *Server) handlePreviewAsset(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	asset, err := s.assets.GetPreview(r.Context(), key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", asset.ContentType)
	w.Header().Set("Cache-Control", asset.CacheControl)
	if _, err := w.Write(asset.Body); err != nil {
		s.log.Debug().Err(err).Str("key", key).Msg("Preview write aborted")
	}
}

// handleUploadPreview handles POST /api/admin/previews/{key}.
func (s *Server) handleUploadPreview(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 10<<20))
	if err != nil {
		s.writeError(w, domain.E(domain.KindInvalidRequest, "preview too large"))
		return
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.assets.PutPreview(r.Context(), key, contentType, body); err != nil {
		s.writeError(w, err)
		return
	}
	s.audit.Record(currentUser(r).ID, "preview_uploaded", key, "")
	s.writeData(w, http.StatusCreated, map[string]string{"key": key})
}
