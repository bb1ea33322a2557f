package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/bryan-buckman/rssdash/internal/config"
	"github.com/bryan-buckman/rssdash/internal/content"
	"github.com/bryan-buckman/rssdash/internal/model"
	"github.com/bryan-buckman/rssdash/internal/opml"
)

// maxUploadSize caps OPML uploads.
const maxUploadSize = 5 << 20

// --- Article Handlers ---

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	q, err := articleQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := s.store.GetArticlesByOptions(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleRandomArticle(w http.ResponseWriter, r *http.Request) {
	var folder *string
	if r.URL.Query().Has("folder") {
		folder = lo.ToPtr(r.URL.Query().Get("folder"))
	}
	item, err := s.store.GetRandomItem(r.Context(), folder)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	item, err := s.store.GetItemByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleNextArticle(w http.ResponseWriter, r *http.Request) {
	s.navigate(w, r, s.store.GetNextArticle)
}

func (s *Server) handlePrevArticle(w http.ResponseWriter, r *http.Request) {
	s.navigate(w, r, s.store.GetPrevArticle)
}

func (s *Server) navigate(w http.ResponseWriter, r *http.Request, step func(context.Context, string, model.ArticleQuery) (*model.Article, error)) {
	q, err := articleQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	item, err := step(r.Context(), chi.URLParam(r, "id"), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleArticleBlocks(w http.ResponseWriter, r *http.Request) {
	item, err := s.store.GetItemByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	blocks := content.Decompose(item.Content)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     item.ID,
		"blocks": blocks,
		"toc":    content.TableOfContents(blocks),
	})
}

func (s *Server) handleSetRead(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Read *bool `json:"read"`
	}{}
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	read := lo.FromPtrOr(req.Read, true)
	id := chi.URLParam(r, "id")
	if err := s.store.SetReadStatus(r.Context(), id, read); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "isRead": read})
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fav, err := s.store.ToggleFavorite(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "isFavorite": fav})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, model.Errorf(model.EINVALID, "invalid request body"))
		return
	}
	n, err := s.store.MarkItemsRead(r.Context(), req.IDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "marked": n})
}

func (s *Server) handleFavorites(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.GetFavoriteItems(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// --- Feed Handlers ---

func (s *Server) handleFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.store.GetAllFeeds(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feeds)
}

func (s *Server) handleFolderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetItemStatsByFolder(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSidebar(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.store.GetAllFeeds(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := s.store.GetItemStatsByFolder(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"folders": stats,
		"feeds":   feeds,
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings := map[string]interface{}{
		"database":        s.store.DatabaseType(),
		"highConcurrency": s.store.SupportsHighConcurrency(),
	}
	if s.poller != nil {
		settings["pollingInterval"] = int(s.poller.Interval().Minutes())
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sources, err := s.sources.Load()
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()

	result, err := s.syncer.SyncAll(ctx, sources)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	sources, err := s.sources.Load()
	if err != nil {
		writeError(w, r, err)
		return
	}
	urls := lo.Map(sources, func(src model.FeedSource, _ int) string { return src.URL })
	deleted, err := s.store.CleanupOrphanedFeeds(r.Context(), urls)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "deleted": deleted})
}

func (s *Server) handleImportOPML(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, _, err := r.FormFile("opml")
	if err != nil {
		writeError(w, r, model.Errorf(model.EINVALID, "no file provided"))
		return
	}
	defer file.Close()

	imported, err := opml.Parse(file)
	if err != nil {
		writeError(w, r, err)
		return
	}

	existing, err := s.sources.Load()
	if err != nil && !model.IsNotFound(err) {
		writeError(w, r, err)
		return
	}
	merged, added := config.MergeSources(existing, imported)
	if err := s.sources.Save(merged); err != nil {
		writeError(w, r, err)
		return
	}
	log.WithFields(log.Fields{"imported": added, "total": len(imported)}).Info("OPML import")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"imported": added,
		"total":    len(imported),
	})
}

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	sources, err := s.sources.Load()
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := opml.Export(config.ExportTitle, sources)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", "attachment; filename=rssdash-feeds.opml")
	_, _ = w.Write(data)
}

// --- Helpers ---

// articleQuery reads the folder, read and order query parameters. An absent
// parameter does not filter; folder= (empty) selects articles without folder.
func articleQuery(r *http.Request) (model.ArticleQuery, error) {
	values := r.URL.Query()
	var q model.ArticleQuery
	if values.Has("folder") {
		q.Folder = lo.ToPtr(values.Get("folder"))
	}
	if raw := values.Get("read"); raw != "" {
		read, err := strconv.ParseBool(raw)
		if err != nil {
			return q, model.Errorf(model.EINVALID, "invalid read filter %q", raw)
		}
		q.IsRead = &read
	}
	order, err := model.ParseOrder(values.Get("order"))
	if err != nil {
		return q, err
	}
	q.OrderBy = order
	return q, nil
}

// decodeOptional decodes a JSON body into v. An empty body leaves v as is.
func decodeOptional(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return model.Errorf(model.EINVALID, "invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}

// writeError maps application error codes onto HTTP statuses. Internal
// errors are logged and hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch model.ErrorCode(err) {
	case model.ENOTFOUND:
		status = http.StatusNotFound
	case model.EINVALID:
		status = http.StatusBadRequest
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		log.WithFields(log.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"path":       r.URL.Path,
		}).WithError(err).Error("Request failed")
	}
	writeJSON(w, status, map[string]string{"error": model.ErrorMessage(err)})
}
