package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/streamauth"
	"github.com/MrEthical07/streamauth/middleware"
	"github.com/go-chi/chi/v5"
)

type viewerCountResponse struct {
	ContentID string `json:"contentId"`
	Count     int64  `json:"count"`
}

type presenceOp func(ctx context.Context, contentID, viewerID string) (int64, error)

func (h *Handler) startWatching(w http.ResponseWriter, r *http.Request) {
	h.presence(w, r, "start_watching", h.engine.StartWatching)
}

func (h *Handler) stopWatching(w http.ResponseWriter, r *http.Request) {
	h.presence(w, r, "stop_watching", h.engine.StopWatching)
}

func (h *Handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	h.presence(w, r, "heartbeat", h.engine.Heartbeat)
}

// presence runs op with the authenticated user as the viewer.
func (h *Handler) presence(w http.ResponseWriter, r *http.Request, operation string, op presenceOp) {
	auth, _ := middleware.AuthResultFromContext(r.Context())
	contentID := chi.URLParam(r, "contentID")

	n, err := op(r.Context(), contentID, auth.UserID)
	if err != nil {
		h.writeMappedError(r.Context(), w, operation, err)
		return
	}
	writeSuccess(w, http.StatusOK, viewerCountResponse{ContentID: contentID, Count: n})
}

func (h *Handler) viewerCount(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "contentID")

	n, err := h.engine.ViewerCount(r.Context(), contentID)
	if err != nil {
		h.writeMappedError(r.Context(), w, "viewer_count", err)
		return
	}
	writeSuccess(w, http.StatusOK, viewerCountResponse{ContentID: contentID, Count: n})
}

// viewerStream serves count updates as server-sent events. The current
// count is sent first, then every broadcast until the client goes away.
func (h *Handler) viewerStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contentID := chi.URLParam(r, "contentID")

	sub, err := h.engine.SubscribeViewers(ctx, contentID)
	if err != nil {
		h.writeMappedError(ctx, w, "viewer_stream", err)
		return
	}
	defer sub.Close()

	n, err := h.engine.ViewerCount(ctx, contentID)
	if err != nil {
		h.writeMappedError(ctx, w, "viewer_stream", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if err := writeEvent(w, streamauth.ViewerUpdate{ContentID: contentID, Count: n}); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
		case u, ok := <-sub.Updates:
			if !ok {
				return
			}
			if err := writeEvent(w, u); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, u streamauth.ViewerUpdate) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: viewers\ndata: %s\n\n", payload)
	return err
}
