package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"paperchat/internal/app"
	"paperchat/internal/httputil"
	"paperchat/internal/store"
)

type sessionResponse struct {
	ID         uuid.UUID   `json:"id"`
	Name       string      `json:"name"`
	PaperIDs   []uuid.UUID `json:"paper_ids"`
	LastActive time.Time   `json:"last_active"`
}

func toSessionResponse(s store.Session) sessionResponse {
	if s.PaperIDs == nil {
		s.PaperIDs = []uuid.UUID{}
	}
	return sessionResponse{ID: s.ID, Name: s.Name, PaperIDs: s.PaperIDs, LastActive: s.LastActive}
}

type createSessionRequest struct {
	Name     string   `json:"name" validate:"required,max=200"`
	PaperIDs []string `json:"paper_ids" validate:"omitempty,dive,uuid"`
}

func createSessionHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := httputil.TenantID(r)

		var req createSessionRequest
		if err := httputil.Decode(r, &req); err != nil {
			httputil.FailErr(deps.Log, w, "invalid payload", err)
			return
		}

		paperIDs := make([]uuid.UUID, 0, len(req.PaperIDs))
		for _, raw := range req.PaperIDs {
			id := uuid.MustParse(raw) // format checked by the uuid validate tag
			if _, err := deps.Store.GetDocument(r.Context(), tenant, id); err != nil {
				httputil.FailErr(deps.Log, w, "unknown paper in session", err)
				return
			}
			paperIDs = append(paperIDs, id)
		}

		sess, err := deps.Store.CreateSession(r.Context(), store.Session{
			TenantID: tenant,
			Name:     req.Name,
			PaperIDs: paperIDs,
		})
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to create session", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, toSessionResponse(sess))
	}
}

func listSessionsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := deps.Store.ListSessions(r.Context(), httputil.TenantID(r))
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to list sessions", err, http.StatusInternalServerError)
			return
		}
		out := make([]sessionResponse, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, toSessionResponse(s))
		}
		httputil.WriteJSON(w, http.StatusOK, out)
	}
}

func getSessionHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			httputil.FailErr(deps.Log, w, "invalid session id", err)
			return
		}
		sess, err := deps.Store.GetSession(r.Context(), httputil.TenantID(r), id)
		if err != nil {
			httputil.FailErr(deps.Log, w, "failed to load session", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, toSessionResponse(sess))
	}
}

type renameSessionRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

func renameSessionHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			httputil.FailErr(deps.Log, w, "invalid session id", err)
			return
		}
		var req renameSessionRequest
		if err := httputil.Decode(r, &req); err != nil {
			httputil.FailErr(deps.Log, w, "invalid payload", err)
			return
		}
		if err := deps.Store.RenameSession(r.Context(), httputil.TenantID(r), id, req.Name); err != nil {
			httputil.FailErr(deps.Log, w, "failed to rename session", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteSessionHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			httputil.FailErr(deps.Log, w, "invalid session id", err)
			return
		}
		if err := deps.Store.DeleteSession(r.Context(), httputil.TenantID(r), id); err != nil {
			httputil.FailErr(deps.Log, w, "failed to delete session", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type sessionPaperRequest struct {
	PaperID string `json:"paper_id" validate:"required,uuid"`
}

func addSessionPaperHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			httputil.FailErr(deps.Log, w, "invalid session id", err)
			return
		}
		var req sessionPaperRequest
		if err := httputil.Decode(r, &req); err != nil {
			httputil.FailErr(deps.Log, w, "invalid payload", err)
			return
		}
		tenant := httputil.TenantID(r)
		paperID := uuid.MustParse(req.PaperID)

		// Membership is tenant-checked: a paper id from another tenant
		// reads as not found here.
		if _, err := deps.Store.GetDocument(r.Context(), tenant, paperID); err != nil {
			httputil.FailErr(deps.Log, w, "unknown paper", err)
			return
		}
		if err := deps.Store.AddSessionPaper(r.Context(), tenant, id, paperID); err != nil {
			httputil.FailErr(deps.Log, w, "failed to add paper to session", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func removeSessionPaperHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			httputil.FailErr(deps.Log, w, "invalid session id", err)
			return
		}
		paperID, err := pathUUID(r, "paperID")
		if err != nil {
			httputil.FailErr(deps.Log, w, "invalid paper id", err)
			return
		}
		if err := deps.Store.RemoveSessionPaper(r.Context(), httputil.TenantID(r), id, paperID); err != nil {
			httputil.FailErr(deps.Log, w, "failed to remove paper from session", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type historyTurn struct {
	TurnID    string         `json:"turn_id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Sources   []store.Source `json:"sources,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func historyHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			httputil.FailErr(deps.Log, w, "invalid session id", err)
			return
		}
		tenant := httputil.TenantID(r)
		if _, err := deps.Store.GetSession(r.Context(), tenant, id); err != nil {
			httputil.FailErr(deps.Log, w, "failed to load session", err)
			return
		}

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 500 {
				httputil.Fail(deps.Log, w, "limit must be between 1 and 500", nil, http.StatusBadRequest)
				return
			}
			limit = n
		}

		turns, err := deps.Store.ListTurns(r.Context(), tenant, id, limit)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to load history", err, http.StatusInternalServerError)
			return
		}
		out := make([]historyTurn, 0, len(turns))
		for _, turn := range turns {
			out = append(out, historyTurn{
				TurnID:    turn.TurnID,
				Role:      turn.Role,
				Content:   turn.Content,
				Sources:   turn.Sources,
				CreatedAt: turn.CreatedAt,
			})
		}
		httputil.WriteJSON(w, http.StatusOK, out)
	}
}

func clearHistoryHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			httputil.FailErr(deps.Log, w, "invalid session id", err)
			return
		}
		tenant := httputil.TenantID(r)
		if _, err := deps.Store.GetSession(r.Context(), tenant, id); err != nil {
			httputil.FailErr(deps.Log, w, "failed to load session", err)
			return
		}
		if err := deps.Store.ClearTurns(r.Context(), tenant, id); err != nil {
			httputil.Fail(deps.Log, w, "failed to clear history", err, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type chatRequest struct {
	Question       string `json:"question" validate:"required,min=3,max=2000"`
	IncludeHistory *bool  `json:"include_history"`
}

// chatProxyHandler forwards chat requests to the answering service,
// carrying the tenant header through.
func chatProxyHandler(deps app.Deps) http.HandlerFunc {
	client := &http.Client{Timeout: 90 * time.Second}

	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			httputil.FailErr(deps.Log, w, "invalid session id", err)
			return
		}
		var req chatRequest
		if err := httputil.Decode(r, &req); err != nil {
			httputil.FailErr(deps.Log, w, "invalid payload", err)
			return
		}

		payload := map[string]any{
			"session_id": id.String(),
			"question":   req.Question,
		}
		if req.IncludeHistory != nil {
			payload["include_history"] = *req.IncludeHistory
		}
		body, err := json.Marshal(payload)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to build chat request", err, http.StatusInternalServerError)
			return
		}

		upstream, err := http.NewRequestWithContext(r.Context(), http.MethodPost,
			deps.Config.QueryURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to build chat request", err, http.StatusInternalServerError)
			return
		}
		upstream.Header.Set("Content-Type", "application/json")
		upstream.Header.Set(httputil.TenantHeader, httputil.TenantID(r))

		resp, err := client.Do(upstream)
		if err != nil {
			httputil.Fail(deps.Log, w, "answering service unavailable", err, http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			deps.Log.Warn("failed to stream chat response", "err", err)
		}
	}
}
