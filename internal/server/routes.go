package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"engram/internal/engine"
	"engram/internal/export"
	"engram/internal/profile"
	"engram/internal/store"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"user_id"`
		SessionID string `json:"session_id"`
		UserName  string `json:"user_name"`
		Role      string `json:"role"`
		Content   string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Content == "" {
		http.Error(w, `{"error":"user_id and content required"}`, http.StatusBadRequest)
		return
	}
	if req.Role == "" {
		req.Role = "user"
	}
	if req.Role != "user" && req.Role != "assistant" {
		http.Error(w, `{"error":"role must be user or assistant"}`, http.StatusBadRequest)
		return
	}

	msg := &store.RawMessage{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		UserName:  req.UserName,
		Role:      req.Role,
		Content:   req.Content,
	}
	if err := s.engine.Ingest(msg); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": msg.ID, "status": "ok"})
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Query  string `json:"query"`
		TopK   int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, `{"error":"user_id required"}`, http.StatusBadRequest)
		return
	}

	results, gated, err := s.engine.Search(r.Context(), req.UserID, req.Query, req.TopK)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrIndexUnavailable) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, `{"error":"`+err.Error()+`"}`, status)
		return
	}

	type memoryResult struct {
		ID        string `json:"id"`
		Summary   string `json:"summary"`
		Relevance int    `json:"relevance"`
		Degraded  bool   `json:"degraded,omitempty"`
		CreatedAt string `json:"created_at"`
	}
	out := make([]memoryResult, 0, len(results))
	for _, res := range results {
		out = append(out, memoryResult{
			ID:        res.Record.ID,
			Summary:   res.Record.Summary,
			Relevance: res.Relevance,
			Degraded:  res.Degraded,
			CreatedAt: time.UnixMilli(res.Record.CreatedAt).Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"gated":    gated,
		"memories": out,
	})
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, `{"error":"user_id required"}`, http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	recs, err := s.db.ListIndexed(userID, limit)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	type memoryRow struct {
		ID          string  `json:"id"`
		Summary     string  `json:"summary"`
		ActiveScore float64 `json:"active_score"`
		CreatedAt   string  `json:"created_at"`
	}
	out := make([]memoryRow, 0, len(recs))
	for _, rec := range recs {
		out = append(out, memoryRow{
			ID:          rec.ID,
			Summary:     rec.Summary,
			ActiveScore: rec.ActiveScore,
			CreatedAt:   time.UnixMilli(rec.CreatedAt).Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"memories": out})
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	memoryID := chi.URLParam(r, "memoryID")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, `{"error":"user_id required"}`, http.StatusBadRequest)
		return
	}

	rec, err := s.engine.DeleteMemory(r.Context(), userID, memoryID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, `{"error":"`+err.Error()+`"}`, status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "deleted", "id": rec.ID})
}

func (s *Server) handleUndoDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, `{"error":"user_id required"}`, http.StatusBadRequest)
		return
	}

	rec, err := s.engine.UndoDelete(r.Context(), req.UserID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, `{"error":"`+err.Error()+`"}`, status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "restored", "id": rec.ID})
}

func (s *Server) handleSummarizeNow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, `{"error":"user_id required"}`, http.StatusBadRequest)
		return
	}

	if err := s.engine.Summarizer.SummarizeUser(r.Context(), req.UserID); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, `{"error":"user_id required"}`, http.StatusBadRequest)
		return
	}

	attrs, err := s.db.ListAttributes(userID)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	proposals, err := s.db.ListProposals(userID)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	recs, err := s.db.ListIndexed(userID, 0)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	type attrRow struct {
		Key           string `json:"key"`
		Value         string `json:"value"`
		Confirmations int    `json:"confirmations"`
	}
	type proposalRow struct {
		Key           string `json:"key"`
		Value         string `json:"value"`
		Confirmations int    `json:"confirmations"`
	}
	attrOut := make([]attrRow, 0, len(attrs))
	for _, a := range attrs {
		attrOut = append(attrOut, attrRow{Key: a.Key, Value: a.Value, Confirmations: a.Confirmations})
	}
	propOut := make([]proposalRow, 0, len(proposals))
	for _, p := range proposals {
		propOut = append(propOut, proposalRow{Key: p.Key, Value: p.Value, Confirmations: p.Confirmations})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"attributes": attrOut,
		"proposals":  propOut,
		"bond":       profile.Bond(attrs, len(recs)),
	})
}

func (s *Server) handleClearProfile(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, `{"error":"user_id required"}`, http.StatusBadRequest)
		return
	}
	if err := s.db.ClearUserProfile(userID); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "cleared"})
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	decayed, pruned, err := s.engine.Lifecycle.RunOnce(r.Context())
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"decayed": decayed,
		"pruned":  pruned,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, `{"error":"user_id required"}`, http.StatusBadRequest)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "jsonl"
	}

	msgs, err := s.db.ArchivedMessages(userID, 0, 0, 0)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	unarchived, err := s.db.UnarchivedMessages(userID)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	msgs = append(msgs, unarchived...)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt < msgs[j].CreatedAt })

	data, err := export.Messages(msgs, format)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}

	if format == "txt" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.Write(data)
}

func (s *Server) handleForgetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := s.engine.ForgetUser(r.Context(), userID); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "forgotten"})
}
