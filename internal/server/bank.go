package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/digaomatias/mymascada/internal/bank"
	"github.com/digaomatias/mymascada/internal/chat"
	"github.com/digaomatias/mymascada/internal/common"
)

func (s *Server) handleCreateLinkToken(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		s.unavailable(w, "bank sync")
		return
	}
	var req struct {
		Provider string `json:"provider"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if req.Provider == "" {
		req.Provider = "plaid"
	}

	token, err := s.syncer.CreateLinkToken(r.Context(), userID(r), req.Provider)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"link_token": token})
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := s.storage.GetActiveBankConnections(r.Context(), userID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	dtos := make([]connectionDTO, len(conns))
	for i, c := range conns {
		dtos[i] = toConnectionDTO(c)
	}
	respondJSON(w, http.StatusOK, map[string]any{"connections": dtos})
}

func (s *Server) handleCompleteLink(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		s.unavailable(w, "bank sync")
		return
	}
	var req struct {
		AccountID   string `json:"account_id"`
		Provider    string `json:"provider"`
		PublicToken string `json:"public_token"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if req.AccountID == "" || req.PublicToken == "" {
		s.badRequest(w, "account_id and public_token are required")
		return
	}
	if req.Provider == "" {
		req.Provider = "plaid"
	}

	conn, err := s.syncer.CompleteLink(r.Context(), userID(r), req.AccountID, req.Provider, req.PublicToken)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toConnectionDTO(*conn))
}

func (s *Server) handleSyncConnection(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		s.unavailable(w, "bank sync")
		return
	}
	result, err := s.syncer.Sync(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSyncResultDTO(*result))
}

func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		s.unavailable(w, "bank sync")
		return
	}
	results, err := s.syncer.SyncAll(r.Context(), userID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	dtos := make([]syncResultDTO, len(results))
	for i, res := range results {
		dtos[i] = toSyncResultDTO(res)
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": dtos})
}

func (s *Server) handleListSyncLogs(w http.ResponseWriter, r *http.Request) {
	connID := mux.Vars(r)["id"]
	conn, err := s.storage.GetBankConnectionByID(r.Context(), connID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if conn.UserID != userID(r) {
		s.respondError(w, common.ErrNotFound)
		return
	}

	logs, err := s.storage.GetSyncLogs(r.Context(), connID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	dtos := make([]syncLogDTO, len(logs))
	for i, l := range logs {
		dtos[i] = syncLogDTO{
			ID:           l.ID,
			StartedAt:    l.StartedAt,
			FinishedAt:   l.FinishedAt,
			Imported:     l.Imported,
			Skipped:      l.Skipped,
			ErrorMessage: l.Error,
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"logs": dtos})
}

type syncResultDTO struct {
	ConnectionID string `json:"connection_id"`
	Imported     int    `json:"imported"`
	Skipped      int    `json:"skipped"`
	AutoApplied  int    `json:"auto_applied"`
	Candidates   int    `json:"candidates"`
}

func toSyncResultDTO(r bank.SyncResult) syncResultDTO {
	return syncResultDTO{
		ConnectionID: r.ConnectionID,
		Imported:     r.Imported,
		Skipped:      r.Skipped,
		AutoApplied:  r.AutoApplied,
		Candidates:   r.Candidates,
	}
}

type syncLogDTO struct {
	ID           int64      `json:"id"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Imported     int        `json:"imported"`
	Skipped      int        `json:"skipped"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// Chat

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		s.unavailable(w, "chat assistant")
		return
	}
	var req struct {
		Question string         `json:"question"`
		History  []chat.Message `json:"history"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	answer, err := s.assistant.Ask(r.Context(), userID(r), req.Question, req.History)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"answer": answer})
}
