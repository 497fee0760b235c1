package api

import (
	"net/http"
	"strings"

	"Agentica/internal/agent"
	xerrors "Agentica/internal/errors"
	"Agentica/internal/ledger"
	"Agentica/internal/room"
)

type provisionRequest struct {
	RoomID string `json:"room_id"`
}

type walletResponse struct {
	RoomID                  string `json:"room_id"`
	OwnerAccountName        string `json:"owner_account_name"`
	OwnerAddress            string `json:"owner_address"`
	CustodialAccountAddress string `json:"custodial_account_address"`
	Network                 string `json:"network"`
}

type dispatchRequest struct {
	Params map[string]any `json:"params"`
}

type messageRequest struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s *Server) handleProvisionWallet(w http.ResponseWriter, r *http.Request) {
	if s.deps.Wallets == nil {
		writeError(w, r, unavailable("wallet resolver"))
		return
	}
	var req provisionRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.RoomID) == "" {
		writeError(w, r, xerrors.New(xerrors.CodeInvalidArgument, "room_id is required"))
		return
	}
	identity, err := s.deps.Wallets.Provision(r.Context(), req.RoomID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, walletResponse{
		RoomID:                  identity.RoomID,
		OwnerAccountName:        identity.OwnerAccountName,
		OwnerAddress:            identity.OwnerAddress,
		CustodialAccountAddress: identity.CustodialAccountAddress,
		Network:                 identity.Network,
	})
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dispatcher == nil {
		writeError(w, r, unavailable("dispatcher"))
		return
	}
	var req dispatchRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Params == nil {
		req.Params = map[string]any{}
	}
	outcome, err := s.deps.Dispatcher.Dispatch(r.Context(), r.PathValue("room_id"), r.PathValue("action"), req.Params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleWalletTransactions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Wallets == nil || s.deps.History == nil {
		writeError(w, r, unavailable("ledger"))
		return
	}
	limit, offset, status, err := pagination(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	roomID := r.PathValue("room_id")
	if _, err := s.deps.Wallets.Resolve(r.Context(), roomID); err != nil {
		writeError(w, r, err)
		return
	}
	opts := []ledger.ListOption{ledger.WithLimit(limit), ledger.WithOffset(offset)}
	if status != "" {
		parsed, err := ledger.ParseStatus(status)
		if err != nil {
			writeError(w, r, err)
			return
		}
		opts = append(opts, ledger.WithStatuses(parsed))
	}
	page, err := s.deps.History.Query(r.Context(), roomID, opts...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	if s.deps.Agents == nil {
		writeError(w, r, unavailable("agent service"))
		return
	}
	var req agent.CreateRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.deps.Agents.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"agent":   created,
	})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Agents == nil {
		writeError(w, r, unavailable("agent service"))
		return
	}
	agents, err := s.deps.Agents.List(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"agents":  agents,
		"count":   len(agents),
	})
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if s.deps.Agents == nil {
		writeError(w, r, unavailable("agent service"))
		return
	}
	id := r.PathValue("agent_id")
	if err := s.deps.Agents.Delete(r.Context(), id, r.URL.Query().Get("user_id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"agent_id": id,
		"message":  "Agent deleted successfully",
	})
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	if s.deps.Rooms == nil {
		writeError(w, r, unavailable("room service"))
		return
	}
	var req room.CreateRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.deps.Rooms.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"room":    created,
	})
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	if s.deps.Rooms == nil {
		writeError(w, r, unavailable("room service"))
		return
	}
	rooms, err := s.deps.Rooms.List(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"rooms":   rooms,
		"count":   len(rooms),
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Rooms == nil {
		writeError(w, r, unavailable("room service"))
		return
	}
	var req messageRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.deps.Rooms.SendMessage(r.Context(), r.PathValue("room_id"), room.Message{
		Content:  req.Content,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleRoomTransactions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Rooms == nil {
		writeError(w, r, unavailable("room service"))
		return
	}
	limit, offset, status, err := pagination(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := s.deps.Rooms.Transactions(r.Context(), r.PathValue("room_id"), limit, offset, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
