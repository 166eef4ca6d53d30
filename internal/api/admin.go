package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"chatdesk/internal/router"
	"chatdesk/internal/session"
	"chatdesk/pkg/types"
)

type ConversationsResponse struct {
	Conversations []types.Conversation `json:"conversations"`
}

type MessagesResponse struct {
	Messages []types.Message `json:"messages"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type MessageResponse struct {
	Message *types.Message `json:"message"`
}

type PriorityResponse struct {
	Success  bool           `json:"success"`
	Priority types.Priority `json:"priority"`
}

func (s *Server) adminConversations(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Conversations(r.Context(), types.FilterAll)
	if err != nil {
		s.fail(w, r, err, "Failed to get conversations", nil)
		return
	}
	writeOK(w, ConversationsResponse{Conversations: list})
}

func (s *Server) adminHistory(w http.ResponseWriter, r *http.Request) {
	convID, err := types.ParseID(chi.URLParam(r, "conversationId"))
	if err != nil {
		writeError(w, session.ClientMessage(session.ErrConversationIDRequired, ""))
		return
	}
	msgs, err := s.svc.ConversationHistory(r.Context(), convID)
	if err != nil {
		s.fail(w, r, err, "Failed to get chat history", logrus.Fields{"conversation_id": convID})
		return
	}
	writeOK(w, MessagesResponse{Messages: msgs})
}

func (s *Server) adminUnread(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.AdminUnread(r.Context())
	if err != nil {
		s.fail(w, r, err, "Failed to get unread count", nil)
		return
	}
	writeOK(w, CountResponse{Count: n})
}

func (s *Server) adminMarkRead(w http.ResponseWriter, r *http.Request) {
	s.markRead(w, r)
}

// adminMessage stores a reply. The owning customer's sockets get the
// message and every admin socket gets a fresh listing.
func (s *Server) adminMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err.Error())
		return
	}
	adminID := req.SenderID.Int64()

	if s.adminLimiter != nil && !s.adminLimiter.Admit(strconv.FormatInt(adminID, 10)) {
		s.fail(w, r, router.ErrRateLimited, "", logrus.Fields{"admin_id": adminID})
		return
	}

	msg, err := s.svc.SendAdminMessage(r.Context(), adminID, req.ConversationID.Int64(), req.Content, req.MediaURL)
	if err != nil {
		s.fail(w, r, err, "Failed to create message", logrus.Fields{
			"admin_id":        adminID,
			"conversation_id": req.ConversationID.Int64(),
		})
		return
	}
	writeOK(w, MessageResponse{Message: msg})
}

func (s *Server) adminPriority(w http.ResponseWriter, r *http.Request) {
	convID, err := types.ParseID(chi.URLParam(r, "conversationId"))
	if err != nil {
		writeError(w, session.ClientMessage(session.ErrConversationIDRequired, ""))
		return
	}
	var req PriorityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err.Error())
		return
	}
	p, err := s.svc.SetPriority(r.Context(), convID, req.Priority)
	if err != nil {
		s.fail(w, r, err, "Failed to update priority", logrus.Fields{"conversation_id": convID})
		return
	}
	writeOK(w, PriorityResponse{Success: true, Priority: p})
}

func (s *Server) adminFilter(w http.ResponseWriter, r *http.Request) {
	filter := types.ParseFilter(r.URL.Query().Get("filter"))
	list, err := s.svc.Conversations(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err, "Failed to filter conversations", logrus.Fields{"filter": filter})
		return
	}
	writeOK(w, ConversationsResponse{Conversations: list})
}

func (s *Server) adminSearch(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Search(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		s.fail(w, r, err, "Failed to search conversations", nil)
		return
	}
	writeOK(w, ConversationsResponse{Conversations: list})
}

// markRead serves PUT read/{messageId} for both roles. Admins reading over
// HTTP have no socket identity to exclude, so every admin is notified.
func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	msgID, err := types.ParseID(chi.URLParam(r, "messageId"))
	if err != nil {
		writeError(w, session.ClientMessage(session.ErrMessageIDRequired, ""))
		return
	}
	if err := s.svc.MarkRead(r.Context(), msgID, 0); err != nil {
		s.fail(w, r, err, "Failed to mark message as read", logrus.Fields{"message_id": msgID})
		return
	}
	writeOK(w, SuccessResponse{Success: true})
}
