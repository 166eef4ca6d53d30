package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"chatdesk/pkg/types"
)

func (s *Server) customerHistory(w http.ResponseWriter, r *http.Request) {
	customerID, err := types.ParseID(chi.URLParam(r, "customerId"))
	if err != nil {
		writeError(w, "User ID is required")
		return
	}
	msgs, err := s.svc.CustomerHistory(r.Context(), customerID)
	if err != nil {
		s.fail(w, r, err, "Failed to get chat history", logrus.Fields{"customer_id": customerID})
		return
	}
	writeOK(w, MessagesResponse{Messages: msgs})
}

func (s *Server) customerUnread(w http.ResponseWriter, r *http.Request) {
	customerID, err := types.ParseID(chi.URLParam(r, "customerId"))
	if err != nil {
		writeError(w, "User ID is required")
		return
	}
	n, err := s.svc.CustomerUnread(r.Context(), customerID)
	if err != nil {
		s.fail(w, r, err, "Failed to get unread count", logrus.Fields{"customer_id": customerID})
		return
	}
	writeOK(w, CountResponse{Count: n})
}

func (s *Server) customerMarkRead(w http.ResponseWriter, r *http.Request) {
	s.markRead(w, r)
}

// customerMessage stores a message from sender_id, creating the
// conversation when none is given, and pushes it to every admin socket.
func (s *Server) customerMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err.Error())
		return
	}
	customerID := req.SenderID.Int64()
	msg, err := s.svc.SendCustomerMessage(r.Context(), customerID, req.ConversationID.Int64(), req.Content, req.MediaURL)
	if err != nil {
		s.fail(w, r, err, "Failed to create message", logrus.Fields{
			"customer_id":     customerID,
			"conversation_id": req.ConversationID.Int64(),
		})
		return
	}
	writeOK(w, MessageResponse{Message: msg})
}
