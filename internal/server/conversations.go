package server

import (
	"net/http"

	"github.com/Veraticus/banktalk/internal/conversation"
	"github.com/Veraticus/banktalk/internal/model"
)

type conversationView struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Messages  []model.Message `json:"messages"`
	SmartMode bool            `json:"smartMode"`
}

func viewOf(o *conversation.Orchestrator) conversationView {
	return conversationView{
		ID:        o.ID(),
		UserID:    o.UserID(),
		SmartMode: o.SmartMode(),
		Messages:  o.Messages(),
	}
}

func (s *Server) conversation(w http.ResponseWriter, r *http.Request) (*conversation.Orchestrator, bool) {
	if s.cfg.Conversations == nil {
		writeError(w, http.StatusServiceUnavailable, "Conversations are not available")
		return nil, false
	}
	o, err := s.cfg.Conversations.Get(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return o, true
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Conversations == nil {
		writeError(w, http.StatusServiceUnavailable, "Conversations are not available")
		return
	}
	var body struct {
		UserID string `json:"userId"`
		Smart  bool   `json:"smart"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	o, err := s.cfg.Conversations.Create(r.Context(), body.UserID, body.Smart)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(o))
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Conversations == nil {
		writeError(w, http.StatusServiceUnavailable, "Conversations are not available")
		return
	}
	if err := s.cfg.Conversations.Remove(r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	o, ok := s.conversation(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(o))
}

// handleSubmitMessage accepts an utterance. Classification continues after
// the response is sent; the placeholder is updated over the stream.
func (s *Server) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	o, ok := s.conversation(w, r)
	if !ok {
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID, placeholderID, err := o.SubmitUtterance(r.Context(), body.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"userMessageId": userID,
		"placeholderId": placeholderID,
	})
}

func (s *Server) handleFollowUp(w http.ResponseWriter, r *http.Request) {
	o, ok := s.conversation(w, r)
	if !ok {
		return
	}
	var body struct {
		Entities map[string]any `json:"entities"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(body.Entities) == 0 {
		writeError(w, http.StatusBadRequest, "entities are required")
		return
	}

	placeholderID, err := o.SubmitFollowUpParameter(r.Context(), r.PathValue("messageId"), body.Entities)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"placeholderId": placeholderID})
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	o, ok := s.conversation(w, r)
	if !ok {
		return
	}
	var body struct {
		Smart *bool `json:"smart"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Smart == nil {
		writeError(w, http.StatusBadRequest, "smart is required")
		return
	}
	o.SetSmartMode(*body.Smart)
	writeJSON(w, http.StatusOK, map[string]bool{"smartMode": o.SmartMode()})
}
