package server

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fitcheckhq/fitcheck/backend/internal/coach"
)

const (
	maxChatMessageLength    = 300
	maxConversationIDLength = 64
)

type chatHistoryPayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequestPayload struct {
	Message        string               `json:"message"`
	Intent         string               `json:"intent"`
	ConversationID string               `json:"conversationId"`
	ChatHistory    []chatHistoryPayload `json:"chatHistory"`
}

// sseSink streams chat events to the client. Headers go out on the first
// event, so failures before any output can still produce a JSON status.
type sseSink struct {
	context *gin.Context
	started bool
}

func (s *sseSink) emit(event string, data any) error {
	if err := s.context.Request.Context().Err(); err != nil {
		return err
	}
	if !s.started {
		s.context.Writer.Header().Set("Content-Type", "text/event-stream")
		s.context.Writer.Header().Set("Cache-Control", "no-cache")
		s.context.Writer.Header().Set("Connection", "keep-alive")
		s.started = true
	}
	s.context.SSEvent(event, data)
	s.context.Writer.Flush()
	return nil
}

func (s *sseSink) Intent(intent coach.Intent) error {
	return s.emit("intent", string(intent))
}

func (s *sseSink) Delta(text string) error {
	return s.emit("delta", text)
}

func (h *httpHandler) handleCoachChat(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var request chatRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	message := strings.TrimSpace(request.Message)
	if message == "" || utf8.RuneCountInString(message) > maxChatMessageLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_message"})
		return
	}
	if len(request.ConversationID) > maxConversationIDLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_conversation_id"})
		return
	}

	var intent *coach.Intent
	if request.Intent != "" {
		parsed, err := coach.ParseIntent(request.Intent)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_intent"})
			return
		}
		intent = &parsed
	}

	history := make([]coach.HistoryMessage, 0, len(request.ChatHistory))
	for _, entry := range request.ChatHistory {
		history = append(history, coach.HistoryMessage{Role: entry.Role, Content: entry.Content})
	}

	sink := &sseSink{context: c}
	conversationID, err := h.coach.Chat(c.Request.Context(), coach.ChatRequest{
		UserID:         userID,
		Message:        message,
		Intent:         intent,
		ConversationID: request.ConversationID,
		History:        history,
	}, sink)
	if err != nil {
		h.respondChatError(c, sink, err)
		return
	}

	if err := sink.emit("done", gin.H{"conversationId": conversationID}); err != nil {
		h.logger.Debug("client disconnected before done event", zap.Error(err))
	}
}

// respondChatError maps chat failures to JSON statuses when the stream has
// not started, and to a terminal error event when it has.
func (h *httpHandler) respondChatError(c *gin.Context, sink *sseSink, err error) {
	if sink.started {
		h.logger.Warn("chat stream aborted", zap.Error(err))
		if emitErr := sink.emit("error", gin.H{"error": err.Error()}); emitErr != nil {
			h.logger.Debug("client disconnected before error event", zap.Error(emitErr))
		}
		return
	}
	switch {
	case errors.Is(err, coach.ErrQuotaExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "quota_exceeded"})
	case errors.Is(err, coach.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation_not_found"})
	default:
		h.logger.Error("chat failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "chat_failed"})
	}
}

func (h *httpHandler) handleCoachQuota(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	quota, err := h.coach.Quota(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("quota lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "quota_failed"})
		return
	}
	c.JSON(http.StatusOK, quota)
}

func (h *httpHandler) handleConversationList(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	conversations, err := h.coach.Conversations(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("conversation list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	if conversations == nil {
		conversations = []coach.Conversation{}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

func (h *httpHandler) handleConversationGet(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	conversation, err := h.coach.Conversation(c.Request.Context(), userID, c.Param("id"))
	if errors.Is(err, coach.ErrConversationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("conversation lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	c.JSON(http.StatusOK, conversation)
}

func (h *httpHandler) handleConversationDelete(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	err := h.coach.DeleteConversation(c.Request.Context(), userID, c.Param("id"))
	if errors.Is(err, coach.ErrConversationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("conversation delete failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
