// Package chats implements the AI assistant endpoints: conversation CRUD and
// message turns, with optional server-sent-event streaming of the answer.
package chats

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/grooshub/grooshub/internal/crypto"
	"github.com/grooshub/grooshub/internal/db/models"
	"github.com/grooshub/grooshub/internal/db/repositories"
	"github.com/grooshub/grooshub/internal/middleware"
	"github.com/grooshub/grooshub/internal/rag"
)

// historyLimit bounds how many prior messages are replayed to the model.
const historyLimit = 30

// maxTitleLen is the auto-title truncation length in runes.
const maxTitleLen = 80

// Handlers bundles the chat endpoints.
type Handlers struct {
	chats  *repositories.ChatRepository
	orgs   *repositories.OrganizationRepository
	agent  *rag.Agent
	cipher *crypto.TokenCipher
}

// NewHandlers creates the chat handlers. cipher decrypts the per-tenant AI
// provider key when one is configured.
func NewHandlers(
	chats *repositories.ChatRepository,
	orgs *repositories.OrganizationRepository,
	agent *rag.Agent,
	cipher *crypto.TokenCipher,
) *Handlers {
	return &Handlers{chats: chats, orgs: orgs, agent: agent, cipher: cipher}
}

type createChatRequest struct {
	Title string `json:"title"`
}

// Create handles POST /api/v1/organizations/:orgId/projects/:projectId/chats
func (h *Handlers) Create(c *gin.Context) {
	user := middleware.CurrentUser(c)
	project := middleware.CurrentProject(c)

	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	chat := &models.Chat{
		ProjectID: project.ID,
		UserID:    user.ID,
		Title:     strings.TrimSpace(req.Title),
	}
	if err := h.chats.Create(c.Request.Context(), chat); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create chat"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"chat": chat})
}

// List handles GET /api/v1/organizations/:orgId/projects/:projectId/chats
// Chats are private to their creator.
func (h *Handlers) List(c *gin.Context) {
	user := middleware.CurrentUser(c)
	project := middleware.CurrentProject(c)
	limit, offset := pagination(c)

	chats, err := h.chats.ListByProjectAndUser(c.Request.Context(), project.ID, user.ID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list chats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"chats": chats,
		"meta":  gin.H{"limit": limit, "offset": offset},
	})
}

// Get handles GET /api/v1/organizations/:orgId/projects/:projectId/chats/:chatId
// Returns the chat with its message history.
func (h *Handlers) Get(c *gin.Context) {
	chat := h.ownedChat(c)
	if chat == nil {
		return
	}

	messages, err := h.chats.ListMessages(c.Request.Context(), chat.ID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chat": chat, "messages": messages})
}

// Delete handles DELETE /api/v1/organizations/:orgId/projects/:projectId/chats/:chatId
func (h *Handlers) Delete(c *gin.Context) {
	chat := h.ownedChat(c)
	if chat == nil {
		return
	}

	if err := h.chats.Delete(c.Request.Context(), chat.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete chat"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chat deleted"})
}

type sendMessageRequest struct {
	Content string `json:"content" binding:"required"`

	// Model optionally overrides the default, e.g. "openai/gpt-4o".
	Model string `json:"model"`
}

// SendMessage handles POST /api/v1/organizations/:orgId/projects/:projectId/chats/:chatId/messages
//
// Runs one agent turn. With Accept: text/event-stream (or ?stream=true) the
// answer is streamed as SSE 'delta' events followed by one 'done' event;
// otherwise the complete turn is returned as JSON.
func (h *Handlers) SendMessage(c *gin.Context) {
	chat := h.ownedChat(c)
	if chat == nil {
		return
	}
	orgID := middleware.CurrentOrgID(c)

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	question := strings.TrimSpace(req.Content)
	if question == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message content cannot be empty"})
		return
	}

	history, err := h.chats.ListMessages(c.Request.Context(), chat.ID, historyLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load chat history"})
		return
	}

	orgKey, err := h.orgAPIKey(c, orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load organization AI settings"})
		return
	}

	userMsg := &models.Message{
		ChatID:  chat.ID,
		Role:    models.MessageRoleUser,
		Content: question,
	}
	if err := h.chats.CreateMessage(c.Request.Context(), userMsg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record message"})
		return
	}

	chatReq := rag.ChatRequest{
		OrgID:     orgID,
		ProjectID: chat.ProjectID,
		Model:     req.Model,
		Question:  question,
		History:   history,
		OrgAPIKey: orgKey,
	}

	if wantsSSE(c) {
		h.sendStreaming(c, chat, chatReq)
		return
	}

	result, err := h.agent.Chat(c.Request.Context(), chatReq, nil)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "The assistant failed to answer: " + err.Error()})
		return
	}

	assistantMsg := h.finishTurn(c, chat, chatReq.Question, result)
	c.JSON(http.StatusOK, gin.H{
		"message":  assistantMsg,
		"category": result.Category,
		"model":    result.Model,
	})
}

// sendStreaming runs the agent turn while relaying answer chunks as SSE.
func (h *Handlers) sendStreaming(c *gin.Context, chat *models.Chat, chatReq rag.ChatRequest) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming unsupported"})
		return
	}

	stream := func(chunk string) {
		writeSSE(c, flusher, "delta", gin.H{"text": chunk})
	}

	result, err := h.agent.Chat(c.Request.Context(), chatReq, stream)
	if err != nil {
		writeSSE(c, flusher, "error", gin.H{"error": err.Error()})
		return
	}

	assistantMsg := h.finishTurn(c, chat, chatReq.Question, result)
	writeSSE(c, flusher, "done", gin.H{
		"message":  assistantMsg,
		"category": result.Category,
		"model":    result.Model,
	})
}

// finishTurn persists the assistant message, bumps the chat timestamp, and
// titles a fresh chat after its first question. Persistence failures are not
// surfaced; the answer was already produced.
func (h *Handlers) finishTurn(c *gin.Context, chat *models.Chat, question string, result *rag.ChatResult) *models.Message {
	assistantMsg := &models.Message{
		ChatID:   chat.ID,
		Role:     models.MessageRoleAssistant,
		Content:  result.Answer,
		Model:    result.Model,
		Category: result.Category,
	}
	if err := h.chats.CreateMessage(c.Request.Context(), assistantMsg); err != nil {
		_ = c.Error(fmt.Errorf("failed to record assistant message: %w", err))
	}
	if err := h.chats.Touch(c.Request.Context(), chat.ID); err != nil {
		_ = c.Error(fmt.Errorf("failed to touch chat: %w", err))
	}

	if chat.Title == "" {
		if title := truncateTitle(question); title != "" {
			if err := h.chats.UpdateTitle(c.Request.Context(), chat.ID, title); err != nil {
				_ = c.Error(fmt.Errorf("failed to set chat title: %w", err))
			}
		}
	}
	return assistantMsg
}

// orgAPIKey returns the decrypted per-tenant provider key, or nil when the
// organization uses the platform keys.
func (h *Handlers) orgAPIKey(c *gin.Context, orgID string) (*string, error) {
	org, err := h.orgs.GetByID(c.Request.Context(), orgID)
	if err != nil {
		return nil, err
	}
	if org == nil || org.AIAPIKeyEncrypted == nil {
		return nil, nil
	}
	key, err := h.cipher.Open(*org.AIAPIKeyEncrypted)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// ownedChat loads :chatId and verifies project scope and chat ownership.
// Writes the error response and returns nil when the chat is unavailable.
func (h *Handlers) ownedChat(c *gin.Context) *models.Chat {
	user := middleware.CurrentUser(c)
	project := middleware.CurrentProject(c)

	chat, err := h.chats.GetByID(c.Request.Context(), c.Param("chatId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load chat"})
		return nil
	}
	if chat == nil || chat.ProjectID != project.ID || chat.UserID != user.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Chat not found"})
		return nil
	}
	return chat
}

func wantsSSE(c *gin.Context) bool {
	if c.Query("stream") == "true" {
		return true
	}
	return strings.Contains(c.GetHeader("Accept"), "text/event-stream")
}

func writeSSE(c *gin.Context, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}

func truncateTitle(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= maxTitleLen {
		return s
	}
	return string(runes[:maxTitleLen-1]) + "…"
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
