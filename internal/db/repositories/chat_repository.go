// chat_repository.go implements ChatRepository, providing database queries for
// conversation threads and their messages.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/grooshub/grooshub/internal/db/models"
)

// ChatRepository handles database operations for chats and messages
type ChatRepository struct {
	db *sql.DB
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// GetByID retrieves a chat by ID
func (r *ChatRepository) GetByID(ctx context.Context, id string) (*models.Chat, error) {
	query := `
		SELECT id, project_id, user_id, title, created_at, updated_at
		FROM chats
		WHERE id = $1
	`

	chat := &models.Chat{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&chat.ID,
		&chat.ProjectID,
		&chat.UserID,
		&chat.Title,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}

	return chat, nil
}

// Create creates a new chat
func (r *ChatRepository) Create(ctx context.Context, chat *models.Chat) error {
	query := `
		INSERT INTO chats (project_id, user_id, title)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query, chat.ProjectID, chat.UserID, chat.Title).Scan(
		&chat.ID,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}

	return nil
}

// UpdateTitle renames a chat
func (r *ChatRepository) UpdateTitle(ctx context.Context, id, title string) error {
	query := `UPDATE chats SET title = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, title)
	if err != nil {
		return fmt.Errorf("failed to update chat title: %w", err)
	}

	return nil
}

// Touch bumps updated_at so recently active chats sort first
func (r *ChatRepository) Touch(ctx context.Context, id string) error {
	query := `UPDATE chats SET updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to touch chat: %w", err)
	}

	return nil
}

// Delete removes a chat and its messages
func (r *ChatRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM chats WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}

	return nil
}

// ListByProjectAndUser retrieves a user's chats within a project, most recently
// active first
func (r *ChatRepository) ListByProjectAndUser(ctx context.Context, projectID, userID string, limit, offset int) ([]*models.Chat, error) {
	query := `
		SELECT id, project_id, user_id, title, created_at, updated_at
		FROM chats
		WHERE project_id = $1 AND user_id = $2
		ORDER BY updated_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.QueryContext(ctx, query, projectID, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	chats := make([]*models.Chat, 0)
	for rows.Next() {
		chat := &models.Chat{}
		err := rows.Scan(
			&chat.ID,
			&chat.ProjectID,
			&chat.UserID,
			&chat.Title,
			&chat.CreatedAt,
			&chat.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, chat)
	}

	return chats, rows.Err()
}

// === Message Operations ===

// CreateMessage appends a message to a chat
func (r *ChatRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO messages (chat_id, role, content, model, category)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		msg.ChatID,
		msg.Role,
		msg.Content,
		msg.Model,
		msg.Category,
	).Scan(&msg.ID, &msg.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

// ListMessages retrieves all messages in a chat in chronological order
func (r *ChatRepository) ListMessages(ctx context.Context, chatID string, limit int) ([]*models.Message, error) {
	query := `
		SELECT id, chat_id, role, content, model, category, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		msg := &models.Message{}
		err := rows.Scan(
			&msg.ID,
			&msg.ChatID,
			&msg.Role,
			&msg.Content,
			&msg.Model,
			&msg.Category,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
