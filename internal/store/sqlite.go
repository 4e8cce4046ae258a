package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/goalcoach/internal/domain"
	"github.com/ashureev/goalcoach/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry shared.RetryPolicy
	now   func() time.Time
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers; foreign keys for cascading deletes.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy, now: time.Now}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
		content TEXT NOT NULL,
		metadata TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

	CREATE TABLE IF NOT EXISTS goals (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		target_date TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_goals_user_status ON goals(user_id, status);

	CREATE TABLE IF NOT EXISTS progress (
		id TEXT PRIMARY KEY,
		goal_id TEXT NOT NULL REFERENCES goals(id) ON DELETE CASCADE,
		notes TEXT NOT NULL,
		sentiment TEXT,
		metadata TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_progress_goal ON progress(goal_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	err := shared.RetryOnConflict(ctx, s.retry, func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return result, err
}

// CreateConversation inserts a new conversation for the user.
func (s *SQLiteStore) CreateConversation(ctx context.Context, userID, title string) (*domain.Conversation, error) {
	now := s.now()
	conv := &domain.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.exec(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		conv.ID, conv.UserID, conv.Title, now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return conv, nil
}

// GetConversation retrieves a conversation by id and owner.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations WHERE id = ? AND user_id = ?`, conversationID, userID)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation row: %w", err)
	}
	return conv, nil
}

// ListConversations returns the user's conversations, most recently updated first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations WHERE user_id = ?
		ORDER BY updated_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer closeRows(rows, "conversations")

	convs := []domain.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		convs = append(convs, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return convs, nil
}

// TouchConversation bumps the conversation's updated_at timestamp.
func (s *SQLiteStore) TouchConversation(ctx context.Context, conversationID string) error {
	result, err := s.exec(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, s.now().UnixMilli(), conversationID)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return requireAffected(result)
}

// DeleteConversation removes a conversation and its messages.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	result, err := s.exec(ctx, `DELETE FROM conversations WHERE id = ? AND user_id = ?`, conversationID, userID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return requireAffected(result)
}

// AppendMessage adds a message to a conversation.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("append message: invalid role %q", msg.Role)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}

	_, err := s.exec(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content,
		nullableJSON(msg.Metadata), msg.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns a conversation's messages ordered by creation time ascending.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, metadata, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at ASC, rowid ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer closeRows(rows, "messages")

	messages := []domain.Message{}
	for rows.Next() {
		var (
			msg       domain.Message
			role      string
			metadata  sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Role = domain.Role(role)
		if metadata.Valid && metadata.String != "" {
			msg.Metadata = json.RawMessage(metadata.String)
		}
		msg.CreatedAt = time.UnixMilli(createdAt)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

const goalColumns = `id, user_id, title, description, status, target_date, created_at, updated_at`

// ListGoals returns the user's goals, oldest first. An empty status returns every goal.
func (s *SQLiteStore) ListGoals(ctx context.Context, userID string, status domain.GoalStatus) ([]domain.Goal, error) {
	query := `SELECT ` + goalColumns + ` FROM goals WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}
	defer closeRows(rows, "goals")

	goals := []domain.Goal{}
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal row: %w", err)
		}
		goals = append(goals, *goal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate goals: %w", err)
	}
	return goals, nil
}

// GetGoal retrieves a goal by id and owner.
func (s *SQLiteStore) GetGoal(ctx context.Context, goalID, userID string) (*domain.Goal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ? AND user_id = ?`, goalID, userID)
	goal, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan goal row: %w", err)
	}
	return goal, nil
}

// CreateGoal inserts a goal.
func (s *SQLiteStore) CreateGoal(ctx context.Context, goal *domain.Goal) error {
	if goal.ID == "" {
		goal.ID = uuid.NewString()
	}
	if goal.Status == "" {
		goal.Status = domain.GoalStatusActive
	}
	now := s.now()
	if goal.CreatedAt.IsZero() {
		goal.CreatedAt = now
	}
	goal.UpdatedAt = goal.CreatedAt

	_, err := s.exec(ctx, `
		INSERT INTO goals (`+goalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		goal.ID, goal.UserID, goal.Title, nullableString(goal.Description), string(goal.Status),
		nullableString(goal.TargetDate), goal.CreatedAt.UnixMilli(), goal.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}
	return nil
}

// UpdateGoal applies a partial update to a goal owned by the user.
func (s *SQLiteStore) UpdateGoal(ctx context.Context, goalID, userID string, patch domain.GoalPatch) (*domain.Goal, error) {
	var updated *domain.Goal
	err := shared.RetryOnConflict(ctx, s.retry, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		row := tx.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ? AND user_id = ?`, goalID, userID)
		goal, err := scanGoal(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("scan goal row: %w", err)
		}

		patch.Apply(goal)
		goal.UpdatedAt = s.now()

		if _, err := tx.ExecContext(ctx, `
			UPDATE goals SET title = ?, description = ?, status = ?, target_date = ?, updated_at = ?
			WHERE id = ? AND user_id = ?`,
			goal.Title, nullableString(goal.Description), string(goal.Status), nullableString(goal.TargetDate),
			goal.UpdatedAt.UnixMilli(), goalID, userID,
		); err != nil {
			return fmt.Errorf("update goal: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit goal update: %w", err)
		}
		updated = goal
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteGoal removes a goal and its progress entries.
func (s *SQLiteStore) DeleteGoal(ctx context.Context, goalID, userID string) error {
	result, err := s.exec(ctx, `DELETE FROM goals WHERE id = ? AND user_id = ?`, goalID, userID)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return requireAffected(result)
}

// AddProgress records a progress entry against a goal owned by the user.
// The insert is conditional on ownership so a foreign goal id affects no rows.
func (s *SQLiteStore) AddProgress(ctx context.Context, userID string, entry *domain.ProgressEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	var sentiment any
	if entry.Sentiment != nil {
		sentiment = string(*entry.Sentiment)
	}

	result, err := s.exec(ctx, `
		INSERT INTO progress (id, goal_id, notes, sentiment, metadata, created_at)
		SELECT ?, id, ?, ?, ?, ? FROM goals WHERE id = ? AND user_id = ?`,
		entry.ID, entry.Notes, sentiment, nullableJSON(entry.Metadata), entry.CreatedAt.UnixMilli(),
		entry.GoalID, userID,
	)
	if err != nil {
		return fmt.Errorf("insert progress: %w", err)
	}
	return requireAffected(result)
}

// ListProgress returns a goal's progress entries, newest first.
func (s *SQLiteStore) ListProgress(ctx context.Context, goalID, userID string) ([]domain.ProgressEntry, error) {
	if _, err := s.GetGoal(ctx, goalID, userID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, goal_id, notes, sentiment, metadata, created_at
		FROM progress WHERE goal_id = ?
		ORDER BY created_at DESC, rowid DESC`, goalID)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	defer closeRows(rows, "progress")
	return scanProgressRows(rows)
}

// RecentProgress returns up to limit progress entries across the user's goals, newest first.
func (s *SQLiteStore) RecentProgress(ctx context.Context, userID string, limit int) ([]domain.ProgressEntry, error) {
	if limit <= 0 {
		return []domain.ProgressEntry{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.goal_id, p.notes, p.sentiment, p.metadata, p.created_at
		FROM progress p
		JOIN goals g ON g.id = p.goal_id
		WHERE g.user_id = ?
		ORDER BY p.created_at DESC, p.rowid DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent progress: %w", err)
	}
	defer closeRows(rows, "recent progress")
	return scanProgressRows(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var (
		conv                 domain.Conversation
		createdAt, updatedAt int64
	)
	if err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	conv.CreatedAt = time.UnixMilli(createdAt)
	conv.UpdatedAt = time.UnixMilli(updatedAt)
	return &conv, nil
}

func scanGoal(row rowScanner) (*domain.Goal, error) {
	var (
		goal                    domain.Goal
		description, targetDate sql.NullString
		status                  string
		createdAt, updatedAt    int64
	)
	if err := row.Scan(&goal.ID, &goal.UserID, &goal.Title, &description, &status, &targetDate, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	goal.Status = domain.GoalStatus(status)
	if description.Valid {
		goal.Description = &description.String
	}
	if targetDate.Valid {
		goal.TargetDate = &targetDate.String
	}
	goal.CreatedAt = time.UnixMilli(createdAt)
	goal.UpdatedAt = time.UnixMilli(updatedAt)
	return &goal, nil
}

func scanProgressRows(rows *sql.Rows) ([]domain.ProgressEntry, error) {
	entries := []domain.ProgressEntry{}
	for rows.Next() {
		var (
			entry               domain.ProgressEntry
			sentiment, metadata sql.NullString
			createdAt           int64
		)
		if err := rows.Scan(&entry.ID, &entry.GoalID, &entry.Notes, &sentiment, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan progress row: %w", err)
		}
		if sentiment.Valid {
			s := domain.Sentiment(sentiment.String)
			entry.Sentiment = &s
		}
		if metadata.Valid && metadata.String != "" {
			entry.Metadata = json.RawMessage(metadata.String)
		}
		entry.CreatedAt = time.UnixMilli(createdAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress: %w", err)
	}
	return entries, nil
}

func requireAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "query", what, "error", err)
	}
}
