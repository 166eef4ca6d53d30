package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	dbconfig "chatdesk/pkg/database"
	"chatdesk/pkg/interfaces"
	"chatdesk/pkg/types"
)

const (
	writeQueueSize  = 100
	writeTimeout    = 30 * time.Second
	writeRetryDelay = 5 * time.Second
)

// Options tunes store behaviour that is not part of the connection config.
type Options struct {
	// AdminName is the sender_name given to every admin message.
	AdminName string
	// Location decides calendar days for the today/yesterday filters.
	Location *time.Location
	Logger   *logrus.Entry
	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

// Manager implements interfaces.ChatStore on database/sql. Reads run on the
// pool concurrently; all writes go through one goroutine, which keeps SQLite
// free of writer contention and makes message timestamps strictly increasing.
type Manager struct {
	db        *sql.DB
	config    *dbconfig.Config
	adminName string
	loc       *time.Location
	now       func() time.Time
	log       *logrus.Entry

	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex

	// owned by writeLoop
	lastStamp   int64
	stampPrimed bool
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

var _ interfaces.ChatStore = (*Manager)(nil)

// NewManager opens the database and starts the writer goroutine. It does
// not migrate; call Migrate before serving.
func NewManager(config *dbconfig.Config, opts Options) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	dsn, err := config.DataSourceName()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(config.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if config.Driver == dbconfig.DialectSQLite {
		if err := applySQLiteOptimizations(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
		}
	}

	if opts.AdminName == "" {
		opts.AdminName = "Admin"
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}

	manager := &Manager{
		db:           db,
		config:       config,
		adminName:    opts.AdminName,
		loc:          opts.Location,
		now:          opts.Now,
		log:          opts.Logger,
		writeChannel: make(chan writeOperation, writeQueueSize),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// Migrate applies pending migrations and validates the resulting schema.
func (m *Manager) Migrate() ([]string, error) {
	var mm *dbconfig.MigrationManager
	if m.config.MigrationsPath != "" {
		mm = dbconfig.NewMigrationManagerFromDir(m.db, m.config.Driver, m.config.MigrationsPath)
	} else {
		mm = dbconfig.NewMigrationManager(m.db, m.config.Driver)
	}
	applied, err := mm.ApplyMigrations()
	if err != nil {
		return applied, err
	}
	if err := dbconfig.NewSchemaValidator(m.db, m.config.Driver).Validate(); err != nil {
		return applied, fmt.Errorf("schema validation failed: %w", err)
	}
	return applied, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil && isTransient(err) {
				m.log.WithError(err).Warn("database write busy, retrying once")
				time.Sleep(writeRetryDelay)
				err = op.operation(m.db)
			}
			if err != nil {
				m.log.WithError(err).Debug("database write failed")
			}
			op.result <- err

		case <-m.shutdown:
			m.log.Debug("database write loop shutting down")
			return
		}
	}
}

// isTransient reports lock contention worth one retry.
func isTransient(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		// deadlock, lock wait timeout
		return myErr.Number == 1213 || myErr.Number == 1205
	}
	return false
}

func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return interfaces.ErrStoreClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-time.After(writeTimeout):
		return ErrWriteTimeout
	case <-m.shutdown:
		return interfaces.ErrStoreClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-m.shutdown:
		return interfaces.ErrStoreClosed
	}
}

// nextStamp returns a UTC microsecond timestamp greater than any issued
// before. Only call it from inside a write operation.
func (m *Manager) nextStamp(db *sql.DB) (int64, error) {
	if !m.stampPrimed {
		var last sql.NullInt64
		if err := db.QueryRow("SELECT MAX(timestamp) FROM chat_messages").Scan(&last); err != nil {
			return 0, fmt.Errorf("failed to read last message timestamp: %w", err)
		}
		m.lastStamp = last.Int64
		m.stampPrimed = true
	}
	ts := m.now().UTC().UnixMicro()
	if ts <= m.lastStamp {
		ts = m.lastStamp + 1
	}
	m.lastStamp = ts
	return ts, nil
}

// FindOrCreateConversation runs entirely on the writer so that two first
// messages from one customer cannot create two conversations.
func (m *Manager) FindOrCreateConversation(ctx context.Context, customerID, explicitID int64) (int64, error) {
	if explicitID > 0 {
		return explicitID, nil
	}
	if customerID <= 0 {
		return 0, types.ErrInvalidID
	}

	var conversationID int64
	err := m.executeWrite(ctx, func(db *sql.DB) error {
		err := db.QueryRowContext(ctx, `
			SELECT conversation_id FROM chat_messages
			WHERE sender_id = ? AND sender_type = 'user'
			ORDER BY id DESC LIMIT 1`, customerID).Scan(&conversationID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to query latest customer message: %w", err)
		}

		err = db.QueryRowContext(ctx, `
			SELECT id FROM chat_conversations
			WHERE customer_id = ?
			ORDER BY id ASC LIMIT 1`, customerID).Scan(&conversationID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to query customer conversation: %w", err)
		}

		res, err := db.ExecContext(ctx,
			"INSERT INTO chat_conversations (customer_id, priority, created_at) VALUES (?, ?, ?)",
			customerID, string(types.DefaultPriority), m.now().UTC().UnixMicro())
		if err != nil {
			return fmt.Errorf("failed to insert conversation: %w", err)
		}
		conversationID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read conversation id: %w", err)
		}
		m.log.WithFields(logrus.Fields{
			"conversation_id": conversationID,
			"customer_id":     customerID,
		}).Info("conversation created")
		return nil
	})
	if err != nil {
		return 0, err
	}
	return conversationID, nil
}

// GetConversation returns the stored conversation without listing fields.
func (m *Manager) GetConversation(ctx context.Context, conversationID int64) (*types.Conversation, error) {
	var (
		c       types.Conversation
		created int64
		prio    string
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT c.id, c.customer_id, COALESCE(u.username, ''), c.priority, c.created_at
		FROM chat_conversations c
		LEFT JOIN users u ON u.id = c.customer_id
		WHERE c.id = ?`, conversationID).Scan(&c.ID, &c.CustomerID, &c.CustomerName, &prio, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	c.Priority = types.Priority(prio)
	c.CreatedAt = fromMicros(created)
	if c.CustomerName == "" {
		c.CustomerName = types.FallbackUserName
	}
	return &c, nil
}

// InsertMessage stores a message and returns it in canonical form.
func (m *Manager) InsertMessage(ctx context.Context, msg types.NewMessage) (*types.Message, error) {
	if msg.SenderType != types.SenderUser && msg.SenderType != types.SenderAdmin {
		return nil, ErrInvalidSenderType
	}

	var stored types.Message
	err := m.executeWrite(ctx, func(db *sql.DB) error {
		var exists int
		if err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM chat_conversations WHERE id = ?", msg.ConversationID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check conversation: %w", err)
		}
		if exists == 0 {
			return interfaces.ErrConversationNotFound
		}

		stamp, err := m.nextStamp(db)
		if err != nil {
			return err
		}

		var mediaURL, mediaType sql.NullString
		if msg.MediaURL != "" {
			mediaURL = sql.NullString{String: msg.MediaURL, Valid: true}
			if mt := types.MediaTypeFor(msg.MediaURL); mt != "" {
				mediaType = sql.NullString{String: mt, Valid: true}
			}
		}

		res, err := db.ExecContext(ctx, `
			INSERT INTO chat_messages
				(conversation_id, sender_id, sender_type, content, media_url, media_type, timestamp, is_read)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
			msg.ConversationID, msg.SenderID, string(msg.SenderType), msg.Content, mediaURL, mediaType, stamp)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read message id: %w", err)
		}

		var username string
		if msg.SenderType == types.SenderUser {
			err := db.QueryRowContext(ctx, "SELECT username FROM users WHERE id = ?", msg.SenderID).Scan(&username)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to resolve sender name: %w", err)
			}
		}

		stored = types.Message{
			ID:             id,
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			SenderType:     msg.SenderType,
			SenderName:     username,
			Content:        msg.Content,
			MediaURL:       nullableString(mediaURL),
			MediaType:      nullableString(mediaType),
			Timestamp:      fromMicros(stamp),
			IsRead:         0,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := types.NormalizeMessage(stored, m.adminName)
	return &out, nil
}

const messageColumns = `
	m.id, m.conversation_id, m.sender_id, m.sender_type, COALESCE(u.username, ''),
	m.content, m.media_url, m.media_type, m.timestamp, m.is_read`

// ListMessages returns the latest limit messages of one conversation in
// ascending order.
func (m *Manager) ListMessages(ctx context.Context, conversationID int64, limit int) ([]types.Message, error) {
	query := `
		SELECT` + messageColumns + `
		FROM (
			SELECT * FROM chat_messages
			WHERE conversation_id = ?
			ORDER BY timestamp DESC, id DESC
			LIMIT ?
		) m
		LEFT JOIN users u ON u.id = m.sender_id AND m.sender_type = 'user'
		ORDER BY m.timestamp ASC, m.id ASC`
	return m.queryMessages(ctx, query, conversationID, limit)
}

// ListCustomerMessages returns the latest limit messages that either live
// in the customer's conversations or were authored by the customer.
func (m *Manager) ListCustomerMessages(ctx context.Context, customerID int64, limit int) ([]types.Message, error) {
	query := `
		SELECT` + messageColumns + `
		FROM (
			SELECT * FROM chat_messages
			WHERE conversation_id IN (SELECT id FROM chat_conversations WHERE customer_id = ?)
			   OR (sender_id = ? AND sender_type = 'user')
			ORDER BY timestamp DESC, id DESC
			LIMIT ?
		) m
		LEFT JOIN users u ON u.id = m.sender_id AND m.sender_type = 'user'
		ORDER BY m.timestamp ASC, m.id ASC`
	return m.queryMessages(ctx, query, customerID, customerID, limit)
}

func (m *Manager) queryMessages(ctx context.Context, query string, args ...any) ([]types.Message, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]types.Message, 0)
	for rows.Next() {
		var (
			msg        types.Message
			senderType string
			content    sql.NullString
			mediaURL   sql.NullString
			mediaType  sql.NullString
			stamp      int64
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&senderType,
			&msg.SenderName,
			&content,
			&mediaURL,
			&mediaType,
			&stamp,
			&msg.IsRead,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msg.SenderType = types.SenderType(senderType)
		msg.Content = content.String
		msg.MediaURL = nullableString(mediaURL)
		msg.MediaType = nullableString(mediaType)
		msg.Timestamp = fromMicros(stamp)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return types.NormalizeMessages(messages, m.adminName), nil
}

// MarkRead flips a message to read. Repeating it is harmless.
func (m *Manager) MarkRead(ctx context.Context, messageID int64) (bool, error) {
	var found bool
	err := m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, "UPDATE chat_messages SET is_read = 1 WHERE id = ? AND is_read = 0", messageID)
		if err != nil {
			return fmt.Errorf("failed to mark message read: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			found = true
			return nil
		}
		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chat_messages WHERE id = ?", messageID).Scan(&count); err != nil {
			return fmt.Errorf("failed to check message: %w", err)
		}
		found = count > 0
		return nil
	})
	return found, err
}

// CountUnreadForAdmins counts unread customer messages across all conversations.
func (m *Manager) CountUnreadForAdmins(ctx context.Context) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chat_messages WHERE sender_type = 'user' AND is_read = 0").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return n, nil
}

// CountUnreadForCustomer counts unread admin replies in the customer's conversations.
func (m *Manager) CountUnreadForCustomer(ctx context.Context, customerID int64) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chat_messages m
		JOIN chat_conversations c ON c.id = m.conversation_id
		WHERE c.customer_id = ? AND m.sender_type = 'admin' AND m.is_read = 0`, customerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return n, nil
}

// SetPriority stores a validated priority on a conversation.
func (m *Manager) SetPriority(ctx context.Context, conversationID int64, priority types.Priority) (bool, error) {
	if !priority.Valid() {
		return false, types.ErrInvalidPriority
	}
	var found bool
	err := m.executeWrite(ctx, func(db *sql.DB) error {
		// MySQL reports zero affected rows when the value is unchanged, so
		// existence is checked separately.
		var count int
		if err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM chat_conversations WHERE id = ?", conversationID).Scan(&count); err != nil {
			return fmt.Errorf("failed to check conversation: %w", err)
		}
		if count == 0 {
			return nil
		}
		found = true
		if _, err := db.ExecContext(ctx,
			"UPDATE chat_conversations SET priority = ? WHERE id = ?", string(priority), conversationID); err != nil {
			return fmt.Errorf("failed to update priority: %w", err)
		}
		return nil
	})
	return found, err
}

const conversationListing = `
	SELECT c.id, c.customer_id, COALESCE(u.username, ''), c.priority, c.created_at,
		(SELECT lm.content FROM chat_messages lm
			WHERE lm.conversation_id = c.id
			ORDER BY lm.timestamp DESC, lm.id DESC LIMIT 1),
		(SELECT MAX(tm.timestamp) FROM chat_messages tm WHERE tm.conversation_id = c.id),
		(SELECT COUNT(*) FROM chat_messages um
			WHERE um.conversation_id = c.id AND um.sender_type = 'user' AND um.is_read = 0)
	FROM chat_conversations c
	LEFT JOIN users u ON u.id = c.customer_id`

// ListConversations returns the admin listing narrowed by filter.
func (m *Manager) ListConversations(ctx context.Context, filter types.ConversationFilter) ([]types.Conversation, error) {
	all, err := m.queryConversations(ctx, conversationListing)
	if err != nil {
		return nil, err
	}
	return m.applyFilter(all, filter), nil
}

// SearchConversations matches the customer name or any message content,
// case-insensitively. LIKE wildcards in term match literally.
func (m *Manager) SearchConversations(ctx context.Context, term string) ([]types.Conversation, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return m.ListConversations(ctx, types.FilterAll)
	}
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	query := conversationListing + `
		WHERE LOWER(COALESCE(u.username, '')) LIKE ? ESCAPE '!'
		   OR EXISTS (
				SELECT 1 FROM chat_messages sm
				WHERE sm.conversation_id = c.id AND LOWER(sm.content) LIKE ? ESCAPE '!'
		   )`
	return m.queryConversations(ctx, query, pattern, pattern)
}

func (m *Manager) queryConversations(ctx context.Context, query string, args ...any) ([]types.Conversation, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	conversations := make([]types.Conversation, 0)
	for rows.Next() {
		var (
			c           types.Conversation
			prio        string
			created     int64
			lastMessage sql.NullString
			lastStamp   sql.NullInt64
		)
		if err := rows.Scan(
			&c.ID,
			&c.CustomerID,
			&c.CustomerName,
			&prio,
			&created,
			&lastMessage,
			&lastStamp,
			&c.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		c.Priority = types.Priority(prio)
		c.CreatedAt = fromMicros(created)
		if c.CustomerName == "" {
			c.CustomerName = types.FallbackUserName
		}
		if lastMessage.Valid {
			s := lastMessage.String
			c.LastMessage = &s
		}
		if lastStamp.Valid {
			ts := fromMicros(lastStamp.Int64)
			c.LastMessageTime = &ts
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversation rows: %w", err)
	}

	sortConversations(conversations)
	return conversations, nil
}

// sortConversations orders by last message time, newest first; conversations
// without messages go last. Ties break on id, newest first.
func sortConversations(cs []types.Conversation) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i].LastMessageTime, cs[j].LastMessageTime
		switch {
		case a == nil && b == nil:
			return cs[i].ID > cs[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.After(*b)
		}
		return cs[i].ID > cs[j].ID
	})
}

func (m *Manager) applyFilter(cs []types.Conversation, filter types.ConversationFilter) []types.Conversation {
	if filter == types.FilterAll {
		return cs
	}

	today := m.now().In(m.loc)
	yesterday := today.AddDate(0, 0, -1)

	out := make([]types.Conversation, 0, len(cs))
	for _, c := range cs {
		keep := false
		switch filter {
		case types.FilterUnread:
			keep = c.UnreadCount > 0
		case types.FilterToday:
			keep = c.LastMessageTime != nil && sameDay(c.LastMessageTime.In(m.loc), today)
		case types.FilterYesterday:
			keep = c.LastMessageTime != nil && sameDay(c.LastMessageTime.In(m.loc), yesterday)
		case types.FilterHigh, types.FilterMedium, types.FilterLow:
			keep = string(c.Priority) == string(filter)
		default:
			keep = true
		}
		if keep {
			out = append(out, c)
		}
	}
	return out
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var n int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chat_conversations").Scan(&n); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB returns the underlying database connection.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close stops the writer. Writes still queued fail with ErrStoreClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func applySQLiteOptimizations(db *sql.DB) error {
	for _, pragma := range dbconfig.SQLitePragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}
	return nil
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
