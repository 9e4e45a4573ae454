package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"taskboard/domain"
)

const driverName = "sqlite"

// SQLite is the single-node persistence gateway.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database file at path.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	return openSQLite("file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
}

// OpenSQLiteInMemory opens a private in-memory database.
func OpenSQLiteInMemory() (*SQLite, error) {
	return openSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
}

func openSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; also keeps the in-memory database alive for the pool's lifetime
	db.SetMaxOpenConns(1)
	s := &SQLite{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS boards (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			owner_id TEXT NOT NULL,
			visibility TEXT NOT NULL DEFAULT 'private',
			background TEXT NOT NULL DEFAULT '',
			closed INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS board_members (
			board_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			joined_at TEXT NOT NULL,
			PRIMARY KEY (board_id, user_id),
			FOREIGN KEY(board_id) REFERENCES boards(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS lists (
			id TEXT PRIMARY KEY,
			board_id TEXT NOT NULL,
			title TEXT NOT NULL,
			position REAL NOT NULL,
			archived INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(board_id) REFERENCES boards(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS cards (
			id TEXT PRIMARY KEY,
			list_id TEXT NOT NULL,
			board_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			position REAL NOT NULL,
			due_at TEXT,
			completed INTEGER NOT NULL DEFAULT 0,
			completed_at TEXT,
			labels TEXT NOT NULL DEFAULT '[]',
			assignees TEXT NOT NULL DEFAULT '[]',
			creator_id TEXT NOT NULL,
			archived INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(list_id) REFERENCES lists(id),
			FOREIGN KEY(board_id) REFERENCES boards(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS comments (
			id TEXT PRIMARY KEY,
			card_id TEXT NOT NULL,
			board_id TEXT NOT NULL,
			author_id TEXT NOT NULL,
			author_name TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY(card_id) REFERENCES cards(id) ON DELETE CASCADE
		);`,
		// activity rows outlive the entities they mention, so no foreign keys here.
		`CREATE TABLE IF NOT EXISTS activities (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			board_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			user_name TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			description TEXT NOT NULL,
			list_id TEXT NOT NULL DEFAULT '',
			card_id TEXT NOT NULL DEFAULT '',
			comment_id TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_board_members_user ON board_members(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_lists_board_position ON lists(board_id, position);`,
		`CREATE INDEX IF NOT EXISTS idx_cards_list_position ON cards(list_id, position);`,
		`CREATE INDEX IF NOT EXISTS idx_cards_board ON cards(board_id);`,
		`CREATE INDEX IF NOT EXISTS idx_comments_card_created_at ON comments(card_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_activities_board_created_at ON activities(board_id, created_at DESC, seq DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	// databases created before cards carried tags
	for _, col := range []string{"labels", "assignees"} {
		if err := s.addColumn(ctx, "cards", col, `TEXT NOT NULL DEFAULT '[]'`); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

func (s *SQLite) addColumn(ctx context.Context, table, column, decl string) error {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil || n > 0 {
		return err
	}
	_, err = s.db.ExecContext(ctx, `ALTER TABLE `+table+` ADD COLUMN `+column+` `+decl)
	return err
}

// withTx runs fn in a transaction, rolling back when it fails.
func (s *SQLite) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) CreateBoard(ctx context.Context, b domain.Board, lists []domain.List) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO boards(id, workspace_id, title, description, owner_id, visibility, background, closed, created_at, updated_at)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, b.ID, b.WorkspaceID, b.Title, b.Description, b.OwnerID, string(b.Visibility), b.Background, b.Closed, ts(b.CreatedAt), ts(b.UpdatedAt))
		if err != nil {
			return err
		}
		if err := insertMembers(ctx, tx, b.ID, b.Members); err != nil {
			return err
		}
		for _, l := range lists {
			if err := insertList(ctx, tx, l); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLite) GetBoard(ctx context.Context, id string) (domain.Board, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, title, description, owner_id, visibility, background, closed, created_at, updated_at
		FROM boards WHERE id = ?
	`, id)
	b, err := scanBoard(row)
	if err != nil {
		return domain.Board{}, notFound(err, "board", id)
	}
	b.Members, err = s.members(ctx, id)
	if err != nil {
		return domain.Board{}, err
	}
	return b, nil
}

func (s *SQLite) ListBoards(ctx context.Context, userID string) ([]domain.Board, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT b.id, b.workspace_id, b.title, b.description, b.owner_id, b.visibility, b.background, b.closed, b.created_at, b.updated_at
		FROM boards b
		LEFT JOIN board_members m ON m.board_id = b.id
		WHERE b.closed = 0 AND (b.owner_id = ? OR m.user_id = ?)
		ORDER BY b.updated_at DESC, b.id ASC
	`, userID, userID)
	if err != nil {
		return nil, err
	}
	out := []domain.Board{}
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// members are loaded after the cursor is closed: the pool has a single connection
	for i := range out {
		if out[i].Members, err = s.members(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLite) SetMembers(ctx context.Context, boardID string, members []domain.Member) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE boards SET updated_at = ? WHERE id = ?`, ts(time.Now()), boardID)
		if err != nil {
			return err
		}
		if err := translateNoRows(res, "board", boardID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM board_members WHERE board_id = ?`, boardID); err != nil {
			return err
		}
		return insertMembers(ctx, tx, boardID, members)
	})
}

func (s *SQLite) members(ctx context.Context, boardID string) ([]domain.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, role, joined_at FROM board_members WHERE board_id = ? ORDER BY joined_at ASC, user_id ASC
	`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Member{}
	for rows.Next() {
		var (
			m      domain.Member
			role   string
			joined string
		)
		if err := rows.Scan(&m.UserID, &role, &joined); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		m.JoinedAt = parseTS(joined)
		out = append(out, m)
	}
	return out, rows.Err()
}

func insertMembers(ctx context.Context, tx *sql.Tx, boardID string, members []domain.Member) error {
	for _, m := range members {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO board_members(board_id, user_id, role, joined_at) VALUES(?, ?, ?, ?)
		`, boardID, m.UserID, string(m.Role), ts(m.JoinedAt)); err != nil {
			return err
		}
	}
	return nil
}

const listColumns = `id, board_id, title, position, archived, created_at, updated_at`

func insertList(ctx context.Context, ex execerContext, l domain.List) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO lists(id, board_id, title, position, archived, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.BoardID, l.Title, l.Position, l.Archived, ts(l.CreatedAt), ts(l.UpdatedAt))
	return err
}

func (s *SQLite) CreateList(ctx context.Context, l domain.List) error {
	return insertList(ctx, s.db, l)
}

func (s *SQLite) GetList(ctx context.Context, id string) (domain.List, error) {
	return getList(ctx, s.db, id)
}

func getList(ctx context.Context, q queryRower, id string) (domain.List, error) {
	l, err := scanList(q.QueryRowContext(ctx, `SELECT `+listColumns+` FROM lists WHERE id = ?`, id))
	if err != nil {
		return domain.List{}, notFound(err, "list", id)
	}
	return l, nil
}

func (s *SQLite) ListLists(ctx context.Context, boardID string) ([]domain.List, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+listColumns+` FROM lists WHERE board_id = ? AND archived = 0 ORDER BY position ASC, id ASC
	`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.List{}
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLite) UpdateList(ctx context.Context, l domain.List) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE lists SET title = ?, position = ?, archived = ?, updated_at = ? WHERE id = ?
	`, l.Title, l.Position, l.Archived, ts(l.UpdatedAt), l.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res, "list", l.ID)
}

func (s *SQLite) MoveList(ctx context.Context, id string, position float64) (out domain.List, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE lists SET position = ?, updated_at = ? WHERE id = ?`, position, ts(time.Now()), id)
		if err != nil {
			return err
		}
		if err := translateNoRows(res, "list", id); err != nil {
			return err
		}
		out, err = getList(ctx, tx, id)
		return err
	})
	return out, err
}

func (s *SQLite) RespaceLists(ctx context.Context, boardID string, positions map[string]float64) error {
	now := ts(time.Now())
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for id, p := range positions {
			if _, err := tx.ExecContext(ctx, `
				UPDATE lists SET position = ?, updated_at = ? WHERE id = ? AND board_id = ?
			`, p, now, id, boardID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLite) ArchiveList(ctx context.Context, id string) (out domain.List, err error) {
	now := ts(time.Now())
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE lists SET archived = 1, updated_at = ? WHERE id = ?`, now, id)
		if err != nil {
			return err
		}
		if err := translateNoRows(res, "list", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE cards SET archived = 1, updated_at = ? WHERE list_id = ?`, now, id); err != nil {
			return err
		}
		out, err = getList(ctx, tx, id)
		return err
	})
	return out, err
}

func (s *SQLite) DeleteList(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM lists WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return translateNoRows(res, "list", id)
}

const cardColumns = `id, list_id, board_id, title, description, position, due_at, completed, completed_at, labels, assignees, creator_id, archived, created_at, updated_at`

func (s *SQLite) CreateCard(ctx context.Context, c domain.Card) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cards(`+cardColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.ListID, c.BoardID, c.Title, c.Description, c.Position, nullableTS(c.DueDate), c.Completed,
		nullableTS(c.CompletedAt), tagsJSON(c.Labels), tagsJSON(c.Assignees), c.CreatorID, c.Archived, ts(c.CreatedAt), ts(c.UpdatedAt))
	return err
}

func (s *SQLite) GetCard(ctx context.Context, id string) (domain.Card, error) {
	return getCard(ctx, s.db, id)
}

func getCard(ctx context.Context, q queryRower, id string) (domain.Card, error) {
	c, err := scanCard(q.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id))
	if err != nil {
		return domain.Card{}, notFound(err, "card", id)
	}
	return c, nil
}

func (s *SQLite) ListCards(ctx context.Context, listID string) ([]domain.Card, error) {
	return s.queryCards(ctx, `
		SELECT `+cardColumns+` FROM cards WHERE list_id = ? AND archived = 0 ORDER BY position ASC, id ASC
	`, listID)
}

func (s *SQLite) ListBoardCards(ctx context.Context, boardID string) ([]domain.Card, error) {
	return s.queryCards(ctx, `
		SELECT `+cardColumns+` FROM cards WHERE board_id = ? AND archived = 0 ORDER BY list_id ASC, position ASC, id ASC
	`, boardID)
}

func (s *SQLite) queryCards(ctx context.Context, query string, args ...any) ([]domain.Card, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) CountCards(ctx context.Context, listID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards WHERE list_id = ?`, listID).Scan(&n)
	return n, err
}

func (s *SQLite) UpdateCard(ctx context.Context, c domain.Card) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cards
		SET title = ?, description = ?, due_at = ?, completed = ?, completed_at = ?, labels = ?, assignees = ?, archived = ?, updated_at = ?
		WHERE id = ?
	`, c.Title, c.Description, nullableTS(c.DueDate), c.Completed, nullableTS(c.CompletedAt),
		tagsJSON(c.Labels), tagsJSON(c.Assignees), c.Archived, ts(c.UpdatedAt), c.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res, "card", c.ID)
}

// MoveCard rewrites list_id and position in a single UPDATE inside a
// transaction, so no reader observes the card in both lists or in neither.
func (s *SQLite) MoveCard(ctx context.Context, id, listID string, position float64) (out domain.Card, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE cards SET list_id = ?, position = ?, updated_at = ? WHERE id = ?
		`, listID, position, ts(time.Now()), id)
		if err != nil {
			return err
		}
		if err := translateNoRows(res, "card", id); err != nil {
			return err
		}
		out, err = getCard(ctx, tx, id)
		return err
	})
	return out, err
}

func (s *SQLite) RespaceCards(ctx context.Context, listID string, positions map[string]float64) error {
	now := ts(time.Now())
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for id, p := range positions {
			if _, err := tx.ExecContext(ctx, `
				UPDATE cards SET position = ?, updated_at = ? WHERE id = ? AND list_id = ?
			`, p, now, id, listID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLite) DeleteCard(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return translateNoRows(res, "card", id)
}

func (s *SQLite) CreateComment(ctx context.Context, c domain.Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments(id, card_id, board_id, author_id, author_name, text, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.CardID, c.BoardID, c.AuthorID, c.AuthorName, c.Text, ts(c.CreatedAt))
	return err
}

func (s *SQLite) ListComments(ctx context.Context, cardID string) ([]domain.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, card_id, board_id, author_id, author_name, text, created_at
		FROM comments WHERE card_id = ? ORDER BY created_at DESC, rowid DESC
	`, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Comment{}
	for rows.Next() {
		var (
			c       domain.Comment
			created string
		)
		if err := rows.Scan(&c.ID, &c.CardID, &c.BoardID, &c.AuthorID, &c.AuthorName, &c.Text, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTS(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) AppendActivity(ctx context.Context, a domain.Activity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activities(id, board_id, user_id, user_name, type, description, list_id, card_id, comment_id, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.BoardID, a.UserID, a.UserName, string(a.Type), a.Description, a.ListID, a.CardID, a.CommentID, ts(a.CreatedAt))
	return err
}

func (s *SQLite) ListActivities(ctx context.Context, boardID string, q domain.ActivityQuery) ([]domain.Activity, error) {
	query := `
		SELECT id, board_id, user_id, user_name, type, description, list_id, card_id, comment_id, created_at
		FROM activities WHERE board_id = ?`
	args := []any{boardID}
	if q.CardID != "" {
		query += ` AND card_id = ?`
		args = append(args, q.CardID)
	}
	if len(q.Types) > 0 {
		query += ` AND type IN (?` + strings.Repeat(", ?", len(q.Types)-1) + `)`
		for _, t := range q.Types {
			args = append(args, string(t))
		}
	}
	query += ` ORDER BY created_at DESC, seq DESC LIMIT ? OFFSET ?`
	args = append(args, q.Limit, q.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Activity{}
	for rows.Next() {
		var (
			a       domain.Activity
			typ     string
			created string
		)
		if err := rows.Scan(&a.ID, &a.BoardID, &a.UserID, &a.UserName, &typ, &a.Description, &a.ListID, &a.CardID, &a.CommentID, &created); err != nil {
			return nil, err
		}
		a.Type = domain.ActivityType(typ)
		a.CreatedAt = parseTS(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

type queryRower interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

func scanBoard(s scanner) (domain.Board, error) {
	var (
		b                domain.Board
		vis              string
		created, updated string
	)
	if err := s.Scan(&b.ID, &b.WorkspaceID, &b.Title, &b.Description, &b.OwnerID, &vis, &b.Background, &b.Closed, &created, &updated); err != nil {
		return domain.Board{}, err
	}
	b.Visibility = domain.Visibility(vis)
	b.CreatedAt = parseTS(created)
	b.UpdatedAt = parseTS(updated)
	return b, nil
}

func scanList(s scanner) (domain.List, error) {
	var (
		l                domain.List
		created, updated string
	)
	if err := s.Scan(&l.ID, &l.BoardID, &l.Title, &l.Position, &l.Archived, &created, &updated); err != nil {
		return domain.List{}, err
	}
	l.CreatedAt = parseTS(created)
	l.UpdatedAt = parseTS(updated)
	return l, nil
}

func scanCard(s scanner) (domain.Card, error) {
	var (
		c                 domain.Card
		due, completedAt  sql.NullString
		labels, assignees string
		created, updated  string
	)
	if err := s.Scan(&c.ID, &c.ListID, &c.BoardID, &c.Title, &c.Description, &c.Position, &due, &c.Completed,
		&completedAt, &labels, &assignees, &c.CreatorID, &c.Archived, &created, &updated); err != nil {
		return domain.Card{}, err
	}
	c.Labels = parseTags(labels)
	c.Assignees = parseTags(assignees)
	c.DueDate = parseNullTS(due)
	c.CompletedAt = parseNullTS(completedAt)
	c.CreatedAt = parseTS(created)
	c.UpdatedAt = parseTS(updated)
	return c, nil
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundError(kind, id)
	}
	return err
}

func translateNoRows(res sql.Result, kind, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.NotFoundError(kind, id)
	}
	return nil
}

// tsLayout is fixed-width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ts(*t)
}

func parseTS(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	t := parseTS(v.String)
	return &t
}

// tagsJSON encodes card labels or assignees for a TEXT column.
func tagsJSON(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func parseTags(v string) []string {
	var out []string
	if err := json.Unmarshal([]byte(v), &out); err != nil || len(out) == 0 {
		return nil
	}
	return out
}
