// Package canvas persists a note canvas in SQLite and exposes it as a
// notegraph.Host, so generation can run outside an editor.
//
// Notes are rows, edges point from a child note to the note it continues,
// and the selection is a small ordered table. Note text is indexed with
// FTS5 for lookup from the MCP tools.
package canvas

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/HendryAvila/chattree/internal/notegraph"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// now is swapped in tests that assert on timestamps.
var now = func() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05")
}

const (
	DefaultWidth  = 400
	DefaultHeight = 100

	// vertical gap between a parent and a note created below it
	childMargin = 60
	siblingGap  = 40
)

var (
	ErrNotFound      = errors.New("canvas: note not found")
	ErrSelfEdge      = errors.New("canvas: a note cannot point to itself")
	ErrDuplicateEdge = errors.New("canvas: edge already exists")
	ErrEmptyText     = errors.New("canvas: text is required")
)

// ─── Types ───────────────────────────────────────────────────────────────────

// Record is the stored form of a note.
type Record struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Role      notegraph.Role `json:"role"`
	Color     string         `json:"color,omitempty"`
	X         int            `json:"x"`
	Y         int            `json:"y"`
	Width     int            `json:"width"`
	Height    int            `json:"height"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

// Edge points from a note to the note it continues.
type Edge struct {
	ID        int64  `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	CreatedAt string `json:"created_at"`
}

// Snapshot is the whole canvas, in the shape written by Export.
type Snapshot struct {
	Notes []Record `json:"notes"`
	Edges []Edge   `json:"edges"`
}

// AddParams describes a note added directly to the canvas.
type AddParams struct {
	Text    string         `json:"text"`
	Role    notegraph.Role `json:"role,omitempty"`
	Color   string         `json:"color,omitempty"`
	X       int            `json:"x"`
	Y       int            `json:"y"`
	Width   int            `json:"width,omitempty"`
	Height  int            `json:"height,omitempty"`
	Parents []string       `json:"parents,omitempty"`
}

// SearchResult is a note matched by Search, with its FTS5 rank.
type SearchResult struct {
	Record
	Rank float64 `json:"rank"`
}

// Config holds store settings.
type Config struct {
	DataDir          string
	MaxSearchResults int
}

// DefaultConfig returns the configuration used by the CLI.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:          filepath.Join(home, ".chattree"),
		MaxSearchResults: 20,
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is a canvas backed by SQLite.
type Store struct {
	db    *sql.DB
	cfg   Config
	hooks storeHooks
}

var _ notegraph.Host = (*Store)(nil)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type storeHooks struct {
	exec    func(ctx context.Context, db execer, query string, args ...any) (sql.Result, error)
	query   func(ctx context.Context, db queryer, query string, args ...any) (*sql.Rows, error)
	beginTx func(ctx context.Context, db *sql.DB) (*sql.Tx, error)
	commit  func(tx *sql.Tx) error
}

func defaultStoreHooks() storeHooks {
	return storeHooks{
		exec: func(ctx context.Context, db execer, query string, args ...any) (sql.Result, error) {
			return db.ExecContext(ctx, query, args...)
		},
		query: func(ctx context.Context, db queryer, query string, args ...any) (*sql.Rows, error) {
			return db.QueryContext(ctx, query, args...)
		},
		beginTx: func(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
			return db.BeginTx(ctx, nil)
		},
		commit: func(tx *sql.Tx) error {
			return tx.Commit()
		},
	}
}

func (s *Store) execHook(ctx context.Context, db execer, query string, args ...any) (sql.Result, error) {
	if s.hooks.exec != nil {
		return s.hooks.exec(ctx, db, query, args...)
	}
	return db.ExecContext(ctx, query, args...)
}

func (s *Store) queryHook(ctx context.Context, db queryer, query string, args ...any) (*sql.Rows, error) {
	if s.hooks.query != nil {
		return s.hooks.query(ctx, db, query, args...)
	}
	return db.QueryContext(ctx, query, args...)
}

func (s *Store) beginTxHook(ctx context.Context) (*sql.Tx, error) {
	if s.hooks.beginTx != nil {
		return s.hooks.beginTx(ctx, s.db)
	}
	return s.db.BeginTx(ctx, nil)
}

func (s *Store) commitHook(tx *sql.Tx) error {
	if s.hooks.commit != nil {
		return s.hooks.commit(tx)
	}
	return tx.Commit()
}

// New opens (creating if needed) the canvas database under cfg.DataDir.
func New(cfg Config) (*Store, error) {
	if cfg.MaxSearchResults <= 0 {
		cfg.MaxSearchResults = 20
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("canvas: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "canvas.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("canvas: open database: %w", err)
	}
	// one writer; WAL readers don't need more
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("canvas: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg, hooks: defaultStoreHooks()}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("canvas: migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS notes (
			id         TEXT PRIMARY KEY,
			text       TEXT    NOT NULL DEFAULT '',
			role       TEXT    NOT NULL DEFAULT 'user',
			color      TEXT    NOT NULL DEFAULT '',
			x          INTEGER NOT NULL DEFAULT 0,
			y          INTEGER NOT NULL DEFAULT 0,
			width      INTEGER NOT NULL DEFAULT 400,
			height     INTEGER NOT NULL DEFAULT 100,
			created_at TEXT    NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT    NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS edges (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			from_id    TEXT NOT NULL,
			to_id      TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (from_id) REFERENCES notes(id) ON DELETE CASCADE,
			FOREIGN KEY (to_id)   REFERENCES notes(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_id);
		CREATE INDEX IF NOT EXISTS idx_edges_to   ON edges(to_id);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_edges_unique ON edges(from_id, to_id);

		CREATE TABLE IF NOT EXISTS selection (
			note_id  TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			FOREIGN KEY (note_id) REFERENCES notes(id) ON DELETE CASCADE
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			text,
			content='notes'
		);
	`
	if _, err := s.execHook(ctx, s.db, schema); err != nil {
		return err
	}

	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='trigger' AND name='notes_fts_insert'",
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		triggers := `
			CREATE TRIGGER notes_fts_insert AFTER INSERT ON notes BEGIN
				INSERT INTO notes_fts(rowid, text) VALUES (new.rowid, new.text);
			END;

			CREATE TRIGGER notes_fts_delete AFTER DELETE ON notes BEGIN
				INSERT INTO notes_fts(notes_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
			END;

			CREATE TRIGGER notes_fts_update AFTER UPDATE OF text ON notes BEGIN
				INSERT INTO notes_fts(notes_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
				INSERT INTO notes_fts(rowid, text) VALUES (new.rowid, new.text);
			END;
		`
		if _, err := s.execHook(ctx, s.db, triggers); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	return nil
}

// ─── Notes ───────────────────────────────────────────────────────────────────

const noteColumns = `n.id, n.text, n.role, n.color, n.x, n.y, n.width, n.height, n.created_at, n.updated_at`

// AddNote inserts a note and connects it to p.Parents, in order.
func (s *Store) AddNote(ctx context.Context, p AddParams) (*Note, error) {
	if strings.TrimSpace(p.Text) == "" {
		return nil, ErrEmptyText
	}
	rec := Record{
		ID:     uuid.NewString(),
		Text:   p.Text,
		Role:   normalizeRole(p.Role),
		Color:  p.Color,
		X:      p.X,
		Y:      p.Y,
		Width:  orDefault(p.Width, DefaultWidth),
		Height: orDefault(p.Height, DefaultHeight),
	}
	rec.CreatedAt = now()
	rec.UpdatedAt = rec.CreatedAt

	tx, err := s.beginTxHook(ctx)
	if err != nil {
		return nil, fmt.Errorf("canvas: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.insertNote(ctx, tx, rec); err != nil {
		return nil, err
	}
	for _, parent := range p.Parents {
		if err := s.insertEdge(ctx, tx, rec.ID, parent); err != nil {
			return nil, err
		}
	}
	if err := s.commitHook(tx); err != nil {
		return nil, fmt.Errorf("canvas: commit: %w", err)
	}
	return s.wrap(rec), nil
}

// GetNote returns the note with the given id, or ErrNotFound.
func (s *Store) GetNote(ctx context.Context, id string) (*Note, error) {
	recs, err := s.queryRecords(ctx, s.db, `SELECT `+noteColumns+` FROM notes n WHERE n.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.wrap(recs[0]), nil
}

// ListNotes returns notes in creation order. A limit <= 0 returns all of them.
func (s *Store) ListNotes(ctx context.Context, limit int) ([]*Note, error) {
	q := `SELECT ` + noteColumns + ` FROM notes n ORDER BY n.created_at ASC, n.rowid ASC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	recs, err := s.queryRecords(ctx, s.db, q, args...)
	if err != nil {
		return nil, err
	}
	return s.wrapAll(recs), nil
}

// Children returns the notes pointing to id, oldest edge first.
func (s *Store) Children(ctx context.Context, id string) ([]*Note, error) {
	recs, err := s.queryRecords(ctx, s.db, `
		SELECT `+noteColumns+`
		FROM edges e JOIN notes n ON n.id = e.from_id
		WHERE e.to_id = ?
		ORDER BY e.id ASC`, id)
	if err != nil {
		return nil, err
	}
	return s.wrapAll(recs), nil
}

// Connect adds an edge from child to parent. The newest edge of a note
// decides which parent generation follows.
func (s *Store) Connect(ctx context.Context, child, parent string) error {
	tx, err := s.beginTxHook(ctx)
	if err != nil {
		return fmt.Errorf("canvas: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.insertEdge(ctx, tx, child, parent); err != nil {
		return err
	}
	if err := s.commitHook(tx); err != nil {
		return fmt.Errorf("canvas: commit: %w", err)
	}
	return nil
}

// Disconnect removes the edge from child to parent, if any.
func (s *Store) Disconnect(ctx context.Context, child, parent string) error {
	if _, err := s.execHook(ctx, s.db, `DELETE FROM edges WHERE from_id = ? AND to_id = ?`, child, parent); err != nil {
		return fmt.Errorf("canvas: disconnect: %w", err)
	}
	return nil
}

// Select replaces the selection with ids, in order.
func (s *Store) Select(ctx context.Context, ids ...string) error {
	tx, err := s.beginTxHook(ctx)
	if err != nil {
		return fmt.Errorf("canvas: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := s.execHook(ctx, tx, `DELETE FROM selection`); err != nil {
		return fmt.Errorf("canvas: clear selection: %w", err)
	}
	for i, id := range ids {
		ok, err := s.exists(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if _, err := s.execHook(ctx, tx,
			`INSERT OR IGNORE INTO selection (note_id, position) VALUES (?, ?)`, id, i,
		); err != nil {
			return fmt.Errorf("canvas: select %s: %w", id, err)
		}
	}
	if err := s.commitHook(tx); err != nil {
		return fmt.Errorf("canvas: commit: %w", err)
	}
	return nil
}

// Search runs a full-text query over note text. An empty query returns
// the most recently updated notes.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > s.cfg.MaxSearchResults {
		limit = s.cfg.MaxSearchResults
	}

	fts := sanitizeFTS(query)
	if fts == "" {
		recs, err := s.queryRecords(ctx, s.db,
			`SELECT `+noteColumns+` FROM notes n ORDER BY n.updated_at DESC, n.rowid DESC LIMIT ?`, limit)
		if err != nil {
			return nil, err
		}
		out := make([]SearchResult, 0, len(recs))
		for _, r := range recs {
			out = append(out, SearchResult{Record: r})
		}
		return out, nil
	}

	rows, err := s.queryHook(ctx, s.db, `
		SELECT `+noteColumns+`, fts.rank
		FROM notes_fts fts
		JOIN notes n ON n.rowid = fts.rowid
		WHERE notes_fts MATCH ?
		ORDER BY fts.rank
		LIMIT ?`, fts, limit)
	if err != nil {
		return nil, fmt.Errorf("canvas: search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SearchResult
	for rows.Next() {
		var sr SearchResult
		if err := rows.Scan(
			&sr.ID, &sr.Text, &sr.Role, &sr.Color, &sr.X, &sr.Y, &sr.Width, &sr.Height,
			&sr.CreatedAt, &sr.UpdatedAt, &sr.Rank,
		); err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

// Export returns every note and edge.
func (s *Store) Export(ctx context.Context) (*Snapshot, error) {
	recs, err := s.queryRecords(ctx, s.db, `SELECT `+noteColumns+` FROM notes n ORDER BY n.created_at ASC, n.rowid ASC`)
	if err != nil {
		return nil, err
	}
	rows, err := s.queryHook(ctx, s.db, `SELECT id, from_id, to_id, created_at FROM edges ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("canvas: export edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snap := &Snapshot{Notes: recs, Edges: []Edge{}}
	if snap.Notes == nil {
		snap.Notes = []Record{}
	}
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.ID, &e.From, &e.To, &e.CreatedAt); err != nil {
			return nil, err
		}
		snap.Edges = append(snap.Edges, e)
	}
	return snap, rows.Err()
}

// ─── Host ────────────────────────────────────────────────────────────────────

// Selection returns the selected notes in selection order.
func (s *Store) Selection(ctx context.Context) ([]notegraph.Node, error) {
	recs, err := s.queryRecords(ctx, s.db, `
		SELECT `+noteColumns+`
		FROM selection sel JOIN notes n ON n.id = sel.note_id
		ORDER BY sel.position ASC`)
	if err != nil {
		return nil, err
	}
	out := make([]notegraph.Node, 0, len(recs))
	for _, r := range recs {
		out = append(out, s.wrap(r))
	}
	return out, nil
}

// CreateNode places a new note below parent, to the right of any children
// parent already has, and connects it to parent.
func (s *Store) CreateNode(ctx context.Context, parent notegraph.Node, nn notegraph.NewNode) (notegraph.Node, error) {
	tx, err := s.beginTxHook(ctx)
	if err != nil {
		return nil, fmt.Errorf("canvas: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	recs, err := s.queryRecords(ctx, tx, `SELECT `+noteColumns+` FROM notes n WHERE n.id = ?`, parent.ID())
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, parent.ID())
	}
	p := recs[0]

	var siblings int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM edges WHERE to_id = ?`, p.ID).Scan(&siblings); err != nil {
		return nil, fmt.Errorf("canvas: count children: %w", err)
	}

	width := orDefault(nn.Width, p.Width)
	rec := Record{
		ID:     uuid.NewString(),
		Text:   nn.Text,
		Role:   normalizeRole(nn.Role),
		Color:  nn.Color,
		X:      p.X + siblings*(width+siblingGap),
		Y:      p.Y + p.Height + childMargin,
		Width:  width,
		Height: orDefault(nn.Height, DefaultHeight),
	}
	rec.CreatedAt = now()
	rec.UpdatedAt = rec.CreatedAt

	if err := s.insertNote(ctx, tx, rec); err != nil {
		return nil, err
	}
	if err := s.insertEdge(ctx, tx, rec.ID, p.ID); err != nil {
		return nil, err
	}
	if err := s.commitHook(tx); err != nil {
		return nil, fmt.Errorf("canvas: commit: %w", err)
	}
	return s.wrap(rec), nil
}

// RemoveNode deletes a note and its edges. Removing a missing note is not
// an error.
func (s *Store) RemoveNode(ctx context.Context, id string) error {
	if _, err := s.execHook(ctx, s.db, `DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("canvas: remove %s: %w", id, err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	return s.exists(ctx, s.db, id)
}

// RequestSave checkpoints the WAL so the canvas file is self-contained.
func (s *Store) RequestSave(ctx context.Context) error {
	if _, err := s.execHook(ctx, s.db, `PRAGMA wal_checkpoint(PASSIVE)`); err != nil {
		return fmt.Errorf("canvas: checkpoint: %w", err)
	}
	return nil
}

// RequestFrame is a no-op: nothing renders a stored canvas.
func (s *Store) RequestFrame(ctx context.Context) error { return nil }

// ─── Note ────────────────────────────────────────────────────────────────────

// Note is a stored note. Its accessors read a cached copy of the row that
// Apply keeps current.
type Note struct {
	s   *Store
	mu  sync.RWMutex
	rec Record
}

var _ notegraph.Node = (*Note)(nil)

func (n *Note) ID() string { return n.rec.ID }

func (n *Note) Text() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.rec.Text
}

func (n *Note) Role() notegraph.Role { return n.rec.Role }

func (n *Note) Geometry() notegraph.Geometry {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return notegraph.Geometry{X: n.rec.X, Y: n.rec.Y, Width: n.rec.Width, Height: n.rec.Height}
}

func (n *Note) Color() string { return n.rec.Color }

// Record returns a copy of the cached row.
func (n *Note) Record() Record {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.rec
}

// Parents returns the notes n points to, oldest edge first.
func (n *Note) Parents(ctx context.Context) ([]notegraph.Node, error) {
	recs, err := n.s.queryRecords(ctx, n.s.db, `
		SELECT `+noteColumns+`
		FROM edges e JOIN notes n ON n.id = e.to_id
		WHERE e.from_id = ?
		ORDER BY e.id ASC`, n.rec.ID)
	if err != nil {
		return nil, err
	}
	out := make([]notegraph.Node, 0, len(recs))
	for _, r := range recs {
		out = append(out, n.s.wrap(r))
	}
	return out, nil
}

// Apply writes u in a single statement. It returns ErrNotFound when the
// note has been deleted.
func (n *Note) Apply(ctx context.Context, u notegraph.Update) error {
	var text, height any
	if u.Text != nil {
		text = *u.Text
	}
	if u.Height != nil {
		height = *u.Height
	}
	ts := now()
	res, err := n.s.execHook(ctx, n.s.db, `
		UPDATE notes
		SET text = COALESCE(?, text), height = COALESCE(?, height), updated_at = ?
		WHERE id = ?`, text, height, ts, n.rec.ID)
	if err != nil {
		return fmt.Errorf("canvas: update %s: %w", n.rec.ID, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, n.rec.ID)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if u.Text != nil {
		n.rec.Text = *u.Text
	}
	if u.Height != nil {
		n.rec.Height = *u.Height
	}
	n.rec.UpdatedAt = ts
	return nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (s *Store) wrap(r Record) *Note { return &Note{s: s, rec: r} }

func (s *Store) wrapAll(recs []Record) []*Note {
	out := make([]*Note, 0, len(recs))
	for _, r := range recs {
		out = append(out, s.wrap(r))
	}
	return out
}

func (s *Store) queryRecords(ctx context.Context, db queryer, query string, args ...any) ([]Record, error) {
	rows, err := s.queryHook(ctx, db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("canvas: query notes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Text, &r.Role, &r.Color, &r.X, &r.Y, &r.Width, &r.Height, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) insertNote(ctx context.Context, tx *sql.Tx, r Record) error {
	_, err := s.execHook(ctx, tx, `
		INSERT INTO notes (id, text, role, color, x, y, width, height, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Text, string(r.Role), r.Color, r.X, r.Y, r.Width, r.Height, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("canvas: insert note: %w", err)
	}
	return nil
}

func (s *Store) insertEdge(ctx context.Context, tx *sql.Tx, from, to string) error {
	if from == to {
		return ErrSelfEdge
	}
	for _, id := range []string{from, to} {
		ok, err := s.exists(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
	}
	_, err := s.execHook(ctx, tx,
		`INSERT INTO edges (from_id, to_id, created_at) VALUES (?, ?, ?)`, from, to, now())
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s -> %s", ErrDuplicateEdge, from, to)
	}
	if err != nil {
		return fmt.Errorf("canvas: insert edge: %w", err)
	}
	return nil
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) exists(ctx context.Context, db rowQueryer, id string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM notes WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("canvas: lookup %s: %w", id, err)
	}
	return true, nil
}

func normalizeRole(r notegraph.Role) notegraph.Role {
	if r == notegraph.RoleAssistant {
		return r
	}
	return notegraph.RoleUser
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// sanitizeFTS wraps each word in quotes for safe FTS5 queries.
// "fix auth bug" → `"fix" "auth" "bug"`
func sanitizeFTS(query string) string {
	words := strings.Fields(query)
	for i, w := range words {
		w = strings.ReplaceAll(w, `"`, "")
		words[i] = `"` + w + `"`
	}
	return strings.Join(words, " ")
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
