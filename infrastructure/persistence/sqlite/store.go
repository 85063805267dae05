// Package sqlite stores canvases, notebooks and clustering usage in a local
// SQLite file, for the CLI and single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"notemesh/domain/canvas"
	"notemesh/domain/notebook"
	pkgerrors "notemesh/pkg/errors"
)

// Store implements ports.CanvasRepository, ports.NotebookRepository and
// ports.UsageTracker on one database.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the database at path and migrates it
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer keeps SQLITE_BUSY out of the request path.
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	s := &Store{db: db, logger: logger, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS canvases (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			notebook_id TEXT,
			settings TEXT,
			created_at_unixms INTEGER NOT NULL,
			updated_at_unixms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_canvases_user ON canvases(user_id, created_at_unixms);`,
		`CREATE TABLE IF NOT EXISTS nodes (
			canvas_id TEXT NOT NULL REFERENCES canvases(id) ON DELETE CASCADE,
			id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			position TEXT NOT NULL,
			dimensions TEXT,
			text TEXT NOT NULL,
			tags TEXT NOT NULL,
			tasks TEXT NOT NULL,
			cluster_id TEXT,
			cluster_name TEXT,
			cluster_color TEXT,
			extensions TEXT,
			created_at_unixms INTEGER NOT NULL,
			PRIMARY KEY(canvas_id, id)
		);`,
		`CREATE TABLE IF NOT EXISTS edges (
			canvas_id TEXT NOT NULL REFERENCES canvases(id) ON DELETE CASCADE,
			id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			from_node_id TEXT NOT NULL,
			to_node_id TEXT NOT NULL,
			edge_type TEXT NOT NULL,
			label TEXT,
			PRIMARY KEY(canvas_id, id)
		);`,
		`CREATE TABLE IF NOT EXISTS clusters (
			canvas_id TEXT NOT NULL REFERENCES canvases(id) ON DELETE CASCADE,
			id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			name TEXT NOT NULL,
			color TEXT NOT NULL,
			PRIMARY KEY(canvas_id, id)
		);`,
		`CREATE TABLE IF NOT EXISTS notebooks (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			color TEXT,
			icon TEXT,
			settings TEXT,
			created_at_unixms INTEGER NOT NULL,
			updated_at_unixms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			notebook_id TEXT NOT NULL REFERENCES notebooks(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			formatted_content TEXT,
			created_at_unixms INTEGER NOT NULL,
			updated_at_unixms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS cluster_usage (
			user_id TEXT NOT NULL,
			usage_date TEXT NOT NULL,
			count INTEGER NOT NULL,
			PRIMARY KEY(user_id, usage_date)
		);`,
	}
	for _, st := range stmts {
		if _, err := s.db.ExecContext(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

func unixMs(t time.Time) int64 { return t.UnixMilli() }

func fromUnixMs(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func encodeJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeJSON(src sql.NullString, dst any) error {
	if !src.Valid || src.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(src.String), dst)
}

func dbError(op string, err error) error {
	return pkgerrors.NewDatabaseError(op, err)
}

// CreateCanvas implements ports.CanvasRepository
func (s *Store) CreateCanvas(ctx context.Context, c *canvas.Canvas) error {
	settings, err := encodeJSON(mapOrNil(c.Settings))
	if err != nil {
		return pkgerrors.NewInternalError("failed to encode settings").WithCause(err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO canvases (id, user_id, title, notebook_id, settings, created_at_unixms, updated_at_unixms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Title, c.NotebookID, settings, unixMs(c.CreatedAt), unixMs(c.UpdatedAt))
	if err != nil {
		return dbError("CreateCanvas", err)
	}
	return nil
}

func mapOrNil(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCanvas(row rowScanner) (*canvas.Canvas, error) {
	var (
		c                  canvas.Canvas
		notebookID         sql.NullString
		settings           sql.NullString
		createdMs, updated int64
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.Title, &notebookID, &settings, &createdMs, &updated); err != nil {
		return nil, err
	}
	c.NotebookID = notebookID.String
	if err := decodeJSON(settings, &c.Settings); err != nil {
		return nil, err
	}
	c.CreatedAt = fromUnixMs(createdMs)
	c.UpdatedAt = fromUnixMs(updated)
	return &c, nil
}

const canvasColumns = `id, user_id, title, notebook_id, settings, created_at_unixms, updated_at_unixms`

// GetCanvas implements ports.CanvasRepository
func (s *Store) GetCanvas(ctx context.Context, userID, canvasID string) (*canvas.Canvas, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+canvasColumns+` FROM canvases WHERE id = ? AND user_id = ?`, canvasID, userID)
	c, err := scanCanvas(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.NewNotFoundError("canvas").WithDetail("canvas_id", canvasID)
	}
	if err != nil {
		return nil, dbError("GetCanvas", err)
	}
	return c, nil
}

// GetDefaultCanvas implements ports.CanvasRepository
func (s *Store) GetDefaultCanvas(ctx context.Context, userID string) (*canvas.Canvas, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+canvasColumns+` FROM canvases WHERE user_id = ? ORDER BY created_at_unixms, id LIMIT 1`, userID)
	c, err := scanCanvas(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.NewNotFoundError("canvas").WithDetail("user_id", userID)
	}
	if err != nil {
		return nil, dbError("GetDefaultCanvas", err)
	}
	return c, nil
}

// ListCanvases implements ports.CanvasRepository
func (s *Store) ListCanvases(ctx context.Context, userID string) ([]*canvas.Canvas, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+canvasColumns+` FROM canvases WHERE user_id = ? ORDER BY created_at_unixms, id`, userID)
	if err != nil {
		return nil, dbError("ListCanvases", err)
	}
	defer rows.Close()

	var out []*canvas.Canvas
	for rows.Next() {
		c, err := scanCanvas(rows)
		if err != nil {
			return nil, dbError("ListCanvases", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LoadGraph implements ports.CanvasRepository
func (s *Store) LoadGraph(ctx context.Context, userID, canvasID string) (canvas.Snapshot, error) {
	if _, err := s.GetCanvas(ctx, userID, canvasID); err != nil {
		return canvas.Snapshot{}, err
	}
	graph := canvas.Snapshot{Nodes: []canvas.Node{}, Edges: []canvas.Edge{}, Clusters: []canvas.Cluster{}}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, position, dimensions, text, tags, tasks, cluster_id, cluster_name, cluster_color, extensions, created_at_unixms
		 FROM nodes WHERE canvas_id = ? ORDER BY seq`, canvasID)
	if err != nil {
		return graph, dbError("LoadGraph", err)
	}
	for rows.Next() {
		var (
			n                                  canvas.Node
			position, tags, tasks              sql.NullString
			dimensions, extensions             sql.NullString
			clusterID, clusterName, clusterCol sql.NullString
			createdMs                          int64
		)
		if err := rows.Scan(&n.ID, &position, &dimensions, &n.Data.Text, &tags, &tasks,
			&clusterID, &clusterName, &clusterCol, &extensions, &createdMs); err != nil {
			rows.Close()
			return graph, dbError("LoadGraph", err)
		}
		for _, f := range []struct {
			src sql.NullString
			dst any
		}{{position, &n.Position}, {dimensions, &n.Dimensions}, {tags, &n.Data.Tags}, {tasks, &n.Data.Tasks}, {extensions, &n.Data.Extensions}} {
			if err := decodeJSON(f.src, f.dst); err != nil {
				rows.Close()
				return graph, pkgerrors.NewInternalError("failed to decode node").WithCause(err)
			}
		}
		n.Data.ID = n.ID
		n.Data.ClusterID = clusterID.String
		n.Data.ClusterName = clusterName.String
		n.Data.ClusterColor = clusterCol.String
		n.Data.CreatedAt = fromUnixMs(createdMs)
		graph.Nodes = append(graph.Nodes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return graph, dbError("LoadGraph", err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT id, from_node_id, to_node_id, edge_type, label FROM edges WHERE canvas_id = ? ORDER BY seq`, canvasID)
	if err != nil {
		return graph, dbError("LoadGraph", err)
	}
	for rows.Next() {
		var (
			e     canvas.Edge
			kind  string
			label sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Source, &e.Target, &kind, &label); err != nil {
			rows.Close()
			return graph, dbError("LoadGraph", err)
		}
		e.Kind = canvas.EdgeKind(kind)
		e.Label = label.String
		graph.Edges = append(graph.Edges, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return graph, dbError("LoadGraph", err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT id, name, color FROM clusters WHERE canvas_id = ? ORDER BY seq`, canvasID)
	if err != nil {
		return graph, dbError("LoadGraph", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c canvas.Cluster
		if err := rows.Scan(&c.ID, &c.Name, &c.Color); err != nil {
			return graph, dbError("LoadGraph", err)
		}
		graph.Clusters = append(graph.Clusters, c)
	}
	return graph, rows.Err()
}

// SaveGraph implements ports.CanvasRepository by rewriting the canvas graph
// in one transaction.
func (s *Store) SaveGraph(ctx context.Context, userID, canvasID string, graph canvas.Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError("SaveGraph", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE canvases SET updated_at_unixms = ? WHERE id = ? AND user_id = ?`,
		unixMs(s.now()), canvasID, userID)
	if err != nil {
		return dbError("SaveGraph", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pkgerrors.NewNotFoundError("canvas").WithDetail("canvas_id", canvasID)
	}

	for _, table := range []string{"nodes", "edges", "clusters"} {
		if _, err = tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE canvas_id = ?`, canvasID); err != nil {
			return dbError("SaveGraph", err)
		}
	}

	for i, n := range graph.Nodes {
		var position, dimensions, tags, tasks, extensions sql.NullString
		if position, err = encodeJSON(n.Position); err != nil {
			return pkgerrors.NewInternalError("failed to encode node").WithCause(err)
		}
		if n.Dimensions != nil {
			if dimensions, err = encodeJSON(n.Dimensions); err != nil {
				return pkgerrors.NewInternalError("failed to encode node").WithCause(err)
			}
		}
		if tags, err = encodeJSON(nonNilStrings(n.Data.Tags)); err != nil {
			return pkgerrors.NewInternalError("failed to encode node").WithCause(err)
		}
		if tasks, err = encodeJSON(nonNilTasks(n.Data.Tasks)); err != nil {
			return pkgerrors.NewInternalError("failed to encode node").WithCause(err)
		}
		if extensions, err = encodeJSON(mapOrNil(n.Data.Extensions)); err != nil {
			return pkgerrors.NewInternalError("failed to encode node").WithCause(err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO nodes (canvas_id, id, seq, position, dimensions, text, tags, tasks, cluster_id, cluster_name, cluster_color, extensions, created_at_unixms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			canvasID, n.ID, i, position, dimensions, n.Data.Text, tags, tasks,
			n.Data.ClusterID, n.Data.ClusterName, n.Data.ClusterColor, extensions, unixMs(n.Data.CreatedAt))
		if err != nil {
			return dbError("SaveGraph", err)
		}
	}
	for i, e := range graph.Edges {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO edges (canvas_id, id, seq, from_node_id, to_node_id, edge_type, label) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			canvasID, e.ID, i, e.Source, e.Target, string(e.Kind), e.Label)
		if err != nil {
			return dbError("SaveGraph", err)
		}
	}
	for i, c := range graph.Clusters {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO clusters (canvas_id, id, seq, name, color) VALUES (?, ?, ?, ?, ?)`,
			canvasID, c.ID, i, c.Name, c.Color)
		if err != nil {
			return dbError("SaveGraph", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return dbError("SaveGraph", err)
	}
	return nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilTasks(t []canvas.Task) []canvas.Task {
	if t == nil {
		return []canvas.Task{}
	}
	return t
}

// DeleteCanvas implements ports.CanvasRepository
func (s *Store) DeleteCanvas(ctx context.Context, userID, canvasID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM canvases WHERE id = ? AND user_id = ?`, canvasID, userID); err != nil {
		return dbError("DeleteCanvas", err)
	}
	return nil
}

const notebookColumns = `id, user_id, title, color, icon, settings, created_at_unixms, updated_at_unixms`

// ListNotebooks implements ports.NotebookRepository
func (s *Store) ListNotebooks(ctx context.Context, userID string) ([]notebook.Notebook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+notebookColumns+` FROM notebooks WHERE user_id = ? ORDER BY created_at_unixms, id`, userID)
	if err != nil {
		return nil, dbError("ListNotebooks", err)
	}
	defer rows.Close()

	out := []notebook.Notebook{}
	for rows.Next() {
		var (
			nb                 notebook.Notebook
			color, icon        sql.NullString
			settings           sql.NullString
			createdMs, updated int64
		)
		if err := rows.Scan(&nb.ID, &nb.UserID, &nb.Title, &color, &icon, &settings, &createdMs, &updated); err != nil {
			return nil, dbError("ListNotebooks", err)
		}
		if err := decodeJSON(settings, &nb.Settings); err != nil {
			return nil, pkgerrors.NewInternalError("failed to decode notebook").WithCause(err)
		}
		nb.Color = color.String
		nb.Icon = icon.String
		nb.CreatedAt = fromUnixMs(createdMs)
		nb.UpdatedAt = fromUnixMs(updated)
		out = append(out, nb)
	}
	return out, rows.Err()
}

// SaveNotebook implements ports.NotebookRepository
func (s *Store) SaveNotebook(ctx context.Context, nb notebook.Notebook) error {
	settings, err := encodeJSON(mapOrNil(nb.Settings))
	if err != nil {
		return pkgerrors.NewInternalError("failed to encode settings").WithCause(err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notebooks (`+notebookColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title, color = excluded.color, icon = excluded.icon,
		 settings = excluded.settings, updated_at_unixms = excluded.updated_at_unixms`,
		nb.ID, nb.UserID, nb.Title, nb.Color, nb.Icon, settings, unixMs(nb.CreatedAt), unixMs(nb.UpdatedAt))
	if err != nil {
		return dbError("SaveNotebook", err)
	}
	return nil
}

// DeleteNotebook implements ports.NotebookRepository; notes cascade.
func (s *Store) DeleteNotebook(ctx context.Context, userID, notebookID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notebooks WHERE id = ? AND user_id = ?`, notebookID, userID); err != nil {
		return dbError("DeleteNotebook", err)
	}
	return nil
}

// ListNotes implements ports.NotebookRepository
func (s *Store) ListNotes(ctx context.Context, userID, notebookID string) ([]notebook.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, notebook_id, content, formatted_content, created_at_unixms, updated_at_unixms
		 FROM notes WHERE notebook_id = ? AND user_id = ? ORDER BY created_at_unixms, id`, notebookID, userID)
	if err != nil {
		return nil, dbError("ListNotes", err)
	}
	defer rows.Close()

	out := []notebook.Note{}
	for rows.Next() {
		var (
			n                  notebook.Note
			formatted          sql.NullString
			createdMs, updated int64
		)
		if err := rows.Scan(&n.ID, &n.NotebookID, &n.Content, &formatted, &createdMs, &updated); err != nil {
			return nil, dbError("ListNotes", err)
		}
		n.FormattedContent = formatted.String
		n.CreatedAt = fromUnixMs(createdMs)
		n.UpdatedAt = fromUnixMs(updated)
		out = append(out, n)
	}
	return out, rows.Err()
}

// SaveNote implements ports.NotebookRepository
func (s *Store) SaveNote(ctx context.Context, userID string, note notebook.Note) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (id, notebook_id, user_id, content, formatted_content, created_at_unixms, updated_at_unixms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET content = excluded.content, formatted_content = excluded.formatted_content,
		 updated_at_unixms = excluded.updated_at_unixms`,
		note.ID, note.NotebookID, userID, note.Content, note.FormattedContent, unixMs(note.CreatedAt), unixMs(note.UpdatedAt))
	if err != nil {
		return dbError("SaveNote", err)
	}
	return nil
}

// DeleteNote implements ports.NotebookRepository
func (s *Store) DeleteNote(ctx context.Context, userID, notebookID, noteID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ? AND user_id = ?`, noteID, userID); err != nil {
		return dbError("DeleteNote", err)
	}
	return nil
}

// Increment implements ports.UsageTracker
func (s *Store) Increment(ctx context.Context, userID string, day time.Time, limit int) (int, bool, error) {
	date := day.UTC().Format(time.DateOnly)
	query := `INSERT INTO cluster_usage (user_id, usage_date, count) VALUES (?, ?, 1)
		ON CONFLICT(user_id, usage_date) DO UPDATE SET count = count + 1`
	args := []any{userID, date}
	if limit > 0 {
		query += ` WHERE count < ?`
		args = append(args, limit)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, false, dbError("IncrementUsage", err)
	}
	affected, _ := res.RowsAffected()

	count, err := s.Count(ctx, userID, day)
	if err != nil {
		return 0, false, err
	}
	return count, affected > 0, nil
}

// Count implements ports.UsageTracker
func (s *Store) Count(ctx context.Context, userID string, day time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM cluster_usage WHERE user_id = ? AND usage_date = ?`,
		userID, day.UTC().Format(time.DateOnly)).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, dbError("CountUsage", err)
	}
	return count, nil
}
