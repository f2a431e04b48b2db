package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ha-floorplan/internal/common/apperr"
	"ha-floorplan/internal/relay/models"
	"ha-floorplan/pkg/layout"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ============================================================
// SQLite Repository
// ============================================================

type Repository struct {
	db *sql.DB
}

func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Init применяет встроенные миграции.
func (r *Repository) Init(ctx context.Context) error {
	if err := r.runMigrations(ctx); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

// Ping проверяет соединение (для readiness-пробы).
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const floorplanColumns = `id, filename, natural_width, natural_height, format_version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFloorplan(row rowScanner) (*models.Floorplan, error) {
	var f models.Floorplan
	if err := row.Scan(&f.ID, &f.Filename, &f.NaturalWidth, &f.NaturalHeight, &f.FormatVersion, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *Repository) ListFloorplans(ctx context.Context) ([]models.Floorplan, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT `+floorplanColumns+`
        FROM floorplans
        ORDER BY id
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []models.Floorplan
	for rows.Next() {
		f, err := scanFloorplan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range plans {
		if plans[i].Positions, err = r.positions(ctx, plans[i].ID); err != nil {
			return nil, err
		}
	}
	return plans, nil
}

func (r *Repository) GetFloorplan(ctx context.Context, id string) (*models.Floorplan, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT `+floorplanColumns+`
        FROM floorplans
        WHERE id = ?
    `, id)

	f, err := scanFloorplan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.CodeNotFound, "floorplan %q not found", id)
		}
		return nil, err
	}
	if f.Positions, err = r.positions(ctx, id); err != nil {
		return nil, err
	}
	return f, nil
}

// Latest - последний обновлённый план или nil, если планов нет.
func (r *Repository) Latest(ctx context.Context) (*models.Floorplan, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT `+floorplanColumns+`
        FROM floorplans
        ORDER BY updated_at DESC, id
        LIMIT 1
    `)
	f, err := scanFloorplan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if f.Positions, err = r.positions(ctx, f.ID); err != nil {
		return nil, err
	}
	return f, nil
}

// CreateFloorplan создаёт план без позиций. Имя должно быть свободно.
func (r *Repository) CreateFloorplan(ctx context.Context, f models.Floorplan) error {
	if f.ID == "" {
		return apperr.New(apperr.CodeInvalidInput, "floorplan name required")
	}
	exists, err := r.exists(ctx, r.db, f.ID)
	if err != nil {
		return err
	}
	if exists {
		return apperr.New(apperr.CodeAlreadyExists, "floorplan %q already exists", f.ID)
	}

	_, err = r.db.ExecContext(ctx, `
        INSERT INTO floorplans (id, filename, natural_width, natural_height, format_version)
        VALUES (?, ?, ?, ?, ?)
    `, f.ID, f.Filename, f.NaturalWidth, f.NaturalHeight, models.FormatNormalized)
	if err != nil {
		return fmt.Errorf("insert floorplan: %w", err)
	}
	return nil
}

// UpdateFloorplanAsset заменяет файл плана и его натуральный размер.
// Нормализованные позиции остаются валидными при смене ассета.
func (r *Repository) UpdateFloorplanAsset(ctx context.Context, id, filename string, natural layout.Size) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE floorplans
        SET filename = ?, natural_width = ?, natural_height = ?, updated_at = datetime('now')
        WHERE id = ?
    `, filename, natural.Width, natural.Height, id)
	if err != nil {
		return fmt.Errorf("update floorplan: %w", err)
	}
	return notFoundIfNone(res, id)
}

// DeleteFloorplan удаляет план вместе с позициями.
func (r *Repository) DeleteFloorplan(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE floorplan_id = ?`, id); err != nil {
		return fmt.Errorf("delete positions: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM floorplans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete floorplan: %w", err)
	}
	if err := notFoundIfNone(res, id); err != nil {
		return err
	}
	return tx.Commit()
}

// SetPositions заменяет набор позиций плана целиком. Координаты
// прижимаются к [0,1], при повторе entity_id побеждает последняя запись.
func (r *Repository) SetPositions(ctx context.Context, id string, positions []models.Position) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	exists, err := r.exists(ctx, tx, id)
	if err != nil {
		return err
	}
	if !exists {
		return apperr.New(apperr.CodeNotFound, "floorplan %q not found", id)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE floorplan_id = ?`, id); err != nil {
		return fmt.Errorf("clear positions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT OR REPLACE INTO positions (floorplan_id, entity_id, kind, x, y, seq)
        VALUES (?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, p := range positions {
		if p.EntityID == "" {
			return apperr.New(apperr.CodeInvalidInput, "position %d: entity_id required", i)
		}
		pt := layout.Constrain(layout.Point{X: p.X, Y: p.Y})
		if _, err := stmt.ExecContext(ctx, id, p.EntityID, p.Kind, pt.X, pt.Y, i); err != nil {
			return fmt.Errorf("insert position %s: %w", p.EntityID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
        UPDATE floorplans SET format_version = ?, updated_at = datetime('now') WHERE id = ?
    `, models.FormatNormalized, id); err != nil {
		return fmt.Errorf("touch floorplan: %w", err)
	}
	return tx.Commit()
}

// Hierarchy - все планы в виде {имя: {filename, positions}}.
func (r *Repository) Hierarchy(ctx context.Context) (models.Hierarchy, error) {
	plans, err := r.ListFloorplans(ctx)
	if err != nil {
		return nil, err
	}
	h := make(models.Hierarchy, len(plans))
	for _, p := range plans {
		positions := p.Positions
		if positions == nil {
			positions = []models.Position{}
		}
		h[p.ID] = models.PlanEntry{
			Filename:      p.Filename,
			NaturalWidth:  p.NaturalWidth,
			NaturalHeight: p.NaturalHeight,
			Positions:     positions,
		}
	}
	return h, nil
}

func (r *Repository) positions(ctx context.Context, id string) ([]models.Position, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT entity_id, kind, x, y
        FROM positions
        WHERE floorplan_id = ?
        ORDER BY seq, entity_id
    `, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Position
	for rows.Next() {
		var p models.Position
		if err := rows.Scan(&p.EntityID, &p.Kind, &p.X, &p.Y); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Repository) exists(ctx context.Context, q querier, id string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(1) FROM floorplans WHERE id = ?`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func notFoundIfNone(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.New(apperr.CodeNotFound, "floorplan %q not found", id)
	}
	return nil
}

// ============================================================
// Migrations
// ============================================================

func (r *Repository) runMigrations(ctx context.Context) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	for _, e := range entries {
		data, err := migrations.ReadFile("migrations/" + e.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		if _, err := r.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", e.Name(), err)
		}
	}
	return nil
}

// OpenSQLite открывает sqlite по указанному пути.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
