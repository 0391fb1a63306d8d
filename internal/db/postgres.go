package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/giftloop/draw-engine/internal/solver"
	"github.com/giftloop/draw-engine/pkg/models"
)

// schemaSQL is compiled into the binary at build time so schema init works
// inside the runtime image without shipping the .sql file alongside it.
//
//go:embed schema.sql
var schemaSQL string

// uniqueViolation is the Postgres error code the first-writer-wins guarantee
// hinges on.
const uniqueViolation = "23505"

type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL for Draw Engine")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *PostgresStore) InitSchema() error {
	_, err := s.pool.Exec(context.Background(), schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	log.Println("Draw Engine schema initialized")
	return nil
}

// GetPool exposes the connection pool for subsystems that need raw access.
func (s *PostgresStore) GetPool() *pgxpool.Pool {
	return s.pool
}

// CreateGroup inserts a new group and returns it with a generated id.
func (s *PostgresStore) CreateGroup(ctx context.Context, name string) (models.Group, error) {
	g := models.Group{ID: uuid.NewString(), Name: name}
	sql := `INSERT INTO groups (id, name) VALUES ($1, $2) RETURNING created_at`
	if err := s.pool.QueryRow(ctx, sql, g.ID, g.Name).Scan(&g.CreatedAt); err != nil {
		return models.Group{}, fmt.Errorf("failed to insert group: %v", err)
	}
	return g, nil
}

// CreateMember adds a member to a group.
func (s *PostgresStore) CreateMember(ctx context.Context, groupID, name, email string) (models.Member, error) {
	m := models.Member{ID: uuid.NewString(), GroupID: groupID, Name: name, Email: email, Active: true}
	sql := `
		INSERT INTO members (id, group_id, name, email)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		RETURNING joined_at
	`
	if err := s.pool.QueryRow(ctx, sql, m.ID, m.GroupID, m.Name, m.Email).Scan(&m.JoinedAt); err != nil {
		return models.Member{}, fmt.Errorf("failed to insert member: %v", err)
	}
	return m, nil
}

// DeactivateMember removes a member from future draws without deleting the
// rows their past assignments reference.
func (s *PostgresStore) DeactivateMember(ctx context.Context, memberID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE members SET active = FALSE WHERE id = $1`, memberID)
	if err != nil {
		return fmt.Errorf("failed to deactivate member: %v", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("member not found: %s", memberID)
	}
	return nil
}

// ListActiveMembers returns the active members of a group in join order.
func (s *PostgresStore) ListActiveMembers(ctx context.Context, groupID string) ([]models.Member, error) {
	sql := `
		SELECT id, group_id, name, COALESCE(email, ''), active, joined_at
		FROM members
		WHERE group_id = $1 AND active
		ORDER BY joined_at, id
	`
	rows, err := s.pool.Query(ctx, sql, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]models.Member, 0)
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.ID, &m.GroupID, &m.Name, &m.Email, &m.Active, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListActiveMemberIDs returns just the ids, in the same stable join order the
// seeded solver's determinism contract requires.
func (s *PostgresStore) ListActiveMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	members, err := s.ListActiveMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	return ids, nil
}

// CreateExclusion records a manual giver->receiver exclusion. The mutual flag
// is stored on the row; expansion to the reverse direction happens when the
// exclusion set is built for a solve.
func (s *PostgresStore) CreateExclusion(ctx context.Context, groupID, giverID, receiverID string, mutual bool) (models.Exclusion, error) {
	if giverID == receiverID {
		return models.Exclusion{}, fmt.Errorf("self-exclusion is not representable: %s", giverID)
	}
	ex := models.Exclusion{
		ID:         uuid.NewString(),
		GroupID:    groupID,
		GiverID:    giverID,
		ReceiverID: receiverID,
		Mutual:     mutual,
	}
	sql := `
		INSERT INTO exclusions (id, group_id, giver_id, receiver_id, mutual)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	if err := s.pool.QueryRow(ctx, sql, ex.ID, ex.GroupID, ex.GiverID, ex.ReceiverID, ex.Mutual).Scan(&ex.CreatedAt); err != nil {
		return models.Exclusion{}, fmt.Errorf("failed to insert exclusion: %v", err)
	}
	return ex, nil
}

// ListExclusions returns all manual exclusion records for a group.
func (s *PostgresStore) ListExclusions(ctx context.Context, groupID string) ([]models.Exclusion, error) {
	sql := `
		SELECT id, group_id, giver_id, receiver_id, mutual, created_at
		FROM exclusions
		WHERE group_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.pool.Query(ctx, sql, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exclusions := make([]models.Exclusion, 0)
	for rows.Next() {
		var ex models.Exclusion
		if err := rows.Scan(&ex.ID, &ex.GroupID, &ex.GiverID, &ex.ReceiverID, &ex.Mutual, &ex.CreatedAt); err != nil {
			return nil, err
		}
		exclusions = append(exclusions, ex)
	}
	return exclusions, rows.Err()
}

// CreateDraw inserts a pending draw for a group.
func (s *PostgresStore) CreateDraw(ctx context.Context, groupID, name, seed string, lookback int, scheduledAt *time.Time) (models.Draw, error) {
	d := models.Draw{
		ID:          uuid.NewString(),
		GroupID:     groupID,
		Name:        name,
		Status:      models.DrawStatusPending,
		Seed:        seed,
		Lookback:    lookback,
		ScheduledAt: scheduledAt,
	}
	sql := `
		INSERT INTO draws (id, group_id, name, status, seed, lookback, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	if err := s.pool.QueryRow(ctx, sql, d.ID, d.GroupID, d.Name, d.Status, d.Seed, d.Lookback, d.ScheduledAt).Scan(&d.CreatedAt); err != nil {
		return models.Draw{}, fmt.Errorf("failed to insert draw: %v", err)
	}
	return d, nil
}

// GetDraw loads a single draw by id.
func (s *PostgresStore) GetDraw(ctx context.Context, drawID string) (models.Draw, error) {
	sql := `
		SELECT id, group_id, name, status, seed, lookback, scheduled_at, created_at, completed_at
		FROM draws
		WHERE id = $1
	`
	var d models.Draw
	err := s.pool.QueryRow(ctx, sql, drawID).Scan(
		&d.ID, &d.GroupID, &d.Name, &d.Status, &d.Seed, &d.Lookback,
		&d.ScheduledAt, &d.CreatedAt, &d.CompletedAt,
	)
	if err != nil {
		return models.Draw{}, fmt.Errorf("draw not found: %s: %v", drawID, err)
	}
	return d, nil
}

// MarkDrawFailed records a terminal failure diagnostic for a pending draw.
func (s *PostgresStore) MarkDrawFailed(ctx context.Context, drawID, reason string) error {
	sql := `UPDATE draws SET status = $2, fail_reason = $3 WHERE id = $1 AND status = $4`
	_, err := s.pool.Exec(ctx, sql, drawID, models.DrawStatusFailed, reason, models.DrawStatusPending)
	return err
}

// ListDueDraws returns pending draws whose scheduled time has passed.
func (s *PostgresStore) ListDueDraws(ctx context.Context, now time.Time) ([]models.Draw, error) {
	sql := `
		SELECT id, group_id, name, status, seed, lookback, scheduled_at, created_at, completed_at
		FROM draws
		WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
		ORDER BY scheduled_at
	`
	rows, err := s.pool.Query(ctx, sql, models.DrawStatusPending, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	draws := make([]models.Draw, 0)
	for rows.Next() {
		var d models.Draw
		if err := rows.Scan(&d.ID, &d.GroupID, &d.Name, &d.Status, &d.Seed, &d.Lookback,
			&d.ScheduledAt, &d.CreatedAt, &d.CompletedAt); err != nil {
			return nil, err
		}
		draws = append(draws, d)
	}
	return draws, rows.Err()
}

// SaveAssignments persists a generated batch and flips the draw to completed
// in one transaction. This is the "first writer wins" point: a concurrent
// duplicate execution either loses the status compare-and-swap or trips the
// unique (draw_id, giver_id) constraint, and in both cases the whole
// transaction rolls back and models.ErrAssignmentsExist is returned.
func (s *PostgresStore) SaveAssignments(ctx context.Context, draw models.Draw, records []models.Assignment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insertSQL := `
		INSERT INTO assignments (id, draw_id, giver_id, receiver_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, rec := range records {
		if _, err := tx.Exec(ctx, insertSQL, rec.ID, rec.DrawID, rec.GiverID, rec.ReceiverID, rec.CreatedAt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("draw %s: %w", draw.ID, models.ErrAssignmentsExist)
			}
			return fmt.Errorf("failed to insert assignment: %v", err)
		}
	}

	statusSQL := `
		UPDATE draws SET status = $2, completed_at = NOW()
		WHERE id = $1 AND status = $3
	`
	tag, err := tx.Exec(ctx, statusSQL, draw.ID, models.DrawStatusCompleted, models.DrawStatusPending)
	if err != nil {
		return fmt.Errorf("failed to complete draw: %v", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("draw %s: %w", draw.ID, models.ErrAssignmentsExist)
	}

	return tx.Commit(ctx)
}

// RecentAssignmentPairs returns giver->receiver pairs from the most recent
// `lookback` completed draws of a group, for use as no-repeat constraints.
// Computed fresh per call; never cached.
func (s *PostgresStore) RecentAssignmentPairs(ctx context.Context, groupID string, lookback int) ([]solver.Pair, error) {
	sql := `
		SELECT a.giver_id, a.receiver_id
		FROM assignments a
		WHERE a.draw_id IN (
			SELECT id FROM draws
			WHERE group_id = $1 AND status = $2
			ORDER BY completed_at DESC
			LIMIT $3
		)
	`
	rows, err := s.pool.Query(ctx, sql, groupID, models.DrawStatusCompleted, lookback)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pairs := make([]solver.Pair, 0)
	for rows.Next() {
		var p solver.Pair
		if err := rows.Scan(&p.Giver, &p.Receiver); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// ListAssignments returns a page of assignments for a draw plus the total count.
func (s *PostgresStore) ListAssignments(ctx context.Context, drawID string, page, limit int) ([]models.Assignment, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	var totalCount int
	countSQL := `SELECT COUNT(*) FROM assignments WHERE draw_id = $1`
	if err := s.pool.QueryRow(ctx, countSQL, drawID).Scan(&totalCount); err != nil {
		return nil, 0, err
	}

	dataSQL := `
		SELECT id, draw_id, giver_id, receiver_id, created_at
		FROM assignments
		WHERE draw_id = $1
		ORDER BY giver_id
		LIMIT $2 OFFSET $3
	`
	rows, err := s.pool.Query(ctx, dataSQL, drawID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	assignments := make([]models.Assignment, 0)
	for rows.Next() {
		var a models.Assignment
		if err := rows.Scan(&a.ID, &a.DrawID, &a.GiverID, &a.ReceiverID, &a.CreatedAt); err != nil {
			return nil, 0, err
		}
		assignments = append(assignments, a)
	}
	return assignments, totalCount, rows.Err()
}
