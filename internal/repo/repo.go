package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"github.com/murphylan/scansign-sub001/internal/engine"
	"github.com/murphylan/scansign-sub001/internal/model"
)

var ErrActivityNotFound = errors.New("activity not found")

// Repository is the durable store behind the engine's in-memory mirror.
// It satisfies engine.Store.
type Repository interface {
	engine.Store
	GetActivityByID(ctx context.Context, id string) (*model.Activity, error)
	GetActivityByCode(ctx context.Context, code string) (*model.Activity, error)
	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations applied successfully from %s", migrationsDir)
	return nil
}

func (r *repository) MigrateDown(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.down.sql"))
	if err != nil {
		return fmt.Errorf("failed to read rollback files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read rollback file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations rolled back successfully from %s", migrationsDir)
	return nil
}

func (r *repository) CreateActivity(ctx context.Context, a *model.Activity) error {
	cfg, stats, err := marshalActivity(a)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO activities (id, code, kind, title, status, config, stats, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := r.db.ExecContext(ctx, query,
		a.ID, a.Code, a.Kind, a.Title, a.Status, cfg, stats, a.CreatedAt, a.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

func (r *repository) UpdateActivity(ctx context.Context, a *model.Activity) error {
	cfg, stats, err := marshalActivity(a)
	if err != nil {
		return err
	}
	query := `
		UPDATE activities
		SET title = $1, status = $2, config = $3, stats = $4, updated_at = $5
		WHERE id = $6
	`
	if _, err := r.db.ExecContext(ctx, query,
		a.Title, a.Status, cfg, stats, a.UpdatedAt, a.ID,
	); err != nil {
		return fmt.Errorf("failed to update activity: %w", err)
	}
	return nil
}

func (r *repository) DeleteActivity(ctx context.Context, id string) error {
	if err := r.DeleteActivityRecords(ctx, id); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM activities WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete activity: %w", err)
	}
	return nil
}

func (r *repository) DeleteActivityRecords(ctx context.Context, activityID string) error {
	for _, table := range []string{"checkin_records", "vote_records", "lottery_participants", "lottery_winners", "form_responses"} {
		query := fmt.Sprintf(`DELETE FROM %s WHERE activity_id = $1`, table)
		if _, err := r.db.ExecContext(ctx, query, activityID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

func (r *repository) GetActivityByID(ctx context.Context, id string) (*model.Activity, error) {
	return r.getActivity(ctx, `WHERE id = $1`, id)
}

func (r *repository) GetActivityByCode(ctx context.Context, code string) (*model.Activity, error) {
	return r.getActivity(ctx, `WHERE code = $1`, code)
}

func (r *repository) getActivity(ctx context.Context, where string, arg any) (*model.Activity, error) {
	query := `
		SELECT id, code, kind, title, status, config, stats, created_at, updated_at
		FROM activities ` + where
	row := r.db.QueryRowContext(ctx, query, arg)

	a, err := scanActivity(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrActivityNotFound
		}
		return nil, err
	}
	return a, nil
}

func (r *repository) UpsertCheckinRecord(ctx context.Context, rec *model.CheckinRecord) error {
	query := `
		INSERT INTO checkin_records (id, activity_id, phone, name, department, verify_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (activity_id, phone)
		DO UPDATE SET name = EXCLUDED.name, department = EXCLUDED.department, updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.ActivityID, rec.Phone, rec.Name, rec.Department, rec.VerifyCode, rec.CreatedAt, rec.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert checkin record: %w", err)
	}
	return nil
}

func (r *repository) UpsertVoteRecord(ctx context.Context, rec *model.VoteRecord) error {
	query := `
		INSERT INTO vote_records (id, activity_id, identity, option_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (activity_id, identity)
		DO UPDATE SET option_id = EXCLUDED.option_id, updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.ActivityID, rec.Identity, rec.OptionID, rec.CreatedAt, rec.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert vote record: %w", err)
	}
	return nil
}

func (r *repository) InsertLotteryParticipant(ctx context.Context, p *model.LotteryParticipant) error {
	query := `
		INSERT INTO lottery_participants (id, activity_id, identity, name, weight, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (activity_id, identity) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query,
		p.ID, p.ActivityID, p.Identity, p.Name, p.Weight, p.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert lottery participant: %w", err)
	}
	return nil
}

func (r *repository) InsertLotteryWinner(ctx context.Context, w *model.LotteryWinner) error {
	query := `
		INSERT INTO lottery_winners (id, activity_id, participant_id, prize_id, won_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query,
		w.ID, w.ActivityID, w.ParticipantID, w.PrizeID, w.WonAt,
	); err != nil {
		return fmt.Errorf("failed to insert lottery winner: %w", err)
	}
	return nil
}

func (r *repository) InsertFormResponse(ctx context.Context, resp *model.FormResponse) error {
	values, err := json.Marshal(resp.Values)
	if err != nil {
		return fmt.Errorf("failed to marshal form values: %w", err)
	}
	query := `
		INSERT INTO form_responses (id, activity_id, identity, form_values, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query,
		resp.ID, resp.ActivityID, resp.Identity, values, resp.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert form response: %w", err)
	}
	return nil
}

// LoadSnapshot reads every activity and its records for the engine's boot
// hydration.
func (r *repository) LoadSnapshot(ctx context.Context) (*engine.Snapshot, error) {
	snap := &engine.Snapshot{
		Checkins:  make(map[string][]*model.CheckinRecord),
		Votes:     make(map[string][]*model.VoteRecord),
		Entrants:  make(map[string][]*model.LotteryParticipant),
		Winners:   make(map[string][]*model.LotteryWinner),
		Responses: make(map[string][]*model.FormResponse),
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, code, kind, title, status, config, stats, created_at, updated_at
		FROM activities
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load activities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanActivity(rows.Scan)
		if err != nil {
			return nil, err
		}
		snap.Activities = append(snap.Activities, a)
	}

	if err := r.loadCheckins(ctx, snap); err != nil {
		return nil, err
	}
	if err := r.loadVotes(ctx, snap); err != nil {
		return nil, err
	}
	if err := r.loadEntrants(ctx, snap); err != nil {
		return nil, err
	}
	if err := r.loadWinners(ctx, snap); err != nil {
		return nil, err
	}
	if err := r.loadResponses(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (r *repository) loadCheckins(ctx context.Context, snap *engine.Snapshot) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, activity_id, phone, name, department, verify_code, created_at, updated_at
		FROM checkin_records ORDER BY created_at ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to load checkin records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rec model.CheckinRecord
		if err := rows.Scan(&rec.ID, &rec.ActivityID, &rec.Phone, &rec.Name, &rec.Department, &rec.VerifyCode, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan checkin record: %w", err)
		}
		snap.Checkins[rec.ActivityID] = append(snap.Checkins[rec.ActivityID], &rec)
	}
	return nil
}

func (r *repository) loadVotes(ctx context.Context, snap *engine.Snapshot) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, activity_id, identity, option_id, created_at, updated_at
		FROM vote_records ORDER BY created_at ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to load vote records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rec model.VoteRecord
		if err := rows.Scan(&rec.ID, &rec.ActivityID, &rec.Identity, &rec.OptionID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan vote record: %w", err)
		}
		snap.Votes[rec.ActivityID] = append(snap.Votes[rec.ActivityID], &rec)
	}
	return nil
}

func (r *repository) loadEntrants(ctx context.Context, snap *engine.Snapshot) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, activity_id, identity, name, weight, created_at
		FROM lottery_participants ORDER BY created_at ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to load lottery participants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p model.LotteryParticipant
		if err := rows.Scan(&p.ID, &p.ActivityID, &p.Identity, &p.Name, &p.Weight, &p.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan lottery participant: %w", err)
		}
		snap.Entrants[p.ActivityID] = append(snap.Entrants[p.ActivityID], &p)
	}
	return nil
}

func (r *repository) loadWinners(ctx context.Context, snap *engine.Snapshot) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, activity_id, participant_id, prize_id, won_at
		FROM lottery_winners ORDER BY won_at ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to load lottery winners: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var w model.LotteryWinner
		if err := rows.Scan(&w.ID, &w.ActivityID, &w.ParticipantID, &w.PrizeID, &w.WonAt); err != nil {
			return fmt.Errorf("failed to scan lottery winner: %w", err)
		}
		snap.Winners[w.ActivityID] = append(snap.Winners[w.ActivityID], &w)
	}
	return nil
}

func (r *repository) loadResponses(ctx context.Context, snap *engine.Snapshot) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, activity_id, identity, form_values, created_at
		FROM form_responses ORDER BY created_at ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to load form responses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var resp model.FormResponse
		var values []byte
		if err := rows.Scan(&resp.ID, &resp.ActivityID, &resp.Identity, &values, &resp.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan form response: %w", err)
		}
		if err := json.Unmarshal(values, &resp.Values); err != nil {
			return fmt.Errorf("failed to unmarshal form values: %w", err)
		}
		snap.Responses[resp.ActivityID] = append(snap.Responses[resp.ActivityID], &resp)
	}
	return nil
}

func marshalActivity(a *model.Activity) ([]byte, []byte, error) {
	cfg, err := json.Marshal(a.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal activity config: %w", err)
	}
	stats, err := json.Marshal(a.Stats)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal activity stats: %w", err)
	}
	return cfg, stats, nil
}

func scanActivity(scan func(dest ...any) error) (*model.Activity, error) {
	var a model.Activity
	var cfg, stats []byte
	if err := scan(&a.ID, &a.Code, &a.Kind, &a.Title, &a.Status, &cfg, &stats, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cfg, &a.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal activity config: %w", err)
	}
	if err := json.Unmarshal(stats, &a.Stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal activity stats: %w", err)
	}
	return &a, nil
}
