// Package history persists served predictions in a SQL database.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/cementai/plant-core/pkg/config"
	"github.com/cementai/plant-core/pkg/models"
)

// MaxLimit caps the number of rows Recent returns.
const MaxLimit = 500

const schema = `CREATE TABLE IF NOT EXISTS predictions (
	id TEXT PRIMARY KEY,
	prediction DOUBLE PRECISION NOT NULL,
	raw_prediction DOUBLE PRECISION NOT NULL,
	model_type TEXT NOT NULL,
	features TEXT NOT NULL,
	out_of_range TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
)`

const insertPrediction = `INSERT INTO predictions
	(id, prediction, raw_prediction, model_type, features, out_of_range, created_at)
	VALUES (:id, :prediction, :raw_prediction, :model_type, :features, :out_of_range, :created_at)`

const selectRecent = `SELECT id, prediction, raw_prediction, model_type, features, out_of_range, created_at
	FROM predictions ORDER BY created_at DESC, id DESC LIMIT ?`

// Store records predictions.
type Store struct {
	db *sqlx.DB
}

type row struct {
	ID            string    `db:"id"`
	Prediction    float64   `db:"prediction"`
	RawPrediction float64   `db:"raw_prediction"`
	ModelType     string    `db:"model_type"`
	Features      string    `db:"features"`
	OutOfRange    string    `db:"out_of_range"`
	CreatedAt     time.Time `db:"created_at"`
}

// Open connects to the configured database and creates the schema.
func Open(ctx context.Context, cfg *config.History) (*Store, error) {
	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s history: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s history: %w", cfg.Driver, err)
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the predictions table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create predictions table: %w", err)
	}
	return nil
}

// Record stores one prediction.
func (s *Store) Record(ctx context.Context, p *models.Prediction) error {
	features, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	violations := p.OutOfRange
	if violations == nil {
		violations = []models.RangeViolation{}
	}
	outOfRange, err := json.Marshal(violations)
	if err != nil {
		return fmt.Errorf("encode out_of_range: %w", err)
	}

	r := row{
		ID:            p.ID,
		Prediction:    p.Prediction,
		RawPrediction: p.RawPrediction,
		ModelType:     p.ModelType,
		Features:      string(features),
		OutOfRange:    string(outOfRange),
		CreatedAt:     p.Timestamp.UTC(),
	}
	if _, err := s.db.NamedExecContext(ctx, insertPrediction, r); err != nil {
		return fmt.Errorf("insert prediction %s: %w", p.ID, err)
	}
	return nil
}

// Recent returns up to limit predictions, newest first. The limit is
// clamped to [1, MaxLimit].
func (s *Store) Recent(ctx context.Context, limit int) ([]models.Prediction, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(selectRecent), limit); err != nil {
		return nil, fmt.Errorf("select predictions: %w", err)
	}

	out := make([]models.Prediction, 0, len(rows))
	for _, r := range rows {
		p := models.Prediction{
			ID:            r.ID,
			Prediction:    r.Prediction,
			RawPrediction: r.RawPrediction,
			ModelType:     r.ModelType,
			ScalerUsed:    true,
			Timestamp:     r.CreatedAt,
		}
		if err := json.Unmarshal([]byte(r.Features), &p.Features); err != nil {
			return nil, fmt.Errorf("decode features of %s: %w", r.ID, err)
		}
		p.FeaturesReceived = len(p.Features)
		if err := json.Unmarshal([]byte(r.OutOfRange), &p.OutOfRange); err != nil {
			return nil, fmt.Errorf("decode out_of_range of %s: %w", r.ID, err)
		}
		if len(p.OutOfRange) == 0 {
			p.OutOfRange = nil
		}
		out = append(out, p)
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
