package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/contracts-parser/internal/common"
	"github.com/joseph-ayodele/contracts-parser/internal/entity"
)

// DefaultListLimit caps ListRecent when the caller gives no limit.
const DefaultListLimit = 50

type ParseRecordRepository interface {
	Save(ctx context.Context, rec *entity.ParseRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.ParseRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*entity.ParseRecord, error)
}

type parseRecordRepo struct {
	db  *DB
	log *slog.Logger
	now func() time.Time
}

func NewParseRecordRepository(db *DB, log *slog.Logger) ParseRecordRepository {
	if log == nil {
		log = slog.Default()
	}
	return &parseRecordRepo{db: db, log: log, now: time.Now}
}

const recordColumns = `id, session_id, source_path, source_type, mode, strategy, success, confidence,
	completeness_score, extracted_json, warnings_json, error, tokens_used, processing_time_ms, created_at`

// bind rewrites ? placeholders as $n for postgres.
func (r *parseRecordRepo) bind(q string) string {
	if r.db.Dialect != DialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, c := range q {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// Save inserts rec, assigning an ID and CreatedAt when unset.
func (r *parseRecordRepo) Save(ctx context.Context, rec *entity.ParseRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now().UTC()
	}
	warnings := rec.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	wj, err := json.Marshal(warnings)
	if err != nil {
		return err
	}

	q := r.bind(`INSERT INTO parse_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.db.SQL.ExecContext(ctx, q,
		rec.ID.String(), rec.SessionID, rec.SourcePath, rec.SourceType, rec.Mode, rec.Strategy,
		rec.Success, rec.Confidence, rec.CompletenessScore, string(rec.ExtractedJSON), string(wj),
		rec.Error, rec.TokensUsed, rec.ProcessingTimeMs, rec.CreatedAt,
	)
	if err != nil {
		r.log.Error("parse_record save failed", "id", rec.ID, "session_id", rec.SessionID, "err", err)
		return fmt.Errorf("%w: save parse record: %v", common.ErrDatabase, err)
	}
	r.log.Info("parse_record saved", "id", rec.ID, "session_id", rec.SessionID, "mode", rec.Mode, "success", rec.Success)
	return nil
}

func (r *parseRecordRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.ParseRecord, error) {
	row := r.db.SQL.QueryRowContext(ctx, r.bind(`SELECT `+recordColumns+` FROM parse_records WHERE id = ?`), id.String())
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("NOT_FOUND", "parse record "+id.String(), common.ErrNotFound)
	}
	if err != nil {
		r.log.Error("parse_record get failed", "id", id, "err", err)
		return nil, fmt.Errorf("%w: get parse record: %v", common.ErrDatabase, err)
	}
	return rec, nil
}

// ListRecent returns the newest records first.
func (r *parseRecordRepo) ListRecent(ctx context.Context, limit int) ([]*entity.ParseRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := r.db.SQL.QueryContext(ctx,
		r.bind(`SELECT `+recordColumns+` FROM parse_records ORDER BY created_at DESC, id LIMIT ?`), limit)
	if err != nil {
		r.log.Error("parse_record list failed", "err", err)
		return nil, fmt.Errorf("%w: list parse records: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*entity.ParseRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan parse record: %v", common.ErrDatabase, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list parse records: %v", common.ErrDatabase, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*entity.ParseRecord, error) {
	var (
		rec       entity.ParseRecord
		id        string
		extracted string
		warnings  string
	)
	err := s.Scan(&id, &rec.SessionID, &rec.SourcePath, &rec.SourceType, &rec.Mode, &rec.Strategy,
		&rec.Success, &rec.Confidence, &rec.CompletenessScore, &extracted, &warnings,
		&rec.Error, &rec.TokensUsed, &rec.ProcessingTimeMs, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("bad id %q: %w", id, err)
	}
	if extracted != "" {
		rec.ExtractedJSON = json.RawMessage(extracted)
	}
	if warnings != "" {
		if err := json.Unmarshal([]byte(warnings), &rec.Warnings); err != nil {
			return nil, fmt.Errorf("bad warnings of %s: %w", id, err)
		}
	}
	return &rec, nil
}
