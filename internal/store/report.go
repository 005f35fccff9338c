package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/abhinaya/internal/calibration"
)

// ReportSummary is the indexed part of a stored calibration report.
type ReportSummary struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
	Ready       bool      `json:"ready"`
}

// ReportRepository stores finished calibration reports.
type ReportRepository struct {
	db *sql.DB
}

// Reports returns the report repository for this store.
func (s *Store) Reports() *ReportRepository {
	return &ReportRepository{db: s.db}
}

// SaveReport stores r. It lets the store act as the calibration machine's
// report sink.
func (s *Store) SaveReport(r *calibration.Report) error {
	return s.Reports().Create(r)
}

// Create inserts a report. The full report is kept as JSON.
func (r *ReportRepository) Create(rep *calibration.Report) error {
	if rep.ID == "" {
		return errors.New("report has no id")
	}
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO calibration_reports (id, started_at, completed_at, ready, data)
		 VALUES (?, ?, ?, ?, ?)`,
		rep.ID, rep.StartedAt.UnixMilli(), rep.CompletedAt.UnixMilli(), rep.Ready, string(data),
	)
	return err
}

// GetByID retrieves a report by its ID.
func (r *ReportRepository) GetByID(id string) (*calibration.Report, error) {
	return r.scanReport(r.db.QueryRow(`SELECT data FROM calibration_reports WHERE id = ?`, id))
}

// Latest returns the most recently completed report.
func (r *ReportRepository) Latest() (*calibration.Report, error) {
	return r.scanReport(r.db.QueryRow(
		`SELECT data FROM calibration_reports ORDER BY completed_at DESC, rowid DESC LIMIT 1`,
	))
}

func (r *ReportRepository) scanReport(row *sql.Row) (*calibration.Report, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rep := &calibration.Report{}
	if err := json.Unmarshal([]byte(data), rep); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return rep, nil
}

// List returns report summaries, newest first. A non-positive limit
// returns every report.
func (r *ReportRepository) List(limit int) ([]ReportSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT id, started_at, completed_at, ready
		 FROM calibration_reports ORDER BY completed_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []ReportSummary
	for rows.Next() {
		var s ReportSummary
		var started, completed int64
		var ready int
		if err := rows.Scan(&s.ID, &started, &completed, &ready); err != nil {
			return nil, err
		}
		s.StartedAt = time.UnixMilli(started)
		s.CompletedAt = time.UnixMilli(completed)
		s.Ready = ready != 0
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

// Delete removes a report by its ID.
func (r *ReportRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM calibration_reports WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkAffected(result)
}
