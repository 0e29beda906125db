package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-critters/internal/feature"
)

const duckSchema = `
CREATE SEQUENCE IF NOT EXISTS sightings_id START 1;
CREATE TABLE IF NOT EXISTS sightings (
	objectid   BIGINT PRIMARY KEY,
	lon        DOUBLE NOT NULL,
	lat        DOUBLE NOT NULL,
	time_ms    BIGINT,
	attributes JSON NOT NULL
);`

// DuckStore keeps features in a DuckDB table.
type DuckStore struct {
	db        *sql.DB
	timeField string
}

// NewDuckStore creates the sightings table if needed. timeField names the
// attribute mirrored into the time_ms column.
func NewDuckStore(ctx context.Context, db *sql.DB, timeField string) (*DuckStore, error) {
	if _, err := db.ExecContext(ctx, duckSchema); err != nil {
		return nil, fmt.Errorf("create sightings schema: %w", err)
	}
	return &DuckStore{db: db, timeField: timeField}, nil
}

// ApplyEdits runs the batch in one transaction. Item failures are
// reported per item; a database error rolls the whole batch back.
func (s *DuckStore) ApplyEdits(ctx context.Context, edits feature.Edits) (feature.EditsResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return feature.EditsResult{}, fmt.Errorf("begin apply edits: %w", err)
	}
	defer tx.Rollback()

	res := newResult()
	for _, f := range edits.Adds {
		if !feature.ValidPoint(f.Geometry) {
			res.AddResults = append(res.AddResults, failed(0, feature.InvalidGeometry("point out of range")))
			continue
		}
		attrs, tms, err := s.encode(f)
		if err != nil {
			return feature.EditsResult{}, err
		}
		var id int64
		err = tx.QueryRowContext(ctx,
			`INSERT INTO sightings VALUES (nextval('sightings_id'), ?, ?, ?, ?) RETURNING objectid`,
			f.Geometry.Lon(), f.Geometry.Lat(), tms, attrs,
		).Scan(&id)
		if err != nil {
			return feature.EditsResult{}, fmt.Errorf("insert sighting: %w", err)
		}
		res.AddResults = append(res.AddResults, succeeded(id))
	}

	for _, f := range edits.Updates {
		var exists bool
		err := tx.QueryRowContext(ctx, `SELECT count(*) > 0 FROM sightings WHERE objectid = ?`, f.ID).Scan(&exists)
		if err != nil {
			return feature.EditsResult{}, fmt.Errorf("lookup sighting %d: %w", f.ID, err)
		}
		if !exists {
			res.UpdateResults = append(res.UpdateResults, failed(f.ID, feature.NotFound(f.ID)))
			continue
		}
		if !feature.ValidPoint(f.Geometry) {
			res.UpdateResults = append(res.UpdateResults, failed(f.ID, feature.InvalidGeometry("point out of range")))
			continue
		}
		attrs, tms, err := s.encode(f)
		if err != nil {
			return feature.EditsResult{}, err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE sightings SET lon = ?, lat = ?, time_ms = ?, attributes = ? WHERE objectid = ?`,
			f.Geometry.Lon(), f.Geometry.Lat(), tms, attrs, f.ID,
		)
		if err != nil {
			return feature.EditsResult{}, fmt.Errorf("update sighting %d: %w", f.ID, err)
		}
		res.UpdateResults = append(res.UpdateResults, succeeded(f.ID))
	}

	for _, id := range edits.Deletes {
		r, err := tx.ExecContext(ctx, `DELETE FROM sightings WHERE objectid = ?`, id)
		if err != nil {
			return feature.EditsResult{}, fmt.Errorf("delete sighting %d: %w", id, err)
		}
		if n, _ := r.RowsAffected(); n == 0 {
			res.DeleteResults = append(res.DeleteResults, failed(id, feature.NotFound(id)))
			continue
		}
		res.DeleteResults = append(res.DeleteResults, succeeded(id))
	}

	if err := tx.Commit(); err != nil {
		return feature.EditsResult{}, fmt.Errorf("commit apply edits: %w", err)
	}
	return res, nil
}

// Query selects features ordered by object id.
func (s *DuckStore) Query(ctx context.Context, q feature.Query) ([]feature.Feature, error) {
	var (
		where []string
		args  []any
	)
	if len(q.ObjectIDs) > 0 {
		marks := make([]string, len(q.ObjectIDs))
		for i, id := range q.ObjectIDs {
			marks[i] = "?"
			args = append(args, id)
		}
		where = append(where, "objectid IN ("+strings.Join(marks, ", ")+")")
	}
	if q.Where != nil {
		if clause, cargs := q.Where.SQL(); clause != "" {
			where = append(where, clause)
			args = append(args, cargs...)
		}
	}

	stmt := "SELECT objectid, lon, lat, CAST(attributes AS VARCHAR) FROM sightings"
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY objectid"
	if q.Limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	if q.Offset > 0 {
		stmt += fmt.Sprintf(" OFFSET %d", q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query sightings: %w", err)
	}
	defer rows.Close()

	out := []feature.Feature{}
	for rows.Next() {
		var (
			f        feature.Feature
			lon, lat float64
			raw      string
		)
		if err := rows.Scan(&f.ID, &lon, &lat, &raw); err != nil {
			return nil, fmt.Errorf("scan sighting: %w", err)
		}
		f.Geometry = orb.Point{lon, lat}
		if err := json.Unmarshal([]byte(raw), &f.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes of %d: %w", f.ID, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *DuckStore) Close() error {
	return s.db.Close()
}

func (s *DuckStore) encode(f feature.Feature) (string, sql.NullInt64, error) {
	attrs := f.Attributes
	if attrs == nil {
		attrs = feature.Attributes{}
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return "", sql.NullInt64{}, fmt.Errorf("encode attributes: %w", err)
	}
	var tms sql.NullInt64
	if t, ok := attrs.Time(s.timeField); ok {
		tms = sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
	}
	return string(data), tms, nil
}

// Stats counts sightings per category value of field. Times come from the
// time_ms column.
func (s *DuckStore) Stats(ctx context.Context, field, _ string) ([]feature.CategoryStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT coalesce(json_extract_string(attributes, ?), '') AS category,
		       count(*), min(time_ms), max(time_ms)
		FROM sightings
		GROUP BY category
		ORDER BY category`, "$."+field)
	if err != nil {
		return nil, fmt.Errorf("sightings stats: %w", err)
	}
	defer rows.Close()

	out := []feature.CategoryStats{}
	for rows.Next() {
		var (
			st          feature.CategoryStats
			first, last sql.NullInt64
		)
		if err := rows.Scan(&st.Category, &st.Count, &first, &last); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		if first.Valid {
			st.First = time.UnixMilli(first.Int64)
		}
		if last.Valid {
			st.Last = time.UnixMilli(last.Int64)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
