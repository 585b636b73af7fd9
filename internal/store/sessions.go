package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertRefreshSession writes the current state of a RefreshSession row.
// Called once on creation and repeatedly on each progress tick; later
// writes simply overwrite counters, which is safe because they are
// monotonically non-decreasing (spec §5, "last writer wins").
func (s *Store) UpsertRefreshSession(ctx context.Context, q querier, sess RefreshSession) error {
	if q == nil {
		q = s.conn
	}
	var currentStep any
	if sess.CurrentStepName != nil {
		currentStep = *sess.CurrentStepName
	}
	var endTime any
	if sess.EndTime != nil {
		endTime = sess.EndTime.UTC().Format(time.RFC3339)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO refresh_sessions (session_id, mode, initiator, start_time, end_time, total_steps,
			completed_steps, current_step_name, status, sources_refreshed_json, sources_failed_json, total_records)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(session_id) DO UPDATE SET
			end_time = excluded.end_time, total_steps = excluded.total_steps,
			completed_steps = excluded.completed_steps, current_step_name = excluded.current_step_name,
			status = excluded.status, sources_refreshed_json = excluded.sources_refreshed_json,
			sources_failed_json = excluded.sources_failed_json, total_records = excluded.total_records`,
		sess.SessionID, sess.Mode, sess.Initiator, sess.StartTime.UTC().Format(time.RFC3339), endTime,
		sess.TotalSteps, sess.CompletedSteps, currentStep, string(sess.Status),
		sess.SourcesRefreshedJSON, sess.SourcesFailedJSON, sess.TotalRecords)
	if err != nil {
		return fmt.Errorf("upsert refresh session %s: %w", sess.SessionID, err)
	}
	return nil
}

// GetRefreshSession returns a session by id, or nil if unknown.
func (s *Store) GetRefreshSession(ctx context.Context, sessionID string) (*RefreshSession, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT session_id, mode, initiator, start_time, end_time, total_steps, completed_steps,
		       current_step_name, status, sources_refreshed_json, sources_failed_json, total_records
		FROM refresh_sessions WHERE session_id = ?`, sessionID)

	var sess RefreshSession
	var start string
	var end, currentStep sql.NullString
	var status string
	if err := row.Scan(&sess.SessionID, &sess.Mode, &sess.Initiator, &start, &end, &sess.TotalSteps,
		&sess.CompletedSteps, &currentStep, &status, &sess.SourcesRefreshedJSON, &sess.SourcesFailedJSON, &sess.TotalRecords); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get refresh session %s: %w", sessionID, err)
	}
	st, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return nil, err
	}
	sess.StartTime = st
	if end.Valid {
		if et, err := time.Parse(time.RFC3339, end.String); err == nil {
			sess.EndTime = &et
		}
	}
	if currentStep.Valid {
		sess.CurrentStepName = &currentStep.String
	}
	sess.Status = SessionStatus(status)
	return &sess, nil
}

// UpsertDataStatus writes a per-source freshness summary (spec §3, §4.5).
func (s *Store) UpsertDataStatus(ctx context.Context, q querier, ds DataStatus) error {
	if q == nil {
		q = s.conn
	}
	var lastRefresh any
	if ds.LastRefresh != nil {
		lastRefresh = ds.LastRefresh.UTC().Format(time.RFC3339)
	}
	var lastError any
	if ds.LastError != nil {
		lastError = *ds.LastError
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO data_status (source, last_refresh, latest_date, records, last_error)
		VALUES (?,?,?,?,?)
		ON CONFLICT(source) DO UPDATE SET
			last_refresh = excluded.last_refresh, latest_date = excluded.latest_date,
			records = excluded.records, last_error = excluded.last_error`,
		ds.Source, lastRefresh, nullableDate(ds.LatestDate), ds.Records, lastError)
	if err != nil {
		return fmt.Errorf("upsert data status %s: %w", ds.Source, err)
	}
	return nil
}

// GetDataStatus returns the freshness summary for one source, or nil if
// the source has never been refreshed.
func (s *Store) GetDataStatus(ctx context.Context, source string) (*DataStatus, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT source, last_refresh, latest_date, records, last_error FROM data_status WHERE source = ?`, source)

	var ds DataStatus
	var lastRefresh, latestDate, lastError sql.NullString
	if err := row.Scan(&ds.Source, &lastRefresh, &latestDate, &ds.Records, &lastError); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get data status %s: %w", source, err)
	}
	if lastRefresh.Valid {
		if t, err := time.Parse(time.RFC3339, lastRefresh.String); err == nil {
			ds.LastRefresh = &t
		}
	}
	if latestDate.Valid {
		if d, err := parseDate(latestDate.String); err == nil {
			ds.LatestDate = &d
		}
	}
	if lastError.Valid {
		ds.LastError = &lastError.String
	}
	return &ds, nil
}

// ListDataStatus returns the freshness summary for every known source.
func (s *Store) ListDataStatus(ctx context.Context) ([]DataStatus, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT source FROM data_status ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("list data status sources: %w", err)
	}
	var sources []string
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			rows.Close()
			return nil, err
		}
		sources = append(sources, src)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]DataStatus, 0, len(sources))
	for _, src := range sources {
		ds, err := s.GetDataStatus(ctx, src)
		if err != nil {
			return nil, err
		}
		if ds != nil {
			out = append(out, *ds)
		}
	}
	return out, nil
}
