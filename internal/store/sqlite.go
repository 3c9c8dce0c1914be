package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/cascadia-health/epiforecast/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	jurisdiction_id TEXT NOT NULL,
	disease         TEXT NOT NULL,
	config          TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'queued',
	error           TEXT NOT NULL DEFAULT '',
	result          TEXT,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS calibrations (
	id              TEXT PRIMARY KEY,
	jurisdiction_id TEXT NOT NULL,
	disease         TEXT NOT NULL,
	config          TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'queued',
	error           TEXT NOT NULL DEFAULT '',
	result          TEXT,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS calibrated_params (
	jurisdiction_id TEXT NOT NULL,
	disease         TEXT NOT NULL,
	result          TEXT NOT NULL,
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (jurisdiction_id, disease)
);

CREATE TABLE IF NOT EXISTS tracts (
	jurisdiction_id  TEXT NOT NULL,
	tract_fips       TEXT NOT NULL,
	boundary_geojson TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (jurisdiction_id, tract_fips)
);

CREATE TABLE IF NOT EXISTS facilities (
	jurisdiction_id      TEXT NOT NULL,
	facility_id          TEXT NOT NULL,
	name                 TEXT NOT NULL DEFAULT '',
	type                 TEXT NOT NULL,
	tract_fips           TEXT NOT NULL,
	resident_age_profile TEXT NOT NULL,
	staff_count          INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (jurisdiction_id, facility_id)
);

CREATE TABLE IF NOT EXISTS demographics (
	jurisdiction_id  TEXT NOT NULL,
	tract_fips       TEXT NOT NULL,
	age_distribution TEXT NOT NULL,
	PRIMARY KEY (jurisdiction_id, tract_fips)
);

CREATE TABLE IF NOT EXISTS timeseries (
	jurisdiction_id  TEXT NOT NULL,
	disease          TEXT NOT NULL,
	week_end_date    DATETIME NOT NULL,
	cases            REAL NOT NULL,
	hospitalizations REAL,
	ed_visits        REAL,
	vaccinations     TEXT,
	PRIMARY KEY (jurisdiction_id, disease, week_end_date)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_jurisdiction ON runs(jurisdiction_id, disease);
CREATE INDEX IF NOT EXISTS idx_calibrations_status ON calibrations(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, cfg model.RunConfig) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal run config")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, jurisdiction_id, disease, config, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, cfg.JurisdictionID, cfg.Disease, string(cfgJSON), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Config:    cfg,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) SetRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(model.RunStatusCompleted), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set run result %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, config, status, error, result, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, config, status, error, result, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.JurisdictionID != "" {
		query += ` AND jurisdiction_id = ?`
		args = append(args, filter.JurisdictionID)
	}
	if filter.Disease != "" {
		query += ` AND disease = ?`
		args = append(args, filter.Disease)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) CreateCalibration(ctx context.Context, cfg model.CalibrationConfig) (*model.Calibration, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal calibration config")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO calibrations (id, jurisdiction_id, disease, config, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, cfg.JurisdictionID, cfg.Disease, string(cfgJSON), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert calibration")
	}

	return &model.Calibration{
		ID:        id,
		Config:    cfg,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateCalibrationStatus(ctx context.Context, calibrationID string, status model.RunStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE calibrations SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), calibrationID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update calibration status %s", calibrationID)
	}
	return checkRowsAffected(res, "calibration", calibrationID)
}

func (s *SQLiteStore) SetCalibrationResult(ctx context.Context, calibrationID string, result *model.CalibrationResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal calibration result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE calibrations SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(model.RunStatusCompleted), time.Now().UTC(), calibrationID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set calibration result %s", calibrationID)
	}
	return checkRowsAffected(res, "calibration", calibrationID)
}

func (s *SQLiteStore) GetCalibration(ctx context.Context, calibrationID string) (*model.Calibration, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, config, status, error, result, created_at, updated_at FROM calibrations WHERE id = ?`,
		calibrationID,
	)
	return scanCalibration(row)
}

func (s *SQLiteStore) PutCalibratedParams(ctx context.Context, jurisdictionID, disease string, result *model.CalibrationResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal calibrated params")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO calibrated_params (jurisdiction_id, disease, result, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (jurisdiction_id, disease) DO UPDATE SET result = excluded.result, updated_at = excluded.updated_at`,
		jurisdictionID, disease, string(resultJSON), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: put calibrated params")
}

func (s *SQLiteStore) GetCalibratedParams(ctx context.Context, jurisdictionID, disease string) (*model.CalibrationResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT result FROM calibrated_params WHERE jurisdiction_id = ? AND disease = ?`,
		jurisdictionID, disease,
	)

	var resultJSON string
	err := row.Scan(&resultJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get calibrated params")
	}

	var result model.CalibrationResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal calibrated params")
	}
	return &result, nil
}

func (s *SQLiteStore) PutTracts(ctx context.Context, jurisdictionID string, tracts []model.TractRecord) (int64, error) {
	return s.replaceAll(ctx, "tracts",
		`DELETE FROM tracts WHERE jurisdiction_id = ?`, []any{jurisdictionID},
		`INSERT INTO tracts (jurisdiction_id, tract_fips, boundary_geojson) VALUES (?, ?, ?)`,
		len(tracts), func(i int) []any {
			t := tracts[i]
			return []any{jurisdictionID, t.FIPS, t.BoundaryGeoJSON}
		})
}

func (s *SQLiteStore) PutFacilities(ctx context.Context, jurisdictionID string, facilities []model.FacilityRecord) (int64, error) {
	profiles := make([]string, len(facilities))
	for i, f := range facilities {
		b, err := json.Marshal(f.ResidentAgeProfile)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal age profile for %s", f.FacilityID)
		}
		profiles[i] = string(b)
	}
	return s.replaceAll(ctx, "facilities",
		`DELETE FROM facilities WHERE jurisdiction_id = ?`, []any{jurisdictionID},
		`INSERT INTO facilities (jurisdiction_id, facility_id, name, type, tract_fips, resident_age_profile, staff_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		len(facilities), func(i int) []any {
			f := facilities[i]
			return []any{jurisdictionID, f.FacilityID, f.Name, f.Type, f.TractFIPS, profiles[i], f.StaffCount}
		})
}

func (s *SQLiteStore) PutDemographics(ctx context.Context, jurisdictionID string, demographics []model.DemographicRecord) (int64, error) {
	dists := make([]string, len(demographics))
	for i, d := range demographics {
		b, err := json.Marshal(d.AgeDistribution)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal age distribution for %s", d.TractFIPS)
		}
		dists[i] = string(b)
	}
	return s.replaceAll(ctx, "demographics",
		`DELETE FROM demographics WHERE jurisdiction_id = ?`, []any{jurisdictionID},
		`INSERT INTO demographics (jurisdiction_id, tract_fips, age_distribution) VALUES (?, ?, ?)`,
		len(demographics), func(i int) []any {
			d := demographics[i]
			return []any{jurisdictionID, d.TractFIPS, dists[i]}
		})
}

func (s *SQLiteStore) PutTimeseries(ctx context.Context, jurisdictionID, disease string, observations []model.WeeklyObservation) (int64, error) {
	vaccs := make([]sql.NullString, len(observations))
	for i, o := range observations {
		if o.Vaccinations == nil {
			continue
		}
		b, err := json.Marshal(o.Vaccinations)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal vaccinations")
		}
		vaccs[i] = sql.NullString{String: string(b), Valid: true}
	}
	return s.replaceAll(ctx, "timeseries",
		`DELETE FROM timeseries WHERE jurisdiction_id = ? AND disease = ?`, []any{jurisdictionID, disease},
		`INSERT INTO timeseries (jurisdiction_id, disease, week_end_date, cases, hospitalizations, ed_visits, vaccinations)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		len(observations), func(i int) []any {
			o := observations[i]
			return []any{jurisdictionID, disease, o.WeekEndDate.UTC(), o.Cases, nullFloat(o.Hospitalizations), nullFloat(o.EDVisits), vaccs[i]}
		})
}

// replaceAll swaps a jurisdiction's rows for a table inside one transaction
// so readers never see a partially loaded snapshot.
func (s *SQLiteStore) replaceAll(ctx context.Context, table, deleteQ string, deleteArgs []any, insertQ string, n int, args func(int) []any) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: begin %s", table)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, deleteQ, deleteArgs...); err != nil {
		return 0, eris.Wrapf(err, "sqlite: clear %s", table)
	}
	for i := 0; i < n; i++ {
		if _, err := tx.ExecContext(ctx, insertQ, args(i)...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert %s", table)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrapf(err, "sqlite: commit %s", table)
	}
	return int64(n), nil
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, jurisdictionID, disease string) (*model.Snapshot, error) {
	snap := &model.Snapshot{JurisdictionID: jurisdictionID, Disease: disease}

	rows, err := s.db.QueryContext(ctx,
		`SELECT tract_fips, boundary_geojson FROM tracts WHERE jurisdiction_id = ? ORDER BY tract_fips`,
		jurisdictionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query tracts")
	}
	for rows.Next() {
		t := model.TractRecord{JurisdictionID: jurisdictionID}
		if err := rows.Scan(&t.FIPS, &t.BoundaryGeoJSON); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan tract")
		}
		snap.Tracts = append(snap.Tracts, t)
	}
	if err := closeRows(rows, "tracts"); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT facility_id, name, type, tract_fips, resident_age_profile, staff_count
		 FROM facilities WHERE jurisdiction_id = ? ORDER BY facility_id`,
		jurisdictionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query facilities")
	}
	for rows.Next() {
		f := model.FacilityRecord{JurisdictionID: jurisdictionID}
		var profileJSON string
		if err := rows.Scan(&f.FacilityID, &f.Name, &f.Type, &f.TractFIPS, &profileJSON, &f.StaffCount); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan facility")
		}
		if err := json.Unmarshal([]byte(profileJSON), &f.ResidentAgeProfile); err != nil {
			rows.Close()
			return nil, eris.Wrapf(err, "sqlite: unmarshal age profile for %s", f.FacilityID)
		}
		snap.Facilities = append(snap.Facilities, f)
	}
	if err := closeRows(rows, "facilities"); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT tract_fips, age_distribution FROM demographics WHERE jurisdiction_id = ? ORDER BY tract_fips`,
		jurisdictionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query demographics")
	}
	for rows.Next() {
		var d model.DemographicRecord
		var distJSON string
		if err := rows.Scan(&d.TractFIPS, &distJSON); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan demographic")
		}
		if err := json.Unmarshal([]byte(distJSON), &d.AgeDistribution); err != nil {
			rows.Close()
			return nil, eris.Wrapf(err, "sqlite: unmarshal age distribution for %s", d.TractFIPS)
		}
		snap.Demographics = append(snap.Demographics, d)
	}
	if err := closeRows(rows, "demographics"); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT week_end_date, cases, hospitalizations, ed_visits, vaccinations
		 FROM timeseries WHERE jurisdiction_id = ? AND disease = ? ORDER BY week_end_date`,
		jurisdictionID, disease,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query timeseries")
	}
	for rows.Next() {
		var o model.WeeklyObservation
		var hosp, ed sql.NullFloat64
		var vaccJSON sql.NullString
		if err := rows.Scan(&o.WeekEndDate, &o.Cases, &hosp, &ed, &vaccJSON); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan observation")
		}
		if hosp.Valid {
			v := hosp.Float64
			o.Hospitalizations = &v
		}
		if ed.Valid {
			v := ed.Float64
			o.EDVisits = &v
		}
		if vaccJSON.Valid {
			if err := json.Unmarshal([]byte(vaccJSON.String), &o.Vaccinations); err != nil {
				rows.Close()
				return nil, eris.Wrap(err, "sqlite: unmarshal vaccinations")
			}
		}
		snap.Timeseries = append(snap.Timeseries, o)
	}
	if err := closeRows(rows, "timeseries"); err != nil {
		return nil, err
	}

	return snap, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func closeRows(rows *sql.Rows, what string) error {
	err := rows.Err()
	rows.Close()
	return eris.Wrapf(err, "sqlite: iterate %s", what)
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var cfgJSON string
	var resultJSON sql.NullString

	err := row.Scan(&r.ID, &cfgJSON, &r.Status, &r.Error, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(cfgJSON), &r.Config); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal run config")
	}
	if resultJSON.Valid {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run result")
		}
	}
	return &r, nil
}

func scanCalibration(row scannable) (*model.Calibration, error) {
	var c model.Calibration
	var cfgJSON string
	var resultJSON sql.NullString

	err := row.Scan(&c.ID, &cfgJSON, &c.Status, &c.Error, &resultJSON, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "calibration")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan calibration")
	}

	if err := json.Unmarshal([]byte(cfgJSON), &c.Config); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal calibration config")
	}
	if resultJSON.Valid {
		c.Result = &model.CalibrationResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), c.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal calibration result")
		}
	}
	return &c, nil
}
