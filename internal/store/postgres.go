package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/cascadia-health/epiforecast/internal/db"
	"github.com/cascadia-health/epiforecast/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, jurisdiction_id, disease, config, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"update_run_status": `UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
	"set_run_result":    `UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"get_run":           `SELECT id, config, status, error, result, created_at, updated_at FROM runs WHERE id = $1`,
	"get_calibrated":    `SELECT result FROM calibrated_params WHERE jurisdiction_id = $1 AND disease = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (e.g., the bulk snapshot importers).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	jurisdiction_id TEXT NOT NULL,
	disease         TEXT NOT NULL,
	config          JSONB NOT NULL,
	status          TEXT NOT NULL DEFAULT 'queued',
	error           TEXT NOT NULL DEFAULT '',
	result          JSONB,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS calibrations (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	jurisdiction_id TEXT NOT NULL,
	disease         TEXT NOT NULL,
	config          JSONB NOT NULL,
	status          TEXT NOT NULL DEFAULT 'queued',
	error           TEXT NOT NULL DEFAULT '',
	result          JSONB,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS calibrated_params (
	jurisdiction_id TEXT NOT NULL,
	disease         TEXT NOT NULL,
	result          JSONB NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
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
	resident_age_profile JSONB NOT NULL,
	staff_count          INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (jurisdiction_id, facility_id)
);

CREATE TABLE IF NOT EXISTS demographics (
	jurisdiction_id  TEXT NOT NULL,
	tract_fips       TEXT NOT NULL,
	age_distribution JSONB NOT NULL,
	PRIMARY KEY (jurisdiction_id, tract_fips)
);

CREATE TABLE IF NOT EXISTS timeseries (
	jurisdiction_id  TEXT NOT NULL,
	disease          TEXT NOT NULL,
	week_end_date    TIMESTAMPTZ NOT NULL,
	cases            DOUBLE PRECISION NOT NULL,
	hospitalizations DOUBLE PRECISION,
	ed_visits        DOUBLE PRECISION,
	vaccinations     JSONB,
	PRIMARY KEY (jurisdiction_id, disease, week_end_date)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_jurisdiction ON runs(jurisdiction_id, disease);
CREATE INDEX IF NOT EXISTS idx_calibrations_status ON calibrations(status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, cfg model.RunConfig) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal run config")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, jurisdiction_id, disease, config, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, cfg.JurisdictionID, cfg.Disease, cfgJSON, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Config:    cfg,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(status), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) SetRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(model.RunStatusCompleted), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set run result %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var cfgJSON []byte
	var resultNull *[]byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, config, status, error, result, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &cfgJSON, &r.Status, &r.Error, &resultNull, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if err := json.Unmarshal(cfgJSON, &r.Config); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal run config")
	}
	if resultNull != nil {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(*resultNull, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run result")
		}
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, config, status, error, result, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.JurisdictionID != "" {
		query += fmt.Sprintf(` AND jurisdiction_id = $%d`, argIdx)
		args = append(args, filter.JurisdictionID)
		argIdx++
	}
	if filter.Disease != "" {
		query += fmt.Sprintf(` AND disease = $%d`, argIdx)
		args = append(args, filter.Disease)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var cfgJSON []byte
		var resultNull *[]byte

		if err := rows.Scan(&r.ID, &cfgJSON, &r.Status, &r.Error, &resultNull, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if err := json.Unmarshal(cfgJSON, &r.Config); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run config")
		}
		if resultNull != nil {
			r.Result = &model.RunResult{}
			if err := json.Unmarshal(*resultNull, r.Result); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal run result")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) CreateCalibration(ctx context.Context, cfg model.CalibrationConfig) (*model.Calibration, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal calibration config")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO calibrations (id, jurisdiction_id, disease, config, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, cfg.JurisdictionID, cfg.Disease, cfgJSON, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert calibration")
	}

	return &model.Calibration{
		ID:        id,
		Config:    cfg,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateCalibrationStatus(ctx context.Context, calibrationID string, status model.RunStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE calibrations SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(status), errMsg, time.Now().UTC(), calibrationID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update calibration status %s", calibrationID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "calibration %s", calibrationID)
	}
	return nil
}

func (s *PostgresStore) SetCalibrationResult(ctx context.Context, calibrationID string, result *model.CalibrationResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal calibration result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE calibrations SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(model.RunStatusCompleted), time.Now().UTC(), calibrationID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set calibration result %s", calibrationID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "calibration %s", calibrationID)
	}
	return nil
}

func (s *PostgresStore) GetCalibration(ctx context.Context, calibrationID string) (*model.Calibration, error) {
	var c model.Calibration
	var cfgJSON []byte
	var resultNull *[]byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, config, status, error, result, created_at, updated_at FROM calibrations WHERE id = $1`,
		calibrationID,
	).Scan(&c.ID, &cfgJSON, &c.Status, &c.Error, &resultNull, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "calibration %s", calibrationID)
		}
		return nil, eris.Wrapf(err, "postgres: get calibration %s", calibrationID)
	}

	if err := json.Unmarshal(cfgJSON, &c.Config); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal calibration config")
	}
	if resultNull != nil {
		c.Result = &model.CalibrationResult{}
		if err := json.Unmarshal(*resultNull, c.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal calibration result")
		}
	}
	return &c, nil
}

func (s *PostgresStore) PutCalibratedParams(ctx context.Context, jurisdictionID, disease string, result *model.CalibrationResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal calibrated params")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO calibrated_params (jurisdiction_id, disease, result, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (jurisdiction_id, disease) DO UPDATE SET result = $3, updated_at = $4`,
		jurisdictionID, disease, resultJSON, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: put calibrated params")
}

func (s *PostgresStore) GetCalibratedParams(ctx context.Context, jurisdictionID, disease string) (*model.CalibrationResult, error) {
	var resultJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT result FROM calibrated_params WHERE jurisdiction_id = $1 AND disease = $2`,
		jurisdictionID, disease,
	).Scan(&resultJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get calibrated params")
	}

	var result model.CalibrationResult
	if err := json.Unmarshal(resultJSON, &result); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal calibrated params")
	}
	return &result, nil
}

// Snapshot loads delete the jurisdiction's prior rows and bulk upsert the
// replacement set via a temp-table COPY.

func (s *PostgresStore) PutTracts(ctx context.Context, jurisdictionID string, tracts []model.TractRecord) (int64, error) {
	_, err := s.pool.Exec(ctx, `DELETE FROM tracts WHERE jurisdiction_id = $1`, jurisdictionID)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: clear tracts")
	}

	rows := make([][]any, len(tracts))
	for i, t := range tracts {
		rows[i] = []any{jurisdictionID, t.FIPS, t.BoundaryGeoJSON}
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "tracts",
		Columns:      []string{"jurisdiction_id", "tract_fips", "boundary_geojson"},
		ConflictKeys: []string{"jurisdiction_id", "tract_fips"},
	}, rows)
}

func (s *PostgresStore) PutFacilities(ctx context.Context, jurisdictionID string, facilities []model.FacilityRecord) (int64, error) {
	_, err := s.pool.Exec(ctx, `DELETE FROM facilities WHERE jurisdiction_id = $1`, jurisdictionID)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: clear facilities")
	}

	rows := make([][]any, len(facilities))
	for i, f := range facilities {
		profileJSON, err := json.Marshal(f.ResidentAgeProfile)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal age profile for %s", f.FacilityID)
		}
		rows[i] = []any{jurisdictionID, f.FacilityID, f.Name, f.Type, f.TractFIPS, profileJSON, f.StaffCount}
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "facilities",
		Columns:      []string{"jurisdiction_id", "facility_id", "name", "type", "tract_fips", "resident_age_profile", "staff_count"},
		ConflictKeys: []string{"jurisdiction_id", "facility_id"},
	}, rows)
}

func (s *PostgresStore) PutDemographics(ctx context.Context, jurisdictionID string, demographics []model.DemographicRecord) (int64, error) {
	_, err := s.pool.Exec(ctx, `DELETE FROM demographics WHERE jurisdiction_id = $1`, jurisdictionID)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: clear demographics")
	}

	rows := make([][]any, len(demographics))
	for i, d := range demographics {
		distJSON, err := json.Marshal(d.AgeDistribution)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal age distribution for %s", d.TractFIPS)
		}
		rows[i] = []any{jurisdictionID, d.TractFIPS, distJSON}
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "demographics",
		Columns:      []string{"jurisdiction_id", "tract_fips", "age_distribution"},
		ConflictKeys: []string{"jurisdiction_id", "tract_fips"},
	}, rows)
}

func (s *PostgresStore) PutTimeseries(ctx context.Context, jurisdictionID, disease string, observations []model.WeeklyObservation) (int64, error) {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM timeseries WHERE jurisdiction_id = $1 AND disease = $2`,
		jurisdictionID, disease,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: clear timeseries")
	}

	rows := make([][]any, len(observations))
	for i, o := range observations {
		var vaccJSON []byte
		if o.Vaccinations != nil {
			vaccJSON, err = json.Marshal(o.Vaccinations)
			if err != nil {
				return 0, eris.Wrap(err, "postgres: marshal vaccinations")
			}
		}
		rows[i] = []any{jurisdictionID, disease, o.WeekEndDate.UTC(), o.Cases, o.Hospitalizations, o.EDVisits, vaccJSON}
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "timeseries",
		Columns:      []string{"jurisdiction_id", "disease", "week_end_date", "cases", "hospitalizations", "ed_visits", "vaccinations"},
		ConflictKeys: []string{"jurisdiction_id", "disease", "week_end_date"},
	}, rows)
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, jurisdictionID, disease string) (*model.Snapshot, error) {
	snap := &model.Snapshot{JurisdictionID: jurisdictionID, Disease: disease}

	rows, err := s.pool.Query(ctx,
		`SELECT tract_fips, boundary_geojson FROM tracts WHERE jurisdiction_id = $1 ORDER BY tract_fips`,
		jurisdictionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query tracts")
	}
	for rows.Next() {
		t := model.TractRecord{JurisdictionID: jurisdictionID}
		if err := rows.Scan(&t.FIPS, &t.BoundaryGeoJSON); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan tract")
		}
		snap.Tracts = append(snap.Tracts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate tracts")
	}

	rows, err = s.pool.Query(ctx,
		`SELECT facility_id, name, type, tract_fips, resident_age_profile, staff_count
		 FROM facilities WHERE jurisdiction_id = $1 ORDER BY facility_id`,
		jurisdictionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query facilities")
	}
	for rows.Next() {
		f := model.FacilityRecord{JurisdictionID: jurisdictionID}
		var profileJSON []byte
		if err := rows.Scan(&f.FacilityID, &f.Name, &f.Type, &f.TractFIPS, &profileJSON, &f.StaffCount); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan facility")
		}
		if err := json.Unmarshal(profileJSON, &f.ResidentAgeProfile); err != nil {
			rows.Close()
			return nil, eris.Wrapf(err, "postgres: unmarshal age profile for %s", f.FacilityID)
		}
		snap.Facilities = append(snap.Facilities, f)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate facilities")
	}

	rows, err = s.pool.Query(ctx,
		`SELECT tract_fips, age_distribution FROM demographics WHERE jurisdiction_id = $1 ORDER BY tract_fips`,
		jurisdictionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query demographics")
	}
	for rows.Next() {
		var d model.DemographicRecord
		var distJSON []byte
		if err := rows.Scan(&d.TractFIPS, &distJSON); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan demographic")
		}
		if err := json.Unmarshal(distJSON, &d.AgeDistribution); err != nil {
			rows.Close()
			return nil, eris.Wrapf(err, "postgres: unmarshal age distribution for %s", d.TractFIPS)
		}
		snap.Demographics = append(snap.Demographics, d)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate demographics")
	}

	rows, err = s.pool.Query(ctx,
		`SELECT week_end_date, cases, hospitalizations, ed_visits, vaccinations
		 FROM timeseries WHERE jurisdiction_id = $1 AND disease = $2 ORDER BY week_end_date`,
		jurisdictionID, disease,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query timeseries")
	}
	for rows.Next() {
		var o model.WeeklyObservation
		var vaccJSON []byte
		if err := rows.Scan(&o.WeekEndDate, &o.Cases, &o.Hospitalizations, &o.EDVisits, &vaccJSON); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		if vaccJSON != nil {
			if err := json.Unmarshal(vaccJSON, &o.Vaccinations); err != nil {
				rows.Close()
				return nil, eris.Wrap(err, "postgres: unmarshal vaccinations")
			}
		}
		snap.Timeseries = append(snap.Timeseries, o)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate timeseries")
	}

	return snap, nil
}
