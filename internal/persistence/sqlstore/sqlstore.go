// Package sqlstore is the PostgreSQL Persister: every cube revision is one
// row keyed by the AppID tuple, cube name and revision number. Cube content
// travels as simple JSON.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/cubeworks/cuberepo/internal/cube"
	cuberr "github.com/cubeworks/cuberepo/internal/errors"
	"github.com/cubeworks/cuberepo/internal/glob"
	"github.com/cubeworks/cuberepo/internal/metrics"
	"github.com/cubeworks/cuberepo/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS cube_revisions (
	id         UUID PRIMARY KEY,
	tenant     TEXT NOT NULL,
	app        TEXT NOT NULL,
	version    TEXT NOT NULL,
	status     TEXT NOT NULL,
	branch     TEXT NOT NULL,
	name       TEXT NOT NULL,
	name_lc    TEXT NOT NULL,
	revision   BIGINT NOT NULL,
	sha1       TEXT NOT NULL DEFAULT '',
	head_sha1  TEXT NOT NULL DEFAULT '',
	changed    BOOLEAN NOT NULL DEFAULT FALSE,
	notes      TEXT NOT NULL DEFAULT '',
	test_data  TEXT NOT NULL DEFAULT '',
	cube_json  TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	created_by TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS cube_revisions_identity
	ON cube_revisions (tenant, app, version, status, branch, name_lc, revision);
CREATE INDEX IF NOT EXISTS cube_revisions_lookup
	ON cube_revisions (tenant, app, version, status, branch, name_lc);
`

type row struct {
	ID        string    `db:"id"`
	Tenant    string    `db:"tenant"`
	App       string    `db:"app"`
	Version   string    `db:"version"`
	Status    string    `db:"status"`
	Branch    string    `db:"branch"`
	Name      string    `db:"name"`
	NameLC    string    `db:"name_lc"`
	Revision  int64     `db:"revision"`
	SHA1      string    `db:"sha1"`
	HeadSHA1  string    `db:"head_sha1"`
	Changed   bool      `db:"changed"`
	Notes     string    `db:"notes"`
	TestData  string    `db:"test_data"`
	CubeJSON  *string   `db:"cube_json"`
	CreatedAt time.Time `db:"created_at"`
	CreatedBy string    `db:"created_by"`
}

func (r *row) isTombstone() bool { return r.Revision < 0 }

func (r *row) appID() models.AppID {
	return models.AppID{
		Tenant:  r.Tenant,
		App:     r.App,
		Version: r.Version,
		Status:  models.ReleaseStatus(r.Status),
		Branch:  r.Branch,
	}
}

func (r *row) info(opts models.SearchOptions) models.CubeInfo {
	info := models.CubeInfo{
		ID:       r.ID,
		Name:     r.Name,
		AppID:    r.appID(),
		Revision: r.Revision,
		SHA1:     r.SHA1,
		HeadSHA1: r.HeadSHA1,
		Changed:  r.Changed,
	}
	if opts.IncludeNotes {
		info.Notes = r.Notes
	}
	if opts.IncludeTestData {
		info.TestData = r.TestData
	}
	return info
}

// Store is the PostgreSQL-backed Persister
type Store struct {
	db    *sqlx.DB
	codec Codec
	m     *metrics.Metrics
}

// New creates a store over an existing database handle
func New(db *sqlx.DB) *Store {
	return &Store{db: db, codec: TableCodec{}, m: metrics.Default()}
}

// Open connects to PostgreSQL and ensures the schema exists
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	s := New(db)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the revision table when missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) observe(start time.Time) {
	s.m.PersisterDuration.Observe(time.Since(start).Seconds())
}

type querier interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const identityWhere = `lower(tenant) = lower($1) AND lower(app) = lower($2)
	AND lower(version) = lower($3) AND upper(status) = upper($4) AND lower(branch) = lower($5)`

func (s *Store) latest(ctx context.Context, q querier, appID models.AppID, name string) (*row, error) {
	var r row
	err := q.GetContext(ctx, &r, `
		SELECT * FROM cube_revisions
		WHERE `+identityWhere+` AND name_lc = lower($6)
		ORDER BY abs(revision) DESC LIMIT 1`,
		appID.Tenant, appID.App, appID.Version, string(appID.Status), appID.Branch, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cube revision: %w", err)
	}
	return &r, nil
}

func (s *Store) latestRows(ctx context.Context, q querier, appID models.AppID) ([]row, error) {
	var rows []row
	err := q.SelectContext(ctx, &rows, `
		SELECT DISTINCT ON (name_lc) * FROM cube_revisions
		WHERE `+identityWhere+`
		ORDER BY name_lc, abs(revision) DESC`,
		appID.Tenant, appID.App, appID.Version, string(appID.Status), appID.Branch)
	if err != nil {
		return nil, fmt.Errorf("failed to list cube revisions: %w", err)
	}
	return rows, nil
}

func (s *Store) byID(ctx context.Context, q querier, id string) (*row, error) {
	var r row
	err := q.GetContext(ctx, &r, `SELECT * FROM cube_revisions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cuberr.NotFoundf("no cube revision with id %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cube revision: %w", err)
	}
	return &r, nil
}

func (s *Store) decode(r *row, appID models.AppID) (cube.Cube, error) {
	if r.CubeJSON == nil {
		return nil, cuberr.Statef("revision %s of %s carries no cube data", r.ID, r.Name)
	}
	c, err := s.codec.Unmarshal([]byte(*r.CubeJSON))
	if err != nil {
		return nil, err
	}
	c.SetAppID(appID)
	return c, nil
}

// LoadCube returns the live revision of a cube, or nil when absent or
// tombstoned
func (s *Store) LoadCube(ctx context.Context, appID models.AppID, name string) (cube.Cube, error) {
	defer s.observe(time.Now())
	r, err := s.latest(ctx, s.db, appID, name)
	if err != nil || r == nil || r.isTombstone() {
		return nil, err
	}
	return s.decode(r, appID)
}

// LoadCubeByID returns the revision carrying the identifier
func (s *Store) LoadCubeByID(ctx context.Context, id string) (cube.Cube, error) {
	defer s.observe(time.Now())
	r, err := s.byID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return s.decode(r, r.appID())
}

// LoadCubeBySHA1 returns the revision carrying the fingerprint, searching the
// AppID's history and then the HEAD history of the same version
func (s *Store) LoadCubeBySHA1(ctx context.Context, appID models.AppID, name, sha1 string) (cube.Cube, error) {
	defer s.observe(time.Now())
	for _, candidate := range []models.AppID{appID, appID.AsHead()} {
		var r row
		err := s.db.GetContext(ctx, &r, `
			SELECT * FROM cube_revisions
			WHERE `+identityWhere+` AND name_lc = lower($6) AND sha1 = $7
			ORDER BY abs(revision) DESC LIMIT 1`,
			candidate.Tenant, candidate.App, candidate.Version, string(candidate.Status), candidate.Branch, name, sha1)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load cube by sha1: %w", err)
		}
		return s.decode(&r, appID)
	}
	return nil, nil
}

// Search lists the newest revision of every matching cube
func (s *Store) Search(ctx context.Context, appID models.AppID, namePattern, contentPattern string, opts models.SearchOptions) ([]models.CubeInfo, error) {
	defer s.observe(time.Now())
	rows, err := s.latestRows(ctx, s.db, appID)
	if err != nil {
		return nil, err
	}
	var out []models.CubeInfo
	for i := range rows {
		r := &rows[i]
		if !matchName(r.Name, namePattern, opts.ExactMatchName) {
			continue
		}
		if opts.DeletedRecordsOnly && !r.isTombstone() {
			continue
		}
		if opts.ActiveRecordsOnly && r.isTombstone() {
			continue
		}
		if opts.ChangedRecordsOnly && !r.Changed {
			continue
		}
		if contentPattern != "" {
			if r.CubeJSON == nil || !strings.Contains(strings.ToLower(*r.CubeJSON), strings.ToLower(contentPattern)) {
				continue
			}
		}
		out = append(out, r.info(opts))
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

func matchName(name, pattern string, exact bool) bool {
	if pattern == "" {
		return true
	}
	if exact {
		return strings.EqualFold(name, pattern)
	}
	return glob.Match(pattern, name)
}

// GetRevisions lists the full history of one cube
func (s *Store) GetRevisions(ctx context.Context, appID models.AppID, name string) ([]models.CubeInfo, error) {
	defer s.observe(time.Now())
	var rows []row
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM cube_revisions
		WHERE `+identityWhere+` AND name_lc = lower($6)
		ORDER BY abs(revision) ASC`,
		appID.Tenant, appID.App, appID.Version, string(appID.Status), appID.Branch, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}
	if len(rows) == 0 {
		return nil, cuberr.NotFoundf("cube %s does not exist in %s", name, appID)
	}
	opts := models.SearchOptions{IncludeNotes: true, IncludeTestData: true}
	out := make([]models.CubeInfo, len(rows))
	for i := range rows {
		out[i] = rows[i].info(opts)
	}
	return out, nil
}

// GetAppNames lists the application names of a tenant
func (s *Store) GetAppNames(ctx context.Context, tenant string) ([]string, error) {
	defer s.observe(time.Now())
	var names []string
	err := s.db.SelectContext(ctx, &names, `
		SELECT DISTINCT app FROM cube_revisions WHERE lower(tenant) = lower($1) ORDER BY app`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	return names, nil
}

// GetVersions lists an application's versions grouped by status
func (s *Store) GetVersions(ctx context.Context, tenant, app string) (map[models.ReleaseStatus][]string, error) {
	defer s.observe(time.Now())
	var rows []struct {
		Status  string `db:"status"`
		Version string `db:"version"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT DISTINCT status, version FROM cube_revisions
		WHERE lower(tenant) = lower($1) AND lower(app) = lower($2)
		ORDER BY status, version`, tenant, app)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	out := map[models.ReleaseStatus][]string{}
	for _, r := range rows {
		status := models.ReleaseStatus(strings.ToUpper(r.Status))
		out[status] = append(out[status], r.Version)
	}
	return out, nil
}

// GetBranches lists the branches of the AppID's version
func (s *Store) GetBranches(ctx context.Context, appID models.AppID) ([]string, error) {
	defer s.observe(time.Now())
	var branches []string
	err := s.db.SelectContext(ctx, &branches, `
		SELECT DISTINCT branch FROM cube_revisions
		WHERE lower(tenant) = lower($1) AND lower(app) = lower($2)
			AND lower(version) = lower($3) AND upper(status) = upper($4)
		ORDER BY branch`,
		appID.Tenant, appID.App, appID.Version, string(appID.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	return branches, nil
}

// GetNotes reads the live revision's notes
func (s *Store) GetNotes(ctx context.Context, appID models.AppID, name string) (string, error) {
	r, err := s.latest(ctx, s.db, appID, name)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", cuberr.NotFoundf("cube %s does not exist in %s", name, appID)
	}
	return r.Notes, nil
}

// GetTestData reads the live revision's test data
func (s *Store) GetTestData(ctx context.Context, appID models.AppID, name string) (string, error) {
	r, err := s.latest(ctx, s.db, appID, name)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", cuberr.NotFoundf("cube %s does not exist in %s", name, appID)
	}
	return r.TestData, nil
}
