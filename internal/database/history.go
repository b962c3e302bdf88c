package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/mpasite/internal/model"
)

// FileName is the database file name inside the database directory.
const FileName = "mpasite.db"

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("check run not found")

// HistoryDB provides SQLite-based storage for check runs.
type HistoryDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a HistoryDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	var dsn string
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = dbPath + "?mode=rwc"
	} else {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s: %w", dbPath, ErrNotFound)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

func (h *HistoryDB) createTables() error {
	schema := `
	-- One row per check run
	CREATE TABLE IF NOT EXISTS check_runs (
		id TEXT PRIMARY KEY,
		site TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		pages_crawled INTEGER DEFAULT 0,
		assets_checked INTEGER DEFAULT 0,
		high_count INTEGER DEFAULT 0,
		medium_count INTEGER DEFAULT 0,
		low_count INTEGER DEFAULT 0,
		info_count INTEGER DEFAULT 0,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_site ON check_runs(site);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON check_runs(started_at);

	-- Latest known state of each page per site
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		site TEXT NOT NULL,
		path TEXT NOT NULL,
		status_code INTEGER,
		content_type TEXT,
		title TEXT,
		content_hash TEXT,
		last_run TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(site, path)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_site ON pages(site);
	`
	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// SaveReport stores a finished check report.
func (h *HistoryDB) SaveReport(ctx context.Context, report *model.CheckReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	var finished any
	if !report.FinishedAt.IsZero() {
		finished = report.FinishedAt.UTC().Format(timeLayout)
	}

	query := `
	INSERT INTO check_runs (id, site, started_at, finished_at, pages_crawled, assets_checked,
		high_count, medium_count, low_count, info_count, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = h.db.ExecContext(ctx, query,
		report.ID,
		report.Site,
		report.StartedAt.UTC().Format(timeLayout),
		finished,
		report.PagesCrawled,
		report.AssetsChecked,
		report.HighCount,
		report.MediumCount,
		report.LowCount,
		report.InfoCount,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// GetReport retrieves a report by run id. It returns ErrNotFound if the
// run does not exist.
func (h *HistoryDB) GetReport(ctx context.Context, id string) (*model.CheckReport, error) {
	var reportJSON string
	err := h.db.QueryRowContext(ctx, `SELECT report_json FROM check_runs WHERE id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var report model.CheckReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// LatestReports returns up to limit reports for site, newest first.
func (h *HistoryDB) LatestReports(ctx context.Context, site string, limit int) ([]*model.CheckReport, error) {
	query := `
	SELECT report_json FROM check_runs
	WHERE site = ?
	ORDER BY started_at DESC
	LIMIT ?
	`
	rows, err := h.db.QueryContext(ctx, query, site, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []*model.CheckReport
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		var report model.CheckReport
		if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
			continue // Skip malformed reports
		}
		reports = append(reports, &report)
	}
	return reports, rows.Err()
}

// RunMetadata contains summary information about a check run.
type RunMetadata struct {
	ID            string
	Site          string
	StartedAt     time.Time
	FinishedAt    time.Time
	PagesCrawled  int
	AssetsChecked int
	HighCount     int
	MediumCount   int
	LowCount      int
	InfoCount     int
}

// TotalFindings returns the number of findings of the run.
func (m RunMetadata) TotalFindings() int {
	return m.HighCount + m.MediumCount + m.LowCount + m.InfoCount
}

// ListRuns returns run metadata, newest first. An empty site lists all sites.
func (h *HistoryDB) ListRuns(ctx context.Context, site string, limit int) ([]RunMetadata, error) {
	query := `
	SELECT id, site, started_at, finished_at, pages_crawled, assets_checked,
		high_count, medium_count, low_count, info_count
	FROM check_runs
	WHERE (? = '' OR site = ?)
	ORDER BY started_at DESC
	LIMIT ?
	`
	if limit <= 0 {
		limit = -1
	}
	rows, err := h.db.QueryContext(ctx, query, site, site, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var m RunMetadata
		var started string
		var finished sql.NullString
		if err := rows.Scan(&m.ID, &m.Site, &started, &finished, &m.PagesCrawled, &m.AssetsChecked,
			&m.HighCount, &m.MediumCount, &m.LowCount, &m.InfoCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		m.StartedAt = parseTimestamp(started)
		if finished.Valid {
			m.FinishedAt = parseTimestamp(finished.String)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// ListSites returns every site with at least one stored run.
func (h *HistoryDB) ListSites(ctx context.Context) ([]string, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT DISTINCT site FROM check_runs ORDER BY site`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []string
	for rows.Next() {
		var site string
		if err := rows.Scan(&site); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// DeleteRunsBefore removes runs started before t and returns how many were deleted.
func (h *HistoryDB) DeleteRunsBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx, `DELETE FROM check_runs WHERE started_at < ?`, t.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	return res.RowsAffected()
}

// PageRecord is the latest known state of a page.
type PageRecord struct {
	Site        string
	Path        string
	StatusCode  int
	ContentType string
	Title       string
	ContentHash string
	LastRun     string
	UpdatedAt   time.Time
}

// UpsertPage inserts or updates the page record for (Site, Path).
// It reports whether the content hash changed compared to the stored record.
func (h *HistoryDB) UpsertPage(ctx context.Context, rec *PageRecord) (bool, error) {
	var previous sql.NullString
	err := h.db.QueryRowContext(ctx, `SELECT content_hash FROM pages WHERE site = ? AND path = ?`,
		rec.Site, rec.Path).Scan(&previous)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to read page record: %w", err)
	}
	changed := previous.Valid && previous.String != rec.ContentHash

	query := `
	INSERT INTO pages (site, path, status_code, content_type, title, content_hash, last_run)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(site, path) DO UPDATE SET
		status_code = excluded.status_code,
		content_type = excluded.content_type,
		title = excluded.title,
		content_hash = excluded.content_hash,
		last_run = excluded.last_run,
		updated_at = CURRENT_TIMESTAMP
	`
	if _, err := h.db.ExecContext(ctx, query, rec.Site, rec.Path, rec.StatusCode, rec.ContentType,
		rec.Title, rec.ContentHash, rec.LastRun); err != nil {
		return false, fmt.Errorf("failed to upsert page record: %w", err)
	}
	return changed, nil
}

// ListPages returns the page records of site ordered by path.
func (h *HistoryDB) ListPages(ctx context.Context, site string) ([]PageRecord, error) {
	query := `
	SELECT site, path, status_code, content_type, title, content_hash, last_run, updated_at
	FROM pages WHERE site = ? ORDER BY path
	`
	rows, err := h.db.QueryContext(ctx, query, site)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var records []PageRecord
	for rows.Next() {
		var r PageRecord
		var contentType, title, hash, lastRun sql.NullString
		var updated string
		if err := rows.Scan(&r.Site, &r.Path, &r.StatusCode, &contentType, &title, &hash, &lastRun, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan page record: %w", err)
		}
		r.ContentType = contentType.String
		r.Title = title.String
		r.ContentHash = hash.String
		r.LastRun = lastRun.String
		r.UpdatedAt = parseTimestamp(updated)
		records = append(records, r)
	}
	return records, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
