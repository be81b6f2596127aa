package store

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/cowork-run/supervisor/internal/config"
)

// SessionRecord is the cached shape of a worker-reported session (§6
// session lifecycle family), mirrored here by the facade; the facade's
// ListSessions/GetSession still answer from the worker, not from here.
type SessionRecord struct {
	ID               string
	Title            string
	WorkingDirectory string
	CreatedAt        time.Time
	LastAccessedAt   time.Time
}

// ServiceStatusRecord is the cached shape of an Installer.Status result
// (§4.F), keyed by service id. cmd/supervisord writes it at startup;
// `supervisorctl status` does not read it and queries the host service
// manager instead.
type ServiceStatusRecord struct {
	ServiceID      string
	Mode           string
	Manager        string
	Installed      bool
	Running        bool
	Enabled        bool
	DataDir        string
	Endpoint       string
	Details        string
	DiscardedLines uint64
	UpdatedAt      time.Time
}

// Store is the sqlite-backed local cache described by this package's doc
// comment. All methods are safe for concurrent use.
type Store struct {
	mu sync.RWMutex
	db *sql.DB
}

// New creates an in-memory store, used by tests and by callers that don't
// need the cache to survive a restart.
func New() *Store {
	db, err := OpenDB(":memory:")
	if err != nil {
		return &Store{}
	}
	return &Store{db: db}
}

// Open creates a store backed by the sqlite file at path, creating parent
// directories and the schema as needed.
func Open(path string) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// OpenDefault opens the store at the data-directory-derived path
// (config.StorePath), falling back to an in-memory store if the file
// cannot be opened so a cache failure never blocks supervisor startup.
func OpenDefault() *Store {
	s, err := Open(config.StorePath())
	if err != nil {
		log.Printf("[store] falling back to in-memory cache: %v", err)
		return New()
	}
	return s
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertSession records or refreshes a session's cached metadata.
func (s *Store) UpsertSession(rec SessionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, title, working_directory, created_at, last_accessed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			working_directory = excluded.working_directory,
			last_accessed_at = excluded.last_accessed_at`,
		rec.ID, rec.Title, rec.WorkingDirectory,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.LastAccessedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		log.Printf("[store] upsert session %s: %v", rec.ID, err)
	}
}

// GetSession returns the cached session, or ok=false if it isn't cached.
func (s *Store) GetSession(id string) (SessionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return SessionRecord{}, false
	}

	var rec SessionRecord
	var createdAt, lastAccessedAt string
	err := s.db.QueryRow(
		`SELECT id, title, working_directory, created_at, last_accessed_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Title, &rec.WorkingDirectory, &createdAt, &lastAccessedAt)
	if err != nil {
		return SessionRecord{}, false
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.LastAccessedAt, _ = time.Parse(time.RFC3339Nano, lastAccessedAt)
	return rec, true
}

// ListSessions returns every cached session, ordered by most recently
// accessed first.
func (s *Store) ListSessions() []SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil
	}

	rows, err := s.db.Query(
		`SELECT id, title, working_directory, created_at, last_accessed_at
		 FROM sessions ORDER BY last_accessed_at DESC`,
	)
	if err != nil {
		log.Printf("[store] list sessions: %v", err)
		return nil
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var createdAt, lastAccessedAt string
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.WorkingDirectory, &createdAt, &lastAccessedAt); err != nil {
			log.Printf("[store] scan session row: %v", err)
			continue
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		rec.LastAccessedAt, _ = time.Parse(time.RFC3339Nano, lastAccessedAt)
		out = append(out, rec)
	}
	return out
}

// DeleteSession removes a session from the cache.
func (s *Store) DeleteSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return
	}
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		log.Printf("[store] delete session %s: %v", id, err)
	}
}

// UpsertServiceStatus records or refreshes a service installer's last
// known status (§4.F), mirrored here so it survives a supervisor restart.
func (s *Store) UpsertServiceStatus(rec ServiceStatusRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return
	}
	_, err := s.db.Exec(`
		INSERT INTO service_status
			(service_id, mode, manager, installed, running, enabled, data_dir, endpoint, details, discarded_lines, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(service_id) DO UPDATE SET
			mode = excluded.mode,
			manager = excluded.manager,
			installed = excluded.installed,
			running = excluded.running,
			enabled = excluded.enabled,
			data_dir = excluded.data_dir,
			endpoint = excluded.endpoint,
			details = excluded.details,
			discarded_lines = excluded.discarded_lines,
			updated_at = excluded.updated_at`,
		rec.ServiceID, rec.Mode, rec.Manager,
		boolToInt(rec.Installed), boolToInt(rec.Running), boolToInt(rec.Enabled),
		rec.DataDir, rec.Endpoint, rec.Details, rec.DiscardedLines,
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		log.Printf("[store] upsert service status %s: %v", rec.ServiceID, err)
	}
}

// GetServiceStatus returns the cached service status, or ok=false if none
// has been recorded yet for that service id.
func (s *Store) GetServiceStatus(serviceID string) (ServiceStatusRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ServiceStatusRecord{}, false
	}

	var rec ServiceStatusRecord
	var installed, running, enabled int
	var updatedAt string
	err := s.db.QueryRow(`
		SELECT service_id, mode, manager, installed, running, enabled,
		       data_dir, endpoint, details, discarded_lines, updated_at
		FROM service_status WHERE service_id = ?`, serviceID,
	).Scan(&rec.ServiceID, &rec.Mode, &rec.Manager, &installed, &running, &enabled,
		&rec.DataDir, &rec.Endpoint, &rec.Details, &rec.DiscardedLines, &updatedAt)
	if err != nil {
		return ServiceStatusRecord{}, false
	}
	rec.Installed, rec.Running, rec.Enabled = installed != 0, running != 0, enabled != 0
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return rec, true
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
