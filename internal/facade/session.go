package facade

import (
	"context"
	"time"

	"github.com/cowork-run/supervisor/internal/store"
)

// Session is the typed shape returned by session lifecycle commands.
type Session struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	WorkingDirectory string `json:"workingDirectory"`
	CreatedAt        string `json:"createdAt"`
	LastAccessedAt   string `json:"lastAccessedAt"`
}

// CreateSessionParams is the request shape for create_session.
type CreateSessionParams struct {
	WorkingDirectory string `json:"workingDirectory"`
	Title            string `json:"title,omitempty"`
}

func (f *Facade) CreateSession(ctx context.Context, params CreateSessionParams) (Session, error) {
	session, err := call[Session](ctx, f, cmdCreateSession, params)
	if err == nil {
		f.mirrorSession(session)
	}
	return session, err
}

func (f *Facade) ListSessions(ctx context.Context) ([]Session, error) {
	sessions, err := call[[]Session](ctx, f, cmdListSessions, struct{}{})
	if err == nil {
		for _, s := range sessions {
			f.mirrorSession(s)
		}
	}
	return sessions, err
}

type sessionIDParams struct {
	SessionID string `json:"sessionId"`
}

func (f *Facade) GetSession(ctx context.Context, sessionID string) (Session, error) {
	session, err := call[Session](ctx, f, cmdGetSession, sessionIDParams{SessionID: sessionID})
	if err == nil {
		f.mirrorSession(session)
	}
	return session, err
}

func (f *Facade) DeleteSession(ctx context.Context, sessionID string) error {
	err := callVoid(ctx, f, cmdDeleteSession, sessionIDParams{SessionID: sessionID})
	if err == nil && f.cache != nil {
		f.cache.DeleteSession(sessionID)
	}
	return err
}

// mirrorSession refreshes the local cache entry for a worker-reported
// session. Timestamps that fail to parse (or are empty, e.g. a worker
// that hasn't set them yet) fall back to the current time rather than
// blocking the mirror on wire-format strictness the cache doesn't need.
func (f *Facade) mirrorSession(s Session) {
	if f.cache == nil || s.ID == "" {
		return
	}
	f.cache.UpsertSession(store.SessionRecord{
		ID:               s.ID,
		Title:            s.Title,
		WorkingDirectory: s.WorkingDirectory,
		CreatedAt:        parseTimeOrNow(s.CreatedAt),
		LastAccessedAt:   parseTimeOrNow(s.LastAccessedAt),
	})
}

func parseTimeOrNow(value string) time.Time {
	if value == "" {
		return time.Now()
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Now()
}

type updateSessionTitleParams struct {
	SessionID string `json:"sessionId"`
	Title     string `json:"title"`
}

func (f *Facade) UpdateSessionTitle(ctx context.Context, sessionID, title string) error {
	err := callVoid(ctx, f, cmdUpdateSessionTitle, updateSessionTitleParams{SessionID: sessionID, Title: title})
	if err == nil {
		f.patchCachedSession(sessionID, func(rec *store.SessionRecord) { rec.Title = title })
	}
	return err
}

type updateSessionWorkingDirectoryParams struct {
	SessionID        string `json:"sessionId"`
	WorkingDirectory string `json:"workingDirectory"`
}

func (f *Facade) UpdateSessionWorkingDirectory(ctx context.Context, sessionID, dir string) error {
	err := callVoid(ctx, f, cmdUpdateSessionWorkingDirectory, updateSessionWorkingDirectoryParams{
		SessionID: sessionID, WorkingDirectory: dir,
	})
	if err == nil {
		f.patchCachedSession(sessionID, func(rec *store.SessionRecord) { rec.WorkingDirectory = dir })
	}
	return err
}

func (f *Facade) UpdateSessionLastAccessed(ctx context.Context, sessionID string) error {
	err := callVoid(ctx, f, cmdUpdateSessionLastAccessed, sessionIDParams{SessionID: sessionID})
	if err == nil {
		now := time.Now()
		f.patchCachedSession(sessionID, func(rec *store.SessionRecord) { rec.LastAccessedAt = now })
	}
	return err
}

// patchCachedSession applies mutate to the cached record for sessionID if
// one exists, leaving the cache untouched otherwise — a future
// GetSession/ListSessions call will populate it from the worker.
func (f *Facade) patchCachedSession(sessionID string, mutate func(*store.SessionRecord)) {
	if f.cache == nil {
		return
	}
	rec, ok := f.cache.GetSession(sessionID)
	if !ok {
		return
	}
	mutate(&rec)
	f.cache.UpsertSession(rec)
}
