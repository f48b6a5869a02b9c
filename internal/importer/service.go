package importer

// service.go owns the live session registry and drives sessions on behalf
// of the web layer. Each session is single-owner; the per-session lock only
// serializes racing HTTP requests, it never interleaves pipeline stages.

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openledgerhq/importd/internal/catalog"
)

// Options tunes the service. Zero values fall back to defaults.
type Options struct {
	BatchSize     int           // rows per commit call (default 50)
	ImportTimeout time.Duration // ceiling on one commit loop (default 10m)
	Retention     time.Duration // how long completed sessions stay queryable (default 5m)
}

// Service coordinates import sessions and their remote collaborators.
type Service struct {
	checker   DuplicateChecker
	committer BatchCommitter
	history   HistoryRecorder // may be nil
	logger    *slog.Logger
	opts      Options

	mu       sync.RWMutex
	sessions map[string]*activeSession
}

// activeSession wraps a session with the bookkeeping the HTTP surface
// needs: a request lock, import completion signal, and progress listeners.
type activeSession struct {
	mu      sync.Mutex
	session *Session

	importing bool
	done      chan struct{}

	listenerMu sync.Mutex
	listeners  []chan ImportProgress
	last       ImportProgress
}

// NewService creates a session service.
func NewService(checker DuplicateChecker, committer BatchCommitter, history HistoryRecorder, logger *slog.Logger, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.ImportTimeout <= 0 {
		opts.ImportTimeout = 10 * time.Minute
	}
	if opts.Retention <= 0 {
		opts.Retention = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		checker:   checker,
		committer: committer,
		history:   history,
		logger:    logger,
		opts:      opts,
		sessions:  make(map[string]*activeSession),
	}
}

// CreateSession tokenizes the uploaded file and, on success, registers a
// new session already advanced to the mapping stage. Rejected files create
// nothing; the caller simply retries with another file.
func (s *Service) CreateSession(kind catalog.EntityKind, fileName string, size int64, data []byte) (*Session, error) {
	sess := NewSession(uuid.New().String(), kind)
	if err := sess.Upload(fileName, size, data); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sess.ID] = &activeSession{
		session: sess,
		done:    make(chan struct{}),
	}
	s.mu.Unlock()

	s.logger.Info("import session created",
		"session_id", sess.ID,
		"kind", kind.String(),
		"file", fileName,
		"rows", len(sess.Rows),
	)
	return sess, nil
}

func (s *Service) lookup(id string) (*activeSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return active, nil
}

// Snapshot returns a copy of the session's current state under its lock.
func (s *Service) Snapshot(id string) (Session, error) {
	active, err := s.lookup(id)
	if err != nil {
		return Session{}, err
	}
	active.mu.Lock()
	defer active.mu.Unlock()
	return *active.session, nil
}

// UpdateMapping replaces the session's field mapping (mapping stage only).
func (s *Service) UpdateMapping(id string, mapping map[string]string) (Session, error) {
	return s.withSession(id, func(sess *Session) error {
		return sess.SetMapping(mapping)
	})
}

// Preview advances the session into preview, running validation and the
// duplicate check.
func (s *Service) Preview(ctx context.Context, id string) (Session, error) {
	return s.withSession(id, func(sess *Session) error {
		return sess.ToPreview(ctx, s.checker, s.logger)
	})
}

// Back returns the session from preview to mapping.
func (s *Service) Back(id string) (Session, error) {
	return s.withSession(id, func(sess *Session) error {
		return sess.Back()
	})
}

// SetSkipDuplicates updates the duplicate handling toggle.
func (s *Service) SetSkipDuplicates(id string, skip bool) (Session, error) {
	return s.withSession(id, func(sess *Session) error {
		return sess.SetSkipDuplicates(skip)
	})
}

func (s *Service) withSession(id string, fn func(*Session) error) (Session, error) {
	active, err := s.lookup(id)
	if err != nil {
		return Session{}, err
	}
	active.mu.Lock()
	defer active.mu.Unlock()
	if err := fn(active.session); err != nil {
		return Session{}, err
	}
	return *active.session, nil
}

// StartImport kicks off the commit loop in the background and returns
// immediately. Progress is observable via SubscribeProgress; the terminal
// results via Result. Once started the loop runs to completion.
func (s *Service) StartImport(id string) error {
	active, err := s.lookup(id)
	if err != nil {
		return err
	}

	active.mu.Lock()
	if active.importing {
		active.mu.Unlock()
		return &StageError{Op: "start the import twice", Stage: StageImporting}
	}
	req, err := active.session.beginImport(s.opts.BatchSize)
	if err != nil {
		active.mu.Unlock()
		return err
	}
	active.importing = true
	active.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ImportTimeout)
	go s.runImport(ctx, cancel, active, req)
	return nil
}

// runImport executes the commit loop without holding the session lock, so
// snapshot reads stay responsive while batches are in flight. The captured
// request is immutable; only finishImport touches the session again.
func (s *Service) runImport(ctx context.Context, cancel context.CancelFunc, active *activeSession, req commitRequest) {
	id := active.session.ID

	defer cancel()
	defer func() {
		// done closes first so late subscribers take the replay-and-close
		// path instead of registering a listener nobody will close.
		close(active.done)
		active.closeListeners()
		s.expire(id, s.opts.Retention)
	}()

	start := time.Now()
	results := commitAll(ctx, s.committer, req, func(p ImportProgress) {
		p.SessionID = id
		active.notifyProgress(p)
	}, s.logger)
	elapsed := time.Since(start)

	active.mu.Lock()
	active.session.finishImport(results, elapsed)
	sess := *active.session
	active.mu.Unlock()

	active.notifyProgress(ImportProgress{
		SessionID: id,
		Stage:     StageComplete,
		Percent:   100,
		Admitted:  results.Success + results.Failed,
		Processed: results.Success + results.Failed,
		Results:   results,
	})

	s.logger.Info("import complete",
		"session_id", id,
		"kind", sess.Kind.String(),
		"success", results.Success,
		"failed", results.Failed,
		"skipped", results.Skipped,
		"duration_ms", elapsed.Milliseconds(),
	)

	s.recordHistory(&sess)
}

// recordHistory persists the completion summary. Best-effort: a failed
// insert is logged and the user still sees their results.
func (s *Service) recordHistory(sess *Session) {
	if s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.history.RecordImport(ctx, CompletedImport{
		SessionID: sess.ID,
		Kind:      sess.Kind,
		FileName:  sess.FileName,
		TotalRows: len(sess.Rows),
		Results:   sess.Results,
		Duration:  sess.ImportedIn,
	})
	if err != nil {
		s.logger.Warn("failed to record import history", "session_id", sess.ID, "error", err)
	}
}

// SubscribeProgress returns a channel receiving progress snapshots for a
// running import. The channel closes when the import finishes. The latest
// snapshot is delivered immediately so late subscribers catch up.
func (s *Service) SubscribeProgress(id string) (<-chan ImportProgress, error) {
	active, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	ch := make(chan ImportProgress, 16)

	active.listenerMu.Lock()
	if active.closed() {
		active.listenerMu.Unlock()
		// Import already finished: replay the terminal snapshot and close.
		ch <- active.last
		close(ch)
		return ch, nil
	}
	active.listeners = append(active.listeners, ch)
	if active.last.SessionID != "" {
		select {
		case ch <- active.last:
		default:
		}
	}
	active.listenerMu.Unlock()

	return ch, nil
}

// Result blocks until the import finishes and returns the final session
// state, or until the caller's context is done.
func (s *Service) Result(ctx context.Context, id string) (Session, error) {
	active, err := s.lookup(id)
	if err != nil {
		return Session{}, err
	}
	select {
	case <-active.done:
	case <-ctx.Done():
		return Session{}, ctx.Err()
	}
	active.mu.Lock()
	defer active.mu.Unlock()
	return *active.session, nil
}

// Abandon destroys a session. Allowed any time before importing starts;
// once the committer is running the session runs batches to completion.
func (s *Service) Abandon(id string) error {
	active, err := s.lookup(id)
	if err != nil {
		return err
	}

	active.mu.Lock()
	importing := active.importing && active.session.Stage != StageComplete
	active.mu.Unlock()

	if importing {
		return &StageError{Op: "abandon the session", Stage: StageImporting}
	}

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// expire removes a session from tracking after a delay, keeping results
// queryable long enough for the UI to fetch them.
func (s *Service) expire(id string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
	})
}

func (a *activeSession) notifyProgress(p ImportProgress) {
	a.listenerMu.Lock()
	defer a.listenerMu.Unlock()

	a.last = p
	for _, ch := range a.listeners {
		select {
		case ch <- p:
		default:
			// Listener is slow, skip this update.
		}
	}
}

func (a *activeSession) closeListeners() {
	a.listenerMu.Lock()
	defer a.listenerMu.Unlock()

	for _, ch := range a.listeners {
		close(ch)
	}
	a.listeners = nil
}

func (a *activeSession) closed() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}
