package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mpdgrab/internal/capture"
	"mpdgrab/internal/item"
	"mpdgrab/internal/logger"
	"mpdgrab/internal/metrics"

	"github.com/google/uuid"
)

// ErrNotFound is returned for an unknown or already finished session id.
var ErrNotFound = errors.New("capture session not found")

const reapInterval = 30 * time.Second

// CaptureSession collects what one browsing session observed: post documents
// and passively captured mp4 fragments.
type CaptureSession struct {
	ID        string
	SourceURL string
	Created   time.Time

	store *capture.FragmentStore

	mutex    sync.Mutex
	posts    []*item.Post
	sealed   bool
	lastSeen time.Time
}

// Observe records an HTTP response seen by the capture collaborator. It
// reports whether the response was kept as a passive fragment.
func (s *CaptureSession) Observe(rawURL, contentType string, body []byte) (bool, error) {
	s.touch()
	return s.store.Observe(rawURL, contentType, body)
}

// AddPost queues a post document for reconstruction.
func (s *CaptureSession) AddPost(post *item.Post) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.sealed {
		return capture.ErrSealed
	}
	s.posts = append(s.posts, post)
	s.lastSeen = time.Now()
	return nil
}

// seal ends capture and hands out what was collected.
func (s *CaptureSession) seal() Capture {
	s.mutex.Lock()
	s.sealed = true
	posts := s.posts
	s.mutex.Unlock()

	return Capture{Posts: posts, Fragments: s.store.Seal(), SourceURL: s.SourceURL}
}

func (s *CaptureSession) touch() {
	s.mutex.Lock()
	s.lastSeen = time.Now()
	s.mutex.Unlock()
}

func (s *CaptureSession) idleSince() time.Time {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.lastSeen
}

// SessionManager owns the open capture sessions.
type SessionManager struct {
	mutex     sync.RWMutex
	sessions  map[string]*CaptureSession
	processor *Processor
	logger    logger.Logger
	ttl       time.Duration

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a session manager. Sessions idle for longer than ttl are
// dropped by the reaper started with Start.
func NewManager(log logger.Logger, processor *Processor, ttl time.Duration) *SessionManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		sessions:  make(map[string]*CaptureSession),
		processor: processor,
		logger:    log,
		ttl:       ttl,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins the background reaper.
func (sm *SessionManager) Start() {
	sm.logger.Infof("Starting idle session reaper (ttl %s)...", sm.ttl)
	sm.done = make(chan struct{})
	go sm.reapWorker()
}

// Stop halts the reaper and discards every open session.
func (sm *SessionManager) Stop() {
	sm.logger.Infof("Stopping session manager...")
	sm.cancel()
	if sm.done != nil {
		<-sm.done
	}

	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	for id, s := range sm.sessions {
		s.seal()
		delete(sm.sessions, id)
		metrics.ActiveSessions.Dec()
	}
	sm.logger.Infof("Session manager stopped.")
}

// Create opens a new capture session.
func (sm *SessionManager) Create(sourceURL string) *CaptureSession {
	now := time.Now()
	s := &CaptureSession{
		ID:        uuid.NewString(),
		SourceURL: sourceURL,
		Created:   now,
		lastSeen:  now,
	}
	s.store = capture.NewFragmentStore(logger.Component(sm.logger, "capture"))

	sm.mutex.Lock()
	sm.sessions[s.ID] = s
	sm.mutex.Unlock()

	metrics.ActiveSessions.Inc()
	sm.logger.Infof("Opened capture session %s (source %q)", s.ID, sourceURL)
	return s
}

// Get returns the open session with id.
func (sm *SessionManager) Get(id string) (*CaptureSession, error) {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	s, ok := sm.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Finish seals the session, removes it and runs reconstruction over what it
// captured.
func (sm *SessionManager) Finish(ctx context.Context, id string) (Report, error) {
	sm.mutex.Lock()
	s, ok := sm.sessions[id]
	if ok {
		delete(sm.sessions, id)
	}
	sm.mutex.Unlock()
	if !ok {
		return Report{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	metrics.ActiveSessions.Dec()

	c := s.seal()
	sm.logger.Infof("Finishing capture session %s: %d post(s), %d passive resource(s)", id, len(c.Posts), len(c.Fragments))
	report := sm.processor.Run(ctx, c)
	sm.logger.Infof("Capture session %s produced %d artifact(s)", id, report.Artifacts)
	return report, nil
}

// Len returns the number of open sessions.
func (sm *SessionManager) Len() int {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return len(sm.sessions)
}

func (sm *SessionManager) reapWorker() {
	defer close(sm.done)
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sm.ctx.Done():
			sm.logger.Infof("Session reaper stopped.")
			return
		case now := <-ticker.C:
			sm.reapIdle(now)
		}
	}
}

// reapIdle drops sessions that saw no activity for longer than the ttl.
func (sm *SessionManager) reapIdle(now time.Time) int {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	reaped := 0
	for id, s := range sm.sessions {
		if now.Sub(s.idleSince()) <= sm.ttl {
			continue
		}
		s.seal()
		delete(sm.sessions, id)
		metrics.ActiveSessions.Dec()
		reaped++
		sm.logger.Warnf("Dropped idle capture session %s (created %s)", id, s.Created.Format(time.RFC3339))
	}
	if reaped > 0 {
		sm.logger.Infof("Reaped %d idle session(s). Open sessions: %d.", reaped, len(sm.sessions))
	}
	return reaped
}
