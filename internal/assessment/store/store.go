// Package store owns every live assessment session. All mutation funnels
// through WithSession, which serializes concurrent writers per session so
// simultaneous answer submissions cannot lose updates or double-advance.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/adaptest-backend/internal/domain"
	"github.com/yungbote/adaptest-backend/internal/pkg/errs"
	"github.com/yungbote/adaptest-backend/internal/platform/logger"
)

const (
	DefaultIdleTimeout  = 2 * time.Hour
	DefaultMaxQuestions = 10
)

type sessionEntry struct {
	mu   sync.Mutex
	sess *domain.Session
}

type Options struct {
	IdleTimeout   time.Duration
	MaxQuestions  int
	SweepInterval time.Duration
}

type Store struct {
	log          *logger.Logger
	idle         time.Duration
	maxQuestions int

	mu        sync.Mutex
	sessions  map[uuid.UUID]*sessionEntry
	byLearner map[domain.SubjectRef]uuid.UUID

	stop     chan struct{}
	stopOnce sync.Once
}

func New(baseLog *logger.Logger, opts Options) *Store {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.MaxQuestions <= 0 {
		opts.MaxQuestions = DefaultMaxQuestions
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Minute
	}
	s := &Store{
		log:          baseLog.With("component", "SessionStore"),
		idle:         opts.IdleTimeout,
		maxQuestions: opts.MaxQuestions,
		sessions:     make(map[uuid.UUID]*sessionEntry),
		byLearner:    make(map[domain.SubjectRef]uuid.UUID),
		stop:         make(chan struct{}),
	}
	go s.sweep(opts.SweepInterval)
	return s
}

// StartOrResume returns the Active session for the learner pair, creating
// one with default levels when none exists. The returned session is a
// snapshot; mutation goes through WithSession.
func (s *Store) StartOrResume(ctx context.Context, subject domain.SubjectRef, name string, launch *domain.VerifiedLaunch) (*domain.Session, bool, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byLearner[subject]; ok {
		if e, found := s.sessions[id]; found {
			e.mu.Lock()
			s.applyIdleLocked(e.sess, now)
			if e.sess.Status == domain.SessionActive {
				snap := e.sess.Clone()
				e.mu.Unlock()
				return snap, false, nil
			}
			e.mu.Unlock()
		}
		delete(s.byLearner, subject)
	}

	sess := &domain.Session{
		ID:             uuid.New(),
		Learner:        subject,
		Name:           name,
		Difficulty:     domain.MinLevel,
		BloomLevel:     domain.MinLevel,
		Misconceptions: make(map[string]struct{}),
		Launch:         launch,
		QuestionNumber: 1,
		MaxQuestions:   s.maxQuestions,
		CreatedAt:      now,
		LastActiveAt:   now,
		Status:         domain.SessionActive,
	}
	s.sessions[sess.ID] = &sessionEntry{sess: sess}
	s.byLearner[subject] = sess.ID
	s.log.Info("session created", "session_id", sess.ID, "subject", subject.SubjectID, "resource_link_id", subject.ResourceLinkID)
	return sess.Clone(), true, nil
}

// WithSession runs fn against the live session under its lock. It is the
// only mutation path; at most one caller holds a given session at a time,
// and waiting callers proceed in acquisition order. Expired and Completed
// sessions refuse mutation but stay readable through Get.
func (s *Store) WithSession(ctx context.Context, id uuid.UUID, fn func(*domain.Session) error) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", errs.ErrSessionNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	s.applyIdleLocked(e.sess, now)
	if e.sess.Status != domain.SessionActive {
		return fmt.Errorf("%w: %s", errs.ErrSessionExpired, id)
	}
	if err := fn(e.sess); err != nil {
		return err
	}
	e.sess.LastActiveAt = now
	return nil
}

// Get returns a read-only snapshot. Expired and Completed sessions remain
// retrievable for audit and grade finalization.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	s.mu.Lock()
	e, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrSessionNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s.applyIdleLocked(e.sess, time.Now())
	return e.sess.Clone(), nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", errs.ErrSessionNotFound, id)
	}
	delete(s.sessions, id)
	if cur, found := s.byLearner[e.sess.Learner]; found && cur == id {
		delete(s.byLearner, e.sess.Learner)
	}
	return nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// applyIdleLocked is a soft cancellation: an idle session stops accepting
// mutation without losing its recorded history.
func (s *Store) applyIdleLocked(sess *domain.Session, now time.Time) {
	if sess.Status == domain.SessionActive && now.Sub(sess.LastActiveAt) > s.idle {
		sess.Status = domain.SessionExpired
	}
}

func (s *Store) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			entries := make([]*sessionEntry, 0, len(s.sessions))
			for _, e := range s.sessions {
				entries = append(entries, e)
			}
			s.mu.Unlock()
			for _, e := range entries {
				e.mu.Lock()
				s.applyIdleLocked(e.sess, now)
				e.mu.Unlock()
			}
		}
	}
}
