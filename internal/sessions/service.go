package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/doctrack/doctrack/pkg/logger"
	"github.com/doctrack/doctrack/pkg/metrics"
	"github.com/google/uuid"
)

// ErrNoUser is returned when a session operation has no user id.
var ErrNoUser = errors.New("session user id is required")

// Service wraps repository operations with the generation rules.
type Service struct {
	repo Repository
	ttl  time.Duration
	now  func() time.Time
}

func NewService(r Repository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Service{repo: r, ttl: ttl, now: time.Now}
}

// Begin starts a new login for userID, superseding any earlier one.
func (s *Service) Begin(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, ErrNoUser
	}
	now := s.now().UTC()
	sess := &Session{
		UserID:    userID,
		Token:     uuid.NewString(),
		StartedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	gen, err := s.repo.Bump(ctx, sess)
	if err != nil {
		return nil, err
	}
	sess.Generation = gen
	logger.Debugf("session begin user=%s generation=%d", userID, gen)
	return sess, nil
}

// Check classifies a client's generation. A session never sees its own
// bump as newer, so the login that just began is always Active.
func (s *Service) Check(ctx context.Context, userID string, generation int64) (State, error) {
	cur, err := s.repo.Current(ctx, userID)
	if err != nil {
		return "", err
	}
	switch {
	case cur == nil || generation > cur.Generation:
		return StateExpired, nil
	case generation < cur.Generation:
		metrics.SessionsSuperseded.Inc()
		return StateSuperseded, nil
	case !cur.Live(s.now()):
		return StateExpired, nil
	}
	return StateActive, nil
}

// End signs out generation if it is still the current one. Ending a
// superseded generation is a no-op.
func (s *Service) End(ctx context.Context, userID string, generation int64) (bool, error) {
	return s.repo.End(ctx, userID, generation)
}
