// Package users is the directory of known users. It answers "which
// department is this user in right now", which decides return routing and
// archive rights.
package users

import (
	"context"
	"sync"
	"time"

	"github.com/doctrack/doctrack/internal/models"
	"github.com/doctrack/doctrack/pkg/logger"
)

// deptTTL bounds how long a cached department is trusted before the
// directory is consulted again.
const deptTTL = 30 * time.Second

type cachedDept struct {
	dept string
	at   time.Time
}

// Service encapsulates user-related business logic
type Service struct {
	repo    UserRepository
	timeout time.Duration
	ttl     time.Duration
	now     func() time.Time

	mu    sync.RWMutex
	depts map[string]cachedDept
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r, timeout: 2 * time.Second, ttl: deptTTL, now: time.Now, depts: map[string]cachedDept{}}
}

// Sync records the caller's current profile and refreshes the cache.
func (s *Service) Sync(ctx context.Context, p models.Principal, email string) (*models.User, error) {
	if p.ID == "" {
		return nil, nil
	}
	u, err := s.repo.UpsertBySub(ctx, &models.User{
		Sub:        p.ID,
		Email:      email,
		Name:       p.DisplayName,
		Department: p.Department,
		Role:       p.Role,
	})
	if err != nil {
		return nil, err
	}
	s.remember(p.ID, p.Department)
	return u, nil
}

func (s *Service) remember(sub, dept string) {
	s.mu.Lock()
	s.depts[sub] = cachedDept{dept: dept, at: s.now()}
	s.mu.Unlock()
}

func (s *Service) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	return s.repo.GetBySub(ctx, sub)
}

// DepartmentOf returns the user's current department. Cached answers are
// refreshed after deptTTL; if the refresh fails the stale answer stands.
// Unknown users and failed first lookups report false.
func (s *Service) DepartmentOf(sub string) (string, bool) {
	s.mu.RLock()
	c, ok := s.depts[sub]
	s.mu.RUnlock()
	if ok && s.now().Sub(c.at) < s.ttl {
		return c.dept, c.dept != ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	u, err := s.repo.GetBySub(ctx, sub)
	if err != nil {
		logger.Warnf("department lookup for %s: %v", sub, err)
		return c.dept, c.dept != ""
	}
	if u == nil {
		s.forget(sub)
		return "", false
	}
	s.remember(sub, u.Department)
	return u.Department, u.Department != ""
}

func (s *Service) forget(sub string) {
	s.mu.Lock()
	delete(s.depts, sub)
	s.mu.Unlock()
}
