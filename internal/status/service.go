// Package status tracks platform health. Repeated failures bench a
// platform with escalating backoff so a dead mirror stops slowing every
// search down, and a background probe re-tests benched platforms so they
// come back without user action.
package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/shelfstream/shelfstream/internal/books"
)

// BackoffConfig defines the backoff strategy for failing platforms.
type BackoffConfig struct {
	// Periods are the disable durations per escalation level.
	Periods []time.Duration
	// MaxEscalation caps the escalation level.
	MaxEscalation int
}

// DefaultBackoffConfig returns the default backoff configuration.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Periods: []time.Duration{
			1 * time.Minute,
			5 * time.Minute,
			15 * time.Minute,
			30 * time.Minute,
			1 * time.Hour,
		},
		MaxEscalation: 5,
	}
}

// backoff returns the disable duration for an escalation level.
func (c BackoffConfig) backoff(level int) time.Duration {
	if level <= 0 || len(c.Periods) == 0 {
		return 0
	}
	if level > len(c.Periods) {
		level = len(c.Periods)
	}
	return c.Periods[level-1]
}

// PlatformStatus is the health record for one platform.
type PlatformStatus struct {
	Platform          books.Platform `json:"platform"`
	EscalationLevel   int            `json:"escalationLevel"`
	InitialFailure    *time.Time     `json:"initialFailure,omitempty"`
	MostRecentFailure *time.Time     `json:"mostRecentFailure,omitempty"`
	DisabledTill      *time.Time     `json:"disabledTill,omitempty"`
	LastError         string         `json:"lastError,omitempty"`
}

// Service tracks per-platform health in memory.
type Service struct {
	config BackoffConfig
	logger zerolog.Logger

	mu       sync.RWMutex
	statuses map[books.Platform]*PlatformStatus

	scheduler gocron.Scheduler
}

// NewService creates a status service with default backoff.
func NewService(logger zerolog.Logger) *Service {
	return NewServiceWithConfig(DefaultBackoffConfig(), logger)
}

// NewServiceWithConfig creates a status service with custom backoff.
func NewServiceWithConfig(config BackoffConfig, logger zerolog.Logger) *Service {
	return &Service{
		config:   config,
		logger:   logger.With().Str("component", "platform-status").Logger(),
		statuses: make(map[books.Platform]*PlatformStatus),
	}
}

// GetStatus returns the health record for a platform. Platforms without
// recorded failures report a clean default.
func (s *Service) GetStatus(platform books.Platform) PlatformStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if status, ok := s.statuses[platform]; ok {
		return *status
	}
	return PlatformStatus{Platform: platform}
}

// RecordSuccess clears any failure state for a platform.
func (s *Service) RecordSuccess(platform books.Platform) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.statuses[platform]; !ok {
		return
	}
	delete(s.statuses, platform)
	s.logger.Debug().Str("platform", string(platform)).Msg("Cleared platform failure state")
}

// RecordFailure records a failed operation with escalating backoff.
func (s *Service) RecordFailure(platform books.Platform, opError error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	status, ok := s.statuses[platform]
	if !ok {
		status = &PlatformStatus{Platform: platform, InitialFailure: &now}
		s.statuses[platform] = status
	}

	status.EscalationLevel++
	if status.EscalationLevel > s.config.MaxEscalation {
		status.EscalationLevel = s.config.MaxEscalation
	}
	status.MostRecentFailure = &now
	if opError != nil {
		status.LastError = opError.Error()
	}

	backoff := s.config.backoff(status.EscalationLevel)
	disabledTill := now.Add(backoff)
	status.DisabledTill = &disabledTill

	s.logger.Warn().
		Str("platform", string(platform)).
		Int("escalationLevel", status.EscalationLevel).
		Dur("backoff", backoff).
		Time("disabledTill", disabledTill).
		Err(opError).
		Msg("Recorded platform failure, applying backoff")
}

// IsDisabled reports whether a platform is currently benched.
func (s *Service) IsDisabled(platform books.Platform) (bool, *time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.statuses[platform]
	if !ok || status.DisabledTill == nil {
		return false, nil
	}
	if time.Now().After(*status.DisabledTill) {
		return false, nil
	}
	till := *status.DisabledTill
	return true, &till
}

// All returns every recorded status.
func (s *Service) All() []PlatformStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]PlatformStatus, 0, len(s.statuses))
	for _, status := range s.statuses {
		all = append(all, *status)
	}
	return all
}

// StartProbing launches a periodic job that re-tests benched platforms
// and clears their failure state once they answer again.
func (s *Service) StartProbing(adapters map[books.Platform]books.Source, interval time.Duration) error {
	if s.scheduler != nil {
		return fmt.Errorf("probing already started")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { s.probe(adapters) }),
		gocron.WithName("platform-health-probe"),
	)
	if err != nil {
		return fmt.Errorf("create probe job: %w", err)
	}

	s.scheduler = scheduler
	scheduler.Start()
	s.logger.Debug().Dur("interval", interval).Msg("Health probing started")
	return nil
}

// probe tests every currently benched platform.
func (s *Service) probe(adapters map[books.Platform]books.Source) {
	s.mu.RLock()
	benched := make([]books.Platform, 0, len(s.statuses))
	for platform := range s.statuses {
		benched = append(benched, platform)
	}
	s.mu.RUnlock()

	for _, platform := range benched {
		source, ok := adapters[platform]
		if !ok {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := source.Test(ctx)
		cancel()

		if err != nil {
			s.logger.Debug().
				Err(err).
				Str("platform", string(platform)).
				Msg("Health probe still failing")
			continue
		}

		s.RecordSuccess(platform)
		s.logger.Info().Str("platform", string(platform)).Msg("Platform recovered")
	}
}

// Close stops the background probe.
func (s *Service) Close() error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Shutdown()
}
