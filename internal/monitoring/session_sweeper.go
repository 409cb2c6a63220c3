package monitoring

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Sweepable is a store that can drop its expired entries.
type Sweepable interface {
	Sweep() int
	Len() int
}

// SessionSweeper periodically purges expired sessions so that abandoned
// logins do not accumulate in memory.
type SessionSweeper struct {
	sessions Sweepable
	cron     *cron.Cron
}

// NewSessionSweeper creates a sweeper running on the given cron spec
// (standard five-field syntax or descriptors such as "@every 5m").
func NewSessionSweeper(sessions Sweepable, spec string) (*SessionSweeper, error) {
	s := &SessionSweeper{
		sessions: sessions,
		cron:     cron.New(),
	}
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return nil, fmt.Errorf("schedule session sweep %q: %w", spec, err)
	}
	return s, nil
}

// Run starts the sweeper in the background.
func (s *SessionSweeper) Run() {
	log.Info().Msg("Starting session sweeper")
	s.cron.Start()
}

// Stop halts the sweeper and waits for a running sweep to finish.
func (s *SessionSweeper) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("Stopped session sweeper")
}

func (s *SessionSweeper) sweep() {
	removed := s.sessions.Sweep()
	if removed > 0 {
		log.Debug().Int("removed", removed).Int("remaining", s.sessions.Len()).Msg("Swept expired sessions")
	}
}
