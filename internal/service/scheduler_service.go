package service

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SchedulerService wraps cron-based jobs. Jobs that are still running when
// their next slot arrives are skipped with a warning; an overrun tick is
// logged, never fatal.
type SchedulerService struct {
	cron *cron.Cron
	log  *zap.SugaredLogger
}

func NewSchedulerService(loc *time.Location, log *zap.SugaredLogger) *SchedulerService {
	return &SchedulerService{
		cron: cron.New(cron.WithLocation(loc), cron.WithSeconds()),
		log:  log,
	}
}

// ScheduleInterval registers a periodic job every given duration.
func (s *SchedulerService) ScheduleInterval(name string, interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	spec := fmt.Sprintf("@every %ds", seconds)
	return s.cron.AddFunc(spec, s.guarded(name, job))
}

// ScheduleCron registers a job with a 6-field cron spec.
func (s *SchedulerService) ScheduleCron(name, spec string, job func()) (cron.EntryID, error) {
	return s.cron.AddFunc(spec, s.guarded(name, job))
}

// guarded wraps a job so overlapping runs are skipped instead of stacking.
func (s *SchedulerService) guarded(name string, job func()) func() {
	var running int32
	return func() {
		if !atomic.CompareAndSwapInt32(&running, 0, 1) {
			s.log.Warnw("job still running, skipping this slot", "job", name)
			return
		}
		defer atomic.StoreInt32(&running, 0)
		job()
	}
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
