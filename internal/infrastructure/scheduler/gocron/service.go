package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"
)

const (
	defaultPollInterval = 5 * time.Second
	heightCallTimeout   = 10 * time.Second
)

type heightTask struct {
	id     string
	chain  string
	target uint32
	fn     func()
}

type service struct {
	scheduler    *gocron.Scheduler
	heights      func(chain string) (ports.HeightReporter, bool)
	pollInterval time.Duration

	mu          *sync.Mutex
	jobs        map[string]*gocron.Job
	tasks       []*heightTask
	blockCancel context.CancelFunc
}

// NewScheduler returns a scheduler whose height tasks are triggered by
// polling the reporters returned by heights. Pass nil to disable height
// tasks.
func NewScheduler(heights func(chain string) (ports.HeightReporter, bool), pollInterval time.Duration) ports.SchedulerService {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &service{
		scheduler:    gocron.NewScheduler(time.UTC),
		heights:      heights,
		pollInterval: pollInterval,
		mu:           &sync.Mutex{},
		jobs:         make(map[string]*gocron.Job),
	}
}

func (s *service) Start() {
	s.scheduler.StartAsync()

	s.mu.Lock()
	if s.blockCancel != nil || s.heights == nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.blockCancel = cancel
	s.mu.Unlock()

	go func() {
		t := time.NewTicker(s.pollInterval)
		defer t.Stop()
		for {
			s.pollHeights(ctx)

			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
}

func (s *service) Stop() {
	s.scheduler.Stop()

	s.mu.Lock()
	if s.blockCancel != nil {
		s.blockCancel()
		s.blockCancel = nil
	}
	s.mu.Unlock()
}

// ScheduleAtTime runs task once at the given time. Times already passed run
// the task right away.
func (s *service) ScheduleAtTime(id string, at time.Time, task func()) error {
	if at.IsZero() {
		return fmt.Errorf("invalid schedule time")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(id)

	delay := time.Until(at)
	if delay <= 0 {
		go task()
		return nil
	}

	var job *gocron.Job
	job, err := s.scheduler.Every(delay).WaitForSchedule().LimitRunsTo(1).Do(func() {
		s.mu.Lock()
		if current, ok := s.jobs[id]; ok && current == job {
			delete(s.jobs, id)
			s.scheduler.RemoveByReference(job)
		}
		s.mu.Unlock()
		task()
	})
	if err != nil {
		return err
	}
	s.jobs[id] = job
	return nil
}

func (s *service) ScheduleAtHeight(id, chain string, target uint32, task func()) error {
	if target == 0 {
		return fmt.Errorf("invalid height: %d", target)
	}
	if s.heights == nil {
		return fmt.Errorf("height tasks are not supported")
	}
	if _, ok := s.heights(chain); !ok {
		return fmt.Errorf("no height reporter for chain %s", chain)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
	s.tasks = append(s.tasks, &heightTask{id: id, chain: chain, target: target, fn: task})
	return nil
}

func (s *service) ScheduleEvery(interval time.Duration, task func()) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval: %s", interval)
	}
	_, err := s.scheduler.Every(interval).WaitForSchedule().SingletonMode().Do(task)
	return err
}

func (s *service) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *service) removeLocked(id string) {
	if job, ok := s.jobs[id]; ok {
		s.scheduler.RemoveByReference(job)
		delete(s.jobs, id)
	}
	keep := s.tasks[:0]
	for _, tsk := range s.tasks {
		if tsk.id != id {
			keep = append(keep, tsk)
		}
	}
	s.tasks = keep
}

func (s *service) pollHeights(ctx context.Context) {
	s.mu.Lock()
	chains := make(map[string]struct{})
	for _, tsk := range s.tasks {
		chains[tsk.chain] = struct{}{}
	}
	s.mu.Unlock()

	heights := make(map[string]uint32, len(chains))
	for chain := range chains {
		reporter, ok := s.heights(chain)
		if !ok {
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, heightCallTimeout)
		h, err := reporter.GetBlockHeight(callCtx)
		cancel()
		if err != nil {
			log.WithError(err).WithField("chain", chain).Warn("failed to get block height")
			continue
		}
		heights[chain] = h
	}

	s.mu.Lock()
	keep := s.tasks[:0]
	for _, tsk := range s.tasks {
		if h, ok := heights[tsk.chain]; ok && h >= tsk.target {
			go tsk.fn()
			continue
		}
		keep = append(keep, tsk)
	}
	s.tasks = keep
	s.mu.Unlock()
}
