package ports

import (
	"time"
)

// SchedulerService runs tasks at a given time, at a given block height of a
// chain or periodically. Tasks scheduled with an id replace any pending task
// with the same id.
type SchedulerService interface {
	Start()
	Stop()
	ScheduleAtTime(id string, at time.Time, task func()) error
	ScheduleAtHeight(id, chain string, target uint32, task func()) error
	ScheduleEvery(interval time.Duration, task func()) error
	Cancel(id string)
}
