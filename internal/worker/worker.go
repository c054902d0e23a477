// Package worker runs tenant jobs on a bounded set of goroutines.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Job is one tenant's share of a run
type Job struct {
	ID       string
	TenantID int64
	Run      func(ctx context.Context) error
}

// NewJob creates a job with a fresh id
func NewJob(tenantID int64, run func(ctx context.Context) error) Job {
	return Job{ID: uuid.New().String(), TenantID: tenantID, Run: run}
}

// Result is the outcome of one job
type Result struct {
	JobID    string
	TenantID int64
	Err      error
	Started  time.Time
	Finished time.Time
}

// Duration returns how long the job ran
func (r Result) Duration() time.Duration {
	if r.Started.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// PoolStats is a snapshot of the pool counters
type PoolStats struct {
	Workers       int       `json:"workers"`
	TotalJobs     int64     `json:"total_jobs"`
	CompletedJobs int64     `json:"completed_jobs"`
	FailedJobs    int64     `json:"failed_jobs"`
	ActiveWorkers int32     `json:"active_workers"`
	StartTime     time.Time `json:"start_time"`
}

// Pool runs jobs with at most size concurrent workers
type Pool struct {
	size   int
	logger *logrus.Entry

	totalJobs     int64
	completedJobs int64
	failedJobs    int64
	activeWorkers int32
	startTime     time.Time
}

// NewPool creates a pool of size workers. size below 1 is treated as 1.
func NewPool(size int, logger *logrus.Entry) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		size:      size,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Run executes jobs and waits for all of them. Results follow job order.
// Once ctx is cancelled, jobs that have not started report ctx.Err()
// without running. A panicking job is reported as failed.
func (p *Pool) Run(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	queue := make(chan int)
	var wg sync.WaitGroup

	workers := min(p.size, len(jobs))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := range queue {
				results[i] = p.process(ctx, id, jobs[i])
			}
		}(w)
	}

	for i := range jobs {
		atomic.AddInt64(&p.totalJobs, 1)
		queue <- i
	}
	close(queue)
	wg.Wait()

	return results
}

func (p *Pool) process(ctx context.Context, workerID int, job Job) (res Result) {
	res = Result{JobID: job.ID, TenantID: job.TenantID}
	if err := ctx.Err(); err != nil {
		res.Err = err
		atomic.AddInt64(&p.failedJobs, 1)
		return res
	}

	log := p.logger.WithFields(logrus.Fields{
		"worker_id": workerID,
		"job_id":    job.ID,
		"tenant_id": job.TenantID,
	})

	atomic.AddInt32(&p.activeWorkers, 1)
	res.Started = time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("job panicked: %v", r)
		}
		res.Finished = time.Now()
		atomic.AddInt32(&p.activeWorkers, -1)

		if res.Err != nil {
			atomic.AddInt64(&p.failedJobs, 1)
			log.WithError(res.Err).WithField("duration", res.Duration().String()).Warn("Job failed")
			return
		}
		atomic.AddInt64(&p.completedJobs, 1)
		log.WithField("duration", res.Duration().String()).Debug("Job completed")
	}()

	log.Debug("Processing job")
	res.Err = job.Run(ctx)
	return res
}

// Stats returns a snapshot of the pool counters
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:       p.size,
		TotalJobs:     atomic.LoadInt64(&p.totalJobs),
		CompletedJobs: atomic.LoadInt64(&p.completedJobs),
		FailedJobs:    atomic.LoadInt64(&p.failedJobs),
		ActiveWorkers: atomic.LoadInt32(&p.activeWorkers),
		StartTime:     p.startTime,
	}
}
