package pubworker

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// PublishJob is one publication attempt handed to the pool by the dispatcher.
type PublishJob struct {
	TaskID    string
	AccountID string
	Handler   func(ctx context.Context) error
}

// PoolStats contains real-time worker pool metrics.
type PoolStats struct {
	NumWorkers      int           `json:"num_workers"`
	QueueSize       int           `json:"queue_size"`
	ActiveWorkers   int           `json:"active_workers"`
	TotalDispatched int64         `json:"total_dispatched"`
	TotalProcessed  int64         `json:"total_processed"`
	TotalDropped    int64         `json:"total_dropped"`
	TotalErrors     int64         `json:"total_errors"`
	WorkerStats     []WorkerStats `json:"worker_stats"`
}

// WorkerStats contains per-worker metrics.
type WorkerStats struct {
	WorkerID      int   `json:"worker_id"`
	QueueDepth    int   `json:"queue_depth"`
	IsProcessing  bool  `json:"is_processing"`
	JobsProcessed int64 `json:"jobs_processed"`
}

// PublishWorkerPool executes publication attempts. Jobs are sharded to a fixed
// worker by account id, so all attempts for one account run on one goroutine:
// this is the per-account exclusive section the admission/ordering guarantees
// rely on. Unrelated accounts proceed fully in parallel.
type PublishWorkerPool struct {
	numWorkers int
	queueSize  int
	workers    []*worker
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopped    int32

	totalDispatched int64
	totalProcessed  int64
	totalDropped    int64
	totalErrors     int64
}

type worker struct {
	id            int
	jobQueue      chan PublishJob
	ctx           context.Context
	cancel        context.CancelFunc
	isProcessing  int32
	jobsProcessed int64
	pool          *PublishWorkerPool
}

// NewPublishWorkerPool creates a pool of publish workers. Workers and their
// queues exist from construction, so dispatch and stats are safe before Start;
// nothing drains the queues until Start launches the workers.
func NewPublishWorkerPool(numWorkers, queueSize int) *PublishWorkerPool {
	if numWorkers <= 0 {
		numWorkers = 8
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	p := &PublishWorkerPool{
		numWorkers: numWorkers,
		queueSize:  queueSize,
		workers:    make([]*worker, numWorkers),
	}
	for i := range p.workers {
		p.workers[i] = &worker{
			id:       i,
			jobQueue: make(chan PublishJob, queueSize),
			pool:     p,
		}
	}
	return p
}

// Start launches all workers.
func (p *PublishWorkerPool) Start(ctx context.Context) {
	for _, w := range p.workers {
		w.ctx, w.cancel = context.WithCancel(ctx)

		p.wg.Add(1)
		go w.run(&p.wg)
	}

	logrus.Infof("[PUBLISH_POOL] Started with %d workers, queue size: %d", p.numWorkers, p.queueSize)
}

// TryDispatch enqueues a job on the worker owning the account's shard without
// blocking, and reports whether it fit. A false return means the dispatcher
// should leave the task due and pick it up next cycle.
func (p *PublishWorkerPool) TryDispatch(job PublishJob) bool {
	if atomic.LoadInt32(&p.stopped) == 1 {
		atomic.AddInt64(&p.totalDropped, 1)
		return false
	}

	shard := p.shardForAccount(job.AccountID)
	atomic.AddInt64(&p.totalDispatched, 1)

	sent := func() (ok bool) {
		defer func() {
			if r := recover(); r != nil {
				ok = false
			}
		}()
		select {
		case p.workers[shard].jobQueue <- job:
			return true
		default:
			return false
		}
	}()

	if sent {
		return true
	}

	atomic.AddInt64(&p.totalDropped, 1)
	logrus.Warnf("[PUBLISH_POOL] Worker %d queue full (or stopped), deferring task %s for account %s",
		shard, job.TaskID, job.AccountID)
	return false
}

// Stop shuts the pool down gracefully, draining queued jobs.
func (p *PublishWorkerPool) Stop() {
	p.stopOnce.Do(func() {
		atomic.StoreInt32(&p.stopped, 1)
		logrus.Info("[PUBLISH_POOL] Stopping workers...")

		for _, w := range p.workers {
			if w.cancel != nil {
				w.cancel()
			}
			close(w.jobQueue)
		}

		p.wg.Wait()

		logrus.Info("[PUBLISH_POOL] All workers stopped")
	})
}

// shardForAccount maps an account to its owning worker via consistent hashing.
func (p *PublishWorkerPool) shardForAccount(accountID string) int {
	h := fnv.New32a()
	h.Write([]byte(accountID))
	return int(h.Sum32() % uint32(p.numWorkers))
}

// GetStats returns a real-time snapshot of pool metrics.
func (p *PublishWorkerPool) GetStats() PoolStats {
	workerStats := make([]WorkerStats, len(p.workers))
	activeWorkers := 0

	for i, w := range p.workers {
		isProcessing := atomic.LoadInt32(&w.isProcessing) == 1
		if isProcessing {
			activeWorkers++
		}
		workerStats[i] = WorkerStats{
			WorkerID:      w.id,
			QueueDepth:    len(w.jobQueue),
			IsProcessing:  isProcessing,
			JobsProcessed: atomic.LoadInt64(&w.jobsProcessed),
		}
	}

	return PoolStats{
		NumWorkers:      p.numWorkers,
		QueueSize:       p.queueSize,
		ActiveWorkers:   activeWorkers,
		TotalDispatched: atomic.LoadInt64(&p.totalDispatched),
		TotalProcessed:  atomic.LoadInt64(&p.totalProcessed),
		TotalDropped:    atomic.LoadInt64(&p.totalDropped),
		TotalErrors:     atomic.LoadInt64(&p.totalErrors),
		WorkerStats:     workerStats,
	}
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()

	logrus.Debugf("[PUBLISH_POOL] Worker %d started", w.id)

	for {
		select {
		case job, ok := <-w.jobQueue:
			if !ok {
				logrus.Debugf("[PUBLISH_POOL] Worker %d shutting down", w.id)
				return
			}
			w.process(job)

		case <-w.ctx.Done():
			logrus.Debugf("[PUBLISH_POOL] Worker %d context cancelled, draining queue...", w.id)
			w.drainQueue()
			return
		}
	}
}

func (w *worker) process(job PublishJob) {
	atomic.StoreInt32(&w.isProcessing, 1)
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&w.pool.totalErrors, 1)
			logrus.Errorf("[PUBLISH_POOL] Worker %d panic for task %s: %v", w.id, job.TaskID, r)
		}
		atomic.StoreInt32(&w.isProcessing, 0)
		atomic.AddInt64(&w.jobsProcessed, 1)
		atomic.AddInt64(&w.pool.totalProcessed, 1)
	}()

	if err := job.Handler(w.ctx); err != nil {
		atomic.AddInt64(&w.pool.totalErrors, 1)
		logrus.WithError(err).Errorf("[PUBLISH_POOL] Worker %d job failed for task %s (account %s)",
			w.id, job.TaskID, job.AccountID)
	}
}

// drainQueue finishes pending jobs before shutdown.
func (w *worker) drainQueue() {
	for {
		select {
		case job, ok := <-w.jobQueue:
			if !ok {
				return
			}
			w.process(job)
		default:
			return
		}
	}
}
