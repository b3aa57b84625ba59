package jobqueue

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/supuni9622/ModelSnap/internal/pkg/billing"
	"github.com/supuni9622/ModelSnap/internal/pkg/env"
)

// AttemptService is the orchestrator surface the manager drives: running
// attempts and sweeping the database for work that was lost or is due.
type AttemptService interface {
	RenderRunner
	DispatchDue(redispatchGrace time.Duration, limit int) (int, error)
	RecoverStuck(grace time.Duration, limit int) (int, error)
}

const (
	dispatchSweepInterval = 5 * time.Second
	stuckSweepInterval    = time.Minute
	redispatchGrace       = 2 * time.Minute
	stuckProcessingGrace  = 10 * time.Minute
	sweepBatchLimit       = 100
)

// Manager manages the global job queue and background tasks
type Manager struct {
	queue         *Queue
	service       AttemptService
	dispatchTick  *time.Ticker
	stuckTick     *time.Ticker
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workerCount := 5
		if v, err := strconv.Atoi(env.GetEnv("JOBQUEUE_WORKERS", "5")); err == nil && v > 0 {
			workerCount = v
		}

		var pusher PlanPusher
		if mirror := billing.NewIdentityMirrorFromEnv(); mirror != nil {
			pusher = &mirrorPusher{mirror: mirror}
		}

		globalManager = &Manager{
			queue:  NewQueue(workerCount, nil, pusher),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// SetAttemptService binds the orchestrator. Must be called before Start; the
// two-step wiring exists because the orchestrator schedules attempts through
// this manager.
func (m *Manager) SetAttemptService(service AttemptService) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.service = service
	m.queue.runner = service
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// ScheduleAttempt enqueues one render attempt for asynchronous execution.
func (m *Manager) ScheduleAttempt(requestUUID string) error {
	payload := RenderAttemptJobPayload{RequestUUID: requestUUID}
	_, err := m.queue.EnqueueJob(JobTypeRenderAttempt, payload.ToMap())
	return err
}

// PushPlan enqueues an identity sync instead of calling the mirror inline, so
// a slow or down identity store never blocks webhook processing and failed
// pushes get queue-level retries.
func (m *Manager) PushPlan(userID uint, snapshot billing.PlanSnapshot) error {
	payload := IdentitySyncJobPayload{
		UserID:     userID,
		Plan:       snapshot.Plan,
		IsPremium:  snapshot.IsPremium,
		PriceCents: snapshot.PriceCents,
		Provider:   snapshot.Provider,
	}
	_, err := m.queue.EnqueueJob(JobTypeIdentitySync, payload.ToMap())
	return err
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	// Start the job queue
	m.queue.Start()

	// Dispatch sweeper: picks up requests whose backoff elapsed and requests
	// whose original enqueue was lost.
	m.dispatchTick = time.NewTicker(dispatchSweepInterval)
	m.wg.Add(1)
	go m.dispatchWorker()

	// Stuck-request sweeper: requests left in processing by a crashed worker.
	m.stuckTick = time.NewTicker(stuckSweepInterval)
	m.wg.Add(1)
	go m.stuckWorker()

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.dispatchTick != nil {
		m.dispatchTick.Stop()
	}
	if m.stuckTick != nil {
		m.stuckTick.Stop()
	}

	// Signal workers to stop
	close(m.stopCh)
	m.stopCh = nil
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	// Stop the job queue
	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// dispatchWorker runs periodically to dispatch due render attempts
func (m *Manager) dispatchWorker() {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started dispatch worker (interval: %s)", dispatchSweepInterval)

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Dispatch worker stopping")
			return
		case <-m.dispatchTick.C:
			if m.service == nil {
				continue
			}
			dispatched, err := m.service.DispatchDue(redispatchGrace, sweepBatchLimit)
			if err != nil {
				log.Errorf("[JobQueue Manager] Dispatch sweep error: %v", err)
				continue
			}
			if dispatched > 0 {
				log.Debugf("[JobQueue Manager] Dispatched %d due render attempts", dispatched)
			}
		}
	}
}

// stuckWorker runs periodically to recover requests stuck in processing
func (m *Manager) stuckWorker() {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started stuck-request worker (interval: %s)", stuckSweepInterval)

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Stuck-request worker stopping")
			return
		case <-m.stuckTick.C:
			if m.service == nil {
				continue
			}
			recovered, err := m.service.RecoverStuck(stuckProcessingGrace, sweepBatchLimit)
			if err != nil {
				log.Errorf("[JobQueue Manager] Stuck-request sweep error: %v", err)
				continue
			}
			if recovered > 0 {
				log.Warnf("[JobQueue Manager] Recovered %d stuck render attempts", recovered)
			}
		}
	}
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// mirrorPusher adapts the HTTP identity mirror to the queue's PlanPusher.
type mirrorPusher struct {
	mirror *billing.HTTPIdentityMirror
}

func (p *mirrorPusher) PushPlan(userID uint, plan string, isPremium bool, priceCents int64, provider string) error {
	return p.mirror.PushPlan(userID, billing.PlanSnapshot{
		Plan:       plan,
		IsPremium:  isPremium,
		PriceCents: priceCents,
		Provider:   provider,
	})
}
