package worker_pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"conn_server/server_error"

	"github.com/google/uuid"
)

const WORKER_INIT_TIMEOUT = time.Second * 3

// Start는 정확히 workerCount개의 worker를 띄우고, 모두 queue를 기다리는 상태가 되면 반환한다.
func (wp *WorkerPool) Start(workerCount int) error {
	if workerCount < 1 {
		return server_error.Configf("worker count must be at least 1, got %d", workerCount)
	}

	wp.mtx.Lock()
	defer wp.mtx.Unlock()

	if poolState(wp.state.Load()) != POOL_CREATED {
		return server_error.InvalidStatef("worker pool already started")
	}

	var initWorker sync.WaitGroup

	for i := 0; i < workerCount; i++ {
		worker := wp.MakeWorker()
		wp.workers[worker.Id] = worker

		initWorker.Add(1)
		wp.wg.Add(1)

		go worker.Work(wp, &initWorker)
	}

	workerInitializationTimeout, workerInitializationTimeoutCancel := context.WithTimeout(context.Background(), WORKER_INIT_TIMEOUT)
	defer workerInitializationTimeoutCancel()

	workerInitializationSuccessSignal := make(chan EmptySignal)

	go func() {
		initWorker.Wait()
		close(workerInitializationSuccessSignal)
	}()

	select {
	case <-workerInitializationTimeout.Done():
		// 이미 뜬 worker들은 queue를 닫아 정리한다.
		wp.queue.close()
		wp.cancelAll()

		return fmt.Errorf("worker initialization did not succeed in %s", WORKER_INIT_TIMEOUT)

	case <-workerInitializationSuccessSignal:
		wp.state.Store(int32(POOL_RUNNING))
		wp.logger.Info("worker pool started", "workers", workerCount, "queueCapacity", wp.options.QueueCapacity)
	}

	return nil
}

func (wp *WorkerPool) MakeWorker() *Worker {
	worker := &Worker{
		Id: uuid.New().String(),
	}
	worker.status.Store(int32(IDLE))

	return worker
}
