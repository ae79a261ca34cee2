package pool

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher 分片任务调度器
//
// 同一分片键的任务进入同一条队列顺序执行，不同分片键并行。
// 用于保证同一会话的事件按到达顺序处理，同时跨会话保持吞吐。
type Dispatcher struct {
	shards []chan func()
	wg     sync.WaitGroup
	log    *zap.Logger
}

// NewDispatcher 创建分片调度器
//
// 参数:
//   - shardCount: 分片数（并行度上限）
//   - queueSize: 每个分片的队列大小
func NewDispatcher(shardCount, queueSize int, log *zap.Logger) *Dispatcher {
	if shardCount < 1 {
		shardCount = 1
	}
	if log == nil {
		log = zap.NewNop()
	}

	shards := make([]chan func(), shardCount)
	for i := range shards {
		shards[i] = make(chan func(), queueSize)
	}

	return &Dispatcher{
		shards: shards,
		log:    log,
	}
}

// Start 启动所有分片的工作协程
func (d *Dispatcher) Start(ctx context.Context) {
	for i := range d.shards {
		d.wg.Add(1)
		go d.worker(ctx, d.shards[i])
	}
}

// Submit 按分片键提交任务
//
// 队列满时阻塞直到有空位，保证不丢任务。
func (d *Dispatcher) Submit(key int64, task func()) {
	d.shards[d.shardIndex(key)] <- task
}

// TrySubmit 尝试按分片键提交任务，队列满时立即返回 false
func (d *Dispatcher) TrySubmit(key int64, task func()) bool {
	select {
	case d.shards[d.shardIndex(key)] <- task:
		return true
	default:
		return false
	}
}

// Stop 停止调度器并等待在途任务执行完毕
func (d *Dispatcher) Stop() {
	for _, shard := range d.shards {
		close(shard)
	}
	d.wg.Wait()
}

// shardIndex 计算分片键所属的分片
func (d *Dispatcher) shardIndex(key int64) int {
	if key < 0 {
		key = -key
	}
	return int(key % int64(len(d.shards)))
}

// worker 单个分片的工作协程，按入队顺序逐个执行任务
func (d *Dispatcher) worker(ctx context.Context, shard chan func()) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-shard:
			if !ok {
				return
			}

			// 执行任务（捕获 panic）
			func() {
				defer func() {
					if r := recover(); r != nil {
						d.log.Error("task panicked", zap.Any("panic", r))
					}
				}()
				task()
			}()
		}
	}
}
