package fanout

import (
	"encoding/json"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rithindattag/Annotara/internal/metrics"
	"github.com/rithindattag/Annotara/internal/model"
	"github.com/sirupsen/logrus"
)

// EventTaskUpdate 任务更新事件名
const EventTaskUpdate = "task:update"

// DefaultQueueSize 默认队列长度
const DefaultQueueSize = 1024

// DefaultWatermarkCapacity 默认最多跟踪的任务数,超出时淘汰最久未推送的任务
const DefaultWatermarkCapacity = 10000

// Event 推送给观察者的事件,data 为转换后的完整任务快照
type Event struct {
	Name string           `json:"event"`
	Data *model.TaskModel `json:"data"`
}

// Broadcaster 推送通道,例如 WebSocket/SSE Hub
type Broadcaster interface {
	BroadcastTask(taskID string, payload []byte) error
}

// Relay 跨实例转发
type Relay interface {
	Forward(payload []byte) error
}

// envelope 队列元素
type envelope struct {
	task   model.TaskModel
	remote bool
}

// Fanout 通知分发
// 写入方只做非阻塞入队,单个分发协程按入队顺序投递
// 同一任务版本号不高于已投递版本的快照被丢弃,旧快照不会晚于新快照到达
// 观察者得到的是每个任务的最新状态,而不是每一次转换:
// 两个请求先后提交 v(n) 和 v(n+1),若 v(n+1) 先入队,v(n) 不会再投递
// 已投递版本只保留最近推送过的任务,被淘汰的任务以存储中的 version 为准
type Fanout struct {
	queue  chan envelope
	sinks  []Broadcaster
	relay  Relay
	logger logrus.FieldLogger

	// 每个任务已投递的最高版本,仅由分发协程访问
	watermarks *lru.Cache[string, int64]

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// New 创建通知分发器
func New(queueSize int, logger logrus.FieldLogger, sinks ...Broadcaster) *Fanout {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Fanout{
		queue:      make(chan envelope, queueSize),
		sinks:      sinks,
		logger:     logger.WithField("component", "fanout"),
		watermarks: newWatermarks(DefaultWatermarkCapacity),
		done:       make(chan struct{}),
	}
}

// SetRelay 设置跨实例转发,必须在 Start 之前调用
func (f *Fanout) SetRelay(relay Relay) {
	f.relay = relay
}

// SetWatermarkCapacity 设置最多跟踪的任务数,必须在 Start 之前调用
func (f *Fanout) SetWatermarkCapacity(capacity int) {
	f.watermarks = newWatermarks(capacity)
}

func newWatermarks(capacity int) *lru.Cache[string, int64] {
	if capacity <= 0 {
		capacity = DefaultWatermarkCapacity
	}
	// 只有 size <= 0 时返回错误
	cache, _ := lru.New[string, int64](capacity)
	return cache
}

// Start 启动分发协程
func (f *Fanout) Start() {
	f.startOnce.Do(func() {
		f.wg.Add(1)
		go f.run()
	})
}

// Stop 停止分发,已入队但未投递的事件被丢弃
func (f *Fanout) Stop() {
	f.stopOnce.Do(func() {
		close(f.done)
	})
	f.wg.Wait()
}

// Publish 发布本实例产生的快照,从不阻塞
func (f *Fanout) Publish(task *model.TaskModel) {
	f.enqueue(task, false)
}

// Ingest 接收其他实例转发的快照,只投递给本地观察者
func (f *Fanout) Ingest(task *model.TaskModel) {
	f.enqueue(task, true)
}

func (f *Fanout) enqueue(task *model.TaskModel, remote bool) {
	if task == nil {
		return
	}
	select {
	case <-f.done:
		metrics.RecordFanoutDropped("stopped")
		return
	default:
	}

	select {
	case f.queue <- envelope{task: *task, remote: remote}:
	default:
		metrics.RecordFanoutDropped("queue_full")
		f.logger.WithFields(logrus.Fields{
			"task_id": task.ID,
			"version": task.Version,
		}).Warn("Fanout queue full, dropping event")
	}
}

func (f *Fanout) run() {
	defer f.wg.Done()
	for {
		select {
		case <-f.done:
			return
		case env := <-f.queue:
			f.dispatch(env)
		}
	}
}

// dispatch 投递单个快照,投递失败只记录日志
func (f *Fanout) dispatch(env envelope) {
	task := env.task
	if last, ok := f.watermarks.Get(task.ID); ok && task.Version <= last {
		metrics.RecordFanoutDropped("superseded")
		f.logger.WithFields(logrus.Fields{
			"task_id":   task.ID,
			"version":   task.Version,
			"delivered": last,
		}).Debug("Skipping superseded snapshot")
		return
	}
	f.watermarks.Add(task.ID, task.Version)

	payload, err := json.Marshal(Event{Name: EventTaskUpdate, Data: &task})
	if err != nil {
		f.logger.WithError(err).WithField("task_id", task.ID).Error("Failed to encode fanout event")
		return
	}

	for _, sink := range f.sinks {
		if err := sink.BroadcastTask(task.ID, payload); err != nil {
			metrics.RecordFanoutDelivery("local", false)
			f.logger.WithError(err).WithField("task_id", task.ID).Warn("Failed to deliver fanout event")
			continue
		}
		metrics.RecordFanoutDelivery("local", true)
	}

	if env.remote || f.relay == nil {
		return
	}
	if err := f.relay.Forward(payload); err != nil {
		metrics.RecordFanoutDelivery("relay", false)
		f.logger.WithError(err).WithField("task_id", task.ID).Warn("Failed to relay fanout event")
		return
	}
	metrics.RecordFanoutDelivery("relay", true)
}
