package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 任务创建数
	tasksCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tasks_created_total",
			Help: "Total number of tasks created",
		},
	)

	// 状态转换数
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_transitions_total",
			Help: "Total number of task transitions by event and outcome",
		},
		[]string{"event", "outcome"}, // outcome: applied, lock_conflict, illegal, not_found, store_unavailable
	)

	// 锁冲突数
	lockConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "task_lock_conflicts_total",
			Help: "Total number of lock conflicts",
		},
	)

	// 推送投递
	fanoutDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_deliveries_total",
			Help: "Total number of fanout deliveries by sink and result",
		},
		[]string{"sink", "result"},
	)

	// 推送丢弃
	fanoutDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_dropped_total",
			Help: "Total number of fanout events dropped",
		},
		[]string{"reason"}, // queue_full, superseded, stopped
	)

	// AI 建议调用
	suggestionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestions_total",
			Help: "Total number of AI suggestion requests",
		},
		[]string{"provider", "result"},
	)

	// 数据库连接数
	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	databaseConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_max",
			Help: "Maximum number of database connections",
		},
	)

	// 任务状态分布
	tasksByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tasks_by_status",
			Help: "Number of tasks by status",
		},
		[]string{"status"},
	)
)

var (
	once sync.Once
)

func init() {
	// 注册指标
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(tasksCreatedTotal)
	prometheus.MustRegister(transitionsTotal)
	prometheus.MustRegister(lockConflictsTotal)
	prometheus.MustRegister(fanoutDeliveriesTotal)
	prometheus.MustRegister(fanoutDroppedTotal)
	prometheus.MustRegister(suggestionsTotal)
	prometheus.MustRegister(databaseConnectionsActive)
	prometheus.MustRegister(databaseConnectionsIdle)
	prometheus.MustRegister(databaseConnectionsMax)
	prometheus.MustRegister(tasksByStatus)

	// 注册 Go 运行时指标（只注册一次）
	once.Do(func() {
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d", status)
	}
	apiRequestsTotal.WithLabelValues(method, path, statusText).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordTaskCreated 记录任务创建
func RecordTaskCreated() {
	tasksCreatedTotal.Inc()
}

// RecordTransition 记录状态转换结果
func RecordTransition(event, outcome string) {
	transitionsTotal.WithLabelValues(event, outcome).Inc()
	if outcome == "lock_conflict" {
		lockConflictsTotal.Inc()
	}
}

// RecordFanoutDelivery 记录推送投递结果
func RecordFanoutDelivery(sink string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	fanoutDeliveriesTotal.WithLabelValues(sink, result).Inc()
}

// RecordFanoutDropped 记录推送丢弃
func RecordFanoutDropped(reason string) {
	fanoutDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordSuggestion 记录 AI 建议调用
func RecordSuggestion(provider string, ok bool) {
	result := "ok"
	if !ok {
		result = "provider_failure"
	}
	suggestionsTotal.WithLabelValues(provider, result).Inc()
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	databaseConnectionsIdle.Set(float64(stats.Idle))
	databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}

// UpdateTasksByStatus 更新任务状态分布指标
func UpdateTasksByStatus(status string, count float64) {
	tasksByStatus.WithLabelValues(status).Set(count)
}
