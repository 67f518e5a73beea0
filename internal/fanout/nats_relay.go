package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// DefaultSubject 默认转发主题
const DefaultSubject = "annotara.tasks.updates"

// NATSConfig NATS 转发配置
type NATSConfig struct {
	URL     string
	Subject string
	// Name 客户端名称,便于在 NATS 监控中识别实例
	Name           string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
}

// NATSRelay 通过 NATS 在多个实例之间转发任务快照
type NATSRelay struct {
	conn    *nats.Conn
	subject string
	sub     *nats.Subscription
	logger  logrus.FieldLogger
}

// NewNATSRelay 连接 NATS
func NewNATSRelay(cfg NATSConfig, logger logrus.FieldLogger) (*NATSRelay, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("component", "nats_relay")

	// 本实例的事件已在本地投递,不接收自己发布的消息
	opts := []nats.Option{
		nats.NoEcho(),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.WithField("url", c.ConnectedUrl()).Info("NATS reconnected")
		}),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect nats: %w", err)
	}

	return &NATSRelay{
		conn:    conn,
		subject: cfg.Subject,
		logger:  logger,
	}, nil
}

// Forward 发布快照到其他实例
func (r *NATSRelay) Forward(payload []byte) error {
	if r.conn.IsClosed() {
		return errors.New("nats connection closed")
	}
	if err := r.conn.Publish(r.subject, payload); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Attach 订阅其他实例的快照并交给 fanout 本地投递
func (r *NATSRelay) Attach(f *Fanout) error {
	sub, err := r.conn.Subscribe(r.subject, func(m *nats.Msg) {
		var event Event
		if err := json.Unmarshal(m.Data, &event); err != nil || event.Data == nil {
			r.logger.WithError(err).Warn("Discarding malformed relayed event")
			return
		}
		f.Ingest(event.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	r.sub = sub
	f.SetRelay(r)
	return nil
}

func (r *NATSRelay) Name() string {
	return "nats"
}

// Check 报告连接状态,用于健康检查
func (r *NATSRelay) Check(_ context.Context) error {
	if status := r.conn.Status(); status != nats.CONNECTED {
		return fmt.Errorf("nats connection is %s", status)
	}
	return nil
}

// Close 关闭连接
func (r *NATSRelay) Close() {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
	}
	if r.conn != nil {
		r.conn.Close()
	}
}
