package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// ConfigWatcher 配置监听器,配置文件变更时通知回调
type ConfigWatcher struct {
	config    *Config
	viper     *viper.Viper
	callbacks []func(*Config)
	logger    logrus.FieldLogger
	mu        sync.RWMutex
	stopped   bool
	stopMu    sync.RWMutex
}

// NewConfigWatcher 创建配置监听器
func NewConfigWatcher(cfg *Config, configPath string, logger logrus.FieldLogger) *ConfigWatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)

	return &ConfigWatcher{
		config:    cfg,
		viper:     v,
		callbacks: make([]func(*Config), 0),
		logger:    logger.WithField("component", "config_watcher"),
	}
}

// OnConfigChange 注册配置变更回调
func (w *ConfigWatcher) OnConfigChange(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start 启动配置监听
func (w *ConfigWatcher) Start() error {
	if err := w.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	w.viper.OnConfigChange(func(e fsnotify.Event) {
		w.stopMu.RLock()
		stopped := w.stopped
		w.stopMu.RUnlock()
		if stopped {
			return
		}

		newCfg, err := unmarshal(w.viper)
		if err != nil {
			w.logger.WithError(err).WithField("file", e.Name).Warn("Ignoring invalid config change")
			return
		}

		w.mu.Lock()
		w.config = newCfg
		callbacks := make([]func(*Config), len(w.callbacks))
		copy(callbacks, w.callbacks)
		w.mu.Unlock()

		// 回调在锁外执行
		for _, callback := range callbacks {
			callback(newCfg)
		}
	})
	w.viper.WatchConfig()

	return nil
}

// Stop 停止配置监听
func (w *ConfigWatcher) Stop() {
	w.stopMu.Lock()
	defer w.stopMu.Unlock()
	w.stopped = true
}

// GetConfig 获取当前配置
func (w *ConfigWatcher) GetConfig() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}
