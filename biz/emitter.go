// Package biz 包含 wndprobe 的会话报告分发逻辑，包括输出插件管理、过滤器和限流器。
// 引擎每结束一个会话就把报告交给 Emitter，由 Emitter 异步写入所有输出插件。
package biz

import (
	"sync"

	slog "github.com/vearne/simplelog"
	"github.com/vearne/wndprobe/filter"
	"github.com/vearne/wndprobe/metrics"
	"github.com/vearne/wndprobe/model"
)

// DefaultQueueSize 报告队列的默认长度
const DefaultQueueSize = 64

// Emitter 负责把会话报告分发给输出插件。
// Publish 不会阻塞会话引擎：队列满时报告被丢弃并计数。
type Emitter struct {
	sync.WaitGroup
	plugins     *InOutPlugins // 输出插件的集合
	filterChain filter.Filter // 过滤器链，用于过滤不需要的报告
	limiter     Limiter       // 限流器，用于控制报告写出速率

	mu     sync.RWMutex
	closed bool
	queue  chan *model.SessionReport
}

// NewEmitter 创建并初始化一个新的 Emitter 对象。
// 参数 f 是过滤器链；参数 lim 是限流器，可以为 nil。
func NewEmitter(f filter.Filter, lim Limiter, queueSize int) *Emitter {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	var e Emitter
	e.filterChain = f
	e.limiter = lim
	e.queue = make(chan *model.SessionReport, queueSize)
	return &e
}

// Start 启动分发循环
func (e *Emitter) Start(plugins *InOutPlugins) {
	e.plugins = plugins
	e.Add(1)
	go func() {
		defer e.Done()
		e.CopyMulty(plugins.Outputs...)
	}()
}

// Publish 把报告放入队列，队列已满或 Emitter 已关闭时丢弃
func (e *Emitter) Publish(r *model.SessionReport) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		metrics.ReportsDropped.Inc()
		return
	}

	select {
	case e.queue <- r:
	default:
		metrics.ReportsDropped.Inc()
		slog.Warn("[EMITTER] queue full, drop report:%v", r.ID)
	}
}

// Close 停止接收报告，等待队列中剩余的报告写完，然后关闭所有插件。
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	// wait for everything to stop
	e.Wait()
	if e.plugins != nil {
		e.plugins.Close()
	}
}

// CopyMulty 从队列读取报告，经过滤器链和限流器后写入所有输出插件，
// 直到队列被关闭。
func (e *Emitter) CopyMulty(writers ...PluginWriter) {
	for r := range e.queue {
		if _, ok := e.filterChain.Filter(r); !ok {
			continue
		}

		if e.limiter != nil && !e.limiter.Allow() {
			slog.Debug("[EMITTER] rate limited, report:%v", r.ID)
			continue
		}

		for _, dst := range writers {
			if _, err := dst.PluginWrite(r); err != nil {
				slog.Error("[EMITTER] dst.PluginWrite:%v", err)
			}
		}
	}
}
