package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

var Logger = slog.Default()

// RestartDelay is how long Supervise waits before restarting a panicked worker.
var RestartDelay = time.Second

// Run calls fn and converts a panic into a logged error. It reports whether fn panicked.
func Run(name string, fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			Logger.Error("goroutine_panic_recovered",
				slog.String("worker_name", name),
				slog.String("error", fmt.Sprintf("%v", r)),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	fn()
	return false
}

// Go runs fn on its own goroutine under Run.
func Go(name string, fn func()) {
	go Run(name, fn)
}

// Supervise 在独立 goroutine 中运行 fn；fn panic 后等待 RestartDelay 重启，
// fn 正常返回或 ctx 结束则不再重启。返回的 channel 在 worker 彻底退出时关闭。
func Supervise(ctx context.Context, name string, fn func(ctx context.Context)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if !Run(name, func() { fn(ctx) }) || ctx.Err() != nil {
				return
			}
			Logger.Warn("worker_restarting", slog.String("worker_name", name), slog.Duration("delay", RestartDelay))
			select {
			case <-ctx.Done():
				return
			case <-time.After(RestartDelay):
			}
		}
	}()
	return done
}
