// 管理后台异步任务，确保进程退出时任务可以被正确收尾
package threading

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

var ErrStopped = errors.New("threading: stopped")

type Threading struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	stopped bool
	running map[*taskHandle]context.CancelFunc
}

type taskHandle struct{}

func New() *Threading {
	return &Threading{
		running: make(map[*taskHandle]context.CancelFunc),
	}
}

func DefaultPanicFunc(ctx context.Context, err any) {
	buf := make([]byte, 10240)
	n := runtime.Stack(buf, false)
	log.WithContext(ctx, log.GetLogger()).Log(log.LevelError, "msg", fmt.Sprintf("stack: %v\n%s", err, string(buf[:n])))
}

// Go 启动一个受管理的后台任务。
//
// run 收到的 ctx 保留调用方 ctx 的 value（trace id 等），但脱离了它的 cancel，
// 只会被 Stop 取消。Stop 之后再调用返回 ErrStopped，任务不会执行。
func (t *Threading) Go(ctx context.Context, run func(ctx context.Context), panicFunc ...func(ctx context.Context, err any)) error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return ErrStopped
	}
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &taskHandle{}
	t.running[h] = cancel
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer func() {
			t.mu.Lock()
			delete(t.running, h)
			t.mu.Unlock()
			cancel()
			t.wg.Done()
		}()
		defer func() {
			if err := recover(); err != nil {
				pf := panicFunc
				if len(pf) == 0 {
					pf = []func(context.Context, any){DefaultPanicFunc}
				}
				for _, f := range pf {
					f(taskCtx, err)
				}
			}
		}()

		run(taskCtx)
	}()
	return nil
}

// Running 返回尚未结束的任务数
func (t *Threading) Running() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.running)
}

// Stop 停止接收新任务。
// wait=false 时立即取消所有任务；wait=true 时最多等待 timeout，超时后取消剩余任务。
func (t *Threading) Stop(wait bool, timeout time.Duration) {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()

	if wait {
		done := make(chan struct{})
		go func() {
			t.wg.Wait()
			close(done)
		}()
		timer := time.NewTimer(timeout)
		select {
		case <-done:
		case <-timer.C:
		}
		timer.Stop()
	}

	t.mu.Lock()
	for _, cancel := range t.running {
		cancel()
	}
	t.mu.Unlock()
}
