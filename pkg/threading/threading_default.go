package threading

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	errRepeatedInit = errors.New("threading: repeated init")
	ErrNotInit      = errors.New("threading: not initialized")
)

var (
	defaultMu        sync.Mutex
	defaultThreading *Threading
)

// 进程退出时，留给未完成任务的收尾时间
const defaultThreadingStopTimeout = 30 * time.Second

// Init 初始化进程级的默认实例，返回的函数在退出时调用。重复初始化会 panic。
func Init() func() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultThreading != nil {
		panic(errRepeatedInit)
	}
	th := New()
	defaultThreading = th
	return func() {
		th.Stop(true, defaultThreadingStopTimeout)
		defaultMu.Lock()
		if defaultThreading == th {
			defaultThreading = nil
		}
		defaultMu.Unlock()
	}
}

// Go 在默认实例上启动任务，未 Init 时返回 ErrNotInit。
func Go(ctx context.Context, run func(ctx context.Context), panicFunc ...func(ctx context.Context, err any)) error {
	defaultMu.Lock()
	th := defaultThreading
	defaultMu.Unlock()
	if th == nil {
		return ErrNotInit
	}
	return th.Go(ctx, run, panicFunc...)
}
