package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DepreciationScheduler 折旧计提调度器
type DepreciationScheduler struct {
	service  DepreciationService
	interval time.Duration
	logger   *logrus.Logger
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDepreciationScheduler 创建折旧计提调度器
func NewDepreciationScheduler(svc DepreciationService, interval time.Duration, logger *logrus.Logger) *DepreciationScheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DepreciationScheduler{
		service:  svc,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start 启动调度器, 启动时立即执行一次
func (s *DepreciationScheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
}

// Stop 停止调度器并等待当前批次结束
func (s *DepreciationScheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

// Interval 调度间隔
func (s *DepreciationScheduler) Interval() time.Duration {
	return s.interval
}

func (s *DepreciationScheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce 执行一次计提
func (s *DepreciationScheduler) RunOnce(ctx context.Context) {
	result, err := s.service.Run(ctx, s.now())
	if err != nil {
		s.logger.WithError(err).Error("scheduled depreciation run failed")
		return
	}
	if len(result.Failed) > 0 {
		s.logger.WithField("failed", result.Failed).Warn("some assets could not be depreciated")
	}
}
