package manager

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartScheduler launches the periodic fleet check. It replaces the cron
// trigger of the old pipeline: same check, in-process. Safe to call once;
// subsequent calls are no-ops until StopScheduler.
func (mgr *Manager) StartScheduler() {
	if mgr == nil || !mgr.cfg.Scheduler.Enabled {
		return
	}
	mgr.schedulerMu.Lock()
	if mgr.schedulerStop != nil {
		mgr.schedulerMu.Unlock()
		return
	}
	stop := make(chan struct{})
	mgr.schedulerStop = stop
	mgr.schedulerMu.Unlock()

	interval := mgr.cfg.Scheduler.Interval()
	remediate := mgr.cfg.Scheduler.Remediate
	mgr.logger.Info("scheduler started",
		zap.Duration("interval", interval),
		zap.Bool("remediate", remediate))

	mgr.schedulerWG.Add(1)
	go func() {
		defer mgr.schedulerWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := mgr.CheckFleet(context.Background(), remediate); err != nil {
					mgr.logger.Error("scheduled fleet check failed", zap.Error(err))
				}
			case <-stop:
				return
			}
		}
	}()
}

// StopScheduler stops the periodic fleet check and waits for it to exit.
func (mgr *Manager) StopScheduler() {
	if mgr == nil {
		return
	}
	mgr.schedulerMu.Lock()
	stop := mgr.schedulerStop
	mgr.schedulerStop = nil
	mgr.schedulerMu.Unlock()
	if stop != nil {
		close(stop)
	}
	mgr.schedulerWG.Wait()
}
