package client

import (
	"sync"
	"time"
)

// heartbeat calls tick on every interval until stopped or until tick returns
// false. The ping itself is written by the manager loop.
type heartbeat struct {
	stop chan struct{}
	once sync.Once
}

func startHeartbeat(interval time.Duration, tick func() bool) *heartbeat {
	hb := &heartbeat{stop: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-hb.stop:
				return
			case <-ticker.C:
				if !tick() {
					return
				}
			}
		}
	}()
	return hb
}

func (hb *heartbeat) Stop() {
	if hb == nil {
		return
	}
	hb.once.Do(func() { close(hb.stop) })
}
