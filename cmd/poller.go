package main

import (
	"context"
	"time"

	"github.com/ivan3bx/hamlaunch"
)

// pollLoop drives l's poll cycle every interval until ctx is done. When
// onExit is set it is told about every exit, and returning true ends the loop.
func pollLoop(ctx context.Context, l hamlaunch.Launcher, interval time.Duration, onExit func(hamlaunch.PollResult) bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if result := l.Poll(); result.Exited && onExit != nil && onExit(result) {
			return nil
		}
	}
}
