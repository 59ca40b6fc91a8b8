package renderer

import (
	"fmt"

	"ShadowTerrain/internal/logger"

	"go.uber.org/zap"
)

// WaitForFence blocks until the fence reaches value. The wait event is
// released on every return path.
func WaitForFence(dev Device, fence Fence, value uint64) (err error) {
	if fence.CompletedValue() >= value {
		return nil
	}

	ev, err := dev.CreateEvent()
	if err != nil {
		return fmt.Errorf("create fence event: %w", err)
	}
	defer func() {
		if cerr := ev.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close fence event: %w", cerr)
		}
	}()

	if err := fence.SetEventOnCompletion(value, ev); err != nil {
		return fmt.Errorf("set event on fence value %d: %w", value, err)
	}
	if err := ev.Wait(); err != nil {
		return fmt.Errorf("wait for fence value %d: %w", value, err)
	}
	return nil
}

// FlushQueue signals the next fence value and waits for the GPU to reach
// it. It returns the value that was signaled.
func FlushQueue(dev Device, fence Fence, current uint64) (uint64, error) {
	current++
	if err := dev.Queue().Signal(fence, current); err != nil {
		return current, fmt.Errorf("%w: signal flush fence: %v", ErrSubmission, err)
	}
	if err := WaitForFence(dev, fence, current); err != nil {
		return current, err
	}
	logger.Log.Debug("Command queue flushed", zap.Uint64("fence", current))
	return current, nil
}
