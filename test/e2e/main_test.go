//go:build e2e

package e2e

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"testing"
)

// TestMain handles setup and cleanup for all E2E tests
func TestMain(m *testing.M) {
	// Setup signal handler for graceful shutdown on CTRL+C
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		// Cleanup containers on interrupt
		cleanupSharedContainers()
		cancel()
		os.Exit(1)
	}()

	// Run tests
	code := m.Run()

	// Cleanup after all tests complete
	cleanupSharedContainers()

	// Exit with context awareness
	select {
	case <-ctx.Done():
		os.Exit(1)
	default:
		os.Exit(code)
	}
}

// cleanupSharedContainers terminates the shared Localstack container
func cleanupSharedContainers() {
	ctx := context.Background()

	if sharedLocalstackHelper != nil {
		sharedLocalstackHelper.Cleanup()
		if sharedLocalstackHelper.Container != nil {
			_ = sharedLocalstackHelper.Container.Terminate(ctx)
		}
		sharedLocalstackHelper = nil
	}
}
