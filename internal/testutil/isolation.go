package testutil

import (
	"os"
	"testing"
)

// TrackedEnv lists the environment variables the server reads. Tests that
// set any of them should isolate first.
var TrackedEnv = []string{
	"MODSERVER_ENV",
	"MODSERVER_DIR",
	"MODSERVER_ADDR",
	"MODSERVER_DB",
	"MODSERVER_REFRESH",
	"MODSERVER_WATCH",
	"MODSERVER_LOG_LEVEL",
}

func snapshotEnv() map[string]*string {
	snapshot := make(map[string]*string, len(TrackedEnv))
	for _, k := range TrackedEnv {
		if v, ok := os.LookupEnv(k); ok {
			val := v
			snapshot[k] = &val
		} else {
			snapshot[k] = nil
		}
	}
	return snapshot
}

func restoreEnv(snapshot map[string]*string) {
	for k, v := range snapshot {
		if v == nil {
			_ = os.Unsetenv(k)
		} else {
			_ = os.Setenv(k, *v)
		}
	}
}

// WithIsolatedEnv runs fn and restores the tracked environment variables
// afterwards.
func WithIsolatedEnv(fn func()) {
	snapshot := snapshotEnv()
	defer restoreEnv(snapshot)
	fn()
}

// Isolate snapshots the tracked environment variables and restores them in
// t.Cleanup. Safe to call more than once; restores run LIFO.
func Isolate(t *testing.T) {
	t.Helper()
	snapshot := snapshotEnv()
	t.Cleanup(func() { restoreEnv(snapshot) })
}
