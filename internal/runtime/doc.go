// Package runtime wires storage, config, and facades into a single-node
// Orbiter instance. It exposes Open/Close, a basic health check, and the
// domain components higher layers use: the work-item table store, the
// durable queue, and the orchestration engine with its history log.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	// Health
//	_ = rt.CheckHealth(context.Background())
//	// Start a workflow instance
//	id, _ := rt.Engine().Start(context.Background(), "fan_out_fan_in", nil)
package runtime
