// Package config provides loading and environment overlay for Orbiter
// configuration. It exposes a Default() baseline, a JSON file loader, and an
// ORBITER_* env overlay.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/orbiter.json"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
package config
