// Package client provides the `orbiter` command-line client.
//
// The CLI talks to the Orbiter HTTP endpoint to start and inspect
// workflow orchestrations and to look at the pipeline's work items and
// dead letters from a terminal. It is primarily intended for developers
// and operators.
//
// Installation
//
//	go install github.com/rzbill/orbiter/cmd/orbiter@latest
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. When using the standalone binary, it
// defaults to http://127.0.0.1:8080 and can be overridden with the
// ORBITER_HTTP environment variable.
//
// Usage
//
//	orbiter orchestration start fan_out_fan_in --input 25
//	orbiter orchestration status 6f1c9f6e-...
//	orbiter orchestration purge 6f1c9f6e-...
//
//	orbiter workitems list --status New
//	orbiter workitems list --status Processed
//
//	orbiter dlq list --group processors
package client
