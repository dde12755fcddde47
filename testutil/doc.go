// Package testutil provides testing utilities for arcgo.
//
// This package is intended for use in tests and benchmarks only.
// It provides payloads that record their destruction, a probe that detects
// overlapping mutable access, and a seeded random number generator for
// reproducible stress schedules.
//
// # Drop Tracking
//
//	var drops testutil.DropCounter
//	a := arcgo.New(testutil.NewTracked("Hello", &drops))
//	a.Release()
//	drops.Load() // 1
//
// # Exclusivity
//
//	var p testutil.Probe
//	p.Enter()
//	defer p.Exit()
//	...
//	p.Max() // highest number of goroutines ever inside at once
package testutil
