//go:build linux
// +build linux

// File: internal/concurrency/affinity_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func platformPinCurrentThread(cpu int) (func() error, error) {
	var prev unix.CPUSet
	if err := unix.SchedGetaffinity(0, &prev); err != nil {
		return nil, fmt.Errorf("concurrency: sched_getaffinity: %w", err)
	}
	var set unix.CPUSet
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return nil, fmt.Errorf("concurrency: sched_setaffinity cpu=%d: %w", cpu, err)
	}
	return func() error { return unix.SchedSetaffinity(0, &prev) }, nil
}

// CurrentAffinity returns the CPUs the calling thread may run on.
func CurrentAffinity() ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, err
	}
	var cpus []int
	for i := 0; i < len(set)*64; i++ {
		if set.IsSet(i) {
			cpus = append(cpus, i)
		}
	}
	return cpus, nil
}
