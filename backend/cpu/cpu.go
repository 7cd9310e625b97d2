// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu exposes the host backend.
//
// Kernels run on a worker pool sized by STRIDED_NUM_THREADS and use the
// SIMD features reported by Features where the host has them.
package cpu

import (
	internalcpu "github.com/born-ml/strided/internal/backend/cpu"
	"github.com/born-ml/strided/internal/storage"
	"github.com/born-ml/strided/tensor"
)

// Device returns the host device.
func Device() tensor.Device { return storage.CPU }

// Threads returns the number of kernel workers.
func Threads() int { return internalcpu.Default().Threads() }

// Features lists the SIMD features detected on this host.
func Features() []string { return internalcpu.Default().Features() }

// SetSeed reseeds the host random generator.
func SetSeed(seed uint64) { internalcpu.Default().SetSeed(seed) }
