// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package calc

import (
	"github.com/GameTechDev/pmmetricscore/carrystate"
	"github.com/GameTechDev/pmmetricscore/metrics/frame"
	"github.com/GameTechDev/pmmetricscore/metrics/timebase"
)

func firstNonZero(vals ...uint64) uint64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

// computeCpuGpuMetrics fills the CPU/GPU family, computed only for app
// frames; each metric prefers the app-propagated timing when present.
func computeCpuGpuMetrics(tb timebase.Base, state *carrystate.State, present *frame.Data, isAppFrame bool, out *frame.Metrics) {
	if !isAppFrame {
		return
	}

	cpuStart := carrystate.ResolveCPUStart(state, present)

	presentStart := firstNonZero(present.AppPropagatedPresentStartTime, present.PresentStartTime)
	timeInPresent := firstNonZero(present.AppPropagatedTimeInPresent, present.TimeInPresent)
	gpuStart := firstNonZero(present.AppPropagatedGPUStartTime, present.GPUStartTime)
	gpuDuration := firstNonZero(present.AppPropagatedGPUDuration, present.GPUDuration)
	videoDuration := firstNonZero(present.AppPropagatedGPUVideoDuration, present.GPUVideoDuration)

	out.MsCPUBusy = tb.DeltaUnsignedMs(cpuStart, presentStart)
	out.MsCPUWait = tb.DurationMs(timeInPresent)
	out.MsGPULatency = tb.DeltaUnsignedMs(cpuStart, gpuStart)
	out.MsGPUBusy = tb.DurationMs(gpuDuration)
	out.MsVideoBusy = tb.DurationMs(videoDuration)

	nativeGpuDuration := tb.DeltaUnsignedMs(present.GPUStartTime, present.ReadyTime)
	gpuWait := nativeGpuDuration - out.MsGPUBusy
	if gpuWait < 0 {
		gpuWait = 0
	}
	out.MsGPUWait = gpuWait
}
