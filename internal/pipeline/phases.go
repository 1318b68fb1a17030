package pipeline

import "cadence/internal/progress"

// Phase names, in execution order. Each phase owns a fixed band of the job's
// overall 0-100 progress.
const (
	PhaseExtract   = "extract"
	PhaseDownload  = "download"
	PhaseCompose   = "compose"
	PhaseNormalize = "normalize"
)

var phaseRanges = map[string]progress.Range{
	PhaseExtract:   {Start: 0, End: 20},
	PhaseDownload:  {Start: 20, End: 90},
	PhaseCompose:   {Start: 90, End: 95},
	PhaseNormalize: {Start: 95, End: 100},
}

// PhaseRange returns the progress band for a named phase.
func PhaseRange(phase string) progress.Range {
	return phaseRanges[phase]
}
