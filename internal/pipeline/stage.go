package pipeline

import "fmt"

// Stage is a position in the pipeline.
type Stage int

const (
	StageNone Stage = iota
	StageConvertPDF
	StageRasterize
	StageExtractText
	StageConcatenate
	StageSummarize
	StageNotify
)

var stageNames = map[Stage]string{
	StageNone:        "none",
	StageConvertPDF:  "convert-to-pdf",
	StageRasterize:   "rasterize",
	StageExtractText: "extract-text",
	StageConcatenate: "concatenate",
	StageSummarize:   "summarize",
	StageNotify:      "notify",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// ParseStage is the inverse of Stage.String.
func ParseStage(name string) (Stage, error) {
	for s, n := range stageNames {
		if n == name {
			return s, nil
		}
	}
	return StageNone, fmt.Errorf("unknown stage %q", name)
}

// Stages lists every real stage in pipeline order.
func Stages() []Stage {
	return []Stage{StageConvertPDF, StageRasterize, StageExtractText, StageConcatenate, StageSummarize, StageNotify}
}

// DeletesInput reports the input retirement policy. Only the convert stage
// owns its input exclusively; every other input is either kept for reference
// or shared by more than one downstream reader.
func (s Stage) DeletesInput() bool {
	return s == StageConvertPDF
}

// FanIn reports whether the stage aggregates every sibling object of a job
// rather than just the triggering object. Fan-in stages run once per sibling
// arrival and recompute the whole aggregate each time.
func (s Stage) FanIn() bool {
	return s == StageConcatenate || s == StageSummarize
}
