package pipeline

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidTransition is returned when a stage tries to publish an object
// whose name does not route to the stages declared for its output.
var ErrInvalidTransition = errors.New("output violates transition table")

type rule struct {
	stage Stage
	match func(ObjectKey) bool
}

// routingTable is the static (folder, extension) → stage mapping. Every
// predicate looks at the key alone.
var routingTable = []rule{
	{StageConvertPDF, func(k ObjectKey) bool {
		return k.Root == AttachmentsFolder && len(k.Subpath) == 0 && k.HasExt("doc", "docx", "xls")
	}},
	{StageRasterize, func(k ObjectKey) bool {
		return k.Root == AttachmentsFolder && len(k.Subpath) == 0 && k.HasExt("pdf")
	}},
	{StageExtractText, func(k ObjectKey) bool {
		return k.inImages() && k.HasExt("jpeg")
	}},
	// Extracted text is the one input class read by two stages.
	{StageConcatenate, func(k ObjectKey) bool {
		return k.inImages() && k.HasExt("txt")
	}},
	{StageSummarize, func(k ObjectKey) bool {
		return k.inImages() && k.HasExt("txt")
	}},
	{StageNotify, func(k ObjectKey) bool {
		return k.Root == ReviewedFolder && len(k.Subpath) >= 1 && k.HasExt("html")
	}},
}

// transitions declares, per stage, which stages its published objects feed.
var transitions = map[Stage][]Stage{
	StageConvertPDF:  {StageRasterize},
	StageRasterize:   {StageExtractText},
	StageExtractText: {StageConcatenate, StageSummarize},
	StageConcatenate: nil,
	StageSummarize:   nil,
	StageNotify:      nil,
}

// Route returns the stages whose predicate accepts name, in pipeline order.
// An empty result is a routing miss.
func Route(name string) []Stage {
	k, err := ParseKey(name)
	if err != nil {
		return nil
	}
	var out []Stage
	for _, r := range routingTable {
		if r.match(k) {
			out = append(out, r.stage)
		}
	}
	return out
}

// Matches is the per-handler predicate.
func Matches(stage Stage, name string) bool {
	return slices.Contains(Route(name), stage)
}

// ValidateOutput checks a name about to be published by stage against the
// transition table.
func ValidateOutput(stage Stage, name string) error {
	want, ok := transitions[stage]
	if !ok {
		return fmt.Errorf("%w: %s publishes nothing", ErrInvalidTransition, stage)
	}
	if _, err := ParseKey(name); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTransition, err)
	}
	got := Route(name)
	if !slices.Equal(got, want) {
		return fmt.Errorf("%w: %s output %q routes to %v, want %v", ErrInvalidTransition, stage, name, got, want)
	}
	return nil
}
