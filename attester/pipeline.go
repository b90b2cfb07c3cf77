package attester

import (
	"errors"
	"fmt"

	"github.com/screwyprof/attester/votingpower"
)

// ErrUnknownPipeline is returned for pipeline names that are not published
var ErrUnknownPipeline = errors.New("unknown pipeline")

// Pipeline names a published ranking
type Pipeline string

const (
	// WithoutPartialVP ranks by direct voting power only
	WithoutPartialVP Pipeline = "without_partial_vp"
	// WithPartialVP ranks by direct plus partially delegated voting power
	WithPartialVP Pipeline = "with_partial_vp"
)

// Pipelines returns every published pipeline in publication order
func Pipelines() []Pipeline {
	return []Pipeline{WithoutPartialVP, WithPartialVP}
}

// ParsePipeline validates a pipeline name
func ParsePipeline(s string) (Pipeline, error) {
	for _, p := range Pipelines() {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPipeline, s)
}

// Score returns the ranking score of the pipeline
func (p Pipeline) Score() votingpower.ScoreFunc {
	if p == WithPartialVP {
		return votingpower.TotalScore
	}
	return votingpower.DirectScore
}

func (p Pipeline) String() string {
	return string(p)
}
