package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smeltapp/smeltd/internal/domain/model"
)

func TestBandPercent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		stage    model.Stage
		fraction float64
		want     int
	}{
		{name: "validating start", stage: model.StageValidating, fraction: 0, want: 0},
		{name: "validating end", stage: model.StageValidating, fraction: 1, want: 10},
		{name: "decoding midpoint", stage: model.StageDecoding, fraction: 0.5, want: 15},
		{name: "transcribing start", stage: model.StageTranscribing, fraction: 0, want: 20},
		{name: "transcribing partial", stage: model.StageTranscribing, fraction: 0.3, want: 35},
		{name: "transcribing end", stage: model.StageTranscribing, fraction: 1, want: 70},
		{name: "synthesizing end", stage: model.StageSynthesizing, fraction: 1, want: 100},
		{name: "fraction clamped low", stage: model.StageDecoding, fraction: -0.5, want: 10},
		{name: "fraction clamped high", stage: model.StageDecoding, fraction: 2, want: 20},
		{name: "unbanded stage", stage: model.StagePending, fraction: 0.5, want: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, bandPercent(tt.stage, tt.fraction))
		})
	}
}

func TestBandsCoverFullRange(t *testing.T) {
	t.Parallel()

	// Bands tile 0-100 with no gaps or overlap in pipeline order.
	order := []model.Stage{
		model.StageValidating,
		model.StageDecoding,
		model.StageTranscribing,
		model.StageSynthesizing,
	}
	next := 0
	for _, stage := range order {
		b := stageBands[stage]
		assert.Equal(t, next, b.start, "band for %s starts where the previous ended", stage)
		next = b.start + b.width
	}
	assert.Equal(t, 100, next)
}
