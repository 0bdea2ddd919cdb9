package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidRunTransition(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{name: "running to completed", from: RunStatusRunning, to: RunStatusCompleted, want: true},
		{name: "running to failed", from: RunStatusRunning, to: RunStatusFailed, want: true},
		{name: "running to cancelled", from: RunStatusRunning, to: RunStatusCancelled, want: true},
		{name: "completed is terminal", from: RunStatusCompleted, to: RunStatusRunning, want: false},
		{name: "cancelled is terminal", from: RunStatusCancelled, to: RunStatusCompleted, want: false},
		{name: "failed is terminal", from: RunStatusFailed, to: RunStatusCancelled, want: false},
		{name: "running to running", from: RunStatusRunning, to: RunStatusRunning, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidRunTransition(tt.from, tt.to))
		})
	}
}

func TestRunIsTerminal(t *testing.T) {
	run := &DeduplicationRun{Status: RunStatusRunning}
	assert.False(t, run.IsTerminal())

	for _, status := range []string{RunStatusCompleted, RunStatusFailed, RunStatusCancelled} {
		run.Status = status
		assert.True(t, run.IsTerminal(), status)
	}
}
