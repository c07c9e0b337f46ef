package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureScheduleCommand_Validation(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{
			name:     "interval too short",
			args:     []string{"temporal", "ensure-schedule", "--interval", "500ms"},
			expected: "interval must be at least 1s",
		},
		{
			name:     "zero grace period",
			args:     []string{"temporal", "ensure-schedule", "--orphan-grace-period", "0s"},
			expected: "orphan-grace-period must be positive",
		},
		{
			name:     "negative batch size",
			args:     []string{"temporal", "ensure-schedule", "--batch-size", "-1"},
			expected: "batch-size cannot be negative",
		},
		{
			name:     "sweep-now grace period",
			args:     []string{"temporal", "sweep-now", "--orphan-grace-period", "-5m"},
			expected: "orphan-grace-period must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runApp(t, nil, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expected)
		})
	}
}

func TestDeleteScheduleCommand_Aborted(t *testing.T) {
	out, _, err := runApp(t, nil, "temporal", "delete-schedule")
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted")
}
