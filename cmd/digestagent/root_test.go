package main

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DigestAgent/internal/domain"
)

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd()

	for _, path := range [][]string{{"serve"}, {"refresh"}, {"sweep"}, {"status"}, {"digest", "send"}} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestRefreshRequiresTopic(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"refresh"})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)

	assert.Error(t, root.Execute())
}

func TestDigestSendRejectsBadUser(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"digest", "send", "--user", "abc"})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --user")
}

func TestFormatOutcome(t *testing.T) {
	tests := []struct {
		name    string
		outcome domain.RefreshOutcome
		want    string
	}{
		{
			name:    "recently refreshed shows remaining time",
			outcome: domain.RefreshOutcome{Topic: "AI", Skipped: true, Success: true, Reason: "recently_refreshed", RemainingSeconds: 180},
			want:    "AI\tskipped (recently_refreshed, 180s remaining)",
		},
		{
			name:    "currently refreshing has no countdown",
			outcome: domain.RefreshOutcome{Topic: "AI", Skipped: true, Reason: "currently_refreshing"},
			want:    "AI\tskipped (currently_refreshing)",
		},
		{
			name:    "success",
			outcome: domain.RefreshOutcome{Topic: "Go", Success: true, ArticlesCreated: 3, ArticlesSkipped: 1},
			want:    "Go\tcreated=3 skipped=1 failed=0",
		},
		{
			name:    "failure",
			outcome: domain.RefreshOutcome{Topic: "Go", Error: "fetch: timeout"},
			want:    "Go\tfailed: fetch: timeout",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, formatOutcome(tc.outcome))
		})
	}
}
