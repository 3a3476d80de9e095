package main

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolbooks/admin-console/internal/history"
)

func TestParseFilterArgs(t *testing.T) {
	f, pos, err := parseFilterArgs("list", []string{
		"--action", "delete", "rec-9", "--entity-type=book",
		"--from", "2026-05-01", "--to", "2026-05-04", "--page", "3", "--limit", "50",
	}, 25, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"rec-9"}, pos)
	assert.Equal(t, "delete", f.Action())
	assert.Equal(t, "book", f.EntityType())
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), f.StartDate())
	assert.Equal(t, time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), f.EndDate())
	assert.Equal(t, 3, f.Page(), "page survives the other setters")
	assert.Equal(t, 50, f.Limit())
}

func TestParseFilterArgs_Defaults(t *testing.T) {
	f, pos, err := parseFilterArgs("list", nil, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, pos)
	assert.Equal(t, 1, f.Page())
	assert.Equal(t, 10, f.Limit())
	assert.False(t, f.Active())
}

func TestParseFilterArgs_Errors(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"limit not allowed", []string{"--limit", "30"}},
		{"bad from", []string{"--from", "May 1"}},
		{"to before from", []string{"--from", "2026-05-04", "--to", "2026-05-01"}},
		{"unknown flag", []string{"--colour"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := parseFilterArgs("list", tc.args, 25, nil)
			assert.Error(t, err)
		})
	}

	_, _, err := parseFilterArgs("list", []string{"--limit", "30"}, 25, nil)
	assert.ErrorIs(t, err, history.ErrInvalidLimit)
}

func TestParseFilterArgs_ExtraFlags(t *testing.T) {
	var all bool
	_, pos, err := parseFilterArgs("export", []string{"--all", "--search", "poetry"}, 25, func(fs *flag.FlagSet) {
		fs.BoolVar(&all, "all", false, "")
	})
	require.NoError(t, err)
	assert.True(t, all)
	assert.Empty(t, pos)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b", truncate("a\n  b", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
