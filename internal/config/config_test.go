package config

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThresholdsValidate(t *testing.T) {
	cases := []struct {
		name string
		th   Thresholds
		ok   bool
	}{
		{name: "defaults", th: Thresholds{Potential: 0.75, Duplicate: 0.85, Exact: 1}, ok: true},
		{name: "all equal", th: Thresholds{Potential: 0.8, Duplicate: 0.8, Exact: 0.8}, ok: true},
		{name: "zero floor", th: Thresholds{Potential: 0, Duplicate: 0, Exact: 0}, ok: true},
		{name: "negative", th: Thresholds{Potential: -0.1, Duplicate: 0.85, Exact: 1}},
		{name: "potential above duplicate", th: Thresholds{Potential: 0.9, Duplicate: 0.85, Exact: 1}},
		{name: "duplicate above exact", th: Thresholds{Potential: 0.7, Duplicate: 0.95, Exact: 0.9}},
		{name: "exact above one", th: Thresholds{Potential: 0.7, Duplicate: 0.8, Exact: 1.01}},
		{name: "nan duplicate", th: Thresholds{Potential: 0.75, Duplicate: math.NaN(), Exact: 1}},
		{name: "nan potential", th: Thresholds{Potential: math.NaN(), Duplicate: 0.85, Exact: 1}},
		{name: "nan exact", th: Thresholds{Potential: 0.75, Duplicate: 0.85, Exact: math.NaN()}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.th.Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidThresholds)
		})
	}
}

func TestLoadThresholdsFromEnv(t *testing.T) {
	t.Setenv("POTENTIAL_DUPLICATE_THRESHOLD", "0.6")
	t.Setenv("DUPLICATE_THRESHOLD", "0.9")
	t.Setenv("EXACT_MATCH_THRESHOLD", "0.99")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Thresholds{Potential: 0.6, Duplicate: 0.9, Exact: 0.99}, cfg.Thresholds)
}

func TestLoadRejectsMisorderedThresholds(t *testing.T) {
	t.Setenv("POTENTIAL_DUPLICATE_THRESHOLD", "0.9")
	t.Setenv("DUPLICATE_THRESHOLD", "0.8")

	_, err := Load()
	require.ErrorIs(t, err, ErrInvalidThresholds)
}

func TestLoadRejectsNonNumericThresholds(t *testing.T) {
	for _, value := range []string{"NaN", "abc", "+Inf", "0,9"} {
		t.Run(value, func(t *testing.T) {
			t.Setenv("DUPLICATE_THRESHOLD", value)

			_, err := Load()
			require.ErrorIs(t, err, ErrInvalidThresholds)
			assert.Contains(t, err.Error(), "DUPLICATE_THRESHOLD")
		})
	}
}

func TestLoadFallsBackOnGarbage(t *testing.T) {
	t.Setenv("VIEW_PAGE_SIZE", "many")
	t.Setenv("IMAP_SECURE", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.ViewPageSize)
	assert.True(t, cfg.IMAPSecure)
}
