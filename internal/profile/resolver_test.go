package profile

import (
	"testing"

	"github.com/refundworks/refundflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	avg := 0.38
	profiles := []model.VendorProfile{
		{
			VendorKey: "ACME",
			MethodologyMix: map[string]model.MethodologyStats{
				"MPU":             {Count: 5, AveragePct: &avg},
				"Contract Review": {Count: 2}, // no recorded percentage
			},
		},
	}
	defaults := map[string]float64{"MPU": 0.45, "Direct Exclusion": 1.0}

	resolver, err := NewResolver(profiles, defaults)
	require.NoError(t, err)

	// Scenario E: vendor history beats the global default.
	got := resolver.Resolve("ACME", "MPU")
	require.NotNil(t, got)
	assert.InDelta(t, 0.38, *got, 1e-9)

	// Unknown vendor falls back to the global default.
	got = resolver.Resolve("GLOBEX", "MPU")
	require.NotNil(t, got)
	assert.InDelta(t, 0.45, *got, 1e-9)

	// Profiled vendor without a recorded pct also falls back to the default
	// for that methodology; here there is none, so the caller must flag it.
	assert.Nil(t, resolver.Resolve("ACME", "Contract Review"))

	// Neither profile nor default: nil, never zero.
	assert.Nil(t, resolver.Resolve("GLOBEX", "Unknown Method"))
}

func TestResolveBounds(t *testing.T) {
	avg := 0.38
	profiles := []model.VendorProfile{
		{
			VendorKey: "ACME",
			MethodologyMix: map[string]model.MethodologyStats{
				"MPU": {Count: 5, AveragePct: &avg},
			},
		},
	}
	resolver, err := NewResolver(profiles, map[string]float64{"MPU": 0.45})
	require.NoError(t, err)

	for _, vendor := range []string{"ACME", "GLOBEX"} {
		if pct := resolver.Resolve(vendor, "MPU"); pct != nil {
			assert.GreaterOrEqual(t, *pct, 0.0)
			assert.LessOrEqual(t, *pct, 1.0)
		}
	}
}

func TestNewResolverRejectsBadDefaults(t *testing.T) {
	_, err := NewResolver(nil, map[string]float64{"MPU": 1.2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	_, err = NewResolver(nil, map[string]float64{"MPU": -0.1})
	require.Error(t, err)
}

func TestResolveReturnsCopy(t *testing.T) {
	avg := 0.38
	profiles := []model.VendorProfile{
		{
			VendorKey: "ACME",
			MethodologyMix: map[string]model.MethodologyStats{
				"MPU": {Count: 5, AveragePct: &avg},
			},
		},
	}
	resolver, err := NewResolver(profiles, nil)
	require.NoError(t, err)

	got := resolver.Resolve("ACME", "MPU")
	require.NotNil(t, got)
	*got = 0.99

	again := resolver.Resolve("ACME", "MPU")
	require.NotNil(t, again)
	assert.InDelta(t, 0.38, *again, 1e-9)
}
