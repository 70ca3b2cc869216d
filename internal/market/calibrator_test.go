package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadqual/internal/store"
)

type fakeSource struct {
	signals []store.CohortSignal
	err     error
}

func (f *fakeSource) ListScoredSignals(ctx context.Context) ([]store.CohortSignal, error) {
	return f.signals, f.err
}

func signalsFor(businessType string, reviewCounts ...int) []store.CohortSignal {
	out := make([]store.CohortSignal, len(reviewCounts))
	for i, rc := range reviewCounts {
		out[i] = store.CohortSignal{
			LeadID:       "lead",
			BusinessType: businessType,
			ReviewCount:  rc,
			Rating:       4.0,
		}
	}
	return out
}

func TestCalibrator_Percentiles(t *testing.T) {
	c := NewCalibrator(&fakeSource{
		signals: signalsFor("plumber", 10, 20, 30, 40, 50),
	})
	require.NoError(t, c.Refresh(context.Background()))

	mc := c.Describe("plumber")
	require.NotNil(t, mc)
	assert.Equal(t, "plumber", mc.BusinessType)
	assert.Equal(t, 5, mc.CohortSize)
	assert.InDelta(t, 20.0, mc.ReviewCount.P25, 0.001)
	assert.InDelta(t, 30.0, mc.ReviewCount.P50, 0.001)
	assert.InDelta(t, 40.0, mc.ReviewCount.P75, 0.001)
	assert.InDelta(t, 46.0, mc.ReviewCount.P90, 0.001)
}

func TestCalibrator_ThinCohortFallsBack(t *testing.T) {
	signals := append(signalsFor("plumber", 10, 20, 30, 40, 50),
		signalsFor("hvac", 100)...)
	c := NewCalibrator(&fakeSource{signals: signals})
	require.NoError(t, c.Refresh(context.Background()))

	// Only one hvac lead; the cross-type pool answers instead.
	mc := c.Describe("hvac")
	require.NotNil(t, mc)
	assert.Equal(t, "_all", mc.BusinessType)
	assert.Equal(t, 6, mc.CohortSize)
}

func TestCalibrator_UnknownTypeFallsBack(t *testing.T) {
	c := NewCalibrator(&fakeSource{signals: signalsFor("plumber", 10, 20, 30, 40, 50)})
	require.NoError(t, c.Refresh(context.Background()))

	mc := c.Describe("roofer")
	require.NotNil(t, mc)
	assert.Equal(t, "_all", mc.BusinessType)
}

func TestCalibrator_EmptyPool(t *testing.T) {
	c := NewCalibrator(&fakeSource{})
	require.NoError(t, c.Refresh(context.Background()))
	assert.Nil(t, c.Describe("plumber"))
}

func TestCalibrator_RefreshError(t *testing.T) {
	c := NewCalibrator(&fakeSource{err: assert.AnError})
	assert.Error(t, c.Refresh(context.Background()))
}

func TestQuantile_SingleValue(t *testing.T) {
	p := percentiles([]float64{7})
	assert.Equal(t, 7.0, p.P25)
	assert.Equal(t, 7.0, p.P90)
}
