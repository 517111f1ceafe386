package usecase

import (
	"testing"

	"OptEdge/internal/domain/models"
	"OptEdge/internal/services/pricing"
	"OptEdge/pkg/logger"
	"OptEdge/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTracker(t *testing.T, cfg TrackerConfig) *PortfolioTracker {
	t.Helper()
	store, _ := newStore(pricing.FixedClock(1.0 / 12))
	_, err := store.RegisterAll([]models.SecuritySpec{
		callSpec("T100C", 100, 5.0),
		callSpec("T105C", 105, 3.0),
		futureSpec(),
	})
	require.NoError(t, err)
	return NewPortfolioTracker(cfg, store, metrics.Nop{}, logger.Nop())
}

// TradeCount counts fills and only grows, so it is the one PortfolioRisk
// field a reversing fill leaves changed.
func TestFillThenReverseRestoresRiskExceptTradeCount(t *testing.T) {
	tr := newTracker(t, defaultTrackerConfig())
	g := models.Greeks{Delta: 0.5199999999975321, Gamma: 0.13801, Vega: 11.501996591164149}

	_, err := tr.ApplyFill("T105C", true, 7, 2.13, models.Greeks{Delta: 0.31, Gamma: 0.07, Vega: 9.3})
	require.NoError(t, err)
	before := tr.Risk()

	_, err = tr.ApplyFill("T100C", true, 10, 4.37, g)
	require.NoError(t, err)
	mid := tr.Risk()
	assert.NotEqual(t, before.Greeks, mid.Greeks)

	pos, err := tr.ApplyFill("T100C", false, 10, 4.37, g)
	require.NoError(t, err)
	after := tr.Risk()

	assert.Equal(t, before.TradeCount+2, after.TradeCount)
	after.TradeCount = before.TradeCount
	assert.Equal(t, before, after)
	assert.True(t, pos.Dormant())
	assert.Equal(t, int64(2), pos.Fills)
}

func TestApplyFillScalesGreeksAndCash(t *testing.T) {
	tr := newTracker(t, defaultTrackerConfig())
	pos, err := tr.ApplyFill(models.FutureTicker, false, 4, 101.5, models.FutureGreeks)
	require.NoError(t, err)

	assert.Equal(t, int64(-4), pos.Quantity)
	assert.Equal(t, -4.0, pos.Greeks.Delta)
	assert.Equal(t, 406.0, pos.CashFlow)

	r := tr.Risk()
	assert.Equal(t, 1_000_406.0, r.Cash)
	assert.Equal(t, int64(4), r.Futures)
	assert.Equal(t, int64(1), r.TradeCount)
}

func TestApplyFillChargesFee(t *testing.T) {
	cfg := defaultTrackerConfig()
	cfg.TradeFee = 0.02
	tr := newTracker(t, cfg)
	_, err := tr.ApplyFill("T100C", true, 10, 5, models.Greeks{})
	require.NoError(t, err)
	assert.InDelta(t, 1_000_000-50-0.2, tr.Risk().Cash, 1e-9)
}

func TestApplyFillErrorsLeaveStateUntouched(t *testing.T) {
	tr := newTracker(t, defaultTrackerConfig())

	_, err := tr.ApplyFill("ZZZ", true, 1, 1, models.Greeks{})
	assert.ErrorIs(t, err, models.ErrUnknownSecurity)
	_, err = tr.ApplyFill("T100C", true, 0, 1, models.Greeks{})
	assert.ErrorIs(t, err, models.ErrInvalidFill)
	_, err = tr.ApplyFill("T100C", true, 1, -1, models.Greeks{})
	assert.ErrorIs(t, err, models.ErrInvalidFill)

	assert.Empty(t, tr.Positions())
	assert.Equal(t, models.PortfolioRisk{Cash: 1_000_000}, tr.Risk())
}

func TestCheckLimits(t *testing.T) {
	cfg := defaultTrackerConfig()
	cfg.DeltaMax = 10
	cfg.VegaMax = 100
	tr := newTracker(t, cfg)

	_, err := tr.ApplyFill("T100C", false, 20, 5, models.Greeks{Delta: 0.6, Vega: 4})
	require.NoError(t, err)

	st := tr.CheckLimits()
	assert.True(t, st.DeltaBreached)
	assert.False(t, st.VegaBreached)
	assert.InDelta(t, -12, st.Delta, 1e-12)
	assert.True(t, st.Any())

	greek, worse := tr.WouldWorsen(st, models.Greeks{Delta: -1})
	assert.True(t, worse)
	assert.Equal(t, "delta", greek)
	_, worse = tr.WouldWorsen(st, models.Greeks{Delta: 3, Vega: 50})
	assert.False(t, worse)
}

func TestHeadroom(t *testing.T) {
	cfg := defaultTrackerConfig()
	cfg.OptionsLimit = 100
	cfg.FuturesLimit = 30
	tr := newTracker(t, cfg)

	_, err := tr.ApplyFill("T105C", false, 40, 3, models.Greeks{})
	require.NoError(t, err)
	_, err = tr.ApplyFill("T100C", true, 25, 5, models.Greeks{})
	require.NoError(t, err)

	assert.Equal(t, int64(35), tr.Headroom("T100C", true))
	assert.Equal(t, int64(85), tr.Headroom("T100C", false))
	assert.Equal(t, int64(30), tr.Headroom(models.FutureTicker, true))
	assert.Zero(t, tr.Headroom("ZZZ", true))
}

func TestReconcileReportsDrift(t *testing.T) {
	tr := newTracker(t, defaultTrackerConfig())
	_, err := tr.ApplyFill("T100C", true, 10, 5, models.Greeks{})
	require.NoError(t, err)
	_, err = tr.ApplyFill(models.FutureTicker, true, 3, 100, models.FutureGreeks)
	require.NoError(t, err)

	alerts := tr.Reconcile(map[string]int64{"T100C": 10, "T105C": 5})
	require.Len(t, alerts, 2)
	assert.Equal(t, "T105C", alerts[0].Ticker)
	assert.Equal(t, models.FutureTicker, alerts[1].Ticker)
	assert.Equal(t, models.AlertPositionDrift, alerts[1].Kind)

	p, ok := tr.Position(models.FutureTicker)
	require.True(t, ok)
	assert.Equal(t, int64(3), p.Quantity)
}
