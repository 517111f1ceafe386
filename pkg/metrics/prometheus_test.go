package metrics

import (
	"testing"

	"OptEdge/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg)

	r.RecordEvent("quote_update")
	r.RecordEvent("quote_update")
	r.RecordSignal("bollinger", "submit_buy")
	r.RecordImpliedVol("T100C", 0.43)
	r.RecordPortfolio(models.PortfolioRisk{Greeks: models.Greeks{Delta: 12, Vega: 300}, Cash: 999_000, TradeCount: 3})

	assert.Equal(t, 2.0, testutil.ToFloat64(r.eventsTotal.WithLabelValues("quote_update")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.signalsTotal.WithLabelValues("bollinger", "submit_buy")))
	assert.Equal(t, 0.43, testutil.ToFloat64(r.impliedVol.WithLabelValues("T100C")))
	assert.Equal(t, 300.0, testutil.ToFloat64(r.greeks.WithLabelValues("vega")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.trades))
}
