package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"OptEdge/internal/domain/models"
	"OptEdge/pkg/logger"
	"OptEdge/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []models.Event
	fail   bool
}

func (h *recordingHandler) Handle(_ context.Context, ev models.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	if h.fail {
		return errors.New("rejected")
	}
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func quote(ticker string, last float64) models.Event {
	return models.Event{Type: models.EventQuoteUpdate, Quote: &models.QuoteUpdate{Ticker: ticker, LastPrice: last}}
}

func TestPipelinePreservesOrder(t *testing.T) {
	h := &recordingHandler{}
	p := NewEventPipeline(h, metrics.Nop{}, logger.Nop(), WithBufferSize(4))
	p.Start(context.Background())
	defer p.Stop()

	for i := 1; i <= 20; i++ {
		require.NoError(t, p.Submit(context.Background(), quote("T100C", float64(i))))
	}
	require.Eventually(t, func() bool { return h.count() == 20 }, time.Second, 5*time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, ev := range h.events {
		assert.Equal(t, float64(i+1), ev.Quote.LastPrice)
	}
}

func TestPipelineRejectsInvalidEvents(t *testing.T) {
	p := NewEventPipeline(&recordingHandler{}, metrics.Nop{}, logger.Nop())
	err := p.Submit(context.Background(), models.Event{Type: models.EventTrade})
	assert.ErrorIs(t, err, models.ErrInvalidEvent)
	assert.Zero(t, p.Depth())
}

func TestPipelineThrottlesQuotesPerTicker(t *testing.T) {
	p := NewEventPipeline(&recordingHandler{}, metrics.Nop{}, logger.Nop(), WithMaxRPS(1))
	now := time.Now()
	ev := quote("T100C", 5)
	ev.ReceivedAt = now
	require.NoError(t, p.Submit(context.Background(), ev))
	ev.ReceivedAt = now.Add(100 * time.Millisecond)
	require.NoError(t, p.Submit(context.Background(), ev))
	other := quote("T105C", 3)
	other.ReceivedAt = now
	require.NoError(t, p.Submit(context.Background(), other))

	assert.Equal(t, 2, p.Depth())
}

func TestPipelineKeepsRunningAfterHandlerError(t *testing.T) {
	h := &recordingHandler{fail: true}
	p := NewEventPipeline(h, metrics.Nop{}, logger.Nop())
	p.Start(context.Background())
	defer p.Stop()

	require.NoError(t, p.Submit(context.Background(), quote("ZZZ", 1)))
	require.NoError(t, p.Submit(context.Background(), quote("ZZZ", 2)))
	assert.Eventually(t, func() bool { return h.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestPipelineSubmitAfterStop(t *testing.T) {
	p := NewEventPipeline(&recordingHandler{}, metrics.Nop{}, logger.Nop(), WithBufferSize(1))
	p.Start(context.Background())
	p.Stop()

	err := p.Submit(context.Background(), quote("T100C", 1))
	assert.ErrorIs(t, err, ErrPipelineStopped)
	assert.Zero(t, p.Depth())
}
