package selector_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/tarif/internal/clock"
	"github.com/tournevent/tarif/internal/selector"
	"github.com/tournevent/tarif/pkg/tariff"
)

var start = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

type countingInvalidator struct{ n int }

func (c *countingInvalidator) InvalidateAll() { c.n++ }

func unavailable() error {
	return tariff.NewProviderError("yalidine", tariff.CodeHTTPStatus, "boom").WithStatusCode(500)
}

func TestController_StartsProbing(t *testing.T) {
	c := selector.New(selector.WithClock(clock.NewFake(start)))

	assert.Equal(t, selector.SourceProbing, c.Mode().Source)
	assert.True(t, c.Attempt(), "first call is the probe")
}

func TestController_SuccessGoesLive(t *testing.T) {
	fake := clock.NewFake(start)
	c := selector.New(selector.WithClock(fake))

	fake.Advance(time.Minute)
	c.Observe(nil)

	mode := c.Mode()
	assert.Equal(t, selector.SourceLive, mode.Source)
	assert.Equal(t, start.Add(time.Minute), mode.LastUpdated)
}

func TestController_UnavailableDegradesAndStopsLiveCalls(t *testing.T) {
	c := selector.New(selector.WithClock(clock.NewFake(start)))
	c.Observe(nil)

	c.Observe(unavailable())

	assert.Equal(t, selector.SourceDegraded, c.Mode().Source)
	for range 5 {
		assert.False(t, c.Attempt(), "no retries while degraded")
	}
}

func TestController_OtherErrorsDoNotChangeState(t *testing.T) {
	c := selector.New(selector.WithClock(clock.NewFake(start)))
	c.Observe(nil)

	c.Observe(tariff.ErrRateLimitTimeout)
	c.Observe(context.DeadlineExceeded)
	c.Observe(tariff.ErrDestinationNotFound)

	assert.Equal(t, selector.SourceLive, c.Mode().Source)
}

func TestController_ForceReloadSuccess(t *testing.T) {
	caches := &countingInvalidator{}
	var transitions []string
	c := selector.New(
		selector.WithClock(clock.NewFake(start)),
		selector.WithCaches(caches),
		selector.WithTransitionHook(func(from, to selector.Source) {
			transitions = append(transitions, string(from)+">"+string(to))
		}),
	)
	c.Observe(unavailable())

	err := c.ForceReload(context.Background(), func(context.Context) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, selector.SourceLive, c.Mode().Source)
	assert.Equal(t, 1, caches.n)
	assert.Equal(t, []string{"probing>degraded", "degraded>probing", "probing>live"}, transitions)
}

func TestController_ForceReloadFailure(t *testing.T) {
	caches := &countingInvalidator{}
	c := selector.New(selector.WithClock(clock.NewFake(start)), selector.WithCaches(caches))
	c.Observe(unavailable())

	probes := 0
	err := c.ForceReload(context.Background(), func(context.Context) error {
		probes++
		return unavailable()
	})

	assert.Error(t, err)
	assert.Equal(t, 1, probes, "exactly one live call")
	assert.Equal(t, selector.SourceDegraded, c.Mode().Source)
	assert.Zero(t, caches.n, "caches survive a failed reload")
}

func TestController_ReprobeAfter(t *testing.T) {
	fake := clock.NewFake(start)
	c := selector.New(selector.WithClock(fake), selector.WithReprobeAfter(5*time.Minute))
	c.Observe(unavailable())

	assert.False(t, c.Attempt())

	fake.Advance(5 * time.Minute)
	assert.True(t, c.Attempt(), "one call may probe")
	assert.False(t, c.Attempt(), "only one probe in flight")

	c.Observe(unavailable())
	assert.False(t, c.Attempt(), "interval restarts after a failed probe")

	fake.Advance(5 * time.Minute)
	require.True(t, c.Attempt())
	c.Observe(nil)
	assert.Equal(t, selector.SourceLive, c.Mode().Source)
}

func TestController_ReprobeDisabledByDefault(t *testing.T) {
	fake := clock.NewFake(start)
	c := selector.New(selector.WithClock(fake))
	c.Observe(unavailable())

	fake.Advance(24 * time.Hour)
	assert.False(t, c.Attempt())
}

func TestController_DegradedTimestampKeptOnRepeatedFailures(t *testing.T) {
	fake := clock.NewFake(start)
	c := selector.New(selector.WithClock(fake))
	c.Observe(errors.Join(unavailable()))
	first := c.Mode().LastUpdated

	fake.Advance(time.Hour)
	c.Observe(unavailable())

	assert.Equal(t, first, c.Mode().LastUpdated)
}
