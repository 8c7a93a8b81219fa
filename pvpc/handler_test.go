package pvpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/angas/pvpc-go/esios"
	"github.com/angas/pvpc-go/hours"
	"github.com/angas/pvpc-go/types"
)

type fetchCall struct {
	key types.SensorKey
	day string
}

type stubFetcher struct {
	mu        sync.Mutex
	calls     []fetchCall
	responses map[string]types.Series // "KEY 2006-01-02" -> series
	errFor    map[types.SensorKey]error
}

func (f *stubFetcher) DownloadDay(ctx context.Context, key types.SensorKey, day time.Time) (*types.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	date := day.In(hours.Reference()).Format("2006-01-02")
	f.calls = append(f.calls, fetchCall{key: key, day: date})
	if err := f.errFor[key]; err != nil {
		return nil, err
	}
	series, ok := f.responses[fmt.Sprintf("%s %s", key, date)]
	if !ok {
		return nil, nil
	}
	return &types.Response{
		Name:   string(key),
		Unit:   "€/kWh",
		Series: map[types.SensorKey]types.Series{key: series},
	}, nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(t *testing.T, fetcher types.PriceFetcher, opts Options) *Handler {
	t.Helper()
	opts.Logger = testLogger()
	opts.Fetcher = fetcher
	h, err := New(opts)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return h
}

// localDaySeries builds 24 hourly prices for one local calendar day.
func localDaySeries(year int, month time.Month, day int, base float64) types.Series {
	s := make(types.Series, 24)
	start := time.Date(year, month, day, 0, 0, 0, 0, hours.Reference())
	for h := 0; h < 24; h++ {
		s[start.Add(time.Duration(h)*time.Hour).UTC()] = base + float64(h)/1000
	}
	return s
}

func TestNewRejectsUnknownTariff(t *testing.T) {
	_, err := New(Options{Logger: testLogger(), Tariff: "3.0TD"})
	if err == nil {
		t.Fatal("expected error for unknown tariff")
	}
}

func TestNewRequiresTokenForTokenSource(t *testing.T) {
	_, err := New(Options{Logger: testLogger(), DataSource: types.SourceToken})
	if err == nil {
		t.Fatal("expected error for token source without token")
	}
}

func TestProcessStateEmptySeriesUnavailable(t *testing.T) {
	h := newTestHandler(t, &stubFetcher{}, Options{})
	now := time.Date(2023, 6, 15, 10, 0, 0, 0, hours.Reference())
	data := types.NewApiData(types.SourcePublic, now.UTC())
	data.Sensors[types.KeyPVPC] = make(types.Series)

	if h.ProcessStateAndAttributes(data, types.KeyPVPC, now) {
		t.Error("expected unavailable state on empty series")
	}
	if data.Availability[types.KeyPVPC] {
		t.Error("expected availability false")
	}
	if h.State(types.KeyPVPC).IsValid() {
		t.Error("expected invalid state")
	}
}

func TestProcessStateAvailable(t *testing.T) {
	h := newTestHandler(t, &stubFetcher{}, Options{})
	now := time.Date(2023, 6, 15, 10, 0, 0, 0, hours.Reference())
	data := types.NewApiData(types.SourcePublic, now.UTC())
	series := localDaySeries(2023, 6, 15, 0.1)
	data.Sensors[types.KeyPVPC] = series

	if !h.ProcessStateAndAttributes(data, types.KeyPVPC, now) {
		t.Fatal("expected available state")
	}
	expected := series[hours.UtcHour(now)]
	if got := h.State(types.KeyPVPC); !got.IsValid() || got.Value() != expected {
		t.Errorf("expected state %f, got %v", expected, got)
	}
	attrs := h.Attributes(types.KeyPVPC)
	if got := attrs["price_10h"]; got != expected {
		t.Errorf("expected price_10h %f, got %v", expected, got)
	}
}

func TestProcessStateTariffAttributes(t *testing.T) {
	h := newTestHandler(t, &stubFetcher{}, Options{Power: 4.6, PowerValley: 5.75})
	// Wednesday 11h local: peak until the 14h shoulder.
	now := time.Date(2023, 6, 14, 11, 0, 0, 0, hours.Reference())
	data := types.NewApiData(types.SourcePublic, now.UTC())
	data.Sensors[types.KeyPVPC] = localDaySeries(2023, 6, 14, 0.1)

	if !h.ProcessStateAndAttributes(data, types.KeyPVPC, now) {
		t.Fatal("expected available state")
	}
	attrs := h.Attributes(types.KeyPVPC)
	if got := attrs["period"]; got != "P1" {
		t.Errorf("expected period P1, got %v", got)
	}
	if got := attrs["next_period"]; got != "P2" {
		t.Errorf("expected next_period P2, got %v", got)
	}
	if got := attrs["hours_to_next_period"]; got != 3 {
		t.Errorf("expected 3 hours to next period, got %v", got)
	}
	if got := attrs["available_power"]; got != 4600 {
		t.Errorf("expected available_power 4600, got %v", got)
	}
	if got := attrs["tariff"]; got != types.Tariff20TD {
		t.Errorf("expected tariff 2.0TD, got %v", got)
	}
}

func TestProcessStateValleyPower(t *testing.T) {
	h := newTestHandler(t, &stubFetcher{}, Options{Power: 4.6, PowerValley: 5.75})
	// Saturday is full valley.
	now := time.Date(2023, 6, 17, 12, 0, 0, 0, hours.Reference())
	data := types.NewApiData(types.SourcePublic, now.UTC())
	data.Sensors[types.KeyPVPC] = localDaySeries(2023, 6, 17, 0.1)

	h.ProcessStateAndAttributes(data, types.KeyPVPC, now)
	if got := h.Attributes(types.KeyPVPC)["available_power"]; got != 5750 {
		t.Errorf("expected valley power 5750, got %v", got)
	}
}

func TestProcessStatePrunesExpiredWindow(t *testing.T) {
	h := newTestHandler(t, &stubFetcher{}, Options{})
	series := localDaySeries(2023, 6, 14, 0.1)
	series.Merge(localDaySeries(2023, 6, 15, 0.2))

	now := time.Date(2023, 6, 15, 10, 0, 0, 0, hours.Reference())
	data := types.NewApiData(types.SourcePublic, now.UTC())
	data.Sensors[types.KeyPVPC] = series

	h.ProcessStateAndAttributes(data, types.KeyPVPC, now)

	if len(series) != 24 {
		t.Fatalf("expected 24 entries after prune, got %d", len(series))
	}
	earliest := series.SortedKeys()[0]
	if !hours.SameLocalDate(earliest, now, hours.Reference()) {
		t.Errorf("earliest entry %v is not on the reference day", earliest)
	}
}

func TestUpdateAllFetchesTodayOnEmptyCache(t *testing.T) {
	now := time.Date(2023, 6, 15, 10, 0, 0, 0, hours.Reference())
	fetcher := &stubFetcher{responses: map[string]types.Series{
		"PVPC 2023-06-15": localDaySeries(2023, 6, 15, 0.1),
	}}
	h := newTestHandler(t, fetcher, Options{})

	data, err := h.UpdateAll(context.Background(), nil, now)
	if err != nil {
		t.Fatalf("UpdateAll() error: %v", err)
	}
	if fetcher.callCount() != 1 {
		t.Errorf("expected 1 fetch, got %d", fetcher.callCount())
	}
	if len(data.Sensors[types.KeyPVPC]) != 24 {
		t.Errorf("expected 24 cached prices, got %d", len(data.Sensors[types.KeyPVPC]))
	}
	if !data.Availability[types.KeyPVPC] {
		t.Error("expected PVPC available")
	}
	if !data.LastUpdate.Equal(now.UTC()) {
		t.Errorf("expected last update %v, got %v", now.UTC(), data.LastUpdate)
	}
}

func TestUpdateAllEveningFetchesOnlyTomorrow(t *testing.T) {
	now := time.Date(2023, 6, 15, 20, 0, 0, 0, hours.Reference())
	fetcher := &stubFetcher{responses: map[string]types.Series{
		"PVPC 2023-06-16": localDaySeries(2023, 6, 16, 0.2),
	}}
	h := newTestHandler(t, fetcher, Options{})

	data := types.NewApiData(types.SourcePublic, now.UTC())
	data.Sensors[types.KeyPVPC] = localDaySeries(2023, 6, 15, 0.1)

	data, err := h.UpdateAll(context.Background(), data, now)
	if err != nil {
		t.Fatalf("UpdateAll() error: %v", err)
	}
	if fetcher.callCount() != 1 {
		t.Fatalf("expected exactly 1 fetch (tomorrow), got %d", fetcher.callCount())
	}
	if got := fetcher.calls[0].day; got != "2023-06-16" {
		t.Errorf("expected fetch for 2023-06-16, got %s", got)
	}
	if n := len(data.Sensors[types.KeyPVPC]); n != 48 {
		t.Errorf("expected 48 cached prices, got %d", n)
	}
}

func TestUpdateAllMorningSkipsWhenTodayCached(t *testing.T) {
	now := time.Date(2023, 6, 15, 10, 0, 0, 0, hours.Reference())
	fetcher := &stubFetcher{}
	h := newTestHandler(t, fetcher, Options{})

	data := types.NewApiData(types.SourcePublic, now.UTC())
	data.Sensors[types.KeyPVPC] = localDaySeries(2023, 6, 15, 0.1)

	if _, err := h.UpdateAll(context.Background(), data, now); err != nil {
		t.Fatalf("UpdateAll() error: %v", err)
	}
	if fetcher.callCount() != 0 {
		t.Errorf("expected zero fetches, got %d", fetcher.callCount())
	}
}

func TestUpdateAllEveningSkipsWhenBothDaysCached(t *testing.T) {
	now := time.Date(2023, 6, 15, 21, 0, 0, 0, hours.Reference())
	fetcher := &stubFetcher{}
	h := newTestHandler(t, fetcher, Options{})

	series := localDaySeries(2023, 6, 15, 0.1)
	series.Merge(localDaySeries(2023, 6, 16, 0.2))
	data := types.NewApiData(types.SourcePublic, now.UTC())
	data.Sensors[types.KeyPVPC] = series

	if _, err := h.UpdateAll(context.Background(), data, now); err != nil {
		t.Fatalf("UpdateAll() error: %v", err)
	}
	if fetcher.callCount() != 0 {
		t.Errorf("expected zero fetches, got %d", fetcher.callCount())
	}
}

func TestUpdateAllFailedFetchLeavesSeriesUntouched(t *testing.T) {
	now := time.Date(2023, 6, 15, 10, 0, 0, 0, hours.Reference())
	fetcher := &stubFetcher{errFor: map[types.SensorKey]error{
		types.KeyPVPC: fmt.Errorf("connection refused"),
	}}
	h := newTestHandler(t, fetcher, Options{})

	data, err := h.UpdateAll(context.Background(), nil, now)
	if err != nil {
		t.Fatalf("expected transient error absorbed, got %v", err)
	}
	if len(data.Sensors[types.KeyPVPC]) != 0 {
		t.Errorf("expected untouched empty series")
	}
	if data.Availability[types.KeyPVPC] {
		t.Error("expected PVPC unavailable")
	}
}

func TestUpdateAllAuthFailureKeepsSiblingResults(t *testing.T) {
	now := time.Date(2023, 6, 15, 10, 0, 0, 0, hours.Reference())
	fetcher := &stubFetcher{
		responses: map[string]types.Series{
			"PVPC 2023-06-15": localDaySeries(2023, 6, 15, 0.1),
		},
		errFor: map[types.SensorKey]error{
			types.KeyInjection: fmt.Errorf("[INJECTION] unauthorized: %w", esios.ErrBadAPIToken),
		},
	}
	h := newTestHandler(t, fetcher, Options{
		APIToken:   "secret",
		SensorKeys: []types.SensorKey{types.KeyPVPC, types.KeyInjection},
	})

	data, err := h.UpdateAll(context.Background(), nil, now)
	if !errors.Is(err, esios.ErrBadAPIToken) {
		t.Fatalf("expected ErrBadAPIToken, got %v", err)
	}
	if !data.Availability[types.KeyPVPC] {
		t.Error("expected sibling PVPC result merged despite auth failure")
	}
	if len(data.Sensors[types.KeyPVPC]) != 24 {
		t.Errorf("expected 24 PVPC prices, got %d", len(data.Sensors[types.KeyPVPC]))
	}
	if data.Availability[types.KeyInjection] {
		t.Error("expected INJECTION unavailable")
	}
}

func TestUpdateActiveSensorsIdempotent(t *testing.T) {
	h := newTestHandler(t, &stubFetcher{}, Options{APIToken: "secret"})
	h.UpdateActiveSensors(types.KeyMAG, true)
	h.UpdateActiveSensors(types.KeyMAG, true)
	if n := len(h.activeKeys()); n != 2 {
		t.Errorf("expected 2 active sensors, got %d", n)
	}
	h.UpdateActiveSensors(types.KeyMAG, false)
	h.UpdateActiveSensors(types.KeyMAG, false)
	if n := len(h.activeKeys()); n != 1 {
		t.Errorf("expected 1 active sensor, got %d", n)
	}
}

func TestUpdateActiveSensorsPublicSourceOnlyPVPC(t *testing.T) {
	h := newTestHandler(t, &stubFetcher{}, Options{})
	h.UpdateActiveSensors(types.KeyInjection, true)
	if n := len(h.activeKeys()); n != 1 {
		t.Errorf("expected injection rejected on public source, got %d sensors", n)
	}
}

func TestCheckAPIToken(t *testing.T) {
	now := time.Date(2023, 6, 15, 10, 0, 0, 0, hours.Reference())

	good := &stubFetcher{responses: map[string]types.Series{
		"PVPC 2023-06-15": localDaySeries(2023, 6, 15, 0.1),
	}}
	h := newTestHandler(t, good, Options{APIToken: "secret"})
	if !h.CheckAPIToken(context.Background(), now, "") {
		t.Error("expected token check to pass")
	}

	bad := &stubFetcher{errFor: map[types.SensorKey]error{
		types.KeyPVPC: fmt.Errorf("[PVPC] unauthorized: %w", esios.ErrBadAPIToken),
	}}
	h = newTestHandler(t, bad, Options{APIToken: "secret"})
	if h.CheckAPIToken(context.Background(), now, "") {
		t.Error("expected token check to fail")
	}
}

func TestNeedImmediateUpdate(t *testing.T) {
	h := newTestHandler(t, &stubFetcher{}, Options{})
	now := time.Date(2023, 6, 15, 10, 0, 0, 0, hours.Reference())

	if !h.NeedImmediateUpdate(nil, now) {
		t.Error("expected immediate update with no data")
	}

	data := types.NewApiData(types.SourcePublic, now.UTC())
	data.Sensors[types.KeyPVPC] = localDaySeries(2023, 6, 15, 0.1)
	if h.NeedImmediateUpdate(data, now) {
		t.Error("expected no immediate update with next hour cached")
	}

	late := time.Date(2023, 6, 15, 23, 30, 0, 0, hours.Reference())
	if !h.NeedImmediateUpdate(data, late) {
		t.Error("expected immediate update when next hour is missing")
	}
}

func TestEnabledSensorKeys(t *testing.T) {
	keys := EnabledSensorKeys(false, nil)
	if len(keys) != 1 || keys[0] != types.KeyPVPC {
		t.Errorf("expected public access limited to PVPC, got %v", keys)
	}

	keys = EnabledSensorKeys(true, []types.SensorKey{types.KeyOMIE})
	if len(keys) != 3 {
		t.Errorf("expected 3 keys with OMIE disabled, got %v", keys)
	}
	for _, key := range keys {
		if key == types.KeyOMIE {
			t.Error("expected OMIE excluded")
		}
	}
}

func TestSensorUniqueID(t *testing.T) {
	if got := SensorUniqueID("abc123", types.KeyPVPC); got != "abc123" {
		t.Errorf("expected bare installation id for PVPC, got %q", got)
	}
	if got := SensorUniqueID("abc123", types.KeyInjection); got != "abc123_INJECTION" {
		t.Errorf("unexpected unique id: %q", got)
	}
}
