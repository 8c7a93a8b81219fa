// Package pvpc coordinates the incremental price-window cache: it
// decides per indicator whether a remote fetch is due, fans fetches out
// concurrently, merges results and derives the per-hour states and
// attributes the monitoring host consumes.
package pvpc

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/angas/pvpc-go/esios"
	"github.com/angas/pvpc-go/hours"
	"github.com/angas/pvpc-go/prices"
	"github.com/angas/pvpc-go/tariff"
	"github.com/angas/pvpc-go/types"
	"github.com/angas/pvpc-go/types/maybe"
)

const (
	DefaultPowerKW = 3.3
	DefaultTimeout = 5 * time.Second
)

type Options struct {
	Logger        *slog.Logger
	Tariff        string // defaults to 2.0TD
	LocalTimezone string // defaults to the provider reference zone
	Power         float64
	PowerValley   float64
	Timeout       time.Duration
	DataSource    types.DataSource
	APIToken      string
	SensorKeys    []types.SensorKey
	// Fetcher overrides the esios client, used by tests.
	Fetcher types.PriceFetcher
	// Holidays overrides the built-in national calendar.
	Holidays tariff.HolidayCalendar
}

// Handler is the per-installation data handler. The cached series
// themselves live in the ApiData value owned by the caller; the handler
// only keeps derived states and attributes plus fetch bookkeeping.
type Handler struct {
	logger       *slog.Logger
	fetcher      types.PriceFetcher
	client       *esios.Client
	tariff       string
	ceutaMelilla bool
	localLoc     *time.Location
	power        float64
	powerValley  float64
	timeout      time.Duration
	source       types.DataSource
	engine       *tariff.Engine

	mu         sync.Mutex
	sensorKeys map[types.SensorKey]bool
	lastFetch  map[types.SensorKey]time.Time
	states     map[types.SensorKey]maybe.Maybe[float64]
	attributes map[types.SensorKey]map[string]any
}

// New validates the configuration and builds a handler. An unknown
// tariff or timezone is a terminal misconfiguration and fails here, not
// deep inside an update cycle.
func New(opts Options) (*Handler, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("module", "pvpc")
	}
	if opts.Tariff == "" {
		opts.Tariff = types.Tariff20TD
	}
	if !types.ValidTariff(opts.Tariff) {
		return nil, fmt.Errorf("unknown tariff: %q", opts.Tariff)
	}

	localLoc := hours.Reference()
	if opts.LocalTimezone != "" {
		var err error
		if localLoc, err = time.LoadLocation(opts.LocalTimezone); err != nil {
			return nil, fmt.Errorf("failed to load timezone %s: %w", opts.LocalTimezone, err)
		}
	}

	if opts.Power == 0 {
		opts.Power = DefaultPowerKW
	}
	if opts.PowerValley == 0 {
		opts.PowerValley = DefaultPowerKW
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	source := opts.DataSource
	if source == "" {
		source = types.SourcePublic
	}
	if opts.APIToken != "" {
		source = types.SourceToken
	}
	if source == types.SourceToken && opts.APIToken == "" {
		return nil, fmt.Errorf("data source %s requires an API token", source)
	}

	h := &Handler{
		logger:       opts.Logger,
		tariff:       opts.Tariff,
		ceutaMelilla: opts.Tariff == types.Tariff20TDCM,
		localLoc:     localLoc,
		power:        opts.Power,
		powerValley:  opts.PowerValley,
		timeout:      opts.Timeout,
		source:       source,
		engine:       tariff.NewEngine(opts.Logger.With("module", "tariff"), opts.Holidays),
		sensorKeys:   make(map[types.SensorKey]bool),
		lastFetch:    make(map[types.SensorKey]time.Time),
		states:       make(map[types.SensorKey]maybe.Maybe[float64]),
		attributes:   make(map[types.SensorKey]map[string]any),
	}

	if opts.Fetcher != nil {
		h.fetcher = opts.Fetcher
	} else {
		h.client = esios.New(opts.Logger.With("module", "esios"),
			source, opts.APIToken, opts.Tariff, localLoc, opts.Timeout)
		h.fetcher = h.client
	}

	keys := opts.SensorKeys
	if len(keys) == 0 {
		keys = []types.SensorKey{types.KeyPVPC}
	}
	for _, key := range keys {
		h.UpdateActiveSensors(key, true)
	}
	return h, nil
}

// UsingPrivateAPI reports whether the token-based source is active.
func (h *Handler) UsingPrivateAPI() bool {
	return h.source == types.SourceToken
}

// Attribution returns the data-source attribution string.
func (h *Handler) Attribution() string {
	return types.Attributions[h.source]
}

// UpdateActiveSensors adds or removes an indicator from the active set.
// Idempotent; removing an indicator stops future fetches but does not
// discard its cached series.
func (h *Handler) UpdateActiveSensors(key types.SensorKey, enabled bool) {
	if !types.IsDownloadable(key) {
		h.logger.Warn("ignoring unknown indicator", slog.String("sensor", string(key)))
		return
	}
	if key != types.KeyPVPC && h.source == types.SourcePublic {
		h.logger.Warn("indicator requires the token API, not enabling",
			slog.String("sensor", string(key)))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if enabled {
		h.sensorKeys[key] = true
	} else {
		delete(h.sensorKeys, key)
	}
}

// State returns the current price of an indicator, invalid when the
// reference hour is not cached.
func (h *Handler) State(key types.SensorKey) maybe.Maybe[float64] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.states[key]
}

// States returns a snapshot of all sensor states.
func (h *Handler) States() map[types.SensorKey]maybe.Maybe[float64] {
	h.mu.Lock()
	defer h.mu.Unlock()
	snapshot := make(map[types.SensorKey]maybe.Maybe[float64], len(h.states))
	for key, state := range h.states {
		snapshot[key] = state
	}
	return snapshot
}

// Attributes returns a snapshot of the attribute map of one indicator.
func (h *Handler) Attributes(key types.SensorKey) map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	attrs := make(map[string]any, len(h.attributes[key]))
	for k, v := range h.attributes[key] {
		attrs[k] = v
	}
	return attrs
}

// CheckAPIToken probes the token API with one download for today.
// An invalid token yields false without raising.
func (h *Handler) CheckAPIToken(ctx context.Context, now time.Time, token string) bool {
	if token != "" && h.client != nil {
		h.client.SetToken(token)
		h.source = types.SourceToken
	}
	localRefNow := hours.Utc(now).In(hours.Reference())
	resp, err := h.download(ctx, types.KeyPVPC, localRefNow)
	if err != nil {
		return false
	}
	return resp != nil
}

// ProcessStateAndAttributes recomputes the state and attribute map of
// one indicator for the given reference time. It prunes expired price
// windows on the way and returns whether the current price is
// available. Absence is a normal outcome, not an error.
func (h *Handler) ProcessStateAndAttributes(data *types.ApiData, key types.SensorKey, now time.Time) bool {
	utcTime := hours.UtcHour(now)
	localRef := utcTime.In(hours.Reference())

	attrs := map[string]any{"sensor_id": string(key)}
	if spec, ok := types.SensorSpecFor(key); ok {
		attrs["data_id"] = spec.DataID
	}

	series := data.Sensors[key]
	if len(series) > 25 && localRef.Hour() < 20 {
		// Yesterday evening's next-day window has become today; trim
		// everything before local midnight of the reference day.
		series.Prune(hours.LocalMidnight(localRef, hours.Reference()).UTC())
	}

	price, ok := series[utcTime]
	if !ok {
		data.Availability[key] = false
		h.mu.Lock()
		h.states[key] = maybe.None[float64]()
		h.attributes[key] = attrs
		h.mu.Unlock()
		return false
	}
	data.Availability[key] = true

	for k, v := range prices.MakeSensorAttributes(key, series, utcTime, h.localLoc) {
		attrs[k] = v
	}

	if key == types.KeyPVPC {
		localTime := utcTime.In(h.localLoc)
		current, next, toNext := h.engine.CurrentAndNext(localTime, h.ceutaMelilla)
		power := h.power
		if current == tariff.P3 {
			power = h.powerValley
		}
		attrs["tariff"] = h.tariff
		attrs["period"] = string(current)
		attrs["available_power"] = int(1000 * power)
		attrs["next_period"] = string(next)
		attrs["hours_to_next_period"] = int(toNext.Hours())
	}

	h.mu.Lock()
	h.states[key] = maybe.Some(price)
	h.attributes[key] = attrs
	h.mu.Unlock()
	return true
}

func (h *Handler) activeKeys() []types.SensorKey {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]types.SensorKey, 0, len(h.sensorKeys))
	for key := range h.sensorKeys {
		keys = append(keys, key)
	}
	return keys
}

// ActiveSensorKeys returns the tracked indicators in stable order.
func (h *Handler) ActiveSensorKeys() []types.SensorKey {
	keys := h.activeKeys()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
