package types

import "time"

// SensorKey identifies one hourly price/quantity series tracked
// independently against the ESIOS API.
type SensorKey string

const (
	// KeyPVPC is the regulated tariff price (the primary series).
	KeyPVPC SensorKey = "PVPC"
	// KeyInjection is the price paid for grid injection (feed-in).
	KeyInjection SensorKey = "INJECTION"
	// KeyMAG is the market adjustment ("mecanismo de ajuste a gas").
	KeyMAG SensorKey = "MAG"
	// KeyOMIE is the wholesale market price.
	KeyOMIE SensorKey = "OMIE"
	// KeyIndexed is a composed series (PVPC - MAG), never downloaded.
	KeyIndexed SensorKey = "INDEXED"
)

// SensorSpec describes a downloadable indicator.
type SensorSpec struct {
	Key    SensorKey
	DataID int // esios indicator id
	// BetterSign is 1 when lower prices are better (consumption) and
	// -1 when higher prices are better (injection).
	BetterSign float64
	// MinRefresh caps how often the indicator is re-fetched. The
	// provider publishes at most twice a day, but not all indicators
	// share the PVPC cadence.
	MinRefresh time.Duration
}

var allSensors = map[SensorKey]SensorSpec{
	KeyPVPC:      {Key: KeyPVPC, DataID: 1001, BetterSign: 1, MinRefresh: 30 * time.Minute},
	KeyInjection: {Key: KeyInjection, DataID: 1739, BetterSign: -1, MinRefresh: time.Hour},
	KeyMAG:       {Key: KeyMAG, DataID: 1900, BetterSign: 1, MinRefresh: time.Hour},
	KeyOMIE:      {Key: KeyOMIE, DataID: 10211, BetterSign: 1, MinRefresh: time.Hour},
}

// SensorSpecFor returns the spec of a downloadable indicator.
func SensorSpecFor(key SensorKey) (SensorSpec, bool) {
	spec, ok := allSensors[key]
	return spec, ok
}

// IsDownloadable reports whether key maps to a remote esios indicator.
func IsDownloadable(key SensorKey) bool {
	_, ok := allSensors[key]
	return ok
}

// BetterSign returns the ranking direction for key. Composed and unknown
// keys rank like consumption prices.
func (k SensorKey) BetterSign() float64 {
	if spec, ok := allSensors[k]; ok {
		return spec.BetterSign
	}
	return 1
}

// DataSource selects which esios access path (and payload normalizer)
// is used. Selection is explicit, never inferred from URLs.
type DataSource string

const (
	// SourcePublic is the free daily-archive download, PVPC only.
	SourcePublic DataSource = "esios_public"
	// SourceToken is the token-authenticated indicator API.
	SourceToken DataSource = "esios"
)

// Attribution per data source, surfaced to the monitoring host.
var Attributions = map[DataSource]string{
	SourcePublic: "Data retrieved from api.esios.ree.es by REE",
	SourceToken:  "Data retrieved from api.esios.ree.es by REE (private token)",
}

const (
	// Tariff20TD is the regulated 2.0TD tariff for the peninsula,
	// Balearic and Canary islands.
	Tariff20TD = "2.0TD"
	// Tariff20TDCM is the 2.0TD variant for Ceuta and Melilla.
	Tariff20TDCM = "2.0TD (Ceuta/Melilla)"
)

// tariffToArchiveKey maps tariff names to the column keys used in the
// public PVPC archive payload.
var tariffToArchiveKey = map[string]string{
	Tariff20TD:   "PCB",
	Tariff20TDCM: "CYM",
}

// ValidTariff reports whether name is a supported tariff.
func ValidTariff(name string) bool {
	_, ok := tariffToArchiveKey[name]
	return ok
}

// ArchiveKeyForTariff returns the public-archive column key for a tariff.
func ArchiveKeyForTariff(name string) string {
	return tariffToArchiveKey[name]
}
