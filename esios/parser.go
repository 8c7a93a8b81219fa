package esios

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/angas/pvpc-go/hours"
	"github.com/angas/pvpc-go/types"
)

var geoZoneNames = map[int]string{
	3:    "España",
	8741: "Península",
	8742: "Canarias",
	8743: "Baleares",
	8744: "Ceuta",
	8745: "Melilla",
}

type publicArchive struct {
	PVPC []map[string]string `json:"PVPC"`
}

// parsePublicArchive normalizes the daily PVPC archive payload: rows of
// string fields with comma decimals in €/MWh, one per hour from local
// midnight of the "Dia" field.
func parsePublicArchive(r io.Reader, archiveKey string, localLoc *time.Location) (*types.Response, error) {
	var payload publicArchive
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode archive response: %w", err)
	}
	if len(payload.PVPC) == 0 {
		return nil, fmt.Errorf("empty PVPC archive payload")
	}

	dayStart, err := time.ParseInLocation("02/01/2006", payload.PVPC[0]["Dia"], localLoc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse archive day: %w", err)
	}
	tsInit := dayStart.UTC()

	series := make(types.Series, len(payload.PVPC))
	for i, row := range payload.PVPC {
		raw, ok := row[archiveKey]
		if !ok {
			return nil, fmt.Errorf("archive row %d is missing key %q", i, archiveKey)
		}
		v, err := parseCommaDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("archive row %d: %w", i, err)
		}
		series[tsInit.Add(time.Duration(i)*time.Hour)] = megaToKilo(v)
	}

	return &types.Response{
		Name:       "PVPC ESIOS",
		DataID:     "legacy",
		LastUpdate: time.Now().UTC().Truncate(time.Second),
		Unit:       "€/kWh",
		Series:     map[types.SensorKey]types.Series{types.KeyPVPC: series},
	}, nil
}

type indicatorPayload struct {
	Indicator struct {
		Name     string `json:"name"`
		ID       int    `json:"id"`
		Magnitud []struct {
			Name string `json:"name"`
		} `json:"magnitud"`
		Tiempo []struct {
			Name string `json:"name"`
		} `json:"tiempo"`
		Values []struct {
			Value    float64 `json:"value"`
			Datetime string  `json:"datetime"`
			GeoID    int     `json:"geo_id"`
		} `json:"values"`
	} `json:"indicator"`
}

// parseIndicator normalizes a token-API indicator payload. Values come
// grouped per geo zone in €/MWh with zone-aware ISO timestamps.
func parseIndicator(r io.Reader, key types.SensorKey, geoZone string, localLoc *time.Location) (*types.Response, error) {
	var payload indicatorPayload
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode indicator response: %w", err)
	}
	ind := payload.Indicator

	unitParts := make([]string, 0, len(ind.Magnitud))
	for _, mag := range ind.Magnitud {
		unitParts = append(unitParts, mag.Name)
	}
	timeParts := make([]string, 0, len(ind.Tiempo))
	for _, t := range ind.Tiempo {
		timeParts = append(timeParts, t.Name)
	}
	unit := strings.Join(unitParts, "•") + "/" + strings.Join(timeParts, "•")

	// The API stamps values in the Madrid reference zone regardless of
	// the requested geo zone; shift them to the configured local zone.
	offset := timezoneOffset(localLoc)

	zones := make(map[string]types.Series)
	for _, item := range ind.Values {
		name, ok := geoZoneNames[item.GeoID]
		if !ok {
			continue
		}
		ts, err := time.Parse(time.RFC3339, item.Datetime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse indicator timestamp %q: %w", item.Datetime, err)
		}
		if zones[name] == nil {
			zones[name] = make(types.Series)
		}
		zones[name][ts.UTC().Add(offset)] = megaToKilo(item.Value)
	}

	series, ok := zones[geoZone]
	if !ok {
		if series, ok = zones["Península"]; !ok {
			series = zones["España"]
		}
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("indicator %d has no values for zone %s", ind.ID, geoZone)
	}

	return &types.Response{
		Name:       ind.Name,
		DataID:     strconv.Itoa(ind.ID),
		LastUpdate: time.Now().UTC().Truncate(time.Second),
		Unit:       unit,
		Series:     map[types.SensorKey]types.Series{key: series},
	}, nil
}

// timezoneOffset is the fixed offset between loc and the Madrid
// reference zone, measured at a DST-free instant.
func timezoneOffset(loc *time.Location) time.Duration {
	refTs := time.Date(2021, 1, 1, 0, 0, 0, 0, hours.Reference())
	locTs := time.Date(2021, 1, 1, 0, 0, 0, 0, loc)
	return locTs.Sub(refTs)
}

func parseCommaDecimal(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse decimal %q: %w", raw, err)
	}
	return v, nil
}

// megaToKilo converts €/MWh to €/kWh at the declared price precision.
func megaToKilo(v float64) float64 {
	return math.Round(v/1000.0*1e5) / 1e5
}
