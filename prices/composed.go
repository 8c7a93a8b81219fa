package prices

import (
	"math"

	"github.com/angas/pvpc-go/types"
)

// AddComposedSensors synthesizes price series derived from multiple
// indicators. The indexed tariff estimate is PVPC minus the market
// adjustment, over the hour slots both series cover.
func AddComposedSensors(data *types.ApiData) {
	if !data.Availability[types.KeyPVPC] || !data.Availability[types.KeyMAG] {
		return
	}
	pvpc := data.Sensors[types.KeyPVPC]
	mag := data.Sensors[types.KeyMAG]

	indexed := make(types.Series)
	for ts, price := range pvpc {
		if adj, ok := mag[ts]; ok {
			indexed[ts] = math.Round((price-adj)*1e5) / 1e5
		}
	}
	if len(indexed) == 0 {
		return
	}
	data.Sensors[types.KeyIndexed] = indexed
	data.Availability[types.KeyIndexed] = true
}
