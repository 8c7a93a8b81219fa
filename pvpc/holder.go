package pvpc

import (
	"sync"

	"github.com/angas/pvpc-go/types"
)

// DataHolder keeps the ApiData aggregate between polling cycles for
// callers that run cycles from a scheduler. Cycles must run one at a
// time; the holder only guards the handover, not concurrent cycles.
type DataHolder struct {
	mu   sync.Mutex
	data *types.ApiData
}

func NewDataHolder() *DataHolder {
	return &DataHolder{}
}

// Get returns the current aggregate, nil before the first cycle.
func (d *DataHolder) Get() *types.ApiData {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.data
}

// Set stores the aggregate returned by a cycle.
func (d *DataHolder) Set(data *types.ApiData) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data = data
}
