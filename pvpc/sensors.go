package pvpc

import (
	"fmt"

	"github.com/angas/pvpc-go/types"
)

// EnabledSensorKeys derives the active indicator set from the access
// level: the public source only serves PVPC, the token source serves
// every downloadable indicator minus the explicitly disabled ones.
func EnabledSensorKeys(usingPrivateAPI bool, disabled []types.SensorKey) []types.SensorKey {
	if !usingPrivateAPI {
		return []types.SensorKey{types.KeyPVPC}
	}
	off := make(map[types.SensorKey]bool, len(disabled))
	for _, key := range disabled {
		off[key] = true
	}
	keys := make([]types.SensorKey, 0, 4)
	for _, key := range []types.SensorKey{types.KeyPVPC, types.KeyInjection, types.KeyMAG, types.KeyOMIE} {
		if !off[key] {
			keys = append(keys, key)
		}
	}
	return keys
}

// SensorUniqueID builds a stable per-installation id for one indicator.
// The PVPC indicator keeps the bare installation id for compatibility
// with older deployments.
func SensorUniqueID(installationID string, key types.SensorKey) string {
	if key == types.KeyPVPC {
		return installationID
	}
	return fmt.Sprintf("%s_%s", installationID, key)
}
