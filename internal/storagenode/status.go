package storagenode

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"walrus/internal/types"
)

// statusWire is the JSON shape of a /status response, mirroring the
// lightweight hex-string-over-JSON convention used for every storage-node
// response that isn't a bulk binary payload.
type statusWire struct {
	Lifecycle            string  `json:"lifecycle"`
	InitialCertifiedEpoch *uint64 `json:"initialCertifiedEpoch,omitempty"`
	ObjectID             *string `json:"objectId,omitempty"`
}

var lifecycleValues = map[string]types.BlobLifecycle{
	"nonexistent": types.LifecycleNonexistent,
	"invalid":     types.LifecycleInvalid,
	"permanent":   types.LifecyclePermanent,
	"deletable":   types.LifecycleDeletable,
}

func decodeStatus(raw []byte) (*types.BlobStatus, error) {
	var w statusWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("unmarshal status:\n%w", err)
	}

	lifecycle, ok := lifecycleValues[w.Lifecycle]
	if !ok {
		return nil, fmt.Errorf("unknown lifecycle: %q", w.Lifecycle)
	}

	status := &types.BlobStatus{Lifecycle: lifecycle, InitialCertifiedEpoch: w.InitialCertifiedEpoch}

	if w.ObjectID != nil {
		idBytes, err := hex.DecodeString(*w.ObjectID)
		if err != nil || len(idBytes) != 32 {
			return nil, fmt.Errorf("invalid objectId: %q", *w.ObjectID)
		}
		var id [32]byte
		copy(id[:], idBytes)
		status.ObjectID = &id
	}

	return status, nil
}
