package narrative

import "github.com/wfunc/trailparty/models"

// MergePolicy applies a generator delta to the authoritative state in place.
type MergePolicy interface {
	Merge(dst models.GameState, delta map[string]any)
}

// ShallowMerge replaces top-level keys wholesale and keeps keys the delta
// does not mention. The generator can therefore overwrite the roster or the
// whole inventory.
type ShallowMerge struct{}

func (ShallowMerge) Merge(dst models.GameState, delta map[string]any) {
	for k, v := range delta {
		dst[k] = v
	}
}
