package events

// Event types observed by indexers. Names mirror the on-chain event surface
// the engine replaces.
const (
	EventRent                    = "Rent"
	EventSetPrice                = "SetPrice"
	EventSetFixedEthUsdPrice     = "SetFixedEthUsdPrice"
	EventSetMaxUnits             = "SetMaxUnits"
	EventSetDeprecationTimestamp = "SetDeprecationTimestamp"
	EventSetCacheDuration        = "SetCacheDuration"
	EventSetMaxAge               = "SetMaxAge"
	EventSetMinAnswer            = "SetMinAnswer"
	EventSetMaxAnswer            = "SetMaxAnswer"
	EventSetGracePeriod          = "SetGracePeriod"
	EventSetVault                = "SetVault"
	EventSetPriceFeed            = "SetPriceFeed"
	EventSetUptimeFeed           = "SetUptimeFeed"
	EventWithdraw                = "Withdraw"
	EventPause                   = "Pause"
	EventUnpause                 = "Unpause"
)

// RentPayload is emitted once per (id, units) allocation.
type RentPayload struct {
	Buyer string `json:"buyer"`
	ID    uint64 `json:"id"`
	Units uint64 `json:"units"`
}

// ToMap converts a payload into an outbox-friendly map.
func (p RentPayload) ToMap() map[string]any {
	return map[string]any{
		"buyer": p.Buyer,
		"id":    p.ID,
		"units": p.Units,
	}
}

// ParamChangePayload records an administrative Set<Parameter>(old, new).
type ParamChangePayload struct {
	Old string `json:"old"`
	New string `json:"new"`
}

func (p ParamChangePayload) ToMap() map[string]any {
	return map[string]any{
		"old": p.Old,
		"new": p.New,
	}
}

// WithdrawPayload records a treasury withdrawal.
type WithdrawPayload struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (p WithdrawPayload) ToMap() map[string]any {
	return map[string]any{
		"to":     p.To,
		"amount": p.Amount,
	}
}
