package model

type Capability string

const (
	CapPlaceOrder   Capability = "place-order"
	CapManageOrders Capability = "manage-orders"
	CapManageMenu   Capability = "manage-menu"
	CapManageUsers  Capability = "manage-users"
	CapViewReports  Capability = "view-reports"
)

// Actor 由外部認證層提供，core 只檢查能力集合
type Actor struct {
	ID           int
	Capabilities map[Capability]struct{}
}

func NewActor(id int, caps ...Capability) *Actor {
	actor := &Actor{ID: id, Capabilities: make(map[Capability]struct{}, len(caps))}
	for _, c := range caps {
		actor.Capabilities[c] = struct{}{}
	}
	return actor
}

func (a *Actor) Can(cap Capability) bool {
	if a == nil {
		return false
	}
	_, ok := a.Capabilities[cap]
	return ok
}
