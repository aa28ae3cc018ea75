package model

// Entity names, used for file names, report keys and warehouse tables.
const (
	EntityCustomer = "customer"
	EntityInvoice  = "invoice"
	EntityProduct  = "product"
	EntityRegion   = "region"
	EntityShipping = "shipping"
)

// Entities lists every entity in pipeline order. Region precedes shipping
// because the shipping transform joins against transformed regions.
var Entities = []string{EntityCustomer, EntityInvoice, EntityProduct, EntityRegion, EntityShipping}

// IsEntity reports whether name is a known entity.
func IsEntity(name string) bool {
	for _, e := range Entities {
		if e == name {
			return true
		}
	}
	return false
}
