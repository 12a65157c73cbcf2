package models

// EntityType identifies one of the synchronized business record families.
type EntityType string

const (
	EntityCustomer EntityType = "customer"
	EntityVendor   EntityType = "vendor"
	EntityItem     EntityType = "item"
	EntityInvoice  EntityType = "invoice"
	EntityBill     EntityType = "bill"
	EntityPayment  EntityType = "payment"
	// EntityGeneric is the explicit fallback for unrecognized type keys.
	EntityGeneric EntityType = "generic"
)

// EntityDescriptor ties an entity type to its local table, remote resource
// name and circuit breaker surface.
type EntityDescriptor struct {
	Type           EntityType
	Table          string
	RemoteResource string
	Surface        string
}

var descriptors = map[EntityType]EntityDescriptor{
	EntityCustomer: {Type: EntityCustomer, Table: "customer_profile", RemoteResource: "Customer", Surface: "customer"},
	EntityVendor:   {Type: EntityVendor, Table: "vendor_profile", RemoteResource: "Vendor", Surface: "vendor"},
	EntityItem:     {Type: EntityItem, Table: "item_record", RemoteResource: "Item", Surface: "item"},
	EntityInvoice:  {Type: EntityInvoice, Table: "invoice_record", RemoteResource: "Invoice", Surface: "invoice"},
	EntityBill:     {Type: EntityBill, Table: "bill_record", RemoteResource: "Bill", Surface: "bill"},
	EntityPayment:  {Type: EntityPayment, Table: "payment_receipt", RemoteResource: "Payment", Surface: "payment"},
}

// Descriptor returns the descriptor for an entity type. Unknown types map to
// the generic descriptor rather than falling through a string switch.
func Descriptor(t EntityType) EntityDescriptor {
	if d, ok := descriptors[t]; ok {
		return d
	}
	return EntityDescriptor{Type: EntityGeneric, Table: "generic_record", RemoteResource: "Generic", Surface: "generic"}
}

// KnownEntityTypes lists the synchronized entity types in dependency order:
// masters first, then transactions that reference them.
func KnownEntityTypes() []EntityType {
	return []EntityType{EntityCustomer, EntityVendor, EntityItem, EntityInvoice, EntityBill, EntityPayment}
}

// IsKnown reports whether t is one of the synchronized entity types.
func IsKnown(t EntityType) bool {
	_, ok := descriptors[t]
	return ok
}
