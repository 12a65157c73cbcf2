package validate

import (
	"github.com/Moof29/batchly/internal/models"
)

func customerSchema() *Schema {
	return NewSchema().
		Field("display_name", Required(), MaxLen(100)).
		Field("email", Email()).
		Field("phone", MaxLen(30)).
		Field("balance", Numeric())
}

func vendorSchema() *Schema {
	return NewSchema().
		Field("display_name", Required(), MaxLen(100)).
		Field("email", Email()).
		Field("account_number", MaxLen(50))
}

func itemSchema() *Schema {
	return NewSchema().
		Field("display_name", Required(), MaxLen(100)).
		Field("unit_price", Numeric()).
		Field("quantity_on_hand", Numeric())
}

func invoiceSchema() *Schema {
	return NewSchema().
		Field("display_name", Required(), MaxLen(21)).
		Field("customer_id", Required()).
		Field("total", Required(), PositiveNumber())
}

func billSchema() *Schema {
	return NewSchema().
		Field("display_name", Required(), MaxLen(21)).
		Field("vendor_id", Required()).
		Field("total", Required(), PositiveNumber())
}

func paymentSchema() *Schema {
	return NewSchema().
		Field("display_name", MaxLen(21)).
		Field("customer_id", Required()).
		Field("amount", Required(), PositiveNumber())
}

func genericSchema() *Schema {
	return NewSchema().
		Field("display_name", Required(), MaxLen(100))
}

// ForEntity returns the payload schema for an entity type.
func ForEntity(t models.EntityType) *Schema {
	switch t {
	case models.EntityCustomer:
		return customerSchema()
	case models.EntityVendor:
		return vendorSchema()
	case models.EntityItem:
		return itemSchema()
	case models.EntityInvoice:
		return invoiceSchema()
	case models.EntityBill:
		return billSchema()
	case models.EntityPayment:
		return paymentSchema()
	default:
		return genericSchema()
	}
}

// ForExternalSubmission layers stricter rules over the base schema for data
// submitted from outside the platform. The base schema is not mutated.
func ForExternalSubmission(t models.EntityType) *Schema {
	s := ForEntity(t).Extend().
		Field("organization_id", Required())
	switch t {
	case models.EntityCustomer, models.EntityVendor:
		s.Field("email", Required())
	}
	return s
}
