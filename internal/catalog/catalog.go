// Package catalog defines the static import schemas: for every entity kind
// the target fields a file can be mapped onto, and the key fields used to
// match incoming rows against existing records.
package catalog

import "fmt"

// EntityKind identifies one of the record categories the pipeline can import.
// The set is closed; adding a kind means adding its Entry below.
type EntityKind int

const (
	KindContacts EntityKind = iota
	KindProducts
	KindInvoices
	KindExpenses
)

var kindNames = map[EntityKind]string{
	KindContacts: "contacts",
	KindProducts: "products",
	KindInvoices: "invoices",
	KindExpenses: "expenses",
}

// String returns the wire name of the kind ("contacts", "products", ...).
func (k EntityKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EntityKind(%d)", int(k))
}

// ParseKind converts a wire name to an EntityKind.
func ParseKind(s string) (EntityKind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown entity kind: %q", s)
}

// Kinds returns all entity kinds in display order.
func Kinds() []EntityKind {
	return []EntityKind{KindContacts, KindProducts, KindInvoices, KindExpenses}
}

// Format is the expected value format of a target field.
type Format int

const (
	FormatNone Format = iota
	FormatEmail
	FormatPhone
	FormatCurrency
	FormatDate
	FormatNumber
)

// String returns the format name used in API responses.
func (f Format) String() string {
	switch f {
	case FormatEmail:
		return "email"
	case FormatPhone:
		return "phone"
	case FormatCurrency:
		return "currency"
	case FormatDate:
		return "date"
	case FormatNumber:
		return "number"
	default:
		return "none"
	}
}

// FieldSpec describes a single target field of an entity kind.
type FieldSpec struct {
	Name        string // target field name, used as mapping value
	Label       string // human label, used in messages and templates
	Required    bool
	Format      Format
	Description string // optional hint for the mapping UI
}

// Entry is the full import schema for one entity kind.
type Entry struct {
	Kind  EntityKind
	Label string

	// Fields in display order. Order matters: the auto-mapper claims
	// targets first-match-wins in this order.
	Fields []FieldSpec

	// DuplicateKeys are the field names the duplicate-check collaborator
	// matches on for this kind.
	DuplicateKeys []string
}

// Field returns the spec for a target field name.
func (e Entry) Field(name string) (FieldSpec, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// RequiredFields returns the names of all required target fields.
func (e Entry) RequiredFields() []string {
	var req []string
	for _, f := range e.Fields {
		if f.Required {
			req = append(req, f.Name)
		}
	}
	return req
}

var entries = map[EntityKind]Entry{
	KindContacts: {
		Kind:  KindContacts,
		Label: "Contacts",
		Fields: []FieldSpec{
			{Name: "name", Label: "Name", Required: true, Description: "Full name or company name"},
			{Name: "email", Label: "Email", Format: FormatEmail},
			{Name: "phone", Label: "Phone", Format: FormatPhone},
			{Name: "company", Label: "Company"},
			{Name: "address", Label: "Address"},
			{Name: "city", Label: "City"},
			{Name: "province", Label: "Province", Description: "e.g., ON, BC, QC"},
			{Name: "postal_code", Label: "Postal Code"},
			{Name: "type", Label: "Type", Description: "customer, vendor, or both"},
			{Name: "notes", Label: "Notes"},
		},
		DuplicateKeys: []string{"email", "name"},
	},
	KindProducts: {
		Kind:  KindProducts,
		Label: "Products",
		Fields: []FieldSpec{
			{Name: "name", Label: "Product Name", Required: true},
			{Name: "sku", Label: "SKU", Description: "Auto-generated if blank"},
			{Name: "description", Label: "Description"},
			{Name: "price", Label: "Sell Price", Required: true, Format: FormatCurrency},
			{Name: "cost", Label: "Cost Price", Format: FormatCurrency},
			{Name: "quantity", Label: "Stock Quantity", Format: FormatNumber},
			{Name: "category", Label: "Category"},
			{Name: "barcode", Label: "Barcode/UPC"},
			{Name: "reorder_point", Label: "Reorder Level", Format: FormatNumber},
		},
		DuplicateKeys: []string{"sku", "name"},
	},
	KindInvoices: {
		Kind:  KindInvoices,
		Label: "Invoices",
		Fields: []FieldSpec{
			{Name: "invoice_number", Label: "Invoice #", Required: true},
			{Name: "customer_name", Label: "Customer Name", Required: true},
			{Name: "date", Label: "Invoice Date", Format: FormatDate},
			{Name: "due_date", Label: "Due Date", Format: FormatDate},
			{Name: "total", Label: "Total Amount", Required: true, Format: FormatCurrency},
			{Name: "status", Label: "Status", Description: "draft, sent, paid, etc."},
		},
		DuplicateKeys: []string{"invoice_number"},
	},
	KindExpenses: {
		Kind:  KindExpenses,
		Label: "Expenses",
		Fields: []FieldSpec{
			{Name: "date", Label: "Date", Required: true, Format: FormatDate},
			{Name: "description", Label: "Description", Required: true},
			{Name: "amount", Label: "Amount", Required: true, Format: FormatCurrency},
			{Name: "category", Label: "Category"},
			{Name: "vendor", Label: "Vendor/Merchant"},
			{Name: "payment_method", Label: "Payment Method"},
			{Name: "receipt_number", Label: "Receipt #"},
		},
		DuplicateKeys: []string{"date", "amount", "description"},
	},
}

// Lookup returns the schema entry for a kind. The catalog is static, so a
// session resolves its entry once at creation and never re-dispatches.
func Lookup(k EntityKind) Entry {
	return entries[k]
}
