package constants

import (
	"strings"
)

// FieldName identifies one of the structured fields pulled from an invoice.
type FieldName string

const (
	ProductName   FieldName = "product_name"
	OrderID       FieldName = "order_id"
	InvoiceNumber FieldName = "invoice_number"
	TotalAmount   FieldName = "total_amount"
	PurchaseDate  FieldName = "purchase_date"
	Retailer      FieldName = "retailer"
)

// allFields is the extraction order. Results are always keyed by exactly these names.
var allFields = []FieldName{
	ProductName,
	OrderID,
	InvoiceNumber,
	TotalAmount,
	PurchaseDate,
	Retailer,
}

// AllFields returns a copy of the fixed field list in extraction order.
func AllFields() []FieldName {
	out := make([]FieldName, len(allFields))
	copy(out, allFields)
	return out
}

func AsStringSlice() []string {
	result := make([]string, len(allFields))
	for i, f := range allFields {
		result[i] = string(f)
	}
	return result
}

// ParseField matches input against the known field names, tolerating case,
// surrounding spaces and dashes in place of underscores.
func ParseField(input string) (FieldName, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	if normalized == "" {
		return "", false
	}

	synonyms := map[string]FieldName{
		"product":  ProductName,
		"order":    OrderID,
		"invoice":  InvoiceNumber,
		"total":    TotalAmount,
		"amount":   TotalAmount,
		"date":     PurchaseDate,
		"merchant": Retailer,
		"store":    Retailer,
	}
	if f, ok := synonyms[normalized]; ok {
		return f, true
	}

	for _, f := range allFields {
		if normalized == string(f) {
			return f, true
		}
	}
	return FieldName(normalized), false
}

var fieldTitles = map[FieldName]string{
	ProductName:   "Product Name",
	OrderID:       "Order ID",
	InvoiceNumber: "Invoice Number",
	TotalAmount:   "Total Amount",
	PurchaseDate:  "Purchase Date",
	Retailer:      "Retailer",
}

// Title is the human-readable column heading for f.
func (f FieldName) Title() string {
	if t, ok := fieldTitles[f]; ok {
		return t
	}
	return string(f)
}
