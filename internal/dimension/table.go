// Package dimension maintains the warehouse dimensions: Type 1 overwrite for
// products and stores, Type 2 history for customers.
package dimension

import (
	"strings"

	"github.com/angelmondragon/shopdw/internal/signature"
)

// Table describes a dimension table. Attribute columns are named after the
// signature attributes.
type Table struct {
	Name       string
	NaturalKey string
	Signature  signature.Spec
}

var (
	ProductTable = Table{
		Name:       "dw.dim_product",
		NaturalKey: "product_id",
		Signature:  signature.ProductSignature,
	}
	StoreTable = Table{
		Name:       "dw.dim_store",
		NaturalKey: "store_id",
		Signature:  signature.StoreSignature,
	}
	CustomerTable = Table{
		Name:       "dw.dim_customer",
		NaturalKey: "customer_id",
		Signature:  signature.CustomerSignature,
	}
)

// Row is one staging record destined for a dimension.
type Row struct {
	NaturalKey string
	Attributes signature.Record
}

func (t Table) attributeValues(row Row) map[string]any {
	values := make(map[string]any, len(t.Signature.Attributes)+4)
	for _, attr := range t.Signature.Attributes {
		values[attr] = row.Attributes[attr]
	}
	return values
}

func (t Table) valid() bool {
	return t.Name != "" && t.NaturalKey != "" && len(t.Signature.Attributes) > 0
}

func normalizeKey(key string) string {
	return strings.TrimSpace(key)
}
