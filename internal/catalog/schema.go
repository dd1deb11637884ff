// Package catalog defines the product catalog schema and turns repaired model
// output into ordered catalog records.
package catalog

// Schema lists the catalog columns in output order.
var Schema = []string{
	"Handle",
	"Title",
	"Body (HTML)",
	"Vendor",
	"Product Category",
	"Type",
	"Tags",
	"Published",
	"Option1 Name",
	"Option1 Value",
	"Option2 Name",
	"Option2 Value",
	"Option3 Name",
	"Option3 Value",
	"Variant SKU",
	"Variant Grams",
	"Variant Inventory Tracker",
	"Variant Inventory Qty",
	"Variant Inventory Policy",
	"Variant Fulfillment Service",
	"Variant Price",
	"Variant Compare At Price",
	"Variant Requires Shipping",
	"Variant Taxable",
	"Variant Barcode",
	"Image Src",
	"Image Position",
	"Image Alt Text",
	"Gift Card",
	"SEO Title",
	"SEO Description",
	"Google Shopping / Google Product Category",
	"Google Shopping / Gender",
	"Google Shopping / Age Group",
	"Google Shopping / MPN",
	"Google Shopping / Condition",
	"Google Shopping / Custom Product",
	"Google Shopping / Custom Label 0",
	"Google Shopping / Custom Label 1",
	"Google Shopping / Custom Label 2",
	"Google Shopping / Custom Label 3",
	"Google Shopping / Custom Label 4",
	"Variant Image",
	"Variant Weight Unit",
	"Variant Tax Code",
	"Cost per item",
	"Status",
}

const (
	KeyHandle = "Handle"
	KeyTitle  = "Title"
	KeyVendor = "Vendor"
)

// Defaults holds the columns whose value is not empty when the model omits them.
var Defaults = map[string]string{
	"Published":                        "TRUE",
	"Variant Inventory Tracker":        "shopify",
	"Variant Inventory Qty":            "20",
	"Variant Inventory Policy":         "deny",
	"Variant Fulfillment Service":      "manual",
	"Variant Requires Shipping":        "TRUE",
	"Variant Taxable":                  "TRUE",
	"Image Position":                   "1",
	"Gift Card":                        "FALSE",
	"Google Shopping / Condition":      "new",
	"Google Shopping / Custom Product": "FALSE",
	"Variant Weight Unit":              "g",
	"Status":                           "active",
}

var schemaIndex = func() map[string]int {
	idx := make(map[string]int, len(Schema))
	for i, key := range Schema {
		idx[key] = i
	}
	return idx
}()

// IsSchemaKey reports whether key is a catalog column.
func IsSchemaKey(key string) bool {
	_, ok := schemaIndex[key]
	return ok
}

// DefaultValue returns the value used when key is missing.
func DefaultValue(key string) string {
	return Defaults[key]
}
