package completeness

// Category groups catalog fields for sub-scores.
type Category string

const (
	CategoryBasic     Category = "basic"
	CategoryFinancial Category = "financial"
	CategoryTemporal  Category = "temporal"
	CategoryOther     Category = "other"
)

// FieldWeight is the maximum score one field contributes.
type FieldWeight struct {
	Field    string
	Weight   int
	Category Category
}

// MaxScore is the sum of all catalog weights.
const MaxScore = 100

// Catalog is the static weight table. Category sums: basic 40, financial 30, temporal 20, other 10.
var Catalog = []FieldWeight{
	{Field: "contractNumber", Weight: 8, Category: CategoryBasic},
	{Field: "title", Weight: 6, Category: CategoryBasic},
	{Field: "customerName", Weight: 10, Category: CategoryBasic},
	{Field: "ourEntity", Weight: 8, Category: CategoryBasic},
	{Field: "contractType", Weight: 8, Category: CategoryBasic},

	{Field: "totalAmount", Weight: 12, Category: CategoryFinancial},
	{Field: "currency", Weight: 4, Category: CategoryFinancial},
	{Field: "taxRate", Weight: 4, Category: CategoryFinancial},
	{Field: "paymentMethod", Weight: 5, Category: CategoryFinancial},
	{Field: "paymentTerms", Weight: 5, Category: CategoryFinancial},

	{Field: "signedAt", Weight: 6, Category: CategoryTemporal},
	{Field: "effectiveAt", Weight: 5, Category: CategoryTemporal},
	{Field: "expiresAt", Weight: 5, Category: CategoryTemporal},
	{Field: "duration", Weight: 4, Category: CategoryTemporal},

	{Field: "salesPerson", Weight: 4, Category: CategoryOther},
	{Field: "industry", Weight: 3, Category: CategoryOther},
	{Field: "signLocation", Weight: 3, Category: CategoryOther},
}

// Alias maps a legacy extractor key onto its canonical catalog name.
type Alias struct {
	Legacy    string
	Canonical string
}

// FieldMapping lists legacy names in priority order; the first alias with a value wins.
var FieldMapping = []Alias{
	{Legacy: "contractNo", Canonical: "contractNumber"},
	{Legacy: "contractCode", Canonical: "contractNumber"},
	{Legacy: "contractName", Canonical: "title"},
	{Legacy: "name", Canonical: "title"},
	{Legacy: "partyA", Canonical: "customerName"},
	{Legacy: "customer", Canonical: "customerName"},
	{Legacy: "partyB", Canonical: "ourEntity"},
	{Legacy: "supplier", Canonical: "ourEntity"},
	{Legacy: "type", Canonical: "contractType"},
	{Legacy: "amount", Canonical: "totalAmount"},
	{Legacy: "contractAmount", Canonical: "totalAmount"},
	{Legacy: "amountWithTax", Canonical: "totalAmount"},
	{Legacy: "currencyCode", Canonical: "currency"},
	{Legacy: "tax", Canonical: "taxRate"},
	{Legacy: "paymentType", Canonical: "paymentMethod"},
	{Legacy: "paymentTerm", Canonical: "paymentTerms"},
	{Legacy: "signDate", Canonical: "signedAt"},
	{Legacy: "signingDate", Canonical: "signedAt"},
	{Legacy: "startDate", Canonical: "effectiveAt"},
	{Legacy: "effectiveDate", Canonical: "effectiveAt"},
	{Legacy: "endDate", Canonical: "expiresAt"},
	{Legacy: "expiryDate", Canonical: "expiresAt"},
	{Legacy: "contractPeriod", Canonical: "duration"},
	{Legacy: "salesRep", Canonical: "salesPerson"},
	{Legacy: "signingLocation", Canonical: "signLocation"},
}

// FieldNames returns the catalog field names in catalog order.
func FieldNames() []string {
	out := make([]string, len(Catalog))
	for i, fw := range Catalog {
		out[i] = fw.Field
	}
	return out
}

// WeightOf returns the catalog weight for field, or 0 when unknown.
func WeightOf(field string) int {
	for _, fw := range Catalog {
		if fw.Field == field {
			return fw.Weight
		}
	}
	return 0
}
