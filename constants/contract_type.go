package constants

import (
	"strings"
)

type ContractType string

const (
	StaffAugmentation  ContractType = "STAFF_AUGMENTATION"
	ProjectOutsourcing ContractType = "PROJECT_OUTSOURCING"
	ProductSales       ContractType = "PRODUCT_SALES"
	Mixed              ContractType = "MIXED"
)

var allContractTypes = []ContractType{
	StaffAugmentation,
	ProjectOutsourcing,
	ProductSales,
	Mixed,
}

func ContractTypesAsStringSlice() []string {
	result := make([]string, len(allContractTypes))
	for i, ct := range allContractTypes {
		result[i] = string(ct)
	}
	return result
}

// CanonicalizeContractType maps free-form labels (including the Chinese names used in
// contract headers) onto a ContractType. Unknown labels map to Mixed.
func CanonicalizeContractType(input string) (ContractType, bool) {
	if input == "" {
		return Mixed, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))

	synonyms := map[string]ContractType{
		"人力外包":        StaffAugmentation,
		"人员外包":        StaffAugmentation,
		"人力资源外包":      StaffAugmentation,
		"staffing":    StaffAugmentation,
		"项目外包":        ProjectOutsourcing,
		"技术开发":        ProjectOutsourcing,
		"软件开发":        ProjectOutsourcing,
		"outsourcing": ProjectOutsourcing,
		"产品销售":        ProductSales,
		"购销":          ProductSales,
		"采购":          ProductSales,
		"sales":       ProductSales,
		"混合":          Mixed,
	}

	if ct, ok := synonyms[normalized]; ok {
		return ct, true
	}

	for _, ct := range allContractTypes {
		if normalized == strings.ToLower(string(ct)) {
			return ct, true
		}
	}

	return Mixed, false
}
