package chunking

import "regexp"

// typeFields are the fields a chunk of a given type usually carries.
var typeFields = map[ChunkType][]string{
	TypeHeader: {
		"contractNumber", "title", "contractType", "signedAt", "signLocation",
		"customerName", "ourEntity", "industry",
	},
	TypeParty: {
		"customerName", "ourEntity", "customerContact", "salesPerson", "signLocation",
	},
	TypeFinancial: {
		"totalAmount", "currency", "taxRate", "paymentMethod", "paymentTerms",
		"rateItems", "overtimeRate", "lineItems", "milestones",
	},
	TypeSchedule: {
		"effectiveAt", "expiresAt", "duration", "signedAt", "milestones", "deliverables", "deliveryTerms",
	},
	TypeRisk: {
		"riskClauses", "penaltyTerms", "disputeResolution",
	},
	TypeSignature: {
		"signedAt", "signLocation", "customerName", "ourEntity", "salesPerson",
	},
}

// TypeFields returns the default relevant fields of a chunk type.
func TypeFields(t ChunkType) []string {
	return typeFields[t]
}

// FieldKeywords are the textual cues for each field. Matching is case-insensitive.
var FieldKeywords = map[string][]*regexp.Regexp{
	"contractNumber":    compileAll(`合同编号`, `合同号`, `编号`, `contract\s*(?:no|number)`),
	"title":             compileAll(`合同名称`, `项目名称`, `协议书?$`, `合同$`),
	"contractType":      compileAll(`合同类型`, `外包`, `购销`, `技术服务`, `技术开发`),
	"customerName":      compileAll(`甲方`, `委托方`, `买方`, `需方`, `发包方`, `客户`, `party\s*a`),
	"ourEntity":         compileAll(`乙方`, `受托方`, `卖方`, `供方`, `承包方`, `供应商`, `party\s*b`),
	"customerContact":   compileAll(`联系人`, `联系电话`, `contact`),
	"salesPerson":       compileAll(`销售`, `业务员`, `经办人`),
	"totalAmount":       compileAll(`总金额`, `合同金额`, `总价`, `价款`, `合同总额`, `total\s*amount`),
	"currency":          compileAll(`人民币`, `币种`, `美元`, `RMB`, `CNY`, `USD`),
	"taxRate":           compileAll(`税率`, `增值税`, `含税`, `tax`),
	"paymentMethod":     compileAll(`付款方式`, `支付方式`, `银行转账`, `电汇`, `承兑`),
	"paymentTerms":      compileAll(`付款`, `支付`, `结算`, `预付`, `尾款`, `payment`),
	"signedAt":          compileAll(`签订日期`, `签署日期`, `签订时间`, `签约日期`, `签字日期`),
	"effectiveAt":       compileAll(`生效`, `起始日期`, `开始日期`, `effective`),
	"expiresAt":         compileAll(`终止日期`, `截止日期`, `届满`, `到期`, `结束日期`),
	"duration":          compileAll(`有效期`, `合同期限`, `服务期限`, `期限`, `term`),
	"signLocation":      compileAll(`签订地点`, `签署地点`, `签约地点`),
	"industry":          compileAll(`行业`, `领域`),
	"rateItems":         compileAll(`人月`, `人天`, `人日`, `单价`, `费率`, `工时`),
	"overtimeRate":      compileAll(`加班`),
	"milestones":        compileAll(`里程碑`, `阶段`, `验收`, `milestone`),
	"deliverables":      compileAll(`交付物`, `交付成果`, `deliverable`),
	"lineItems":         compileAll(`数量`, `规格`, `型号`, `单价`, `产品名称`),
	"deliveryTerms":     compileAll(`交货`, `交付`, `运输`, `delivery`),
	"riskClauses":       compileAll(`违约`, `赔偿`, `保密`, `知识产权`, `不可抗力`, `解除`),
	"penaltyTerms":      compileAll(`违约金`, `滞纳金`, `罚款`, `penalty`),
	"disputeResolution": compileAll(`争议`, `仲裁`, `诉讼`, `管辖`, `arbitration`),
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?im)` + p)
	}
	return out
}

// KeywordHits counts keyword matches of field in text.
func KeywordHits(field, text string) int {
	n := 0
	for _, re := range FieldKeywords[field] {
		n += len(re.FindAllStringIndex(text, -1))
	}
	return n
}
