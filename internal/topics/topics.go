package topics

import "github.com/joseph-ayodele/contracts-parser/constants"

// FieldType is the expected shape of a topic field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeDate    FieldType = "date"
	TypeBoolean FieldType = "boolean"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
)

// FieldDefinition describes one field extracted under a topic.
type FieldDefinition struct {
	Name         string    `json:"name"`
	Type         FieldType `json:"type"`
	Required     bool      `json:"required"`
	Description  string    `json:"description,omitempty"`
	DefaultValue any       `json:"defaultValue,omitempty"`
}

// TopicDefinition is a named, weighted group of fields.
type TopicDefinition struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"displayName"`
	Description string            `json:"description,omitempty"`
	Weight      float64           `json:"weight"`
	Order       int               `json:"order"`
	Fields      []FieldDefinition `json:"fields"`
}

// FieldNames returns the names of the topic's fields in declaration order.
func (t TopicDefinition) FieldNames() []string {
	out := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		out[i] = f.Name
	}
	return out
}

const (
	TopicBasicInfo   = "basic_info"
	TopicParties     = "parties"
	TopicFinancial   = "financial"
	TopicTimeInfo    = "time_info"
	TopicRateItems   = "rate_items"
	TopicMilestones  = "milestones"
	TopicLineItems   = "line_items"
	TopicRiskClauses = "risk_clauses"
)

// DefaultTopics is the built-in topic catalog.
var DefaultTopics = []TopicDefinition{
	{
		Name: TopicBasicInfo, DisplayName: "基本信息", Weight: 20, Order: 1,
		Description: "Contract identity: number, title, type, signing date and place.",
		Fields: []FieldDefinition{
			{Name: "contractNumber", Type: TypeString, Required: true, Description: "合同编号"},
			{Name: "title", Type: TypeString, Required: true, Description: "合同名称"},
			{Name: "contractType", Type: TypeString, Required: true, Description: "合同类型"},
			{Name: "signedAt", Type: TypeDate, Required: true, Description: "签订日期 YYYY-MM-DD"},
			{Name: "signLocation", Type: TypeString, Description: "签订地点"},
			{Name: "industry", Type: TypeString, Description: "所属行业"},
		},
	},
	{
		Name: TopicParties, DisplayName: "合同主体", Weight: 15, Order: 2,
		Description: "Customer (party A), our entity (party B) and contacts.",
		Fields: []FieldDefinition{
			{Name: "customerName", Type: TypeString, Required: true, Description: "甲方/客户名称"},
			{Name: "ourEntity", Type: TypeString, Required: true, Description: "乙方/我方主体"},
			{Name: "customerContact", Type: TypeString, Description: "甲方联系人"},
			{Name: "salesPerson", Type: TypeString, Description: "销售负责人"},
		},
	},
	{
		Name: TopicFinancial, DisplayName: "财务信息", Weight: 20, Order: 3,
		Description: "Amounts, currency, tax and payment.",
		Fields: []FieldDefinition{
			{Name: "totalAmount", Type: TypeNumber, Required: true, Description: "合同总金额 (bare numeral)"},
			{Name: "currency", Type: TypeString, Required: true, Description: "币种 ISO 4217", DefaultValue: "CNY"},
			{Name: "taxRate", Type: TypeNumber, Description: "税率 (0.06 for 6%)"},
			{Name: "paymentMethod", Type: TypeString, Description: "付款方式"},
			{Name: "paymentTerms", Type: TypeString, Required: true, Description: "付款条件"},
		},
	},
	{
		Name: TopicTimeInfo, DisplayName: "时间信息", Weight: 15, Order: 4,
		Description: "Term of the contract.",
		Fields: []FieldDefinition{
			{Name: "effectiveAt", Type: TypeDate, Required: true, Description: "生效日期"},
			{Name: "expiresAt", Type: TypeDate, Required: true, Description: "终止日期"},
			{Name: "duration", Type: TypeString, Description: "合同期限"},
		},
	},
	{
		Name: TopicRateItems, DisplayName: "人力费率", Weight: 10, Order: 5,
		Description: "Staff augmentation rates per role.",
		Fields: []FieldDefinition{
			{Name: "rateItems", Type: TypeArray, Required: true, Description: "[{role, level, rate, unit}]"},
			{Name: "overtimeRate", Type: TypeString, Description: "加班费率"},
		},
	},
	{
		Name: TopicMilestones, DisplayName: "项目里程碑", Weight: 10, Order: 6,
		Description: "Project milestones and deliverables.",
		Fields: []FieldDefinition{
			{Name: "milestones", Type: TypeArray, Required: true, Description: "[{name, dueDate, amount, percentage}]"},
			{Name: "deliverables", Type: TypeArray, Description: "交付物"},
		},
	},
	{
		Name: TopicLineItems, DisplayName: "产品明细", Weight: 10, Order: 7,
		Description: "Products sold with quantities and prices.",
		Fields: []FieldDefinition{
			{Name: "lineItems", Type: TypeArray, Required: true, Description: "[{name, spec, quantity, unitPrice, amount}]"},
			{Name: "deliveryTerms", Type: TypeString, Description: "交货条款"},
		},
	},
	{
		Name: TopicRiskClauses, DisplayName: "风险条款", Weight: 10, Order: 8,
		Description: "Liability, penalties, confidentiality and disputes.",
		Fields: []FieldDefinition{
			{Name: "riskClauses", Type: TypeArray, Required: true, Description: "[{type, content, riskLevel}]"},
			{Name: "penaltyTerms", Type: TypeString, Description: "违约责任"},
			{Name: "disputeResolution", Type: TypeString, Description: "争议解决方式"},
		},
	},
}

// ContractTypeTopicBatches lists, per contract type, the topics to extract in order.
var ContractTypeTopicBatches = map[constants.ContractType][]string{
	constants.StaffAugmentation: {
		TopicBasicInfo, TopicParties, TopicFinancial, TopicTimeInfo, TopicRateItems, TopicRiskClauses,
	},
	constants.ProjectOutsourcing: {
		TopicBasicInfo, TopicParties, TopicFinancial, TopicTimeInfo, TopicMilestones, TopicRiskClauses,
	},
	constants.ProductSales: {
		TopicBasicInfo, TopicParties, TopicFinancial, TopicTimeInfo, TopicLineItems, TopicRiskClauses,
	},
	constants.Mixed: {
		TopicBasicInfo, TopicParties, TopicFinancial, TopicTimeInfo,
		TopicRateItems, TopicMilestones, TopicLineItems, TopicRiskClauses,
	},
}

var fieldIndex = func() map[string]FieldDefinition {
	idx := make(map[string]FieldDefinition)
	for _, t := range DefaultTopics {
		for _, f := range t.Fields {
			idx[f.Name] = f
		}
	}
	return idx
}()

// LookupField returns the definition of a built-in field. Unknown names are reported as
// plain optional strings.
func LookupField(name string) (FieldDefinition, bool) {
	if f, ok := fieldIndex[name]; ok {
		return f, true
	}
	return FieldDefinition{Name: name, Type: TypeString}, false
}
