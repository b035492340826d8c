package rag

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/contracts-parser/constants"
	"github.com/joseph-ayodele/contracts-parser/internal/chunking"
	"github.com/joseph-ayodele/contracts-parser/internal/fields"
	"github.com/joseph-ayodele/contracts-parser/internal/topics"
	"github.com/joseph-ayodele/contracts-parser/internal/utils"
)

// directWindow is how many characters after a keyword a value may start in.
const directWindow = 100

type scope int

const (
	scopeAfter scope = iota // text following the keyword on its line
	scopeFrom               // text starting at the keyword, keyword included
	scopeLine               // the whole line holding the keyword
)

type directRule struct {
	scope   scope
	re      *regexp.Regexp
	convert func(string) (fields.Value, bool)
}

var (
	reLabelValue = regexp.MustCompile(`^[ \t　]*(?:[（(][^）)\n]{0,12}[）)])?[ \t　]*[:：][ \t　]*([^\n，,。；;]{1,80})`)
	reCodeValue  = regexp.MustCompile(`^[ \t　]*[:：]?[ \t　]*([A-Za-z0-9][A-Za-z0-9\-_/.]{2,40})`)
	reAmountFind = regexp.MustCompile(`(\d[\d,，]*(?:\.\d+)?)[ \t]*(万|亿)?`)
	rePercent    = regexp.MustCompile(`(\d+(?:\.\d+)?)[ \t]*[%％]`)
	reDateFind   = regexp.MustCompile(dateExpr)
	reCurrency   = regexp.MustCompile(`(?i)^(人民币|美元|美金|欧元|港币|港元|日元|英镑|RMB|CNY|USD|EUR|HKD|JPY|GBP|¥|￥)`)
	reTitleLine  = regexp.MustCompile(`^[ \t　]*(?:(?:合同|项目)名称[ \t　]*[:：])?[ \t　]*(\S.{1,60}?)[ \t　]*$`)
	reTypeValue  = regexp.MustCompile(`(人力资源外包|人力外包|人员外包|项目外包|技术开发|软件开发|产品销售|购销|采购)`)

	// Chinese contracts put the date before the verb: 自2024年1月1日起生效, 至2024年12月31日止.
	reEffective = regexp.MustCompile(`(?:(?:起始|开始|生效)日期[ \t]*[:：][ \t]*(` + dateExpr + `))|(?:(` + dateExpr + `)[ \t]*起?[ \t]*(?:生效|开始))`)
	reExpires   = regexp.MustCompile(`(?:(?:终止|截止|结束|到期)日期[ \t]*[:：][ \t]*(` + dateExpr + `))|(?:至[ \t]*(` + dateExpr + `)[ \t]*(?:止|终止|届满|到期))`)
)

const dateExpr = `\d{4}[ \t]*[年/.\-][ \t]*\d{1,2}[ \t]*[月/.\-][ \t]*\d{1,2}[ \t]*[日号]?`

func stringValue(s string) (fields.Value, bool) {
	v := fields.String(strings.TrimSpace(s))
	return v, fields.HasValue(v)
}

func amountValue(s string) (fields.Value, bool) {
	f, ok := utils.ParseAmount(s)
	return fields.Number(f), ok
}

func dateValue(s string) (fields.Value, bool) {
	d, ok := utils.NormalizeDate(s)
	return fields.String(d), ok
}

func currencyValue(s string) (fields.Value, bool) {
	c, ok := utils.NormalizeCurrency(s)
	return fields.String(c), ok
}

func contractTypeValue(s string) (fields.Value, bool) {
	ct, ok := constants.CanonicalizeContractType(s)
	return fields.String(string(ct)), ok
}

var fieldRules = map[string]directRule{
	"contractNumber": {scope: scopeAfter, re: reCodeValue, convert: stringValue},
	"title":          {scope: scopeLine, re: reTitleLine, convert: stringValue},
	"contractType":   {scope: scopeFrom, re: reTypeValue, convert: contractTypeValue},
	"currency":       {scope: scopeFrom, re: reCurrency, convert: currencyValue},
	"effectiveAt":    {scope: scopeLine, re: reEffective, convert: dateValue},
	"expiresAt":      {scope: scopeLine, re: reExpires, convert: dateValue},
	"taxRate":        {scope: scopeAfter, re: rePercent, convert: func(s string) (fields.Value, bool) { return amountValue(s + "%") }},
}

// ruleFor returns the direct rule of a field, derived from its type when no specific one
// exists. Structured fields (arrays, objects) have none.
func ruleFor(field string) (directRule, bool) {
	if r, ok := fieldRules[field]; ok {
		return r, true
	}
	def, _ := topics.LookupField(field)
	switch def.Type {
	case topics.TypeNumber:
		return directRule{scope: scopeAfter, re: reAmountFind, convert: func(s string) (fields.Value, bool) {
			return amountValue(strings.ReplaceAll(s, " ", ""))
		}}, true
	case topics.TypeDate:
		return directRule{scope: scopeAfter, re: reDateFind, convert: dateValue}, true
	case topics.TypeString:
		return directRule{scope: scopeAfter, re: reLabelValue, convert: stringValue}, true
	default:
		return directRule{}, false
	}
}

// HasDirectRule reports whether field can be read straight from the text.
func HasDirectRule(field string) bool {
	_, ok := ruleFor(field)
	return ok
}

// ResolveDirect looks for a value next to the field's keywords in the ranked chunks and
// returns the first one found.
func ResolveDirect(field string, chunks []RankedChunk) (fields.Value, bool) {
	rule, ok := ruleFor(field)
	if !ok {
		return fields.Null(), false
	}
	for _, rc := range chunks {
		text := rc.Chunk.Text
		for _, kw := range chunking.FieldKeywords[field] {
			for _, loc := range kw.FindAllStringIndex(text, -1) {
				if v, ok := rule.apply(text, loc[0], loc[1]); ok {
					return v, true
				}
			}
		}
	}
	return fields.Null(), false
}

func (r directRule) apply(text string, start, end int) (fields.Value, bool) {
	var window string
	switch r.scope {
	case scopeFrom:
		window = lineFrom(text, start)
	case scopeLine:
		ls := strings.LastIndexByte(text[:start], '\n') + 1
		window = lineFrom(text, ls)
	default:
		window = lineFrom(text, end)
	}
	window, _ = utils.TruncateRunes(window, directWindow)

	m := r.re.FindStringSubmatch(window)
	if m == nil {
		return fields.Null(), false
	}
	raw := m[0]
	if len(m) > 1 {
		raw = strings.Join(m[1:], "")
	}
	return r.convert(raw)
}

func lineFrom(text string, pos int) string {
	rest := text[pos:]
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		return rest[:i]
	}
	return rest
}
