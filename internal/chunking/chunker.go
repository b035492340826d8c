package chunking

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMinChunkSize is the minimum chunk length in characters before fragments stop coalescing.
const DefaultMinChunkSize = 500

const maxNumberedHeadingRunes = 40

var (
	reArticle        = regexp.MustCompile(`^第\s*([一二三四五六七八九十百零〇两\d]+)\s*条\s*(.*)$`)
	reChapter        = regexp.MustCompile(`^第\s*([一二三四五六七八九十百零〇两\d]+)\s*(?:章|节|部分)\s*(.*)$`)
	reEnglishArticle = regexp.MustCompile(`(?i)^(?:article|section|clause)\s+(\d+(?:\.\d+)*)\s*[.:]?\s*(.*)$`)
	reCNNumbered     = regexp.MustCompile(`^([一二三四五六七八九十]+)\s*[、.．]\s*(\S.*)$`)
	reNumbered       = regexp.MustCompile(`^(\d{1,2}(?:\.\d{1,2})*)\s*[、.．]\s*([^\d\s].*)$`)
	reParty          = regexp.MustCompile(`(?i)^(甲方|乙方|丙方|委托方|受托方|买方|卖方|需方|供方|发包方|承包方|出租方|承租方|party\s*[abc])\s*(?:[（(][^）)]{0,12}[）)])?\s*[:：]`)
	reSignature      = regexp.MustCompile(`(?i)^(?:(?:甲方|乙方|丙方)\s*[（(]?\s*(?:盖章|签章|签字|签名)|(?:签字|签章|盖章|签署)(?:页|栏)?\s*[:：]?\s*$|[（(]?以下无正文|in witness whereof|signatures?\s*[:：]?\s*$)`)
	reSectionLabel   = regexp.MustCompile(`^【?(合同(?:价款|金额|总价)|付款(?:方式|条件)?|支付方式|结算(?:方式)?|费用(?:及支付)?|价格条款|报价|合同期限|履行期限|服务期限|项目(?:进度|周期)|交付(?:方式|时间)?|验收|里程碑)】?\s*[:：]?$`)

	reFinancialTitle = regexp.MustCompile(`(?i)价款|金额|费用|付款|支付|结算|报酬|价格|报价|发票|税|payment|price|fee|amount|invoice`)
	reScheduleTitle  = regexp.MustCompile(`(?i)期限|工期|进度|里程碑|交付|交货|验收|时间|日期|有效期|term|schedule|milestone|delivery|duration`)
	reRiskTitle      = regexp.MustCompile(`(?i)违约|责任|赔偿|保密|争议|终止|解除|知识产权|不可抗力|liabilit|breach|confidential|terminat|dispute|indemn`)
	rePartyTitle     = regexp.MustCompile(`(?i)当事人|双方|主体|parties`)
)

// segment is a heading-delimited slice before coalescing.
type segment struct {
	start, end    int
	typ           ChunkType
	title         string
	articleNumber string
}

// Chunker splits contract text into typed chunks.
type Chunker struct {
	logger *slog.Logger
}

func NewChunker(logger *slog.Logger) *Chunker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{logger: logger}
}

// Chunk splits text on structural cues. The returned chunks partition text exactly, in
// order. Fragments shorter than minChunkSize characters are merged into the following
// ones. Text without any cue yields a single generic chunk relevant to every known field.
func (c *Chunker) Chunk(text string, minChunkSize int) []SemanticChunk {
	if minChunkSize <= 0 {
		minChunkSize = DefaultMinChunkSize
	}

	segs := splitSegments(text)
	if len(segs) == 0 {
		chunk := wholeTextChunk(text)
		c.logger.Debug("chunking.fallback", "text_len", len(text))
		return []SemanticChunk{chunk}
	}

	groups := coalesce(text, segs, minChunkSize)
	paged := strings.Contains(text, "\f")
	chunks := make([]SemanticChunk, 0, len(groups))
	for i, g := range groups {
		chunks = append(chunks, buildChunk(text, i, g, paged))
	}

	c.logger.Debug("chunking.ok",
		"text_len", len(text),
		"segments", len(segs),
		"chunks", len(chunks),
		"min_chunk_size", minChunkSize,
	)
	return chunks
}

// splitSegments returns nil when no structural heading is found.
func splitSegments(text string) []segment {
	type heading struct {
		offset        int
		typ           ChunkType
		title         string
		articleNumber string
	}
	var heads []heading

	for start := 0; start < len(text); {
		end := strings.IndexByte(text[start:], '\n')
		if end < 0 {
			end = len(text)
		} else {
			end += start
		}
		line := strings.TrimSpace(text[start:end])
		if line != "" {
			if typ, title, num, ok := classifyLine(line); ok {
				heads = append(heads, heading{offset: start, typ: typ, title: title, articleNumber: num})
			}
		}
		start = end + 1
	}
	if len(heads) == 0 {
		return nil
	}

	var segs []segment
	if heads[0].offset > 0 {
		segs = append(segs, segment{start: 0, end: heads[0].offset, typ: TypeHeader, title: firstLine(text[:heads[0].offset])})
	}
	for i, h := range heads {
		end := len(text)
		if i+1 < len(heads) {
			end = heads[i+1].offset
		}
		segs = append(segs, segment{start: h.offset, end: end, typ: h.typ, title: h.title, articleNumber: h.articleNumber})
	}
	return segs
}

// classifyLine recognizes heading lines and returns the chunk type they open.
func classifyLine(line string) (ChunkType, string, string, bool) {
	if reSignature.MatchString(line) {
		return TypeSignature, clip(line), "", true
	}
	if reParty.MatchString(line) {
		return TypeParty, clip(line), "", true
	}
	if m := reArticle.FindStringSubmatch(line); m != nil {
		return classifyTitle(m[2]), clip(m[2]), m[1], true
	}
	if m := reChapter.FindStringSubmatch(line); m != nil {
		return classifyTitle(m[2]), clip(m[2]), "", true
	}
	if m := reEnglishArticle.FindStringSubmatch(line); m != nil {
		return classifyTitle(m[2]), clip(m[2]), m[1], true
	}
	if utf8.RuneCountInString(line) <= maxNumberedHeadingRunes {
		if m := reCNNumbered.FindStringSubmatch(line); m != nil {
			return classifyTitle(m[2]), clip(m[2]), m[1], true
		}
		if m := reNumbered.FindStringSubmatch(line); m != nil {
			return classifyTitle(m[2]), clip(m[2]), m[1], true
		}
		if m := reSectionLabel.FindStringSubmatch(line); m != nil {
			return classifyTitle(m[1]), m[1], "", true
		}
	}
	return "", "", "", false
}

func classifyTitle(title string) ChunkType {
	switch {
	case reFinancialTitle.MatchString(title):
		return TypeFinancial
	case reScheduleTitle.MatchString(title):
		return TypeSchedule
	case reRiskTitle.MatchString(title):
		return TypeRisk
	case rePartyTitle.MatchString(title):
		return TypeParty
	default:
		return TypeGeneric
	}
}

// coalesce merges consecutive segments until each group reaches minChars characters.
func coalesce(text string, segs []segment, minChars int) [][]segment {
	var groups [][]segment
	var cur []segment
	curLen := 0
	for _, s := range segs {
		cur = append(cur, s)
		curLen += utf8.RuneCountInString(text[s.start:s.end])
		if curLen >= minChars {
			groups = append(groups, cur)
			cur, curLen = nil, 0
		}
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

func buildChunk(text string, idx int, group []segment, paged bool) SemanticChunk {
	lead := group[0]
	for _, s := range group[1:] {
		if Priority(s.typ) > Priority(lead.typ) {
			lead = s
		}
	}
	start, end := group[0].start, group[len(group)-1].end
	body := text[start:end]

	var types []ChunkType
	for _, s := range group {
		types = append(types, s.typ)
	}

	chunk := SemanticChunk{
		ID:   fmt.Sprintf("chunk-%d", idx),
		Text: body,
		Metadata: Metadata{
			Type:           lead.typ,
			Title:          lead.title,
			ArticleNumber:  lead.articleNumber,
			Priority:       Priority(lead.typ),
			FieldRelevance: relevance(types, body),
		},
		Position: Position{Start: start, End: end},
	}
	if paged {
		chunk.Position.PageHint = pageAt(text, start)
	}
	return chunk
}

// pageAt returns the 1-based page of the first non-blank character at or after offset.
func pageAt(text string, offset int) int {
	rest := text[offset:]
	offset += len(rest) - len(strings.TrimLeft(rest, " \t\r\n\f"))
	return 1 + strings.Count(text[:offset], "\f")
}

func wholeTextChunk(text string) SemanticChunk {
	var rel []string
	if strings.TrimSpace(text) != "" {
		rel = AllFields()
	}
	chunk := SemanticChunk{
		ID:   "chunk-0",
		Text: text,
		Metadata: Metadata{
			Type:           TypeGeneric,
			Title:          firstLine(text),
			Priority:       Priority(TypeGeneric),
			FieldRelevance: rel,
		},
		Position: Position{Start: 0, End: len(text)},
	}
	if strings.Contains(text, "\f") {
		chunk.Position.PageHint = 1
	}
	return chunk
}

// relevance unions the type defaults of every constituent with keyword hits in body.
// Order follows AllFields.
func relevance(types []ChunkType, body string) []string {
	set := make(map[string]struct{})
	for _, t := range types {
		for _, f := range typeFields[t] {
			set[f] = struct{}{}
		}
	}
	for field, res := range FieldKeywords {
		if _, ok := set[field]; ok {
			continue
		}
		for _, re := range res {
			if re.MatchString(body) {
				set[field] = struct{}{}
				break
			}
		}
	}
	out := make([]string, 0, len(set))
	for _, f := range AllFields() {
		if _, ok := set[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// allFields is the canonical order used for relevance lists.
var allFields = []string{
	"contractNumber", "title", "contractType", "customerName", "ourEntity", "customerContact",
	"salesPerson", "totalAmount", "currency", "taxRate", "paymentMethod", "paymentTerms",
	"signedAt", "effectiveAt", "expiresAt", "duration", "signLocation", "industry",
	"rateItems", "overtimeRate", "milestones", "deliverables", "lineItems", "deliveryTerms",
	"riskClauses", "penaltyTerms", "disputeResolution",
}

// AllFields returns every field the chunker knows about, in canonical order.
func AllFields() []string {
	return append([]string(nil), allFields...)
}

// GetRelevantChunksForFields returns, in chunk order and without duplicates, every chunk
// relevant to at least one of fields.
func GetRelevantChunksForFields(chunks []SemanticChunk, fields []string) []SemanticChunk {
	seen := make(map[string]struct{}, len(chunks))
	var out []SemanticChunk
	for _, c := range chunks {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		if len(c.RelevantFields(fields)) > 0 {
			seen[c.ID] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			return clip(l)
		}
	}
	return ""
}

func clip(s string) string {
	s = strings.TrimSpace(s)
	const max = 60
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
