package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/contracts-parser/internal/common"
)

var (
	reYMD    = regexp.MustCompile(`^(\d{4})\s*[年/.\-]\s*(\d{1,2})\s*[月/.\-]\s*(\d{1,2})\s*[日号]?$`)
	reAmount = regexp.MustCompile(`^(-?\d+(?:\.\d+)?)(万|亿)?$`)

	amountNoise = strings.NewReplacer(
		"¥", "", "￥", "", "$", "", ",", "", "，", "", " ", "", "\u00a0", "",
		"人民币", "", "RMB", "", "CNY", "", "USD", "", "元", "", "整", "",
	)

	currencySynonyms = map[string]string{
		"人民币": "CNY", "元": "CNY", "¥": "CNY", "￥": "CNY", "RMB": "CNY",
		"美元": "USD", "美金": "USD", "$": "USD", "US$": "USD",
		"欧元": "EUR", "€": "EUR",
		"港币": "HKD", "港元": "HKD",
		"日元": "JPY", "英镑": "GBP",
	}
)

func ParseYMD(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	// strip time to midnight UTC to match DATE semantics
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// NormalizeDate rewrites 2024年1月5日, 2024/1/5, 2024.1.5 and 2024-1-5 as 2024-01-05.
// Impossible calendar dates are rejected.
func NormalizeDate(s string) (string, bool) {
	m := reYMD.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", false
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	out := fmt.Sprintf("%04d-%02d-%02d", y, mo, d)
	if _, err := ParseYMD(out); err != nil {
		return "", false
	}
	return out, true
}

// ParseAmount reads money-like text as a bare number. Currency marks and separators are
// ignored, 万 and 亿 multiply, and a trailing percent sign divides by 100.
func ParseAmount(s string) (float64, bool) {
	s = amountNoise.Replace(strings.TrimSpace(s))
	percent := false
	if strings.HasSuffix(s, "%") || strings.HasSuffix(s, "％") {
		percent = true
		s = strings.TrimSuffix(strings.TrimSuffix(s, "%"), "％")
	}
	m := reAmount.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	switch m[2] {
	case "万":
		f *= 10000
	case "亿":
		f *= 100000000
	}
	if percent {
		f /= 100
	}
	return f, true
}

// NormalizeCurrency maps common currency names and symbols to an ISO 4217 code.
func NormalizeCurrency(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if code, ok := currencySynonyms[s]; ok {
		return code, true
	}
	code := strings.ToUpper(s)
	if code == "RMB" {
		return "CNY", true
	}
	if common.CurrencyCode("currency", code) != nil {
		return "", false
	}
	return code, true
}

// TruncateRunes cuts s to at most n characters and reports whether it did.
func TruncateRunes(s string, n int) (string, bool) {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s, false
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], true
		}
		i++
	}
	return s, false
}
