package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Fields is the best-effort structured result of an extraction.
type Fields struct {
	Vendor   string  `json:"vendor"`
	Date     string  `json:"date"` // YYYY-MM-DD
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Category string  `json:"category"`
}

// The fixed category vocabulary. Anything outside it sanitizes to "Other".
var categories = map[string]bool{
	"Food & Drink": true,
	"Transport":    true,
	"Office":       true,
	"Shopping":     true,
	"Gas":          true,
	"Hotel":        true,
	"Other":        true,
}

var (
	vendorRE   = regexp.MustCompile(`(?i)"vendor":\s*"([^"]+)"`)
	dateRE     = regexp.MustCompile(`(?i)"date":\s*"([^"]+)"`)
	amountRE   = regexp.MustCompile(`(?i)"amount":\s*"?([0-9.]+)`)
	currencyRE = regexp.MustCompile(`(?i)"currency":\s*"([^"]+)"`)
	categoryRE = regexp.MustCompile(`(?i)"category":\s*"([^"]+)"`)
)

// ParseFields runs the two-stage parse: strict JSON first, and when the
// model wrapped or mangled its reply, a permissive per-field scan.
func ParseFields(text string) Fields {
	if f, err := parseStrict(text); err == nil {
		return f
	}
	return parseLoose(text)
}

// parseStrict decodes the reply as a JSON object, tolerating surrounding
// prose or markdown fences by slicing from the first '{' to the last '}'.
func parseStrict(text string) (Fields, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return Fields{}, fmt.Errorf("no JSON object in reply")
	}
	var f Fields
	if err := json.Unmarshal([]byte(text[start:end+1]), &f); err != nil {
		return Fields{}, fmt.Errorf("strict parse: %w", err)
	}
	return f, nil
}

// parseLoose scavenges whatever fields it can recognize. Misses stay zero
// and are filled in by Sanitize.
func parseLoose(text string) Fields {
	var f Fields
	if m := vendorRE.FindStringSubmatch(text); len(m) == 2 {
		f.Vendor = m[1]
	}
	if m := dateRE.FindStringSubmatch(text); len(m) == 2 {
		f.Date = m[1]
	}
	if m := amountRE.FindStringSubmatch(text); len(m) == 2 {
		f.Amount, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := currencyRE.FindStringSubmatch(text); len(m) == 2 {
		f.Currency = m[1]
	}
	if m := categoryRE.FindStringSubmatch(text); len(m) == 2 {
		f.Category = m[1]
	}
	return f
}

// Sanitize substitutes defaults for absent or malformed fields. Extraction
// results never fail validation, they degrade.
func Sanitize(f Fields) Fields {
	if strings.TrimSpace(f.Vendor) == "" {
		f.Vendor = "Unknown"
	}
	if _, err := time.Parse("2006-01-02", f.Date); err != nil {
		f.Date = time.Now().Format("2006-01-02")
	}
	if f.Amount < 0 {
		f.Amount = 0
	}
	if strings.TrimSpace(f.Currency) == "" {
		f.Currency = "USD"
	}
	if !categories[f.Category] {
		f.Category = "Other"
	}
	return f
}

// Defaults is the all-fields-defaulted result used when the reply is
// unusable end to end.
func Defaults() Fields {
	return Sanitize(Fields{})
}
