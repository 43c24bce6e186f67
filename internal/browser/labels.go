package browser

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// option is one <option> of a form select.
type option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var (
	folder     = cases.Fold()
	emailRE    = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	bracketRE  = regexp.MustCompile(`\[\s*0*(\d+)\s*\]`)
	nonDigitRE = regexp.MustCompile(`\D`)
)

// normalizeLabel folds case and width and collapses whitespace so option
// labels compare equal regardless of how the form renders them.
func normalizeLabel(s string) string {
	s = folder.String(norm.NFKC.String(s))
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == ' '
	}), " ")
}

// normalizeCode keeps digits and drops leading zeros: "073" -> "73".
func normalizeCode(code string) string {
	return strings.TrimLeft(digitsOnly(code), "0")
}

func digitsOnly(s string) string {
	return nonDigitRE.ReplaceAllString(s, "")
}

func validEmail(s string) bool {
	return emailRE.MatchString(strings.TrimSpace(s))
}

// foundedYear extracts a four digit year, or "" when the value has fewer digits.
func foundedYear(s string) string {
	d := digitsOnly(s)
	if len(d) < 4 {
		return ""
	}
	return d[:4]
}

// optionByCode returns the value of the option whose label carries "[code]",
// tolerating leading zeros on either side.
func optionByCode(options []option, code string) (string, bool) {
	want := normalizeCode(code)
	if want == "" {
		return "", false
	}
	for _, opt := range options {
		m := bracketRE.FindStringSubmatch(opt.Label)
		if m == nil || opt.Value == "" {
			continue
		}
		if strings.TrimLeft(m[1], "0") == want {
			return opt.Value, true
		}
	}
	return "", false
}

// optionByLabel returns the value of the option whose normalized label
// equals target.
func optionByLabel(options []option, target string) (string, bool) {
	want := normalizeLabel(target)
	if want == "" {
		return "", false
	}
	for _, opt := range options {
		if normalizeLabel(opt.Label) == want {
			return opt.Value, true
		}
	}
	return "", false
}

// bestMatch returns the index of the candidate with the highest token-set
// similarity to target, or -1 when nothing shares a token.
func bestMatch(target string, candidates []string) int {
	want := tokenSet(target)
	if len(want) == 0 {
		return -1
	}
	best, bestScore := -1, 0.0
	for i, candidate := range candidates {
		score := tokenSetRatio(want, tokenSet(candidate))
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.FieldsFunc(normalizeLabel(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// tokenSetRatio scores how much of the smaller token set is contained in
// the larger one, in [0, 1].
func tokenSetRatio(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	shared := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			shared++
		}
	}
	// Penalize size mismatch lightly so exact matches beat supersets.
	return float64(shared)/float64(len(small)) - float64(len(large)-shared)*0.01
}
