// Package emailrisk scores email addresses for format validity and abuse
// risk. Callers should show the end user a generic message regardless of the
// specific reason; the reason and score are for logs and tracking only.
package emailrisk

import (
	"fmt"
	"regexp"
	"strings"
)

// Result describes a validated address. RiskScore is 0-100, higher = riskier.
type Result struct {
	IsValid     bool
	Reason      string
	Suggestions []string
	RiskScore   int
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var tldRe = regexp.MustCompile(`^[a-z]+$`)

var digitRunRe = regexp.MustCompile(`\d{4,}`)

// Common provider typos and their corrections.
var domainTypos = map[string]string{
	"gmial.com":    "gmail.com",
	"gmai.com":     "gmail.com",
	"gmil.com":     "gmail.com",
	"gmaill.com":   "gmail.com",
	"gnail.com":    "gmail.com",
	"gmailcom":     "gmail.com",
	"yahooo.com":   "yahoo.com",
	"yaho.com":     "yahoo.com",
	"yahou.com":    "yahoo.com",
	"outlok.com":   "outlook.com",
	"outloook.com": "outlook.com",
	"hotmial.com":  "hotmail.com",
	"hotmai.com":   "hotmail.com",
	"hotmil.com":   "hotmail.com",
	"iclould.com":  "icloud.com",
	"icloud.co":    "icloud.com",
}

// Disposable email domains (partial list).
var disposableDomains = map[string]struct{}{
	"tempmail.com":      {},
	"throwaway.email":   {},
	"guerrillamail.com": {},
	"mailinator.com":    {},
	"10minutemail.com":  {},
	"yopmail.com":       {},
	"trashmail.com":     {},
	"getnada.com":       {},
	"temp-mail.org":     {},
	"fakeinbox.com":     {},
}

var trustedDomains = map[string]struct{}{
	"gmail.com":      {},
	"yahoo.com":      {},
	"outlook.com":    {},
	"hotmail.com":    {},
	"icloud.com":     {},
	"protonmail.com": {},
	"hey.com":        {},
	"aol.com":        {},
	"live.com":       {},
	"msn.com":        {},
}

var roleBasedLocals = map[string]struct{}{
	"admin":    {},
	"info":     {},
	"support":  {},
	"sales":    {},
	"noreply":  {},
	"no-reply": {},
}

func invalid(reason string) Result {
	return Result{IsValid: false, Reason: reason, RiskScore: 100}
}

// Validate checks format and scores risk for one address.
func Validate(email string) Result {
	addr := strings.ToLower(strings.TrimSpace(email))

	if !emailRe.MatchString(addr) {
		return invalid("invalid email format")
	}
	if len(addr) > 254 {
		return invalid("email address is too long")
	}

	at := strings.Index(addr, "@")
	local, domain := addr[:at], addr[at+1:]

	if len(local) > 64 {
		return invalid("email username is too long")
	}
	if strings.Contains(addr, "..") {
		return invalid("email contains consecutive dots")
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return invalid("email username cannot start or end with a dot")
	}

	domainParts := strings.Split(domain, ".")
	if len(domainParts) < 2 {
		return invalid("invalid domain format")
	}
	tld := domainParts[len(domainParts)-1]
	if len(tld) < 2 || !tldRe.MatchString(tld) {
		return invalid("invalid top-level domain")
	}

	if fixed, ok := domainTypos[domain]; ok {
		// Still valid, but the sender probably meant the real provider.
		return Result{
			IsValid:     true,
			Suggestions: []string{fmt.Sprintf("%s@%s", local, fixed)},
			RiskScore:   30,
		}
	}

	score := 0
	if _, ok := disposableDomains[domain]; ok {
		score += 50
	}
	if _, ok := trustedDomains[domain]; !ok {
		score += 20
	}
	if digitRunRe.MatchString(local) {
		score += 15
	}
	if len(local) < 3 {
		score += 10
	}
	if _, ok := roleBasedLocals[local]; ok {
		score += 25
	}
	if score > 100 {
		score = 100
	}
	return Result{IsValid: true, RiskScore: score}
}

// IsDisposable reports whether the address uses a known throwaway provider.
func IsDisposable(email string) bool {
	addr := strings.ToLower(strings.TrimSpace(email))
	at := strings.Index(addr, "@")
	if at < 0 {
		return false
	}
	_, ok := disposableDomains[addr[at+1:]]
	return ok
}

// DetectTypo returns the corrected address for a known provider typo, or ""
// when the domain looks fine.
func DetectTypo(email string) string {
	addr := strings.ToLower(strings.TrimSpace(email))
	at := strings.Index(addr, "@")
	if at < 0 {
		return ""
	}
	fixed, ok := domainTypos[addr[at+1:]]
	if !ok {
		return ""
	}
	return addr[:at+1] + fixed
}
