package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`\(?\d{3}\)?[\s.\-]\d{3}[\s.\-]\d{4}`)
	digitRe = regexp.MustCompile(`\d`)
)

// Domains that show up in page templates and tracking code, never as a
// real business address.
var emailDenyDomains = []string{
	"example.com", "example.org", "domain.com", "email.com",
	"yourdomain.com", "yourcompany.com", "sentry.io", "wixpress.com",
	"sentry.wixpress.com", "godaddy.com", "placeholder.com",
}

// Asset filenames matched by the email regex ("logo@2x.png" and kin).
var emailDenySuffixes = []string{
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js", ".ico",
}

// Words that must appear near a phone-shaped string for it to count.
// Bare number runs in copy are usually prices, dates, or addresses.
var phoneContextWords = []string{
	"phone", "call", "tel", "fax", "contact", "office", "mobile", "reach",
}

const (
	phoneContextWindow = 80
	maxEmails          = 10
	maxPhones          = 5
)

// extractEmails collects credible email addresses across all pages.
// mailto: links are trusted unconditionally; addresses found in page
// text pass the denylist first. Deduplicated case-insensitively and
// capped at maxEmails, mailto hits first.
func extractEmails(pages []page) []string {
	var out []string
	seen := map[string]bool{}
	add := func(addr string) bool {
		key := strings.ToLower(addr)
		if !seen[key] {
			seen[key] = true
			out = append(out, addr)
		}
		return len(out) < maxEmails
	}

	for _, p := range pages {
		if p.doc == nil {
			continue
		}
		p.doc.Find(`a[href^="mailto:"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			addr := strings.TrimPrefix(href, "mailto:")
			if i := strings.IndexByte(addr, '?'); i >= 0 {
				addr = addr[:i]
			}
			addr = strings.TrimSpace(addr)
			if !emailRe.MatchString(addr) {
				return true
			}
			return add(addr)
		})
		if len(out) >= maxEmails {
			return out
		}
	}

	for _, p := range pages {
		for _, addr := range emailRe.FindAllString(p.text, -1) {
			if !validEmail(addr) {
				continue
			}
			if !add(addr) {
				return out
			}
		}
	}
	return out
}

func validEmail(addr string) bool {
	lower := strings.ToLower(addr)
	for _, suffix := range emailDenySuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}
	at := strings.LastIndexByte(lower, '@')
	if at < 0 {
		return false
	}
	domain := lower[at+1:]
	for _, deny := range emailDenyDomains {
		if domain == deny || strings.HasSuffix(domain, "."+deny) {
			return false
		}
	}
	return true
}

// extractPhones collects credible phone numbers across all pages.
// tel: links are trusted unconditionally; the fake-number and context
// filters apply only to numbers found in page text. Deduplicated by
// digit string and capped at maxPhones.
func extractPhones(pages []page) []string {
	var out []string
	seen := map[string]bool{}
	add := func(num string) bool {
		key := strings.Join(digitRe.FindAllString(num, -1), "")
		if !seen[key] {
			seen[key] = true
			out = append(out, num)
		}
		return len(out) < maxPhones
	}

	for _, p := range pages {
		if p.doc == nil {
			continue
		}
		p.doc.Find(`a[href^="tel:"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			num := strings.TrimSpace(strings.TrimPrefix(href, "tel:"))
			if num == "" {
				return true
			}
			return add(num)
		})
		if len(out) >= maxPhones {
			return out
		}
	}

	for _, p := range pages {
		lower := strings.ToLower(p.text)
		for _, loc := range phoneRe.FindAllStringIndex(p.text, -1) {
			num := p.text[loc[0]:loc[1]]
			if fakePhone(num) || !hasPhoneContext(lower, loc[0], loc[1]) {
				continue
			}
			if !add(num) {
				return out
			}
		}
	}
	return out
}

func hasPhoneContext(lower string, start, end int) bool {
	from := start - phoneContextWindow
	if from < 0 {
		from = 0
	}
	to := end + phoneContextWindow
	if to > len(lower) {
		to = len(lower)
	}
	window := lower[from:to]
	for _, w := range phoneContextWords {
		if strings.Contains(window, w) {
			return true
		}
	}
	return false
}

// fakePhone rejects repeated-digit and sequential placeholders like
// 555-555-5555 or (123) 456-7890.
func fakePhone(num string) bool {
	digits := strings.Join(digitRe.FindAllString(num, -1), "")
	if len(digits) > 10 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) < 10 {
		return true
	}

	same := true
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			same = false
			break
		}
	}
	if same {
		return true
	}

	sequential := true
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[i-1]+1 && !(digits[i-1] == '9' && digits[i] == '0') {
			sequential = false
			break
		}
	}
	if sequential {
		return true
	}

	// 555-01xx is the reserved fictional exchange.
	return digits[3:6] == "555" && strings.HasPrefix(digits[6:], "01")
}
