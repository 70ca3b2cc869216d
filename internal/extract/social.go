package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// socialPlatforms maps host suffixes to platform names.
var socialPlatforms = map[string]string{
	"facebook.com":  "facebook",
	"instagram.com": "instagram",
	"linkedin.com":  "linkedin",
	"twitter.com":   "twitter",
	"x.com":         "twitter",
	"youtube.com":   "youtube",
	"yelp.com":      "yelp",
}

// Share widgets and login redirects point at the platform, not at the
// business's profile.
var socialBlockedPrefixes = []string{
	"/sharer", "/share", "/intent", "/login", "/dialog",
	"/plugins", "/search", "/hashtag", "/oauth",
}

// extractSocial collects one profile URL per platform, first hit wins.
// Accepted URLs are normalized: query and fragment stripped, trailing
// slash trimmed.
func extractSocial(pages []page) map[string]string {
	out := map[string]string{}
	for _, p := range pages {
		if p.doc == nil {
			continue
		}
		p.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			platform, profile, ok := classifySocial(href)
			if !ok {
				return
			}
			if _, seen := out[platform]; !seen {
				out[platform] = profile
			}
		})
	}
	return out
}

func classifySocial(href string) (string, string, bool) {
	u, err := url.Parse(href)
	if err != nil || u.Host == "" {
		return "", "", false
	}
	host := strings.ToLower(strings.TrimPrefix(u.Host, "www."))

	platform := ""
	for suffix, name := range socialPlatforms {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			platform = name
			break
		}
	}
	if platform == "" {
		return "", "", false
	}

	path := strings.ToLower(u.Path)
	if path == "" || path == "/" {
		return "", "", false
	}
	for _, blocked := range socialBlockedPrefixes {
		if strings.HasPrefix(path, blocked) {
			return "", "", false
		}
	}

	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return platform, u.String(), true
}
