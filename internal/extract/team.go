package extract

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const maxTeamMembers = 25

// execTitles are titles that identify a decision maker or named staff.
var execTitles = []string{
	"owner", "co-owner", "ceo", "president", "vice president", "founder",
	"co-founder", "principal", "general manager", "managing partner",
	"partner", "cfo", "coo", "operations manager", "service manager",
	"office manager", "master plumber", "master electrician",
}

// Compound titles formed with a role prefix ("VP of Sales").
var titlePrefixes = []string{
	"vp of", "director of", "head of", "manager of",
}

// nameRe matches two or three capitalized words, allowing middle
// initials and common surname particles.
var nameRe = regexp.MustCompile(`^[A-Z][a-zA-Z'\-]+(?: [A-Z]\.?)?(?: [A-Z][a-zA-Z'\-]+){1,2}$`)

// looseNameRe matches a standalone two-word name, accepted without a
// title only on pages whose URL marks them as a team roster.
var looseNameRe = regexp.MustCompile(`^[A-Z][a-z'\-]+ [A-Z][a-z'\-]+$`)

// teamPathRe marks URLs whose copy is likely a staff roster.
var teamPathRe = regexp.MustCompile(`(?i)/(about|team|staff|people|leadership|meet)`)

func teamPage(pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	return teamPathRe.MatchString(u.Path)
}

// Separators between a name and its title on team pages.
var teamSepRe = regexp.MustCompile(`\s*[,\-–—|:]\s+|\s+[\-–—|]\s*`)

var nameCaser = cases.Title(language.English)

// canonicalName folds shouting-case team pages ("DAVE MILLER") into
// title case so the name pattern and dedupe key both match.
func canonicalName(s string) string {
	if s != strings.ToUpper(s) || !strings.ContainsAny(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		return s
	}
	return nameCaser.String(strings.ToLower(s))
}

// extractTeam scans text lines for "Name, Title" and "Name - Title"
// patterns where the title names an organizational role. Team-roster
// pages additionally accept bare two-word names with a generic title.
// Deduplicated by lowercase name; a titled entry wins over a bare one.
func extractTeam(pages []page) []TeamMember {
	var members []TeamMember
	index := map[string]int{}
	titled := map[string]bool{}

	add := func(name, title string, exec bool) {
		key := strings.ToLower(name)
		if i, ok := index[key]; ok {
			if exec && !titled[key] {
				members[i].Title = title
				titled[key] = true
			}
			return
		}
		index[key] = len(members)
		titled[key] = exec
		members = append(members, TeamMember{Name: name, Title: title})
	}

	for _, p := range pages {
		roster := teamPage(p.url)
		for _, line := range strings.Split(p.text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || len(line) > 120 {
				continue
			}
			if name, title, ok := splitNameTitle(line); ok {
				add(name, title, true)
				continue
			}
			if roster {
				if name := canonicalName(line); looseNameRe.MatchString(name) && validName(name) {
					add(name, "Team Member", false)
				}
			}
		}
	}

	if len(members) > maxTeamMembers {
		members = members[:maxTeamMembers]
	}
	return members
}

func splitNameTitle(line string) (string, string, bool) {
	parts := teamSepRe.Split(line, 2)
	if len(parts) != 2 {
		return "", "", false
	}
	left := canonicalName(strings.TrimSpace(parts[0]))
	right := strings.TrimSpace(strings.TrimSuffix(parts[1], "."))

	// "Name, Title" is the common form; "Title: Name" appears on older
	// sites.
	if validName(left) && isExecTitle(right) {
		return left, right, true
	}
	if other := canonicalName(right); validName(other) && isExecTitle(left) {
		return other, left, true
	}
	return "", "", false
}

func validName(s string) bool {
	if !nameRe.MatchString(s) {
		return false
	}
	lower := strings.ToLower(s)
	for _, t := range execTitles {
		if strings.Contains(lower, t) {
			return false
		}
	}
	return true
}

func isExecTitle(s string) bool {
	lower := strings.ToLower(s)
	for _, prefix := range titlePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	for _, t := range execTitles {
		if lower == t || strings.HasPrefix(lower, t+" ") || strings.HasSuffix(lower, " "+t) {
			return true
		}
	}
	return false
}
