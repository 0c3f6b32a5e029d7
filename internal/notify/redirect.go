package notify

import (
	"net/url"
	"strings"

	"fieldline/internal/domain"
)

// RedirectURL is where a client navigates when a notification is opened.
// An explicit redirectTo is kept with the payload's ids merged into its
// query; otherwise a per-role default is built from the first id present.
func RedirectURL(role domain.Role, p domain.Payload) string {
	if p.RedirectTo == "" {
		return defaultRedirect(role, p)
	}
	base, rawQuery, _ := strings.Cut(p.RedirectTo, "?")
	q := parseQuery(rawQuery)
	q.set("filtre", p.Filter)
	q.set("rapportId", p.RapportID)
	q.set("taskId", p.TaskID)
	q.set("demandeId", p.DemandeID)
	if len(q) == 0 {
		return base
	}
	return base + "?" + q.encode()
}

func defaultRedirect(role domain.Role, p domain.Payload) string {
	switch role {
	case domain.RoleBrigade:
		switch {
		case p.TaskID != "":
			return "/brigade/taches/" + url.PathEscape(p.TaskID)
		case p.RapportID != "":
			return "/brigade/rapports/" + url.PathEscape(p.RapportID)
		case p.DemandeID != "":
			return "/brigade/taches?demandeId=" + url.QueryEscape(p.DemandeID)
		}
		return "/brigade/notifications"
	case domain.RoleSection:
		switch {
		case p.RapportID != "":
			return "/section/rapports/" + url.PathEscape(p.RapportID)
		case p.DemandeID != "":
			return "/materiels?filtre=demandes&demandeId=" + url.QueryEscape(p.DemandeID)
		case p.TaskID != "":
			return "/section/taches/" + url.PathEscape(p.TaskID)
		}
		return "/section/notifications"
	}
	return "/"
}

type param struct{ key, value string }

// query keeps parameter order, unlike url.Values.
type query []param

func parseQuery(raw string) query {
	var q query
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			key = k
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			val = v
		}
		q = append(q, param{key, val})
	}
	return q
}

// set replaces the first occurrence of key and drops the others, or appends
// when key is absent. Empty values leave q untouched.
func (q *query) set(key, value string) {
	if value == "" {
		return
	}
	out := (*q)[:0]
	found := false
	for _, p := range *q {
		if p.key != key {
			out = append(out, p)
			continue
		}
		if !found {
			out = append(out, param{key, value})
			found = true
		}
	}
	if !found {
		out = append(out, param{key, value})
	}
	*q = out
}

func (q query) encode() string {
	var b strings.Builder
	for i, p := range q {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}
