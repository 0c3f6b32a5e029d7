package notify

import (
	"net/url"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"fieldline/internal/domain"
)

func TestRedirectDefaults(t *testing.T) {
	cases := []struct {
		role domain.Role
		p    domain.Payload
		want string
	}{
		{domain.RoleBrigade, domain.Payload{TaskID: "T001", RapportID: "R002"}, "/brigade/taches/T001"},
		{domain.RoleBrigade, domain.Payload{RapportID: "R002", DemandeID: "DM003"}, "/brigade/rapports/R002"},
		{domain.RoleBrigade, domain.Payload{DemandeID: "DM003"}, "/brigade/taches?demandeId=DM003"},
		{domain.RoleBrigade, domain.Payload{}, "/brigade/notifications"},
		{domain.RoleSection, domain.Payload{TaskID: "T001", RapportID: "R002"}, "/section/rapports/R002"},
		{domain.RoleSection, domain.Payload{TaskID: "T001", DemandeID: "DM003"}, "/materiels?filtre=demandes&demandeId=DM003"},
		{domain.RoleSection, domain.Payload{TaskID: "T001"}, "/section/taches/T001"},
		{domain.RoleSection, domain.Payload{}, "/section/notifications"},
	}
	for _, tc := range cases {
		if got := RedirectURL(tc.role, tc.p); got != tc.want {
			t.Fatalf("%s %+v: got %s want %s", tc.role, tc.p, got, tc.want)
		}
	}
}

func TestRedirectMergesIntoExplicitTarget(t *testing.T) {
	cases := []struct {
		p    domain.Payload
		want string
	}{
		{
			domain.Payload{RedirectTo: "/materiels", Filter: "demandes", TaskID: "T001", DemandeID: "DM001"},
			"/materiels?filtre=demandes&taskId=T001&demandeId=DM001",
		},
		{
			domain.Payload{RedirectTo: "/x?taskId=OLD&a=1", TaskID: "T9"},
			"/x?taskId=T9&a=1",
		},
		{
			domain.Payload{RedirectTo: "/x?a=1&a=2"},
			"/x?a=1&a=2",
		},
		{
			domain.Payload{RedirectTo: "/x?q=a+b&rapportId=R1&rapportId=R2", RapportID: "R3"},
			"/x?q=a+b&rapportId=R3",
		},
		{
			domain.Payload{RedirectTo: "/x?"},
			"/x",
		},
	}
	for _, tc := range cases {
		if got := RedirectURL(domain.RoleSection, tc.p); got != tc.want {
			t.Fatalf("%+v: got %s want %s", tc.p, got, tc.want)
		}
	}
}

func TestRedirectPropertyFieldsAlwaysWin(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		value := rapid.StringMatching(`[A-Za-z0-9 &=?%]{0,8}`)
		p := domain.Payload{
			RedirectTo: "/page?z=1&taskId=stale",
			Filter:     value.Draw(rt, "filter"),
			TaskID:     value.Draw(rt, "task"),
			RapportID:  value.Draw(rt, "rapport"),
			DemandeID:  value.Draw(rt, "demande"),
		}
		role := rapid.SampledFrom([]domain.Role{domain.RoleSection, domain.RoleBrigade}).Draw(rt, "role")
		got := RedirectURL(role, p)
		base, raw, _ := strings.Cut(got, "?")
		if base != "/page" {
			rt.Fatalf("base changed: %s", got)
		}
		if !strings.HasPrefix(raw, "z=1&") {
			rt.Fatalf("existing parameter lost its position: %s", got)
		}
		q, err := url.ParseQuery(raw)
		if err != nil {
			rt.Fatalf("unparseable query %q: %v", raw, err)
		}
		for key, want := range map[string]string{"filtre": p.Filter, "rapportId": p.RapportID, "demandeId": p.DemandeID} {
			if want == "" {
				if _, ok := q[key]; ok {
					rt.Fatalf("%s should be absent in %s", key, got)
				}
				continue
			}
			if vs := q[key]; len(vs) != 1 || vs[0] != want {
				rt.Fatalf("%s = %v, want %q (%s)", key, vs, want, got)
			}
		}
		wantTask := p.TaskID
		if wantTask == "" {
			wantTask = "stale"
		}
		if vs := q["taskId"]; len(vs) != 1 || vs[0] != wantTask {
			rt.Fatalf("taskId = %v, want %q", vs, wantTask)
		}
	})
}
