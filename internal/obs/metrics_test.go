package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                      "/",
		"/metrics":                              "/metrics",
		"/v1/communities":                       "/v1/communities",
		"/v1/communities/01ABC":                 "/v1/communities/:id",
		"/v1/communities/01ABC/cohorts":         "/v1/communities/:id/cohorts",
		"/v1/communities/01ABC/restriction":     "/v1/communities/:id/restriction",
		"/v1/communities/join":                  "/v1/communities/join",
		"/v1/roles/assign":                      "/v1/roles/assign",
		"/v1/roles/revoke?scope=community":      "/v1/roles/revoke",
		"/v1/communities/01ABC/cohorts/deep/xx": "/v1/communities/01ABC/cohorts/deep/xx",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
