package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                          "/",
		"/metrics":                  "/metrics",
		"/login":                    "/login",
		"/my-assignments":           "/my-assignments",
		"/assignments?limit=10":     "/assignments",
		"/unlock-project":           "/unlock-project",
		"/unlock-project/extra":     "/other",
		"/totally/unknown":          "/other",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
