package helpers

import "testing"

func TestSanitizeNotes(t *testing.T) {
	cases := map[string]string{
		"":                         "",
		"  coffee chat about Go  ": "coffee chat about Go",
		`<p>Intro call <script>alert(1)</script></p>`: "Intro call",
		"Q&A with Tom & Jerry":                        "Q&A with Tom & Jerry",
		`<b onclick="x()">bold</b> move`:              "bold move",
	}
	for in, want := range cases {
		if got := SanitizeNotes(in); got != want {
			t.Fatalf("SanitizeNotes(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRuneCount(t *testing.T) {
	if RuneCount("héllo🙂") != 6 {
		t.Fatalf("unexpected rune count")
	}
}
