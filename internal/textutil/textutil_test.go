package textutil

import "testing"

func TestSameNameComposesUnicode(t *testing.T) {
	decomposed := "Cafe\u0301 Synth"
	composed := "Caf\u00e9 Synth"
	if !SameName(decomposed, composed) {
		t.Fatal("expected NFC-equivalent names to match")
	}
	if SameName("Synth", "synth") {
		t.Fatal("expected case-sensitive comparison")
	}
	if !SameName("  Synth In ", "Synth In") {
		t.Fatal("expected surrounding whitespace to be ignored")
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := map[string]string{
		"Keystation 49 MIDI 1": "keystation_49_midi_1",
		"  ":                   "unknown",
		"--Out--":              "out",
		"a/b:c":                "a_b_c",
	}
	for input, want := range tests {
		if got := SanitizeToken(input); got != want {
			t.Fatalf("SanitizeToken(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestTernary(t *testing.T) {
	if Ternary(true, "yes", "no") != "yes" || Ternary(false, 1, 2) != 2 {
		t.Fatal("unexpected ternary result")
	}
}
