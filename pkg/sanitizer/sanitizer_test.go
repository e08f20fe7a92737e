package sanitizer

import (
	"reflect"
	"testing"
)

func TestTrimAndNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"whitespace only", "   \t\n  ", ""},
		{"leading and trailing", "  12 Rue de la Paix  ", "12 Rue de la Paix"},
		{"internal runs collapse", "12   Rue\t\tde  la Paix", "12 Rue de la Paix"},
		{"newlines become spaces", "Hauptstr. 5\n10115 Berlin", "Hauptstr. 5 10115 Berlin"},
		{"already clean", "Hauptstr. 5", "Hauptstr. 5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrimAndNormalize(tt.input); got != tt.expected {
				t.Errorf("TrimAndNormalize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeCategoryLabel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple label", "Home Cleaning", "home_cleaning"},
		{"extra whitespace", "  Home   Cleaning  ", "home_cleaning"},
		{"punctuation stripped", "Move-in / Move-out!", "move_in_move_out"},
		{"digits stripped", "Cleaning 24/7", "cleaning"},
		{"accented letters kept", "Fenêtres & Vitres", "fenêtres_vitres"},
		{"empty", "", ""},
		{"symbols only", "***", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeCategoryLabel(tt.input); got != tt.expected {
				t.Errorf("SanitizeCategoryLabel(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeSlice(t *testing.T) {
	input := []string{" Home Cleaning ", "home cleaning", "", "Office!", "office"}
	got := SanitizeSlice(input, SanitizeCategoryLabel)
	want := []string{"home_cleaning", "office"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SanitizeSlice = %v, want %v", got, want)
	}
}

func TestSanitizeSlice_PreservesFirstSeenOrder(t *testing.T) {
	input := []string{"b", "a", "b", "c", "a"}
	got := SanitizeSlice(input, TrimAndNormalize)
	want := []string{"b", "a", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SanitizeSlice = %v, want %v", got, want)
	}
}

func TestPipeline_AppliesInOrder(t *testing.T) {
	p := Pipeline{
		func(s string) string { return s + "b" },
		func(s string) string { return s + "c" },
	}
	if got := p.Apply("a"); got != "abc" {
		t.Errorf("Pipeline.Apply = %q, want %q", got, "abc")
	}
}
