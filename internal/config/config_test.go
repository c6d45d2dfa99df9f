package config

import (
	"reflect"
	"testing"
)

func TestParseOrigins(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty means allow all", "", nil},
		{"single origin", "https://exam.example.com", []string{"https://exam.example.com"}},
		{
			"trims whitespace",
			" https://a.example.com , https://b.example.com ",
			[]string{"https://a.example.com", "https://b.example.com"},
		},
		{"drops empty entries", "https://a.example.com,,", []string{"https://a.example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseOrigins(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseOrigins(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "42")
	if got := getEnvInt("CFG_TEST_INT", 7); got != 42 {
		t.Errorf("getEnvInt = %d, want 42", got)
	}

	t.Setenv("CFG_TEST_INT", "not-a-number")
	if got := getEnvInt("CFG_TEST_INT", 7); got != 7 {
		t.Errorf("getEnvInt with invalid value = %d, want fallback 7", got)
	}

	if got := getEnvInt("CFG_TEST_UNSET", 7); got != 7 {
		t.Errorf("getEnvInt with unset key = %d, want fallback 7", got)
	}
}
