package location

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", "", ""},
		{"plain", "Hyderabad", "hyderabad"},
		{"padded", " Hyderabad ", "hyderabad"},
		{"upper", "HYDERABAD", "hyderabad"},
		{"accented", "Hyderābad", "hyderabad"},
		{"precomposed accent", "São Paulo", "sao paulo"},
		{"punctuation", "St. John's", "st johns"},
		{"hyphen kept", "Navi-Mumbai", "navi-mumbai"},
		{"inner whitespace", "New \t  Delhi", "new delhi"},
		{"whitespace only", "   ", ""},
		{"punctuation only", "!!!", ""},
		{"non-breaking space", "New\u00a0Delhi", "new delhi"},
		{"byte order mark separates", "New\ufeffDelhi", "new delhi"},
		{"next line is removed", "New\u0085Delhi", "newdelhi"},
		{"compatibility form", "ｐｕｎｅ", "pune"},
		{"digits and underscore", "Sector_17 2", "sector_17 2"},
		{"removed char between spaces", "a . b", "a b"},
		{"non-latin script", "दिल्ली", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Normalize(tt.raw); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalize_CaseAndPaddingInsensitive(t *testing.T) {
	t.Parallel()
	variants := []string{"Mumbai", " mumbai", "MUMBAI  ", "\tMuMbAi\n"}
	want := Normalize(variants[0])
	for _, v := range variants[1:] {
		if got := Normalize(v); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", v, got, want)
		}
	}
}

func TestEffectiveCity(t *testing.T) {
	t.Parallel()
	pref := Preference{City: "Pune", CityLC: "pune"}

	tests := []struct {
		name  string
		param string
		pref  Preference
		want  string
	}{
		{"param wins", " Mumbai ", pref, "Mumbai"},
		{"blank param uses preference", "  ", pref, "Pune"},
		{"nothing", "", Preference{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := EffectiveCity(tt.param, tt.pref); got != tt.want {
				t.Errorf("EffectiveCity() = %q, want %q", got, tt.want)
			}
		})
	}
}
