package validation

import "testing"

type sample struct {
	Category string `validate:"required,category"`
	FirmName string `validate:"notblank"`
}

func TestCategoryAndNotBlank(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      sample
		wantErr map[string]string
	}{
		{"valid", sample{Category: "Packer & Movers", FirmName: "Movers"}, nil},
		{"unknown category", sample{Category: "Gardening", FirmName: "x"}, map[string]string{"category": ""}},
		{"category in any case", sample{Category: " plumber ", FirmName: "x"}, nil},
		{"blank firm name", sample{Category: "Food", FirmName: "   "}, map[string]string{"firm_name": "is required"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate.Struct(tt.in)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate.Struct() error = %v", err)
				}
				return
			}
			got := FieldErrors(err)
			for field, msg := range tt.wantErr {
				if _, ok := got[field]; !ok {
					t.Errorf("missing error for %s in %v", field, got)
				}
				if msg != "" && got[field] != msg {
					t.Errorf("error[%s] = %q, want %q", field, got[field], msg)
				}
			}
		})
	}
}

func TestSanitizeText(t *testing.T) {
	t.Parallel()
	if got := SanitizeText("  hello\x00 world\n "); got != "hello world" {
		t.Errorf("SanitizeText() = %q", got)
	}
}
