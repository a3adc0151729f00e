package services

import (
	"reflect"
	"testing"
)

// TestStringListRoundTrip checks ontology list encoding for MySQL storage
func TestStringListRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		values []string
	}{
		{"nil list", nil},
		{"empty list", []string{}},
		{"single value", []string{"Person"}},
		{"multiple values", []string{"Person", "System", "Organization"}},
		{"values with spaces", []string{"Delivery Milestone", "Third Party"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := encodeStringList(tt.values)
			decoded := decodeStringList(encoded)

			if len(tt.values) == 0 {
				if encoded != "" {
					t.Errorf("encodeStringList(%v) = %q, want empty string", tt.values, encoded)
				}
				if decoded != nil {
					t.Errorf("decodeStringList(%q) = %v, want nil", encoded, decoded)
				}
				return
			}
			if !reflect.DeepEqual(decoded, tt.values) {
				t.Errorf("round trip = %v, want %v", decoded, tt.values)
			}
		})
	}
}

// TestDecodeStringListMalformed checks that bad stored JSON is dropped
func TestDecodeStringListMalformed(t *testing.T) {
	if got := decodeStringList("not json"); got != nil {
		t.Errorf("decodeStringList(malformed) = %v, want nil", got)
	}
	if got := decodeStringList(`{"a": 1}`); got != nil {
		t.Errorf("decodeStringList(wrong shape) = %v, want nil", got)
	}
}

// TestValidateSchedule checks cron expression validation
func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"empty means manual", "", false},
		{"whitespace only", "   ", false},
		{"every five minutes", "*/5 * * * *", false},
		{"daily at midnight", "0 0 * * *", false},
		{"weekdays at nine", "0 9 * * 1-5", false},
		{"descriptor", "@hourly", false},
		{"too few fields", "* * *", true},
		{"garbage", "whenever", true},
		{"bad range", "0 25 * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSchedule(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateSchedule(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}
