package secret

import (
	"errors"
	"strings"
	"testing"
)

func TestExpandEnvStrict(t *testing.T) {
	t.Setenv("HEALTHD_A", "alpha")
	t.Setenv("HEALTHD_EMPTY", "")

	tests := []struct {
		in   string
		want string
	}{
		{"${HEALTHD_A}", "alpha"},
		{"$HEALTHD_A-x", "alpha-x"},
		{"pre-${HEALTHD_EMPTY}-post", "pre--post"},
		{"$$HEALTHD_A", "$HEALTHD_A"},
		{"no vars", "no vars"},
	}
	for _, tt := range tests {
		got, err := ExpandEnvStrict(tt.in)
		if err != nil {
			t.Errorf("ExpandEnvStrict(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ExpandEnvStrict(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExpandEnvStrict_MissingListsAllSorted(t *testing.T) {
	_, err := ExpandEnvStrict("${HEALTHD_ZZ_UNSET} ${HEALTHD_AA_UNSET} ${HEALTHD_ZZ_UNSET}")
	if !errors.Is(err, ErrMissingEnv) {
		t.Fatalf("error = %v, want ErrMissingEnv", err)
	}
	if !strings.HasSuffix(err.Error(), "HEALTHD_AA_UNSET, HEALTHD_ZZ_UNSET") {
		t.Errorf("error = %q", err.Error())
	}
}
