package semver

import (
	"reflect"
	"testing"
)

func TestCoerce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		version string
		want    string
		wantOK  bool
	}{
		{"strict semver unchanged", "1.2.3", "1.2.3", true},
		{"missing patch", "1.2", "1.2.0", true},
		{"missing minor and patch", "7", "7.0.0", true},
		{"leading v", "v1.0.0", "1.0.0", true},
		{"zero padding stripped", "1.02.0", "1.2.0", true},
		{"name prefix", "openssl@3.0.7", "3.0.7", true},
		{"pre-release kept", "v1.0-pre", "1.0.0-pre", true},
		{"date version rejected", "2023-05-31", "", false},
		{"word rejected", "unstable", "", false},
		{"empty rejected", "", "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := Coerce(tt.version)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Coerce(%q) = (%q, %v), want (%q, %v)",
					tt.version, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestIsDate(t *testing.T) {
	t.Parallel()

	if !IsDate("2023-05-31") {
		t.Error("Y-M-D date not recognized")
	}
	if !IsDate("5-1-2023") {
		t.Error("M-D-Y date not recognized")
	}
	if IsDate("1.2.3") {
		t.Error("semver misclassified as date")
	}
}

func TestFilter(t *testing.T) {
	t.Parallel()

	t.Run("caret range", func(t *testing.T) {
		t.Parallel()

		got, err := Filter("^1.2.0", []string{"1.2.3", "1.3.0", "2.0.0"})
		if err != nil {
			t.Fatalf("Filter: %v", err)
		}
		want := []string{"1.2.3", "1.3.0"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Filter(^1.2.0) = %v, want %v", got, want)
		}
	})

	t.Run("tilde range pins the minor", func(t *testing.T) {
		t.Parallel()

		got, err := Filter("~1.2.0", []string{"1.2.3", "1.3.0", "2.0.0"})
		if err != nil {
			t.Fatalf("Filter: %v", err)
		}
		want := []string{"1.2.3"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Filter(~1.2.0) = %v, want %v", got, want)
		}
	})

	t.Run("loose versions are coerced before matching", func(t *testing.T) {
		t.Parallel()

		got, err := Filter("^1.2.0", []string{"1.2", "1.1"})
		if err != nil {
			t.Fatalf("Filter: %v", err)
		}
		want := []string{"1.2"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Filter = %v, want %v", got, want)
		}
	})

	t.Run("pre-releases included when release part satisfies", func(t *testing.T) {
		t.Parallel()

		got, err := Filter(">=1.2.0", []string{"1.2.3-rc1", "1.1.0-rc1"})
		if err != nil {
			t.Fatalf("Filter: %v", err)
		}
		want := []string{"1.2.3-rc1"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Filter = %v, want %v", got, want)
		}
	})

	t.Run("wildcard ranges match everything", func(t *testing.T) {
		t.Parallel()

		for _, rang := range []string{"", "*", "any", "^*", "~*", "x", "X"} {
			got, err := Filter(rang, []string{"1.0.0", "garbage"})
			if err != nil {
				t.Fatalf("Filter(%q): %v", rang, err)
			}
			if len(got) != 2 {
				t.Errorf("Filter(%q) dropped versions: %v", rang, got)
			}
		}
	})

	t.Run("invalid range is an error", func(t *testing.T) {
		t.Parallel()

		if _, err := Filter("not-a-range", []string{"1.0.0"}); err == nil {
			t.Error("expected error for invalid range")
		}
	})

	t.Run("uncoercible versions never satisfy", func(t *testing.T) {
		t.Parallel()

		got, err := Filter("^1.0.0", []string{"2023-05-31", "unstable"})
		if err != nil {
			t.Fatalf("Filter: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Filter = %v, want empty", got)
		}
	})
}
