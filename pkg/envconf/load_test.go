package envconf

import (
	"errors"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type nested struct {
	Interval time.Duration `env:"ENVCONF_TEST_INTERVAL" default:"2s"`
}

type sample struct {
	Name     string     `env:"ENVCONF_TEST_NAME"`
	Level    slog.Level `env:"ENVCONF_TEST_LEVEL" default:"INFO"`
	Attempts int        `env:"ENVCONF_TEST_ATTEMPTS" default:"30"`
	Stake    *big.Int   `env:"ENVCONF_TEST_STAKE" default:""`
	Enabled  bool       `env:"ENVCONF_TEST_ENABLED" default:"false"`
	Poll     nested
}

//nolint:paralleltest
func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		check   func(t *testing.T, s sample)
		wantErr error
		anyErr  bool
	}{
		{
			name:    "missing_required",
			env:     map[string]string{},
			wantErr: ErrMissingRequired,
		},
		{
			name: "defaults_apply",
			env:  map[string]string{"ENVCONF_TEST_NAME": "rps"},
			check: func(t *testing.T, s sample) {
				if s.Name != "rps" || s.Level != slog.LevelInfo || s.Attempts != 30 || s.Poll.Interval != 2*time.Second {
					t.Fatalf("unexpected config: %+v", s)
				}
				if s.Stake != nil {
					t.Fatalf("empty default must leave pointer nil, got %v", s.Stake)
				}
			},
		},
		{
			name: "env_overrides",
			env: map[string]string{
				"ENVCONF_TEST_NAME":     "rps",
				"ENVCONF_TEST_LEVEL":    "DEBUG",
				"ENVCONF_TEST_ATTEMPTS": "5",
				"ENVCONF_TEST_STAKE":    "10000000000000000",
				"ENVCONF_TEST_ENABLED":  "true",
				"ENVCONF_TEST_INTERVAL": "150ms",
			},
			check: func(t *testing.T, s sample) {
				if s.Level != slog.LevelDebug || s.Attempts != 5 || !s.Enabled || s.Poll.Interval != 150*time.Millisecond {
					t.Fatalf("unexpected config: %+v", s)
				}
				if s.Stake == nil || s.Stake.Cmp(big.NewInt(10_000_000_000_000_000)) != 0 {
					t.Fatalf("stake = %v", s.Stake)
				}
			},
		},
		{
			name:   "bad_int",
			env:    map[string]string{"ENVCONF_TEST_NAME": "rps", "ENVCONF_TEST_ATTEMPTS": "many"},
			anyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			var s sample
			err := Load(&s)

			switch {
			case tt.anyErr:
				if err == nil {
					t.Fatal("expected parse error")
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v, want %v", err, tt.wantErr)
				}
			default:
				if err != nil {
					t.Fatalf("load: %v", err)
				}
				tt.check(t, s)
			}
		})
	}
}

//nolint:paralleltest
func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")

	err := os.WriteFile(path, []byte("ENVCONF_DOTENV_A=from-file\nENVCONF_DOTENV_B=from-file\n"), 0o600)
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv("ENVCONF_DOTENV_B", "from-env")
	t.Cleanup(func() { os.Unsetenv("ENVCONF_DOTENV_A") })

	err = LoadDotenv(path, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("load dotenv: %v", err)
	}

	if got := os.Getenv("ENVCONF_DOTENV_A"); got != "from-file" {
		t.Fatalf("A = %q", got)
	}
	if got := os.Getenv("ENVCONF_DOTENV_B"); got != "from-env" {
		t.Fatalf("B = %q, existing env must win", got)
	}
}

func TestLoad_RejectsNonStruct(t *testing.T) {
	t.Parallel()

	n := 1
	if err := Load(&n); err == nil {
		t.Fatal("expected error for non-struct destination")
	}
	if err := Load(nil); err == nil {
		t.Fatal("expected error for nil destination")
	}
}

type pair struct {
	First  string `env:"ENVCONF_TEST_FIRST"`
	Second string `env:"ENVCONF_TEST_SECOND"`
	Nested struct {
		Count int `env:"ENVCONF_TEST_COUNT" default:"1"`
	}
}

//nolint:paralleltest
func TestLoad_ReportsEveryProblem(t *testing.T) {
	t.Setenv("ENVCONF_TEST_COUNT", "lots")

	var p pair
	err := Load(&p)
	if !errors.Is(err, ErrMissingRequired) {
		t.Fatalf("got %v, want ErrMissingRequired", err)
	}

	for _, want := range []string{"ENVCONF_TEST_FIRST", "ENVCONF_TEST_SECOND", `"Nested.Count"`} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}
