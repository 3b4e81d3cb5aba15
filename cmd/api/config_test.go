package main

import (
	"errors"
	"testing"

	"github.com/fastprodman/sealedrps/internal/config"
)

func TestAPIConfigValidate(t *testing.T) {
	t.Parallel()

	const dsn = "postgres://rps@localhost:5432/rps?sslmode=disable"

	tests := []struct {
		name    string
		cfg     apiConfig
		wantErr bool
	}{
		{name: "workers_off", cfg: apiConfig{}},
		{
			name: "reclaimer_with_index",
			cfg: func() apiConfig {
				var c apiConfig
				c.Postgres.DSN = dsn
				c.Indexer.Enabled = true
				c.Reclaimer.Enabled = true
				return c
			}(),
		},
		{
			name: "reclaimer_without_postgres",
			cfg: func() apiConfig {
				var c apiConfig
				c.Indexer.Enabled = true
				c.Reclaimer.Enabled = true
				return c
			}(),
			wantErr: true,
		},
		{
			name: "reclaimer_without_indexer",
			cfg: func() apiConfig {
				var c apiConfig
				c.Postgres.DSN = dsn
				c.Reclaimer.Enabled = true
				return c
			}(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg.validate()
			if tt.wantErr != (err != nil) {
				t.Fatalf("validate() = %v, wantErr %v", err, tt.wantErr)
			}

			if tt.wantErr && !errors.Is(err, config.ErrInvalidConfig) {
				t.Fatalf("want ErrInvalidConfig, got %v", err)
			}
		})
	}
}
