package indexer

import (
	"context"
	"errors"
	"testing"
)

type fakeSyncer struct {
	n   int
	err error
}

func (f fakeSyncer) SyncAll(context.Context) (int, error) {
	return f.n, f.err
}

func TestJobRun(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")

	tests := []struct {
		name    string
		syncer  fakeSyncer
		wantErr error
	}{
		{name: "nothing_new", syncer: fakeSyncer{}},
		{name: "stored", syncer: fakeSyncer{n: 4}},
		{name: "failure", syncer: fakeSyncer{n: 2, err: boom}, wantErr: boom},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := New(tt.syncer, nil).Run(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Run() err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
