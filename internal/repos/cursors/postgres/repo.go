package cursors

import (
	"database/sql"

	"github.com/fastprodman/sealedrps/internal/repos/cursors"
)

var _ cursors.Cursors = (*cursorsRepo)(nil)

type cursorsRepo struct{ db *sql.DB }

func New(db *sql.DB) *cursorsRepo {
	return &cursorsRepo{db: db}
}
