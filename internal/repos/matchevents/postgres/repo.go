package matchevents

import (
	"database/sql"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fastprodman/sealedrps/internal/repos/matchevents"
)

var _ matchevents.MatchEvents = (*matchEventsRepo)(nil)

type matchEventsRepo struct{ db *sql.DB }

func New(db *sql.DB) *matchEventsRepo {
	return &matchEventsRepo{db: db}
}

// Addresses are stored lowercase so lookups do not depend on checksum casing.
func addressKey(a common.Address) string {
	return strings.ToLower(a.Hex())
}
