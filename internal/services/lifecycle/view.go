package lifecycle

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fastprodman/sealedrps/internal/ledger"
	"github.com/fastprodman/sealedrps/internal/match"
)

// View is a match status plus fields derived for one observer.
type View struct {
	match.Status
	Outcome     match.Outcome
	Joinable    bool
	Expirable   bool
	ClaimableBy []common.Address
}

func NewView(st match.Status, observer common.Address, now time.Time) View {
	return View{
		Status:      st,
		Outcome:     st.Outcome(),
		Joinable:    st.Joinable(observer, now),
		Expirable:   st.Expirable(observer, now),
		ClaimableBy: st.ClaimableBy(),
	}
}

type Finalization struct {
	Winner  common.Address
	Draw    bool
	Receipt ledger.Receipt
}
