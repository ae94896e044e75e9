package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Account identifies a balance holder in both the native ledger and the
// elastic token ledger. User accounts are derived from UUIDs; system
// accounts are fixed, named holders owned by the engine.
type Account string

const (
	// AccountPool holds the liquidity pool's native and token reserves.
	AccountPool Account = "system:pool"

	// AccountCustody holds collateral custodied by the position manager
	// between open and close/foreclosure.
	AccountCustody Account = "system:custody"

	// AccountAuthority is the privileged caller for mint, burn and rebase.
	AccountAuthority Account = "system:authority"
)

// UserAccount builds the account for an end user.
func UserAccount(id uuid.UUID) Account {
	return Account("user:" + id.String())
}

// SystemAccount builds a named system account.
func SystemAccount(name string) Account {
	return Account("system:" + name)
}

// IsUser reports whether the account belongs to an end user.
func (a Account) IsUser() bool {
	return strings.HasPrefix(string(a), "user:")
}

// UserID extracts the UUID from a user account.
func (a Account) UserID() (uuid.UUID, error) {
	if !a.IsUser() {
		return uuid.Nil, fmt.Errorf("account %s is not a user account", a)
	}
	return uuid.Parse(strings.TrimPrefix(string(a), "user:"))
}

func (a Account) String() string {
	return string(a)
}
