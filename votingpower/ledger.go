package votingpower

import "math/big"

// LedgerEntry tracks one account's power during a propagation run.
//
// Temp starts equal to Direct and only decreases as outgoing grants consume it.
// Advanced only increases as incoming grants arrive.
type LedgerEntry struct {
	Direct   *big.Int
	Advanced *big.Int
	Temp     *big.Int
}

func newLedgerEntry(direct *big.Int) *LedgerEntry {
	return &LedgerEntry{
		Direct:   new(big.Int).Set(direct),
		Advanced: new(big.Int),
		Temp:     new(big.Int).Set(direct),
	}
}

// Ledger is the per-account state of a single propagation run.
// It is owned by one writer and never shrinks.
type Ledger struct {
	entries map[Address]*LedgerEntry
	order   []Address
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[Address]*LedgerEntry)}
}

// GetOrInsert returns the entry for addr, inserting {0,0,0} if absent
func (l *Ledger) GetOrInsert(addr Address) *LedgerEntry {
	if e, ok := l.entries[addr]; ok {
		return e
	}
	e := newLedgerEntry(new(big.Int))
	l.entries[addr] = e
	l.order = append(l.order, addr)
	return e
}

// Get returns the entry for addr without inserting
func (l *Ledger) Get(addr Address) (*LedgerEntry, bool) {
	e, ok := l.entries[addr]
	return e, ok
}

// Len returns the number of accounts in the ledger
func (l *Ledger) Len() int {
	return len(l.order)
}

// Addresses returns the accounts in insertion order
func (l *Ledger) Addresses() []Address {
	out := make([]Address, len(l.order))
	copy(out, l.order)
	return out
}

// Credit seeds an account's direct power. Only valid before any subdelegation
// has been applied to the account.
func (l *Ledger) Credit(addr Address, direct *big.Int) {
	e := l.GetOrInsert(addr)
	e.Direct.Add(e.Direct, direct)
	e.Temp.Add(e.Temp, direct)
}

// Apply is one step of the propagation fold: proxy grants part of its
// remaining power to sub.To according to the subdelegation's allowance.
// It returns the delegated amount.
func (l *Ledger) Apply(proxy Address, sub Subdelegation) *big.Int {
	source := l.GetOrInsert(proxy)
	target := l.GetOrInsert(sub.To)

	delegated, remaining := ResolveAllowance(sub.AllowanceType, sub.Allowance, source.Direct, source.Temp)

	target.Advanced.Add(target.Advanced, delegated)
	source.Temp = remaining
	return delegated
}
