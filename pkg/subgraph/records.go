package subgraph

import (
	"bytes"
	"fmt"
	"strconv"
)

// Int decodes integers the subgraph serialises either as JSON numbers or as strings
type Int int64

// UnmarshalJSON implements json.Unmarshaler
func (i *Int) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*i = 0
		return nil
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("subgraph int %q: %w", data, err)
	}
	*i = Int(v)
	return nil
}

// DailyDelegate is a delegate's direct voting power at the end of a day
type DailyDelegate struct {
	ID                string `json:"id"`
	Date              Int    `json:"date"`
	Delegate          string `json:"delegate"`
	DirectVotingPower string `json:"directVotingPower"`
}

// DailyBalance is an account's token balance at the end of a day
type DailyBalance struct {
	ID      string `json:"id"`
	Date    Int    `json:"date"`
	Account string `json:"account"`
	Balance string `json:"balance"`
}

// SubDelegation is a single Alligator subdelegation event
type SubDelegation struct {
	ID                     string `json:"id"`
	From                   string `json:"from"`
	To                     string `json:"to"`
	MaxRedelegations       Int    `json:"maxRedelegations"`
	BlocksBeforeVoteCloses Int    `json:"blocksBeforeVoteCloses"`
	NotValidBefore         Int    `json:"notValidBefore"`
	NotValidAfter          Int    `json:"notValidAfter"`
	CustomRule             string `json:"customRule"`
	AllowanceType          string `json:"allowanceType"`
	Allowance              string `json:"allowance"`
	BlockNumber            Int    `json:"blockNumber"`
	BlockTimestamp         Int    `json:"blockTimestamp"`
	TransactionHash        string `json:"transactionHash"`
}

const dailyDelegatesQuery = `
query dailyDelegates($date: Int!, $lastID: String!, $first: Int!) {
  items: dailyDelagates(where: {date: $date, id_gt: $lastID}, orderBy: id, orderDirection: asc, first: $first) {
    id
    date
    delegate
    directVotingPower
  }
}`

const dailyBalancesQuery = `
query dailyBalances($date: Int!, $lastID: String!, $first: Int!) {
  items: dailyBalances(where: {date: $date, id_gt: $lastID}, orderBy: id, orderDirection: asc, first: $first) {
    id
    date
    account
    balance
  }
}`

const subDelegationsQuery = `
query subDelegations($from: BigInt!, $to: BigInt!, $lastID: String!, $first: Int!) {
  items: subDelegationEntities(where: {blockTimestamp_gte: $from, blockTimestamp_lt: $to, id_gt: $lastID}, orderBy: id, orderDirection: asc, first: $first) {
    id
    from
    to
    maxRedelegations
    blocksBeforeVoteCloses
    notValidBefore
    notValidAfter
    customRule
    allowanceType
    allowance
    blockNumber
    blockTimestamp
    transactionHash
  }
}`
