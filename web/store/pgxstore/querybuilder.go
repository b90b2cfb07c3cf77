package pgxstore

import (
	"fmt"
	"time"

	"github.com/screwyprof/attester/web/snapshot"
)

const baseDelegatesQuery = `SELECT rank, delegate, direct_voting_power::text, advanced_voting_power::text,
	total_voting_power::text, date, fetch_timestamp FROM ranked_delegates`

// DelegatesQueryBuilder builds the paged ranked snapshot query
type DelegatesQueryBuilder struct {
	sql  string
	args []any
}

// NewDelegatesQuery creates a new ranked snapshot query builder
func NewDelegatesQuery() *DelegatesQueryBuilder {
	return &DelegatesQueryBuilder{
		sql: baseDelegatesQuery,
	}
}

// ForCriteria applies the criteria for the resolved date in one fluent call
func (q *DelegatesQueryBuilder) ForCriteria(criteria snapshot.DelegatesCriteria, date time.Time) *DelegatesQueryBuilder {
	return q.
		where("pipeline = $%d", criteria.Pipeline.String()).
		where("date = $%d", date).
		orderByRank().
		paginateWithDetection(criteria)
}

func (q *DelegatesQueryBuilder) orderByRank() *DelegatesQueryBuilder {
	q.sql += " ORDER BY rank"
	return q
}

// paginateWithDetection requests one extra row to tell whether another page exists
func (q *DelegatesQueryBuilder) paginateWithDetection(criteria snapshot.DelegatesCriteria) *DelegatesQueryBuilder {
	q.addParameter("LIMIT $%d", criteria.ItemsPerPage()+1)

	if offset := criteria.ItemsToSkip(); offset > 0 {
		q.addParameter("OFFSET $%d", offset)
	}
	return q
}

// Build returns the final SQL query and arguments
func (q *DelegatesQueryBuilder) Build() (string, []any) {
	return q.sql, q.args
}

func (q *DelegatesQueryBuilder) where(clause string, value any) *DelegatesQueryBuilder {
	keyword := " WHERE "
	if len(q.args) > 0 {
		keyword = " AND "
	}
	q.sql += keyword + fmt.Sprintf(clause, q.nextPlaceholder())
	q.args = append(q.args, value)
	return q
}

func (q *DelegatesQueryBuilder) addParameter(clause string, value any) {
	q.sql += " " + fmt.Sprintf(clause, q.nextPlaceholder())
	q.args = append(q.args, value)
}

func (q *DelegatesQueryBuilder) nextPlaceholder() int {
	return len(q.args) + 1
}
