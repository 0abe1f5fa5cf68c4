package postgres

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"go-dcb/pkg/dcb"
)

// criteriaBuilder lowers a dcb.StreamFilter into a parameterized SQL
// predicate, implementing dcb.FilterEvaluator. Grounded on
// sql_criteria_builder.rs's FilterEvaluator impl, generalized from the
// older single-JSONB-column `@>` containment check to the per-identifier
// nullable-column form spec.md §4.2 specifies, including the mandatory
// NULL-pass branch on Eq.
type criteriaBuilder struct {
	sb   strings.Builder
	args []any
}

// BuildCriteria lowers filter into a WHERE-clause fragment (without the
// leading "WHERE") and its positional arguments.
func BuildCriteria(filter dcb.StreamFilter) (string, []any) {
	b := &criteriaBuilder{}
	dcb.Walk(filter, b)
	return b.sb.String(), b.args
}

func (b *criteriaBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *criteriaBuilder) VisitEvents(names []string) {
	if len(names) == 0 {
		b.sb.WriteString("false")
		return
	}
	b.sb.WriteString("event_type IN (")
	for i, name := range names {
		if i > 0 {
			b.sb.WriteString(",")
		}
		b.sb.WriteString(b.bind(name))
	}
	b.sb.WriteString(")")
}

func (b *criteriaBuilder) VisitExcludeEvents(names []string) {
	if len(names) == 0 {
		b.sb.WriteString("true")
		return
	}
	b.sb.WriteString("event_type NOT IN (")
	for i, name := range names {
		if i > 0 {
			b.sb.WriteString(",")
		}
		b.sb.WriteString(b.bind(name))
	}
	b.sb.WriteString(")")
}

func (b *criteriaBuilder) VisitEq(ident dcb.Identifier, value dcb.IdentifierValue) {
	col := pgx.Identifier{ident.String()}.Sanitize()
	placeholder := b.bind(value.DriverValue())
	fmt.Fprintf(&b.sb, "(%s = %s OR %s IS NULL)", col, placeholder, col)
}

func (b *criteriaBuilder) VisitOrigin(id int64) {
	fmt.Fprintf(&b.sb, "event_id > %s", b.bind(id))
}

func (b *criteriaBuilder) VisitAnd(l, r dcb.StreamFilter) {
	b.sb.WriteString("(")
	dcb.Walk(l, b)
	b.sb.WriteString(" AND ")
	dcb.Walk(r, b)
	b.sb.WriteString(")")
}

func (b *criteriaBuilder) VisitOr(l, r dcb.StreamFilter) {
	b.sb.WriteString("(")
	dcb.Walk(l, b)
	b.sb.WriteString(" OR ")
	dcb.Walk(r, b)
	b.sb.WriteString(")")
}
