package dcb

import (
	"crypto/md5"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// canonicalString renders filter as a deterministic string: the filter tree
// is expanded into disjunctive normal form (an OR of AND-only branches),
// each branch rendered as "(origin|events[-excluded]|ident=value,...)", the
// branches sorted, and joined. Two structurally identical filters always
// produce the same string; structurally different ones (almost) always
// differ — exactly the property a snapshot key needs.
func canonicalString(filter StreamFilter) string {
	branches := toDNF(filter)
	rendered := make([]string, len(branches))
	for i, b := range branches {
		rendered[i] = renderBranch(b)
	}
	sort.Strings(rendered)
	return strings.Join(rendered, "∨")
}

// toDNF flattens filter into an OR of AND-only conjunctions of literal
// nodes (Events, ExcludeEvents, Eq, Origin), distributing And over Or.
func toDNF(f StreamFilter) [][]StreamFilter {
	switch v := f.(type) {
	case andFilter:
		left := toDNF(v.l)
		right := toDNF(v.r)
		out := make([][]StreamFilter, 0, len(left)*len(right))
		for _, lc := range left {
			for _, rc := range right {
				combined := make([]StreamFilter, 0, len(lc)+len(rc))
				combined = append(combined, lc...)
				combined = append(combined, rc...)
				out = append(out, combined)
			}
		}
		return out
	case orFilter:
		return append(toDNF(v.l), toDNF(v.r)...)
	default:
		return [][]StreamFilter{{f}}
	}
}

func renderBranch(literals []StreamFilter) string {
	var origin int64
	var eventNames, excludedNames []string
	eqs := make(map[string]string)

	for _, lit := range literals {
		switch f := lit.(type) {
		case eventsFilter:
			eventNames = append(eventNames, f.names...)
		case excludeEventsFilter:
			excludedNames = append(excludedNames, f.names...)
		case originFilter:
			if f.id > origin {
				origin = f.id
			}
		case eqFilter:
			eqs[f.ident.String()] = f.value.String()
		}
	}

	sort.Strings(eventNames)
	sort.Strings(excludedNames)

	eqNames := make([]string, 0, len(eqs))
	for k := range eqs {
		eqNames = append(eqNames, k)
	}
	sort.Strings(eqNames)
	eqParts := make([]string, len(eqNames))
	for i, k := range eqNames {
		eqParts[i] = fmt.Sprintf("%s=%s", k, eqs[k])
	}

	excludedSuffix := ""
	if len(excludedNames) > 0 {
		excludedSuffix = "-" + strings.Join(excludedNames, ",")
	}

	return fmt.Sprintf("(%d|%s%s|%s)", origin, strings.Join(eventNames, ","), excludedSuffix, strings.Join(eqParts, ","))
}

// SnapshotID computes the deterministic snapshot key for a state named
// stateName whose query lowers to queryFilter: UUIDv3 over a namespace
// derived from MD5(stateName), keyed by the canonical query string.
func SnapshotID(stateName string, queryFilter StreamFilter) uuid.UUID {
	namespace := uuid.UUID(md5.Sum([]byte(stateName)))
	return uuid.NewMD5(namespace, []byte(canonicalString(queryFilter)))
}

// CanonicalQueryString exposes canonicalString for snapshot storage rows,
// which persist it alongside the snapshot payload for the load-time
// name/query re-check.
func CanonicalQueryString(queryFilter StreamFilter) string {
	return canonicalString(queryFilter)
}
