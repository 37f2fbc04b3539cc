// Package components pulls comparable fragments (selected columns, WHERE
// predicates, joins, grouping and ordering keys, aggregates) out of SQL text.
//
// Extraction is a best-effort structural scan, not a parser. Each extractor
// returns an explicit error; Extract and ExtractClause map every error to an
// empty list so callers never see a failure.
package components

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ClauseType is a category of SQL fragment
type ClauseType string

const (
	SelectColumns      ClauseType = "select_columns"
	WhereConditions    ClauseType = "where_conditions"
	JoinOperations     ClauseType = "join_operations"
	GroupByColumns     ClauseType = "group_by_columns"
	OrderByColumns     ClauseType = "order_by_columns"
	AggregateFunctions ClauseType = "aggregate_functions"
	HavingConditions   ClauseType = "having_conditions"
)

// ClauseTypes lists every clause type in reporting order
var ClauseTypes = []ClauseType{
	SelectColumns,
	WhereConditions,
	JoinOperations,
	GroupByColumns,
	OrderByColumns,
	AggregateFunctions,
	HavingConditions,
}

// AggregateMarker replaces any function invocation in a select item
const AggregateMarker = "AGG_FUNC"

// Fragments is an ordered list of normalized clause fragments
type Fragments []string

// ErrClauseNotFound is returned when the statement has no such clause
var ErrClauseNotFound = errors.New("clause not found")

// ParseFailure reports text an extractor could not make sense of
type ParseFailure struct {
	Clause ClauseType
	Reason string
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("extract %s: %s", e.Clause, e.Reason)
}

// Extractor extracts the fragments of one clause type
type Extractor func(sql string) (Fragments, error)

var extractors = map[ClauseType]Extractor{
	SelectColumns:      ExtractSelectColumns,
	WhereConditions:    ExtractWhereConditions,
	JoinOperations:     ExtractJoinOperations,
	GroupByColumns:     ExtractGroupByColumns,
	OrderByColumns:     ExtractOrderByColumns,
	AggregateFunctions: ExtractAggregateFunctions,
	HavingConditions:   ExtractHavingConditions,
}

var (
	aliasSuffix     = regexp.MustCompile("(?i)\\s+as\\s+(\\w+|\"[^\"]*\"|`[^`]*`)$")
	sortDirection   = regexp.MustCompile(`(?i)\s+(asc|desc)$`)
	comparisonOp    = regexp.MustCompile(`\s*(<>|!=|>=|<=|=|>|<)\s*`)
	likeOp          = regexp.MustCompile(`(?i)\s+like\s+`)
	aggregateCall   = regexp.MustCompile(`(?i)\b(count|sum|avg|min|max|distinct)\s*\(`)
	selectEnd       = []string{"FROM", "WHERE", "GROUP", "ORDER", "HAVING", "LIMIT"}
	whereEnd        = []string{"GROUP", "ORDER", "HAVING", "LIMIT", "UNION"}
	groupByEnd      = []string{"HAVING", "ORDER", "LIMIT", "UNION"}
	orderByEnd      = []string{"LIMIT", "OFFSET", "UNION"}
	havingEnd       = []string{"ORDER", "LIMIT", "UNION"}
	joinSegmentEnd  = []string{"JOIN", "LEFT", "RIGHT", "INNER", "FULL", "CROSS", "OUTER", "NATURAL", "WHERE", "GROUP", "ORDER", "HAVING", "LIMIT", "UNION"}
	notInvocationOf = map[string]bool{"in": true, "and": true, "or": true, "not": true, "as": true, "when": true, "then": true, "else": true, "on": true}
)

// Extract runs every extractor. Clauses that are absent or fail to extract
// map to an empty, non-nil list.
func Extract(sql string) map[ClauseType][]string {
	out := make(map[ClauseType][]string, len(ClauseTypes))
	for _, ct := range ClauseTypes {
		out[ct] = ExtractClause(ct, sql)
	}
	return out
}

// ExtractClause runs one extractor and maps any error to an empty list
func ExtractClause(ct ClauseType, sql string) []string {
	fn, ok := extractors[ct]
	if !ok {
		return []string{}
	}
	frags, err := safeExtract(ct, fn, sql)
	if err != nil || frags == nil {
		return []string{}
	}
	return frags
}

func safeExtract(ct ClauseType, fn Extractor, sql string) (frags Fragments, err error) {
	defer func() {
		if r := recover(); r != nil {
			frags, err = nil, &ParseFailure{Clause: ct, Reason: fmt.Sprint(r)}
		}
	}()
	return fn(sql)
}

func collapse(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}

// ExtractSelectColumns returns the select list with aliases dropped and
// function invocations replaced by AggregateMarker.
func ExtractSelectColumns(sql string) (Fragments, error) {
	body, ok := clauseBody(collapse(sql), "SELECT", selectEnd...)
	if !ok || body == "" {
		return nil, ErrClauseNotFound
	}
	items, err := splitTopLevel(body, ',')
	if err != nil {
		return nil, &ParseFailure{Clause: SelectColumns, Reason: err.Error()}
	}

	out := make(Fragments, 0, len(items))
	for _, item := range items {
		item = aliasSuffix.ReplaceAllString(strings.TrimSpace(item), "")
		item, err = replaceInvocations(item)
		if err != nil {
			return nil, &ParseFailure{Clause: SelectColumns, Reason: err.Error()}
		}
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out, nil
}

// replaceInvocations swaps every name(...) span for AggregateMarker, nested
// calls included, so COUNT(x) and ROUND(AVG(y), 2) compare equal.
func replaceInvocations(item string) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(item); {
		c := item[i]
		if isQuote(c) {
			end := skipQuoted(item, i)
			sb.WriteString(item[i:end])
			i = end
			continue
		}
		if !isWordByte(c) || (i > 0 && (isWordByte(item[i-1]) || item[i-1] == '.')) {
			sb.WriteByte(c)
			i++
			continue
		}

		// read a (possibly qualified) identifier
		j := i
		for j < len(item) && (isWordByte(item[j]) || item[j] == '.') {
			j++
		}
		k := j
		for k < len(item) && item[k] == ' ' {
			k++
		}
		name := strings.ToLower(item[i:j])
		if k < len(item) && item[k] == '(' && !notInvocationOf[name] {
			end := matchParen(item, k)
			if end < 0 {
				return "", fmt.Errorf("unclosed call to %s", item[i:j])
			}
			sb.WriteString(AggregateMarker)
			i = end + 1
			continue
		}
		sb.WriteString(item[i:j])
		i = j
	}
	return sb.String(), nil
}

// ExtractWhereConditions returns the WHERE predicates split on AND/OR
func ExtractWhereConditions(sql string) (Fragments, error) {
	return conditions(sql, WhereConditions, "WHERE", whereEnd)
}

// ExtractHavingConditions returns the HAVING predicates split on AND/OR
func ExtractHavingConditions(sql string) (Fragments, error) {
	return conditions(sql, HavingConditions, "HAVING", havingEnd)
}

func conditions(sql string, ct ClauseType, start string, end []string) (Fragments, error) {
	body, ok := clauseBody(collapse(sql), start, end...)
	if !ok || body == "" {
		return nil, ErrClauseNotFound
	}
	parts := splitTopLevelWords(body, "AND", "OR")
	for i, p := range parts {
		parts[i] = normalizeCondition(p)
	}
	return trimAll(parts), nil
}

// normalizeCondition single-spaces comparison operators and upper-cases LIKE.
// String literals are left as written.
func normalizeCondition(cond string) string {
	cond = mapUnquoted(strings.TrimSpace(cond), func(s string) string {
		s = comparisonOp.ReplaceAllString(s, " $1 ")
		return likeOp.ReplaceAllString(s, " LIKE ")
	})
	return strings.TrimSpace(cond)
}

// ExtractJoinOperations returns every top-level join rendered as
// "JOIN table" or "JOIN table ON condition". Join kinds and aliases are dropped.
func ExtractJoinOperations(sql string) (Fragments, error) {
	s := collapse(sql)
	var out Fragments
	for from := 0; ; {
		i, _ := indexTopLevel(s, from, "JOIN")
		if i < 0 {
			break
		}
		segStart := i + len("JOIN")
		segEnd, _ := indexTopLevel(s, segStart, joinSegmentEnd...)
		if segEnd < 0 {
			segEnd = len(s)
		}
		from = segEnd

		frag, err := renderJoin(strings.TrimSpace(s[segStart:segEnd]))
		if err != nil {
			return nil, err
		}
		if frag != "" {
			out = append(out, frag)
		}
	}
	if out == nil {
		return nil, ErrClauseNotFound
	}
	return out, nil
}

func renderJoin(seg string) (string, error) {
	if seg == "" {
		return "", nil
	}
	target := seg
	cond := ""
	if on, _ := indexTopLevel(seg, 0, "ON"); on >= 0 {
		target = strings.TrimSpace(seg[:on])
		cond = strings.TrimSpace(seg[on+len("ON"):])
	}

	table := target
	if strings.HasPrefix(target, "(") {
		end := matchParen(target, 0)
		if end < 0 {
			return "", &ParseFailure{Clause: JoinOperations, Reason: "unclosed derived table"}
		}
		table = target[:end+1]
	} else if fields := strings.Fields(target); len(fields) > 0 {
		table = fields[0]
	}

	if cond == "" {
		return "JOIN " + table, nil
	}
	return "JOIN " + table + " ON " + cond, nil
}

// ExtractGroupByColumns returns the GROUP BY keys
func ExtractGroupByColumns(sql string) (Fragments, error) {
	return list(sql, GroupByColumns, "GROUP BY", groupByEnd, nil)
}

// ExtractOrderByColumns returns the ORDER BY keys without ASC/DESC
func ExtractOrderByColumns(sql string) (Fragments, error) {
	return list(sql, OrderByColumns, "ORDER BY", orderByEnd, func(s string) string {
		return sortDirection.ReplaceAllString(s, "")
	})
}

func list(sql string, ct ClauseType, start string, end []string, clean func(string) string) (Fragments, error) {
	body, ok := clauseBody(collapse(sql), start, end...)
	if !ok || body == "" {
		return nil, ErrClauseNotFound
	}
	items, err := splitTopLevel(body, ',')
	if err != nil {
		return nil, &ParseFailure{Clause: ct, Reason: err.Error()}
	}
	if clean != nil {
		for i, item := range items {
			items[i] = clean(strings.TrimSpace(item))
		}
	}
	return trimAll(items), nil
}

// ExtractAggregateFunctions returns the lowercased name of every aggregate
// call in the select list, one entry per occurrence.
func ExtractAggregateFunctions(sql string) (Fragments, error) {
	body, ok := clauseBody(collapse(sql), "SELECT", selectEnd...)
	if !ok || body == "" {
		return nil, ErrClauseNotFound
	}
	matches := aggregateCall.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil, ErrClauseNotFound
	}
	out := make(Fragments, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.ToLower(m[1]))
	}
	return out, nil
}
