package domain

import (
	"fmt"
	"strings"
)

// ParseError is the only failure Parse can report: structurally broken input
// (unbalanced quotes or parentheses) or input exceeding the nesting budget.
// Anything else downgrades to an UNKNOWN statement instead of failing.
type ParseError struct {
	Kind ErrorKind // ErrSyntax or ErrComplexityLimit
	Term string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error (%s): %s", e.Kind, e.Term)
}

// Parser splits raw SQL text into statements and builds the minimal
// structural record the rule chain needs. It is not a full SQL parser:
// anything it cannot interpret becomes an UNKNOWN statement with an empty
// table set rather than an error.
type Parser struct {
	maxDepth int
}

func NewParser(maxDepth int) *Parser {
	if maxDepth <= 0 {
		maxDepth = DefaultPolicyConfig().MaxParseDepth
	}
	return &Parser{maxDepth: maxDepth}
}

// Parse strips comments, splits on top-level semicolons and extracts the
// structural record for each non-empty segment. Multiple segments are
// preserved in order; discarding them is the policy engine's call, never
// the parser's.
func (p *Parser) Parse(raw string) ([]ParsedStatement, error) {
	segments, err := p.split(raw)
	if err != nil {
		return nil, err
	}

	stmts := make([]ParsedStatement, 0, len(segments))
	for _, seg := range segments {
		stmts = append(stmts, p.analyze(seg))
	}
	return stmts, nil
}

type segment struct {
	text  string
	depth int
}

// split scans the input once, removing comments outside literals, tracking
// quote and parenthesis state, and cutting at top-level semicolons.
func (p *Parser) split(raw string) ([]segment, error) {
	var (
		segments  []segment
		current   strings.Builder
		depth     int
		maxSeen   int
		inSingle  bool
		inDouble  bool
		commentLv int // block comments nest in PostgreSQL
	)

	// A semicolon-triggered flush keeps even an empty segment: "SELECT 1; ;"
	// carries a residual statement boundary and must surface as two segments
	// so the multi-statement rule can reject it. Only the final end-of-input
	// flush drops trailing whitespace silently.
	flush := func(keepEmpty bool) {
		text := strings.TrimSpace(current.String())
		current.Reset()
		d := maxSeen
		maxSeen = 0
		if text != "" || keepEmpty {
			segments = append(segments, segment{text: text, depth: d})
		}
	}

	runes := []rune(raw)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch {
		case commentLv > 0:
			if c == '*' && next == '/' {
				commentLv--
				i++
				if commentLv == 0 {
					current.WriteRune(' ')
				}
			} else if c == '/' && next == '*' {
				commentLv++
				i++
			}

		case inSingle:
			current.WriteRune(c)
			if c == '\'' {
				if next == '\'' { // escaped quote
					current.WriteRune(next)
					i++
				} else {
					inSingle = false
				}
			}

		case inDouble:
			current.WriteRune(c)
			if c == '"' {
				if next == '"' {
					current.WriteRune(next)
					i++
				} else {
					inDouble = false
				}
			}

		case c == '\'':
			inSingle = true
			current.WriteRune(c)

		case c == '"':
			inDouble = true
			current.WriteRune(c)

		case c == '-' && next == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			current.WriteRune(' ')

		case c == '/' && next == '*':
			commentLv = 1
			i++

		case c == '(':
			depth++
			if depth > maxSeen {
				maxSeen = depth
			}
			if depth > p.maxDepth {
				return nil, &ParseError{
					Kind: ErrComplexityLimit,
					Term: fmt.Sprintf("nesting depth %d exceeds limit %d", depth, p.maxDepth),
				}
			}
			current.WriteRune(c)

		case c == ')':
			if depth == 0 {
				return nil, &ParseError{Kind: ErrSyntax, Term: "unbalanced closing parenthesis"}
			}
			depth--
			current.WriteRune(c)

		case c == ';' && depth == 0:
			flush(true)

		default:
			current.WriteRune(c)
		}
	}

	switch {
	case inSingle:
		return nil, &ParseError{Kind: ErrSyntax, Term: "unterminated string literal"}
	case inDouble:
		return nil, &ParseError{Kind: ErrSyntax, Term: "unterminated quoted identifier"}
	case commentLv > 0:
		return nil, &ParseError{Kind: ErrSyntax, Term: "unterminated block comment"}
	case depth > 0:
		return nil, &ParseError{Kind: ErrSyntax, Term: "unbalanced opening parenthesis"}
	}

	flush(false)
	return segments, nil
}

// token kinds for the structural scan.
type tokKind int

const (
	tokWord tokKind = iota
	tokQuoted
	tokString
	tokPunct
)

type token struct {
	kind tokKind
	text string
}

// tokenize breaks a comment-free segment into words, quoted identifiers,
// string literals and single-rune punctuation.
func tokenize(text string) []token {
	var toks []token
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '\'':
			j := i + 1
			for j < len(runes) {
				if runes[j] == '\'' {
					if j+1 < len(runes) && runes[j+1] == '\'' {
						j += 2
						continue
					}
					break
				}
				j++
			}
			toks = append(toks, token{kind: tokString, text: string(runes[i : min(j+1, len(runes))])})
			i = j

		case c == '"':
			j := i + 1
			for j < len(runes) && runes[j] != '"' {
				j++
			}
			inner := ""
			if j > i+1 {
				inner = string(runes[i+1 : j])
			}
			toks = append(toks, token{kind: tokQuoted, text: inner})
			i = j

		case isWordRune(c):
			j := i
			for j < len(runes) && isWordRune(runes[j]) {
				j++
			}
			toks = append(toks, token{kind: tokWord, text: string(runes[i:j])})
			i = j - 1

		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			// skip

		default:
			toks = append(toks, token{kind: tokPunct, text: string(c)})
		}
	}
	return toks
}

func isWordRune(c rune) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// analyze builds the structural record for one comment-free segment.
func (p *Parser) analyze(seg segment) ParsedStatement {
	toks := tokenize(seg.text)

	stmt := ParsedStatement{
		Raw: RawStatement{
			Text:       seg.text,
			Normalized: normalize(seg.text),
		},
		Depth: seg.depth,
	}

	for _, t := range toks {
		if t.kind == tokWord {
			stmt.Words = append(stmt.Words, strings.ToUpper(t.text))
		}
	}
	if len(stmt.Words) > 0 {
		stmt.LeadingKeyword = stmt.Words[0]
	}

	stmt.IsCTE = stmt.LeadingKeyword == "WITH"
	if stmt.IsCTE {
		scanCTEs(toks, &stmt)
	}

	stmt.HasSubquery = hasSubquery(toks)
	stmt.Tables = extractTables(toks, stmt.CTENames)
	stmt.Columns = extractColumns(toks)

	return stmt
}

// normalize case-folds and collapses whitespace; comments are already gone.
func normalize(text string) string {
	return strings.ToUpper(strings.Join(strings.Fields(text), " "))
}

// stripComments removes line and nested block comments outside string
// literals. It is tolerant: unterminated constructs keep whatever was read
// so far, since it also runs on input the splitter has already rejected.
func stripComments(raw string) string {
	var (
		out       strings.Builder
		inSingle  bool
		inDouble  bool
		commentLv int
	)
	runes := []rune(raw)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch {
		case commentLv > 0:
			if c == '*' && next == '/' {
				commentLv--
				i++
				if commentLv == 0 {
					out.WriteRune(' ')
				}
			} else if c == '/' && next == '*' {
				commentLv++
				i++
			}

		case inSingle:
			out.WriteRune(c)
			if c == '\'' && next != '\'' {
				inSingle = false
			} else if c == '\'' {
				out.WriteRune(next)
				i++
			}

		case inDouble:
			out.WriteRune(c)
			if c == '"' {
				inDouble = false
			}

		case c == '\'':
			inSingle = true
			out.WriteRune(c)

		case c == '"':
			inDouble = true
			out.WriteRune(c)

		case c == '-' && next == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			out.WriteRune(' ')

		case c == '/' && next == '*':
			commentLv = 1
			i++

		default:
			out.WriteRune(c)
		}
	}
	return out.String()
}

// clauseIntroducers are the keywords whose following identifier names a
// relation.
var clauseIntroducers = map[string]bool{
	"FROM": true, "JOIN": true, "INTO": true, "UPDATE": true,
}

// identStoppers end an identifier list inside a FROM clause.
var identStoppers = map[string]bool{
	"WHERE": true, "GROUP": true, "ORDER": true, "HAVING": true,
	"LIMIT": true, "OFFSET": true, "ON": true, "USING": true, "SET": true,
	"JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true, "FULL": true,
	"CROSS": true, "LATERAL": true, "NATURAL": true, "UNION": true,
	"EXCEPT": true, "INTERSECT": true, "RETURNING": true, "VALUES": true,
	"AS": true, "WINDOW": true, "FETCH": true, "FOR": true,
}

// extractTables collects the identifiers following FROM, JOIN, INTO and
// UPDATE. The scan is flat: sub-select contents pass through it too, which
// is exactly the conservative union the resolver wants. CTE names are
// filtered out since they are not real relations.
func extractTables(toks []token, cteNames []string) []string {
	cte := make(map[string]bool, len(cteNames))
	for _, n := range cteNames {
		cte[strings.ToLower(n)] = true
	}

	seen := make(map[string]bool)
	var tables []string
	add := func(name string) {
		name = strings.ToLower(name)
		if name == "" || cte[name] || seen[name] {
			return
		}
		seen[name] = true
		tables = append(tables, name)
	}

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.kind != tokWord || !clauseIntroducers[strings.ToUpper(t.text)] {
			continue
		}
		kw := strings.ToUpper(t.text)
		// FOR UPDATE / FOR NO KEY UPDATE is a row-locking clause, not an
		// UPDATE statement; the word before it gives it away.
		if kw == "UPDATE" && i > 0 && toks[i-1].kind == tokWord {
			switch strings.ToUpper(toks[i-1].text) {
			case "FOR", "KEY":
				continue
			}
		}
		j := i + 1

		// UPDATE ONLY t, DELETE FROM ONLY t
		if j < len(toks) && toks[j].kind == tokWord && strings.EqualFold(toks[j].text, "ONLY") {
			j++
		}

		for j < len(toks) {
			if toks[j].kind == tokPunct && toks[j].text == "(" {
				break // sub-select or VALUES list, handled by the flat scan
			}
			name, next := readIdentChain(toks, j)
			if name == "" {
				break
			}
			if identStoppers[strings.ToUpper(name)] {
				break
			}
			add(name)
			j = next

			// Only FROM introduces comma-separated relation lists.
			if kw != "FROM" {
				break
			}
			j = skipAlias(toks, j)
			if j < len(toks) && toks[j].kind == tokPunct && toks[j].text == "," {
				j++
				continue
			}
			break
		}
	}
	return tables
}

// readIdentChain reads a possibly schema-qualified identifier starting at
// position i and returns its final (unqualified) part.
func readIdentChain(toks []token, i int) (name string, next int) {
	if i >= len(toks) || (toks[i].kind != tokWord && toks[i].kind != tokQuoted) {
		return "", i
	}
	name = toks[i].text
	i++
	for i+1 < len(toks) && toks[i].kind == tokPunct && toks[i].text == "." &&
		(toks[i+1].kind == tokWord || toks[i+1].kind == tokQuoted) {
		name = toks[i+1].text // keep the last part, drop schema decoration
		i += 2
	}
	return name, i
}

// skipAlias advances past an optional [AS] alias after a relation name.
func skipAlias(toks []token, i int) int {
	if i < len(toks) && toks[i].kind == tokWord && strings.EqualFold(toks[i].text, "AS") {
		i++
	}
	if i < len(toks) && (toks[i].kind == tokWord || toks[i].kind == tokQuoted) &&
		!identStoppers[strings.ToUpper(toks[i].text)] {
		i++
	}
	return i
}

// scanCTEs walks "WITH [RECURSIVE] name [(cols)] AS (body) [, ...]",
// recording CTE names and any DML keyword leading a CTE body.
func scanCTEs(toks []token, stmt *ParsedStatement) {
	i := 1 // past WITH
	if i < len(toks) && toks[i].kind == tokWord && strings.EqualFold(toks[i].text, "RECURSIVE") {
		i++
	}

	for i < len(toks) {
		if toks[i].kind != tokWord && toks[i].kind != tokQuoted {
			return
		}
		stmt.CTENames = append(stmt.CTENames, strings.ToLower(toks[i].text))
		i++

		// Optional column list before AS.
		if i < len(toks) && toks[i].kind == tokPunct && toks[i].text == "(" {
			i = skipParens(toks, i)
		}
		if i >= len(toks) || toks[i].kind != tokWord || !strings.EqualFold(toks[i].text, "AS") {
			return
		}
		i++
		// Optional [NOT] MATERIALIZED.
		for i < len(toks) && toks[i].kind == tokWord &&
			(strings.EqualFold(toks[i].text, "NOT") || strings.EqualFold(toks[i].text, "MATERIALIZED")) {
			i++
		}
		if i >= len(toks) || toks[i].kind != tokPunct || toks[i].text != "(" {
			return
		}

		// First word of the body tells us what the CTE actually does.
		if i+1 < len(toks) && toks[i+1].kind == tokWord {
			body := strings.ToUpper(toks[i+1].text)
			if body == "INSERT" || body == "UPDATE" || body == "DELETE" {
				stmt.EmbeddedDML = append(stmt.EmbeddedDML, body)
			}
		}
		i = skipParens(toks, i)

		if i < len(toks) && toks[i].kind == tokPunct && toks[i].text == "," {
			i++
			continue
		}
		// Remaining tokens form the terminal statement.
		if i < len(toks) && toks[i].kind == tokWord {
			stmt.TerminalKeyword = strings.ToUpper(toks[i].text)
		}
		return
	}
}

// skipParens advances past a balanced parenthesised group starting at an
// opening parenthesis.
func skipParens(toks []token, i int) int {
	depth := 0
	for ; i < len(toks); i++ {
		if toks[i].kind != tokPunct {
			continue
		}
		switch toks[i].text {
		case "(":
			depth++
		case ")":
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return i
}

func hasSubquery(toks []token) bool {
	for i := 0; i+1 < len(toks); i++ {
		if toks[i].kind == tokPunct && toks[i].text == "(" &&
			toks[i+1].kind == tokWord && strings.EqualFold(toks[i+1].text, "SELECT") {
			return true
		}
	}
	return false
}

// extractColumns is the lightweight best-effort column pass: plain
// references in the top-level SELECT list plus left-hand sides of simple
// WHERE comparisons. Expressions it cannot follow are simply skipped.
func extractColumns(toks []token) []ColumnRef {
	var cols []ColumnRef
	seen := make(map[string]bool)
	add := func(table, name string) {
		if name == "" || name == "*" {
			return
		}
		key := strings.ToLower(table + "." + name)
		if seen[key] {
			return
		}
		seen[key] = true
		cols = append(cols, ColumnRef{Table: strings.ToLower(table), Name: strings.ToLower(name)})
	}

	depth := 0
	section := "" // "select" or "where" while inside those clauses at depth 0
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.kind == tokPunct {
			switch t.text {
			case "(":
				depth++
			case ")":
				depth--
			}
			continue
		}
		if t.kind != tokWord && t.kind != tokQuoted {
			continue
		}
		if depth == 0 && t.kind == tokWord {
			switch strings.ToUpper(t.text) {
			case "SELECT":
				section = "select"
				continue
			case "FROM", "GROUP", "ORDER", "HAVING", "LIMIT":
				section = ""
				continue
			case "WHERE":
				section = "where"
				continue
			}
		}
		if depth != 0 || section == "" {
			continue
		}
		if t.kind == tokWord && reservedInClause[strings.ToUpper(t.text)] {
			continue
		}

		qualifier, name := "", t.text
		next := i + 1
		if next+1 < len(toks) && toks[next].kind == tokPunct && toks[next].text == "." &&
			(toks[next+1].kind == tokWord || toks[next+1].kind == tokQuoted) {
			qualifier, name = t.text, toks[next+1].text
			next += 2
		}

		switch section {
		case "select":
			// A following "(" means a function call, not a column.
			if next < len(toks) && toks[next].kind == tokPunct && toks[next].text == "(" {
				i = next - 1
				continue
			}
			add(qualifier, name)
			// Skip an AS alias so it is not mistaken for another column.
			if next < len(toks) && toks[next].kind == tokWord && strings.EqualFold(toks[next].text, "AS") {
				next += 2
			}
			i = next - 1

		case "where":
			// Only count identifiers compared with an operator.
			if next < len(toks) && toks[next].kind == tokPunct &&
				strings.ContainsAny(toks[next].text, "=<>!") {
				add(qualifier, name)
			}
			i = next - 1
		}
	}
	return cols
}

// reservedInClause keeps common SELECT/WHERE keywords out of the column set.
var reservedInClause = map[string]bool{
	"DISTINCT": true, "ALL": true, "AS": true, "AND": true, "OR": true,
	"NOT": true, "NULL": true, "IN": true, "IS": true, "LIKE": true,
	"ILIKE": true, "BETWEEN": true, "EXISTS": true, "CASE": true,
	"WHEN": true, "THEN": true, "ELSE": true, "END": true, "TRUE": true,
	"FALSE": true, "ASC": true, "DESC": true, "BY": true, "ON": true,
}
