package memory

import (
	"strconv"
	"strings"
	"unicode"

	errs "cursorbridge/cli/internal/errors"
)

type statement interface{ verb() string }

type colDef struct {
	Name string
	Type string
}

// expr is either a literal or a positional placeholder.
type expr struct {
	Value       any
	Placeholder int // 1-based; 0 for literals
}

type whereEq struct {
	Column string
	Value  expr
}

type assignment struct {
	Column string
	Value  expr
}

type createTableStmt struct {
	Table   string
	Columns []colDef
}

type dropTableStmt struct{ Table string }

type insertStmt struct {
	Table   string
	Columns []string
	Rows    [][]expr
}

type selectStmt struct {
	Table   string
	Columns []string // nil means *
	Where   *whereEq
}

type updateStmt struct {
	Table       string
	Assignments []assignment
	Where       *whereEq
}

type deleteStmt struct {
	Table string
	Where *whereEq
}

type callStmt struct {
	Procedure string
	Args      []expr
}

func (*createTableStmt) verb() string { return "CREATE TABLE" }
func (*dropTableStmt) verb() string   { return "DROP TABLE" }
func (*insertStmt) verb() string      { return "INSERT" }
func (*selectStmt) verb() string      { return "SELECT" }
func (*updateStmt) verb() string      { return "UPDATE" }
func (*deleteStmt) verb() string      { return "DELETE" }
func (*callStmt) verb() string        { return "CALL" }

// parser numbers placeholders across every statement of one request.
type parser struct {
	placeholders int
}

// parseScript splits sql on top-level ';' and parses each statement.
func parseScript(sql string) ([]statement, error) {
	p := &parser{}
	var out []statement
	for _, raw := range splitTopLevel(sql, ';') {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		st, err := p.parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if len(out) == 0 {
		return nil, errs.New(errs.Unsupported, "empty statement")
	}
	return out, nil
}

func (p *parser) parse(s string) (statement, error) {
	up := strings.ToUpper(s)
	switch {
	case hasWordPrefix(up, "CREATE TABLE"):
		return p.parseCreateTable(s)
	case hasWordPrefix(up, "DROP TABLE"):
		return p.parseDropTable(s)
	case hasWordPrefix(up, "INSERT INTO"):
		return p.parseInsert(s)
	case hasWordPrefix(up, "SELECT"):
		return p.parseSelect(s)
	case hasWordPrefix(up, "UPDATE"):
		return p.parseUpdate(s)
	case hasWordPrefix(up, "DELETE FROM"):
		return p.parseDelete(s)
	case hasWordPrefix(up, "CALL"):
		return p.parseCall(s)
	default:
		return nil, errs.Newf(errs.Unsupported, "unsupported statement: %q", s)
	}
}

func hasWordPrefix(up, prefix string) bool {
	if !strings.HasPrefix(up, prefix) {
		return false
	}
	if len(up) == len(prefix) {
		return true
	}
	r := rune(up[len(prefix)])
	return unicode.IsSpace(r) || r == '('
}

func syntaxErr(stmt string, err error) error {
	return errs.Wrap(errs.Unsupported, "invalid "+stmt+" syntax", err)
}

func (p *parser) parseCreateTable(s string) (statement, error) {
	rest := strings.TrimSpace(s[len("CREATE TABLE"):])
	open := strings.IndexByte(rest, '(')
	if open < 0 || !strings.HasSuffix(rest, ")") {
		return nil, syntaxErr("CREATE TABLE", errs.New(errs.Unsupported, "missing column list"))
	}
	name, err := parseIdent(rest[:open])
	if err != nil {
		return nil, syntaxErr("CREATE TABLE", err)
	}
	body := strings.TrimSpace(rest[open+1 : len(rest)-1])
	if body == "" {
		return nil, syntaxErr("CREATE TABLE", errs.New(errs.Unsupported, "empty column list"))
	}
	var cols []colDef
	seen := map[string]bool{}
	for _, def := range splitTopLevel(body, ',') {
		toks := strings.Fields(def)
		if len(toks) == 0 {
			return nil, syntaxErr("CREATE TABLE", errs.New(errs.Unsupported, "empty column definition"))
		}
		col, err := parseIdent(toks[0])
		if err != nil {
			return nil, syntaxErr("CREATE TABLE", err)
		}
		key := strings.ToLower(col)
		if seen[key] {
			return nil, errs.Newf(errs.Unsupported, "duplicate column %q", col)
		}
		seen[key] = true
		typ := "ANY"
		if len(toks) > 1 {
			typ = strings.ToUpper(strings.Join(toks[1:], " "))
		}
		cols = append(cols, colDef{Name: col, Type: typ})
	}
	return &createTableStmt{Table: name, Columns: cols}, nil
}

func (p *parser) parseDropTable(s string) (statement, error) {
	name, err := parseIdent(s[len("DROP TABLE"):])
	if err != nil {
		return nil, syntaxErr("DROP TABLE", err)
	}
	return &dropTableStmt{Table: name}, nil
}

func (p *parser) parseInsert(s string) (statement, error) {
	// INSERT INTO t [(a, b)] VALUES (1, 'x'), (2, ?)
	rest := strings.TrimSpace(s[len("INSERT INTO"):])
	target, values := splitKeyword(rest, "VALUES")
	if strings.TrimSpace(values) == "" {
		return nil, syntaxErr("INSERT", errs.New(errs.Unsupported, "missing VALUES"))
	}

	stmt := &insertStmt{}
	if open := strings.IndexByte(target, '('); open >= 0 {
		if !strings.HasSuffix(target, ")") {
			return nil, syntaxErr("INSERT", errs.New(errs.Unsupported, "unterminated column list"))
		}
		cols, err := parseIdentList(target[open+1 : len(target)-1])
		if err != nil {
			return nil, syntaxErr("INSERT", err)
		}
		stmt.Columns = cols
		target = target[:open]
	}
	name, err := parseIdent(target)
	if err != nil {
		return nil, syntaxErr("INSERT", err)
	}
	stmt.Table = name

	for _, tuple := range splitTopLevel(values, ',') {
		tuple = strings.TrimSpace(tuple)
		if !strings.HasPrefix(tuple, "(") || !strings.HasSuffix(tuple, ")") {
			return nil, syntaxErr("INSERT", errs.Newf(errs.Unsupported, "invalid value tuple %q", tuple))
		}
		var row []expr
		for _, raw := range splitTopLevel(tuple[1:len(tuple)-1], ',') {
			e, err := p.parseExpr(raw)
			if err != nil {
				return nil, err
			}
			row = append(row, e)
		}
		if stmt.Columns != nil && len(row) != len(stmt.Columns) {
			return nil, errs.Newf(errs.Unsupported, "INSERT has %d columns but %d values", len(stmt.Columns), len(row))
		}
		stmt.Rows = append(stmt.Rows, row)
	}
	return stmt, nil
}

func (p *parser) parseSelect(s string) (statement, error) {
	// SELECT * | a, b FROM t [WHERE c = v]
	rest := strings.TrimSpace(s[len("SELECT"):])
	proj, from := splitKeyword(rest, "FROM")
	if strings.TrimSpace(from) == "" {
		return nil, syntaxErr("SELECT", errs.New(errs.Unsupported, "missing FROM"))
	}
	stmt := &selectStmt{}
	if strings.TrimSpace(proj) != "*" {
		cols, err := parseIdentList(proj)
		if err != nil {
			return nil, syntaxErr("SELECT", err)
		}
		stmt.Columns = cols
	}
	tablePart, wherePart := splitKeyword(from, "WHERE")
	name, err := parseIdent(tablePart)
	if err != nil {
		return nil, syntaxErr("SELECT", err)
	}
	stmt.Table = name
	if stmt.Where, err = p.parseOptionalWhere(wherePart); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *parser) parseUpdate(s string) (statement, error) {
	// UPDATE t SET a = 1, b = 'x' [WHERE id = 1]
	rest := strings.TrimSpace(s[len("UPDATE"):])
	tablePart, afterTable := splitKeyword(rest, "SET")
	name, err := parseIdent(tablePart)
	if err != nil {
		return nil, syntaxErr("UPDATE", err)
	}
	setPart, wherePart := splitKeyword(afterTable, "WHERE")
	if strings.TrimSpace(setPart) == "" {
		return nil, syntaxErr("UPDATE", errs.New(errs.Unsupported, "missing SET"))
	}

	stmt := &updateStmt{Table: name}
	for _, a := range splitTopLevel(setPart, ',') {
		col, val, err := p.parseEquality(a)
		if err != nil {
			return nil, syntaxErr("UPDATE", err)
		}
		stmt.Assignments = append(stmt.Assignments, assignment{Column: col, Value: val})
	}
	if stmt.Where, err = p.parseOptionalWhere(wherePart); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *parser) parseDelete(s string) (statement, error) {
	rest := strings.TrimSpace(s[len("DELETE FROM"):])
	tablePart, wherePart := splitKeyword(rest, "WHERE")
	name, err := parseIdent(tablePart)
	if err != nil {
		return nil, syntaxErr("DELETE", err)
	}
	stmt := &deleteStmt{Table: name}
	if stmt.Where, err = p.parseOptionalWhere(wherePart); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *parser) parseCall(s string) (statement, error) {
	// CALL proc(a, ?, 'x')
	rest := strings.TrimSpace(s[len("CALL"):])
	open := strings.IndexByte(rest, '(')
	if open < 0 || !strings.HasSuffix(rest, ")") {
		return nil, syntaxErr("CALL", errs.New(errs.Unsupported, "missing argument list"))
	}
	name, err := parseIdent(rest[:open])
	if err != nil {
		return nil, syntaxErr("CALL", err)
	}
	stmt := &callStmt{Procedure: name}
	body := strings.TrimSpace(rest[open+1 : len(rest)-1])
	if body == "" {
		return stmt, nil
	}
	for _, raw := range splitTopLevel(body, ',') {
		e, err := p.parseExpr(raw)
		if err != nil {
			return nil, err
		}
		stmt.Args = append(stmt.Args, e)
	}
	return stmt, nil
}

func (p *parser) parseOptionalWhere(s string) (*whereEq, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	col, val, err := p.parseEquality(s)
	if err != nil {
		return nil, syntaxErr("WHERE", err)
	}
	return &whereEq{Column: col, Value: val}, nil
}

// parseEquality parses "col = value".
func (p *parser) parseEquality(s string) (string, expr, error) {
	kv := strings.SplitN(s, "=", 2)
	if len(kv) != 2 {
		return "", expr{}, errs.Newf(errs.Unsupported, "expected <column> = <value>, got %q", strings.TrimSpace(s))
	}
	col, err := parseIdent(kv[0])
	if err != nil {
		return "", expr{}, err
	}
	val, err := p.parseExpr(kv[1])
	if err != nil {
		return "", expr{}, err
	}
	return col, val, nil
}

func (p *parser) parseExpr(raw string) (expr, error) {
	raw = strings.TrimSpace(raw)
	if raw == "?" {
		p.placeholders++
		return expr{Placeholder: p.placeholders}, nil
	}
	v, err := parseLiteral(raw)
	if err != nil {
		return expr{}, err
	}
	return expr{Value: v}, nil
}

// parseIdent accepts a single token made of letters, digits and '_', not
// starting with a digit.
func parseIdent(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errs.New(errs.Unsupported, "missing identifier")
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return "", errs.Newf(errs.Unsupported, "invalid identifier %q", s)
	}
	return s, nil
}

func parseIdentList(s string) ([]string, error) {
	var out []string
	for _, part := range splitTopLevel(s, ',') {
		id, err := parseIdent(part)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, errs.New(errs.Unsupported, "empty column list")
	}
	return out, nil
}

func parseLiteral(rv string) (any, error) {
	switch strings.ToUpper(rv) {
	case "NULL":
		return nil, nil
	case "TRUE":
		return true, nil
	case "FALSE":
		return false, nil
	}
	if len(rv) >= 2 && rv[0] == '\'' && rv[len(rv)-1] == '\'' {
		body := rv[1 : len(rv)-1]
		if strings.Count(strings.ReplaceAll(body, "''", ""), "'") > 0 {
			return nil, errs.Newf(errs.Unsupported, "unescaped quote in %q", rv)
		}
		return strings.ReplaceAll(body, "''", "'"), nil
	}
	if i, err := strconv.ParseInt(rv, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(rv, 64); err == nil {
		return f, nil
	}
	return nil, errs.Newf(errs.Unsupported, "unsupported literal: %q", rv)
}

// splitKeyword splits "X <keyword> Y" case-insensitively on the first keyword
// outside quotes. The keyword must be delimited by spaces or parentheses.
// Without a match it returns (s, "").
func splitKeyword(s, keyword string) (string, string) {
	up := strings.ToUpper(s)
	kw := strings.ToUpper(keyword)
	inQuote := false
	for i := 0; i+len(kw) <= len(up); i++ {
		if up[i] == '\'' {
			inQuote = !inQuote
			continue
		}
		if inQuote || up[i:i+len(kw)] != kw {
			continue
		}
		if i > 0 && !isDelim(up[i-1], ')') {
			continue
		}
		end := i + len(kw)
		if end < len(up) && !isDelim(up[end], '(') {
			continue
		}
		return strings.TrimSpace(s[:i]), strings.TrimSpace(s[end:])
	}
	return strings.TrimSpace(s), ""
}

func isDelim(b byte, paren byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == paren
}

// splitTopLevel splits on sep outside quotes and parentheses.
func splitTopLevel(s string, sep rune) []string {
	var parts []string
	var cur strings.Builder
	inQuote := false
	depth := 0
	for _, r := range s {
		switch {
		case r == '\'':
			inQuote = !inQuote
		case inQuote:
		case r == '(':
			depth++
		case r == ')':
			depth--
		case r == sep && depth == 0:
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
	}
	if strings.TrimSpace(cur.String()) != "" {
		parts = append(parts, cur.String())
	}
	return parts
}
