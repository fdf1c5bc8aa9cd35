package parser

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/RichardKnop/minirel/internal/minirel"
)

var (
	errInvalidStatementKind = fmt.Errorf("invalid statement kind")
	errEmptyStatementKind   = fmt.Errorf("statement kind cannot be empty")
	errEmptyTableName       = fmt.Errorf("table name cannot be empty")
	errExpectedSemicolon    = fmt.Errorf("expected semicolon")
	errUnterminatedString   = fmt.Errorf("unterminated quoted string")
)

// Multi word entries must be listed before their prefixes, and keywords only
// match on a word boundary.
var reservedWords = []string{
	// operators
	"(", ")", ">=", "<=", "!=", "<>", ",", "=", ">", "<", "+", "-", "*", "/",
	// column types
	"INT", "FLOAT", "BOOLEAN", "VARCHAR(", "DATETIME",
	// statement types
	"CREATE VOLATILE TABLE", "CREATE TABLE", "DROP TABLE", "CREATE INDEX", "DROP INDEX",
	"SELECT DISTINCT", "SELECT", "INSERT INTO", "VALUES", "UPDATE", "DELETE FROM",
	// statement other
	"TRUE", "FALSE", "WHERE", "FROM", "SET", "ASC", "DESC", "AS", "ON",
	"GROUP BY", "HAVING", "ORDER BY", "LIMIT", "AND", "OR", "NOT",
	";",
}

type parser struct {
	minirel.Statement
	i      int // where we are in the query
	sql    string
	logger *zap.Logger
}

func New(logger *zap.Logger) *parser {
	return &parser{logger: logger}
}

// Parse parses one or more statements separated by semicolons. The last
// semicolon is optional.
func (p *parser) Parse(ctx context.Context, sql string) ([]minirel.Statement, error) {
	p.reset()
	p.setSQL(sql)

	statements, err := p.doParse()

	p.logError(err)
	return statements, err
}

func (p *parser) setSQL(sql string) *parser {
	p.sql = strings.TrimSpace(normalizeWhitespace(sql))
	p.i = 0
	return p
}

func (p *parser) reset() {
	p.Statement = minirel.Statement{}
	p.sql = ""
	p.i = 0
}

func (p *parser) doParse() ([]minirel.Statement, error) {
	if len(p.sql) == 0 {
		return nil, errEmptyStatementKind
	}

	var statements []minirel.Statement
	for p.i < len(p.sql) {
		p.Statement = minirel.Statement{}
		if err := p.doParseStatement(); err != nil {
			return nil, err
		}
		if err := p.validate(p.Statement); err != nil {
			return nil, err
		}
		statements = append(statements, p.Statement)

		semicolon := p.peek()
		if semicolon != ";" && len(semicolon) != 0 {
			return nil, fmt.Errorf("%w, got %q", errExpectedSemicolon, semicolon)
		}
		if semicolon == ";" {
			p.pop()
		}
	}

	return statements, nil
}

func (p *parser) doParseStatement() error {
	switch p.peek() {
	case "CREATE TABLE", "CREATE VOLATILE TABLE":
		p.Kind = minirel.CreateTable
		p.Volatile = p.pop() == "CREATE VOLATILE TABLE"
		return p.doParseCreateTable()
	case "DROP TABLE":
		p.Kind = minirel.DropTable
		p.pop()
		return p.doParseDropTable()
	case "CREATE INDEX":
		p.Kind = minirel.CreateIndex
		p.pop()
		return p.doParseCreateIndex()
	case "DROP INDEX":
		p.Kind = minirel.DropIndex
		p.pop()
		return p.doParseDropIndex()
	case "SELECT", "SELECT DISTINCT":
		p.Kind = minirel.Select
		p.Distinct = p.pop() == "SELECT DISTINCT"
		return p.doParseSelect()
	case "INSERT INTO":
		p.Kind = minirel.Insert
		p.pop()
		return p.doParseInsert()
	case "UPDATE":
		p.Kind = minirel.Update
		p.pop()
		return p.doParseUpdate()
	case "DELETE FROM":
		p.Kind = minirel.Delete
		p.pop()
		return p.doParseDelete()
	default:
		return errInvalidStatementKind
	}
}

func (p *parser) peek() string {
	peeked, _ := p.peekWithLength()
	return peeked
}

func (p *parser) pop() string {
	peeked, len := p.peekWithLength()
	p.i += len
	p.popWhitespace()
	return peeked
}

// expect pops the token if it matches, otherwise the parser stays put.
func (p *parser) expect(token string) bool {
	if p.peek() != token {
		return false
	}
	p.pop()
	return true
}

// atUnterminatedString reports a quote the tokenizer could not close.
func (p *parser) atUnterminatedString() bool {
	return p.i < len(p.sql) && p.sql[p.i] == '\''
}

func (p *parser) popWhitespace() {
	for ; p.i < len(p.sql) && p.sql[p.i] == ' '; p.i++ {
	}
}

func (p *parser) peekWithLength() (string, int) {
	if p.i >= len(p.sql) {
		return "", 0
	}
	// First check for reserved words
	for _, rWord := range reservedWords {
		end := p.i + len(rWord)
		if end > len(p.sql) {
			continue
		}
		token := strings.ToUpper(p.sql[p.i:end])
		if token != rWord {
			continue
		}
		if isWordChar(rWord[len(rWord)-1]) && end < len(p.sql) && isWordChar(p.sql[end]) {
			continue
		}
		return token, len(token)
	}
	// Next for quoted string literals
	if p.sql[p.i] == '\'' {
		quoted, ln := p.peekQuotedStringWithLength()
		if ln > 0 {
			return "'" + quoted + "'", ln
		}
		return "", 0
	}
	// Next for numbers (floats or integers)
	if unicode.IsDigit(rune(p.sql[p.i])) {
		_, ln := p.peekNumberWithLength()
		if ln > 0 {
			return p.sql[p.i : p.i+ln], ln
		}
	}
	// And finally for identifiers
	return p.peekIdentifierWithLength()
}

// peekQuotedStringWithLength returns the unquoted content, a doubled quote
// stands for a single one.
func (p *parser) peekQuotedStringWithLength() (string, int) {
	if p.i >= len(p.sql) || p.sql[p.i] != '\'' {
		return "", 0
	}
	var b strings.Builder
	for i := p.i + 1; i < len(p.sql); i++ {
		if p.sql[i] != '\'' {
			b.WriteByte(p.sql[i])
			continue
		}
		if i+1 < len(p.sql) && p.sql[i+1] == '\'' {
			b.WriteByte('\'')
			i++
			continue
		}
		return b.String(), i - p.i + 1
	}
	return "", 0
}

func (p *parser) peekNumberWithLength() (string, int) {
	if p.i >= len(p.sql) || !unicode.IsDigit(rune(p.sql[p.i])) {
		return "", 0
	}
	i, dots := p.i, 0
	for ; i < len(p.sql); i++ {
		if p.sql[i] == '.' {
			dots++
			if dots > 1 {
				break
			}
			continue
		}
		if !unicode.IsDigit(rune(p.sql[i])) {
			break
		}
	}
	if i < len(p.sql) && isWordChar(p.sql[i]) {
		return "", 0
	}
	return p.sql[p.i:i], i - p.i
}

var identifierCharRegexp = regexp.MustCompile(`[\"a-zA-Z_0-9.]`)

func (p *parser) peekIdentifierWithLength() (string, int) {
	var i int
	for i = p.i; i < len(p.sql); i++ {
		if !identifierCharRegexp.MatchString(string(p.sql[i])) {
			break
		}
	}
	identifier := p.sql[p.i:i]
	return strings.ReplaceAll(identifier, "\"", ""), len(identifier)
}

func (p *parser) validate(stmt minirel.Statement) error {
	if stmt.Kind == 0 {
		return errEmptyStatementKind
	}
	switch stmt.Kind {
	case minirel.Select:
		if len(stmt.From) == 0 {
			return errEmptyTableName
		}
	case minirel.DropIndex:
		if stmt.IndexName == "" {
			return errDropIndexNoName
		}
	default:
		if stmt.TableName == "" {
			return errEmptyTableName
		}
	}
	if stmt.Kind == minirel.CreateTable && len(stmt.Columns) == 0 {
		return errCreateTableNoColumns
	}
	if stmt.Kind == minirel.Insert && len(stmt.Values) == 0 {
		return errNoRowsToInsert
	}
	return nil
}

func (p *parser) logError(err error) {
	if err == nil {
		return
	}
	p.logger.Sugar().With(
		"sql", p.sql,
		"position", p.i,
		"error", err,
	).Debug("failed to parse statement")
}

var identifierRegexp = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z_0-9]*(\.[a-zA-Z_][a-zA-Z_0-9]*)?$`)

func isIdentifier(s string) bool {
	for _, rw := range reservedWords {
		if strings.ToUpper(s) == rw {
			return false
		}
	}
	return identifierRegexp.MatchString(s)
}

// isTableName is an identifier without a qualifier.
func isTableName(s string) bool {
	return isIdentifier(s) && !strings.Contains(s, ".")
}

func isWordChar(c byte) bool {
	return c == '_' || c == '.' || c == '"' || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c))
}

// normalizeWhitespace collapses runs of whitespace outside quoted strings
// into single spaces so multi word keywords match.
func normalizeWhitespace(sql string) string {
	var (
		b        strings.Builder
		quoted   bool
		inSpaces bool
	)
	for _, r := range sql {
		if r == '\'' {
			quoted = !quoted
		}
		if !quoted && unicode.IsSpace(r) {
			if !inSpaces {
				b.WriteByte(' ')
			}
			inSpaces = true
			continue
		}
		inSpaces = false
		b.WriteRune(r)
	}
	return b.String()
}
