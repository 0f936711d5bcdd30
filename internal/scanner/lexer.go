package scanner

import "strings"

// tokenType is the coarse class of an R token.
type tokenType uint8

const (
	tokenIdent tokenType = iota
	tokenString
	tokenNumber
	tokenOperator
	tokenPunct
)

// token is a significant R token on one line. Comments and whitespace are
// dropped by the lexer.
type token struct {
	typ   tokenType
	value string
	col   int
}

func (t token) is(value string) bool {
	return t.typ != tokenString && t.value == value
}

// operators are matched longest first.
var operators = []string{
	"<<-", "->>", "%%", "|>", "<-", "->", "<=", ">=", "==", "!=", "&&", "||", "::",
	"=", "+", "-", "*", "/", "^", "<", ">", "!", "&", "|", "~", "?", "$", "@", ":", "\\",
}

func isIdentStart(c byte) bool {
	return c == '.' || c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// lexLine splits one line of R code into significant tokens. A string that
// is not terminated on the line runs to the end of the line.
func lexLine(line string) []token {
	var tokens []token
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '#':
			return tokens
		case c == '"' || c == '\'' || c == '`':
			end, closed := scanQuoted(line, i)
			typ := tokenString
			value := line[i+1 : end]
			if closed {
				value = line[i+1 : end-1]
			}
			if c == '`' {
				typ = tokenIdent
			}
			tokens = append(tokens, token{typ: typ, value: value, col: i})
			i = end
		case isDigit(c) || c == '.' && i+1 < len(line) && isDigit(line[i+1]):
			start := i
			for i < len(line) && (isIdentPart(line[i]) || line[i] == '.') {
				i++
			}
			tokens = append(tokens, token{typ: tokenNumber, value: line[start:i], col: start})
		case isIdentStart(c):
			start := i
			for i < len(line) && isIdentPart(line[i]) {
				i++
			}
			tokens = append(tokens, token{typ: tokenIdent, value: line[start:i], col: start})
		case strings.ContainsRune("{}()[],;", rune(c)):
			tokens = append(tokens, token{typ: tokenPunct, value: line[i : i+1], col: i})
			i++
		case c == '%':
			end := strings.IndexByte(line[i+1:], '%')
			if end < 0 {
				tokens = append(tokens, token{typ: tokenOperator, value: "%", col: i})
				i++
				continue
			}
			tokens = append(tokens, token{typ: tokenOperator, value: line[i : i+end+2], col: i})
			i += end + 2
		default:
			op := line[i : i+1]
			for _, candidate := range operators {
				if strings.HasPrefix(line[i:], candidate) {
					op = candidate
					break
				}
			}
			tokens = append(tokens, token{typ: tokenOperator, value: op, col: i})
			i += len(op)
		}
	}
	return tokens
}

// scanQuoted returns the index just past the string starting at line[start]
// and whether the closing quote was found.
func scanQuoted(line string, start int) (int, bool) {
	quote := line[start]
	for i := start + 1; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case quote:
			return i + 1, true
		}
	}
	return len(line), false
}
