package atp

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrSyntax is returned when a command line cannot be parsed.
var ErrSyntax = errors.New("command line syntax error")

const extendedPrefixes = "+#$*%^"

var (
	extendedName = regexp.MustCompile(`^[+#$*%^][A-Z][A-Z0-9!%\-./:_]*$`)
	basicName    = regexp.MustCompile(`^(&?[A-Z]|S\d{1,3})$`)
)

// ValidName reports if the given command mnemonic can be registered.
func ValidName(name string) bool {
	sanitized := strings.ToUpper(strings.TrimSpace(name))
	return extendedName.MatchString(sanitized) || basicName.MatchString(sanitized)
}

func normalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// hasATPrefix reports if the line is a command line, i.e. starts with AT in any case.
func hasATPrefix(line string) bool {
	return len(line) >= 2 && strings.EqualFold(line[0:2], "AT")
}

// parseCommandLine splits the body of a command line (the part after AT) into requests according to [V.250] 5.4.
func parseCommandLine(instance int, body string) ([]Request, error) {
	result := make([]Request, 0, 1)
	i := 0
	for i < len(body) {
		c := body[i]
		switch {
		case c == ' ' || c == ';':
			i++
		case strings.IndexByte(extendedPrefixes, c) >= 0:
			request, next, err := parseExtended(body, i)
			if err != nil {
				return nil, err
			}
			request.Instance = instance
			result = append(result, request)
			i = next
		case isLetter(c) || c == '&':
			request, next, err := parseBasic(body, i)
			if err != nil {
				return nil, err
			}
			request.Instance = instance
			result = append(result, request)
			i = next
		default:
			return nil, fmt.Errorf("%w: unexpected character %q at %d", ErrSyntax, c, i)
		}
	}
	return result, nil
}

func parseExtended(body string, start int) (Request, int, error) {
	i := start + 1
	for i < len(body) && isNameChar(body[i]) {
		i++
	}
	name := strings.ToUpper(body[start:i])
	if !extendedName.MatchString(name) {
		return Request{}, 0, fmt.Errorf("%w: invalid command name %q", ErrSyntax, body[start:i])
	}

	request := Request{Name: name, Type: Exec}
	switch {
	case strings.HasPrefix(body[i:], "=?"):
		request.Type = Test
		i += 2
	case strings.HasPrefix(body[i:], "="):
		request.Type = Set
		end := endOfParams(body, i+1)
		params, err := parseParams(body[i+1 : end])
		if err != nil {
			return Request{}, 0, err
		}
		request.Params = params
		i = end
	case strings.HasPrefix(body[i:], "?"):
		request.Type = Read
		i++
	}

	// an extended command must be the last one or be followed by a semicolon
	j := i
	for j < len(body) && body[j] == ' ' {
		j++
	}
	if j < len(body) && body[j] != ';' {
		return Request{}, 0, fmt.Errorf("%w: missing ; after %s", ErrSyntax, name)
	}
	request.Raw = strings.TrimSpace(body[start:i])
	return request, j, nil
}

func parseBasic(body string, start int) (Request, int, error) {
	i := start
	if body[i] == '&' {
		i++
		if i >= len(body) || !isLetter(body[i]) {
			return Request{}, 0, fmt.Errorf("%w: & without command letter", ErrSyntax)
		}
	}
	letter := toUpper(body[i])
	i++

	request := Request{Type: NoParams}
	switch {
	case letter == 'D' && body[start] != '&':
		// the dial string takes the rest of the command up to the next semicolon
		request.Name = "D"
		end := strings.IndexByte(body[i:], ';')
		if end < 0 {
			end = len(body) - i
		}
		request.Type = Set
		request.Params = []Param{{Value: strings.TrimSpace(body[i : i+end]), Present: true}}
		i += end
		request.Raw = body[start:i]
		return request, i, nil
	case letter == 'S' && body[start] != '&':
		digits := i
		for i < len(body) && isDigit(body[i]) {
			i++
		}
		if digits == i {
			return Request{}, 0, fmt.Errorf("%w: S without register number", ErrSyntax)
		}
		register, _ := strconv.Atoi(body[digits:i])
		request.Name = fmt.Sprintf("S%d", register)
		switch {
		case strings.HasPrefix(body[i:], "?"):
			request.Type = Read
			i++
		case strings.HasPrefix(body[i:], "=?"):
			request.Type = Test
			i += 2
		case strings.HasPrefix(body[i:], "="):
			i++
			valueStart := i
			for i < len(body) && isDigit(body[i]) {
				i++
			}
			request.Type = Set
			request.Params = []Param{{Value: body[valueStart:i], Present: valueStart != i}}
		}
		request.Raw = body[start:i]
		return request, i, nil
	}

	request.Name = strings.ToUpper(body[start:i])
	switch {
	case strings.HasPrefix(body[i:], "=?"):
		request.Type = Test
		i += 2
	case strings.HasPrefix(body[i:], "?"):
		request.Type = Read
		i++
	default:
		valueStart := i
		for i < len(body) && isDigit(body[i]) {
			i++
		}
		if valueStart != i {
			request.Type = Set
			request.Params = []Param{{Value: body[valueStart:i], Present: true}}
		}
	}
	request.Raw = body[start:i]
	return request, i, nil
}

// endOfParams returns the index of the semicolon that ends the parameters, or the end of the body.
func endOfParams(body string, start int) int {
	quoted := false
	for i := start; i < len(body); i++ {
		switch body[i] {
		case '"':
			quoted = !quoted
		case ';':
			if !quoted {
				return i
			}
		}
	}
	return len(body)
}

// parseParams splits the parameter list at commas outside of string constants.
func parseParams(s string) ([]Param, error) {
	result := make([]Param, 0, 4)
	current := make([]byte, 0, len(s))
	quoted := false
	wasQuoted := false

	flush := func() error {
		value := string(current)
		var param Param
		if wasQuoted {
			unquoted, err := unquoteParam(value)
			if err != nil {
				return err
			}
			param = Param{Value: unquoted, Quoted: true, Present: true}
		} else {
			value = strings.TrimSpace(value)
			param = Param{Value: value, Present: value != ""}
		}
		result = append(result, param)
		current = current[:0]
		wasQuoted = false
		return nil
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			if !quoted && strings.TrimSpace(string(current)) != "" {
				return nil, fmt.Errorf("%w: unexpected quote in parameter", ErrSyntax)
			}
			if !quoted {
				current = current[:0]
			}
			quoted = !quoted
			wasQuoted = true
		case c == ',' && !quoted:
			if err := flush(); err != nil {
				return nil, err
			}
		case quoted:
			current = append(current, c)
		case wasQuoted && c != ' ':
			return nil, fmt.Errorf("%w: unexpected characters after string", ErrSyntax)
		case wasQuoted:
			// trailing spaces after a string constant
		default:
			current = append(current, c)
		}
	}
	if quoted {
		return nil, fmt.Errorf("%w: unterminated string", ErrSyntax)
	}
	if len(s) > 0 {
		if err := flush(); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// unquoteParam resolves the \XX hex escapes of a string constant according to [V.250] 5.4.2.2.
func unquoteParam(s string) (string, error) {
	if strings.IndexByte(s, '\\') < 0 {
		return s, nil
	}
	result := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			result = append(result, s[i])
			continue
		}
		if i+3 > len(s) {
			return "", fmt.Errorf("%w: incomplete escape sequence", ErrSyntax)
		}
		value, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
		if err != nil {
			return "", fmt.Errorf("%w: invalid escape sequence \\%s", ErrSyntax, s[i+1:i+3])
		}
		result = append(result, byte(value))
		i += 2
	}
	return string(result), nil
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isNameChar(c byte) bool {
	return isLetter(c) || isDigit(c) || strings.IndexByte("!%-./:_", c) >= 0
}

func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}
