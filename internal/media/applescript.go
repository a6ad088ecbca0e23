package media

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/multierr"
)

// errMalformedResult marks script output that is not a flat AppleScript list
var errMalformedResult = errors.New("malformed script result")

// parseScriptList parses the recompilable-source form of a flat AppleScript list,
// as printed by `osascript -s s`:
//
//	{true, "Title", 12.5, «data PNGf8950», missing value}
//
// Items become bool, float64, string, []byte or nil.
func parseScriptList(s string) ([]any, error) {
	p := &listParser{src: strings.TrimSpace(s)}
	if !p.consume('{') {
		return nil, fmt.Errorf("%w: expected '{'", errMalformedResult)
	}

	var items []any
	p.skipSpace()
	if p.consume('}') {
		return items, p.end()
	}

	for {
		p.skipSpace()
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		items = append(items, v)

		p.skipSpace()
		if p.consume(',') {
			continue
		}
		if p.consume('}') {
			return items, p.end()
		}
		return nil, fmt.Errorf("%w: expected ',' or '}' at offset %d", errMalformedResult, p.pos)
	}
}

type listParser struct {
	src string
	pos int
}

func (p *listParser) peek() rune {
	if p.pos >= len(p.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(p.src[p.pos:])
	return r
}

func (p *listParser) consume(r rune) bool {
	if p.peek() == r && p.pos < len(p.src) {
		p.pos += utf8.RuneLen(r)
		return true
	}
	return false
}

func (p *listParser) skipSpace() {
	for p.pos < len(p.src) {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		p.pos += size
	}
}

func (p *listParser) end() error {
	p.skipSpace()
	if p.pos != len(p.src) {
		return fmt.Errorf("%w: trailing data at offset %d", errMalformedResult, p.pos)
	}
	return nil
}

func (p *listParser) value() (any, error) {
	rest := p.src[p.pos:]
	switch {
	case strings.HasPrefix(rest, "true"):
		p.pos += len("true")
		return true, nil
	case strings.HasPrefix(rest, "false"):
		p.pos += len("false")
		return false, nil
	case strings.HasPrefix(rest, "missing value"):
		p.pos += len("missing value")
		return nil, nil
	case strings.HasPrefix(rest, `"`):
		return p.str()
	case strings.HasPrefix(rest, "«data "):
		return p.data()
	}

	r := p.peek()
	if r == '-' || r == '.' || (r >= '0' && r <= '9') {
		return p.number()
	}
	return nil, fmt.Errorf("%w: unexpected %q at offset %d", errMalformedResult, r, p.pos)
}

func (p *listParser) str() (any, error) {
	p.pos++ // opening quote
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case '"':
			p.pos++
			return b.String(), nil
		case '\\':
			if p.pos+1 >= len(p.src) {
				return nil, fmt.Errorf("%w: dangling escape", errMalformedResult)
			}
			switch esc := p.src[p.pos+1]; esc {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(esc)
			}
			p.pos += 2
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return nil, fmt.Errorf("%w: unterminated string", errMalformedResult)
}

// data parses «data TTTTHEX» where TTTT is a four character type code
func (p *listParser) data() (any, error) {
	start := p.pos + len("«data ")
	end := strings.Index(p.src[start:], "»")
	if end < 0 {
		return nil, fmt.Errorf("%w: unterminated data literal", errMalformedResult)
	}
	body := p.src[start : start+end]
	p.pos = start + end + len("»")

	if len(body) < 4 {
		return nil, fmt.Errorf("%w: short data literal", errMalformedResult)
	}
	raw, err := hex.DecodeString(body[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: data literal: %v", errMalformedResult, err)
	}
	return raw, nil
}

func (p *listParser) number() (any, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+' || c == 'E' || c == 'e' {
			p.pos++
			continue
		}
		break
	}
	f, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: number at offset %d: %v", errMalformedResult, start, err)
	}
	return f, nil
}

// tuple gives typed access to the items of a parsed script result
type tuple []any

func (t tuple) bool(i int) (bool, error) {
	switch v := t[i].(type) {
	case bool:
		return v, nil
	case nil:
		return false, nil
	}
	return false, fmt.Errorf("%w: item %d is %T, want bool", errMalformedResult, i+1, t[i])
}

func (t tuple) float(i int) (float64, error) {
	switch v := t[i].(type) {
	case float64:
		return v, nil
	case nil:
		return 0, nil
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: item %d is %T, want number", errMalformedResult, i+1, t[i])
}

func (t tuple) string(i int) (string, error) {
	switch v := t[i].(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	}
	return "", fmt.Errorf("%w: item %d is %T, want text", errMalformedResult, i+1, t[i])
}

// bytes accepts data literals; an empty string or missing value means no data
func (t tuple) bytes(i int) ([]byte, error) {
	switch v := t[i].(type) {
	case []byte:
		return v, nil
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("%w: item %d is %T, want data", errMalformedResult, i+1, t[i])
}

// tupleReader reads typed items from a tuple, accumulating every conversion error
type tupleReader struct {
	t   tuple
	err error
}

func (r *tupleReader) bool(i int) bool {
	v, err := r.t.bool(i)
	r.err = multierr.Append(r.err, err)
	return v
}

func (r *tupleReader) float(i int) float64 {
	v, err := r.t.float(i)
	r.err = multierr.Append(r.err, err)
	return v
}

func (r *tupleReader) string(i int) string {
	v, err := r.t.string(i)
	r.err = multierr.Append(r.err, err)
	return v
}

func (r *tupleReader) bytes(i int) []byte {
	v, err := r.t.bytes(i)
	r.err = multierr.Append(r.err, err)
	return v
}
