package remote

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// ErrMalformedKeyValue is returned when a key/value document cannot be parsed
var ErrMalformedKeyValue = errors.New("malformed key/value document")

// KeyValue is one node of a product metadata tree. Leaves carry Value,
// blocks carry Children in document order.
type KeyValue struct {
	Name     string
	Value    string
	Children []*KeyValue
}

// Child returns the first child whose name matches case-insensitively, or nil.
// It is safe to call on a nil node so lookups can be chained.
func (kv *KeyValue) Child(name string) *KeyValue {
	if kv == nil {
		return nil
	}
	for _, c := range kv.Children {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// Lookup walks a path of child names
func (kv *KeyValue) Lookup(path ...string) *KeyValue {
	node := kv
	for _, name := range path {
		node = node.Child(name)
	}
	return node
}

// String renders the node in the brace-delimited text format read by ParseText
func (kv *KeyValue) String() string {
	if kv == nil {
		return ""
	}
	var b strings.Builder
	kv.write(&b, 0)
	return b.String()
}

func (kv *KeyValue) write(b *strings.Builder, depth int) {
	indent := strings.Repeat("\t", depth)
	b.WriteString(indent)
	b.WriteString(quote(kv.Name))
	if kv.Children == nil {
		b.WriteString("\t\t")
		b.WriteString(quote(kv.Value))
		b.WriteByte('\n')
		return
	}
	b.WriteByte('\n')
	b.WriteString(indent + "{\n")
	for _, c := range kv.Children {
		c.write(b, depth+1)
	}
	b.WriteString(indent + "}\n")
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\t", `\t`)
	return `"` + r.Replace(s) + `"`
}

// ParseText reads a brace-delimited key/value text document. A document with
// a single top-level key returns that node; several top-level keys are
// wrapped in an unnamed root.
func ParseText(r io.Reader) (*KeyValue, error) {
	p := &textParser{r: bufio.NewReader(r), line: 1}
	nodes, err := p.parseBlock(false)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return &KeyValue{Children: nodes}, nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokString
	tokOpen
	tokClose
)

type textParser struct {
	r    *bufio.Reader
	line int
}

func (p *textParser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: line %d: %s", ErrMalformedKeyValue, p.line, fmt.Sprintf(format, args...))
}

func (p *textParser) parseBlock(nested bool) ([]*KeyValue, error) {
	nodes := []*KeyValue{}
	for {
		kind, key, err := p.next()
		if err != nil {
			return nil, err
		}
		switch kind {
		case tokEOF:
			if nested {
				return nil, p.errorf("unexpected end of document")
			}
			return nodes, nil
		case tokClose:
			if !nested {
				return nil, p.errorf("unbalanced '}'")
			}
			return nodes, nil
		case tokOpen:
			return nil, p.errorf("block without a key")
		}

		kind, value, err := p.next()
		if err != nil {
			return nil, err
		}
		switch kind {
		case tokString:
			nodes = append(nodes, &KeyValue{Name: key, Value: value})
		case tokOpen:
			children, err := p.parseBlock(true)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, &KeyValue{Name: key, Children: children})
		default:
			return nil, p.errorf("key %q has no value", key)
		}
	}
}

// next returns the next token, skipping whitespace, // comments and
// [$PLATFORM] conditionals.
func (p *textParser) next() (tokenKind, string, error) {
	for {
		c, err := p.r.ReadByte()
		if err == io.EOF {
			return tokEOF, "", nil
		}
		if err != nil {
			return tokEOF, "", err
		}
		switch {
		case c == '\n':
			p.line++
		case c == ' ' || c == '\t' || c == '\r':
		case c == '{':
			return tokOpen, "", nil
		case c == '}':
			return tokClose, "", nil
		case c == '"':
			s, err := p.quoted()
			return tokString, s, err
		case c == '/':
			if n, _ := p.r.Peek(1); len(n) == 1 && n[0] == '/' {
				if _, err := p.r.ReadString('\n'); err != nil && err != io.EOF {
					return tokEOF, "", err
				}
				p.line++
				continue
			}
			s, err := p.bare(c)
			return tokString, s, err
		case c == '[':
			if _, err := p.r.ReadString(']'); err != nil {
				return tokEOF, "", p.errorf("unterminated conditional")
			}
		default:
			s, err := p.bare(c)
			return tokString, s, err
		}
	}
}

func (p *textParser) quoted() (string, error) {
	var b strings.Builder
	for {
		c, err := p.r.ReadByte()
		if err != nil {
			return "", p.errorf("unterminated string")
		}
		switch c {
		case '"':
			return b.String(), nil
		case '\n':
			p.line++
			b.WriteByte(c)
		case '\\':
			e, err := p.r.ReadByte()
			if err != nil {
				return "", p.errorf("unterminated escape")
			}
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
	}
}

func (p *textParser) bare(first byte) (string, error) {
	b := []byte{first}
	for {
		c, err := p.r.ReadByte()
		if err == io.EOF {
			return string(b), nil
		}
		if err != nil {
			return "", err
		}
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '{' || c == '}' || c == '"' {
			p.r.UnreadByte()
			return string(b), nil
		}
		b = append(b, c)
	}
}

// DecodeJSON reads a JSON document into a tree, keeping object member order.
// Scalars become leaf values, objects become blocks and arrays become blocks
// whose children are named by index.
func DecodeJSON(r io.Reader) (*KeyValue, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	root, err := decodeNode(dec, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKeyValue, err)
	}
	return root, nil
}

func decodeNode(dec *json.Decoder, name string) (*KeyValue, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	node := &KeyValue{Name: name}
	switch v := tok.(type) {
	case json.Delim:
		node.Children = []*KeyValue{}
		switch v {
		case '{':
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T", keyTok)
				}
				child, err := decodeNode(dec, key)
				if err != nil {
					return nil, err
				}
				node.Children = append(node.Children, child)
			}
		case '[':
			for i := 0; dec.More(); i++ {
				child, err := decodeNode(dec, strconv.Itoa(i))
				if err != nil {
					return nil, err
				}
				node.Children = append(node.Children, child)
			}
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", v)
		}
		// closing delimiter
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
	case string:
		node.Value = v
	case json.Number:
		node.Value = v.String()
	case bool:
		node.Value = strconv.FormatBool(v)
	case nil:
	default:
		node.Value = fmt.Sprint(v)
	}
	return node, nil
}
