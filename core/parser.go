package core

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

var endstreamMarker = []byte("endstream")

// ReferenceResolver is an interface for resolving indirect references.
// This allows the parser to resolve indirect stream lengths when needed.
type ReferenceResolver interface {
	ResolveReference(ref IndirectRef) (Object, error)
}

// Parser parses PDF objects from an io.Reader using a Lexer for tokenization.
// It supports parsing all PDF object types including indirect objects and streams.
type Parser struct {
	lexer        *Lexer
	currentToken *Token // Current token being processed
	peekToken    *Token // Next token (lookahead)
	resolver     ReferenceResolver
	tolerant     bool
}

// SetReferenceResolver sets the reference resolver for the parser.
// This is needed to resolve indirect stream lengths.
func (p *Parser) SetReferenceResolver(resolver ReferenceResolver) {
	p.resolver = resolver
}

// NewParser creates a new PDF parser for the given reader.
// It initializes the lexer and loads the first two tokens for lookahead.
func NewParser(r io.Reader) *Parser {
	p := &Parser{
		lexer: NewLexer(r),
	}
	// Load first two tokens
	p.nextToken()
	p.nextToken()
	return p
}

// newParserFromLexer wraps an existing lexer, continuing from its current
// position. Used when a caller has already consumed leading tokens.
func newParserFromLexer(lexer *Lexer) *Parser {
	p := &Parser{
		lexer: lexer,
	}
	p.nextToken()
	p.nextToken()
	return p
}

// NewTolerantParser creates a parser whose lexer resynchronizes after
// malformed tokens and whose stream handling prefers best-effort recovery.
func NewTolerantParser(r io.Reader) *Parser {
	p := &Parser{
		lexer:    NewTolerantLexer(r),
		tolerant: true,
	}
	p.nextToken()
	p.nextToken()
	return p
}

// nextToken advances the parser to the next token by shifting the lookahead.
func (p *Parser) nextToken() error {
	p.currentToken = p.peekToken

	// If we just moved "stream" into currentToken, don't try to read the next token
	// because it's binary data that can't be tokenized normally.
	// The parseStream function will handle reading the binary data directly.
	if p.currentToken != nil &&
		p.currentToken.Type == TokenKeyword &&
		string(p.currentToken.Value) == "stream" {
		p.peekToken = nil
		return nil
	}

	token, err := p.lexer.NextToken()
	if err != nil {
		return err
	}
	p.peekToken = token
	return nil
}

// skipComments skips over any consecutive comment tokens.
func (p *Parser) skipComments() error {
	for p.currentToken != nil && p.currentToken.Type == TokenComment {
		if err := p.nextToken(); err != nil {
			return err
		}
	}
	return nil
}

// ParseObject parses and returns the next PDF object from the input.
// It handles all PDF object types: null, boolean, integer, real, string,
// name, array, dictionary, and indirect references.
func (p *Parser) ParseObject() (Object, error) {
	// Skip any comments
	if err := p.skipComments(); err != nil {
		return nil, err
	}

	if p.currentToken == nil {
		return nil, &ParseError{Msg: "unexpected end of input"}
	}

	switch p.currentToken.Type {
	case TokenEOF:
		return nil, io.EOF

	case TokenKeyword:
		keyword := string(p.currentToken.Value)
		switch keyword {
		case "null":
			p.nextToken()
			return Null{}, nil
		case "true":
			p.nextToken()
			return Bool(true), nil
		case "false":
			p.nextToken()
			return Bool(false), nil
		default:
			return nil, &ParseError{Msg: fmt.Sprintf("unexpected keyword: %s", keyword)}
		}

	case TokenInteger:
		// Could be integer, real, or start of indirect reference
		return p.parseNumber()

	case TokenReal:
		val, err := strconv.ParseFloat(string(p.currentToken.Value), 64)
		if err != nil {
			return nil, &ParseError{Msg: "invalid real number", Cause: err}
		}
		p.nextToken()
		return Real(val), nil

	case TokenString:
		val := make([]byte, len(p.currentToken.Value))
		copy(val, p.currentToken.Value)
		p.nextToken()
		return String{Value: val}, nil

	case TokenHexString:
		// Convert hex digits to bytes
		hexStr := string(p.currentToken.Value)
		if len(hexStr)%2 != 0 {
			hexStr += "0" // Pad if odd length
		}
		result := make([]byte, len(hexStr)/2)
		for i := 0; i < len(hexStr); i += 2 {
			b, err := strconv.ParseUint(hexStr[i:i+2], 16, 8)
			if err != nil {
				return nil, &ParseError{Msg: "invalid hex string", Cause: err}
			}
			result[i/2] = byte(b)
		}
		p.nextToken()
		return String{Value: result, Hex: true}, nil

	case TokenName:
		val := string(p.currentToken.Value)
		p.nextToken()
		return Name(val), nil

	case TokenArrayStart:
		return p.parseArray()

	case TokenDictStart:
		return p.parseDict()

	default:
		return nil, &ParseError{Msg: fmt.Sprintf("unexpected token type %v at position %d", p.currentToken.Type, p.currentToken.Pos)}
	}
}

// parseNumber parses an integer, real number, or indirect reference.
// Indirect references are detected by lookahead: "num gen R" pattern.
func (p *Parser) parseNumber() (Object, error) {
	firstToken := string(p.currentToken.Value)

	// Try to parse as integer first
	firstInt, err := strconv.ParseInt(firstToken, 10, 64)
	if err != nil {
		// If it's not a valid integer, try as float
		f, err := strconv.ParseFloat(firstToken, 64)
		if err != nil {
			return nil, &ParseError{Msg: fmt.Sprintf("invalid number: %s", firstToken)}
		}
		p.nextToken()
		return Real(f), nil
	}

	// Use lookahead to check if this is an indirect reference (num gen R)
	// Don't consume tokens yet - just peek
	if p.peekToken != nil && p.peekToken.Type == TokenInteger {
		secondToken := string(p.peekToken.Value)
		secondInt, err := strconv.ParseInt(secondToken, 10, 64)
		if err == nil {
			// Peek ahead two tokens to see if there's an R
			// We need to temporarily consume to peek further
			p.nextToken() // Move to second integer
			if p.peekToken != nil && p.peekToken.Type == TokenIndirectRef {
				// It's an indirect reference - consume both tokens
				p.nextToken() // Move to R
				p.nextToken() // Move past R
				return IndirectRef{
					Number:     int(firstInt),
					Generation: int(secondInt),
				}, nil
			}
			// Not an indirect ref - we're now at the second integer
			// Return the first integer as Int
			return Int(firstInt), nil
		}
	}

	// Just a single integer
	p.nextToken()
	return Int(firstInt), nil
}

// parseArray parses a PDF array "[obj1 obj2 ...]".
func (p *Parser) parseArray() (Object, error) {
	if p.currentToken.Type != TokenArrayStart {
		return nil, &ParseError{Msg: fmt.Sprintf("expected '[', got %v", p.currentToken.Type)}
	}
	p.nextToken()

	var arr Array
	for {
		// Skip comments
		if err := p.skipComments(); err != nil {
			return nil, err
		}

		// Check for end of array
		if p.currentToken == nil {
			return nil, &ParseError{Msg: "unexpected end of input in array"}
		}
		if p.currentToken.Type == TokenArrayEnd {
			p.nextToken()
			break
		}
		if p.currentToken.Type == TokenEOF {
			if p.tolerant {
				break
			}
			return nil, &ParseError{Msg: "unexpected EOF in array"}
		}

		// Parse element
		obj, err := p.ParseObject()
		if err != nil {
			return nil, &ParseError{Msg: "error parsing array element", Cause: err}
		}
		arr = append(arr, obj)
	}

	return arr, nil
}

// parseDict parses a PDF dictionary "<< /Key value ... >>".
func (p *Parser) parseDict() (Object, error) {
	if p.currentToken.Type != TokenDictStart {
		return nil, &ParseError{Msg: fmt.Sprintf("expected '<<', got %v", p.currentToken.Type)}
	}
	p.nextToken()

	dict := make(Dict)
	for {
		// Skip comments
		if err := p.skipComments(); err != nil {
			return nil, err
		}

		// Check for end of dict
		if p.currentToken == nil {
			return nil, &ParseError{Msg: "unexpected end of input in dictionary"}
		}
		if p.currentToken.Type == TokenDictEnd {
			p.nextToken()
			break
		}
		if p.currentToken.Type == TokenEOF {
			if p.tolerant {
				break
			}
			return nil, &ParseError{Msg: "unexpected EOF in dictionary"}
		}

		// Parse key (must be a name)
		if p.currentToken.Type != TokenName {
			if p.tolerant {
				// Skip stray token and keep going
				p.nextToken()
				continue
			}
			return nil, &ParseError{Msg: fmt.Sprintf("expected name for dictionary key, got %v", p.currentToken.Type)}
		}
		key := string(p.currentToken.Value)
		p.nextToken()

		// Parse value
		value, err := p.ParseObject()
		if err != nil {
			return nil, &ParseError{Msg: fmt.Sprintf("error parsing dictionary value for key '%s'", key), Cause: err}
		}

		dict[key] = value
	}

	return dict, nil
}

// ParseIndirectObject parses an indirect object definition.
// Format: "num gen obj <object> endobj" or "num gen obj <dict> stream ... endstream endobj"
func (p *Parser) ParseIndirectObject() (*IndirectObject, error) {
	// Skip comments
	if err := p.skipComments(); err != nil {
		return nil, err
	}

	// Parse object number
	if p.currentToken.Type != TokenInteger {
		return nil, &ParseError{Msg: fmt.Sprintf("expected object number, got %v", p.currentToken.Type)}
	}
	numStr := string(p.currentToken.Value)
	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return nil, &ParseError{Msg: "invalid object number", Cause: err}
	}
	p.nextToken()

	// Parse generation number
	if p.currentToken.Type != TokenInteger {
		return nil, &ParseError{Msg: fmt.Sprintf("expected generation number, got %v", p.currentToken.Type)}
	}
	genStr := string(p.currentToken.Value)
	gen, err := strconv.ParseInt(genStr, 10, 64)
	if err != nil {
		return nil, &ParseError{Msg: "invalid generation number", Cause: err}
	}
	p.nextToken()

	// Parse 'obj' keyword
	if p.currentToken.Type != TokenKeyword || string(p.currentToken.Value) != "obj" {
		return nil, &ParseError{Msg: fmt.Sprintf("expected 'obj' keyword, got %v", p.currentToken)}
	}
	p.nextToken()

	// Parse the object value
	obj, err := p.ParseObject()
	if err != nil {
		return nil, &ParseError{Msg: "error parsing indirect object value", Cause: err}
	}

	// Check for stream
	if p.currentToken != nil && p.currentToken.Type == TokenKeyword && string(p.currentToken.Value) == "stream" {
		// This is a stream object
		if dict, ok := obj.(Dict); ok {
			stream, err := p.parseStream(dict)
			if err != nil {
				return nil, &ParseError{Msg: "error parsing stream", Cause: err}
			}
			obj = stream
		} else {
			return nil, &ParseError{Msg: "stream must follow a dictionary"}
		}
	}

	// Parse 'endobj' keyword
	if p.currentToken == nil || p.currentToken.Type != TokenKeyword || string(p.currentToken.Value) != "endobj" {
		if !p.tolerant {
			return nil, &ParseError{Msg: fmt.Sprintf("expected 'endobj' keyword, got %v", p.currentToken)}
		}
		// Tolerant mode: accept the object as parsed; the caller resumes
		// at the next object boundary.
	} else {
		p.nextToken()
	}

	return &IndirectObject{
		Ref: IndirectRef{
			Number:     int(num),
			Generation: int(gen),
		},
		Object: obj,
	}, nil
}

// parseStream parses a stream object after the "stream" keyword.
// It reads the binary data according to the /Length entry in the dictionary.
// When the declared length does not line up with the endstream keyword (or
// Length is missing or unresolvable), it falls back to scanning for the
// keyword and takes the bytes before it as the stream data.
func (p *Parser) parseStream(dict Dict) (*Stream, error) {
	// We're at the 'stream' keyword
	if p.currentToken.Type != TokenKeyword || string(p.currentToken.Value) != "stream" {
		return nil, &ParseError{Msg: "expected 'stream' keyword"}
	}

	length := p.streamLength(dict)

	// Per PDF spec, the 'stream' keyword is followed by either a single LF
	// or a CR+LF sequence, then exactly 'length' bytes of stream data.
	// Since we stopped loading peekToken when we saw 'stream', the lexer
	// is positioned right after the 'stream' keyword.
	if err := p.lexer.SkipStreamEOL(); err != nil {
		return nil, &ParseError{Msg: "failed to skip EOL after stream keyword", Cause: err}
	}

	var data []byte
	if length < 0 {
		// No usable Length: take everything up to the endstream keyword.
		scanned, err := p.lexer.ReadUntilMarker(endstreamMarker)
		if err != nil {
			return nil, &ParseError{Msg: "stream missing endstream keyword", Cause: err}
		}
		data = trimStreamEOL(scanned)
	} else {
		read, readErr := p.lexer.ReadBytes(length)
		data = read

		extra, scanErr := p.lexer.ReadUntilMarker(endstreamMarker)
		switch {
		case scanErr == nil && isAllWhitespace(extra):
			// Declared length was correct.
		case bytes.Contains(data, endstreamMarker):
			// Declared length overshot: the keyword is inside what we read.
			// Truncate the data there and push the consumed tail back into
			// the token stream so subsequent parsing sees it.
			i := bytes.Index(data, endstreamMarker)
			tail := make([]byte, 0, len(data)-i-len(endstreamMarker)+len(extra)+len(endstreamMarker))
			tail = append(tail, data[i+len(endstreamMarker):]...)
			tail = append(tail, extra...)
			if scanErr == nil {
				tail = append(tail, endstreamMarker...)
			}
			data = trimStreamEOL(data[:i])
			p.pushBack(tail)
		case scanErr == nil:
			// Declared length fell short: the real data continues up to the
			// keyword we just found.
			data = trimStreamEOL(append(data, extra...))
		case readErr != nil:
			return nil, &ParseError{Msg: "failed to read stream data", Cause: readErr}
		default:
			return nil, &ParseError{Msg: "stream missing endstream keyword", Cause: scanErr}
		}
	}

	// Reload the parser's current and peek tokens so ParseIndirectObject
	// can continue normally after the consumed endstream keyword.
	p.currentToken = nil
	p.peekToken = nil
	p.nextToken()
	p.nextToken()

	return &Stream{
		Dict: dict,
		Data: data,
	}, nil
}

// streamLength resolves the /Length entry, returning -1 when it is missing
// or cannot be resolved to a non-negative integer.
func (p *Parser) streamLength(dict Dict) int {
	switch v := dict.Get("Length").(type) {
	case Int:
		if v >= 0 {
			return int(v)
		}
	case IndirectRef:
		if p.resolver == nil {
			return -1
		}
		resolved, err := p.resolver.ResolveReference(v)
		if err != nil {
			return -1
		}
		if n, ok := resolved.(Int); ok && n >= 0 {
			return int(n)
		}
	}
	return -1
}

// pushBack prepends already-consumed bytes to the remaining input by
// swapping in a new lexer over the concatenation.
func (p *Parser) pushBack(tail []byte) {
	rest := io.MultiReader(bytes.NewReader(tail), p.lexer.reader)
	if p.tolerant {
		p.lexer = NewTolerantLexer(rest)
	} else {
		p.lexer = NewLexer(rest)
	}
}

// trimStreamEOL drops the single EOL that separates stream data from the
// endstream keyword.
func trimStreamEOL(data []byte) []byte {
	if n := len(data); n > 0 {
		if data[n-1] == '\n' {
			data = data[:n-1]
			if m := len(data); m > 0 && data[m-1] == '\r' {
				data = data[:m-1]
			}
		} else if data[n-1] == '\r' {
			data = data[:n-1]
		}
	}
	return data
}

func isAllWhitespace(b []byte) bool {
	for _, c := range b {
		if !isWhitespace(c) {
			return false
		}
	}
	return true
}
