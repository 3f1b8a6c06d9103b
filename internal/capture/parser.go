package capture

import (
	"bufio"
	"bytes"
	"errors"
	"hash"
	"io"
)

const readBufferSize = 256 * 1024

// Position is a restartable cursor into a transcript file: the byte offset
// just past the last consumed line and the number of lines consumed so far.
type Position struct {
	Offset int64 `json:"offset"`
	Line   int64 `json:"line"`
}

// Parser streams records out of a transcript starting at a known position.
// It only consumes newline-terminated lines, so a line still being written is
// left for the next run. Position advances once every record of a line has
// been returned by Next.
type Parser struct {
	r      *bufio.Reader
	digest hash.Hash

	pos     Position
	lineEnd Position
	pending []Record
	current Record
	line    int64
	done    bool
	err     error
}

// NewParser reads from r, which must already be positioned at start.Offset.
func NewParser(r io.Reader, start Position) *Parser {
	return &Parser{
		r:       bufio.NewReaderSize(r, readBufferSize),
		pos:     start,
		lineEnd: start,
	}
}

// WithDigest feeds every consumed byte into h.
func (p *Parser) WithDigest(h hash.Hash) *Parser {
	p.digest = h
	return p
}

// Next advances to the next record. It returns false at the end of the
// complete lines available or on a read error.
func (p *Parser) Next() bool {
	for {
		if len(p.pending) > 0 {
			p.current = p.pending[0]
			p.pending = p.pending[1:]
			if len(p.pending) == 0 {
				p.pos = p.lineEnd
			}
			return true
		}
		p.current = nil
		if p.done {
			return false
		}

		raw, err := p.r.ReadBytes('\n')
		if err != nil {
			p.done = true
			if !errors.Is(err, io.EOF) {
				p.err = err
			}
			return false
		}

		p.line = p.pos.Line + 1
		p.lineEnd = Position{Offset: p.pos.Offset + int64(len(raw)), Line: p.line}
		if p.digest != nil {
			p.digest.Write(raw)
		}

		records := p.decode(raw)
		if len(records) == 0 {
			p.pos = p.lineEnd
			continue
		}
		p.pending = records
	}
}

func (p *Parser) decode(raw []byte) []Record {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}

	records, err := decodeLine(trimmed)
	if err != nil {
		return []Record{&ParseError{Line: p.line, Offset: p.pos.Offset, Err: err}}
	}
	return records
}

// Record returns the record produced by the last call to Next.
func (p *Parser) Record() Record {
	return p.current
}

// Line returns the 1-based source line of the current record.
func (p *Parser) Line() int64 {
	return p.line
}

// Position returns the cursor to resume from.
func (p *Parser) Position() Position {
	return p.pos
}

// Err returns the first read error, if any. Reaching the end of input is not an error.
func (p *Parser) Err() error {
	return p.err
}
