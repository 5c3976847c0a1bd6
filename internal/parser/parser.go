// Package parser turns a command line into a pipeline description. It knows
// about pipes, redirections and a trailing '&', and nothing else.
package parser

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/PiranhaCodes/jobshell/internal/job"
)

var (
	ErrEmpty              = errors.New("empty command line")
	ErrEmptyStage         = errors.New("missing command in pipeline")
	ErrMissingTarget      = errors.New("missing redirection target")
	ErrMisplacedRedirect  = errors.New("redirection not allowed here")
	ErrMisplacedAmpersand = errors.New("'&' must end the command line")
	ErrUnterminatedQuote  = errors.New("unterminated quote")
)

type kind int

const (
	word kind = iota
	pipe
	redirectIn
	redirectOut
	redirectAppend
	background
)

type token struct {
	kind kind
	text string
}

// Parse parses one command line.
func Parse(line string) (job.Pipeline, error) {
	toks, err := lex(line)
	if err != nil {
		return job.Pipeline{}, err
	}
	if len(toks) == 0 {
		return job.Pipeline{}, ErrEmpty
	}

	p := job.Pipeline{Foreground: true}
	if toks[len(toks)-1].kind == background {
		p.Foreground = false
		toks = toks[:len(toks)-1]
	}

	var cur []string
	// pendingOut holds an output redirection seen before a later '|'.
	pendingOut := false
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch t.kind {
		case word:
			cur = append(cur, t.text)
		case pipe:
			if len(cur) == 0 {
				return job.Pipeline{}, ErrEmptyStage
			}
			if pendingOut {
				return job.Pipeline{}, fmt.Errorf("%w: output redirection before '|'", ErrMisplacedRedirect)
			}
			p.Stages = append(p.Stages, job.Stage{Argv: cur})
			cur = nil
		case redirectIn, redirectOut, redirectAppend:
			if i+1 >= len(toks) || toks[i+1].kind != word {
				return job.Pipeline{}, fmt.Errorf("%w after %q", ErrMissingTarget, t.text)
			}
			target := toks[i+1].text
			i++
			if t.kind == redirectIn {
				if len(p.Stages) > 0 {
					return job.Pipeline{}, fmt.Errorf("%w: input redirection after '|'", ErrMisplacedRedirect)
				}
				p.InputPath = target
				continue
			}
			p.OutputPath = target
			p.Append = t.kind == redirectAppend
			pendingOut = true
		case background:
			return job.Pipeline{}, ErrMisplacedAmpersand
		}
	}
	if len(cur) == 0 {
		return job.Pipeline{}, ErrEmptyStage
	}
	p.Stages = append(p.Stages, job.Stage{Argv: cur})
	p.Text = commandText(line)
	return p, nil
}

// commandText is the line as typed, minus surrounding space and a trailing
// '&'.
func commandText(line string) string {
	s := strings.TrimSpace(line)
	s = strings.TrimSuffix(s, "&")
	return strings.TrimSpace(s)
}

func lex(line string) ([]token, error) {
	var (
		toks   []token
		buf    strings.Builder
		inWord bool
	)
	flush := func() {
		if inWord {
			toks = append(toks, token{kind: word, text: buf.String()})
			buf.Reset()
			inWord = false
		}
	}

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			flush()
		case r == '\'' || r == '"':
			end := indexRune(runes[i+1:], r)
			if end < 0 {
				return nil, ErrUnterminatedQuote
			}
			buf.WriteString(string(runes[i+1 : i+1+end]))
			inWord = true
			i += end + 1
		case r == '|':
			flush()
			toks = append(toks, token{kind: pipe, text: "|"})
		case r == '&':
			flush()
			toks = append(toks, token{kind: background, text: "&"})
		case r == '<':
			flush()
			toks = append(toks, token{kind: redirectIn, text: "<"})
		case r == '>':
			flush()
			if i+1 < len(runes) && runes[i+1] == '>' {
				toks = append(toks, token{kind: redirectAppend, text: ">>"})
				i++
			} else {
				toks = append(toks, token{kind: redirectOut, text: ">"})
			}
		default:
			buf.WriteRune(r)
			inWord = true
		}
	}
	flush()
	return toks, nil
}

func indexRune(rs []rune, r rune) int {
	for i, c := range rs {
		if c == r {
			return i
		}
	}
	return -1
}
