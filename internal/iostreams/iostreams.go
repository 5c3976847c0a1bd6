package iostreams

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// IOStreams is the set of streams the shell talks to the user through.
type IOStreams struct {
	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer
}

// NewOSIOStreams builds streams bound to the process's standard files.
func NewOSIOStreams() *IOStreams {
	return &IOStreams{In: os.Stdin, Out: os.Stdout, ErrOut: os.Stderr}
}

// NewTestIOStreams returns buffer-backed streams and the buffers themselves.
func NewTestIOStreams() (*IOStreams, *bytes.Buffer, *bytes.Buffer, *bytes.Buffer) {
	in := &bytes.Buffer{}
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &IOStreams{
		In:     in,
		Out:    out,
		ErrOut: errOut,
	}, in, out, errOut
}

// Files returns the streams as *os.File, which is what child processes
// inherit. It fails if any stream is not backed by a file.
func (s *IOStreams) Files() (in, out, errOut *os.File, err error) {
	var ok bool
	if in, ok = s.In.(*os.File); !ok {
		return nil, nil, nil, fmt.Errorf("stdin is %T, not a file", s.In)
	}
	if out, ok = s.Out.(*os.File); !ok {
		return nil, nil, nil, fmt.Errorf("stdout is %T, not a file", s.Out)
	}
	if errOut, ok = s.ErrOut.(*os.File); !ok {
		return nil, nil, nil, fmt.Errorf("stderr is %T, not a file", s.ErrOut)
	}
	return in, out, errOut, nil
}
