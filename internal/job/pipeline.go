package job

import "strings"

// Stage is one program invocation within a pipeline.
type Stage struct {
	Argv []string
}

// Pipeline is a fully-resolved command line as produced by the parser.
type Pipeline struct {
	Stages     []Stage
	InputPath  string
	OutputPath string
	// Append opens OutputPath for appending instead of truncating it.
	Append     bool
	Foreground bool
	// Text is the display string used in notifications. When empty the
	// stages are joined with " | ".
	Text string
}

// CommandText returns the display string for the pipeline.
func (p Pipeline) CommandText() string {
	if t := strings.TrimSpace(p.Text); t != "" {
		return t
	}
	parts := make([]string, 0, len(p.Stages))
	for _, s := range p.Stages {
		parts = append(parts, strings.Join(s.Argv, " "))
	}
	return strings.Join(parts, " | ")
}

// Validate reports whether every stage has a program to run.
func (p Pipeline) Validate() error {
	if len(p.Stages) == 0 {
		return ErrEmptyPipeline
	}
	for _, s := range p.Stages {
		if len(s.Argv) == 0 || s.Argv[0] == "" {
			return ErrEmptyStage
		}
	}
	return nil
}
