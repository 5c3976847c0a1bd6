package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/PiranhaCodes/jobshell/internal/job"
)

func stages(argvs ...[]string) []job.Stage {
	out := make([]job.Stage, 0, len(argvs))
	for _, a := range argvs {
		out = append(out, job.Stage{Argv: a})
	}
	return out
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		line string
		want job.Pipeline
	}{
		{
			name: "single command",
			line: "ls -l",
			want: job.Pipeline{Stages: stages([]string{"ls", "-l"}), Foreground: true, Text: "ls -l"},
		},
		{
			name: "three stage pipeline",
			line: "ls | grep foo | wc -l",
			want: job.Pipeline{
				Stages:     stages([]string{"ls"}, []string{"grep", "foo"}, []string{"wc", "-l"}),
				Foreground: true,
				Text:       "ls | grep foo | wc -l",
			},
		},
		{
			name: "background",
			line: "  sleep 5 & ",
			want: job.Pipeline{Stages: stages([]string{"sleep", "5"}), Text: "sleep 5"},
		},
		{
			name: "attached operators",
			line: "sort<in.txt|uniq>out.txt&",
			want: job.Pipeline{
				Stages:     stages([]string{"sort"}, []string{"uniq"}),
				InputPath:  "in.txt",
				OutputPath: "out.txt",
				Text:       "sort<in.txt|uniq>out.txt",
			},
		},
		{
			name: "append",
			line: "echo hi >> log",
			want: job.Pipeline{
				Stages:     stages([]string{"echo", "hi"}),
				OutputPath: "log",
				Append:     true,
				Foreground: true,
				Text:       "echo hi >> log",
			},
		},
		{
			name: "redirections before arguments",
			line: "< in cat -n > out",
			want: job.Pipeline{
				Stages:     stages([]string{"cat", "-n"}),
				InputPath:  "in",
				OutputPath: "out",
				Foreground: true,
				Text:       "< in cat -n > out",
			},
		},
		{
			name: "quotes keep operators as words",
			line: `sh -c 'kill -STOP $$' "a|b"`,
			want: job.Pipeline{
				Stages:     stages([]string{"sh", "-c", "kill -STOP $$", "a|b"}),
				Foreground: true,
				Text:       `sh -c 'kill -STOP $$' "a|b"`,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.line)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.line, diff)
			}
			require.NoError(t, got.Validate())
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want error
	}{
		{"blank", "   ", ErrEmpty},
		{"leading pipe", "| wc", ErrEmptyStage},
		{"trailing pipe", "ls |", ErrEmptyStage},
		{"double pipe", "ls || wc", ErrEmptyStage},
		{"only ampersand", "&", ErrEmptyStage},
		{"missing output target", "ls >", ErrMissingTarget},
		{"operator as target", "ls > | wc", ErrMissingTarget},
		{"input after pipe", "ls | wc < in", ErrMisplacedRedirect},
		{"output before pipe", "ls > out | wc", ErrMisplacedRedirect},
		{"ampersand mid line", "sleep 1 & echo", ErrMisplacedAmpersand},
		{"unterminated quote", "echo 'hi", ErrUnterminatedQuote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.line)
			require.ErrorIs(t, err, tt.want)
		})
	}
}
