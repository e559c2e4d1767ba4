package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

// promptConfirmer asks yes/no questions on a terminal.
type promptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func newPromptConfirmer(in io.Reader, out io.Writer) *promptConfirmer {
	return &promptConfirmer{in: bufio.NewReader(in), out: out}
}

func (p *promptConfirmer) ConfirmLargeUpload(ctx context.Context, name string, size int64) (bool, error) {
	return p.ask(ctx, fmt.Sprintf("\n⚠️  '%s' is %s. Large uploads can take a long time.\nUpload anyway?", name, humanize.IBytes(uint64(size))))
}

func (p *promptConfirmer) ConfirmOverwrite(ctx context.Context, path string) (bool, error) {
	return p.ask(ctx, fmt.Sprintf("\n⚠️  '%s' already exists.\nOverwrite it?", path))
}

func (p *promptConfirmer) Confirm(ctx context.Context, title, message string) (bool, error) {
	return p.ask(ctx, fmt.Sprintf("\n%s\n%s", title, message))
}

// ask prints question with a [y/N] suffix. Anything but y/yes is no, and
// end of input is no as well.
func (p *promptConfirmer) ask(ctx context.Context, question string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Fprintf(p.out, "%s [y/N]: ", question)

	input, err := p.in.ReadString('\n')
	if err != nil && input == "" {
		if err == io.EOF {
			fmt.Fprintln(p.out)
			return false, nil
		}
		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// readSecret reads one line without echo when in is a terminal. Otherwise it
// reads byte by byte so no input meant for later prompts is buffered away.
func readSecret(in io.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprintf(out, "%s: ", prompt)

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		return string(b), err
	}

	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := in.Read(buf)
		if n == 1 {
			if buf[0] == '\n' {
				break
			}
			sb.WriteByte(buf[0])
		}
		if err == io.EOF && sb.Len() > 0 {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return strings.TrimRight(sb.String(), "\r"), nil
}
