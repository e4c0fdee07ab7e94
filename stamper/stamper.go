package stamper

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/valyala/fasttemplate"

	"github.com/byte4ever/gitops_pr/gitops/changeset"
)

const (
	startTag = "{{"
	endTag   = "}}"
)

// LoadStamps reads workspace status files and merges them
// into a single map. Each line is "KEY VALUE" with the
// first space as delimiter. Lines without a space are
// silently skipped; later files override earlier ones.
func LoadStamps(
	infoFiles []string,
) (map[string]any, error) {
	const errCtx = "loading stamps"

	stamps := make(map[string]any)

	for _, sf := range infoFiles {
		content, err := os.ReadFile(sf) //nolint:gosec // paths from CLI flags
		if err != nil {
			return nil, fmt.Errorf(
				"%s: %w", errCtx, err,
			)
		}

		for _, line := range strings.Split(
			string(content), "\n",
		) {
			parts := strings.SplitN(
				strings.TrimRight(line, "\r"), " ", 2,
			)
			if len(parts) == 2 && parts[0] != "" {
				stamps[parts[0]] = parts[1]
			}
		}
	}

	return stamps, nil
}

// Stamp substitutes {{VAR}} placeholders in text.
// Unknown variables are preserved as-is.
func Stamp(text string, stamps map[string]any) (string, error) {
	return fasttemplate.ExecuteFuncStringWithErr(
		text, startTag, endTag,
		func(w io.Writer, tag string) (int, error) {
			v, ok := stamps[strings.TrimSpace(tag)]
			if !ok {
				return w.Write(
					[]byte(startTag + tag + endTag),
				)
			}

			return fmt.Fprint(w, v)
		},
	)
}

// StampChanges returns a copy of set whose file contents
// are stamped. Deletions and submodule pointers are
// left untouched.
func StampChanges(
	set changeset.Set,
	stamps map[string]any,
) (changeset.Set, error) {
	const errCtx = "stamping changes"

	if len(stamps) == 0 {
		return set, nil
	}

	var (
		stamped int
		errs    []error
	)

	out := set.Map(func(c changeset.Change) changeset.Change {
		if !c.Mode.IsFile() {
			return c
		}

		text := string(c.Content)
		if !strings.Contains(text, startTag) {
			return c
		}

		next, err := Stamp(text, stamps)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Path, err))

			return c
		}

		if next != text {
			stamped++
			c.Content = []byte(next)
		}

		return c
	})

	slog.Debug(
		"stamped changes",
		"stamped", stamped,
		"changes", len(set),
	)

	if len(errs) > 0 {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, errors.Join(errs...),
		)
	}

	return out, nil
}
