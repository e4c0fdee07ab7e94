package changeset

import (
	"fmt"
	"strings"
)

// FileMode identifies the kind of a tree entry.
type FileMode int

// Supported modes. The zero value is Regular.
const (
	Regular FileMode = iota
	Executable
	Symlink
	Submodule
	Dir
)

var modeNames = [...]string{
	Regular:    "regular",
	Executable: "executable",
	Symlink:    "symlink",
	Submodule:  "submodule",
	Dir:        "dir",
}

var modeOctals = [...]string{
	Regular:    "100644",
	Executable: "100755",
	Symlink:    "120000",
	Submodule:  "160000",
	Dir:        "040000",
}

// String returns the lowercase mode name.
func (m FileMode) String() string {
	if !m.valid() {
		return fmt.Sprintf("FileMode(%d)", int(m))
	}

	return modeNames[m]
}

// Octal returns the git octal representation of the
// mode (e.g. "100644").
func (m FileMode) Octal() string {
	if !m.valid() {
		return ""
	}

	return modeOctals[m]
}

// IsFile reports whether the mode denotes blob content
// (regular, executable or symlink).
func (m FileMode) IsFile() bool {
	return m == Regular || m == Executable || m == Symlink
}

func (m FileMode) valid() bool {
	return m >= Regular && m <= Dir
}

// ParseFileMode accepts either a mode name or its git
// octal form. An empty string parses as Regular. Git
// also records "40000" for trees, which is accepted.
func ParseFileMode(s string) (FileMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	switch s {
	case "":
		return Regular, nil
	case "40000":
		return Dir, nil
	}

	for i := range modeNames {
		if s == modeNames[i] || s == modeOctals[i] {
			return FileMode(i), nil
		}
	}

	return Regular, fmt.Errorf("unknown file mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m FileMode) MarshalText() ([]byte, error) {
	if !m.valid() {
		return nil, fmt.Errorf("invalid file mode %d", int(m))
	}

	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *FileMode) UnmarshalText(text []byte) error {
	parsed, err := ParseFileMode(string(text))
	if err != nil {
		return err
	}

	*m = parsed

	return nil
}
