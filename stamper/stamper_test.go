package stamper_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/gitops_pr/gitops/changeset"
	"github.com/byte4ever/gitops_pr/stamper"
)

// writeTemp creates a temporary file with content and
// returns its path.
func writeTemp(
	tb testing.TB,
	dir string,
	name string,
	content string,
) string {
	tb.Helper()

	pa := filepath.Join(dir, name)
	require.NoError(
		tb,
		os.WriteFile(pa, []byte(content), 0o600),
	)

	return pa
}

func TestStamp(t *testing.T) {
	t.Parallel()

	stamps := map[string]any{
		"BUILD_USER": "alice",
		"GIT_SHA":    "deadbeef",
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "substitutes variables",
			in:   "deployed by {{BUILD_USER}} at {{GIT_SHA}}",
			want: "deployed by alice at deadbeef",
		},
		{
			name: "tolerates spaces in tags",
			in:   "sha={{ GIT_SHA }}",
			want: "sha=deadbeef",
		},
		{
			name: "unknown variable preserved",
			in:   "{{BUILD_USER}} and {{UNKNOWN}}",
			want: "alice and {{UNKNOWN}}",
		},
		{
			name: "single braces untouched",
			in:   `{"user": "{BUILD_USER}"}`,
			want: `{"user": "{BUILD_USER}"}`,
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := stamper.Stamp(tt.in, stamps)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStampChanges(t *testing.T) {
	t.Parallel()

	set := changeset.NewSet(
		changeset.Put(
			"deploy/app.yaml",
			[]byte("image: app:{{GIT_SHA}}\n"),
			changeset.Regular,
		),
		changeset.Put(
			"static.txt", []byte("no tags"), changeset.Regular,
		),
		changeset.Put(
			"vendor/lib",
			[]byte("0123456789012345678901234567890123456789"),
			changeset.Submodule,
		),
		changeset.Delete("gone.yaml"),
	)

	got, err := stamper.StampChanges(
		set, map[string]any{"GIT_SHA": "deadbeef"},
	)
	require.NoError(t, err)

	assert.Equal(
		t,
		"image: app:deadbeef\n",
		string(got["deploy/app.yaml"].Content),
	)
	assert.Equal(t, set["static.txt"], got["static.txt"])
	assert.Equal(t, set["vendor/lib"], got["vendor/lib"])
	assert.True(t, got["gone.yaml"].Deleted)

	// The input set is left alone.
	assert.Equal(
		t,
		"image: app:{{GIT_SHA}}\n",
		string(set["deploy/app.yaml"].Content),
	)
}

func TestStampChanges_no_stamps(t *testing.T) {
	t.Parallel()

	set := changeset.NewSet(
		changeset.Put("a", []byte("{{X}}"), changeset.Regular),
	)

	got, err := stamper.StampChanges(set, nil)
	require.NoError(t, err)
	assert.Equal(t, set, got)
}

func TestLoadStamps_returns_map(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	sf := writeTemp(
		t, dir, "status.txt",
		"BUILD_USER alice\r\nMSG hello world from CI\n",
	)

	stamps, err := stamper.LoadStamps([]string{sf})

	require.NoError(t, err)
	assert.Equal(t, "alice", stamps["BUILD_USER"])
	assert.Equal(t, "hello world from CI", stamps["MSG"])
}

func TestLoadStamps_later_file_overrides_earlier(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	sf1 := writeTemp(t, dir, "s1.txt", "VER 1.0\nK1 v1\n")
	sf2 := writeTemp(t, dir, "s2.txt", "VER 2.0\n")

	stamps, err := stamper.LoadStamps([]string{sf1, sf2})

	require.NoError(t, err)
	assert.Equal(t, "2.0", stamps["VER"])
	assert.Equal(t, "v1", stamps["K1"])
}

func TestLoadStamps_skips_malformed_lines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	sf := writeTemp(
		t, dir, "status.txt",
		"GOOD value\nBADLINE\n\n value\nALSO_GOOD val2\n",
	)

	stamps, err := stamper.LoadStamps([]string{sf})

	require.NoError(t, err)
	assert.Len(t, stamps, 2)
	assert.Equal(t, "value", stamps["GOOD"])
	assert.Equal(t, "val2", stamps["ALSO_GOOD"])
}

func TestLoadStamps_missing_file(t *testing.T) {
	t.Parallel()

	_, err := stamper.LoadStamps(
		[]string{"/nonexistent/file.txt"},
	)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading stamps")
}

func FuzzStamp(f *testing.F) {
	f.Add("Hello {{name}}!", "name", "World")
	f.Add("{{a}}{{b}}", "a", "x")
	f.Add("no tags here", "key", "val")
	f.Add("{{", "k", "v")
	f.Add("}}", "k", "v")
	f.Add("{{key}}", "key", "")
	f.Add("{{a}} and {{b}}", "a", "{{nested}}")

	f.Fuzz(func(
		t *testing.T,
		format string,
		key string,
		val string,
	) {
		// We only verify it does not panic.
		_, _ = stamper.Stamp( //nolint:errcheck // fuzz: error irrelevant
			format,
			map[string]any{key: val},
		)
	})
}
