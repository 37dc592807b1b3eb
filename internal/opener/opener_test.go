package opener

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	name string
	args []string
}

func newRecording(goos string) (*Opener, *recorder) {
	rec := &recorder{}
	return &Opener{goos: goos, start: func(name string, args ...string) error {
		rec.name, rec.args = name, args
		return nil
	}}, rec
}

func TestCommandPerPlatform(t *testing.T) {
	tests := []struct {
		goos string
		name string
		args []string
	}{
		{"darwin", "open", []string{"/tmp/a.pdf"}},
		{"linux", "xdg-open", []string{"/tmp/a.pdf"}},
		{"windows", "rundll32", []string{"url.dll,FileProtocolHandler", "/tmp/a.pdf"}},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			o, _ := newRecording(tt.goos)
			name, args, err := o.Command("/tmp/a.pdf")
			require.NoError(t, err)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.args, args)
		})
	}

	o, _ := newRecording("plan9")
	_, _, err := o.Command("/tmp/a.pdf")
	assert.Error(t, err)
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o644))

	o, rec := newRecording("linux")
	require.NoError(t, o.OpenFile(path))
	assert.Equal(t, "xdg-open", rec.name)
	assert.Equal(t, []string{path}, rec.args)

	assert.Error(t, o.OpenFile(filepath.Join(dir, "missing.pdf")))
	assert.Error(t, o.OpenFile(dir))
}

func TestOpenURL(t *testing.T) {
	o, rec := newRecording("darwin")
	require.NoError(t, o.OpenURL("http://127.0.0.1:8501"))
	assert.Equal(t, []string{"http://127.0.0.1:8501"}, rec.args)
}
