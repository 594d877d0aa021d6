package infra

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/pkg/errors"
)

// Desktop entry started by the session manager at login.
const autostartTemplate = `[Desktop Entry]
Type=Application
Name={{.Name}}
Comment=Covers locked applications until unlocked with a tag
Exec={{.Exec}}
Terminal=false
NoDisplay=true
X-GNOME-Autostart-enabled=true
`

type autostartEntry struct {
	Name string
	Exec string
}

// Autostart manages the XDG autostart entry that launches the daemon at login.
type Autostart struct {
	dir  string
	path string
}

// NewAutostart returns the manager for $XDG_CONFIG_HOME/autostart,
// falling back to ~/.config/autostart.
func NewAutostart() *Autostart {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" || os.Getenv("SUDO_USER") != "" {
		dir = filepath.Join(RealUserHome(), ".config")
	}
	return NewAutostartIn(filepath.Join(dir, "autostart"))
}

// NewAutostartIn returns a manager writing its entry into dir.
func NewAutostartIn(dir string) *Autostart {
	return &Autostart{
		dir:  dir,
		path: filepath.Join(dir, AppName+".desktop"),
	}
}

// content renders the entry running "<execPath> serve [--config <configPath>]".
func (a *Autostart) content(execPath, configPath string) ([]byte, error) {
	args := []string{execPath, "serve"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = quoteExecArg(arg)
	}

	tmpl, err := template.New("autostart").Parse(autostartTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse autostart template")
	}
	var buf bytes.Buffer
	entry := autostartEntry{Name: AppName, Exec: strings.Join(quoted, " ")}
	if err := tmpl.Execute(&buf, entry); err != nil {
		return nil, errors.Wrap(err, "failed to render autostart entry")
	}
	return buf.Bytes(), nil
}

// Install writes the entry, replacing any previous one.
func (a *Autostart) Install(execPath, configPath string) error {
	if execPath == "" {
		return errors.New("executable path is required")
	}
	if err := os.MkdirAll(a.dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create autostart directory")
	}
	content, err := a.content(execPath, configPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(a.path, content, 0644); err != nil {
		return errors.Wrap(err, "failed to write autostart entry")
	}
	return nil
}

// Uninstall removes the entry. A missing entry is not an error.
func (a *Autostart) Uninstall() error {
	if err := os.Remove(a.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove autostart entry")
	}
	return nil
}

// IsInstalled reports whether the entry exists.
func (a *Autostart) IsInstalled() bool {
	_, err := os.Stat(a.path)
	return err == nil
}

// NeedsUpdate reports whether an installed entry differs from what Install
// would write for the same arguments.
func (a *Autostart) NeedsUpdate(execPath, configPath string) bool {
	current, err := os.ReadFile(a.path)
	if err != nil {
		return false
	}
	expected, err := a.content(execPath, configPath)
	if err != nil {
		return true
	}
	return !bytes.Equal(current, expected)
}

// Path returns the entry location.
func (a *Autostart) Path() string {
	return a.path
}

// quoteExecArg quotes an Exec argument holding reserved characters.
func quoteExecArg(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\n\"'\\><~|&;$*?#()`") {
		return arg
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`", `$`, `\$`)
	return `"` + r.Replace(arg) + `"`
}
