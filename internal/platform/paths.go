// Package platform resolves where sift keeps its config, database, session, and mail outbox.
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Paths lists the files one sift installation reads and writes.
type Paths struct {
	ConfigPath  string
	DataDir     string
	DBPath      string
	SessionPath string
	OutboxDir   string
}

// Options selects the app directory name.
type Options struct {
	AppName string
	DevMode bool
}

// Layout holds the base directories paths are resolved under.
// Blank ConfigHome and DataHome fall back to ~/.config and ~/.local/share.
type Layout struct {
	Home       string
	ConfigHome string
	DataHome   string
}

// DefaultPathsWithOptions resolves paths from the user's home and XDG variables.
func DefaultPathsWithOptions(opts Options) (Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, fmt.Errorf("user home dir: %w", err)
	}
	layout := Layout{
		Home:       home,
		ConfigHome: os.Getenv("XDG_CONFIG_HOME"),
		DataHome:   os.Getenv("XDG_DATA_HOME"),
	}
	return layout.Paths(appDirName(opts))
}

// Paths places the config file and data files for app under the layout.
func (l Layout) Paths(app string) (Paths, error) {
	app = strings.TrimSpace(app)
	if app == "" {
		return Paths{}, errors.New("empty app name")
	}
	configHome := strings.TrimSpace(l.ConfigHome)
	dataHome := strings.TrimSpace(l.DataHome)
	if home := strings.TrimSpace(l.Home); home != "" {
		if configHome == "" {
			configHome = filepath.Join(home, ".config")
		}
		if dataHome == "" {
			dataHome = filepath.Join(home, ".local", "share")
		}
	}
	if configHome == "" || dataHome == "" {
		return Paths{}, errors.New("no home or XDG base dirs")
	}

	dataDir := filepath.Join(dataHome, app)
	return Paths{
		ConfigPath:  filepath.Join(configHome, app, "config.toml"),
		DataDir:     dataDir,
		DBPath:      filepath.Join(dataDir, app+".db"),
		SessionPath: filepath.Join(dataDir, "session.json"),
		OutboxDir:   filepath.Join(dataDir, "outbox"),
	}, nil
}

// appDirName is the directory name for opts, suffixed in dev mode.
func appDirName(opts Options) string {
	name := strings.TrimSpace(opts.AppName)
	if name == "" {
		name = "sift"
	}
	if opts.DevMode {
		name += "-dev"
	}
	return name
}
