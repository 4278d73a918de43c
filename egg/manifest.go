package egg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ManifestFile is the name of the manifest found at the root of an application, plugin or
// framework directory.
const ManifestFile = "egg.toml"

// Manifest is the content of egg.toml.
//
//     framework = "egg"
//
//     [eggPlugin]
//     name = "session"
type Manifest struct {
	// Framework selects the framework that boots this application.
	Framework string `toml:"framework"`

	// EggPlugin is set when the directory is a plugin.
	EggPlugin *ManifestPlugin `toml:"eggPlugin"`

	// EggFramework is set when the directory is a framework.
	EggFramework *ManifestFramework `toml:"eggFramework"`
}

type ManifestPlugin struct {
	Name string `toml:"name"`
}

type ManifestFramework struct {
	Name string `toml:"name"`
}

// ReadManifest reads dir/egg.toml. The boolean result is false if there is no manifest, in which
// case the Manifest is empty and the error is nil.
func ReadManifest(dir string) (Manifest, bool, error) {
	var m Manifest
	path := filepath.Join(dir, ManifestFile)
	if _, err := toml.DecodeFile(path, &m); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Manifest{}, false, nil
		}
		return Manifest{}, false, fmt.Errorf("malformed %s: %w", path, err)
	}
	return m, true, nil
}
