package supervisor

import (
	"os"
	"path/filepath"
	"runtime"
)

const macAppSupportDir = "Library/Application Support"

func userHomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if profile := os.Getenv("USERPROFILE"); profile != "" {
		return profile
	}
	return ""
}

// candidateDataDirs lists the conventional XDG data roots a terminal-
// launched engine would see.
func candidateDataDirs() []string {
	home := userHomeDir()
	if home == "" {
		return nil
	}
	dirs := []string{
		filepath.Join(home, ".local", "share"),
		filepath.Join(home, ".config"),
	}
	if runtime.GOOS == "darwin" {
		dirs = append(dirs, filepath.Join(home, macAppSupportDir))
	}
	return dirs
}

func candidateConfigDirs() []string {
	home := userHomeDir()
	if home == "" {
		return nil
	}
	dirs := []string{filepath.Join(home, ".config")}
	if runtime.GOOS == "darwin" {
		dirs = append(dirs, filepath.Join(home, macAppSupportDir))
	}
	return dirs
}

// maybeInferXDGHome probes candidate directories for a marker file and
// returns the first base that contains it, but only when the variable is
// not already set. A GUI-launched process inherits a sparse environment;
// this lets the engine find credentials a terminal launch would see.
func maybeInferXDGHome(varName string, candidates []string, relativeMarker string) (string, bool) {
	if _, set := os.LookupEnv(varName); set {
		return "", false
	}
	for _, base := range candidates {
		info, err := os.Stat(filepath.Join(base, relativeMarker))
		if err == nil && info.Mode().IsRegular() {
			return base, true
		}
	}
	return "", false
}

// inferredEngineEnv returns the XDG variables to inject into an engine
// (or hub) spawn, probing for the opencode auth and config markers.
func inferredEngineEnv() map[string]string {
	env := map[string]string{}
	if dir, ok := maybeInferXDGHome("XDG_DATA_HOME", candidateDataDirs(), filepath.Join("opencode", "auth.json")); ok {
		env["XDG_DATA_HOME"] = dir
	}
	configHome, ok := maybeInferXDGHome("XDG_CONFIG_HOME", candidateConfigDirs(), filepath.Join("opencode", "opencode.jsonc"))
	if !ok {
		configHome, ok = maybeInferXDGHome("XDG_CONFIG_HOME", candidateConfigDirs(), filepath.Join("opencode", "opencode.json"))
	}
	if ok {
		env["XDG_CONFIG_HOME"] = configHome
	}
	return env
}
