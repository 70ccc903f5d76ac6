// Package workspace persists the shell's workspace registry: which
// project directories the user has opened, and which one is active.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StateVersion is the current registry file format.
const StateVersion = 3

const stateFileName = "workspaces.json"

// Type distinguishes a local directory from a remote attachment.
type Type string

const (
	TypeLocal  Type = "local"
	TypeRemote Type = "remote"
)

// RemoteKind names what a remote workspace points at.
type RemoteKind string

const (
	RemoteOpencode RemoteKind = "opencode"
	RemoteOpenwork RemoteKind = "openwork"
)

type Workspace struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Path        string     `json:"path"`
	Preset      string     `json:"preset"`
	Type        Type       `json:"workspaceType"`
	RemoteKind  RemoteKind `json:"remoteType,omitempty"`
	BaseURL     string     `json:"baseUrl,omitempty"`
	Directory   string     `json:"directory,omitempty"`
	DisplayName string     `json:"displayName,omitempty"`
}

type State struct {
	Version    int         `json:"version"`
	ActiveID   string      `json:"activeId"`
	Workspaces []Workspace `json:"workspaces"`
}

func defaultState() State {
	return State{Version: StateVersion, ActiveID: "starter"}
}

// Store reads and writes the registry file under the shell home.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(homeDir string) *Store {
	return &Store{path: filepath.Join(homeDir, stateFileName)}
}

// Path returns the registry file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the registry, applying defaults when the file is missing
// and migrating older versions in place.
func (s *Store) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (State, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return defaultState(), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read %s: %w", s.path, err)
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return State{}, fmt.Errorf("parse %s: %w", s.path, err)
	}
	migrate(&state)
	return state, nil
}

// migrate upgrades older registry versions: missing ids and types are
// filled in, the version is bumped.
func migrate(state *State) {
	for i := range state.Workspaces {
		ws := &state.Workspaces[i]
		if ws.ID == "" {
			ws.ID = uuid.NewString()
		}
		if ws.Type == "" {
			ws.Type = TypeLocal
		}
		if ws.Name == "" {
			ws.Name = filepath.Base(ws.Path)
		}
	}
	if state.ActiveID == "" {
		state.ActiveID = "starter"
	}
	state.Version = StateVersion
}

func (s *Store) saveLocked(state State) error {
	state.Version = StateVersion
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal workspace state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

// Add registers a local workspace: the directory is created, a project
// marker is written, and the new entry becomes active.
func (s *Store) Add(name, path, preset string) (Workspace, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Workspace{}, fmt.Errorf("workspace path is required")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return Workspace{}, fmt.Errorf("create workspace directory: %w", err)
	}
	if name = strings.TrimSpace(name); name == "" {
		name = filepath.Base(path)
	}
	if preset == "" {
		preset = "blank"
	}
	if err := writeProjectMarker(path, name, preset); err != nil {
		return Workspace{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadLocked()
	if err != nil {
		return Workspace{}, err
	}
	for _, existing := range state.Workspaces {
		if existing.Path == path {
			state.ActiveID = existing.ID
			return existing, s.saveLocked(state)
		}
	}

	ws := Workspace{
		ID:     uuid.NewString(),
		Name:   name,
		Path:   path,
		Preset: preset,
		Type:   TypeLocal,
	}
	state.Workspaces = append(state.Workspaces, ws)
	state.ActiveID = ws.ID
	return ws, s.saveLocked(state)
}

// SetActive switches the active workspace.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadLocked()
	if err != nil {
		return err
	}
	for _, ws := range state.Workspaces {
		if ws.ID == id {
			state.ActiveID = id
			return s.saveLocked(state)
		}
	}
	return fmt.Errorf("workspace %q not found", id)
}

// Remove deletes a registry entry. The directory on disk is untouched.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadLocked()
	if err != nil {
		return err
	}
	kept := state.Workspaces[:0]
	found := false
	for _, ws := range state.Workspaces {
		if ws.ID == id {
			found = true
			continue
		}
		kept = append(kept, ws)
	}
	if !found {
		return fmt.Errorf("workspace %q not found", id)
	}
	state.Workspaces = kept
	if state.ActiveID == id {
		state.ActiveID = "starter"
		if len(kept) > 0 {
			state.ActiveID = kept[0].ID
		}
	}
	return s.saveLocked(state)
}

// Rename updates a workspace's display name.
func (s *Store) Rename(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadLocked()
	if err != nil {
		return err
	}
	for i := range state.Workspaces {
		if state.Workspaces[i].ID == id {
			state.Workspaces[i].Name = name
			return s.saveLocked(state)
		}
	}
	return fmt.Errorf("workspace %q not found", id)
}

// Active returns the active workspace, if any.
func (s *Store) Active() (Workspace, bool, error) {
	state, err := s.Load()
	if err != nil {
		return Workspace{}, false, err
	}
	for _, ws := range state.Workspaces {
		if ws.ID == state.ActiveID {
			return ws, true, nil
		}
	}
	return Workspace{}, false, nil
}

// Sorted returns the workspaces ordered by name for stable UI rendering.
func Sorted(workspaces []Workspace) []Workspace {
	out := make([]Workspace, len(workspaces))
	copy(out, workspaces)
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// projectMarker is the per-workspace openwork.json file.
type projectMarker struct {
	Version         int              `json:"version"`
	Workspace       *markerWorkspace `json:"workspace"`
	AuthorizedRoots []string         `json:"authorizedRoots"`
}

type markerWorkspace struct {
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt"`
	Preset    string `json:"preset"`
}

func writeProjectMarker(path, name, preset string) error {
	markerPath := filepath.Join(path, "openwork.json")
	if _, err := os.Stat(markerPath); err == nil {
		return nil
	}
	marker := projectMarker{
		Version: 1,
		Workspace: &markerWorkspace{
			Name:      name,
			CreatedAt: time.Now().UnixMilli(),
			Preset:    preset,
		},
		AuthorizedRoots: []string{path},
	}
	raw, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal workspace marker: %w", err)
	}
	if err := os.WriteFile(markerPath, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", markerPath, err)
	}
	return nil
}
