package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"gopkg.in/ini.v1"
)

// ErrProfileNotFound is returned when a named profile is not in profiles.ini.
var ErrProfileNotFound = errors.New("profile not found")

// Profile is a saved connection: which store, which collection, and as whom.
//
// INI format:
//
//	[archive]
//	backend = s3
//	bucket = transana-media
//	collection = /home/dw.sdsc/interviews
//	username = dw
//	resource = unix-sdsc
type Profile struct {
	Name       string `ini:"-"`
	Backend    string `ini:"backend"`
	Collection string `ini:"collection"`
	Username   string `ini:"username"`
	Resource   string `ini:"resource"`
	Bucket     string `ini:"bucket"`
	Container  string `ini:"container"`
	Endpoint   string `ini:"endpoint"`
	StoreRoot  string `ini:"store_root"`
}

// Profiles is the contents of profiles.ini.
type Profiles struct {
	// Default names the profile used when --profile is not given.
	Default string
	items   map[string]*Profile
}

// NewProfiles returns an empty profile set.
func NewProfiles() *Profiles {
	return &Profiles{items: make(map[string]*Profile)}
}

// LoadProfiles reads profiles.ini. A missing file yields an empty set.
func LoadProfiles(path string) (*Profiles, error) {
	ps := NewProfiles()
	if path == "" {
		path = GetDefaultProfilesPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return ps, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles.ini: %w", err)
	}

	ps.Default = iniFile.Section(ini.DefaultSection).Key("default").String()
	for _, section := range iniFile.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		p := &Profile{}
		if err := section.MapTo(p); err != nil {
			return nil, fmt.Errorf("failed to parse profile %q: %w", section.Name(), err)
		}
		p.Name = section.Name()
		ps.items[p.Name] = p
	}
	return ps, nil
}

// SaveProfiles writes profiles.ini atomically with owner-only permissions.
func SaveProfiles(ps *Profiles, path string) error {
	if path == "" {
		path = GetDefaultProfilesPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()
	if ps.Default != "" {
		iniFile.Section(ini.DefaultSection).Key("default").SetValue(ps.Default)
	}
	for _, name := range ps.Names() {
		section, err := iniFile.NewSection(name)
		if err != nil {
			return fmt.Errorf("failed to create section %q: %w", name, err)
		}
		if err := section.ReflectFrom(ps.items[name]); err != nil {
			return fmt.Errorf("failed to write profile %q: %w", name, err)
		}
	}

	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set profiles permissions: %w", err)
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save profiles: %w", err)
	}
	return nil
}

// Get returns the named profile. An empty name selects the default profile;
// with no default configured it returns (nil, nil).
func (ps *Profiles) Get(name string) (*Profile, error) {
	if name == "" {
		name = ps.Default
		if name == "" {
			return nil, nil
		}
	}
	p, ok := ps.items[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return p, nil
}

// Put adds or replaces a profile.
func (ps *Profiles) Put(p *Profile) error {
	name := strings.TrimSpace(p.Name)
	if name == "" || name == ini.DefaultSection {
		return fmt.Errorf("invalid profile name %q", p.Name)
	}
	if p.Backend != "" {
		switch strings.ToLower(p.Backend) {
		case BackendMemory, BackendLocalDir, BackendS3, BackendAzure:
		default:
			return fmt.Errorf("%w: %q", ErrUnknownBackend, p.Backend)
		}
	}
	p.Name = name
	ps.items[name] = p
	return nil
}

// Delete removes a profile, clearing Default if it pointed at it.
func (ps *Profiles) Delete(name string) error {
	if _, ok := ps.items[name]; !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	delete(ps.items, name)
	if ps.Default == name {
		ps.Default = ""
	}
	return nil
}

// Names returns profile names in sorted order.
func (ps *Profiles) Names() []string {
	names := make([]string, 0, len(ps.items))
	for name := range ps.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
