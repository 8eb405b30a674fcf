// Package settings persists per-device preferences keyed by device path
//
// Each record holds the display name, an enabled flag, a document-camera flag
// and the preferred physical connector. The capture graph never reads the
// store itself: callers look up the connector and pass it into a build.
package settings

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

// ErrUnknownDevice is returned by setters for a path without a record
var ErrUnknownDevice = errors.New("settings: unknown device")

// DefaultConnector is assigned to newly discovered devices
const DefaultConnector = media.ConnectorSerialDigital

// Record is the persisted preference set of one device
type Record struct {
	Path           string `yaml:"path"`
	Name           string `yaml:"name"`
	Enabled        bool   `yaml:"enabled"`
	DocumentCamera bool   `yaml:"document_camera"`
	// Connector is the connector type name, "" when no routing is wanted
	Connector string `yaml:"connector,omitempty"`
}

// ConnectorType parses Connector. Unknown names mean "do not route".
func (r Record) ConnectorType() media.ConnectorType {
	ct, _ := media.ParseConnectorType(r.Connector)
	return ct
}

type document struct {
	Devices []Record `yaml:"devices"`
}

// Store is a file-backed record set. Safe for concurrent use.
type Store struct {
	path string
	log  zerolog.Logger

	mu      sync.RWMutex
	records map[string]Record
}

// Open loads the store at path. A missing file is an empty store.
func Open(path string, log zerolog.Logger) (*Store, error) {
	s := &Store{path: path, log: log, records: make(map[string]Record)}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file
func (s *Store) Path() string { return s.path }

// Load re-reads the backing file, replacing in-memory records
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.records = make(map[string]Record)
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "settings: read")
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errors.Wrapf(err, "settings: parse %s", s.path)
	}

	records := make(map[string]Record, len(doc.Devices))
	for _, r := range doc.Devices {
		if r.Path == "" {
			continue
		}
		records[r.Path] = r
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
	return nil
}

// Save writes every record atomically
func (s *Store) Save() error {
	s.mu.RLock()
	doc := document{Devices: s.sortedLocked()}
	s.mu.RUnlock()
	return s.write(doc)
}

func (s *Store) write(doc document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "settings: encode")
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "settings: create directory")
		}
	}

	pending, err := renameio.NewPendingFile(s.path)
	if err != nil {
		return errors.Wrap(err, "settings: create pending file")
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			s.log.Debug().Err(err).Msg("settings: cleanup pending file")
		}
	}()

	if _, err := pending.Write(data); err != nil {
		return errors.Wrap(err, "settings: write")
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return errors.Wrap(err, "settings: replace")
	}
	return nil
}

// Get returns the record of a device path
func (s *Store) Get(path string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[path]
	return r, ok
}

// Records returns every record ordered by path
func (s *Store) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked()
}

func (s *Store) sortedLocked() []Record {
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Reconcile aligns the records with the devices currently plugged in
//
// Records of unplugged devices are dropped, new devices get a default record
// (disabled, not a document camera, DefaultConnector). The file is saved only
// when something changed.
func (s *Store) Reconcile(devices []media.Device) (changed bool, err error) {
	present := make(map[string]media.Device, len(devices))
	for _, d := range devices {
		present[d.Path] = d
	}

	s.mu.Lock()
	for path := range s.records {
		if _, ok := present[path]; !ok {
			delete(s.records, path)
			changed = true
			s.log.Info().Str("device_path", path).Msg("settings: device removed")
		}
	}
	for path, d := range present {
		if _, ok := s.records[path]; ok {
			continue
		}
		s.records[path] = Record{
			Path:      path,
			Name:      d.Name,
			Connector: DefaultConnector.String(),
		}
		changed = true
		s.log.Info().Str("device_path", path).Str("name", d.Name).Msg("settings: device added")
	}
	s.mu.Unlock()

	if !changed {
		return false, nil
	}
	return true, s.Save()
}

// SetEnabled updates the enabled flag and saves
func (s *Store) SetEnabled(path string, enabled bool) error {
	return s.modify(path, func(r *Record) { r.Enabled = enabled })
}

// SetDocumentCamera updates the document-camera flag and saves
func (s *Store) SetDocumentCamera(path string, doc bool) error {
	return s.modify(path, func(r *Record) { r.DocumentCamera = doc })
}

// SetConnector updates the preferred connector and saves.
// media.ConnectorUnspecified clears it.
func (s *Store) SetConnector(path string, ct media.ConnectorType) error {
	return s.modify(path, func(r *Record) { r.Connector = ct.String() })
}

func (s *Store) modify(path string, fn func(*Record)) error {
	s.mu.Lock()
	r, ok := s.records[path]
	if !ok {
		s.mu.Unlock()
		return errors.Wrapf(ErrUnknownDevice, "%q", path)
	}
	fn(&r)
	s.records[path] = r
	s.mu.Unlock()
	return s.Save()
}

// Watch reloads the store whenever the backing file changes on disk and calls
// onChange after each successful reload. Blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "settings: fsnotify.NewWatcher")
	}
	defer func() {
		_ = watcher.Close()
	}()

	// Watch the directory: atomic replaces swap the inode under the file.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "settings: watch directory %s", dir)
	}
	target := filepath.Base(s.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("settings: watcher channel closed")
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := s.Load(); err != nil {
				s.log.Warn().Err(err).Msg("settings: reload failed, keeping previous records")
				continue
			}
			s.log.Debug().Str("path", s.path).Msg("settings: reloaded")
			if onChange != nil {
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("settings: watcher error channel closed")
			}
			s.log.Warn().Err(err).Msg("settings: fsnotify watcher error")
		}
	}
}

// ImportLegacy parses the older line format
//
//	<path>;<name>;<enabled>;<document camera>;<connector>
//
// Booleans accept "True"/"False" in any case. An unrecognized connector
// becomes "" (no routing). Malformed lines are errors.
func ImportLegacy(r io.Reader) ([]Record, error) {
	var out []Record
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		parts := strings.Split(text, ";")
		if len(parts) < 5 {
			return nil, errors.Errorf("settings: legacy line %d: want 5 fields, got %d", line, len(parts))
		}
		enabled, err := strconv.ParseBool(strings.ToLower(parts[2]))
		if err != nil {
			return nil, errors.Wrapf(err, "settings: legacy line %d: enabled", line)
		}
		doc, err := strconv.ParseBool(strings.ToLower(parts[3]))
		if err != nil {
			return nil, errors.Wrapf(err, "settings: legacy line %d: document camera", line)
		}
		rec := Record{Path: parts[0], Name: parts[1], Enabled: enabled, DocumentCamera: doc}
		if ct, ok := media.ParseConnectorType(parts[4]); ok {
			rec.Connector = ct.String()
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "settings: read legacy file")
	}
	return out, nil
}

// Merge adds or replaces records and saves
func (s *Store) Merge(records []Record) error {
	s.mu.Lock()
	for _, r := range records {
		if r.Path == "" {
			continue
		}
		s.records[r.Path] = r
	}
	s.mu.Unlock()
	return s.Save()
}
