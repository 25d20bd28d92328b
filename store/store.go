// Package store keeps clip presets, master effect presets and saved
// projects in a sqlite database.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/fraendk-lang/elastic-pulse-studio/audio/features"
	"github.com/fraendk-lang/elastic-pulse-studio/automation"
	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
)

// ErrNotFound is returned when no row has the requested id.
var ErrNotFound = errors.New("not found")

// BundleVersion is written into exported preset bundles.
const BundleVersion = "1.0"

const schema = `
CREATE TABLE IF NOT EXISTS clip_presets (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	data TEXT NOT NULL,
	created INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS master_presets (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	data TEXT NOT NULL,
	created INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	data TEXT NOT NULL,
	modified INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_projects_modified ON projects(modified);
`

// ClipSettings is the part of a clip a preset carries. Placement on the
// timeline and the shader are left alone when applied.
type ClipSettings struct {
	Params        timeline.Params             `json:"params"`
	Automation    map[string]automation.Track `json:"automation"`
	LFOs          []automation.Oscillator     `json:"lfos"`
	Blend         timeline.BlendMode          `json:"blendMode"`
	AudioReactive float64                     `json:"audioReactive"`
	AudioTie      features.Band               `json:"audioTie"`
	Opacity       float64                     `json:"opacity"`
	FadeIn        float64                     `json:"fadeIn"`
	FadeOut       float64                     `json:"fadeOut"`
}

// SettingsOf copies the preset relevant settings of c.
func SettingsOf(c *timeline.Clip) ClipSettings {
	cp := c.Clone()
	return ClipSettings{
		Params:        cp.Params,
		Automation:    cp.Automation,
		LFOs:          cp.LFOs,
		Blend:         cp.Blend,
		AudioReactive: cp.AudioReactive,
		AudioTie:      cp.AudioTie,
		Opacity:       cp.Opacity,
		FadeIn:        cp.FadeIn,
		FadeOut:       cp.FadeOut,
	}
}

// Apply copies the settings onto c.
func (s *ClipSettings) Apply(c *timeline.Clip) {
	src := timeline.Clip{Automation: s.Automation, LFOs: s.LFOs}.Clone()
	c.Params = s.Params
	c.Automation = src.Automation
	if c.Automation == nil {
		c.Automation = map[string]automation.Track{}
	}
	c.LFOs = src.LFOs
	c.Blend = s.Blend
	c.AudioReactive = s.AudioReactive
	c.AudioTie = s.AudioTie
	c.Opacity = s.Opacity
	c.FadeIn = s.FadeIn
	c.FadeOut = s.FadeOut
	c.Sanitize()
}

type ClipPreset struct {
	ID   string       `json:"id"`
	Name string       `json:"name"`
	Clip ClipSettings `json:"clip"`
}

type MasterPreset struct {
	ID   string            `json:"id"`
	Name string            `json:"name"`
	FX   timeline.MasterFX `json:"fx"`
}

// ProjectInfo describes a saved project without decoding it.
type ProjectInfo struct {
	ID       string
	Name     string
	Modified time.Time
}

// Bundle is the portable form of the preset library.
type Bundle struct {
	ClipPresets   []ClipPreset   `json:"clipPresets"`
	MasterPresets []MasterPreset `json:"masterPresets"`
	Version       string         `json:"version"`
}

// Library is a sqlite backed preset and project store.
type Library struct {
	db *sql.DB
}

// Open opens or creates the library at path.
func Open(path string) (*Library, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating library directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening library: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return &Library{db: db}, nil
}

func (l *Library) Close() error {
	return l.db.Close()
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("preset name is empty")
	}
	return name, nil
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func insert(db execer, table, id, name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = db.Exec(
		"INSERT OR REPLACE INTO "+table+" (id, name, data, created) VALUES (?, ?, ?, ?)",
		id, name, string(data), time.Now().UnixNano())
	return err
}

func remove(db execer, table, id string) error {
	res, err := db.Exec("DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return nil
}

// SaveClipPreset stores the settings of c under name.
func (l *Library) SaveClipPreset(name string, c *timeline.Clip) (ClipPreset, error) {
	name, err := cleanName(name)
	if err != nil {
		return ClipPreset{}, err
	}
	p := ClipPreset{ID: uuid.New().String(), Name: name, Clip: SettingsOf(c)}
	if err := insert(l.db, "clip_presets", p.ID, p.Name, &p.Clip); err != nil {
		return ClipPreset{}, fmt.Errorf("saving clip preset: %w", err)
	}
	return p, nil
}

// ClipPresets lists clip presets in the order they were saved.
func (l *Library) ClipPresets() ([]ClipPreset, error) {
	rows, err := l.db.Query("SELECT id, name, data FROM clip_presets ORDER BY created, rowid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClipPreset
	for rows.Next() {
		var (
			p    ClipPreset
			data string
		)
		if err := rows.Scan(&p.ID, &p.Name, &data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &p.Clip); err != nil {
			return nil, fmt.Errorf("clip preset %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ClipPreset returns one clip preset.
func (l *Library) ClipPreset(id string) (ClipPreset, error) {
	p := ClipPreset{ID: id}
	var data string
	err := l.db.QueryRow("SELECT name, data FROM clip_presets WHERE id = ?", id).Scan(&p.Name, &data)
	if err == sql.ErrNoRows {
		return p, fmt.Errorf("clip preset %s: %w", id, ErrNotFound)
	} else if err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(data), &p.Clip); err != nil {
		return p, fmt.Errorf("clip preset %s: %w", id, err)
	}
	return p, nil
}

func (l *Library) DeleteClipPreset(id string) error {
	return remove(l.db, "clip_presets", id)
}

// SaveMasterPreset stores fx under name.
func (l *Library) SaveMasterPreset(name string, fx timeline.MasterFX) (MasterPreset, error) {
	name, err := cleanName(name)
	if err != nil {
		return MasterPreset{}, err
	}
	p := MasterPreset{ID: uuid.New().String(), Name: name, FX: fx}
	if err := insert(l.db, "master_presets", p.ID, p.Name, &p.FX); err != nil {
		return MasterPreset{}, fmt.Errorf("saving master preset: %w", err)
	}
	return p, nil
}

// MasterPresets lists master presets in the order they were saved.
func (l *Library) MasterPresets() ([]MasterPreset, error) {
	rows, err := l.db.Query("SELECT id, name, data FROM master_presets ORDER BY created, rowid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MasterPreset
	for rows.Next() {
		var (
			p    MasterPreset
			data string
		)
		if err := rows.Scan(&p.ID, &p.Name, &data); err != nil {
			return nil, err
		}
		p.FX = timeline.DefaultMaster()
		if err := json.Unmarshal([]byte(data), &p.FX); err != nil {
			return nil, fmt.Errorf("master preset %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MasterPreset returns one master preset.
func (l *Library) MasterPreset(id string) (MasterPreset, error) {
	p := MasterPreset{ID: id, FX: timeline.DefaultMaster()}
	var data string
	err := l.db.QueryRow("SELECT name, data FROM master_presets WHERE id = ?", id).Scan(&p.Name, &data)
	if err == sql.ErrNoRows {
		return p, fmt.Errorf("master preset %s: %w", id, ErrNotFound)
	} else if err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(data), &p.FX); err != nil {
		return p, fmt.Errorf("master preset %s: %w", id, err)
	}
	return p, nil
}

func (l *Library) DeleteMasterPreset(id string) error {
	return remove(l.db, "master_presets", id)
}

// SaveProject stores p. An empty id creates a new entry; the id is returned.
func (l *Library) SaveProject(id, name string, p *timeline.Project) (string, error) {
	if id == "" {
		id = uuid.New().String()
	}
	data, err := timeline.MarshalProject(p.Clone())
	if err != nil {
		return "", err
	}
	_, err = l.db.Exec(
		"INSERT OR REPLACE INTO projects (id, name, data, modified) VALUES (?, ?, ?, ?)",
		id, strings.TrimSpace(name), string(data), time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("saving project: %w", err)
	}
	return id, nil
}

// LoadProject decodes the project stored under id.
func (l *Library) LoadProject(id string) (*timeline.Project, error) {
	var data string
	err := l.db.QueryRow("SELECT data FROM projects WHERE id = ?", id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	} else if err != nil {
		return nil, err
	}
	return timeline.UnmarshalProject([]byte(data))
}

// Projects lists saved projects, most recently modified first.
func (l *Library) Projects() ([]ProjectInfo, error) {
	rows, err := l.db.Query("SELECT id, name, modified FROM projects ORDER BY modified DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProjectInfo
	for rows.Next() {
		var (
			info ProjectInfo
			mod  int64
		)
		if err := rows.Scan(&info.ID, &info.Name, &mod); err != nil {
			return nil, err
		}
		info.Modified = time.Unix(0, mod)
		out = append(out, info)
	}
	return out, rows.Err()
}

func (l *Library) DeleteProject(id string) error {
	return remove(l.db, "projects", id)
}

// Export writes all presets as a JSON bundle.
func (l *Library) Export(w io.Writer) error {
	clips, err := l.ClipPresets()
	if err != nil {
		return err
	}
	masters, err := l.MasterPresets()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(&Bundle{ClipPresets: clips, MasterPresets: masters, Version: BundleVersion})
}

// Import reads a bundle written by Export. Each preset list present in the
// bundle replaces the stored list; an absent list is kept.
func (l *Library) Import(r io.Reader) error {
	var raw struct {
		ClipPresets   *[]ClipPreset   `json:"clipPresets"`
		MasterPresets *[]MasterPreset `json:"masterPresets"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return fmt.Errorf("decoding preset bundle: %w", err)
	}

	tx, err := l.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if raw.ClipPresets != nil {
		if _, err := tx.Exec("DELETE FROM clip_presets"); err != nil {
			return err
		}
		for _, p := range *raw.ClipPresets {
			if p.ID == "" {
				p.ID = uuid.New().String()
			}
			if err := insert(tx, "clip_presets", p.ID, p.Name, &p.Clip); err != nil {
				return fmt.Errorf("importing clip preset %q: %w", p.Name, err)
			}
		}
	}
	if raw.MasterPresets != nil {
		if _, err := tx.Exec("DELETE FROM master_presets"); err != nil {
			return err
		}
		for _, p := range *raw.MasterPresets {
			if p.ID == "" {
				p.ID = uuid.New().String()
			}
			if err := insert(tx, "master_presets", p.ID, p.Name, &p.FX); err != nil {
				return fmt.Errorf("importing master preset %q: %w", p.Name, err)
			}
		}
	}
	return tx.Commit()
}
