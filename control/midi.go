package control

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Kind of a controller message.
type Kind int

// Message kinds
const (
	CC Kind = iota
	NoteOn
	NoteOff
	Clock
	Start
	Stop
)

var kindNames = [...]string{"cc", "note", "noteOff", "clock", "start", "stop"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	for i, n := range kindNames {
		if n == string(text) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown message kind %q", text)
}

// Message is a decoded MIDI channel or realtime message.
type Message struct {
	Kind    Kind
	Channel int
	// Number is the controller for CC and the note for note messages.
	Number int
	// Value is the controller value or the note velocity, 0..127.
	Value int
	At    time.Duration
}

// ParseMessage decodes the three byte form of the messages Mapper uses.
func ParseMessage(data []byte, at time.Duration) (Message, bool) {
	if len(data) == 0 {
		return Message{}, false
	}
	status := data[0]
	switch status {
	case 0xf8:
		return Message{Kind: Clock, At: at}, true
	case 0xfa:
		return Message{Kind: Start, At: at}, true
	case 0xfc:
		return Message{Kind: Stop, At: at}, true
	}
	if len(data) < 3 {
		return Message{}, false
	}
	m := Message{Channel: int(status & 0x0f), Number: int(data[1]), Value: int(data[2]), At: at}
	switch status & 0xf0 {
	case 0x90:
		m.Kind = NoteOn
		if m.Value == 0 {
			m.Kind = NoteOff
		}
	case 0x80:
		m.Kind = NoteOff
	case 0xb0:
		m.Kind = CC
	default:
		return Message{}, false
	}
	return m, true
}

// Mapping binds a controller or note to a parameter path. The 0..127 input
// is scaled onto [Min, Max], reversed if Inverted.
type Mapping struct {
	Param    string  `json:"parameter" yaml:"parameter"`
	Kind     Kind    `json:"type" yaml:"type"`
	Number   int     `json:"number" yaml:"number"`
	Min      float64 `json:"min" yaml:"min"`
	Max      float64 `json:"max" yaml:"max"`
	Inverted bool    `json:"inverted" yaml:"inverted"`
}

// Scale maps a raw 0..127 value onto the mapping range.
func (m *Mapping) Scale(raw int) float64 {
	v := math.Max(0, math.Min(127, float64(raw))) / 127
	if m.Inverted {
		v = 1 - v
	}
	return m.Min + (m.Max-m.Min)*v
}

func (m *Mapping) matches(msg *Message) bool {
	return m.Kind == msg.Kind && m.Number == msg.Number
}

// Clock pulses per quarter note, and the tempo range accepted from them.
const (
	clocksPerBeat = 24
	clockWindow   = 24
	clockMinimum  = 12
	minClockBPM   = 60
	maxClockBPM   = 200
)

// ApplyFunc receives mapped parameter values. Registry.Apply fits.
type ApplyFunc func(path string, value float64) error

// Mapper turns controller messages into parameter updates, learns new
// mappings, and derives a tempo from MIDI clock.
type Mapper struct {
	apply ApplyFunc

	mu        sync.Mutex
	mappings  []Mapping
	learning  *Mapping
	lastClock time.Duration
	intervals []time.Duration
	bpm       float64
}

func NewMapper(apply ApplyFunc) *Mapper {
	return &Mapper{apply: apply}
}

// Learn makes the next message of kind k bind to param with a 0..127 range.
func (m *Mapper) Learn(param string, k Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.learning = &Mapping{Param: param, Kind: k, Max: 127}
}

func (m *Mapper) CancelLearn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.learning = nil
}

// Set adds or replaces the mapping for its parameter.
func (m *Mapper) Set(mp Mapping) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(mp)
}

func (m *Mapper) set(mp Mapping) {
	for i := range m.mappings {
		if m.mappings[i].Param == mp.Param {
			m.mappings[i] = mp
			return
		}
	}
	m.mappings = append(m.mappings, mp)
}

// Remove deletes the mapping for param.
func (m *Mapper) Remove(param string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.mappings {
		if m.mappings[i].Param == param {
			m.mappings = append(m.mappings[:i], m.mappings[i+1:]...)
			return
		}
	}
}

// Mappings returns a copy of the current mappings.
func (m *Mapper) Mappings() []Mapping {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Mapping(nil), m.mappings...)
}

// BPM is the tempo derived from MIDI clock, or 0.
func (m *Mapper) BPM() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bpm
}

// Handle processes one message.
func (m *Mapper) Handle(msg Message) {
	m.mu.Lock()
	switch msg.Kind {
	case Clock:
		bpm, changed := m.clock(msg.At)
		m.mu.Unlock()
		if changed {
			m.send("masterBPM", bpm)
		}
		return
	case Start:
		m.intervals = m.intervals[:0]
		m.lastClock = msg.At
		m.mu.Unlock()
		return
	}

	if m.learning != nil {
		if m.learning.Kind == msg.Kind {
			mp := *m.learning
			mp.Number = msg.Number
			m.set(mp)
			m.learning = nil
			glog.Infof("learned %v %d for %s", msg.Kind, msg.Number, mp.Param)
		}
		m.mu.Unlock()
		return
	}

	var hits []Mapping
	for _, mp := range m.mappings {
		if mp.matches(&msg) {
			hits = append(hits, mp)
		}
	}
	m.mu.Unlock()

	for _, mp := range hits {
		m.send(mp.Param, mp.Scale(msg.Value))
	}
}

func (m *Mapper) send(path string, value float64) {
	if err := m.apply(path, value); err != nil {
		glog.Warningf("controller update %s: %v", path, err)
	}
}

// clock records a pulse and reports a new tempo when one is available.
func (m *Mapper) clock(at time.Duration) (float64, bool) {
	defer func() { m.lastClock = at }()
	if m.lastClock <= 0 {
		return 0, false
	}
	m.intervals = append(m.intervals, at-m.lastClock)
	if len(m.intervals) > clockWindow {
		m.intervals = m.intervals[1:]
	}
	if len(m.intervals) < clockMinimum {
		return 0, false
	}
	var sum time.Duration
	for _, d := range m.intervals {
		sum += d
	}
	avg := sum.Seconds() / float64(len(m.intervals))
	bpm := math.Round(60 / (avg * clocksPerBeat))
	if bpm < minClockBPM || bpm > maxClockBPM || bpm == m.bpm {
		return 0, false
	}
	m.bpm = bpm
	return bpm, true
}
