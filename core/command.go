package core

import (
	"errors"
	"sync"
)

// ArgKind describes the argument a command takes on the console
type ArgKind uint8

const (
	ArgNone   ArgKind = iota
	ArgNumber         // decimal number, float allowed
	ArgChoice         // single digit selecting one of Choices
)

// CommandSpec describes one host command: its menu key, its name for the
// host tools, and how its argument is prompted for.
type CommandSpec struct {
	Kind    CommandKind
	Key     byte
	Name    string
	Label   string
	Prompt  string
	Arg     ArgKind
	Choices []string
}

// CommandRegistry indexes command specs by key, kind and name
type CommandRegistry struct {
	mu     sync.RWMutex
	byKey  map[byte]*CommandSpec
	byKind map[CommandKind]*CommandSpec
	byName map[string]*CommandSpec
	order  []*CommandSpec
	menu   string
}

var defaultRegistry = newDefaultRegistry()

// NewCommandRegistry creates an empty registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		byKey:  make(map[byte]*CommandSpec),
		byKind: make(map[CommandKind]*CommandSpec),
		byName: make(map[string]*CommandSpec),
	}
}

// Register adds a command. Key, kind and name must all be unused.
func (r *CommandRegistry) Register(spec CommandSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[spec.Key]; exists {
		return errors.New("duplicate command key: " + string(spec.Key))
	}
	if _, exists := r.byKind[spec.Kind]; exists {
		return errors.New("duplicate command kind: " + itoa(int(spec.Kind)))
	}
	if _, exists := r.byName[spec.Name]; exists {
		return errors.New("duplicate command name: " + spec.Name)
	}

	s := spec
	r.byKey[s.Key] = &s
	r.byKind[s.Kind] = &s
	r.byName[s.Name] = &s
	r.order = append(r.order, &s)

	r.rebuildMenu()
	return nil
}

// Lookup finds a command by its menu key
func (r *CommandRegistry) Lookup(key byte) (*CommandSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byKey[key]
	return s, ok
}

// ByKind finds a command by kind
func (r *CommandRegistry) ByKind(kind CommandKind) (*CommandSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byKind[kind]
	return s, ok
}

// ByName finds a command by its host name
func (r *CommandRegistry) ByName(name string) (*CommandSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

// Commands returns the specs in registration order
func (r *CommandRegistry) Commands() []CommandSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CommandSpec, len(r.order))
	for i, s := range r.order {
		out[i] = *s
	}
	return out
}

// Count returns the number of registered commands
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Menu returns the console options list
func (r *CommandRegistry) Menu() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.menu
}

// rebuildMenu must be called with lock held
func (r *CommandRegistry) rebuildMenu() {
	menu := "\n\n\n"
	for _, s := range r.order {
		menu += "\n " + string(s.Key) + ") " + s.Label
	}
	r.menu = menu + "\nEnter Choice:"
}

// DefaultCommands returns the shared registry of device commands
func DefaultCommands() *CommandRegistry {
	return defaultRegistry
}

func newDefaultRegistry() *CommandRegistry {
	r := NewCommandRegistry()
	for _, s := range []CommandSpec{
		{Kind: CmdSetFrameRate, Key: 'a', Name: "fps", Label: "set FPS",
			Prompt: "\n\nEnter FPS float: ", Arg: ArgNumber},
		{Kind: CmdSetZSteps, Key: 'b', Name: "zsteps", Label: "set z-steps",
			Prompt: "\n\nEnter Z-Steps: ", Arg: ArgNumber},
		{Kind: CmdSetTimedDuration, Key: 'c', Name: "duration", Label: "time to capture",
			Prompt: "\n\nEnter Time(secs) float: ", Arg: ArgNumber},
		{Kind: CmdSetVerticalPixels, Key: 'd', Name: "rows", Label: "vert dim",
			Prompt: "\n\nEnter Vertical Pixels: ", Arg: ArgNumber},
		{Kind: CmdSetReadoutMode, Key: 'e', Name: "readout", Label: "capture mode",
			Prompt: "\n\nSet Capture Mode:", Arg: ArgChoice,
			Choices: []string{"Normal", "Slow"}},
		{Kind: CmdSetRunMode, Key: 'f', Name: "mode", Label: "run mode",
			Prompt: "\n\nSet Mode:", Arg: ArgChoice,
			Choices: []string{"Free Run", "Z-mode", "Timed"}},
		{Kind: CmdStart, Key: 'g', Name: "start", Label: "start"},
		{Kind: CmdStop, Key: 'h', Name: "stop", Label: "stop"},
		{Kind: CmdToggleBlanking, Key: 'i', Name: "blank", Label: "blanking"},
		{Kind: CmdSetSimMode, Key: 'j', Name: "sim", Label: "SIM Beams",
			Prompt: "\n\nSet SIM Mode:", Arg: ArgChoice,
			Choices: []string{"Three beam", "Two beam", "Z only", "Single Angle"}},
		{Kind: CmdQueryStatus, Key: 'k', Name: "status", Label: "Show Config"},
		{Kind: CmdSetExposure, Key: 'l', Name: "exposure", Label: "Set exposure time",
			Prompt: "\n\nEnter Exposure float: ", Arg: ArgNumber},
		{Kind: CmdSetLaserMode, Key: 'm', Name: "laser", Label: "LASERS",
			Prompt: "\n\n Laser(s) to use:", Arg: ArgChoice,
			Choices: []string{"488nm", "561nm", "Both alternating"}},
	} {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}
