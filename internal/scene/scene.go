package scene

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"pixelworld.dev/internal/worldcfg"
)

type Config struct {
	ID                string
	TickRateHz        int
	Width             float64
	Height            float64
	PlayerSpeed       float64
	InteractionRadius float64
}

// Act kinds accepted by the scene loop.
const (
	ActInteract     = "interact"
	ActDismiss      = "dismiss"
	ActOpenJournal  = "open_journal"
	ActCloseJournal = "close_journal"
)

// Act is a discrete interaction request from the client.
type Act struct {
	Kind string
}

// Command is the one-way push from the customization UI into the scene. The
// scene applies it on its own goroutine; there is no bidirectional binding.
type Command struct {
	SlotID       string
	BuildingType worldcfg.BuildingType
}

// Frame is one tick's observable state. Zones is populated only on ticks
// where a customization command changed the registry.
type Frame struct {
	Tick          uint64
	PlayerX       float64
	PlayerY       float64
	ActiveZoneID  string
	ActionBarOpen bool
	JournalRepo   string
	Pulse         float64
	Zones         []Zone
}

// Scene is a single-goroutine interactive simulation of one user's world.
// All mutable state is owned by the Run goroutine; everything outside talks
// to it through channels.
type Scene struct {
	cfg Config
	reg *Registry

	actor   Actor
	ctrl    Controller
	tracker Tracker
	session Session

	held Input

	tick atomic.Uint64

	input    chan Input
	acts     chan Act
	commands chan Command
	out      chan<- Frame
	stop     chan struct{}
}

func New(cfg Config, reg *Registry, out chan<- Frame) (*Scene, error) {
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("tick rate must be positive")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid world size %gx%g", cfg.Width, cfg.Height)
	}
	if reg == nil {
		return nil, fmt.Errorf("nil registry")
	}
	s := &Scene{
		cfg: cfg,
		reg: reg,
		actor: Actor{
			X: cfg.Width * 0.5,
			Y: cfg.Height * 0.6,
		},
		ctrl: Controller{
			Speed:  cfg.PlayerSpeed,
			WorldW: cfg.Width,
			WorldH: cfg.Height,
		},
		tracker:  Tracker{Radius: cfg.InteractionRadius},
		input:    make(chan Input, 8),
		acts:     make(chan Act, 8),
		commands: make(chan Command, 8),
		out:      out,
		stop:     make(chan struct{}),
	}
	return s, nil
}

func (s *Scene) Input() chan<- Input      { return s.input }
func (s *Scene) Acts() chan<- Act         { return s.acts }
func (s *Scene) Commands() chan<- Command { return s.commands }

func (s *Scene) CurrentTick() uint64 { return s.tick.Load() }

// Player returns the actor spawn position. Only valid before Run starts or
// from tests driving StepOnce.
func (s *Scene) Player() (x, y float64) { return s.actor.X, s.actor.Y }

// SnapshotZones copies the registry. Only valid before Run starts or from the
// loop goroutine; concurrent readers get frames instead.
func (s *Scene) SnapshotZones() []Zone {
	out := make([]Zone, 0, len(s.reg.Zones()))
	for _, z := range s.reg.Zones() {
		out = append(out, *z)
	}
	return out
}

func (s *Scene) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.cfg.TickRateHz)
	dt := 1.0 / float64(s.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingActs []Act
	var pendingCmds []Command

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case in := <-s.input:
			s.held = in
		case a := <-s.acts:
			pendingActs = append(pendingActs, a)
		case c := <-s.commands:
			pendingCmds = append(pendingCmds, c)
		case <-ticker.C:
			frame := s.step(dt, pendingActs, pendingCmds)
			pendingActs = pendingActs[:0]
			pendingCmds = pendingCmds[:0]
			if s.out != nil {
				select {
				case s.out <- frame:
				default:
					// Drop the frame if the client is slow; the next tick
					// supersedes it anyway.
				}
			}
		}
	}
}

func (s *Scene) Stop() { close(s.stop) }

// StepOnce advances the scene by a single tick with the same ordering as the
// running loop. Intended for deterministic tests.
func (s *Scene) StepOnce(in Input, acts []Act, cmds []Command) Frame {
	s.held = in
	return s.step(1.0/float64(s.cfg.TickRateHz), acts, cmds)
}

func (s *Scene) step(dt float64, acts []Act, cmds []Command) Frame {
	zonesChanged := false
	for _, c := range cmds {
		if s.reg.SetBuildingType(c.SlotID, c.BuildingType) {
			zonesChanged = true
		}
	}

	s.ctrl.Step(&s.actor, s.held, dt)

	if tr, changed := s.tracker.Update(s.actor.X, s.actor.Y, s.reg); changed {
		s.session.Apply(tr)
	}

	for _, a := range acts {
		switch a.Kind {
		case ActInteract:
			s.session.Interact()
			if s.session.State() == Idle {
				s.tracker.Suppress()
			}
		case ActDismiss:
			s.session.Dismiss()
			s.tracker.Suppress()
		case ActOpenJournal:
			s.session.OpenJournal()
		case ActCloseJournal:
			s.session.CloseJournal()
		}
	}

	tick := s.tick.Add(1)

	frame := Frame{
		Tick:          tick,
		PlayerX:       s.actor.X,
		PlayerY:       s.actor.Y,
		ActionBarOpen: s.session.ActionBarOpen(),
		JournalRepo:   s.session.JournalRepo(),
		Pulse:         pulseAt(tick, s.cfg.TickRateHz),
	}
	if z := s.session.ActiveZone(); z != nil {
		frame.ActiveZoneID = z.ID
	}
	if zonesChanged {
		frame.Zones = s.SnapshotZones()
	}
	return frame
}

// pulseAt drives the active-zone glow: a full sine cycle per second, 0..1.
func pulseAt(tick uint64, hz int) float64 {
	phase := float64(tick%uint64(hz)) / float64(hz)
	return 0.5 + 0.5*math.Sin(2*math.Pi*phase)
}
