// Package supervisor implements the Supervisor (spec §4.6): starting and
// terminating workers, enforcing name uniqueness, managing the stream-port
// pool, and restarting protected (restricted-type) workers when they exit.
// It also satisfies dispatch.Terminator, closing the loop the spec
// describes in §4.5's watcher ("triggers termination of the worker through
// the Supervisor").
/*
 * Copyright (c) 2024, argussight authors.
 */
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/walesch-yan/argussight/apc"
	"github.com/walesch-yan/argussight/cmn/cos"
	"github.com/walesch-yan/argussight/cmn/nlog"
	"github.com/walesch-yan/argussight/config"
	"github.com/walesch-yan/argussight/core"
	"github.com/walesch-yan/argussight/dispatch"
	"github.com/walesch-yan/argussight/registry"
	"github.com/walesch-yan/argussight/workers"
)

// terminateTimeout bounds how long Terminate waits for a killed worker's
// goroutine to actually exit before giving up and proceeding anyway; the
// spec names no such bound, but an unbounded wait would let one wedged
// worker hang the whole control plane.
const terminateTimeout = 5 * time.Second

// FrameBus is the narrow slice of bus.Client a Supervisor needs: one
// subscription per worker plus the downstream publish a streaming type
// uses. Defined here so tests can substitute a fake bus instead of a real
// Redis connection.
type FrameBus interface {
	Subscribe(ctx context.Context) (<-chan core.Frame, error)
	Publish(channel string, payload []byte) error
}

// Supervisor owns the Registry and the stream-port pool: the two
// single-owner resources of the control-plane process (spec §9 design
// note "Global/mutable state").
type Supervisor struct {
	reg        *registry.Registry
	ports      *PortPool
	disp       *dispatch.Dispatcher
	catalog    map[string]workers.TypeDescriptor
	configured []config.Process
	busClient  FrameBus
	metrics    workers.Metrics
	streamBase string

	mu sync.Mutex
}

// ActiveWorkers is the narrow interface metrics needs to report the fleet
// gauge without the supervisor package depending on the metrics package.
type ActiveWorkers interface {
	SetActiveWorkers(n int)
}

// New builds a Supervisor over catalog (the compiled-in worker-type
// descriptors), configured (the static processes: list from the workers
// configuration file), a fixed stream-port pool, and the shared bus
// client every worker subscribes through independently.
func New(catalog map[string]workers.TypeDescriptor, configured []config.Process, ports []int, busClient FrameBus, m workers.Metrics, streamBase string) *Supervisor {
	s := &Supervisor{
		reg:        registry.New(),
		ports:      NewPortPool(ports),
		catalog:    catalog,
		configured: configured,
		busClient:  busClient,
		metrics:    m,
		streamBase: streamBase,
	}
	var dm dispatch.Metrics
	if aw, ok := m.(dispatch.Metrics); ok {
		dm = aw
	}
	s.disp = dispatch.New(s, dm)
	return s
}

// Bootstrap starts every worker named in the static configuration (spec §6
// "processes:"), as an internal caller (DESIGN.md open question 2): this is
// the one caller-identity exemption besides the auto-restart path itself.
// A failure here is fatal to daemon startup (spec §6 CLI contract).
func (s *Supervisor) Bootstrap() error {
	for _, p := range s.configured {
		if err := s.Start(p.Name, p.Type, p.Args, true); err != nil {
			return errors.Wrapf(err, "bootstrap worker %q (type %q)", p.Name, p.Type)
		}
	}
	return nil
}

// Start implements spec §4.6's Start protocol.
func (s *Supervisor) Start(name, typ string, args []string, internal bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.reg.Lookup(name); err == nil {
		return cos.NewErrExists("worker " + name)
	}
	desc, ok := s.catalog[typ]
	if !ok {
		return cos.NewErrValidation("unknown worker type %q", typ)
	}
	if !desc.Accessible && !internal {
		return cos.NewErrValidation("worker type %q is restricted; cannot be started by an external caller", typ)
	}

	var (
		port    int
		hasPort bool
	)
	if desc.StreamCapable {
		p, err := s.ports.Alloc(name)
		if err != nil {
			return err
		}
		port, hasPort = p, true
	}
	release := func() {
		if hasPort {
			s.ports.Release(port)
		}
	}

	streamID := ""
	if desc.StreamCapable {
		streamID = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(context.Background())
	frameCh, err := s.busClient.Subscribe(ctx)
	if err != nil {
		cancel()
		release()
		return errors.Wrapf(err, "subscribe worker %q to frame bus", name)
	}

	internalLayer, exposedLayer := core.MergeLayers(desc.ParamLayers()...)
	params := core.NewParamSet(internalLayer, exposedLayer)

	deps := workers.Deps{StreamID: streamID, StreamPort: port, Publish: s.busClient.Publish}
	behavior, err := desc.New(params, args, deps)
	if err != nil {
		cancel()
		release()
		return errors.Wrapf(err, "construct worker %q (type %q)", name, typ)
	}

	cmdCh := make(chan core.Command)
	respCh := make(chan core.Result)
	pollTimeout := time.Duration(desc.CommandPollTimeout())
	rt := workers.NewRuntime(name, typ, desc.Format, pollTimeout, cmdCh, respCh, frameCh, params, behavior, s.metrics)

	done := make(chan struct{})
	go func() {
		defer close(done)
		rt.Run(ctx)
	}()

	h := &registry.Handle{
		Name: name, Type: typ, Restricted: !desc.Accessible,
		CmdCh: cmdCh, RespCh: respCh, Params: params,
		StreamID: streamID, StreamPort: port, HasPort: hasPort,
		Cancel: cancel, Done: done,
	}
	if err := s.reg.Insert(h); err != nil {
		cancel()
		<-done
		release()
		return err
	}
	s.reportActive()
	return nil
}

// Terminate implements spec §4.6's Terminate protocol for a single worker,
// and doubles as dispatch.Terminator: the Dispatcher's watcher calls this
// with internal=true when a manager declares a worker dead.
func (s *Supervisor) Terminate(name string, internal bool) error {
	s.mu.Lock()
	h, err := s.reg.Lookup(name)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if h.Restricted && !internal {
		s.mu.Unlock()
		return cos.NewErrValidation("worker type %q is restricted; cannot be terminated by an external caller", h.Type)
	}
	if _, err := s.reg.Remove(name); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	h.Cancel()
	select {
	case <-h.Done:
	case <-time.After(terminateTimeout):
		nlog.Warningf("supervisor: worker %q did not exit within %s of termination", name, terminateTimeout)
	}
	if h.HasPort {
		s.ports.Release(h.StreamPort)
	}
	s.reportActive()

	if h.Restricted {
		if cfg, ok := s.findConfigured(name); ok {
			if rerr := s.Start(cfg.Name, cfg.Type, cfg.Args, true); rerr != nil {
				nlog.Errorf("supervisor: protected-restart of %q failed: %v", name, rerr)
				return rerr
			}
			nlog.Infof("supervisor: protected-restarted %q", name)
		}
	}
	return nil
}

// TerminateAll terminates every name in names independently, accumulating
// per-name failures rather than aborting on the first one (spec §4.7
// "TerminateProcesses(names[])").
func (s *Supervisor) TerminateAll(names []string, internal bool) error {
	var errs cos.Errs
	for _, name := range names {
		if err := s.Terminate(name, internal); err != nil {
			errs.Add(err)
		}
	}
	return errs.JoinErr()
}

// ReconcileProtected is the active half of spec §8's protected-restart
// liveness invariant ("at any quiescent point after startup, n is present
// in the Registry"): Terminate already restarts a restricted worker it
// kills itself, but this catches the case where one has gone missing some
// other way (a panic that unwound past recover, an operator slipping past
// the restricted-type guard during a prior bootstrap). Intended to be
// registered with the process housekeeper (spec §9's hk.Reg convention);
// returns the number of workers it restarted, for logging by the caller.
func (s *Supervisor) ReconcileProtected() int {
	s.mu.Lock()
	var missing []config.Process
	for _, cfg := range s.configured {
		desc, ok := s.catalog[cfg.Type]
		if !ok || desc.Accessible {
			continue
		}
		if _, err := s.reg.Lookup(cfg.Name); err != nil {
			missing = append(missing, cfg)
		}
	}
	s.mu.Unlock()

	restarted := 0
	for _, cfg := range missing {
		if err := s.Start(cfg.Name, cfg.Type, cfg.Args, true); err != nil {
			nlog.Errorf("supervisor: liveness sweep failed to restart %q: %v", cfg.Name, err)
			continue
		}
		restarted++
		nlog.Warningf("supervisor: liveness sweep restarted missing protected worker %q", cfg.Name)
	}
	return restarted
}

// ManageProcess delegates a command to the named worker through the
// Dispatcher (spec §4.7 "ManageProcess... delegates to Dispatcher").
func (s *Supervisor) ManageProcess(name, command string, args []any, maxWait time.Duration) (any, error) {
	h, err := s.reg.Lookup(name)
	if err != nil {
		return nil, err
	}
	return s.disp.Submit(h, name, command, args, maxWait)
}

// ChangeSettings delegates to ManageProcess("settings", ...) per spec §4.7.
func (s *Supervisor) ChangeSettings(name string, settings map[string]any, maxWait time.Duration) (any, error) {
	return s.ManageProcess(name, "settings", []any{settings}, maxWait)
}

// GetProcesses builds spec §4.7's full fleet snapshot by reading the static
// catalog (available types) and the live Registry (running workers and
// their current exposed settings), with commands discovered from each
// type's static descriptor rather than runtime reflection (spec §9).
func (s *Supervisor) GetProcesses() apc.GetProcessesResp {
	resp := apc.GetProcessesResp{
		Running:        make(map[string]apc.RunningProcess),
		AvailableTypes: make(map[string]apc.AvailableType),
		Streams:        make(map[string]string),
	}
	for typ, desc := range s.catalog {
		resp.AvailableTypes[typ] = apc.AvailableType{InitArgs: desc.InitArgs}
	}
	for _, h := range s.reg.List() {
		desc := s.catalog[h.Type]
		commands := make([]string, 0, len(desc.Commands)+1)
		for _, c := range desc.Commands {
			commands = append(commands, c.Name)
		}
		commands = append(commands, "settings")
		resp.Running[h.Name] = apc.RunningProcess{
			Type:     h.Type,
			Commands: commands,
			Settings: h.Params.Exposed(),
		}
		if h.StreamID != "" {
			resp.Streams[h.Name] = s.streamBase + h.StreamID
		}
	}
	return resp
}

func (s *Supervisor) findConfigured(name string) (config.Process, bool) {
	for _, c := range s.configured {
		if c.Name == name {
			return c, true
		}
	}
	return config.Process{}, false
}

func (s *Supervisor) reportActive() {
	if aw, ok := s.metrics.(ActiveWorkers); ok {
		aw.SetActiveWorkers(s.reg.Len())
	}
}
