package script

import (
	"context"
	"time"

	"github.com/argus-labs/sledgehammer/pkg/hammer/module"
)

// scripted adapts a Module declared by a script to module.Module.
type scripted struct {
	def  Module
	host *Host
}

var _ module.Module = (*scripted)(nil)

func (s *scripted) ID() string {
	if s.def.ID != "" {
		return s.def.ID
	}
	return s.def.Name
}

func (s *scripted) Name() string    { return s.def.Name }
func (s *scripted) Version() string { return s.def.Version }

func (s *scripted) Load(_ context.Context, host module.Host) error {
	s.host = &Host{host: host}
	if s.def.Load == nil {
		return nil
	}
	return s.def.Load(s.host)
}

func (s *scripted) Start(context.Context) error {
	if s.def.Start == nil {
		return nil
	}
	return s.def.Start()
}

func (s *scripted) Update(_ context.Context, delta time.Duration) error {
	if s.def.Update == nil {
		return nil
	}
	return s.def.Update(delta)
}

func (s *scripted) Stop(context.Context) error {
	if s.def.Stop == nil {
		return nil
	}
	return s.def.Stop()
}

func (s *scripted) Unload(context.Context) error {
	defer func() { s.host = nil }()
	if s.def.Unload == nil {
		return nil
	}
	return s.def.Unload()
}
