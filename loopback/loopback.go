// Package loopback provides #LOOP, a data mode command that echoes everything it receives.
// It is used to test transparent connections and the escape sequence of an AT instance.
package loopback

import (
	"go.uber.org/zap"

	"github.com/ftl/m2mb-atp/atp"
)

// Command is the name of the loopback command.
const Command = "#LOOP"

const connect = "CONNECT"

// Register the loopback command with the given ATP.
func Register(a *atp.ATP, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	return a.Register(Command, &handler{log: logger})
}

type handler struct {
	log *zap.Logger
}

func (h *handler) Handle(instance *atp.Instance, event atp.Event) {
	switch event.Kind {
	case atp.CallbackInd:
		h.connect(instance, event.Request)
		return
	}

	switch event.Delegation {
	case atp.DataInd:
		if err := instance.WriteData(event.Request, event.Data); err != nil {
			h.log.Debug("cannot loop back data", zap.Int("instance", instance.ID()), zap.Error(err))
		}
	case atp.EscapeInd:
		h.log.Debug("loopback left", zap.Int("instance", instance.ID()))
		instance.Release(event.Request, atp.ResultOK)
	case atp.CloseConInd:
		h.log.Debug("loopback connection closed", zap.Int("instance", instance.ID()))
	}
}

func (h *handler) connect(instance *atp.Instance, request *atp.Request) {
	switch request.Type {
	case atp.Test:
		instance.Release(request, atp.ResultOK)
		return
	case atp.Exec:
	default:
		instance.Release(request, atp.ResultError)
		return
	}

	instance.MsgOut(connect)
	if err := instance.ChangeInputMode(request, atp.InputModeOnline); err != nil {
		h.log.Error("cannot enter online mode", zap.Error(err))
		instance.Release(request, atp.ResultError)
		return
	}
	h.log.Debug("loopback started", zap.Int("instance", instance.ID()))
}
