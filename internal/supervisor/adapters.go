package supervisor

import (
	"context"

	"telemetry-bridge/internal/model"
	"telemetry-bridge/internal/protocol/serial"
)

// SerialOpener adapts a serial.Opener to the Opener interface
func SerialOpener(opener *serial.Opener) Opener {
	return serialOpener{opener: opener}
}

type serialOpener struct {
	opener *serial.Opener
}

func (o serialOpener) Open(ctx context.Context, device model.DeviceIdentity, cfg model.LinkConfig) (Link, error) {
	link, err := o.opener.Open(ctx, device, cfg)
	if err != nil {
		return nil, err
	}
	return link, nil
}
