package gldevice

import (
	"context"
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
)

// pollTimeout bounds each ClientWaitSync call so ctx is checked regularly.
const pollTimeout = uint64(1_000_000) // 1ms in nanoseconds

type fence struct {
	sync uintptr
	done bool
}

func (f *fence) Wait(ctx context.Context) error {
	for !f.done {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch gl.ClientWaitSync(f.sync, gl.SYNC_FLUSH_COMMANDS_BIT, pollTimeout) {
		case gl.ALREADY_SIGNALED, gl.CONDITION_SATISFIED:
			f.release()
		case gl.WAIT_FAILED:
			f.release()
			return fmt.Errorf("fence wait failed: 0x%x", gl.GetError())
		}
	}
	return nil
}

func (f *fence) Signalled() bool {
	if f.done {
		return true
	}
	var status int32
	gl.GetSynciv(f.sync, gl.SYNC_STATUS, 1, nil, &status)
	if status == gl.SIGNALED {
		f.release()
	}
	return f.done
}

func (f *fence) release() {
	gl.DeleteSync(f.sync)
	f.done = true
}
