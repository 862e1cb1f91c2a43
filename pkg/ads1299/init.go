package ads1299

import (
	"fmt"
	"time"
)

// DefaultResetDelay is how long the device is given to settle after RESET.
const DefaultResetDelay = 100 * time.Millisecond

// InitOptions tunes the initialization sequence.
type InitOptions struct {
	// ResetDelay is waited after RESET. Negative disables the wait, zero means DefaultResetDelay.
	ResetDelay time.Duration
}

type step struct {
	name  string
	write func(Transport) error
}

func command(name string, op byte) step {
	return step{name: name, write: func(t Transport) error { return SendCommand(t, op) }}
}

func register(name string, reg, val byte) step {
	return step{name: name, write: func(t Transport) error { return WriteRegister(t, reg, val) }}
}

// sequence returns the ordered configuration steps (without the reset delay).
func sequence() []step {
	steps := []step{
		command("wakeup", CmdWakeup),
		command("stop", CmdStop),
		command("reset", CmdReset),
		command("sdatac", CmdSDATAC),
		register("gpio", RegGPIO, ValGPIO),
		register("config1", RegConfig1, ValConfig1),
		register("config2", RegConfig2, ValConfig2),
		register("config3", RegConfig3, ValConfig3),
	}
	for _, reg := range auxRegisters {
		steps = append(steps, register(fmt.Sprintf("aux 0x%02X", reg), reg, 0x00))
	}
	for i, reg := range channelRegisters {
		steps = append(steps, register(fmt.Sprintf("ch%dset", i+1), reg, 0x00))
	}
	return append(steps,
		command("rdatac", CmdRDATAC),
		command("start", CmdStart),
	)
}

// Init configures a device and leaves it streaming in continuous-read mode.
// The first failing write aborts the sequence with ErrConfiguration.
func Init(t Transport, opts InitOptions) error {
	delay := opts.ResetDelay
	if delay == 0 {
		delay = DefaultResetDelay
	}

	for _, s := range sequence() {
		if err := s.write(t); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrConfiguration, s.name, err)
		}
		if s.name == "reset" && delay > 0 {
			time.Sleep(delay)
		}
	}
	return nil
}
