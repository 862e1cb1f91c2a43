package bus

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Init loads the host drivers (spidev, gpio chips). Call once before OpenSPI/OpenLine.
func Init() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("bus: host init: %w", err)
	}
	return nil
}

// SPIPort is an opened SPI port with an established connection.
type SPIPort struct {
	port spi.PortCloser
	conn spi.Conn
}

// OpenSPI opens the named port (e.g. "SPI0.0" or "/dev/spidev0.0") with 8-bit words.
func OpenSPI(name string, hz int64, mode int) (*SPIPort, error) {
	p, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("bus: open %s: %w", name, err)
	}

	c, err := p.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode(mode), 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("bus: connect %s: %w", name, err)
	}

	return &SPIPort{port: p, conn: c}, nil
}

// Tx implements Conn.
func (p *SPIPort) Tx(w, r []byte) error {
	if len(r) == 0 {
		r = make([]byte, len(w))
	}
	return p.conn.Tx(w, r)
}

// Close closes the port.
func (p *SPIPort) Close() error {
	return p.port.Close()
}

// OpenLine returns the named GPIO (e.g. "GPIO19") configured as a high output.
func OpenLine(name string) (gpio.PinIO, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("bus: gpio %s not found", name)
	}
	if err := pin.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("bus: gpio %s: %w", name, err)
	}
	return pin, nil
}
