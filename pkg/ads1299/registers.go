package ads1299

// Command opcodes.
const (
	CmdWakeup = 0x02
	CmdStop   = 0x0A
	CmdStart  = 0x08
	CmdReset  = 0x06
	CmdSDATAC = 0x11 // stop read data continuous, enters configuration mode
	CmdRDATAC = 0x10 // read data continuous
	CmdRDATA  = 0x12
)

// WriteRegisterPrefix is OR'ed with the register address to form a WREG opcode.
const WriteRegisterPrefix = 0x40

// Register addresses.
const (
	RegConfig1   = 0x01
	RegConfig2   = 0x02
	RegConfig3   = 0x03
	RegLOFF      = 0x04
	RegCh1Set    = 0x05
	RegCh2Set    = 0x06
	RegCh3Set    = 0x07
	RegCh4Set    = 0x08
	RegCh5Set    = 0x09
	RegCh6Set    = 0x0A
	RegCh7Set    = 0x0B
	RegCh8Set    = 0x0C
	RegBiasSensP = 0x0D
	RegBiasSensN = 0x0E
	RegLOFFSensP = 0x0F
	RegLOFFSensN = 0x10
	RegLOFFFlip  = 0x11
	RegLOFFStatP = 0x12
	RegLOFFStatN = 0x13
	RegGPIO      = 0x14
	RegMisc1     = 0x15
	RegMisc2     = 0x16
	RegConfig4   = 0x17
)

// Register values written during initialization.
const (
	ValGPIO    = 0x80
	ValConfig1 = 0x96 // HR mode, 250 SPS
	ValConfig2 = 0xD4 // internal test signal source
	ValConfig3 = 0xFF // internal reference buffer, bias enabled
)

// Frame geometry.
const (
	FrameSize       = 27
	StatusSize      = 3
	BytesPerChannel = 3
	NumChannels     = 8
)

// StatusMarker is the status word a streaming device prefixes every frame with.
var StatusMarker = [StatusSize]byte{0xC0, 0x00, 0x08}

// auxRegisters are zeroed after the front-end configuration registers.
var auxRegisters = []byte{
	RegLOFF,
	RegBiasSensP,
	RegBiasSensN,
	RegLOFFSensP,
	RegLOFFSensN,
	RegLOFFFlip,
	RegMisc1,
	RegConfig4,
}

// channelRegisters are the eight per-channel configuration registers.
var channelRegisters = []byte{
	RegCh1Set, RegCh2Set, RegCh3Set, RegCh4Set,
	RegCh5Set, RegCh6Set, RegCh7Set, RegCh8Set,
}
