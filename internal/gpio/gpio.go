// Package gpio provides GPIO line access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementations allow testing without hardware.
package gpio

// Input reads the raw level (0 or 1) of an input line.
type Input interface {
	Value() (int, error)
}

// Output drives the raw level (0 or 1) of an output line.
type Output interface {
	SetValue(value int) error
}

// Default pin definitions (BCM numbering)
const (
	DefaultPinTrigger = 17 // Ultrasonic trigger
	DefaultPinEcho    = 27 // Ultrasonic echo
	DefaultPinBuzzer  = 23
	DefaultPinLED     = 18
	DefaultPinGas     = 22 // MQ-2 digital output, active low
	DefaultPinIR      = 21 // IR obstacle sensor, active low
)

// Raw line levels.
const (
	Low  = 0
	High = 1
)
