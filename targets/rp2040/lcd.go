//go:build rp2040 || rp2350

package main

import (
	"machine"

	"tinygo.org/x/drivers/hd44780"
)

// LCD drives the 20x2 character display in 4-bit mode
type LCD struct {
	dev hd44780.Device
}

// NewLCD configures an HD44780 on data pins d4..d7 with enable and
// register-select lines. RW is tied low.
func NewLCD(data [4]machine.Pin, e, rs machine.Pin) (*LCD, error) {
	dev, err := hd44780.NewGPIO4Bit(data[:], e, rs, machine.NoPin)
	if err != nil {
		return nil, err
	}
	if err := dev.Configure(hd44780.Config{Width: 20, Height: 2}); err != nil {
		return nil, err
	}
	dev.ClearDisplay()
	return &LCD{dev: dev}, nil
}

// Print implements core.Display
func (l *LCD) Print(row, col uint8, text string) {
	l.dev.SetCursor(col, row)
	l.dev.Write([]byte(text))
	l.dev.Display()
}
