package kfd

import (
	"fmt"
	"os"
	"strconv"
)

// SysfsLine drives DATA and SENSE through the Linux sysfs GPIO interface
// (/sys/class/gpio). It is the hardware backend a host board (e.g. a
// WT32-SC01-Plus-class Linux single-board computer acting as a KFD) uses in
// place of the in-memory [Bus] the tests exercise.
//
// No third-party GPIO library in this codebase's dependency set models bare
// sysfs access; this stays on the standard library rather than adopt one
// (see DESIGN.md).
type SysfsLine struct {
	dataPin, sensePin int
	dataExported bool
	senseExported bool
}

// NewSysfsLine exports dataPin and sensePin via sysfs and returns a Line
// driving them. Both pins are exported as outputs; DATA is immediately
// released to Idle and SENSE to disconnected.
func NewSysfsLine(dataPin, sensePin int) (*SysfsLine, error) {
	l := &SysfsLine{dataPin: dataPin, sensePin: sensePin}
	if err := exportPin(dataPin); err != nil {
		return nil, fmt.Errorf("export data pin %d: %w", dataPin, err)
	}
	l.dataExported = true
	if err := exportPin(sensePin); err != nil {
		return nil, fmt.Errorf("export sense pin %d: %w", sensePin, err)
	}
	l.senseExported = true

	l.ReleaseIdle()
	l.SenseDisconnect()
	return l, nil
}

// Close unexports both pins.
func (l *SysfsLine) Close() {
	if l.dataExported {
		_ = unexportPin(l.dataPin)
	}
	if l.senseExported {
		_ = unexportPin(l.sensePin)
	}
}

func (l *SysfsLine) DriveBusy() {
	_ = setDirection(l.dataPin, "out")
	_ = setValue(l.dataPin, 0)
}

func (l *SysfsLine) ReleaseIdle() {
	// Tri-state by switching to input; the external pull-up raises the line.
	_ = setDirection(l.dataPin, "in")
}

func (l *SysfsLine) Sample() LineState {
	v, err := getValue(l.dataPin)
	if err != nil || v != 0 {
		return Idle
	}
	return Busy
}

func (l *SysfsLine) SenseConnect() {
	_ = setDirection(l.sensePin, "out")
	_ = setValue(l.sensePin, 0)
}

func (l *SysfsLine) SenseDisconnect() {
	_ = setDirection(l.sensePin, "out")
	_ = setValue(l.sensePin, 1)
}

func (l *SysfsLine) SenseIsConnected() bool {
	v, err := getValue(l.sensePin)
	return err == nil && v == 0
}

func (l *SysfsLine) DelayMicroseconds(us uint32) { delayMicroseconds(us) }

const sysfsGPIOBase = "/sys/class/gpio"

func exportPin(pin int) error {
	if _, err := os.Stat(fmt.Sprintf("%s/gpio%d", sysfsGPIOBase, pin)); err == nil {
		return nil // already exported
	}
	return os.WriteFile(sysfsGPIOBase+"/export", []byte(strconv.Itoa(pin)), 0644)
}

func unexportPin(pin int) error {
	return os.WriteFile(sysfsGPIOBase+"/unexport", []byte(strconv.Itoa(pin)), 0644)
}

func setDirection(pin int, dir string) error {
	path := fmt.Sprintf("%s/gpio%d/direction", sysfsGPIOBase, pin)
	return os.WriteFile(path, []byte(dir), 0644)
}

func setValue(pin int, v int) error {
	path := fmt.Sprintf("%s/gpio%d/value", sysfsGPIOBase, pin)
	return os.WriteFile(path, []byte(strconv.Itoa(v)), 0644)
}

func getValue(pin int) (int, error) {
	path := fmt.Sprintf("%s/gpio%d/value", sysfsGPIOBase, pin)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := string(data)
	if len(s) > 0 && (s[len(s)-1] == '\n') {
		s = s[:len(s)-1]
	}
	return strconv.Atoi(s)
}
