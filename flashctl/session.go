package flashctl

import (
	"log"
)

// A session is one unlocked period of the controller. close must run on
// every path, which callers ensure with defer.
type session struct {
	d      *Driver
	closed bool
}

// open waits until the controller is idle and unlocks it.
func (d *Driver) open() (*session, error) {
	if err := d.waitNotBusy(); err != nil {
		return nil, err
	}

	return d.unlock(), nil
}

func (d *Driver) unlock() *session {
	d.bus.WriteReg(FCTL3, FWPW)
	return &session{d: d}
}

// enable selects the operation.
func (s *session) enable(bits uint16) {
	s.d.bus.WriteReg(FCTL1, FWPW|bits)
}

func (s *session) emergencyExit() {
	s.d.bus.WriteReg(FCTL3, FWPW|EMEX)
}

// await waits for the triggered operation to finish. A controller that stays
// busy is stopped with an emergency exit.
func (s *session) await() error {
	if err := s.d.waitNotBusy(); err != nil {
		s.emergencyExit()
		return err
	}

	return nil
}

// close clears the operation bits and relocks the controller. It reports an
// access violation flagged while the session was open.
func (s *session) close() error {
	if s.closed {
		return nil
	}

	s.closed = true

	status := s.d.bus.ReadReg(FCTL3)
	s.d.bus.WriteReg(FCTL1, FWPW)
	s.d.bus.WriteReg(FCTL3, FWPW|LOCK)

	if s.d.bus.ReadReg(FCTL3)&LOCK == 0 {
		log.Panicf("%s: %v", s.d.name, ErrUnlockInvariant)
	}

	if status&ACCVIFG != 0 {
		return ErrAccessViolation
	}

	return nil
}

// closeInto closes the session and keeps the first error in err.
func (s *session) closeInto(err *error) {
	if cerr := s.close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
