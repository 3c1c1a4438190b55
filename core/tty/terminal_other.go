//go:build !linux

package tty

// Terminal is unsupported on this platform, Open always reports that there
// is no controlling terminal and the shell runs without job control.
type Terminal struct{}

func Open() (*Terminal, error) {
	return nil, &TerminalError{Kind: NoControllingTerminal}
}

func (t *Terminal) Fd() int {
	return -1
}

func (t *Terminal) CurrentForeground() (int, error) {
	return 0, &TerminalError{Kind: NoControllingTerminal}
}

func (t *Terminal) GrantForeground(pgid int) error {
	return &TerminalError{Kind: NoControllingTerminal}
}

func (t *Terminal) RestoreForeground(pgid int) error {
	return &TerminalError{Kind: NoControllingTerminal}
}

func (t *Terminal) Close() error {
	return nil
}
