package proc

import (
	"os"
	"os/signal"
	"syscall"
)

// JobSignals are the signals that stop or interrupt a foreground job.
var JobSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGQUIT,
	syscall.SIGTSTP,
	syscall.SIGTTIN,
	syscall.SIGTTOU,
}

// HoldJobSignals keeps the shell from being stopped or killed by job control
// signals aimed at the terminal's foreground group.
//
// The signals are caught and dropped rather than ignored: an ignored signal
// stays ignored across exec and children would become immune to ^C and ^Z.
func HoldJobSignals() (release func()) {
	sigs := make(chan os.Signal, len(JobSignals))
	done := make(chan struct{})
	signal.Notify(sigs, JobSignals...)

	go func() {
		for {
			select {
			case <-sigs:
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
