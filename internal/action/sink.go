// Package action runs the terminal commands a Config's $(...) entries
// register, without ever blocking the caller's input pipeline on them.
package action

import (
	"log"
	"os/exec"
	"runtime"
)

// Sink triggers configured terminal-command actions by index. It mirrors
// the original ClientState::on_execute_action_message: the command is
// started in the background and its outcome only ever reaches a log line,
// never back-pressures the Stage that emitted the action key.
type Sink struct {
	commands []string
	logger   *log.Logger
}

// NewSink builds a Sink over the given command strings, indexed exactly
// as Config.Actions is (action key i runs commands[i]).
func NewSink(commands []string, logger *log.Logger) *Sink {
	return &Sink{commands: commands, logger: logger}
}

// Trigger runs the command registered at index in a new goroutine and
// reports whether index was valid. The command's eventual exit status is
// only logged, per the action-sink contract in spec §6.
func (s *Sink) Trigger(index int) bool {
	if index < 0 || index >= len(s.commands) {
		return false
	}
	cmd := s.commands[index]
	go s.run(index, cmd)
	return true
}

func (s *Sink) run(index int, command string) {
	c := shellCommand(command)
	if err := c.Run(); err != nil {
		s.logf("action %d (%q) failed: %v", index, command, err)
		return
	}
	s.logf("action %d (%q) ok", index, command)
}

func (s *Sink) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// shellCommand wraps command in "/bin/sh -c" ("cmd /C" on Windows) rather
// than running it as a bare argv, so pipes/redirection/expansion in the
// configured string behave as written.
func shellCommand(command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.Command("cmd", "/C", command)
	}
	return exec.Command("/bin/sh", "-c", command)
}
