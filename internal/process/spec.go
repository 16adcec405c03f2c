package process

import (
	"os/exec"
	"strings"
	"time"
)

// Spec describes a process the launcher spawns.
type Spec struct {
	Name    string   `json:"name"`
	Command string   `json:"command"` // executable, or a full command line when Args is empty
	Args    []string `json:"args"`
	WorkDir string   `json:"work_dir"` // optional working dir
	Env     []string `json:"env"`      // optional extra env, "K=V"
	// StartGrace is how long the child must stay up for the spawn to count
	// as successful. Zero disables the check.
	StartGrace time.Duration `json:"start_grace"`
	// Detached starts the child in its own session so it outlives the launcher's terminal.
	Detached bool `json:"detached"`
}

// BuildCommand constructs an *exec.Cmd for the spec.
// With explicit Args the command is executed directly. Otherwise Command is
// treated as a command line: it runs through /bin/sh -c only when it carries
// shell metacharacters, and is split on whitespace otherwise.
func (s Spec) BuildCommand() *exec.Cmd {
	if len(s.Args) > 0 {
		// #nosec G204
		return exec.Command(s.Command, s.Args...)
	}
	cmdStr := strings.TrimSpace(s.Command)
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	if len(parts) == 0 {
		// #nosec G204
		return exec.Command("")
	}
	// #nosec G204
	return exec.Command(parts[0], parts[1:]...)
}
