//go:build windows

package supervisor

import (
	"os"
	"os/exec"
)

// Windows has no exec(2); the closest equivalent is spawning the
// replacement and exiting.
func execReplace(executable string, argv, env []string) error {
	cmd := exec.Command(executable, argv[1:]...)
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return err
	}

	os.Exit(0)
	return nil
}
