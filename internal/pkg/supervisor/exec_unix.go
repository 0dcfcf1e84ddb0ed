//go:build !windows

package supervisor

import "syscall"

func execReplace(executable string, argv, env []string) error {
	return syscall.Exec(executable, argv, env)
}
