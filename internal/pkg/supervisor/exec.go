package supervisor

import (
	"os"
	"strconv"
)

// PrepareResumeArgs rewrites an argv so the replacement process resumes
// from resumePage: an existing --start-page value is substituted in place,
// otherwise the flag is appended. Both "--start-page N" and
// "--start-page=N" spellings are handled.
func PrepareResumeArgs(args []string, resumePage int) []string {
	out := make([]string, 0, len(args)+2)
	page := strconv.Itoa(resumePage)

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch {
		case arg == "--start-page":
			out = append(out, arg, page)
			if i+1 < len(args) {
				i++ // skip the old value
			}
			continue
		case len(arg) > len("--start-page=") && arg[:len("--start-page=")] == "--start-page=":
			out = append(out, "--start-page="+page)
			continue
		}

		out = append(out, arg)
	}

	if !containsStartPage(out) {
		out = append(out, "--start-page", page)
	}

	return out
}

func containsStartPage(args []string) bool {
	for _, arg := range args {
		if arg == "--start-page" || (len(arg) >= len("--start-page=") && arg[:len("--start-page=")] == "--start-page=") {
			return true
		}
	}
	return false
}

// ExecAction replaces the running process image via exec, inheriting the
// environment and rewriting argv to resume at the right page.
type ExecAction struct{}

func (ExecAction) Restart(resumePage int) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}

	return execReplace(executable, PrepareResumeArgs(os.Args, resumePage), os.Environ())
}
