package sandbox

import "strings"

// interpreters maps a filename extension to the binary that runs it.
// The mapping is fixed, and an unrecognized extension still runs as
// Python. The extension alone picks the entry command.
var interpreters = map[string]string{
	"py":  "python",
	"js":  "node",
	"sh":  "bash",
	"rb":  "ruby",
	"pl":  "perl",
	"php": "php",
}

// defaultInterpreter is used for any extension interpreters doesn't
// list, including no extension at all.
const defaultInterpreter = "python"

// InterpreterFor returns the entry command binary for filename, by its
// extension.
func InterpreterFor(filename string) string {
	ext := ""
	if i := strings.LastIndexByte(filename, '.'); i >= 0 {
		ext = filename[i+1:]
	}
	if bin, ok := interpreters[ext]; ok {
		return bin
	}
	return defaultInterpreter
}

// unbufferedEnv returns the environment variable that disables output
// buffering for interpreter, so streamed output reaches the submitter
// promptly instead of sitting in a libc buffer until the process exits.
func unbufferedEnv(interpreter string) []string {
	switch interpreter {
	case "python":
		return []string{"PYTHONUNBUFFERED=1"}
	default:
		return nil
	}
}
