package stage

import "os"

// decodeProcessState reports the child's exit code. Windows has no signal
// deaths to decode.
func decodeProcessState(ps *os.ProcessState) (rc int, sig int, signaled bool) {
	return ps.ExitCode(), 0, false
}
