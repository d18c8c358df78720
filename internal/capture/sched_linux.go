//go:build linux

package capture

import (
	"syscall"

	"github.com/sirupsen/logrus"
)

// requestScheduling asks the kernel to favor the capture process with
// a higher scheduling priority. This is a best-effort nicety: capture
// correctness never depends on it, so any failure is logged and
// otherwise ignored.
func requestScheduling(log *logrus.Logger) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := syscall.Setpriority(syscall.PRIO_PROCESS, 0, -5); err != nil {
		log.WithError(err).Info("capture: could not raise scheduling priority, continuing at default")
		return
	}
	log.Info("capture: raised process scheduling priority")
}
