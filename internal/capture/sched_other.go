//go:build !linux

package capture

import "github.com/sirupsen/logrus"

// requestScheduling is a no-op outside Linux: priority tuning here is
// a best-effort nicety with no portable equivalent the teacher's stack
// reaches for, so other platforms just run at their default priority.
func requestScheduling(log *logrus.Logger) {}
