package swd

import (
	"github.com/sirupsen/logrus"
)

var logger *logrus.Logger

func init() {
	logger = logrus.New()
}

// SetLogger overrides the package-level logger used by the swd core.
// Host tools call this with a logger configured for their CLI (verbosity,
// formatter) before opening a session.
func SetLogger(l *logrus.Logger) {
	logger = l
}
