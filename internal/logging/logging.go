// Package logging configures the process-wide logger: a logrus.Logger
// whose formatter renders "[<component>] <LEVEL> <message>" lines to
// standard error, with ERROR/INFO/DEBUG level filtering driven by the
// configured log level.
package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Component tags used across the daemon's subsystems.
const (
	ComponentDNS        = "DNS"
	ComponentTLS        = "TLS"
	ComponentProxy      = "PROXY"
	ComponentSupervisor = "SUPERVISOR"
	ComponentConfig     = "CONFIG"
)

// New builds a *logrus.Logger writing to standard error with the line
// formatter below, filtered at the given level ("error", "info", or
// "debug"). An unrecognized level falls back to "info".
func New(level string) *logrus.Logger {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}

	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(lvl)
	l.SetFormatter(&lineFormatter{})
	return l
}

// For returns an entry tagged with the given component, so every log
// call site on it renders as "[<component>] <LEVEL> <message>".
func For(logger *logrus.Logger, component string) *logrus.Entry {
	return logger.WithField("component", component)
}

// lineFormatter renders "[<component>] <LEVEL> <message>\n", dropping
// the timestamp logrus's default formatter would otherwise add: the log
// sink contract only specifies component, level, and message.
type lineFormatter struct{}

func (f *lineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	component := "sptth"
	if v, ok := entry.Data["component"]; ok {
		if s, ok := v.(string); ok && s != "" {
			component = s
		}
	}
	level := strings.ToUpper(entry.Level.String())
	line := fmt.Sprintf("[%s] %s %s\n", component, level, entry.Message)
	return []byte(line), nil
}
