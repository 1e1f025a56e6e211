package common

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// ------------------------------------------------------------
// If the verbosity at the call site is less than or equal to
// the level requested, the log will be enabled.  Higher callsite
// verbosity values are less likely to be output.
//
// if (2 <= verbosity) { log-is-enabled }
// ------------------------------------------------------------

type LogWriter struct {
	verbosity int
	logger    *logrus.Logger
}

var logWriter *LogWriter

func NewLogWriter(logfileName string, vLevel int) *LogWriter {
	if logWriter != nil {
		return logWriter
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: false,
		FullTimestamp:    true,
	})

	logfilePath := strings.TrimSpace(logfileName)
	if logfilePath != "" {
		if fp, erx := os.Create(logfilePath); erx == nil {
			logger.SetOutput(fp)
		} else {
			logger.Warnf("Unable to Create/Open requested logfile: %q", logfilePath)
		}
	}

	logWriter = &LogWriter{verbosity: vLevel, logger: logger}
	return logWriter
}

func GetLogWriter() *LogWriter {
	return NewLogWriter("", 0)
}

func (lW *LogWriter) IsVerbose() bool {
	return lW.verbosity > 0
}

func (lW *LogWriter) VerboseLevel(v int) bool {
	return v <= lW.verbosity
}

func (lW *LogWriter) Printf(format string, v ...any) {
	lW.logger.Infof(format, v...)
}

func (lW *LogWriter) Warnf(format string, v ...any) {
	lW.logger.Warnf(format, v...)
}

func (lW *LogWriter) Fatal(v ...any) {
	lW.logger.Fatal(v...)
}

func (lW *LogWriter) Fatalf(format string, v ...any) {
	lW.logger.Fatalf(format, v...)
}
