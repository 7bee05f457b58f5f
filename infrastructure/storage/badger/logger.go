package badger

import (
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/felixgeelhaar/clitool-registry/infrastructure/logging"
)

// boltLogger routes badger's internal logging through the package logger.
// Info and debug chatter is demoted to debug.
type boltLogger struct{}

// Logger returns a badger logger writing through bolt.
func Logger() badger.Logger {
	return boltLogger{}
}

func (boltLogger) Errorf(format string, args ...any) {
	logging.Error().Add(logging.Component("badger")).Msg(line(format, args))
}

func (boltLogger) Warningf(format string, args ...any) {
	logging.Warn().Add(logging.Component("badger")).Msg(line(format, args))
}

func (boltLogger) Infof(format string, args ...any) {
	logging.Debug().Add(logging.Component("badger")).Msg(line(format, args))
}

func (boltLogger) Debugf(format string, args ...any) {
	logging.Trace().Add(logging.Component("badger")).Msg(line(format, args))
}

func line(format string, args []any) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
