package logging

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// New returns a logger writing to stdout. Format "text" selects the logrus
// text formatter, anything else produces JSON lines.
func New(level, format string) *logrus.Logger {
	return newLogger(os.Stdout, level, format)
}

func newLogger(out io.Writer, level, format string) *logrus.Logger {
	log := logrus.New()
	log.Out = out

	if strings.EqualFold(format, "text") {
		log.Formatter = &logrus.TextFormatter{FullTimestamp: true, DisableColors: true}
	} else {
		log.Formatter = &logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "severity",
				logrus.FieldKeyMsg:   "message",
			},
			TimestampFormat: time.RFC3339Nano,
		}
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// RequestLogger routes chi's access log through logger.
func RequestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	return chimiddleware.RequestLogger(&chimiddleware.DefaultLogFormatter{
		Logger:  logger,
		NoColor: true,
	})
}
