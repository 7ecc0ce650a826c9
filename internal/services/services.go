// Package services holds the use-cases behind the HTTP handlers. Services
// return *apperr.Error values for expected failures; handlers translate them.
package services

import (
	"io"

	"github.com/sirupsen/logrus"
)

func orDiscard(logger logrus.FieldLogger) logrus.FieldLogger {
	if logger != nil {
		return logger
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return discard
}
