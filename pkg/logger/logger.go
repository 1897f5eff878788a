// Package logger builds the process-wide zap logger. All output goes to
// stderr: in worker mode stdout belongs to the message channel.
package logger

import (
	"go.uber.org/zap"
)

// New builds a logger for the given environment name.
func New(environment string) (*zap.Logger, error) {
	switch environment {
	case "prod":
		return zap.NewProduction()
	case "test":
		return zap.NewExample(), nil
	default:
		return zap.NewDevelopment()
	}
}
