package logger

import "go.uber.org/zap"

// New builds the process logger. APP_ENV=dev switches to the human-readable
// development encoder with debug level enabled.
func New(env string) (*zap.Logger, error) {
	if env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
