package composables

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/venuehq/venue-sdk/pkg/constants"
)

// UseLogger returns the request-scoped logger entry from the context, or a
// plain entry when none was installed (background jobs, tests).
func UseLogger(ctx context.Context) *logrus.Entry {
	logger := ctx.Value(constants.LoggerKey)
	if logger == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return logger.(*logrus.Entry)
}

func WithLogger(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, entry)
}
