// Package publish copies a rendered dashboard to where it is served from.
package publish

import (
	"context"
	"log/slog"
)

// Publisher uploads the file at localPath to its configured destination.
type Publisher interface {
	Publish(ctx context.Context, localPath string) error
	// Target describes the destination for logs.
	Target() string
}

// All runs every publisher in order and stops at the first failure.
func All(ctx context.Context, localPath string, log *slog.Logger, pubs ...Publisher) error {
	for _, p := range pubs {
		log.Info("publishing dashboard", "file", localPath, "target", p.Target())
		if err := p.Publish(ctx, localPath); err != nil {
			return err
		}
	}
	return nil
}
