// Package services implements the registration and invitation lifecycle on top of the domain
// repositories.
package services

import (
	"context"
	"time"
)

const defaultContextTimeout = 10 * time.Second

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = defaultContextTimeout
	}
	return context.WithTimeout(ctx, d)
}
