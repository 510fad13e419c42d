package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"youthexchange/internal/domain"
	"youthexchange/internal/repository/changefeed"
)

var allCollections = []string{
	domain.CollectionEvents,
	domain.CollectionRegistrants,
	domain.CollectionRegistrations,
	domain.CollectionInvites,
	domain.CollectionPrincipals,
	domain.CollectionPrincipalEmails,
}

// relayed returns the collections to republish for n. A nil notification follows a reconnect,
// after which every collection is republished since notifications may have been missed. Changes
// made by the Store identified by origin were already published and are skipped.
func relayed(origin string, n *pq.Notification) []string {
	if n == nil {
		return allCollections
	}
	from, collection := parsePayload(n.Extra)
	if from == origin || collection == "" {
		return nil
	}
	return []string{collection}
}

// Listen relays NotifyChannel notifications from other processes to hub until ctx is done.
// origin is the local Store's Origin.
func Listen(ctx context.Context, dsn, origin string, hub *changefeed.Hub, logger *slog.Logger) error {
	listener := pq.NewListener(dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("change listener event", "event", ev, "error", err)
		}
	})
	defer listener.Close()

	if err := listener.Listen(NotifyChannel); err != nil {
		return unavailable(err)
	}
	logger.Info("listening for document changes", "channel", NotifyChannel)

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			for _, c := range relayed(origin, n) {
				hub.Publish(c)
			}
		case <-ping.C:
			if err := listener.Ping(); err != nil {
				logger.Warn("change listener ping failed", "error", err)
			}
		}
	}
}
