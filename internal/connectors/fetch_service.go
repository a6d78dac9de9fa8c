package connectors

import (
	"context"
	"log/slog"

	"partners/internal/storage"
)

type FetchService struct {
	log       *slog.Logger
	connector MailConnector
	store     *MailStoreService
}

type FetchResult struct {
	Fetched int
	Stored  int
	// Known counts messages already recorded by an earlier fetch.
	Known int
}

func NewFetchService(log *slog.Logger, db *storage.DB, rawMailDir string, connector MailConnector) *FetchService {
	if log == nil {
		log = slog.Default()
	}
	return &FetchService{
		log:       log.With("module", "fetch"),
		connector: connector,
		store:     NewMailStoreService(db, rawMailDir),
	}
}

// FetchAndStore pulls up to max messages from label. A message seen before
// keeps its intake status, so an analyzed message is not analyzed twice.
func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	res := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		row, err := s.store.Store(msg)
		if err != nil {
			return res, err
		}
		if row.Status != "fetched" {
			res.Known++
			continue
		}
		res.Stored++
		s.log.Debug("message stored", "provider", row.Provider, "messageId", row.MessageID, "subject", row.Subject)
	}

	return res, nil
}
