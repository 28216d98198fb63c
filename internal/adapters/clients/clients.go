// Package clients builds the remote service clients from configuration.
package clients

import (
	"fmt"
	"log/slog"

	"github.com/eshaffer321/receipt-desk/internal/adapters/backendapi"
	"github.com/eshaffer321/receipt-desk/internal/adapters/events"
	"github.com/eshaffer321/receipt-desk/internal/adapters/receiptapi"
	"github.com/eshaffer321/receipt-desk/internal/adapters/upstream"
	"github.com/eshaffer321/receipt-desk/internal/infrastructure/config"
)

type Clients struct {
	Receipts *receiptapi.Client
	Backend  *backendapi.Client
	Events   events.Publisher
}

// NewClients wires the upload service, the backend API and the approval
// event publisher. observer, when set, sees every remote call.
func NewClients(cfg *config.Config, observer upstream.Observer, logger *slog.Logger) (*Clients, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []upstream.Option{
		upstream.WithTimeout(cfg.Services.Timeout),
		upstream.WithLogger(logger.With("system", "upstream")),
	}
	if observer != nil {
		opts = append(opts, upstream.WithObserver(observer))
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.Events.AMQPURL != "" {
		p, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, logger.With("system", "events"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect event publisher: %w", err)
		}
		publisher = p
	}

	return &Clients{
		Receipts: receiptapi.New(cfg.Services.ProcessBaseURL, opts...),
		Backend:  backendapi.New(cfg.Services.APIBaseURL, opts...),
		Events:   publisher,
	}, nil
}

// Close releases the event publisher.
func (c *Clients) Close() error {
	if c.Events == nil {
		return nil
	}
	return c.Events.Close()
}
