// Package customers runs the customer directory: listing, expanding rows to
// fetch order history, filtering, deletion and CSV export.
//
// The remote API is the source of truth. Each session keeps its own
// best-effort copy of the list, which the remote calls refresh.
package customers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/eshaffer321/receipt-desk/internal/adapters/backendapi"
	"github.com/eshaffer321/receipt-desk/internal/application/busy"
	"github.com/eshaffer321/receipt-desk/internal/domain/directory"
	"github.com/eshaffer321/receipt-desk/internal/domain/partners"
)

// ExportFilename is the attachment name of CSV exports.
const ExportFilename = "customers.csv"

// Backend is the customers part of the backend API.
type Backend interface {
	ListCustomers(ctx context.Context, token string) ([]directory.Customer, error)
	CustomerOrders(ctx context.Context, token string, id directory.ID) ([]directory.CustomerOrder, error)
	SearchCustomers(ctx context.Context, token string, f directory.Filters) ([]directory.Customer, error)
	DeleteCustomer(ctx context.Context, token string, id directory.ID) error
	ExportCustomers(ctx context.Context, token string, f directory.Filters) (*backendapi.Export, error)
}

// View is the directory as a page shows it.
type View struct {
	directory.View
	Loading   bool `json:"loading"`
	Searching bool `json:"searching"`
	Exporting bool `json:"exporting"`
}

type entry struct {
	mu  sync.Mutex
	dir *directory.Directory
}

// Service runs the directory flows.
type Service struct {
	backend Backend
	guard   *busy.Guard
	logger  *slog.Logger

	entries      map[string]*entry
	entriesMutex sync.Mutex
}

// NewService creates a customer service.
func NewService(backend Backend, guard *busy.Guard, logger *slog.Logger) *Service {
	if guard == nil {
		guard = busy.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		backend: backend,
		guard:   guard,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// View returns the session's directory without calling the backend.
func (s *Service) View(sessionID string) View {
	e := s.entry(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return s.view(sessionID, e.dir)
}

// Load replaces the list with every customer.
func (s *Service) Load(ctx context.Context, sessionID, token string) (View, error) {
	release, err := s.guard.Acquire(busy.Key(sessionID, busy.ActionCustomersLoad))
	if err != nil {
		return View{}, err
	}
	defer release()

	customers, err := s.backend.ListCustomers(ctx, token)
	if err != nil {
		s.logger.Error("Failed to fetch customers", "error", err)
		return View{}, fmt.Errorf("failed to fetch customers: %w", err)
	}
	s.logger.Info("Fetched customers", "count", len(customers))

	release()
	return s.update(sessionID, func(d *directory.Directory) error {
		d.Replace(customers)
		return nil
	})
}

// Toggle collapses the row if it is expanded. Otherwise it fetches the
// customer's orders, merges them into the row and expands it. A failed fetch
// leaves the expansion unchanged.
func (s *Service) Toggle(ctx context.Context, sessionID, token string, id directory.ID) (View, error) {
	release, err := s.guard.Acquire(busy.Key(sessionID, busy.ActionCustomersToggle))
	if err != nil {
		return View{}, err
	}
	defer release()

	e := s.entry(sessionID)
	e.mu.Lock()
	collapsed := e.dir.Collapse(id)
	known := e.dir.Has(id)
	e.mu.Unlock()

	if collapsed {
		return s.View(sessionID), nil
	}
	if !known {
		return View{}, directory.ErrNotFound
	}

	orders, err := s.backend.CustomerOrders(ctx, token, id)
	if err != nil {
		s.logger.Error("Failed to fetch customer orders", "customer_id", id, "error", err)
		return View{}, fmt.Errorf("failed to fetch customer orders: %w", err)
	}

	return s.update(sessionID, func(d *directory.Directory) error {
		return d.Expand(id, orders)
	})
}

// Search replaces the list with the customers matching f. Orders previously
// merged into rows are discarded.
func (s *Service) Search(ctx context.Context, sessionID, token string, f directory.Filters) (View, error) {
	f, err := normalizeFilters(f)
	if err != nil {
		return View{}, err
	}

	release, err := s.guard.Acquire(busy.Key(sessionID, busy.ActionCustomersSearch))
	if err != nil {
		return View{}, err
	}
	defer release()

	customers, err := s.backend.SearchCustomers(ctx, token, f)
	if err != nil {
		s.logger.Error("Failed to search customers", "error", err)
		return View{}, fmt.Errorf("failed to search customers: %w", err)
	}
	s.logger.Info("Searched customers", "count", len(customers), "partner", f.DeliveryPartner)

	release()
	return s.update(sessionID, func(d *directory.Directory) error {
		d.SetFilters(f)
		d.Replace(customers)
		return nil
	})
}

// Delete removes the customer remotely, then from the local list.
func (s *Service) Delete(ctx context.Context, sessionID, token string, id directory.ID) (View, error) {
	release, err := s.guard.Acquire(busy.Key(sessionID, busy.ActionCustomersDelete))
	if err != nil {
		return View{}, err
	}
	defer release()

	if err := s.backend.DeleteCustomer(ctx, token, id); err != nil {
		s.logger.Error("Failed to delete customer", "customer_id", id, "error", err)
		return View{}, fmt.Errorf("failed to delete customer: %w", err)
	}
	s.logger.Info("Deleted customer", "customer_id", id)

	return s.update(sessionID, func(d *directory.Directory) error {
		// The row may have dropped out of a newer list already.
		if err := d.Remove(id); err != nil && !errors.Is(err, directory.ErrNotFound) {
			return err
		}
		return nil
	})
}

// Export is a CSV download. Closing Body ends the export.
type Export struct {
	Body        io.ReadCloser
	ContentType string
	Filename    string
}

// Export starts the CSV download for f. The export stays busy until the
// returned body is closed.
func (s *Service) Export(ctx context.Context, sessionID, token string, f directory.Filters) (*Export, error) {
	f, err := normalizeFilters(f)
	if err != nil {
		return nil, err
	}

	release, err := s.guard.Acquire(busy.Key(sessionID, busy.ActionCustomersExport))
	if err != nil {
		return nil, err
	}

	exp, err := s.backend.ExportCustomers(ctx, token, f)
	if err != nil {
		release()
		s.logger.Error("Failed to export customers", "error", err)
		return nil, fmt.Errorf("failed to export customers: %w", err)
	}

	return &Export{
		Body:        &releasingBody{ReadCloser: exp.Body, release: release},
		ContentType: exp.ContentType,
		Filename:    ExportFilename,
	}, nil
}

// Forget drops the session's directory.
func (s *Service) Forget(sessionID string) {
	s.entriesMutex.Lock()
	defer s.entriesMutex.Unlock()
	delete(s.entries, sessionID)
}

func (s *Service) update(sessionID string, fn func(*directory.Directory) error) (View, error) {
	e := s.entry(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := fn(e.dir); err != nil {
		return View{}, err
	}
	return s.view(sessionID, e.dir), nil
}

func (s *Service) entry(sessionID string) *entry {
	s.entriesMutex.Lock()
	defer s.entriesMutex.Unlock()

	e, ok := s.entries[sessionID]
	if !ok {
		e = &entry{dir: directory.New()}
		s.entries[sessionID] = e
	}
	return e
}

func (s *Service) view(sessionID string, d *directory.Directory) View {
	return View{
		View:      d.View(),
		Loading:   s.guard.Busy(busy.Key(sessionID, busy.ActionCustomersLoad)),
		Searching: s.guard.Busy(busy.Key(sessionID, busy.ActionCustomersSearch)),
		Exporting: s.guard.Busy(busy.Key(sessionID, busy.ActionCustomersExport)),
	}
}

// normalizeFilters maps a partner slug or display name onto the display name
// the search endpoint filters by.
func normalizeFilters(f directory.Filters) (directory.Filters, error) {
	name, err := partners.FilterName(f.DeliveryPartner)
	if err != nil {
		return directory.Filters{}, err
	}
	f.DeliveryPartner = name
	return f, nil
}

type releasingBody struct {
	io.ReadCloser
	release func()
}

func (b *releasingBody) Close() error {
	defer b.release()
	return b.ReadCloser.Close()
}
