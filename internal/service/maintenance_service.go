package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pinpincloud/internal/auth"
	"github.com/pinpincloud/internal/errors"
	"github.com/pinpincloud/internal/events"
	"github.com/pinpincloud/internal/logging"
	"github.com/pinpincloud/internal/models"
	"github.com/pinpincloud/internal/types"
)

const maxMaintenanceMessageLength = 1000

// MaintenanceService reads, updates and broadcasts the maintenance record
type MaintenanceService struct {
	repo   MaintenanceRepository
	broker events.Broker
	now    func() time.Time
}

// NewMaintenanceService creates a new maintenance service
func NewMaintenanceService(repo MaintenanceRepository, broker events.Broker) *MaintenanceService {
	return &MaintenanceService{repo: repo, broker: broker, now: time.Now}
}

// Get returns the current record, or the defaults when none was written
func (s *MaintenanceService) Get(ctx context.Context) (models.Maintenance, error) {
	record, err := s.repo.Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return models.DefaultMaintenance(), nil
		}
		return models.Maintenance{}, errors.NewDatabaseError("get maintenance", err)
	}
	return *record, nil
}

// UpdateMaintenanceInput is a requested change to the record
type UpdateMaintenanceInput struct {
	Enabled bool   `json:"enabled"`
	Message string `json:"message"`
	Mode    string `json:"mode"`
}

// Update replaces the record and broadcasts it
func (s *MaintenanceService) Update(ctx context.Context, actor auth.Principal, input *UpdateMaintenanceInput) (models.Maintenance, error) {
	if !actor.Can(auth.CapToggleMaintenance) {
		return models.Maintenance{}, errors.NewForbiddenError("only the founder can toggle maintenance mode")
	}

	mode := types.MaintenanceFullscreen
	if input.Mode != "" {
		parsed, err := types.ParseMaintenanceMode(input.Mode)
		if err != nil {
			return models.Maintenance{}, errors.NewInvalidParameterError("mode", "must be modal, fullscreen or banner")
		}
		mode = parsed
	}

	message := strings.TrimSpace(input.Message)
	if message == "" {
		message = models.DefaultMaintenanceMessage
	}
	if len(message) > maxMaintenanceMessageLength {
		return models.Maintenance{}, errors.NewInvalidParameterError("message", "is too long")
	}

	record := models.Maintenance{
		Enabled:     input.Enabled,
		Message:     message,
		Mode:        mode,
		LastUpdated: s.now().UTC(),
		UpdatedBy:   actor.UserID,
	}
	if err := s.repo.Put(ctx, &record); err != nil {
		return models.Maintenance{}, errors.NewDatabaseError("update maintenance", err)
	}

	var publisher events.Publisher
	if s.broker != nil {
		publisher = s.broker
	}
	publish(ctx, publisher, events.MaintenanceTopic, events.TypeMaintenanceUpdated, record)

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"enabled": record.Enabled,
		"mode":    record.Mode,
		"actor":   actor.UserID,
	}).Info("Maintenance record updated")
	return record, nil
}

// Gate refuses a request while maintenance is enabled, unless role may administer
func Gate(role types.Role, record models.Maintenance) error {
	if !record.Enabled || auth.CanAccessAdmin(role) {
		return nil
	}
	return errors.NewMaintenanceError(record.Message, record.Mode)
}

// MaintenanceSubscription streams maintenance records until closed
type MaintenanceSubscription struct {
	updates chan models.Maintenance
	sub     events.Subscription
	cancel  context.CancelFunc
	once    sync.Once
	done    chan struct{}
}

// Updates delivers the current record first, then every change
func (m *MaintenanceSubscription) Updates() <-chan models.Maintenance {
	return m.updates
}

// Close unsubscribes. It is safe to call more than once.
func (m *MaintenanceSubscription) Close() error {
	var err error
	m.once.Do(func() {
		m.cancel()
		if m.sub != nil {
			err = m.sub.Close()
		}
		<-m.done
	})
	return err
}

// Subscribe opens a stream of maintenance records. The stream ends when ctx
// is cancelled or Close is called.
func (s *MaintenanceService) Subscribe(ctx context.Context) (*MaintenanceSubscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	var sub events.Subscription
	if s.broker != nil {
		var err error
		sub, err = s.broker.Subscribe(ctx, events.MaintenanceTopic)
		if err != nil {
			cancel()
			return nil, errors.NewServiceUnavailableError("event broker")
		}
	}

	// Read after subscribing so no update between the two is lost
	current, err := s.Get(ctx)
	if err != nil {
		cancel()
		if sub != nil {
			_ = sub.Close()
		}
		return nil, err
	}

	m := &MaintenanceSubscription{
		updates: make(chan models.Maintenance, events.DefaultBufferSize),
		sub:     sub,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.updates <- current

	go m.pump(ctx)
	return m, nil
}

func (m *MaintenanceSubscription) pump(ctx context.Context) {
	defer close(m.done)
	defer close(m.updates)

	if m.sub == nil {
		<-ctx.Done()
		return
	}

	logger := logging.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-m.sub.Events():
			if !ok {
				return
			}
			if event.Type != events.TypeMaintenanceUpdated {
				continue
			}
			var record models.Maintenance
			if err := json.Unmarshal(event.Payload, &record); err != nil {
				logger.WithError(err).Warn("Dropping malformed maintenance event")
				continue
			}
			select {
			case m.updates <- record:
			case <-ctx.Done():
				return
			}
		}
	}
}
