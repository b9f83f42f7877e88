package service

import (
	"context"
	"errors"
	"time"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/config"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/cache"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/messaging"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/models"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/repository"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/search"

	"github.com/sirupsen/logrus"
)

// Service is the device protocol surface used by the HTTP handlers
type Service interface {
	IngestTelemetry(ctx context.Context, req IngestRequest) (*IngestResult, error)

	IssueCommand(ctx context.Context, op Operator, req IssueCommandRequest) (*models.Command, error)
	AcknowledgeCommand(ctx context.Context, req AcknowledgeRequest) error
	ListDeviceCommands(ctx context.Context, op Operator, deviceID string, status models.CommandStatus) ([]*models.Command, error)

	CheckForUpdate(ctx context.Context, req UpdateCheckRequest) (*UpdateCheckResult, error)
	ReportOTAProgress(ctx context.Context, req OTAProgressRequest) (*models.OTAUpdateJob, error)

	PairDevice(ctx context.Context, op Operator, req PairRequest) (*PairResult, error)
	UnpairDevice(ctx context.Context, op Operator, deviceID string) error
}

// Operator is an authenticated platform user acting for an organization
type Operator struct {
	UserID         string
	OrganizationID uint
}

// ServiceConfig holds the dependencies of the fleet service
type ServiceConfig struct {
	Repository repository.Repository
	Cache      cache.RedisClient
	Publisher  messaging.Publisher
	Indexer    search.TelemetryIndexer
	Logger     *logrus.Logger
	Protocol   config.ProtocolConfig
	CacheTTL   time.Duration
	// Clock overrides time.Now, for tests
	Clock func() time.Time
}

// FleetService implements the device protocol operations
type FleetService struct {
	repo      repository.Repository
	devices   *cache.DeviceCache
	auth      *Authenticator
	publisher messaging.Publisher
	indexer   search.TelemetryIndexer
	log       *logrus.Logger
	protocol  config.ProtocolConfig
	clock     func() time.Time
}

// NewService creates the fleet service
func NewService(cfg ServiceConfig) (*FleetService, error) {
	if cfg.Repository == nil {
		return nil, errors.New("repository is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = messaging.NewLogPublisher(cfg.Logger)
	}
	if cfg.Indexer == nil {
		cfg.Indexer = search.NoopIndexer{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if err := cfg.Protocol.Validate(); err != nil {
		return nil, err
	}

	devices := cache.NewDeviceCache(cfg.Cache, cfg.CacheTTL, cfg.Logger)

	return &FleetService{
		repo:      cfg.Repository,
		devices:   devices,
		auth:      NewAuthenticator(cfg.Repository, devices, cfg.Protocol.FallbackAPIKey, cfg.Logger),
		publisher: cfg.Publisher,
		indexer:   cfg.Indexer,
		log:       cfg.Logger,
		protocol:  cfg.Protocol,
		clock:     cfg.Clock,
	}, nil
}

// Authenticator exposes the device authenticator
func (s *FleetService) Authenticator() *Authenticator {
	return s.auth
}

func (s *FleetService) now() time.Time {
	return s.clock().UTC()
}

// publish emits a domain event. Failures are logged and never fail the write
// that produced the event.
func (s *FleetService) publish(ctx context.Context, eventType messaging.EventType, deviceID string, data interface{}) {
	event := messaging.NewEvent(eventType, deviceID, data)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"event_type": eventType,
			"device_id":  deviceID,
		}).Warn("Failed to publish event")
	}
}

// operatorRole resolves the operator's role in an organization, or an
// AuthorizationError when the operator is not a member.
func (s *FleetService) operatorRole(ctx context.Context, op Operator, organizationID uint) (models.MemberRole, error) {
	role, err := s.repo.FindMemberRole(ctx, organizationID, op.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", NewAuthorizationError("not a member of the device's organization")
		}
		return "", NewInternalError("failed to resolve membership", err)
	}
	return role, nil
}

// findDevice loads a device by device_id, mapping absence to NotFound
func (s *FleetService) findDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	device, err := s.repo.FindDeviceByDeviceID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewNotFoundError("device")
		}
		return nil, NewInternalError("failed to load device", err)
	}
	return device, nil
}

// Shutdown releases the service's outbound clients
func (s *FleetService) Shutdown() error {
	return s.publisher.Close()
}
