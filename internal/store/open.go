package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/LCOGT/photonranch-userinfo/internal/config"
	"github.com/LCOGT/photonranch-userinfo/internal/domain"
	"github.com/LCOGT/photonranch-userinfo/internal/logging"
)

// Backend bundles the selected table with its shutdown hook.
type Backend struct {
	Table domain.Table
	close func(context.Context) error
}

// Close releases backend resources.
func (b *Backend) Close(ctx context.Context) error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close(ctx)
}

// newDynamoAPI is overridable for tests.
var newDynamoAPI = func(ctx context.Context, cfg config.Config) (dynamoAPI, error) {
	return NewDynamoClient(ctx, cfg)
}

// Open connects the backend named by cfg.StoreBackend.
func Open(ctx context.Context, cfg config.Config, logger *logrus.Entry) (*Backend, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	switch cfg.StoreBackend {
	case config.BackendDynamoDB:
		client, err := newDynamoAPI(ctx, cfg)
		if err != nil {
			return nil, err
		}

		logger.WithFields(logging.Fields{
			"event":  "store_open",
			"store":  config.BackendDynamoDB,
			"table":  cfg.Table,
			"region": cfg.AWSRegion,
		}).Info("using dynamodb table")

		return &Backend{Table: NewDynamoTable(client, cfg.Table)}, nil

	case config.BackendMongo:
		manager, err := NewManager(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := manager.EnsureBaseIndexes(ctx); err != nil {
			_ = manager.Close(ctx)
			return nil, err
		}

		logger.WithFields(logging.Fields{
			"event":    "store_open",
			"store":    config.BackendMongo,
			"mongo_db": cfg.MongoDB,
		}).Info("connected to mongo")

		return &Backend{
			Table: NewMongoTable(manager.Records(), manager),
			close: manager.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}
