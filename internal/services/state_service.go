package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"brewmate-engine/internal/config"
	"brewmate-engine/internal/models"
	"brewmate-engine/internal/pkg/logger"
)

// StateService keeps terminated workflow runs for later inspection and
// publishes per-node progress updates to a capped Redis stream. Both are
// best-effort from the workflow's point of view.
type StateService struct {
	client *redis.Client
	config config.RedisConfig
	logger *logger.Logger
}

func NewStateService(cfg config.RedisConfig, log *logger.Logger) (*StateService, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	opt.PoolSize = cfg.PoolSize
	opt.DialTimeout = cfg.DialTimeout
	opt.ReadTimeout = cfg.ReadTimeout
	opt.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opt)

	service := &StateService{
		client: client,
		config: cfg,
		logger: log,
	}

	if err := service.testConnection(); err != nil {
		return nil, fmt.Errorf("connection to Redis failed: %w", err)
	}

	log.Info("State service initialized", "pool_size", cfg.PoolSize, "run_ttl", cfg.RunTTL.String())

	return service, nil
}

func (service *StateService) testConnection() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := service.client.Ping(ctx).Err(); err != nil {
		return err
	}
	return nil
}

func (service *StateService) StoreRun(ctx context.Context, run *models.WorkflowRun) error {
	key := fmt.Sprintf("run:%s:state", run.ID)
	startTime := time.Now()

	runJSON, err := json.Marshal(run)
	if err != nil {
		return models.NewInternalError("RUN_SERIALIZATION_FAILED", "Failed to serialize workflow run").WithCause(err)
	}

	if err := service.client.Set(ctx, key, runJSON, service.config.RunTTL).Err(); err != nil {
		service.logger.LogService("redis", "store_run", time.Since(startTime), map[string]interface{}{
			"run_id": run.ID,
		}, err)
		return models.NewStoreError("RUN_STORE_FAILED", "Failed to store workflow run").WithCause(err)
	}

	service.logger.LogService("redis", "store_run", time.Since(startTime), map[string]interface{}{
		"run_id": run.ID,
		"status": run.Status,
	}, nil)

	return nil
}

func (service *StateService) GetRun(ctx context.Context, runID string) (*models.WorkflowRun, error) {
	key := fmt.Sprintf("run:%s:state", runID)

	runJSON, err := service.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrRunNotFound.WithMetadata("run_id", runID)
		}
		return nil, models.NewStoreError("RUN_GET_FAILED", "Failed to get workflow run").WithCause(err)
	}

	var run models.WorkflowRun
	if err := json.Unmarshal([]byte(runJSON), &run); err != nil {
		return nil, models.NewInternalError("RUN_DESERIALIZATION_FAILED", "Failed to deserialize workflow run").WithCause(err)
	}

	return &run, nil
}

func (service *StateService) PublishStepUpdate(ctx context.Context, update *models.StepUpdate) error {
	streamName := fmt.Sprintf("run:%s:updates", update.RunID)

	values := map[string]interface{}{
		"type":       "step_update",
		"run_id":     update.RunID,
		"request_id": update.RequestID,
		"step":       update.Step,
		"status":     string(update.Status),
		"message":    update.Message,
		"timestamp":  update.Timestamp.Format(time.RFC3339),
	}

	if update.Data != nil {
		dataJSON, err := json.Marshal(update.Data)
		if err == nil {
			values["data"] = string(dataJSON)
		} else {
			service.logger.WithError(err).Warn("Failed to marshal step update data")
		}
	}

	result, err := service.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName,
		Values: values,
		MaxLen: service.config.StreamMaxLen,
		Approx: true,
	}).Result()
	if err != nil {
		service.logger.LogService("redis", "publish_step_update", 0, map[string]interface{}{
			"stream": streamName,
			"step":   update.Step,
		}, err)
		return models.NewStoreError("STEP_PUBLISH_FAILED", "Failed to publish step update").WithCause(err)
	}

	service.logger.WithFields(logger.Fields{
		"stream":     streamName,
		"message_id": result,
		"step":       update.Step,
		"status":     update.Status,
	}).Debug("published step update")

	return nil
}

func (service *StateService) HealthCheck(ctx context.Context) error {
	if err := service.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("state store connection unhealthy: %w", err)
	}
	return nil
}

func (service *StateService) Close() error {
	if err := service.client.Close(); err != nil {
		return fmt.Errorf("error closing Redis connection: %w", err)
	}
	service.logger.Info("State service closed")
	return nil
}
