package queue

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// NewServer builds the asynq worker server for sync tasks.
func NewServer(redisOpt asynq.RedisConnOpt, concurrency int, logger zerolog.Logger) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 5
	}
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueSync: 1},
		Logger:      Logger{L: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
	})
}

// Logger adapts zerolog to asynq.Logger.
type Logger struct {
	L zerolog.Logger
}

func (l Logger) Debug(args ...any) { l.L.Debug().Msg(fmt.Sprint(args...)) }
func (l Logger) Info(args ...any)  { l.L.Info().Msg(fmt.Sprint(args...)) }
func (l Logger) Warn(args ...any)  { l.L.Warn().Msg(fmt.Sprint(args...)) }
func (l Logger) Error(args ...any) { l.L.Error().Msg(fmt.Sprint(args...)) }
func (l Logger) Fatal(args ...any) { l.L.Fatal().Msg(fmt.Sprint(args...)) }
