package kinesis

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
)

// EventHandler has the same shape as the Kafka consumer callback.
type EventHandler func(ctx context.Context, key, value []byte) error

// HandleBatch feeds every record of a Kinesis batch to handle. Records that
// cannot be converted or handled are reported as batch item failures so the
// stream retries only those.
func HandleBatch(ctx context.Context, batch events.KinesisEvent, handle EventHandler, logger *zap.Logger) events.KinesisEventResponse {
	if logger == nil {
		logger = zap.NewNop()
	}

	var batchItemFailures []events.KinesisBatchItemFailure
	fail := func(record events.KinesisEventRecord) {
		batchItemFailures = append(batchItemFailures, events.KinesisBatchItemFailure{
			ItemIdentifier: record.Kinesis.SequenceNumber,
		})
	}

	for _, record := range batch.Records {
		event, err := ConvertFromKinesisRecord(record)
		if err != nil {
			logger.Error("failed to convert record", zap.String("record_id", record.EventID), zap.Error(err))
			fail(record)
			continue
		}

		// Skip non-INSERT events
		if event == nil {
			continue
		}

		eventJSON, err := json.Marshal(event)
		if err != nil {
			logger.Error("failed to marshal event", zap.String("event_id", event.ID), zap.Error(err))
			fail(record)
			continue
		}

		if err := handle(ctx, []byte(record.Kinesis.PartitionKey), eventJSON); err != nil {
			logger.Error("failed to process event",
				zap.String("event_id", event.ID),
				zap.String("event_type", event.EventType),
				zap.Error(err),
			)
			fail(record)
		}
	}

	logger.Info("processed batch",
		zap.Int("records", len(batch.Records)),
		zap.Int("failed", len(batchItemFailures)),
	)
	return events.KinesisEventResponse{BatchItemFailures: batchItemFailures}
}
