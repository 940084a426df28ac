package kinesis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/wc-matomo-tracking/internal/domain/order"
)

// ConvertFromKinesisRecord converts a Kinesis record to an order.Event.
// Records are either DynamoDB Streams images of the shop's event outbox table
// or an order.Event envelope written to the stream directly.
func ConvertFromKinesisRecord(record events.KinesisEventRecord) (*order.Event, error) {
	var dynamoDBRecord events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &dynamoDBRecord); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	if dynamoDBRecord.EventName == "" {
		return convertEnvelope(record.Kinesis.Data)
	}

	return ConvertFromDynamoDBStreamRecord(dynamoDBRecord)
}

// ConvertFromDynamoDBStreamRecord converts a DynamoDB Stream record to an order.Event.
// Only INSERTs carry new events; other record types yield nil.
func ConvertFromDynamoDBStreamRecord(record events.DynamoDBEventRecord) (*order.Event, error) {
	if record.EventName != "INSERT" {
		return nil, nil
	}

	return convertDynamoDBImage(record.Change.NewImage)
}

func convertEnvelope(data []byte) (*order.Event, error) {
	var event order.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event envelope: %w", err)
	}
	if err := validate(&event); err != nil {
		return nil, err
	}
	return &event, nil
}

// convertDynamoDBImage extracts event data from DynamoDB attribute values.
func convertDynamoDBImage(image map[string]events.DynamoDBAttributeValue) (*order.Event, error) {
	if image == nil {
		return nil, fmt.Errorf("DynamoDB image is nil")
	}

	event := &order.Event{}

	if v, ok := image["id"]; ok {
		event.ID = v.String()
	}
	if v, ok := image["event_type"]; ok {
		event.EventType = v.String()
	}
	if v, ok := image["order_id"]; ok {
		id, err := v.Integer()
		if err != nil {
			return nil, fmt.Errorf("failed to parse order_id: %w", err)
		}
		event.OrderID = id
	}
	if v, ok := image["data"]; ok {
		event.Data = json.RawMessage(v.String())
	}
	if v, ok := image["created_at"]; ok {
		t, err := time.Parse(time.RFC3339Nano, v.String())
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		event.Timestamp = t
	}

	if err := validate(event); err != nil {
		return nil, err
	}
	return event, nil
}

func validate(event *order.Event) error {
	if event.ID == "" || event.EventType == "" || event.OrderID <= 0 {
		return fmt.Errorf("missing required fields: id=%s, event_type=%s, order_id=%d",
			event.ID, event.EventType, event.OrderID)
	}
	return nil
}
