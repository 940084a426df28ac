package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	dynamoGSI1        = "GSI1"
	dynamoGSI2        = "GSI2"
	dynamoLogPK       = "LOG"
	dynamoCounterID   = 0
	dynamoBatchSize   = 25
	dynamoTimeLayout  = "2006-01-02T15:04:05.000000000Z"
	dynamoMaxRetries  = 5
	dynamoSortIDWidth = 19
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoLogStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoLogStore stores audit entries in DynamoDB.
//
// Table layout: partition key "id" (N). Item id 0 holds the id sequence.
// GSI1 (gsi1pk="LOG", sk) lists every entry in time order; GSI2 (order_id, sk)
// serves per-order lookups. sk is "<created_at>#<zero padded id>".
type DynamoLogStore struct {
	client    DynamoAPI
	tableName string
}

// dynamoLogEntry represents the DynamoDB item structure
type dynamoLogEntry struct {
	ID           int64   `dynamodbav:"id"`
	GSI1PK       string  `dynamodbav:"gsi1pk"`
	SortKey      string  `dynamodbav:"sk"`
	OrderID      int64   `dynamodbav:"order_id"`
	EventType    string  `dynamodbav:"event_type"`
	EventData    string  `dynamodbav:"event_data"`
	Status       string  `dynamodbav:"status"`
	ErrorMessage *string `dynamodbav:"error_message,omitempty"`
	CreatedAt    string  `dynamodbav:"created_at"`
}

func NewDynamoLogStore(client DynamoAPI, tableName string) *DynamoLogStore {
	return &DynamoLogStore{client: client, tableName: tableName}
}

func dynamoTime(t time.Time) string {
	return t.UTC().Format(dynamoTimeLayout)
}

func dynamoSortKey(createdAt time.Time, id int64) string {
	return fmt.Sprintf("%s#%0*d", dynamoTime(createdAt), dynamoSortIDWidth, id)
}

// Insert allocates the next id from the sequence item and writes the entry.
func (s *DynamoLogStore) Insert(ctx context.Context, entry *LogEntry) (int64, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	id, err := s.nextID(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate log id: %w", err)
	}

	item := dynamoLogEntry{
		ID:           id,
		GSI1PK:       dynamoLogPK,
		SortKey:      dynamoSortKey(entry.CreatedAt, id),
		OrderID:      entry.OrderID,
		EventType:    entry.EventType,
		EventData:    string(entry.EventData),
		Status:       entry.Status,
		ErrorMessage: entry.ErrorMessage,
		CreatedAt:    dynamoTime(entry.CreatedAt),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal log entry: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to put log entry: %w", err)
	}

	entry.ID = id
	return id, nil
}

func (s *DynamoLogStore) nextID(ctx context.Context) (int64, error) {
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberN{Value: strconv.Itoa(dynamoCounterID)},
		},
		UpdateExpression: aws.String("ADD seq :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, err
	}

	var counter struct {
		Seq int64 `dynamodbav:"seq"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &counter); err != nil {
		return 0, err
	}
	if counter.Seq <= 0 {
		return 0, fmt.Errorf("sequence returned %d", counter.Seq)
	}
	return counter.Seq, nil
}

func (s *DynamoLogStore) Count(ctx context.Context) (int, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(dynamoGSI1),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: dynamoLogPK},
		},
		Select: types.SelectCount,
	}

	total := 0
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return 0, fmt.Errorf("failed to count log entries: %w", err)
		}
		total += int(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (s *DynamoLogStore) List(ctx context.Context, offset, limit int) ([]LogEntry, error) {
	if offset < 0 {
		offset = 0
	}
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(dynamoGSI1),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: dynamoLogPK},
		},
		ScanIndexForward: aws.Bool(false), // newest first
	}

	entries := make([]LogEntry, 0)
	skipped := 0
	err := s.queryPages(ctx, input, func(page []LogEntry) bool {
		for _, e := range page {
			if skipped < offset {
				skipped++
				continue
			}
			entries = append(entries, e)
			if limit > 0 && len(entries) == limit {
				return false
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *DynamoLogStore) ListByOrder(ctx context.Context, orderID int64) ([]LogEntry, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(dynamoGSI2),
		KeyConditionExpression: aws.String("order_id = :oid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":oid": &types.AttributeValueMemberN{Value: strconv.FormatInt(orderID, 10)},
		},
		ScanIndexForward: aws.Bool(false),
	}

	entries := make([]LogEntry, 0)
	err := s.queryPages(ctx, input, func(page []LogEntry) bool {
		entries = append(entries, page...)
		return true
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *DynamoLogStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]LogEntry, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(dynamoGSI1),
		KeyConditionExpression: aws.String("gsi1pk = :pk AND sk < :cutoff"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: dynamoLogPK},
			":cutoff": &types.AttributeValueMemberS{Value: dynamoTime(cutoff)},
		},
		ScanIndexForward: aws.Bool(true),
	}

	entries := make([]LogEntry, 0)
	err := s.queryPages(ctx, input, func(page []LogEntry) bool {
		for _, e := range page {
			entries = append(entries, e)
			if limit > 0 && len(entries) == limit {
				return false
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteBefore removes entries older than cutoff in batches of 25.
func (s *DynamoLogStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	old, err := s.ListBefore(ctx, cutoff, 0)
	if err != nil {
		return 0, err
	}

	var deleted int64
	for start := 0; start < len(old); start += dynamoBatchSize {
		end := start + dynamoBatchSize
		if end > len(old) {
			end = len(old)
		}

		requests := make([]types.WriteRequest, 0, end-start)
		for _, e := range old[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{
					Key: map[string]types.AttributeValue{
						"id": &types.AttributeValueMemberN{Value: strconv.FormatInt(e.ID, 10)},
					},
				},
			})
		}

		if err := s.batchDelete(ctx, requests); err != nil {
			return deleted, err
		}
		deleted += int64(len(requests))
	}
	return deleted, nil
}

func (s *DynamoLogStore) batchDelete(ctx context.Context, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{s.tableName: requests}
	for attempt := 0; attempt < dynamoMaxRetries; attempt++ {
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("failed to delete log entries: %w", err)
		}
		if len(out.UnprocessedItems[s.tableName]) == 0 {
			return nil
		}
		pending = out.UnprocessedItems
	}
	return fmt.Errorf("failed to delete log entries: %d still unprocessed", len(pending[s.tableName]))
}

// queryPages runs input until the results are exhausted or fn returns false.
func (s *DynamoLogStore) queryPages(ctx context.Context, input *dynamodb.QueryInput, fn func([]LogEntry) bool) error {
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return fmt.Errorf("failed to query log entries: %w", err)
		}
		page, err := unmarshalLogEntries(out.Items)
		if err != nil {
			return err
		}
		if !fn(page) || len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func unmarshalLogEntries(items []map[string]types.AttributeValue) ([]LogEntry, error) {
	entries := make([]LogEntry, 0, len(items))
	for _, item := range items {
		var de dynamoLogEntry
		if err := attributevalue.UnmarshalMap(item, &de); err != nil {
			return nil, fmt.Errorf("failed to unmarshal log entry: %w", err)
		}
		createdAt, err := time.Parse(dynamoTimeLayout, de.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("log entry %d: bad created_at: %w", de.ID, err)
		}
		entries = append(entries, LogEntry{
			ID:           de.ID,
			OrderID:      de.OrderID,
			EventType:    de.EventType,
			EventData:    json.RawMessage(de.EventData),
			Status:       de.Status,
			ErrorMessage: de.ErrorMessage,
			CreatedAt:    createdAt,
		})
	}
	return entries, nil
}
