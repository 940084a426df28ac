package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo understands just the key conditions DynamoLogStore issues.
// Query results are paged two items at a time to exercise pagination.
type fakeDynamo struct {
	mu       sync.Mutex
	seq      int64
	items    map[int64]map[string]types.AttributeValue
	pageSize int

	queries       int
	batchWrites   int
	unprocessOnce bool
	failQuery     error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[int64]map[string]types.AttributeValue), pageSize: 2}
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var e dynamoLogEntry
	if err := attributevalue.UnmarshalMap(in.Item, &e); err != nil {
		return nil, err
	}
	if _, exists := f.items[e.ID]; exists {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
	}
	f.items[e.ID] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return &dynamodb.UpdateItemOutput{
		Attributes: map[string]types.AttributeValue{
			"seq": &types.AttributeValueMemberN{Value: strconv.FormatInt(f.seq, 10)},
		},
	}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.failQuery != nil {
		return nil, f.failQuery
	}

	matched := make([]dynamoLogEntry, 0)
	for _, item := range f.items {
		var e dynamoLogEntry
		if err := attributevalue.UnmarshalMap(item, &e); err != nil {
			return nil, err
		}
		switch aws.ToString(in.IndexName) {
		case dynamoGSI1:
			pk := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value
			if e.GSI1PK != pk {
				continue
			}
			if c, ok := in.ExpressionAttributeValues[":cutoff"]; ok && !(e.SortKey < c.(*types.AttributeValueMemberS).Value) {
				continue
			}
		case dynamoGSI2:
			oid := in.ExpressionAttributeValues[":oid"].(*types.AttributeValueMemberN).Value
			if strconv.FormatInt(e.OrderID, 10) != oid {
				continue
			}
		default:
			continue
		}
		matched = append(matched, e)
	}

	forward := in.ScanIndexForward == nil || *in.ScanIndexForward
	sort.Slice(matched, func(i, j int) bool {
		if forward {
			return matched[i].SortKey < matched[j].SortKey
		}
		return matched[i].SortKey > matched[j].SortKey
	})

	start := 0
	if in.ExclusiveStartKey != nil {
		last := in.ExclusiveStartKey["id"].(*types.AttributeValueMemberN).Value
		for i, e := range matched {
			if strconv.FormatInt(e.ID, 10) == last {
				start = i + 1
				break
			}
		}
	}
	end := start + f.pageSize
	if end > len(matched) {
		end = len(matched)
	}

	out := &dynamodb.QueryOutput{Count: int32(end - start)}
	if in.Select != types.SelectCount {
		for _, e := range matched[start:end] {
			out.Items = append(out.Items, f.items[e.ID])
		}
	}
	if end < len(matched) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberN{Value: strconv.FormatInt(matched[end-1].ID, 10)},
		}
	}
	return out, nil
}

func (f *fakeDynamo) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchWrites++

	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	for table, reqs := range in.RequestItems {
		if len(reqs) > dynamoBatchSize {
			return nil, errors.New("too many items in batch")
		}
		for i, r := range reqs {
			if f.unprocessOnce && i == len(reqs)-1 {
				f.unprocessOnce = false
				out.UnprocessedItems[table] = append(out.UnprocessedItems[table], r)
				continue
			}
			id, _ := strconv.ParseInt(r.DeleteRequest.Key["id"].(*types.AttributeValueMemberN).Value, 10, 64)
			delete(f.items, id)
		}
	}
	return out, nil
}

func newTestDynamoLogStore() (*DynamoLogStore, *fakeDynamo) {
	fake := newFakeDynamo()
	return NewDynamoLogStore(fake, "matomo_logs"), fake
}

func TestDynamoLogStore_InsertAndList(t *testing.T) {
	s, _ := newTestDynamoLogStore()
	ctx := context.Background()
	ids := seedEntries(t, s, time.Now().UTC().Add(-time.Hour), 5)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	page, err := s.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(102), page[0].OrderID)
	assert.Equal(t, int64(101), page[1].OrderID)

	all, err := s.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestDynamoLogStore_RoundTrip(t *testing.T) {
	s, _ := newTestDynamoLogStore()
	ctx := context.Background()
	created := time.Date(2026, 10, 1, 12, 30, 45, 123456789, time.UTC)

	_, err := s.Insert(ctx, &LogEntry{
		OrderID:      101,
		EventType:    "new_order",
		EventData:    json.RawMessage(`{"order_id":101}`),
		Status:       LogStatusError,
		ErrorMessage: strPtr("boom"),
		CreatedAt:    created,
	})
	require.NoError(t, err)

	entries, err := s.ListByOrder(ctx, 101)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.JSONEq(t, `{"order_id":101}`, string(entries[0].EventData))
	assert.Equal(t, "boom", *entries[0].ErrorMessage)
	assert.True(t, created.Equal(entries[0].CreatedAt))

	_, err = s.Insert(ctx, &LogEntry{OrderID: 101, EventType: "status_change", EventData: json.RawMessage(`{}`), Status: LogStatusSuccess, CreatedAt: created.Add(time.Second)})
	require.NoError(t, err)

	entries, err = s.ListByOrder(ctx, 101)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "status_change", entries[0].EventType)
	assert.Nil(t, entries[0].ErrorMessage)
}

func TestDynamoLogStore_DeleteBeforeBatches(t *testing.T) {
	s, fake := newTestDynamoLogStore()
	ctx := context.Background()
	now := time.Now().UTC()

	seedEntries(t, s, now.Add(-60*24*time.Hour), 30)
	seedEntries(t, s, now.Add(-time.Hour), 2)
	fake.unprocessOnce = true

	deleted, err := s.DeleteBefore(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(30), deleted)
	// two batches plus one retry for the unprocessed item
	assert.Equal(t, 3, fake.batchWrites)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	deleted, err = s.DeleteBefore(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestDynamoLogStore_QueryError(t *testing.T) {
	s, fake := newTestDynamoLogStore()
	fake.failQuery = errors.New("throttled")

	_, err := s.List(context.Background(), 0, 10)
	assert.ErrorContains(t, err, "throttled")

	_, err = s.Count(context.Background())
	assert.ErrorContains(t, err, "throttled")
}

func TestDynamoSortKey_OrdersByTimeThenID(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Less(t, dynamoSortKey(base, 9), dynamoSortKey(base, 10))
	assert.Less(t, dynamoSortKey(base, 999), dynamoSortKey(base.Add(time.Nanosecond), 1))
	assert.Less(t, dynamoSortKey(base, 1), dynamoTime(base.Add(time.Nanosecond)))
}
