package s3

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// memoryDDB emulates the index table, returning one item per page.
type memoryDDB struct {
	mu    sync.Mutex
	items map[string]map[string]int
	err   error
}

func newMemoryDDB() *memoryDDB {
	return &memoryDDB{items: make(map[string]map[string]int)}
}

func (d *memoryDDB) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	uri := in.Item["base_uri"].(*types.AttributeValueMemberS).Value
	name := in.Item["name"].(*types.AttributeValueMemberS).Value
	if d.items[uri] == nil {
		d.items[uri] = make(map[string]int)
	}
	d.items[uri][name]++
	return &dynamodb.PutItemOutput{}, nil
}

func (d *memoryDDB) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	uri := in.Key["base_uri"].(*types.AttributeValueMemberS).Value
	name := in.Key["name"].(*types.AttributeValueMemberS).Value
	delete(d.items[uri], name)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (d *memoryDDB) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	uri := in.ExpressionAttributeValues[":uri"].(*types.AttributeValueMemberS).Value
	prefix := ""
	if p, ok := in.ExpressionAttributeValues[":prefix"].(*types.AttributeValueMemberS); ok {
		prefix = p.Value
	}

	var names []string
	for name := range d.items[uri] {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	start := 0
	if in.ExclusiveStartKey != nil {
		last := in.ExclusiveStartKey["name"].(*types.AttributeValueMemberS).Value
		start = sort.SearchStrings(names, last) + 1
	}
	if start >= len(names) {
		return &dynamodb.QueryOutput{}, nil
	}
	name := names[start]
	out := &dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{{"name": &types.AttributeValueMemberS{Value: name}}},
	}
	if start+1 < len(names) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"base_uri": &types.AttributeValueMemberS{Value: uri},
			"name":     &types.AttributeValueMemberS{Value: name},
		}
	}
	return out, nil
}

func newIndexedStore(t *testing.T) (*IndexedStore, *MockS3Client, *memoryDDB) {
	t.Helper()

	client := new(MockS3Client)
	ddb := newMemoryDDB()
	return NewIndexedStore(NewStore(client, "bucket", WithPrefix("cache")), ddb, "aggcache-index", "s3://bucket/cache"), client, ddb
}

func TestIndexedStore_PutList(t *testing.T) {
	store, client, _ := newIndexedStore(t)
	ctx := context.Background()

	client.On("PutObject", mock.Anything, mock.Anything).Return(&s3.PutObjectOutput{}, nil)

	for _, name := range []string{"segments/b.hdr", "segments/a.hdr", "bodies/a.body"} {
		require.NoError(t, store.Put(ctx, name, []byte("x")))
	}

	names, err := store.List(ctx, "segments/")
	require.NoError(t, err)
	assert.Equal(t, []string{"segments/a.hdr", "segments/b.hdr"}, names)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestIndexedStore_PutFailsBeforeIndexing(t *testing.T) {
	store, client, ddb := newIndexedStore(t)
	ctx := context.Background()

	client.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("denied"))

	require.Error(t, store.Put(ctx, "a", []byte("x")))
	assert.Empty(t, ddb.items["s3://bucket/cache"])
}

func TestIndexedStore_IndexError(t *testing.T) {
	store, client, ddb := newIndexedStore(t)
	ddb.err = errors.New("throttled")

	client.On("PutObject", mock.Anything, mock.Anything).Return(&s3.PutObjectOutput{}, nil)

	err := store.Put(context.Background(), "a", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestIndexedStore_DeleteUnindexes(t *testing.T) {
	store, client, _ := newIndexedStore(t)
	ctx := context.Background()

	client.On("PutObject", mock.Anything, mock.Anything).Return(&s3.PutObjectOutput{}, nil)
	client.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return aws.ToString(in.Key) == "cache/a"
	})).Return(&s3.DeleteObjectOutput{}, nil)

	require.NoError(t, store.Put(ctx, "a", []byte("x")))
	require.NoError(t, store.Delete(ctx, "a"))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
	client.AssertExpectations(t)
}

func TestIndexedStore_Get(t *testing.T) {
	store, client, _ := newIndexedStore(t)

	client.On("GetObject", mock.Anything, mock.Anything).
		Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("payload"))}, nil)

	data, err := store.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}
