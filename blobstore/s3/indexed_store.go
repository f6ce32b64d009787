package s3

import (
	"context"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/aggcache/blobstore"
)

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// IndexedStore stores blobs in S3 and records their names in DynamoDB, so
// List is strongly consistent across writers.
//
// Put writes the object before indexing it and Delete unindexes before
// removing the object: a listed name is always readable.
//
// Table schema:
//   - Partition key: base_uri (string) - the S3 bucket/prefix
//   - Sort key: name (string) - the blob name
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name aggcache-index \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=name,AttributeType=S \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=name,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type IndexedStore struct {
	store     *Store
	ddb       DDBClient
	tableName string
	baseURI   string
}

// NewIndexedStore creates a new S3+DynamoDB store.
// The baseURI should be "s3://bucket/prefix" format used as partition key.
func NewIndexedStore(store *Store, ddb DDBClient, tableName, baseURI string) *IndexedStore {
	return &IndexedStore{
		store:     store,
		ddb:       ddb,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

// Put uploads the object, then indexes it.
func (s *IndexedStore) Put(ctx context.Context, name string, data []byte) error {
	if err := s.store.Put(ctx, name, data); err != nil {
		return err
	}
	_, err := s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri": &types.AttributeValueMemberS{Value: s.baseURI},
			"name":     &types.AttributeValueMemberS{Value: name},
			"size":     &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", len(data))},
		},
	})
	if err != nil {
		return fmt.Errorf("s3: index %s: %w", name, err)
	}
	return nil
}

// Get reads the object from S3.
func (s *IndexedStore) Get(ctx context.Context, name string) ([]byte, error) {
	return s.store.Get(ctx, name)
}

// Delete unindexes the name, then removes the object.
func (s *IndexedStore) Delete(ctx context.Context, name string) error {
	_, err := s.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"base_uri": &types.AttributeValueMemberS{Value: s.baseURI},
			"name":     &types.AttributeValueMemberS{Value: name},
		},
	})
	if err != nil {
		return fmt.Errorf("s3: unindex %s: %w", name, err)
	}
	return s.store.Delete(ctx, name)
}

// List queries the index with a consistent read.
func (s *IndexedStore) List(ctx context.Context, prefix string) ([]string, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		ConsistentRead:         aws.Bool(true),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: s.baseURI},
		},
		ProjectionExpression:     aws.String("#n"),
		ExpressionAttributeNames: map[string]string{"#n": "name"},
	}
	if prefix != "" {
		input.KeyConditionExpression = aws.String("base_uri = :uri AND begins_with(#n, :prefix)")
		input.ExpressionAttributeValues[":prefix"] = &types.AttributeValueMemberS{Value: prefix}
	}

	var names []string
	paginator := dynamodb.NewQueryPaginator(s.ddb, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3: query index: %w", err)
		}
		for _, item := range page.Items {
			attr, ok := item["name"].(*types.AttributeValueMemberS)
			if !ok {
				return nil, fmt.Errorf("s3: index item without name")
			}
			names = append(names, attr.Value)
		}
	}
	slices.Sort(names)
	return names, nil
}

var _ blobstore.Store = (*IndexedStore)(nil)
