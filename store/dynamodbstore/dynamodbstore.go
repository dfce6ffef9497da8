// Package dynamodbstore adapts Amazon DynamoDB to store.Store, grounded on
// the teacher package's dynamolock backend: the same client, table, and
// condition-expression style, generalized from a TTL-only boolean lock item
// to an (owner, version) CAS witness.
package dynamodbstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"go.companyinfo.dev/dynamolock/store"
)

const (
	defaultNameField     = "lock_name"
	defaultOwnerField    = "owner"
	defaultVersionField  = "version"
	defaultDurationField = "duration_ms"
	defaultPayloadField  = "payload"
)

// Store adapts a DynamoDB table to store.Store via TransactWriteItems (for
// the create-if-absent path, matching the teacher's transaction use) and
// UpdateItem/DeleteItem with ConditionExpression for the CAS paths.
type Store struct {
	client *dynamodb.Client
	table  string

	nameField, ownerField, versionField, durationField, payloadField string
}

// Option customizes field names for an existing table schema.
type Option func(*Store)

// WithFieldNames overrides the default attribute names.
func WithFieldNames(name, owner, version, duration, payload string) Option {
	return func(s *Store) {
		s.nameField, s.ownerField, s.versionField, s.durationField, s.payloadField = name, owner, version, duration, payload
	}
}

// New returns a Store backed by client against table.
func New(client *dynamodb.Client, table string, opts ...Option) *Store {
	s := &Store{
		client:        client,
		table:         table,
		nameField:     defaultNameField,
		ownerField:    defaultOwnerField,
		versionField:  defaultVersionField,
		durationField: defaultDurationField,
		payloadField:  defaultPayloadField,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BackendName labels spans and metrics emitted against this store.
func (s *Store) BackendName() string { return "dynamodb" }

func (s *Store) Get(ctx context.Context, name string) (store.Item, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.keyOf(name),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return store.Item{}, fmt.Errorf("dynamodbstore: get item: %w", err)
	}
	if len(out.Item) == 0 {
		return store.Item{}, store.ErrNotFound
	}
	return s.fromAttributes(out.Item), nil
}

func (s *Store) PutIfAbsent(ctx context.Context, item store.Item) (store.Outcome, error) {
	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(s.table),
					Item:                s.toAttributes(item),
					ConditionExpression: aws.String(fmt.Sprintf("attribute_not_exists(%s)", s.nameField)),
				},
			},
		},
	})
	return s.classifyWriteErr(err)
}

func (s *Store) PutIfMatches(ctx context.Context, name, expectedOwner string, expectedVersion uint64, next store.Item) (store.Outcome, error) {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key:       s.keyOf(name),
		UpdateExpression: aws.String(fmt.Sprintf("SET %s = :owner, %s = :version, %s = :duration, %s = :payload",
			s.ownerField, s.versionField, s.durationField, s.payloadField)),
		ConditionExpression: aws.String(fmt.Sprintf("%s = :expectedOwner AND %s = :expectedVersion", s.ownerField, s.versionField)),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner":           &types.AttributeValueMemberS{Value: next.Owner},
			":version":         &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", next.Version)},
			":duration":        &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", next.DurationMs)},
			":payload":         &types.AttributeValueMemberB{Value: next.Payload},
			":expectedOwner":   &types.AttributeValueMemberS{Value: expectedOwner},
			":expectedVersion": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
		},
	})
	return s.classifyWriteErr(err)
}

func (s *Store) DeleteIfMatches(ctx context.Context, name, expectedOwner string, expectedVersion uint64) (store.Outcome, error) {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.table),
		Key:                 s.keyOf(name),
		ConditionExpression: aws.String(fmt.Sprintf("%s = :expectedOwner AND %s = :expectedVersion", s.ownerField, s.versionField)),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expectedOwner":   &types.AttributeValueMemberS{Value: expectedOwner},
			":expectedVersion": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
		},
	})
	return s.classifyWriteErr(err)
}

func (s *Store) keyOf(name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{s.nameField: &types.AttributeValueMemberS{Value: name}}
}

func (s *Store) toAttributes(item store.Item) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		s.nameField:     &types.AttributeValueMemberS{Value: item.Name},
		s.ownerField:    &types.AttributeValueMemberS{Value: item.Owner},
		s.versionField:  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", item.Version)},
		s.durationField: &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", item.DurationMs)},
		s.payloadField:  &types.AttributeValueMemberB{Value: item.Payload},
	}
}

func (s *Store) fromAttributes(attrs map[string]types.AttributeValue) store.Item {
	var item store.Item
	if v, ok := attrs[s.nameField].(*types.AttributeValueMemberS); ok {
		item.Name = v.Value
	}
	if v, ok := attrs[s.ownerField].(*types.AttributeValueMemberS); ok {
		item.Owner = v.Value
	}
	if v, ok := attrs[s.versionField].(*types.AttributeValueMemberN); ok {
		fmt.Sscanf(v.Value, "%d", &item.Version)
	}
	if v, ok := attrs[s.durationField].(*types.AttributeValueMemberN); ok {
		fmt.Sscanf(v.Value, "%d", &item.DurationMs)
	}
	if v, ok := attrs[s.payloadField].(*types.AttributeValueMemberB); ok {
		item.Payload = v.Value
	}
	return item
}

func (s *Store) classifyWriteErr(err error) (store.Outcome, error) {
	if err == nil {
		return store.OutcomeOK, nil
	}
	var cfe *types.ConditionalCheckFailedException
	if errors.As(err, &cfe) {
		return store.OutcomeConflict, err
	}
	var txnErr *types.TransactionCanceledException
	if errors.As(err, &txnErr) {
		for _, reason := range txnErr.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return store.OutcomeConflict, err
			}
		}
		return store.OutcomeTransient, err
	}
	var throughputErr *types.ProvisionedThroughputExceededException
	if errors.As(err, &throughputErr) {
		return store.OutcomeTransient, err
	}
	return store.OutcomeFatal, err
}
