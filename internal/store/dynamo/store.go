// Package dynamo is the DynamoDB-backed document store. Documents are decoded
// with attributevalue straight into the model document types, then normalized.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/studymate/daily-digest/internal/model"
	"github.com/studymate/daily-digest/internal/store"
)

// API is the subset of the DynamoDB client the store calls. Tests inject a
// stub that serves items from memory.
type API interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Tables names the three tables the store reads.
type Tables struct {
	Schedules  string // pk userId
	Profiles   string // pk userId
	DailyStats string // pk userId, sk date (YYYY-MM-DD)
}

// TablesForProject derives table names from the project identifier, e.g.
// "studymate" → "studymate-email_schedules".
func TablesForProject(project string) Tables {
	return Tables{
		Schedules:  project + "-email_schedules",
		Profiles:   project + "-users",
		DailyStats: project + "-daily_stats",
	}
}

// timestampLayout is fixed-width so stored values order lexically, which the
// monotonic condition on lastEmailSent relies on. It still parses as RFC 3339.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// Store reads and updates documents in DynamoDB.
type Store struct {
	api    API
	tables Tables
	now    func() time.Time
	logger *slog.Logger
}

var _ store.Backend = (*Store)(nil)

// New constructs a Store. DynamoDB has no server-side timestamp, so the store
// stamps lastEmailSent from the local UTC clock.
func New(api API, tables Tables, logger *slog.Logger) *Store {
	return &Store{
		api:    api,
		tables: tables,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// WithClock replaces the clock. Used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// ListSchedules scans the schedules table page by page.
func (s *Store) ListSchedules(ctx context.Context) ([]model.Schedule, error) {
	paginator := dynamodb.NewScanPaginator(s.api, &dynamodb.ScanInput{
		TableName: aws.String(s.tables.Schedules),
	})

	var out []model.Schedule
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("store: scan schedules: %w", err)
		}
		for _, item := range page.Items {
			userID := stringAttr(item, "userId")
			if userID == "" {
				s.logger.Warn("store: schedule item without userId, ignoring")
				continue
			}
			var doc model.ScheduleDocument
			if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
				return nil, fmt.Errorf("store: decode schedule %s: %w", userID, err)
			}
			out = append(out, doc.Normalize(userID))
		}
	}
	return out, nil
}

// GetSchedule reads one record. A missing item is store.ErrNotFound.
func (s *Store) GetSchedule(ctx context.Context, userID string) (model.Schedule, error) {
	var doc model.ScheduleDocument
	found, err := s.getItem(ctx, s.tables.Schedules, map[string]types.AttributeValue{
		"userId": &types.AttributeValueMemberS{Value: userID},
	}, &doc)
	if err != nil {
		return model.Schedule{}, fmt.Errorf("store: get schedule: %w", err)
	}
	if !found {
		return model.Schedule{}, store.ErrNotFound
	}
	return doc.Normalize(userID), nil
}

// MarkEmailSent sets lastEmailSent to now unless a later value is already
// stored. A failed condition means another writer got there first and is not
// an error; a missing record is ErrNotFound.
func (s *Store) MarkEmailSent(ctx context.Context, userID string) error {
	ts := s.now().UTC().Format(timestampLayout)

	_, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tables.Schedules),
		Key: map[string]types.AttributeValue{
			"userId": &types.AttributeValueMemberS{Value: userID},
		},
		UpdateExpression:    aws.String("SET lastEmailSent = :ts"),
		ConditionExpression: aws.String("attribute_exists(userId) AND (attribute_not_exists(lastEmailSent) OR lastEmailSent < :ts)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ts": &types.AttributeValueMemberS{Value: ts},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})

	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if len(ccf.Item) == 0 {
			return store.ErrNotFound
		}
		s.logger.Debug("store: lastEmailSent already newer, keeping it", "user_id", userID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: mark email sent: %w", err)
	}
	return nil
}

// DailyStats reads the profile (for the streak) and the day's aggregate.
func (s *Store) DailyStats(ctx context.Context, userID string, day time.Time) (model.DailyStats, error) {
	var profile model.ProfileDocument
	found, err := s.getItem(ctx, s.tables.Profiles, map[string]types.AttributeValue{
		"userId": &types.AttributeValueMemberS{Value: userID},
	}, &profile)
	if err != nil {
		return model.DailyStats{}, fmt.Errorf("store: get profile: %w", err)
	}
	var profilePtr *model.ProfileDocument
	if found {
		profilePtr = &profile
	}

	var doc model.StatsDocument
	found, err = s.getItem(ctx, s.tables.DailyStats, map[string]types.AttributeValue{
		"userId": &types.AttributeValueMemberS{Value: userID},
		"date":   &types.AttributeValueMemberS{Value: model.StatsDateKey(day)},
	}, &doc)
	if err != nil {
		return model.DailyStats{}, fmt.Errorf("store: get daily stats: %w", err)
	}
	var docPtr *model.StatsDocument
	if found {
		docPtr = &doc
	}

	return model.Normalize(docPtr, profilePtr), nil
}

func (s *Store) getItem(ctx context.Context, table string, key map[string]types.AttributeValue, dst any) (bool, error) {
	result, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       key,
	})
	if err != nil {
		return false, err
	}
	if result.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(result.Item, dst); err != nil {
		return false, fmt.Errorf("decode %s item: %w", table, err)
	}
	return true, nil
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if attr, ok := item[name].(*types.AttributeValueMemberS); ok {
		return attr.Value
	}
	return ""
}
