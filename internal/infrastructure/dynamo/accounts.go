package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-mystery-message/internal/domain"
)

// itemAPI is the part of *dynamodb.Client the account store calls.
type itemAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// AccountRepo provides typed DynamoDB operations for the accounts table.
// One item per account; received messages live in the embedded "messages" list.
type AccountRepo struct {
	client    itemAPI
	tableName string
}

func NewAccountRepo(client itemAPI, tableName string) *AccountRepo {
	return &AccountRepo{client: client, tableName: tableName}
}

func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) error {
	if a.Messages == nil {
		a.Messages = []domain.Message{}
	}
	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": attrAccountID},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("account %s already exists: %w", a.AccountID, domain.ErrConflict)
	}
	return err
}

func (r *AccountRepo) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(attrAccountID, accountID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	var a domain.Account
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return r.queryGSI(ctx, indexUsername, domain.FieldUsername, username)
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.queryGSI(ctx, indexEmail, domain.FieldEmail, email)
}

func (r *AccountRepo) Update(ctx context.Context, accountID string, updates map[string]interface{}) error {
	fields := make(map[string]interface{}, len(updates)+1)
	for k, v := range updates {
		fields[k] = v
	}
	fields[domain.FieldUpdatedAt] = time.Now().UTC()
	ue, err := buildUpdateExpr(fields)
	if err != nil {
		return err
	}
	ue.Names["#id"] = attrAccountID
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(attrAccountID, accountID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	return err
}

func (r *AccountRepo) Delete(ctx context.Context, accountID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(attrAccountID, accountID),
	})
	return err
}

// ListVerified scans the whole table for verified accounts and projects
// id and username only. The listing is intentionally unpaginated.
func (r *AccountRepo) ListVerified(ctx context.Context) ([]domain.AccountSummary, error) {
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:            aws.String(r.tableName),
		FilterExpression:     aws.String("#v = :t"),
		ProjectionExpression: aws.String("#id, #u"),
		ExpressionAttributeNames: map[string]string{
			"#v":  domain.FieldIsVerified,
			"#id": attrAccountID,
			"#u":  domain.FieldUsername,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	out := []domain.AccountSummary{}
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var batch []domain.AccountSummary
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

// AppendMessage appends m to the account's messages in a single UpdateItem,
// so concurrent senders never overwrite each other.
func (r *AccountRepo) AppendMessage(ctx context.Context, accountID string, m domain.Message) error {
	msgList, err := attributevalue.Marshal([]domain.Message{m})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	now, err := attributevalue.Marshal(time.Now().UTC())
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(attrAccountID, accountID),
		UpdateExpression:    aws.String("SET #m = list_append(if_not_exists(#m, :empty), :msg), #u = :now"),
		ConditionExpression: aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#m":  fieldMessages,
			"#u":  domain.FieldUpdatedAt,
			"#id": attrAccountID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":msg":   msgList,
			":now":   now,
		},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	return err
}

// RemoveMessage deletes the embedded message with messageID. DynamoDB can only
// remove list elements by index, so the index is located with a consistent read
// and the REMOVE is conditioned on the element still carrying messageID.
func (r *AccountRepo) RemoveMessage(ctx context.Context, accountID, messageID string) (bool, error) {
	for attempt := 0; attempt < maxRemoveAttempts; attempt++ {
		out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:                aws.String(r.tableName),
			Key:                      strKey(attrAccountID, accountID),
			ConsistentRead:           aws.Bool(true),
			ProjectionExpression:     aws.String("#m"),
			ExpressionAttributeNames: map[string]string{"#m": fieldMessages},
		})
		if err != nil {
			return false, err
		}
		if out.Item == nil {
			return false, nil
		}
		idx := messageIndex(out.Item, messageID)
		if idx < 0 {
			return false, nil
		}
		_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:           aws.String(r.tableName),
			Key:                 strKey(attrAccountID, accountID),
			UpdateExpression:    aws.String(fmt.Sprintf("REMOVE #m[%d]", idx)),
			ConditionExpression: aws.String(fmt.Sprintf("#m[%d].#mid = :mid", idx)),
			ExpressionAttributeNames: map[string]string{
				"#m":   fieldMessages,
				"#mid": attrMessageID,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":mid": &types.AttributeValueMemberS{Value: messageID},
			},
		})
		if isConditionFailed(err) {
			continue
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return false, fmt.Errorf("remove message %s: list kept changing after %d attempts", messageID, maxRemoveAttempts)
}

// ListMessages reads the account item consistently and returns its messages
// newest first.
func (r *AccountRepo) ListMessages(ctx context.Context, accountID string) ([]domain.Message, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      strKey(attrAccountID, accountID),
		ConsistentRead:           aws.Bool(true),
		ProjectionExpression:     aws.String("#id, #m"),
		ExpressionAttributeNames: map[string]string{"#id": attrAccountID, "#m": fieldMessages},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	var doc struct {
		Messages []domain.Message `dynamodbav:"messages"`
	}
	if err := attributevalue.UnmarshalMap(out.Item, &doc); err != nil {
		return nil, err
	}
	msgs := doc.Messages
	if msgs == nil {
		msgs = []domain.Message{}
	}
	domain.SortNewestFirst(msgs)
	return msgs, nil
}

func (r *AccountRepo) queryGSI(ctx context.Context, index, attr, value string) (*domain.Account, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: value}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	var a domain.Account
	if err := attributevalue.UnmarshalMap(out.Items[0], &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return err != nil && errors.As(err, &ccf)
}
