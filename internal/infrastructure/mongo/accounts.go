package mongoinfra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-mystery-message/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const accountsCollection = "accounts"

// AccountRepo stores one document per account with messages embedded,
// the same shape the DynamoDB store uses.
type AccountRepo struct {
	coll *mongo.Collection
}

// NewAccountRepo ensures the unique username/email indexes exist.
func NewAccountRepo(ctx context.Context, db *mongo.Database) (*AccountRepo, error) {
	coll := db.Collection(accountsCollection)
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: domain.FieldUsername, Value: 1}},
			Options: options.Index().SetUnique(true).SetName("username_unique"),
		},
		{
			Keys:    bson.D{{Key: domain.FieldEmail, Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_unique"),
		},
		{
			Keys:    bson.D{{Key: domain.FieldIsVerified, Value: 1}},
			Options: options.Index().SetName("is_verified_idx"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create account indexes: %w", err)
	}
	return &AccountRepo{coll: coll}, nil
}

func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) error {
	if a.Messages == nil {
		a.Messages = []domain.Message{}
	}
	_, err := r.coll.InsertOne(ctx, a)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("username or email already stored: %w", domain.ErrConflict)
	}
	return err
}

func (r *AccountRepo) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"_id": accountID})
}

func (r *AccountRepo) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{domain.FieldUsername: username})
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{domain.FieldEmail: email})
}

func (r *AccountRepo) Update(ctx context.Context, accountID string, updates map[string]interface{}) error {
	set := bson.M{domain.FieldUpdatedAt: time.Now().UTC()}
	for k, v := range updates {
		set[k] = v
	}
	res, err := r.coll.UpdateByID(ctx, accountID, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("username or email already stored: %w", domain.ErrConflict)
		}
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *AccountRepo) Delete(ctx context.Context, accountID string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": accountID})
	return err
}

func (r *AccountRepo) ListVerified(ctx context.Context) ([]domain.AccountSummary, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1, domain.FieldUsername: 1})
	cur, err := r.coll.Find(ctx, bson.M{domain.FieldIsVerified: true}, opts)
	if err != nil {
		return nil, err
	}
	out := []domain.AccountSummary{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *AccountRepo) AppendMessage(ctx context.Context, accountID string, m domain.Message) error {
	res, err := r.coll.UpdateByID(ctx, accountID, bson.M{
		"$push": bson.M{domain.FieldMessages: m},
		"$set":  bson.M{domain.FieldUpdatedAt: time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *AccountRepo) RemoveMessage(ctx context.Context, accountID, messageID string) (bool, error) {
	res, err := r.coll.UpdateByID(ctx, accountID, bson.M{
		"$pull": bson.M{domain.FieldMessages: bson.M{"_id": messageID}},
	})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// ListMessages runs a single-document aggregation: the account is matched,
// its messages unwound, sorted newest first and regrouped, so the sort sees
// one snapshot of the document.
func (r *AccountRepo) ListMessages(ctx context.Context, accountID string) ([]domain.Message, error) {
	cur, err := r.coll.Aggregate(ctx, listMessagesPipeline(accountID))
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Messages []domain.Message `bson:"messages"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	out := make([]domain.Message, 0, len(rows[0].Messages))
	for _, m := range rows[0].Messages {
		if m.MessageID != "" {
			out = append(out, m)
		}
	}
	return out, nil
}

func listMessagesPipeline(accountID string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "_id", Value: accountID}}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$" + domain.FieldMessages},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: domain.FieldMessages + ".created_at", Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$_id"},
			{Key: domain.FieldMessages, Value: bson.D{{Key: "$push", Value: "$" + domain.FieldMessages}}},
		}}},
	}
}

func (r *AccountRepo) findOne(ctx context.Context, filter bson.M) (*domain.Account, error) {
	var a domain.Account
	if err := r.coll.FindOne(ctx, filter).Decode(&a); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	return &a, nil
}
