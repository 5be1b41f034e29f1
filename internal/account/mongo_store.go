package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type accountDocument struct {
	ID           string               `bson:"_id"`
	Branch       int                  `bson:"branch"`
	Number       int                  `bson:"number"`
	Name         string               `bson:"name"`
	Balance      primitive.Decimal128 `bson:"balance"`
	PromotedFrom *int                 `bson:"promoted_from,omitempty"`
}

func (d accountDocument) toAccount() (Account, error) {
	balance, err := decimal.NewFromString(d.Balance.String())
	if err != nil {
		return Account{}, fmt.Errorf("parse balance %s: %w", d.Balance.String(), err)
	}
	return Account{
		ID:           d.ID,
		Branch:       d.Branch,
		Number:       d.Number,
		Name:         d.Name,
		Balance:      balance,
		PromotedFrom: d.PromotedFrom,
	}, nil
}

var keyOrder = bson.D{{Key: "branch", Value: 1}, {Key: "number", Value: 1}}

var sortFields = map[SortField]string{
	SortByBalance: "balance",
	SortByName:    "name",
	SortByNumber:  "number",
	SortByBranch:  "branch",
}

// MongoStore keeps accounts as documents of a single collection.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore constructs a store over coll. Single-document writes are
// atomic; multi-document operations are not transactional.
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

// Migrate creates the unique (branch, number) index.
func (s *MongoStore) Migrate(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: keyOrder, Options: options.Index().SetUnique(true).SetName("branch_number_unique")},
		{Keys: bson.D{{Key: "number", Value: 1}}, Options: options.Index().SetName("number")},
	})
	if err != nil {
		return unavailable("create indexes", err)
	}
	return nil
}

// InsertMany stores accounts created outside the ledger.
func (s *MongoStore) InsertMany(ctx context.Context, accounts []Account) error {
	if len(accounts) == 0 {
		return nil
	}
	docs := make([]any, 0, len(accounts))
	for _, a := range accounts {
		if a.Balance.IsNegative() {
			return ErrNegativeBalance
		}
		balance, err := toDecimal128(a.Balance)
		if err != nil {
			return err
		}
		id := a.ID
		if id == "" {
			id = uuid.NewString()
		}
		docs = append(docs, accountDocument{
			ID:           id,
			Branch:       a.Branch,
			Number:       a.Number,
			Name:         a.Name,
			Balance:      balance,
			PromotedFrom: a.PromotedFrom,
		})
	}
	if _, err := s.coll.InsertMany(ctx, docs); err != nil {
		return translateMongoError("insert accounts", err)
	}
	return nil
}

// FindOne returns the first account matching filter.
func (s *MongoStore) FindOne(ctx context.Context, filter Filter) (Account, error) {
	query, err := mongoFilter(filter)
	if err != nil {
		return Account{}, err
	}
	var doc accountDocument
	if err := s.coll.FindOne(ctx, query, options.FindOne().SetSort(keyOrder)).Decode(&doc); err != nil {
		return Account{}, translateMongoError("find account", err)
	}
	return doc.toAccount()
}

// FindMany lists accounts matching filter.
func (s *MongoStore) FindMany(ctx context.Context, filter Filter, opts FindOptions) ([]Account, error) {
	query, err := mongoFilter(filter)
	if err != nil {
		return nil, err
	}
	findOpts := options.Find().SetSort(mongoSort(opts.Sort))
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	cur, err := s.coll.Find(ctx, query, findOpts)
	if err != nil {
		return nil, translateMongoError("find accounts", err)
	}
	var docs []accountDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translateMongoError("decode accounts", err)
	}
	out := make([]Account, 0, len(docs))
	for _, d := range docs {
		a, err := d.toAccount()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// UpdateOne applies update with findOneAndUpdate, so the filter and the $inc
// are evaluated atomically against the same document version.
func (s *MongoStore) UpdateOne(ctx context.Context, filter Filter, update Update) (Account, error) {
	guarded := filter
	// Never let the $inc persist a negative balance, whatever the caller asked.
	if update.BalanceDelta.IsNegative() {
		floor := update.BalanceDelta.Neg()
		if guarded.MinBalance == nil || guarded.MinBalance.LessThan(floor) {
			guarded = guarded.WithMinBalance(floor)
		}
	}
	query, err := mongoFilter(guarded)
	if err != nil {
		return Account{}, err
	}
	delta, err := toDecimal128(update.BalanceDelta)
	if err != nil {
		return Account{}, err
	}
	set := bson.D{}
	if update.Branch != nil {
		set = append(set, bson.E{Key: "branch", Value: *update.Branch})
	}
	if update.PromotedFrom != nil {
		set = append(set, bson.E{Key: "promoted_from", Value: *update.PromotedFrom})
	}
	change := bson.D{{Key: "$inc", Value: bson.D{{Key: "balance", Value: delta}}}}
	if len(set) > 0 {
		change = append(change, bson.E{Key: "$set", Value: set})
	}

	var doc accountDocument
	err = s.coll.FindOneAndUpdate(ctx, query, change,
		options.FindOneAndUpdate().SetSort(keyOrder).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		err = translateMongoError("update account", err)
		if errors.Is(err, ErrNotFound) && update.BalanceDelta.IsNegative() {
			if _, findErr := s.FindOne(ctx, filter); findErr == nil {
				return Account{}, ErrNegativeBalance
			}
		}
		return Account{}, err
	}
	return doc.toAccount()
}

// DeleteOne removes the first matching account and returns it.
func (s *MongoStore) DeleteOne(ctx context.Context, filter Filter) (Account, error) {
	query, err := mongoFilter(filter)
	if err != nil {
		return Account{}, err
	}
	var doc accountDocument
	if err := s.coll.FindOneAndDelete(ctx, query, options.FindOneAndDelete().SetSort(keyOrder)).Decode(&doc); err != nil {
		return Account{}, translateMongoError("delete account", err)
	}
	return doc.toAccount()
}

// MongoTxStore adds multi-document transactions to MongoStore. It needs a
// replica set or sharded cluster.
type MongoTxStore struct {
	*MongoStore
	client *mongo.Client
}

// NewMongoTxStore constructs a transactional store over coll.
func NewMongoTxStore(client *mongo.Client, coll *mongo.Collection) *MongoTxStore {
	return &MongoTxStore{MongoStore: NewMongoStore(coll), client: client}
}

// WithinTx runs fn inside a session transaction. The driver retries fn on
// transient transaction errors, so fn must be safe to run more than once.
func (s *MongoTxStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx, s.MongoStore)
	}
	session, err := s.client.StartSession()
	if err != nil {
		return unavailable("start session", err)
	}
	defer session.EndSession(ctx)

	var fnErr error
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		fnErr = fn(sc, s.MongoStore)
		return nil, fnErr
	})
	if err != nil {
		if fnErr != nil {
			return fnErr
		}
		return unavailable("commit transaction", err)
	}
	return nil
}

func mongoFilter(f Filter) (bson.D, error) {
	query := bson.D{}
	if f.Branch != nil {
		query = append(query, bson.E{Key: "branch", Value: *f.Branch})
	}
	if f.Number != nil {
		query = append(query, bson.E{Key: "number", Value: *f.Number})
	}
	if f.ExcludeBranch != nil {
		if f.Branch == nil {
			query = append(query, bson.E{Key: "branch", Value: bson.D{{Key: "$ne", Value: *f.ExcludeBranch}}})
		} else if *f.Branch == *f.ExcludeBranch {
			// Contradictory filter; match nothing.
			query = append(query, bson.E{Key: "_id", Value: bson.D{{Key: "$exists", Value: false}}})
		}
	}
	if f.MinBalance != nil {
		min, err := toDecimal128(*f.MinBalance)
		if err != nil {
			return nil, err
		}
		query = append(query, bson.E{Key: "balance", Value: bson.D{{Key: "$gte", Value: min}}})
	}
	return query, nil
}

func mongoSort(keys []SortKey) bson.D {
	sort := bson.D{}
	seen := map[string]bool{}
	for _, k := range keys {
		field, ok := sortFields[k.Field]
		if !ok || seen[field] {
			continue
		}
		seen[field] = true
		dir := 1
		if k.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: field, Value: dir})
	}
	for _, e := range keyOrder {
		if !seen[e.Key] {
			sort = append(sort, e)
		}
	}
	return sort
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("convert %s to decimal128: %w: %w", d.String(), ErrInvalidValue, err)
	}
	return v, nil
}

func translateMongoError(op string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", op, ErrDuplicateKey)
	default:
		return unavailable(op, err)
	}
}
