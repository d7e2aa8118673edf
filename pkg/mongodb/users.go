package mongodb

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/asystentai/backend/pkg/ledger"
)

const usersCollection = "users"

type userDoc struct {
	ID           string `bson:"_id"`
	Email        string `bson:"email"`
	Name         string `bson:"name"`
	PasswordHash string `bson:"password_hash"`
	AccountType  string `bson:"account_type"`

	CompanyName     string `bson:"company_name,omitempty"`
	ContactEmail    string `bson:"contact_email,omitempty"`
	Street          string `bson:"street,omitempty"`
	StreetNumber    string `bson:"street_number,omitempty"`
	ApartmentNumber string `bson:"apartment_number,omitempty"`
	City            string `bson:"city,omitempty"`
	PostalCode      string `bson:"postal_code,omitempty"`
	TaxID           string `bson:"tax_id,omitempty"`

	TokenBalance     int64   `bson:"token_balance"`
	PlanID           *string `bson:"plan_id,omitempty"`
	ReferralCount    int     `bson:"referral_count"`
	ReferralPaid     bool    `bson:"referral_paid"`
	BalanceDeficient bool    `bson:"balance_deficient"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toUserDoc(u *ledger.User) userDoc {
	return userDoc{
		ID:               u.ID.String(),
		Email:            strings.ToLower(u.Email),
		Name:             u.Name,
		PasswordHash:     u.PasswordHash,
		AccountType:      string(u.AccountType),
		CompanyName:      u.CompanyName,
		ContactEmail:     u.ContactEmail,
		Street:           u.Street,
		StreetNumber:     u.StreetNumber,
		ApartmentNumber:  u.ApartmentNumber,
		City:             u.City,
		PostalCode:       u.PostalCode,
		TaxID:            u.TaxID,
		TokenBalance:     u.TokenBalance,
		PlanID:           u.PlanID,
		ReferralCount:    u.ReferralCount,
		ReferralPaid:     u.ReferralPaid,
		BalanceDeficient: u.BalanceDeficient,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

func (d userDoc) toUser() (*ledger.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	return &ledger.User{
		ID:               id,
		Email:            d.Email,
		Name:             d.Name,
		PasswordHash:     d.PasswordHash,
		AccountType:      ledger.AccountType(d.AccountType),
		CompanyName:      d.CompanyName,
		ContactEmail:     d.ContactEmail,
		Street:           d.Street,
		StreetNumber:     d.StreetNumber,
		ApartmentNumber:  d.ApartmentNumber,
		City:             d.City,
		PostalCode:       d.PostalCode,
		TaxID:            d.TaxID,
		TokenBalance:     d.TokenBalance,
		PlanID:           d.PlanID,
		ReferralCount:    d.ReferralCount,
		ReferralPaid:     d.ReferralPaid,
		BalanceDeficient: d.BalanceDeficient,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}, nil
}

// UserStore is the Mongo-backed ledger.UserStore.
type UserStore struct {
	coll *mongo.Collection
}

// NewUserStore creates the user store on the given database.
func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{coll: db.Collection(usersCollection)}
}

// EnsureIndexes creates the unique email index. Call once at startup.
func (s *UserStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (s *UserStore) Create(ctx context.Context, user *ledger.User) error {
	_, err := s.coll.InsertOne(ctx, toUserDoc(user))
	if mongo.IsDuplicateKeyError(err) {
		return ledger.ErrUserAlreadyExists
	}
	return err
}

func (s *UserStore) FindByID(ctx context.Context, id uuid.UUID) (*ledger.User, error) {
	return s.findOne(ctx, bson.M{"_id": id.String()})
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*ledger.User, error) {
	return s.findOne(ctx, bson.M{"email": strings.ToLower(email)})
}

func (s *UserStore) Save(ctx context.Context, user *ledger.User) error {
	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": user.ID.String()}, toUserDoc(user))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ledger.ErrUserNotFound
	}
	return nil
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M) (*ledger.User, error) {
	var doc userDoc
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ledger.ErrUserNotFound
		}
		return nil, err
	}
	return doc.toUser()
}
