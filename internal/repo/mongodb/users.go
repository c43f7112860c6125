package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/geocoder89/booknotes/internal/domain/user"
	"github.com/geocoder89/booknotes/internal/observability"
)

type userDoc struct {
	ID                    string     `bson:"_id"`
	Name                  string     `bson:"name"`
	Email                 string     `bson:"email"`
	ProfilePic            string     `bson:"profile_pic"`
	PasswordHash          string     `bson:"password_hash"`
	IsVerified            bool       `bson:"is_verified"`
	VerificationCodeHash  string     `bson:"verification_code_hash"`
	VerificationExpiresAt *time.Time `bson:"verification_expires_at"`
	ResetCodeHash         string     `bson:"reset_code_hash"`
	ResetExpiresAt        *time.Time `bson:"reset_expires_at"`
	VerificationAttempts  int        `bson:"verification_attempts"`
	ResetAttempts         int        `bson:"reset_attempts"`
	RefreshTokens         []string   `bson:"refresh_tokens"`
	CreatedAt             time.Time  `bson:"created_at"`
	UpdatedAt             time.Time  `bson:"updated_at"`
}

func toUserDoc(u user.User) userDoc {
	tokens := u.RefreshTokens
	if tokens == nil {
		tokens = []string{}
	}
	return userDoc{
		ID:                    u.ID,
		Name:                  u.Name,
		Email:                 u.Email,
		ProfilePic:            u.ProfilePic,
		PasswordHash:          u.PasswordHash,
		IsVerified:            u.IsVerified,
		VerificationCodeHash:  u.VerificationCodeHash,
		VerificationExpiresAt: u.VerificationExpiresAt,
		ResetCodeHash:         u.ResetCodeHash,
		ResetExpiresAt:        u.ResetExpiresAt,
		VerificationAttempts:  u.VerificationAttempts,
		ResetAttempts:         u.ResetAttempts,
		RefreshTokens:         tokens,
		CreatedAt:             u.CreatedAt,
		UpdatedAt:             u.UpdatedAt,
	}
}

func (d userDoc) toUser() user.User {
	tokens := d.RefreshTokens
	if tokens == nil {
		tokens = []string{}
	}
	return user.User{
		ID:                    d.ID,
		Name:                  d.Name,
		Email:                 d.Email,
		ProfilePic:            d.ProfilePic,
		PasswordHash:          d.PasswordHash,
		IsVerified:            d.IsVerified,
		VerificationCodeHash:  d.VerificationCodeHash,
		VerificationExpiresAt: d.VerificationExpiresAt,
		ResetCodeHash:         d.ResetCodeHash,
		ResetExpiresAt:        d.ResetExpiresAt,
		VerificationAttempts:  d.VerificationAttempts,
		ResetAttempts:         d.ResetAttempts,
		RefreshTokens:         tokens,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
	}
}

type UsersRepo struct {
	coll *mongo.Collection
	prom *observability.Prom
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) error {
	err := r.prom.ObserveStore(driver, "users.create", func() error {
		_, err := r.coll.InsertOne(ctx, toUserDoc(u))
		return err
	})
	if mongo.IsDuplicateKeyError(err) {
		return user.ErrEmailTaken
	}
	return err
}

func (r *UsersRepo) findOne(ctx context.Context, op string, filter bson.D) (user.User, error) {
	var doc userDoc

	err := r.prom.ObserveStore(driver, op, func() error {
		return r.coll.FindOne(ctx, filter).Decode(&doc)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return doc.toUser(), nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.findOne(ctx, "users.get_by_email", bson.D{{Key: "email", Value: user.NormalizeEmail(email)}})
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	return r.findOne(ctx, "users.get_by_id", bson.D{{Key: "_id", Value: id}})
}

// update applies update to the user and maps an unmatched id to
// user.ErrNotFound.
func (r *UsersRepo) update(ctx context.Context, op, userID string, set bson.D, extra ...bson.E) error {
	set = append(set, bson.E{Key: "updated_at", Value: time.Now().UTC()})
	doc := append(bson.D{{Key: "$set", Value: set}}, extra...)

	return r.prom.ObserveStore(driver, op, func() error {
		res, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: userID}}, doc)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return user.ErrNotFound
		}
		return nil
	})
}

func (r *UsersRepo) AddRefreshToken(ctx context.Context, userID, digest string) error {
	return r.update(ctx, "users.add_refresh_token", userID, bson.D{},
		bson.E{Key: "$push", Value: bson.D{{Key: "refresh_tokens", Value: digest}}},
	)
}

// conditional runs an update that only matches while digest is active. A
// miss is told apart from an unknown user with a second lookup.
func (r *UsersRepo) conditional(ctx context.Context, op, userID, digest string, update bson.D) (bool, error) {
	var matched int64

	err := r.prom.ObserveStore(driver, op, func() error {
		res, err := r.coll.UpdateOne(ctx,
			bson.D{{Key: "_id", Value: userID}, {Key: "refresh_tokens", Value: digest}},
			update,
		)
		if err != nil {
			return err
		}
		matched = res.MatchedCount
		return nil
	})
	if err != nil {
		return false, err
	}
	if matched > 0 {
		return true, nil
	}

	if _, err := r.GetByID(ctx, userID); err != nil {
		return false, err
	}
	return false, nil
}

func (r *UsersRepo) RemoveRefreshToken(ctx context.Context, userID, digest string) (bool, error) {
	return r.conditional(ctx, "users.remove_refresh_token", userID, digest, bson.D{
		{Key: "$pull", Value: bson.D{{Key: "refresh_tokens", Value: digest}}},
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: time.Now().UTC()}}},
	})
}

func (r *UsersRepo) ReplaceRefreshToken(ctx context.Context, userID, oldDigest, newDigest string) (bool, error) {
	// the positional operator rewrites the element matched by the filter
	return r.conditional(ctx, "users.replace_refresh_token", userID, oldDigest, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "refresh_tokens.$", Value: newDigest},
			{Key: "updated_at", Value: time.Now().UTC()},
		}},
	})
}

func (r *UsersRepo) SetCode(ctx context.Context, userID string, purpose user.CodePurpose, digest string, expiresAt time.Time) error {
	f := codeFieldsFor(purpose)

	return r.update(ctx, "users.set_code", userID, bson.D{
		{Key: f.hash, Value: digest},
		{Key: f.expires, Value: expiresAt.UTC()},
		{Key: f.attempts, Value: 0},
	})
}

type codeFields struct {
	hash, expires, attempts string
}

func codeFieldsFor(purpose user.CodePurpose) codeFields {
	if purpose == user.CodePasswordReset {
		return codeFields{"reset_code_hash", "reset_expires_at", "reset_attempts"}
	}
	return codeFields{"verification_code_hash", "verification_expires_at", "verification_attempts"}
}

// RecordCodeFailure runs as one pipeline update so the count and the clear
// cannot interleave with another guess.
func (r *UsersRepo) RecordCodeFailure(ctx context.Context, userID string, purpose user.CodePurpose, maxAttempts int) error {
	f := codeFieldsFor(purpose)
	spent := bson.D{{Key: "$gte", Value: bson.A{"$" + f.attempts, maxAttempts}}}

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: f.attempts, Value: bson.D{{Key: "$add", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$" + f.attempts, 0}}}, 1,
			}}}},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: f.hash, Value: bson.D{{Key: "$cond", Value: bson.A{spent, "", "$" + f.hash}}}},
			{Key: f.expires, Value: bson.D{{Key: "$cond", Value: bson.A{spent, nil, "$" + f.expires}}}},
		}}},
	}

	return r.prom.ObserveStore(driver, "users.record_code_failure", func() error {
		res, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: userID}}, pipeline)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return user.ErrNotFound
		}
		return nil
	})
}

func (r *UsersRepo) MarkVerified(ctx context.Context, userID string) error {
	return r.update(ctx, "users.mark_verified", userID, bson.D{
		{Key: "is_verified", Value: true},
		{Key: "verification_code_hash", Value: ""},
		{Key: "verification_expires_at", Value: nil},
		{Key: "verification_attempts", Value: 0},
	})
}

func (r *UsersRepo) ResetPassword(ctx context.Context, userID, passwordHash string) error {
	return r.update(ctx, "users.reset_password", userID, bson.D{
		{Key: "password_hash", Value: passwordHash},
		{Key: "reset_code_hash", Value: ""},
		{Key: "reset_expires_at", Value: nil},
		{Key: "reset_attempts", Value: 0},
		{Key: "refresh_tokens", Value: []string{}},
	})
}
