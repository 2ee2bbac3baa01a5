package mongo

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/domain"
)

func TestDocumentRoundTripThroughBSON(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	in := &domain.User{
		ID:           "u1",
		Email:        "A@X.com",
		PasswordHash: "$2a$12$hash",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Phone:        "+919876543210",
		SensitiveID:  domain.EncryptedField{Ciphertext: "aa", IV: "bb", AuthTag: "cc"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	raw, err := bson.Marshal(toDoc(in))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var asMap bson.M
	if err := bson.Unmarshal(raw, &asMap); err != nil {
		t.Fatalf("unmarshal map: %v", err)
	}
	if asMap["_id"] != "u1" || asMap["email"] != "a@x.com" {
		t.Fatalf("unexpected keys %v", asMap)
	}
	nested, ok := asMap["sensitive_id"].(bson.M)
	if !ok {
		t.Fatalf("sensitive_id must be an embedded document, got %T", asMap["sensitive_id"])
	}
	if nested["auth_tag"] != "cc" {
		t.Fatalf("unexpected triple %v", nested)
	}

	var doc userDoc
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal doc: %v", err)
	}
	out := doc.toDomain()
	if out.SensitiveID != in.SensitiveID || out.Email != "a@x.com" || !out.CreatedAt.Equal(now) {
		t.Fatalf("unexpected user %+v", out)
	}
}

func TestUpdateDocReplacesWholeTriple(t *testing.T) {
	set := updateDoc(&domain.User{
		ID:          "u1",
		FirstName:   "Grace",
		SensitiveID: domain.EncryptedField{Ciphertext: "c2", IV: "i2", AuthTag: "t2"},
		UpdatedAt:   time.Unix(10, 0),
	})
	if _, ok := set["email"]; ok {
		t.Fatalf("email must not be updated")
	}
	if _, ok := set["password_hash"]; ok {
		t.Fatalf("password hash must not be updated")
	}
	triple, ok := set["sensitive_id"].(encryptedDoc)
	if !ok || triple.Ciphertext != "c2" || triple.IV != "i2" || triple.AuthTag != "t2" {
		t.Fatalf("unexpected triple %#v", set["sensitive_id"])
	}
}
