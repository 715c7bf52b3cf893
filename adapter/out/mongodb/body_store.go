// Package mongodb implements the body_text/body_html store MongoDB adapter.
package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mailtriage/core/port/out"
)

const collectionBodies = "email_bodies"

// compressionThreshold mirrors the original body adapter: only gzip content
// large enough that the compression overhead pays for itself.
const compressionThreshold = 1024

// BodyAdapter implements out.BodyStore, keeping the large, variable-size
// body_text/body_html split out of the relational ProcessedEmail row.
type BodyAdapter struct {
	collection *mongo.Collection
}

func NewBodyAdapter(db *mongo.Database) *BodyAdapter {
	return &BodyAdapter{collection: db.Collection(collectionBodies)}
}

// EnsureIndexes creates the unique (account_id, email_id) index this
// adapter's upsert relies on.
func (a *BodyAdapter) EnsureIndexes(ctx context.Context) error {
	_, err := a.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "account_id", Value: 1}, {Key: "email_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

type bodyDocument struct {
	AccountID    string `bson:"account_id"`
	EmailID      string `bson:"email_id"`
	Text         []byte `bson:"text"`
	HTML         []byte `bson:"html"`
	IsCompressed bool   `bson:"is_compressed"`
}

func (a *BodyAdapter) SaveBody(ctx context.Context, accountID, emailID string, bodyText, bodyHTML string) error {
	textBytes := []byte(bodyText)
	htmlBytes := []byte(bodyHTML)
	isCompressed := false

	if len(textBytes)+len(htmlBytes) > compressionThreshold {
		compressedText, err := compress(textBytes)
		if err != nil {
			return fmt.Errorf("compress body text: %w", err)
		}
		compressedHTML, err := compress(htmlBytes)
		if err != nil {
			return fmt.Errorf("compress body html: %w", err)
		}
		textBytes, htmlBytes = compressedText, compressedHTML
		isCompressed = true
	}

	doc := bodyDocument{
		AccountID:    accountID,
		EmailID:      emailID,
		Text:         textBytes,
		HTML:         htmlBytes,
		IsCompressed: isCompressed,
	}

	filter := bson.M{"account_id": accountID, "email_id": emailID}
	opts := options.Replace().SetUpsert(true)
	if _, err := a.collection.ReplaceOne(ctx, filter, doc, opts); err != nil {
		return fmt.Errorf("save email body: %w", err)
	}
	return nil
}

func (a *BodyAdapter) GetBody(ctx context.Context, accountID, emailID string) (string, string, error) {
	var doc bodyDocument
	filter := bson.M{"account_id": accountID, "email_id": emailID}
	if err := a.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return "", "", nil
		}
		return "", "", fmt.Errorf("get email body: %w", err)
	}

	textBytes, htmlBytes := doc.Text, doc.HTML
	if doc.IsCompressed {
		var err error
		textBytes, err = decompress(doc.Text)
		if err != nil {
			return "", "", fmt.Errorf("decompress body text: %w", err)
		}
		htmlBytes, err = decompress(doc.HTML)
		if err != nil {
			return "", "", fmt.Errorf("decompress body html: %w", err)
		}
	}
	return string(textBytes), string(htmlBytes), nil
}

func compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

var _ out.BodyStore = (*BodyAdapter)(nil)
