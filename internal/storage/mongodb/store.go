// Package mongodb implements the record store and response ledger on
// MongoDB.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sirosfoundation/go-nfe/pkg/contingency"
	"github.com/sirosfoundation/go-nfe/pkg/document"
	"github.com/sirosfoundation/go-nfe/pkg/soap"
)

// Store implements contingency.RecordStore and contingency.ResponseLog
// using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	records   *mongo.Collection
	responses *mongo.Collection
}

var (
	_ contingency.RecordStore = (*Store)(nil)
	_ contingency.ResponseLog = (*Store)(nil)
)

// Config holds MongoDB connection settings
type Config struct {
	URI      string
	Database string
}

// NewStore connects to MongoDB and prepares collections and indexes.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &Store{
		client:    client,
		db:        db,
		records:   db.Collection("submission_records"),
		responses: db.Collection("authority_responses"),
	}

	if err := s.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("creating indexes: %w", err)
	}
	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.records.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "access_key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "resolved", Value: 1}, {Key: "entered_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("creating record indexes: %w", err)
	}

	_, err = s.responses.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "access_key", Value: 1}, {Key: "received_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("creating response indexes: %w", err)
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type recordDoc struct {
	ID          string    `bson:"_id"`
	AccessKey   string    `bson:"access_key"`
	StateCode   string    `bson:"state_code"`
	Mode        int       `bson:"mode"`
	Reason      string    `bson:"reason,omitempty"`
	EnteredAt   time.Time `bson:"entered_at"`
	SignedXML   []byte    `bson:"signed_xml"`
	EventXML    []byte    `bson:"event_xml,omitempty"`
	EventSent   bool      `bson:"event_sent"`
	Receipt     string    `bson:"receipt,omitempty"`
	Attempts    int       `bson:"attempts"`
	LastAttempt time.Time `bson:"last_attempt,omitempty"`
	Escalated   bool      `bson:"escalated"`
	Resolved    bool      `bson:"resolved"`
	ResolvedAt  time.Time `bson:"resolved_at,omitempty"`
	FinalCode   int       `bson:"final_code,omitempty"`
	Protocol    string    `bson:"protocol,omitempty"`
}

func toRecordDoc(rec *contingency.Record) *recordDoc {
	return &recordDoc{
		ID:          rec.ID,
		AccessKey:   rec.AccessKey,
		StateCode:   rec.StateCode,
		Mode:        int(rec.Mode),
		Reason:      rec.Reason,
		EnteredAt:   rec.EnteredAt,
		SignedXML:   rec.SignedXML,
		EventXML:    rec.EventXML,
		EventSent:   rec.EventSent,
		Receipt:     rec.Receipt,
		Attempts:    rec.Attempts,
		LastAttempt: rec.LastAttempt,
		Escalated:   rec.Escalated,
		Resolved:    rec.Resolved,
		ResolvedAt:  rec.ResolvedAt,
		FinalCode:   rec.FinalCode,
		Protocol:    rec.Protocol,
	}
}

func (d *recordDoc) toRecord() *contingency.Record {
	return &contingency.Record{
		ID:          d.ID,
		AccessKey:   d.AccessKey,
		StateCode:   d.StateCode,
		Mode:        contingency.Mode(d.Mode),
		Reason:      d.Reason,
		EnteredAt:   d.EnteredAt,
		SignedXML:   d.SignedXML,
		EventXML:    d.EventXML,
		EventSent:   d.EventSent,
		Receipt:     d.Receipt,
		Attempts:    d.Attempts,
		LastAttempt: d.LastAttempt,
		Escalated:   d.Escalated,
		Resolved:    d.Resolved,
		ResolvedAt:  d.ResolvedAt,
		FinalCode:   d.FinalCode,
		Protocol:    d.Protocol,
	}
}

// Save upserts the record by access key.
func (s *Store) Save(ctx context.Context, rec *contingency.Record) error {
	doc := toRecordDoc(rec)
	_, err := s.records.ReplaceOne(ctx,
		bson.M{"access_key": rec.AccessKey},
		doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("saving record %s: %w", rec.AccessKey, err)
	}
	return nil
}

// Get returns the record for an access key.
func (s *Store) Get(ctx context.Context, accessKey string) (*contingency.Record, error) {
	var doc recordDoc
	err := s.records.FindOne(ctx, bson.M{"access_key": accessKey}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, contingency.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading record %s: %w", accessKey, err)
	}
	return doc.toRecord(), nil
}

// Unresolved lists unresolved records oldest first.
func (s *Store) Unresolved(ctx context.Context) ([]*contingency.Record, error) {
	cursor, err := s.records.Find(ctx,
		bson.M{"resolved": false},
		options.Find().SetSort(bson.D{{Key: "entered_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("listing unresolved records: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*contingency.Record
	for cursor.Next(ctx) {
		var doc recordDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding record: %w", err)
		}
		out = append(out, doc.toRecord())
	}
	return out, cursor.Err()
}

type responseDoc struct {
	AccessKey   string    `bson:"access_key"`
	Code        int       `bson:"code"`
	BatchCode   int       `bson:"batch_code,omitempty"`
	Description string    `bson:"description,omitempty"`
	Protocol    string    `bson:"protocol,omitempty"`
	Receipt     string    `bson:"receipt,omitempty"`
	ChNFe       string    `bson:"ch_nfe,omitempty"`
	Environment int       `bson:"environment,omitempty"`
	ProcessedAt time.Time `bson:"processed_at,omitempty"`
	Raw         []byte    `bson:"raw"`
	ReceivedAt  time.Time `bson:"received_at"`
}

// Append adds a response to the access key's ledger. Responses are
// never updated or deleted.
func (s *Store) Append(ctx context.Context, accessKey string, resp *soap.AuthorityResponse) error {
	_, err := s.responses.InsertOne(ctx, &responseDoc{
		AccessKey:   accessKey,
		Code:        resp.Code,
		BatchCode:   resp.BatchCode,
		Description: resp.Description,
		Protocol:    resp.Protocol,
		Receipt:     resp.Receipt,
		ChNFe:       resp.AccessKey,
		Environment: int(resp.Environment),
		ProcessedAt: resp.ProcessedAt,
		Raw:         resp.Raw,
		ReceivedAt:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("appending response for %s: %w", accessKey, err)
	}
	return nil
}

// History returns the ledger for an access key, oldest first.
func (s *Store) History(ctx context.Context, accessKey string) ([]*soap.AuthorityResponse, error) {
	cursor, err := s.responses.Find(ctx,
		bson.M{"access_key": accessKey},
		options.Find().SetSort(bson.D{{Key: "received_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("listing responses for %s: %w", accessKey, err)
	}
	defer cursor.Close(ctx)

	var out []*soap.AuthorityResponse
	for cursor.Next(ctx) {
		var doc responseDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
		out = append(out, &soap.AuthorityResponse{
			Code:        doc.Code,
			BatchCode:   doc.BatchCode,
			Description: doc.Description,
			Protocol:    doc.Protocol,
			Receipt:     doc.Receipt,
			AccessKey:   doc.ChNFe,
			Environment: document.Environment(doc.Environment),
			ProcessedAt: doc.ProcessedAt,
			Raw:         doc.Raw,
		})
	}
	return out, cursor.Err()
}
