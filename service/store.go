package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/higpup01-design/proofok/model"
	"gocloud.dev/blob"
)

const recordContentType = "application/json"

// RecordStore keeps one JSON document per proof token, <dir>/<token>.json.
// Writes go to a temp file that is renamed into place, so readers never see a
// partial document. There is no locking: concurrent writers for the same token
// race and the last write wins.
type RecordStore struct {
	bucket *blob.Bucket
	dir    string
}

// NewRecordStore creates the data directory if needed
func NewRecordStore(dir string) (*RecordStore, error) {
	bucket, abs, err := openLocalBucket(dir)
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	slog.Info("record store initialized", "dir", abs)
	return &RecordStore{bucket: bucket, dir: abs}, nil
}

func recordKey(token string) string {
	return token + ".json"
}

// Save writes the record for token, replacing any previous version
func (s *RecordStore) Save(ctx context.Context, token string, proof *model.Proof) error {
	if !ValidToken(token) {
		return fmt.Errorf("save record %q: invalid token", token)
	}
	if proof.Responses == nil {
		proof.Responses = []model.Response{}
	}

	data, err := json.MarshalIndent(proof, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	if err := writeBlob(ctx, s.bucket, recordKey(token), recordContentType, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

// Load reads the current record for token. It returns ErrNotFound when no
// record exists or the token is malformed.
func (s *RecordStore) Load(ctx context.Context, token string) (*model.Proof, error) {
	if !ValidToken(token) {
		return nil, ErrNotFound
	}

	data, err := s.bucket.ReadAll(ctx, recordKey(token))
	if isBlobNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}

	var proof model.Proof
	if err := json.Unmarshal(data, &proof); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", token, err)
	}
	if proof.Responses == nil {
		proof.Responses = []model.Response{}
	}
	return &proof, nil
}

// Exists reports whether a record is stored for token
func (s *RecordStore) Exists(ctx context.Context, token string) (bool, error) {
	if !ValidToken(token) {
		return false, nil
	}
	ok, err := s.bucket.Exists(ctx, recordKey(token))
	if err != nil {
		return false, fmt.Errorf("check record: %w", err)
	}
	return ok, nil
}

// Close releases the underlying bucket
func (s *RecordStore) Close() error {
	return s.bucket.Close()
}
