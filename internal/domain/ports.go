package domain

import (
	"context"
	"image"
)

// KeyProvider supplies the single durable symmetric content key, creating
// it on first use. The same key is returned across process restarts. The
// key never crosses the security package boundary except into the AEAD
// constructor.
type KeyProvider interface {
	GetOrCreate() ([]byte, error)
}

// Encryptor performs whole-blob authenticated encryption. Ciphertext is the
// combined form nonce ‖ ciphertext ‖ tag with no plaintext header. Decrypt
// fails with ErrDecryptionFailed on tag mismatch or a malformed buffer.
type Encryptor interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// ContentStore is durable, backup-excluded storage of encrypted blobs
// addressed by photo id. Delete is idempotent: removing an absent id is
// not an error.
type ContentStore interface {
	Save(ctx context.Context, id string, ciphertext []byte) (location string, err error)
	Load(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
	ListIDs(ctx context.Context) ([]string, error)
}

// MetadataIndex stores one independently loadable record per id so a
// corrupt record affects only its own photo. Update is a full replace:
// callers read, mutate in memory, and write back the whole record.
type MetadataIndex interface {
	Save(ctx context.Context, m *PhotoMetadata) error
	Load(ctx context.Context, id string) (*PhotoMetadata, error)
	LoadAll(ctx context.Context) ([]*PhotoMetadata, error)
	Delete(ctx context.Context, id string) error
	Update(ctx context.Context, m *PhotoMetadata) error
	FindMatching(ctx context.Context, p PhotoPredicate) ([]*PhotoMetadata, error)
}

// FaceDetector is the opaque detection collaborator. Only its output
// (bounding boxes in source-image pixels) is consumed here.
type FaceDetector interface {
	Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error)
}

// LocationProvider supplies optional location tags, consulted only at save
// time. A nil map means no tags are available; that is not an error.
type LocationProvider interface {
	CurrentLocationTags(ctx context.Context) (map[string]string, error)
}

// SettingsStore is the explicit typed key-value store for simple flags and
// preferences (app-lock PIN, PIN-set flag). It replaces implicit global
// defaults-style persistence with an injected dependency.
type SettingsStore interface {
	GetString(ctx context.Context, key string) (string, bool, error)
	SetString(ctx context.Context, key, value string) error
	GetBool(ctx context.Context, key string) (bool, bool, error)
	SetBool(ctx context.Context, key string, value bool) error
	GetInt(ctx context.Context, key string) (int64, bool, error)
	SetInt(ctx context.Context, key string, value int64) error
	Delete(ctx context.Context, key string) error
	Close() error
}
