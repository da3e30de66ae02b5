package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"
)

// signedURLTTL is how long an export link stays valid, in seconds.
const signedURLTTL = 3600

// SupabaseStorage uploads export artifacts to a Supabase Storage bucket.
type SupabaseStorage struct {
	client *supabase.Client
	bucket string
}

// NewSupabaseStorage constructs a Supabase storage client.
func NewSupabaseStorage(baseURL, serviceKey, bucket string) (*SupabaseStorage, error) {
	if baseURL == "" || serviceKey == "" {
		return nil, fmt.Errorf("missing Supabase configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	client, err := supabase.NewClient(strings.TrimRight(baseURL, "/"), serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create Supabase client: %w", err)
	}
	return &SupabaseStorage{client: client, bucket: bucket}, nil
}

// Upload stores body under objectKey, replacing any previous version, and
// returns a signed download URL.
func (s *SupabaseStorage) Upload(_ context.Context, objectKey, contentType string, body []byte) (string, error) {
	upsert := true
	cache := "3600"
	_, err := s.client.Storage.UploadFile(s.bucket, objectKey, bytes.NewReader(body), storage_go.FileOptions{
		ContentType:  &contentType,
		CacheControl: &cache,
		Upsert:       &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to Supabase: %w", err)
	}
	signed, err := s.client.Storage.CreateSignedUrl(s.bucket, objectKey, signedURLTTL)
	if err != nil {
		return "", fmt.Errorf("failed to sign Supabase object: %w", err)
	}
	return signed.SignedURL, nil
}
