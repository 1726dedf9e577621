package platform

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/JakeFAU/crawl-validator/internal/validation"
)

// KeyValueStore reads and writes records of one platform key-value store.
type KeyValueStore struct {
	client  *Client
	storeID string
}

// NewKeyValueStore binds a platform key-value store by id.
func NewKeyValueStore(client *Client, storeID string) (*KeyValueStore, error) {
	if client == nil {
		return nil, fmt.Errorf("platform client is required")
	}
	if strings.TrimSpace(storeID) == "" {
		return nil, fmt.Errorf("key-value store id is required")
	}
	return &KeyValueStore{client: client, storeID: storeID}, nil
}

// Get returns the raw record value.
func (s *KeyValueStore) Get(ctx context.Context, key string) ([]byte, error) {
	endpoint := s.client.apiURL(nil, "v2", "key-value-stores", s.storeID, "records", key)
	resp, err := s.client.do(ctx, "get_record", http.MethodGet, endpoint, "", nil)
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", validation.ErrRecordNotFound, key)
		}
		return nil, err
	}
	return resp.body, nil
}

// Set overwrites the record with a JSON value.
func (s *KeyValueStore) Set(ctx context.Context, key string, data []byte) error {
	endpoint := s.client.apiURL(nil, "v2", "key-value-stores", s.storeID, "records", key)
	if _, err := s.client.do(ctx, "set_record", http.MethodPut, endpoint, "application/json; charset=utf-8", data); err != nil {
		return err
	}
	return nil
}
