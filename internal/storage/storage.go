package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Archive keeps copies of inbound provider payloads in remote object storage.
type Archive interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// NopArchive discards payloads; used when no bucket is configured.
type NopArchive struct{}

func (NopArchive) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	return "", nil
}

// InboundKey builds a date partitioned object key for an inbound message.
func InboundKey(prefix string, at time.Time) string {
	at = at.UTC()
	name := fmt.Sprintf("%s.json", uuid.NewString())
	return path.Join(strings.Trim(prefix, "/"), at.Format("2006/01/02"), name)
}
