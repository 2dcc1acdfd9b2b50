// Package media stores profile images in object storage and hands back
// public URLs. Registration treats a failed avatar upload as fatal; callers
// decide how to degrade for optional assets.
package media

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
)

type Kind string

const (
	KindAvatar     Kind = "avatars"
	KindCoverImage Kind = "covers"
)

var (
	ErrFileTooLarge   = errors.New("media file too large")
	ErrDisallowedType = errors.New("disallowed media mime type")
	ErrInvalidKind    = errors.New("invalid media kind")
)

type Blob struct {
	Kind         Kind
	OriginalName string
	Data         io.Reader
}

// Uploader is the narrow seam between the account service and whatever holds
// the bytes. Upload returns a publicly resolvable URL.
type Uploader interface {
	Upload(ctx context.Context, blob Blob) (string, error)
}

// readAndValidate buffers the blob, enforcing the size cap and an image-only
// mime policy sniffed from the leading bytes.
func readAndValidate(blob Blob, maxBytes int64) ([]byte, string, error) {
	if blob.Kind != KindAvatar && blob.Kind != KindCoverImage {
		return nil, "", ErrInvalidKind
	}

	data, err := io.ReadAll(io.LimitReader(blob.Data, maxBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > maxBytes {
		return nil, "", ErrFileTooLarge
	}

	sniff := data
	if len(sniff) > 512 {
		sniff = sniff[:512]
	}
	mimeType := trimMimeParams(http.DetectContentType(sniff))
	if !strings.HasPrefix(mimeType, "image/") || mimeType == "image/svg+xml" {
		return nil, "", ErrDisallowedType
	}

	return data, mimeType, nil
}

func trimMimeParams(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx != -1 {
		return strings.TrimSpace(contentType[:idx])
	}
	return strings.TrimSpace(contentType)
}
