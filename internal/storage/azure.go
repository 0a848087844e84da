package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureStore keeps images as block blobs in a single container.
type AzureStore struct {
	client    *azblob.Client
	container string
	initOnce  sync.Once
	initErr   error
}

func NewAzureStore(accountName, accountKey, container string) (*AzureStore, error) {
	accountName = strings.TrimSpace(accountName)
	container = strings.TrimSpace(container)
	if accountName == "" || strings.TrimSpace(accountKey) == "" {
		return nil, fmt.Errorf("storage: azure account and key are required")
	}
	if container == "" {
		return nil, fmt.Errorf("storage: azure container is required")
	}
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("storage: azure credential: %w", err)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: azure client: %w", err)
	}
	return &AzureStore{client: client, container: container}, nil
}

func (s *AzureStore) ensureContainer(ctx context.Context) error {
	s.initOnce.Do(func() {
		_, err := s.client.CreateContainer(ctx, s.container, nil)
		if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			s.initErr = err
		}
	})
	return s.initErr
}

func (s *AzureStore) Write(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	if err := s.ensureContainer(ctx); err != nil {
		return "", fmt.Errorf("storage: ensure container: %w", err)
	}
	opts := &azblob.UploadBufferOptions{}
	if contentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &contentType}
	}
	if _, err := s.client.UploadBuffer(ctx, s.container, cleanKey, data, opts); err != nil {
		return "", fmt.Errorf("storage: upload blob: %w", err)
	}
	return cleanKey, nil
}

func (s *AzureStore) Read(ctx context.Context, key string) ([]byte, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.DownloadStream(ctx, s.container, cleanKey, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: download blob: %w", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("storage: read blob: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	_ ImageStore = (*FileStore)(nil)
	_ ImageStore = (*S3Store)(nil)
	_ ImageStore = (*AzureStore)(nil)
)
