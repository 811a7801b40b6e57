// Package azure maps the remote store calls onto block blobs in one Azure
// container. Collections become blob name prefixes. Every Write stages one
// block and Close commits the block list in order.
package azure

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/transana/srbxfer/internal/constants"
	"github.com/transana/srbxfer/internal/logging"
	"github.com/transana/srbxfer/internal/remote"
)

// BlobAPI is the blob-level surface the store needs from a container.
type BlobAPI interface {
	Download(ctx context.Context, blobName string) (io.ReadCloser, error)
	Properties(ctx context.Context, blobName string) (int64, error)
	StageBlock(ctx context.Context, blobName, blockID string, data []byte) error
	CommitBlockList(ctx context.Context, blobName string, blockIDs []string, metadata map[string]*string) error
	Delete(ctx context.Context, blobName string) error
}

// Config selects the account and container.
type Config struct {
	Account   string
	Container string
	Endpoint  string // service URL override, e.g. an Azurite emulator
	Prefix    string

	// One of SASToken or AccountKey; neither means anonymous access.
	SASToken   string
	AccountKey string

	// DisableSDKRetries turns off the SDK retry policy when the HTTP
	// client already retries.
	DisableSDKRetries bool
}

type reader struct {
	body io.ReadCloser
	coll string
	name string
	eof  bool
}

type writer struct {
	blob   string
	coll   string
	name   string
	opts   remote.CreateOptions
	blocks []string
}

// Store is a remote.Store over one Azure container.
type Store struct {
	blobs     BlobAPI
	container string
	prefix    string
	logger    *logging.Logger

	// *reader or *writer, one table so handles are unique per Store
	handles remote.HandleTable[any]
}

var _ remote.Store = (*Store)(nil)
var _ remote.Sizer = (*Store)(nil)
var _ remote.Aborter = (*Store)(nil)

// New creates an azblob client from cfg and returns a Store using it.
func New(cfg Config, httpClient *http.Client, logger *logging.Logger) (*Store, error) {
	if cfg.Container == "" {
		return nil, fmt.Errorf("azure: container is required")
	}
	serviceURL := cfg.Endpoint
	if serviceURL == "" {
		if cfg.Account == "" {
			return nil, fmt.Errorf("azure: account or endpoint is required")
		}
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.Account)
	}

	opts := &azblob.ClientOptions{}
	if httpClient != nil {
		opts.ClientOptions = azcore.ClientOptions{Transport: httpClient}
	}
	if cfg.DisableSDKRetries {
		opts.Retry = policy.RetryOptions{MaxRetries: -1}
	}

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case cfg.SASToken != "":
		sasURL := strings.TrimSuffix(serviceURL, "/") + "/?" + strings.TrimPrefix(cfg.SASToken, "?")
		client, err = azblob.NewClientWithNoCredential(sasURL, opts)
	case cfg.AccountKey != "":
		var cred *azblob.SharedKeyCredential
		cred, err = azblob.NewSharedKeyCredential(cfg.Account, cfg.AccountKey)
		if err == nil {
			client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, opts)
		}
	default:
		client, err = azblob.NewClientWithNoCredential(serviceURL, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	blobs := &containerBlobs{c: client.ServiceClient().NewContainerClient(cfg.Container)}
	return NewWithBlobs(blobs, cfg.Container, cfg.Prefix, logger), nil
}

// NewWithBlobs returns a Store over an existing BlobAPI.
func NewWithBlobs(blobs BlobAPI, containerName, prefix string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Store{
		blobs:     blobs,
		container: containerName,
		prefix:    strings.Trim(prefix, "/"),
		logger:    logger,
	}
}

// Name implements remote.Namer.
func (s *Store) Name() string { return "azure:" + s.container }

func (s *Store) blobName(collection, name string) string {
	return strings.TrimPrefix(path.Join(s.prefix, strings.Trim(collection, "/"), name), "/")
}

// blockID returns the base64 block ID for the i-th block. All IDs in one
// blob must have the same length.
func blockID(i int) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%010d", i)))
}

func (s *Store) Open(ctx context.Context, collection, name string) (remote.Handle, error) {
	body, err := s.blobs.Download(ctx, s.blobName(collection, name))
	if err != nil {
		return remote.InvalidHandle, mapError("open", collection, name, err)
	}
	return s.handles.Put(&reader{body: body, coll: collection, name: name}), nil
}

func (s *Store) Create(ctx context.Context, collection, name string, size int64, opts remote.CreateOptions) (remote.Handle, error) {
	if err := ctx.Err(); err != nil {
		return remote.InvalidHandle, remote.NewError("create", collection, name, 0, err)
	}
	return s.handles.Put(&writer{
		blob: s.blobName(collection, name),
		coll: collection,
		name: name,
		opts: opts,
	}), nil
}

func (s *Store) Read(ctx context.Context, h remote.Handle, buf []byte) (int, error) {
	r, ok := remote.Lookup[*reader](&s.handles, h)
	if !ok {
		return 0, remote.HandleError("read", h)
	}
	if r.eof {
		return 0, nil
	}
	n, err := io.ReadFull(r.body, buf)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		r.eof = true
		return n, nil
	case err != nil:
		return n, mapError("read", r.coll, r.name, err)
	}
	return n, nil
}

func (s *Store) Write(ctx context.Context, h remote.Handle, buf []byte) (int, error) {
	w, ok := remote.Lookup[*writer](&s.handles, h)
	if !ok {
		return 0, remote.HandleError("write", h)
	}
	if len(w.blocks) >= constants.MaxAzureBlocks {
		return 0, remote.NewError("write", w.coll, w.name, remote.StatusUnsupported,
			fmt.Errorf("block limit of %d reached; use a larger chunk size", constants.MaxAzureBlocks))
	}
	id := blockID(len(w.blocks))
	if err := s.blobs.StageBlock(ctx, w.blob, id, buf); err != nil {
		return 0, mapError("write", w.coll, w.name, err)
	}
	w.blocks = append(w.blocks, id)
	return len(buf), nil
}

// Close ends a read or commits the staged block list of a write.
func (s *Store) Close(ctx context.Context, h remote.Handle) error {
	v, _ := s.handles.Take(h)
	switch o := v.(type) {
	case *reader:
		if err := o.body.Close(); err != nil {
			return mapError("close", o.coll, o.name, err)
		}
		return nil
	case *writer:
		return s.commit(ctx, o)
	}
	return remote.HandleError("close", h)
}

// Abort releases h without committing. Staged blocks that are never
// committed are discarded by the service.
func (s *Store) Abort(ctx context.Context, h remote.Handle) error {
	v, _ := s.handles.Take(h)
	switch o := v.(type) {
	case *reader:
		o.body.Close()
		return nil
	case *writer:
		s.logger.Debug().Str("blob", o.blob).Int("blocks", len(o.blocks)).Msg("write aborted")
		return nil
	}
	return remote.HandleError("abort", h)
}

func (s *Store) commit(ctx context.Context, w *writer) error {
	md := map[string]*string{}
	if w.opts.FileType != "" {
		md["filetype"] = &w.opts.FileType
	}
	if w.opts.Resource != "" {
		md["resource"] = &w.opts.Resource
	}
	if err := s.blobs.CommitBlockList(ctx, w.blob, w.blocks, md); err != nil {
		return mapError("close", w.coll, w.name, err)
	}
	s.logger.Debug().Str("blob", w.blob).Int("blocks", len(w.blocks)).Msg("block list committed")
	return nil
}

// Remove deletes the blob. Writers still open on it are dropped so their
// block lists are never committed.
func (s *Store) Remove(ctx context.Context, collection, name string) error {
	blob := s.blobName(collection, name)
	var open []remote.Handle
	s.handles.Each(func(h remote.Handle, v any) {
		if w, ok := v.(*writer); ok && w.blob == blob {
			open = append(open, h)
		}
	})
	for _, h := range open {
		s.handles.Take(h)
	}
	if err := s.blobs.Delete(ctx, blob); err != nil {
		return mapError("remove", collection, name, err)
	}
	return nil
}

// Size implements remote.Sizer.
func (s *Store) Size(ctx context.Context, collection, name string) (int64, error) {
	n, err := s.blobs.Properties(ctx, s.blobName(collection, name))
	if err != nil {
		return 0, mapError("size", collection, name, err)
	}
	return n, nil
}

func mapError(op, collection, name string, err error) error {
	code := 0
	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound):
		code = remote.StatusNotFound
	case bloberror.HasCode(err, bloberror.AuthenticationFailed, bloberror.AuthorizationFailure,
		bloberror.AuthorizationPermissionMismatch, bloberror.InsufficientAccountPermissions):
		code = remote.StatusAccessDenied
	case bloberror.HasCode(err, bloberror.InvalidBlockList, bloberror.InvalidBlockID, bloberror.InvalidBlobOrBlock):
		code = remote.StatusBadRequest
	case bloberror.HasCode(err, bloberror.BlobAlreadyExists):
		code = remote.StatusExists
	default:
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) {
			switch respErr.StatusCode {
			case http.StatusNotFound:
				code = remote.StatusNotFound
			case http.StatusForbidden, http.StatusUnauthorized:
				code = remote.StatusAccessDenied
			}
		}
	}
	return remote.NewError(op, collection, name, code, err)
}

// containerBlobs implements BlobAPI with the azblob SDK.
type containerBlobs struct {
	c *container.Client
}

func (b *containerBlobs) Download(ctx context.Context, blobName string) (io.ReadCloser, error) {
	resp, err := b.c.NewBlobClient(blobName).DownloadStream(ctx, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (b *containerBlobs) Properties(ctx context.Context, blobName string) (int64, error) {
	resp, err := b.c.NewBlobClient(blobName).GetProperties(ctx, nil)
	if err != nil {
		return 0, err
	}
	if resp.ContentLength == nil {
		return 0, nil
	}
	return *resp.ContentLength, nil
}

func (b *containerBlobs) StageBlock(ctx context.Context, blobName, blockID string, data []byte) error {
	body := streaming.NopCloser(bytes.NewReader(data))
	_, err := b.c.NewBlockBlobClient(blobName).StageBlock(ctx, blockID, body, nil)
	return err
}

func (b *containerBlobs) CommitBlockList(ctx context.Context, blobName string, blockIDs []string, metadata map[string]*string) error {
	_, err := b.c.NewBlockBlobClient(blobName).CommitBlockList(ctx, blockIDs, &blockblob.CommitBlockListOptions{
		Metadata: metadata,
	})
	return err
}

func (b *containerBlobs) Delete(ctx context.Context, blobName string) error {
	_, err := b.c.NewBlobClient(blobName).Delete(ctx, nil)
	return err
}
