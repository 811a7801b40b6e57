// Package s3 maps the remote store calls onto an S3 bucket. Collections
// become key prefixes. Reads stream GetObject; writes buffer into parts of a
// multipart upload, or a single PutObject for objects under the part size.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/transana/srbxfer/internal/constants"
	"github.com/transana/srbxfer/internal/logging"
	"github.com/transana/srbxfer/internal/remote"
)

// S3API is the subset of *s3.Client the store uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// Config selects the bucket and how to reach it.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string // custom endpoint for S3-compatible stores
	PathStyle bool
	Prefix    string // key prefix prepended to every collection

	// Static credentials; when empty the SDK's default chain is used
	// (environment, shared config, instance role).
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// DisableSDKRetries turns off the SDK's retryer when the HTTP client
	// already retries.
	DisableSDKRetries bool
}

type reader struct {
	body io.ReadCloser
	coll string
	name string
	eof  bool
}

type writer struct {
	key      string
	coll     string
	name     string
	opts     remote.CreateOptions
	partSize int
	buf      bytes.Buffer
	uploadID string
	parts    []types.CompletedPart
}

// Store is a remote.Store over one S3 bucket.
type Store struct {
	client S3API
	bucket string
	prefix string
	logger *logging.Logger

	// *reader or *writer, one table so handles are unique per Store
	handles remote.HandleTable[any]

	// multipart uploads that were started but never completed, by key
	pendingMu sync.Mutex
	pending   map[string]string
}

var _ remote.Store = (*Store)(nil)
var _ remote.Sizer = (*Store)(nil)
var _ remote.Aborter = (*Store)(nil)

// New builds an S3 client from cfg and returns a Store using it. httpClient
// may be nil to use the SDK default.
func New(ctx context.Context, cfg Config, httpClient *http.Client, logger *logging.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}

	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if httpClient != nil {
		opts = append(opts, config.WithHTTPClient(httpClient))
	}
	if cfg.DisableSDKRetries {
		opts = append(opts, config.WithRetryMaxAttempts(1))
	}
	if cfg.AccessKeyID != "" {
		static := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)
		opts = append(opts, config.WithCredentialsProvider(aws.NewCredentialsCache(static)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return NewWithClient(client, cfg.Bucket, cfg.Prefix, logger), nil
}

// NewWithClient returns a Store over an existing client.
func NewWithClient(client S3API, bucket, prefix string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Store{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		logger:  logger,
		pending: make(map[string]string),
	}
}

// Name implements remote.Namer.
func (s *Store) Name() string { return "s3://" + s.bucket }

func (s *Store) objectKey(collection, name string) string {
	k := path.Join(s.prefix, strings.Trim(collection, "/"), name)
	return strings.TrimPrefix(k, "/")
}

// partSizeFor keeps uploads of the expected size under S3's part limit.
func partSizeFor(size int64) int {
	ps := int64(constants.MinPartSize)
	if need := size / constants.MaxS3Parts; need >= ps {
		ps = (need/(1<<20) + 1) << 20
	}
	return int(ps)
}

func (s *Store) Open(ctx context.Context, collection, name string) (remote.Handle, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(collection, name)),
	})
	if err != nil {
		return remote.InvalidHandle, mapError("open", collection, name, err)
	}
	return s.handles.Put(&reader{body: out.Body, coll: collection, name: name}), nil
}

func (s *Store) Create(ctx context.Context, collection, name string, size int64, opts remote.CreateOptions) (remote.Handle, error) {
	if err := ctx.Err(); err != nil {
		return remote.InvalidHandle, remote.NewError("create", collection, name, 0, err)
	}
	w := &writer{
		key:      s.objectKey(collection, name),
		coll:     collection,
		name:     name,
		opts:     opts,
		partSize: partSizeFor(size),
	}
	// Objects expected to span parts start the multipart upload now so
	// an invalid bucket or credentials fail before the first chunk is read.
	if size >= int64(w.partSize) {
		if err := s.startMultipart(ctx, w); err != nil {
			return remote.InvalidHandle, err
		}
	}
	return s.handles.Put(w), nil
}

func (s *Store) startMultipart(ctx context.Context, w *writer) error {
	out, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(w.key),
		Metadata: metadata(w.opts),
	})
	if err != nil {
		return mapError("create", w.coll, w.name, err)
	}
	w.uploadID = aws.ToString(out.UploadId)

	s.pendingMu.Lock()
	s.pending[w.key] = w.uploadID
	s.pendingMu.Unlock()

	s.logger.Debug().Str("key", w.key).Str("upload_id", w.uploadID).Msg("multipart upload started")
	return nil
}

func metadata(opts remote.CreateOptions) map[string]string {
	md := map[string]string{}
	if opts.FileType != "" {
		md["filetype"] = opts.FileType
	}
	if opts.Resource != "" {
		md["resource"] = opts.Resource
	}
	return md
}

// Read fills buf from the object body. The body is drained with
// io.ReadFull so chunk boundaries do not depend on network segmenting.
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
	w.buf.Write(buf)
	for w.buf.Len() >= w.partSize {
		if w.uploadID == "" {
			if err := s.startMultipart(ctx, w); err != nil {
				return 0, err
			}
		}
		if err := s.uploadPart(ctx, w, w.buf.Next(w.partSize)); err != nil {
			return 0, err
		}
	}
	return len(buf), nil
}

func (s *Store) uploadPart(ctx context.Context, w *writer, part []byte) error {
	num := int32(len(w.parts) + 1)
	out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(w.key),
		UploadId:      aws.String(w.uploadID),
		PartNumber:    aws.Int32(num),
		Body:          bytes.NewReader(part),
		ContentLength: aws.Int64(int64(len(part))),
	})
	if err != nil {
		return mapError("write", w.coll, w.name, err)
	}
	w.parts = append(w.parts, types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(num)})
	return nil
}

// Close ends a read or commits a write.
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

// Abort drops a write without publishing anything: buffered bytes are
// discarded and a started multipart upload is aborted.
func (s *Store) Abort(ctx context.Context, h remote.Handle) error {
	v, _ := s.handles.Take(h)
	switch o := v.(type) {
	case *reader:
		o.body.Close()
		return nil
	case *writer:
		s.discard(ctx, o)
		return nil
	}
	return remote.HandleError("abort", h)
}

func (s *Store) discard(ctx context.Context, w *writer) {
	w.buf.Reset()
	if w.uploadID != "" {
		s.abort(ctx, w.key, w.uploadID)
		w.uploadID = ""
	}
}

// commit publishes w: one PutObject for small objects, otherwise the last
// part and CompleteMultipartUpload.
func (s *Store) commit(ctx context.Context, w *writer) error {

	// Nothing reached a part boundary; drop the multipart upload and send
	// the buffer in one request.
	if w.uploadID != "" && len(w.parts) == 0 {
		s.abort(ctx, w.key, w.uploadID)
		w.uploadID = ""
	}

	if w.uploadID == "" {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(w.key),
			Body:          bytes.NewReader(w.buf.Bytes()),
			ContentLength: aws.Int64(int64(w.buf.Len())),
			Metadata:      metadata(w.opts),
		})
		if err != nil {
			return mapError("close", w.coll, w.name, err)
		}
		return nil
	}

	if w.buf.Len() > 0 {
		if err := s.uploadPart(ctx, w, w.buf.Bytes()); err != nil {
			return err
		}
	}
	_, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(w.key),
		UploadId:        aws.String(w.uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: w.parts},
	})
	if err != nil {
		return mapError("close", w.coll, w.name, err)
	}

	s.pendingMu.Lock()
	delete(s.pending, w.key)
	s.pendingMu.Unlock()
	return nil
}

// abort cancels a multipart upload, logging failures.
func (s *Store) abort(ctx context.Context, key, uploadID string) {
	s.pendingMu.Lock()
	delete(s.pending, key)
	s.pendingMu.Unlock()

	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to abort multipart upload")
	}
}

// Remove deletes the object. Writers still open on the same key are
// discarded and any multipart upload for it that never completed is
// aborted.
func (s *Store) Remove(ctx context.Context, collection, name string) error {
	key := s.objectKey(collection, name)

	var open []remote.Handle
	s.handles.Each(func(h remote.Handle, v any) {
		if w, ok := v.(*writer); ok && w.key == key {
			open = append(open, h)
		}
	})
	for _, h := range open {
		if v, ok := s.handles.Take(h); ok {
			s.discard(ctx, v.(*writer))
		}
	}

	s.pendingMu.Lock()
	uploadID, pending := s.pending[key]
	delete(s.pending, key)
	s.pendingMu.Unlock()

	if pending {
		_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(key),
			UploadId: aws.String(uploadID),
		})
		if err != nil {
			var nsu *types.NoSuchUpload
			if !errors.As(err, &nsu) {
				return mapError("remove", collection, name, err)
			}
		}
		s.logger.Debug().Str("key", key).Str("upload_id", uploadID).Msg("multipart upload aborted")
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapError("remove", collection, name, err)
	}
	return nil
}

// Size implements remote.Sizer.
func (s *Store) Size(ctx context.Context, collection, name string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(collection, name)),
	})
	if err != nil {
		return 0, mapError("size", collection, name, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

// mapError turns SDK errors into remote status errors.
func mapError(op, collection, name string, err error) error {
	var (
		noSuchKey    *types.NoSuchKey
		notFound     *types.NotFound
		noSuchUpload *types.NoSuchUpload
		apiErr       smithy.APIError
	)
	code := 0
	switch {
	case errors.As(err, &noSuchKey), errors.As(err, &notFound):
		code = remote.StatusNotFound
	case errors.As(err, &noSuchUpload):
		code = remote.StatusBadHandle
	case errors.As(err, &apiErr):
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "NotFound":
			code = remote.StatusNotFound
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			code = remote.StatusAccessDenied
		case "InvalidArgument", "InvalidRequest", "EntityTooSmall", "InvalidPart", "InvalidPartOrder":
			code = remote.StatusBadRequest
		}
	}
	return remote.NewError(op, collection, name, code, err)
}
