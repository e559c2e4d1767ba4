// Package s3store is a contents.Backend over an S3 bucket. Directories are
// key prefixes, optionally backed by an empty "dir/" marker object so that
// empty folders survive. Chunked saves map onto a multipart upload.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/rescale/notebook-filetree/internal/config"
	"github.com/rescale/notebook-filetree/internal/constants"
	"github.com/rescale/notebook-filetree/internal/contents"
	"github.com/rescale/notebook-filetree/internal/http"
	"github.com/rescale/notebook-filetree/internal/logging"
	"github.com/rescale/notebook-filetree/internal/metrics"
	"github.com/rescale/notebook-filetree/internal/models"
	"github.com/rescale/notebook-filetree/internal/pathutil"
)

const backendName = "s3"

// API is the subset of *s3.Client the store uses.
type API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// Presigner signs download URLs. *s3.PresignClient implements it.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// multipart tracks one in-flight chunked save. S3 parts must be at least
// MinPartSize except the last, so chunks are buffered until a part fills.
type multipart struct {
	uploadID string
	parts    []types.CompletedPart
	pending  []byte
	written  int64
}

// Store is an S3-backed content tree.
type Store struct {
	api     API
	presign Presigner
	bucket  string
	prefix  string
	logger  *logging.Logger
	retry   http.RetryConfig

	mu      sync.Mutex
	uploads map[string]*multipart
}

var _ contents.Backend = (*Store)(nil)
var _ contents.Downloader = (*Store)(nil)

// NewStore builds a store from the [s3] and [proxy] config. Static keys
// are used when configured, otherwise the default AWS credential chain.
func NewStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Store, error) {
	httpClient, err := http.CreateOptimizedClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithHTTPClient(httpClient),
	}
	if cfg.S3.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3.Region))
	}
	if cfg.S3.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
			o.UsePathStyle = true // MinIO and localstack
		}
	})

	return New(client, s3.NewPresignClient(client), cfg.S3.Bucket, cfg.S3.Prefix, logger), nil
}

// New creates a store over an existing client. prefix is prepended to every
// key and stripped from returned paths.
func New(api API, presign Presigner, bucket, prefix string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Store{
		api:     api,
		presign: presign,
		bucket:  bucket,
		prefix:  pathutil.Normalize(prefix),
		logger:  logger,
		retry:   http.DefaultRetryConfig(),
		uploads: make(map[string]*multipart),
	}
	s.retry.OnRetry = func(attempt int, err error, errType http.ErrorType) {
		s.logger.Warn().Err(err).Int("attempt", attempt).Stringer("type", errType).Msg("Retrying S3 request")
	}
	return s
}

// SetRetryConfig replaces the retry policy for reads.
func (s *Store) SetRetryConfig(cfg http.RetryConfig) {
	s.retry = cfg
}

func (s *Store) key(path string) string {
	return pathutil.Join(s.prefix, path)
}

// dirKey is the listing prefix of a directory, "" for the bucket root.
func (s *Store) dirKey(path string) string {
	k := s.key(path)
	if k == "" {
		return ""
	}
	return k + "/"
}

// httpStatusCoder matches smithy's response errors without importing them.
type httpStatusCoder interface {
	HTTPStatusCode() int
}

func statusOf(err error) int {
	if err == nil {
		return nethttp.StatusOK
	}
	var sc httpStatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatusCode()
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return nethttp.StatusNotFound
	}
	return 0
}

func toStatusError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if code := statusOf(err); code != 0 {
		return &contents.StatusError{Op: op, Path: path, Code: code, Message: err.Error()}
	}
	return fmt.Errorf("failed to %s %s: %w", op, path, err)
}

// call runs one SDK request, recording metrics. Reads retry, writes do not.
func (s *Store) call(ctx context.Context, op, path string, retry bool, fn func() error) error {
	attempt := func() error {
		start := time.Now()
		err := fn()
		metrics.RecordContentsRequest(backendName, op, statusOf(err), time.Since(start))
		return toStatusError(op, path, err)
	}
	if !retry {
		return attempt()
	}
	return http.ExecuteWithRetry(ctx, s.retry, attempt)
}

func (s *Store) head(ctx context.Context, path, key string) (*s3.HeadObjectOutput, error) {
	var out *s3.HeadObjectOutput
	err := s.call(ctx, "get", path, true, func() error {
		var err error
		out, err = s.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
		return err
	})
	return out, err
}

// list returns one level below prefix: sub-prefixes and objects.
func (s *Store) list(ctx context.Context, path, prefix string, delimited bool) ([]string, []types.Object, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	if delimited {
		input.Delimiter = aws.String("/")
	}

	var prefixes []string
	var objects []types.Object
	paginator := s3.NewListObjectsV2Paginator(s.api, input)
	for paginator.HasMorePages() {
		var page *s3.ListObjectsV2Output
		err := s.call(ctx, "list", path, true, func() error {
			var err error
			page, err = paginator.NextPage(ctx)
			return err
		})
		if err != nil {
			return nil, nil, err
		}
		for _, cp := range page.CommonPrefixes {
			prefixes = append(prefixes, aws.ToString(cp.Prefix))
		}
		objects = append(objects, page.Contents...)
	}
	return prefixes, objects, nil
}

// dirExists reports whether anything lives under path's prefix.
func (s *Store) dirExists(ctx context.Context, path string) (bool, error) {
	var out *s3.ListObjectsV2Output
	err := s.call(ctx, "get", path, true, func() error {
		var err error
		out, err = s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(s.bucket),
			Prefix:  aws.String(s.dirKey(path)),
			MaxKeys: aws.Int32(1),
		})
		return err
	})
	if err != nil {
		return false, err
	}
	return len(out.Contents) > 0 || len(out.CommonPrefixes) > 0, nil
}

func fileEntry(path string, size int64, modified time.Time) models.Entry {
	return models.Entry{
		Name:         pathutil.Base(path),
		Path:         path,
		Type:         contents.TypeForPath(path),
		Writable:     true,
		Created:      modified,
		LastModified: modified,
		Size:         &size,
	}
}

func dirEntry(path string, modified time.Time) models.Entry {
	return models.Entry{
		Name:         pathutil.Base(path),
		Path:         path,
		Type:         models.TypeDirectory,
		Writable:     true,
		Created:      modified,
		LastModified: modified,
	}
}

// Get implements contents.Store.
func (s *Store) Get(ctx context.Context, path string, opts contents.GetOptions) (*models.Entry, error) {
	path = pathutil.Normalize(path)
	if path != "" && opts.Type != models.TypeDirectory {
		head, err := s.head(ctx, path, s.key(path))
		if err == nil {
			entry := fileEntry(path, aws.ToInt64(head.ContentLength), aws.ToTime(head.LastModified))
			entry.Mimetype = aws.ToString(head.ContentType)
			if opts.Content {
				var buf bytes.Buffer
				if _, err := s.Download(ctx, path, &buf); err != nil {
					return nil, err
				}
				contents.SetPayload(&entry, buf.Bytes(), opts.Format)
			}
			return &entry, nil
		}
		if !contents.IsNotFound(err) {
			return nil, err
		}
	}
	return s.getDir(ctx, path, opts)
}

func (s *Store) getDir(ctx context.Context, path string, opts contents.GetOptions) (*models.Entry, error) {
	var modified time.Time
	if path != "" {
		marker, err := s.head(ctx, path, s.dirKey(path))
		switch {
		case err == nil:
			modified = aws.ToTime(marker.LastModified)
		case contents.IsNotFound(err):
			exists, err := s.dirExists(ctx, path)
			if err != nil {
				return nil, err
			}
			if !exists {
				return nil, &contents.StatusError{Op: "get", Path: path, Code: nethttp.StatusNotFound}
			}
		default:
			return nil, err
		}
	}

	entry := dirEntry(path, modified)
	if !opts.Content {
		return &entry, nil
	}

	dirPrefix := s.dirKey(path)
	prefixes, objects, err := s.list(ctx, path, dirPrefix, true)
	if err != nil {
		return nil, err
	}

	entry.HasContent = true
	entry.Format = models.FormatJSON
	entry.Children = make([]models.Entry, 0, len(prefixes)+len(objects))
	for _, p := range prefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(p, dirPrefix), "/")
		if name == "" {
			continue
		}
		entry.Children = append(entry.Children, dirEntry(pathutil.Join(path, name), time.Time{}))
	}
	for _, obj := range objects {
		key := aws.ToString(obj.Key)
		name := strings.TrimPrefix(key, dirPrefix)
		if key == dirPrefix || name == "" || strings.Contains(name, "/") {
			continue
		}
		child := fileEntry(pathutil.Join(path, name), aws.ToInt64(obj.Size), aws.ToTime(obj.LastModified))
		entry.Children = append(entry.Children, child)
		if child.LastModified.After(entry.LastModified) {
			entry.LastModified = child.LastModified
		}
	}
	return &entry, nil
}

func (s *Store) putObject(ctx context.Context, path, key string, data []byte) error {
	return s.call(ctx, "save", path, false, func() error {
		_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
		})
		return err
	})
}

// Save implements contents.Store. Chunk 1 starts a multipart upload, later
// chunks add parts and chunk -1 completes it.
func (s *Store) Save(ctx context.Context, path string, model *models.SaveModel) (*models.Entry, error) {
	path = pathutil.Normalize(path)
	if path == "" {
		return nil, &contents.StatusError{Op: "save", Path: path, Code: nethttp.StatusBadRequest, Message: "cannot save root"}
	}

	if model.Type == models.TypeDirectory {
		if err := s.putObject(ctx, path, s.dirKey(path), nil); err != nil {
			return nil, err
		}
		entry := dirEntry(path, time.Now().UTC())
		return &entry, nil
	}

	data, err := contents.DecodeSaveContent(model)
	if err != nil {
		return nil, &contents.StatusError{Op: "save", Path: path, Code: nethttp.StatusBadRequest, Message: err.Error()}
	}

	if model.IsChunk() {
		return s.saveChunk(ctx, path, model.Chunk, data)
	}

	if err := s.putObject(ctx, path, s.key(path), data); err != nil {
		return nil, err
	}
	entry := fileEntry(path, int64(len(data)), time.Now().UTC())
	return &entry, nil
}

func (s *Store) saveChunk(ctx context.Context, path string, chunk int, data []byte) (*models.Entry, error) {
	last := chunk == constants.LastChunk

	s.mu.Lock()
	up := s.uploads[path]
	if chunk == 1 {
		delete(s.uploads, path)
	}
	s.mu.Unlock()

	if chunk == 1 {
		if up != nil {
			s.abort(path, up)
		}
		var out *s3.CreateMultipartUploadOutput
		err := s.call(ctx, "save", path, false, func() error {
			var err error
			out, err = s.api.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(s.key(path)),
			})
			return err
		})
		if err != nil {
			return nil, err
		}
		up = &multipart{uploadID: aws.ToString(out.UploadId)}
		s.mu.Lock()
		s.uploads[path] = up
		s.mu.Unlock()
	}

	if up == nil {
		if !last {
			return nil, &contents.StatusError{Op: "save", Path: path, Code: nethttp.StatusBadRequest, Message: fmt.Sprintf("chunk %d without an upload in progress", chunk)}
		}
		// A lone final chunk is a whole file.
		if err := s.putObject(ctx, path, s.key(path), data); err != nil {
			return nil, err
		}
		entry := fileEntry(path, int64(len(data)), time.Now().UTC())
		return &entry, nil
	}

	up.pending = append(up.pending, data...)
	up.written += int64(len(data))

	if last || len(up.pending) >= constants.MinPartSize {
		if err := s.uploadPart(ctx, path, up); err != nil {
			s.forget(path)
			s.abort(path, up)
			return nil, err
		}
	}

	if !last {
		entry := fileEntry(path, up.written, time.Now().UTC())
		return &entry, nil
	}

	s.forget(path)
	err := s.call(ctx, "save", path, false, func() error {
		_, err := s.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
			Bucket:          aws.String(s.bucket),
			Key:             aws.String(s.key(path)),
			UploadId:        aws.String(up.uploadID),
			MultipartUpload: &types.CompletedMultipartUpload{Parts: up.parts},
		})
		return err
	})
	if err != nil {
		s.abort(path, up)
		return nil, err
	}

	entry := fileEntry(path, up.written, time.Now().UTC())
	return &entry, nil
}

func (s *Store) uploadPart(ctx context.Context, path string, up *multipart) error {
	partNumber := int32(len(up.parts) + 1)
	body := up.pending

	var out *s3.UploadPartOutput
	err := s.call(ctx, "save", path, false, func() error {
		var err error
		out, err = s.api.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(s.key(path)),
			UploadId:      aws.String(up.uploadID),
			PartNumber:    aws.Int32(partNumber),
			Body:          bytes.NewReader(body),
			ContentLength: aws.Int64(int64(len(body))),
		})
		return err
	})
	if err != nil {
		return err
	}

	up.parts = append(up.parts, types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(partNumber)})
	up.pending = nil
	return nil
}

func (s *Store) forget(path string) {
	s.mu.Lock()
	delete(s.uploads, path)
	s.mu.Unlock()
}

// abort discards the uploaded parts. It runs detached from the caller's
// context, which is usually the one that just got cancelled.
func (s *Store) abort(path string, up *multipart) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.FetchTimeout)
	defer cancel()
	_, err := s.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.key(path)),
		UploadId: aws.String(up.uploadID),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("Failed to abort multipart upload")
	}
}

// copySource escapes bucket/key for CopyObject.
func (s *Store) copySource(key string) string {
	return url.PathEscape(s.bucket) + "/" + strings.ReplaceAll(url.PathEscape(key), "%2F", "/")
}

func (s *Store) copyObject(ctx context.Context, path, srcKey, dstKey string) error {
	return s.call(ctx, "rename", path, false, func() error {
		_, err := s.api.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(s.bucket),
			Key:        aws.String(dstKey),
			CopySource: aws.String(s.copySource(srcKey)),
		})
		return err
	})
}

func (s *Store) deleteObject(ctx context.Context, path, key string) error {
	return s.call(ctx, "delete", path, false, func() error {
		_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return err
	})
}

// Rename implements contents.Backend as copy then delete. A directory is
// moved key by key, so a failure part way leaves both trees partially
// populated.
func (s *Store) Rename(ctx context.Context, oldPath, newPath string) (*models.Entry, error) {
	oldPath, newPath = pathutil.Normalize(oldPath), pathutil.Normalize(newPath)
	if oldPath == "" {
		return nil, &contents.StatusError{Op: "rename", Path: oldPath, Code: nethttp.StatusForbidden, Message: "cannot rename root"}
	}
	if pathutil.IsDescendant(newPath, oldPath) {
		return nil, &contents.StatusError{Op: "rename", Path: oldPath, Code: nethttp.StatusBadRequest, Message: "cannot move a directory into itself"}
	}

	if _, err := s.Get(ctx, newPath, contents.GetOptions{}); err == nil {
		return nil, &contents.StatusError{Op: "rename", Path: newPath, Code: nethttp.StatusConflict, Message: "file already exists"}
	} else if !contents.IsNotFound(err) {
		return nil, err
	}

	src, err := s.Get(ctx, oldPath, contents.GetOptions{})
	if err != nil {
		return nil, err
	}

	if !src.IsDir() {
		if err := s.copyObject(ctx, oldPath, s.key(oldPath), s.key(newPath)); err != nil {
			return nil, err
		}
		if err := s.deleteObject(ctx, oldPath, s.key(oldPath)); err != nil {
			return nil, err
		}
		return s.Get(ctx, newPath, contents.GetOptions{})
	}

	oldPrefix, newPrefix := s.dirKey(oldPath), s.dirKey(newPath)
	_, objects, err := s.list(ctx, oldPath, oldPrefix, false)
	if err != nil {
		return nil, err
	}
	hasMarker := false
	for _, obj := range objects {
		key := aws.ToString(obj.Key)
		hasMarker = hasMarker || key == oldPrefix
		if err := s.copyObject(ctx, oldPath, key, newPrefix+strings.TrimPrefix(key, oldPrefix)); err != nil {
			return nil, err
		}
	}
	if !hasMarker {
		if err := s.putObject(ctx, newPath, newPrefix, nil); err != nil {
			return nil, err
		}
	}
	for _, obj := range objects {
		if err := s.deleteObject(ctx, oldPath, aws.ToString(obj.Key)); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, newPath, contents.GetOptions{Type: models.TypeDirectory})
}

// Delete implements contents.Backend. Directories are removed recursively.
func (s *Store) Delete(ctx context.Context, path string) error {
	path = pathutil.Normalize(path)
	if path == "" {
		return &contents.StatusError{Op: "delete", Path: path, Code: nethttp.StatusForbidden, Message: "cannot delete root"}
	}

	entry, err := s.Get(ctx, path, contents.GetOptions{})
	if err != nil {
		return err
	}
	if !entry.IsDir() {
		return s.deleteObject(ctx, path, s.key(path))
	}

	_, objects, err := s.list(ctx, path, s.dirKey(path), false)
	if err != nil {
		return err
	}
	for _, obj := range objects {
		if err := s.deleteObject(ctx, path, aws.ToString(obj.Key)); err != nil {
			return err
		}
	}
	return nil
}

// NewUntitled implements contents.Backend.
func (s *Store) NewUntitled(ctx context.Context, dir string, typ models.EntryType) (*models.Entry, error) {
	dir = pathutil.Normalize(dir)
	parent, err := s.Get(ctx, dir, contents.GetOptions{})
	if err != nil {
		return nil, err
	}
	if !parent.IsDir() {
		return nil, &contents.StatusError{Op: "new", Path: dir, Code: nethttp.StatusBadRequest, Message: "not a directory"}
	}

	for i := 0; ; i++ {
		path := pathutil.Join(dir, contents.UntitledName(typ, i))
		_, err := s.Get(ctx, path, contents.GetOptions{})
		if err == nil {
			continue
		}
		if !contents.IsNotFound(err) {
			return nil, err
		}
		if typ == models.TypeDirectory {
			return s.Save(ctx, path, &models.SaveModel{Type: models.TypeDirectory})
		}
		empty := ""
		return s.Save(ctx, path, &models.SaveModel{Type: typ, Format: models.FormatText, Content: &empty})
	}
}

// SupportsChunking implements contents.Backend. Multipart uploads are
// always available.
func (s *Store) SupportsChunking(context.Context) (bool, error) {
	return true, nil
}

// DownloadURL implements contents.Store with a presigned GET.
func (s *Store) DownloadURL(ctx context.Context, path string) (string, error) {
	if s.presign == nil {
		return "", fmt.Errorf("failed to sign %s: no presigner configured", path)
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	}, s3.WithPresignExpires(constants.PresignExpiry))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", path, err)
	}
	return req.URL, nil
}

// Download implements contents.Downloader.
func (s *Store) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	path = pathutil.Normalize(path)
	var out *s3.GetObjectOutput
	err := s.call(ctx, "download", path, true, func() error {
		var err error
		out, err = s.api.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(s.key(path))})
		return err
	})
	if err != nil {
		return 0, err
	}
	defer out.Body.Close()

	n, err := io.Copy(w, out.Body)
	if err != nil {
		return n, fmt.Errorf("failed to download %s: %w", path, err)
	}
	return n, nil
}
