package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const defaultPresignTTL = 24 * time.Hour

// audioContentTypes covers formats yt-dlp produces that minimal systems often
// lack in their mime tables.
var audioContentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".opus": "audio/ogg",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".wav":  "audio/wav",
}

// S3Service stores tracks in a single bucket under a fixed key prefix.
type S3Service struct {
	client    *s3.Client
	uploader  *manager.Uploader
	presigner *s3.PresignClient
	bucket    string
	keyPrefix string
}

func NewS3Service(client *s3.Client, bucket, keyPrefix string) (*S3Service, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	return &S3Service{
		client:    client,
		uploader:  manager.NewUploader(client),
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
		keyPrefix: strings.Trim(keyPrefix, "/"),
	}, nil
}

// ObjectKey joins parts under the configured prefix, dropping empty segments.
func (s *S3Service) ObjectKey(parts ...string) string {
	segments := make([]string, 0, len(parts)+1)
	if s.keyPrefix != "" {
		segments = append(segments, s.keyPrefix)
	}
	for _, p := range parts {
		if p = strings.Trim(filepath.ToSlash(p), "/"); p != "" {
			segments = append(segments, p)
		}
	}
	return path.Join(segments...)
}

// UploadFile uploads one track and returns its s3:// location. The object is
// private and served with an attachment disposition so presigned links save
// under the track's file name.
func (s *S3Service) UploadFile(ctx context.Context, localPath, key string, opts UploadOptions) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open track %s: %w", localPath, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat track %s: %w", localPath, err)
	}
	if fi.IsDir() {
		return "", fmt.Errorf("track path %s is a directory", localPath)
	}
	if key == "" {
		key = s.ObjectKey(filepath.Base(localPath))
	}

	input := &s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(key),
		Body:               newProgressReader(f, fi.Size(), opts.ProgressCallback),
		ACL:                types.ObjectCannedACLPrivate,
		ContentDisposition: aws.String(mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(key)})),
	}
	if ct := contentType(localPath, opts.ContentType); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = opts.Metadata
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if opts.ProgressCallback != nil {
		opts.ProgressCallback(fi.Size(), fi.Size())
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// PresignGet returns a time-limited GET URL for key.
func (s *S3Service) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}

// ListObjects lists published tracks whose key starts with prefix, resolved
// under the configured key prefix.
func (s *S3Service) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if p := s.ObjectKey(prefix); p != "" {
		input.Prefix = aws.String(p)
	}

	var objects []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: obj.LastModified,
			})
		}
	}
	return objects, nil
}

var _ Service = (*S3Service)(nil)

func contentType(localPath, override string) string {
	if override != "" {
		return override
	}
	ext := strings.ToLower(filepath.Ext(localPath))
	if ct, ok := audioContentTypes[ext]; ok {
		return ct
	}
	return mime.TypeByExtension(ext)
}

// progressReader reports bytes handed to the uploader. Callbacks fire from the
// uploader's reading goroutine.
type progressReader struct {
	r     io.Reader
	total int64
	done  atomic.Int64
	cb    func(done, total int64)
}

func newProgressReader(r io.Reader, total int64, cb func(done, total int64)) io.Reader {
	if cb == nil {
		return r
	}
	cb(0, total)
	return &progressReader{r: r, total: total, cb: cb}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.cb(p.done.Add(int64(n)), p.total)
	}
	return n, err
}
