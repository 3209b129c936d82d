package s3

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"albumshare/internal/config"
	"albumshare/internal/domain"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultUploadTTL   = 15 * time.Minute
	defaultDownloadTTL = 10 * time.Minute
)

// Client talks to an S3-compatible bucket.
type Client struct {
	client      *s3.Client
	presign     *s3.PresignClient
	bucket      string
	uploadTTL   time.Duration
	downloadTTL time.Duration
	now         func() time.Time
}

// NewClient builds the client and checks that the bucket is reachable.
func NewClient(ctx context.Context, conf *config.S3Config) (*Client, error) {
	c, err := newClient(conf)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to access bucket %s: %w", c.bucket, err)
	}

	return c, nil
}

func newClient(conf *config.S3Config) (*Client, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if conf.AccessKeyID == "" || conf.SecretAccessKey == "" || conf.Bucket == "" {
		return nil, fmt.Errorf("missing required configuration: accessKeyID, secretAccessKey, and bucket are required")
	}

	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		conf.AccessKeyID,
		conf.SecretAccessKey,
		"",
	))

	opts := s3.Options{
		Region:           conf.Region,
		Credentials:      creds,
		UsePathStyle:     conf.UsePathStyle,
		RetryMode:        aws.RetryModeAdaptive,
		RetryMaxAttempts: 3,
		// Presigned PUTs must not carry SDK-computed checksums the browser cannot reproduce.
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	}
	if conf.Endpoint != "" {
		opts.BaseEndpoint = aws.String(conf.Endpoint)
	}
	client := s3.New(opts)

	uploadTTL := conf.UploadURLTTL
	if uploadTTL <= 0 {
		uploadTTL = defaultUploadTTL
	}
	downloadTTL := conf.DownloadURLTTL
	if downloadTTL <= 0 {
		downloadTTL = defaultDownloadTTL
	}

	return &Client{
		client:      client,
		presign:     s3.NewPresignClient(client),
		bucket:      conf.Bucket,
		uploadTTL:   uploadTTL,
		downloadTTL: downloadTTL,
		now:         time.Now,
	}, nil
}

// PresignUpload issues a PUT credential for key. The Content-Type header is
// part of the signature, so the upload must use the declared MIME type.
func (c *Client) PresignUpload(ctx context.Context, key, contentType string) (*domain.UploadCredential, error) {
	if key == "" || contentType == "" {
		return nil, fmt.Errorf("key and content type are required")
	}

	expiresAt := c.now().Add(c.uploadTTL)
	req, err := c.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(c.uploadTTL), signContentType(contentType))
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	headers := signedHeaders(req.SignedHeader)
	headers["Content-Type"] = []string{contentType}

	return &domain.UploadCredential{
		URL:       req.URL,
		Method:    req.Method,
		Headers:   headers,
		ExpiresAt: expiresAt,
	}, nil
}

// signContentType puts Content-Type back on the request before signing.
// The presigner strips it from bodiless PUTs, which would let the bucket
// accept any type under the credential.
func signContentType(contentType string) func(*s3.PresignOptions) {
	return func(po *s3.PresignOptions) {
		po.ClientOptions = append(po.ClientOptions, func(o *s3.Options) {
			o.APIOptions = append(o.APIOptions, smithyhttp.SetHeaderValue("Content-Type", contentType))
		})
	}
}

// PresignDownload issues a GET URL for key.
func (c *Client) PresignDownload(ctx context.Context, key string) (*domain.DownloadURL, error) {
	if key == "" {
		return nil, fmt.Errorf("key is required")
	}

	expiresAt := c.now().Add(c.downloadTTL)
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(c.downloadTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to presign download: %w", err)
	}

	return &domain.DownloadURL{URL: req.URL, ExpiresAt: expiresAt}, nil
}

// StatObject reads existence and size from the bucket.
func (c *Client) StatObject(ctx context.Context, key string) (*domain.ObjectInfo, error) {
	if key == "" {
		return nil, fmt.Errorf("key is required")
	}

	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}

	return &domain.ObjectInfo{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}, nil
}

// DeleteObject removes key. Deleting a missing key is not an error.
func (c *Client) DeleteObject(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}

	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}

func signedHeaders(h http.Header) map[string][]string {
	out := make(map[string][]string, len(h))
	for k, v := range h {
		// The signer reports lower-case names. Host is set by the HTTP client itself.
		k = http.CanonicalHeaderKey(k)
		if k == "Host" {
			continue
		}
		out[k] = append(out[k], v...)
	}
	return out
}
