// Package blob stores photo files in S3-compatible object storage and keeps
// a local content-addressed copy on the device.
package blob

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/kimhsiao/fieldsync/internal/clock"
	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
)

// ObjectStore is the blob storage the photo syncer needs.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Download(ctx context.Context, rawURL string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// S3Config holds S3 connection configuration.
type S3Config struct {
	Endpoint       string
	BucketName     string
	AccessKey      string
	SecretKey      string
	Region         string
	ForcePathStyle bool // Use path-style URLs (minio, localstack)
}

// S3Client implements ObjectStore for S3-compatible storage.
type S3Client struct {
	config     S3Config
	httpClient *http.Client
	clock      clock.Clock
}

var _ ObjectStore = (*S3Client)(nil)

// NewS3Client creates a new S3Client.
func NewS3Client(config S3Config) *S3Client {
	if !strings.HasPrefix(config.Endpoint, "http://") && !strings.HasPrefix(config.Endpoint, "https://") {
		config.Endpoint = "https://" + config.Endpoint
	}
	config.Endpoint = strings.TrimSuffix(config.Endpoint, "/")
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	return &S3Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		clock: clock.New(),
	}
}

// WithClock replaces the signing clock.
func (c *S3Client) WithClock(cl clock.Clock) *S3Client {
	c.clock = cl
	return c
}

// ObjectURL returns the addressable URL of key.
func (c *S3Client) ObjectURL(key string) string {
	u, _ := url.Parse(c.config.Endpoint)
	if c.config.ForcePathStyle {
		return fmt.Sprintf("%s://%s/%s/%s", u.Scheme, u.Host, c.config.BucketName, key)
	}
	return fmt.Sprintf("%s://%s.%s/%s", u.Scheme, c.config.BucketName, u.Host, key)
}

// Upload stores data at key and returns its URL.
func (c *S3Client) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	objectURL := c.ObjectURL(key)
	req, err := c.newRequest(ctx, http.MethodPut, objectURL, data)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)

	if err := c.do(req, nil); err != nil {
		return "", errors.Wrapf(err, "uploading %s", key)
	}
	return objectURL, nil
}

// Download fetches an object by its URL.
func (c *S3Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := c.do(req, &buf); err != nil {
		return nil, errors.Wrapf(err, "downloading %s", rawURL)
	}
	return buf.Bytes(), nil
}

// Delete removes the object at key.
func (c *S3Client) Delete(ctx context.Context, key string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, c.ObjectURL(key), nil)
	if err != nil {
		return err
	}
	return errors.Wrapf(c.do(req, nil), "deleting %s", key)
}

func (c *S3Client) do(req *http.Request, out io.Writer) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "making http request")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &apperrors.HTTPError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	if out != nil {
		if _, err := io.Copy(out, resp.Body); err != nil {
			return apperrors.Wrap(apperrors.ErrBlobTransfer, "reading response body", err)
		}
	}
	return nil
}

// newRequest creates a SigV4-signed request.
func (c *S3Client) newRequest(ctx context.Context, method, rawURL string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, errors.Wrap(err, "constructing http request")
	}

	payloadHash := hex.EncodeToString(hashSHA256(body))
	amzDate := c.clock.Now().UTC().Format("20060102T150405Z")
	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)
	req.Header.Set("Authorization", c.authorization(method, req.URL, amzDate, payloadHash))
	return req, nil
}

// authorization computes the AWS SigV4 Authorization header.
func (c *S3Client) authorization(method string, u *url.URL, amzDate, payloadHash string) string {
	dateStamp := amzDate[:8]
	scope := fmt.Sprintf("%s/%s/s3/aws4_request", dateStamp, c.config.Region)

	canonicalURI := u.EscapedPath()
	if canonicalURI == "" {
		canonicalURI = "/"
	}
	canonicalHeaders := fmt.Sprintf("host:%s\nx-amz-content-sha256:%s\nx-amz-date:%s\n", u.Host, payloadHash, amzDate)
	signedHeaders := "host;x-amz-content-sha256;x-amz-date"

	canonicalRequest := strings.Join([]string{
		method, canonicalURI, u.Query().Encode(), canonicalHeaders, signedHeaders, payloadHash,
	}, "\n")

	algorithm := "AWS4-HMAC-SHA256"
	stringToSign := strings.Join([]string{
		algorithm, amzDate, scope, hex.EncodeToString(hashSHA256([]byte(canonicalRequest))),
	}, "\n")

	kDate := hmacSHA256([]byte("AWS4"+c.config.SecretKey), dateStamp)
	kRegion := hmacSHA256(kDate, c.config.Region)
	kService := hmacSHA256(kRegion, "s3")
	kSigning := hmacSHA256(kService, "aws4_request")
	signature := hex.EncodeToString(hmacSHA256(kSigning, stringToSign))

	return fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm, c.config.AccessKey, scope, signedHeaders, signature)
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

func hashSHA256(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}
