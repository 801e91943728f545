package blob

import (
	"fmt"
	"strings"

	"github.com/kimhsiao/fieldsync/internal/config"
)

// Default AWS S3 endpoints by region.
var awsEndpoints = map[string]string{
	"us-east-1":      "s3.amazonaws.com",
	"us-east-2":      "s3.us-east-2.amazonaws.com",
	"us-west-1":      "s3.us-west-1.amazonaws.com",
	"us-west-2":      "s3.us-west-2.amazonaws.com",
	"ca-central-1":   "s3.ca-central-1.amazonaws.com",
	"eu-west-1":      "s3.eu-west-1.amazonaws.com",
	"eu-central-1":   "s3.eu-central-1.amazonaws.com",
	"ap-southeast-1": "s3.ap-southeast-1.amazonaws.com",
	"ap-southeast-2": "s3.ap-southeast-2.amazonaws.com",
	"ap-northeast-1": "s3.ap-northeast-1.amazonaws.com",
	"sa-east-1":      "s3.sa-east-1.amazonaws.com",
}

// AWSEndpoint returns the S3 endpoint for region, falling back to the global one.
func AWSEndpoint(region string) string {
	if endpoint, ok := awsEndpoints[region]; ok {
		return endpoint
	}
	return "s3.amazonaws.com"
}

// NewAWSClient creates a client for AWS S3, which uses virtual-host style URLs.
func NewAWSClient(bucket, accessKey, secretKey, region string) *S3Client {
	if region == "" {
		region = "us-east-1"
	}
	return NewS3Client(S3Config{
		Endpoint:   AWSEndpoint(region),
		BucketName: bucket,
		AccessKey:  accessKey,
		SecretKey:  secretKey,
		Region:     region,
	})
}

// NewMinIOClient creates a client for MinIO. MinIO needs path-style URLs and
// ignores the region.
func NewMinIOClient(endpoint, bucket, accessKey, secretKey string, useSSL bool) *S3Client {
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if useSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	return NewS3Client(S3Config{
		Endpoint:       endpoint,
		BucketName:     bucket,
		AccessKey:      accessKey,
		SecretKey:      secretKey,
		Region:         "us-east-1",
		ForcePathStyle: true,
	})
}

// R2Endpoint returns the Cloudflare R2 endpoint for an account.
func R2Endpoint(accountID string) string {
	return fmt.Sprintf("%s.r2.cloudflarestorage.com", accountID)
}

// NewR2Client creates a client for Cloudflare R2.
func NewR2Client(accountID, bucket, accessKey, secretKey string) *S3Client {
	return NewS3Client(S3Config{
		Endpoint:   R2Endpoint(accountID),
		BucketName: bucket,
		AccessKey:  accessKey,
		SecretKey:  secretKey,
		Region:     "auto",
	})
}

// FromConfig picks a provider from the blob settings. An empty endpoint means
// AWS; an R2 host keeps virtual-host style; anything else follows the config.
func FromConfig(cfg config.Blob) *S3Client {
	switch {
	case cfg.Endpoint == "":
		return NewAWSClient(cfg.Bucket, cfg.AccessKey, cfg.SecretKey, cfg.Region)
	case strings.Contains(cfg.Endpoint, ".r2.cloudflarestorage.com"):
		return NewS3Client(S3Config{
			Endpoint:   cfg.Endpoint,
			BucketName: cfg.Bucket,
			AccessKey:  cfg.AccessKey,
			SecretKey:  cfg.SecretKey,
			Region:     "auto",
		})
	default:
		return NewS3Client(S3Config{
			Endpoint:       cfg.Endpoint,
			BucketName:     cfg.Bucket,
			AccessKey:      cfg.AccessKey,
			SecretKey:      cfg.SecretKey,
			Region:         cfg.Region,
			ForcePathStyle: cfg.ForcePathStyle,
		})
	}
}
