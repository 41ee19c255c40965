package assets

import (
	"bytes"
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/thetakeaway/takeaway/src/config"
	"github.com/thetakeaway/takeaway/src/logging"
	"github.com/thetakeaway/takeaway/src/oops"
	_ "golang.org/x/image/webp"
)

const MaxImageBytes = 5 * 1024 * 1024

// The parts of the S3 client we use.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// Digest cover images, kept in an S3-compatible bucket and served from
// PublicBaseUrl.
type Store struct {
	client        S3Client
	bucket        string
	publicBaseUrl string
}

var ErrStorageNotConfigured = errors.New("image storage is not configured")

func NewStore(client S3Client, bucket, publicBaseUrl string) *Store {
	return &Store{
		client:        client,
		bucket:        bucket,
		publicBaseUrl: strings.TrimSuffix(publicBaseUrl, "/"),
	}
}

func NewStoreFromConfig(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, ErrStorageNotConfigured
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Key, cfg.Secret, ""),
		),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithEndpointResolver(aws.EndpointResolverFunc(func(service, region string) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL: cfg.Endpoint,
			}, nil
		})),
	)
	if err != nil {
		return nil, oops.New(err, "failed to load storage config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	publicBaseUrl := cfg.PublicBaseUrl
	if publicBaseUrl == "" {
		publicBaseUrl = strings.TrimSuffix(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	return NewStore(client, cfg.Bucket, publicBaseUrl), nil
}

var REIllegalFilenameChars = regexp.MustCompile(`[^\w\-.]`)

func SanitizeFilename(filename string) string {
	filename = path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if filename == "" || filename == "." || filename == "/" {
		return "unnamed"
	}
	return REIllegalFilenameChars.ReplaceAllString(filename, "_")
}

func DigestImageKey(digestID uuid.UUID, checksum, filename string) string {
	return fmt.Sprintf("digests/%s/%s-%s", digestID, checksum[:12], filename)
}

type InvalidImageError struct {
	Reason string
}

func (e *InvalidImageError) Error() string {
	return "invalid image: " + e.Reason
}

type ImageInfo struct {
	ContentType   string
	Width, Height int
}

var contentTypes = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// Checks that content is a PNG, JPEG, GIF, or WebP image no bigger than
// MaxImageBytes.
func ValidateImage(content []byte) (ImageInfo, error) {
	if len(content) == 0 {
		return ImageInfo{}, &InvalidImageError{Reason: "the file is empty"}
	}
	if len(content) > MaxImageBytes {
		return ImageInfo{}, &InvalidImageError{Reason: fmt.Sprintf("the file is larger than %dMB", MaxImageBytes/1024/1024)}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return ImageInfo{}, &InvalidImageError{Reason: "the file is not a PNG, JPEG, GIF, or WebP image"}
	}
	contentType, ok := contentTypes[format]
	if !ok {
		return ImageInfo{}, &InvalidImageError{Reason: fmt.Sprintf("%s images are not supported", format)}
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return ImageInfo{}, &InvalidImageError{Reason: "the image has no pixels"}
	}

	return ImageInfo{
		ContentType: contentType,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}

type UploadedImage struct {
	Key string
	Url string
	ImageInfo
}

// Validates and uploads a cover image for a digest, returning its public URL.
func (s *Store) UploadDigestImage(ctx context.Context, digestID uuid.UUID, filename string, content []byte) (*UploadedImage, error) {
	info, err := ValidateImage(content)
	if err != nil {
		return nil, err
	}

	checksum := fmt.Sprintf("%x", sha1.Sum(content))
	key := DigestImageKey(digestID, checksum, SanitizeFilename(filename))

	upload := func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      &s.bucket,
			Key:         &key,
			Body:        bytes.NewReader(content),
			ACL:         types.ObjectCannedACLPublicRead,
			ContentType: &info.ContentType,
		})
		return err
	}

	err = upload()
	if err != nil {
		var apiError smithy.APIError
		if errors.As(err, &apiError) && apiError.ErrorCode() == "NoSuchBucket" {
			logging.ExtractLogger(ctx).Info().Str("bucket", s.bucket).Msg("creating image bucket")
			_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
				Bucket: &s.bucket,
			})
			if err != nil {
				return nil, oops.New(err, "failed to create image bucket")
			}

			err = upload()
			if err != nil {
				return nil, oops.New(err, "failed to upload image")
			}
		} else {
			return nil, oops.New(err, "failed to upload image")
		}
	}

	return &UploadedImage{
		Key:       key,
		Url:       s.publicBaseUrl + "/" + key,
		ImageInfo: info,
	}, nil
}
