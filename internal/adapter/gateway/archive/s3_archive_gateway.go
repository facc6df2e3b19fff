package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/waverun-dev/waverun/internal/application/port/output"
)

// S3ArchiveGateway stores checkpoint exports in S3.
// Key structure: <prefix>/archives/<taskID>/<archiveID>/{content,metadata.json}
type S3ArchiveGateway struct {
	client     S3API
	bucketName string
	prefix     string
}

// S3Config holds the S3 archive gateway configuration
type S3Config struct {
	BucketName string
	Prefix     string
	Region     string
}

// NewS3ArchiveGateway creates an S3 archive gateway from the ambient AWS
// configuration
func NewS3ArchiveGateway(ctx context.Context, cfg S3Config) (*S3ArchiveGateway, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.Region != "" {
		awsCfg.Region = cfg.Region
	}
	return NewS3ArchiveGatewayWithClient(s3.NewFromConfig(awsCfg), cfg.BucketName, cfg.Prefix), nil
}

// NewS3ArchiveGatewayWithClient creates a gateway around an existing client.
// Used in tests with the in-memory mock client.
func NewS3ArchiveGatewayWithClient(client S3API, bucketName, prefix string) *S3ArchiveGateway {
	return &S3ArchiveGateway{client: client, bucketName: bucketName, prefix: prefix}
}

// SaveArchive uploads an export document and its metadata
func (g *S3ArchiveGateway) SaveArchive(ctx context.Context, req output.SaveArchiveRequest) (*output.ArchiveMetadata, error) {
	archiveID := generateArchiveID(req.Content)
	contentKey := g.buildKey("archives", req.TaskID, archiveID, "content")

	_, err := g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(g.bucketName),
		Key:         aws.String(contentKey),
		Body:        bytes.NewReader(req.Content),
		ContentType: aws.String(req.ContentType),
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("upload archive to S3: %w", err)
	}

	metadata := output.ArchiveMetadata{
		ID:          archiveID,
		TaskID:      req.TaskID,
		StoragePath: fmt.Sprintf("s3://%s/%s", g.bucketName, contentKey),
		ContentType: req.ContentType,
		Size:        int64(len(req.Content)),
		UploadedAt:  time.Now().UTC(),
		Metadata:    req.Metadata,
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal archive metadata: %w", err)
	}
	_, err = g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(g.bucketName),
		Key:         aws.String(g.buildKey("archives", req.TaskID, archiveID, "metadata.json")),
		Body:        bytes.NewReader(metadataJSON),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("upload archive metadata to S3: %w", err)
	}

	return &metadata, nil
}

// LoadArchive retrieves a stored export by ID
func (g *S3ArchiveGateway) LoadArchive(ctx context.Context, archiveID string) (*output.Archive, error) {
	listOutput, err := g.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(g.bucketName),
		Prefix: aws.String(g.buildKey("archives") + "/"),
	})
	if err != nil {
		return nil, fmt.Errorf("list S3 archives: %w", err)
	}

	var metadataKey string
	for _, obj := range listOutput.Contents {
		key := aws.ToString(obj.Key)
		if strings.Contains(key, "/"+archiveID+"/") && strings.HasSuffix(key, "metadata.json") {
			metadataKey = key
			break
		}
	}
	if metadataKey == "" {
		return nil, fmt.Errorf("archive not found: %s", archiveID)
	}

	metadataJSON, err := g.download(ctx, metadataKey)
	if err != nil {
		return nil, err
	}
	var metadata output.ArchiveMetadata
	if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
		return nil, fmt.Errorf("unmarshal archive metadata: %w", err)
	}

	content, err := g.download(ctx, strings.TrimSuffix(metadataKey, "metadata.json")+"content")
	if err != nil {
		return nil, err
	}

	return &output.Archive{ID: archiveID, Content: content, Metadata: metadata}, nil
}

// ListArchives returns metadata for all archives of a task, oldest first
func (g *S3ArchiveGateway) ListArchives(ctx context.Context, taskID string) ([]*output.ArchiveMetadata, error) {
	listOutput, err := g.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(g.bucketName),
		Prefix: aws.String(g.buildKey("archives", taskID) + "/"),
	})
	if err != nil {
		return nil, fmt.Errorf("list S3 archives: %w", err)
	}

	var out []*output.ArchiveMetadata
	for _, obj := range listOutput.Contents {
		key := aws.ToString(obj.Key)
		if !strings.HasSuffix(key, "metadata.json") {
			continue
		}
		metadataJSON, err := g.download(ctx, key)
		if err != nil {
			continue
		}
		var metadata output.ArchiveMetadata
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			continue
		}
		out = append(out, &metadata)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UploadedAt.Before(out[j].UploadedAt)
	})
	return out, nil
}

func (g *S3ArchiveGateway) download(ctx context.Context, key string) ([]byte, error) {
	obj, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download %s from S3: %w", key, err)
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (g *S3ArchiveGateway) buildKey(parts ...string) string {
	if g.prefix != "" {
		parts = append([]string{g.prefix}, parts...)
	}
	return path.Join(parts...)
}
