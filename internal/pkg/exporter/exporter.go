package exporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/models"
)

// Service bundles a tenant's stored data and uploads it to S3-compatible
// storage, serving the platform's customers/data_request compliance topic.
type Service struct {
	s3Client *s3.Client
	cfg      *Config
	db       *gorm.DB
}

// NewService creates the export service.
func NewService(cfg *Config, db *gorm.DB) (*Service, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("S3 export is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	svc := &Service{s3Client: s3Client, cfg: cfg, db: db}

	if err := svc.testConnection(); err != nil {
		return nil, fmt.Errorf("failed to connect to S3: %w", err)
	}

	log.Infof("[Exporter] Successfully initialized S3 client for bucket: %s", cfg.BucketName)
	return svc, nil
}

func (s *Service) testConnection() error {
	_, err := s.s3Client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(s.cfg.BucketName),
	})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", s.cfg.BucketName, err)
	}
	return nil
}

// bundle is the export format: everything we store about a tenant.
type bundle struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Topic       string                 `json:"topic"`
	Request     json.RawMessage        `json:"request,omitempty"`
	Tenant      *models.Tenant         `json:"tenant,omitempty"`
	Entitlement *models.Entitlement    `json:"entitlement,omitempty"`
	Charges     []models.Charge        `json:"charges"`
	Operators   []models.User          `json:"operators"`
}

// Export gathers the tenant's records, serializes them, and uploads the
// bundle. It returns the object key the bundle was stored under.
func (s *Service) Export(ctx context.Context, tenantID uint, topic, requestJSON string) (string, error) {
	b := bundle{
		GeneratedAt: time.Now().UTC(),
		Topic:       topic,
	}
	if json.Valid([]byte(requestJSON)) {
		b.Request = json.RawMessage(requestJSON)
	}

	var tenant models.Tenant
	if err := s.db.WithContext(ctx).First(&tenant, tenantID).Error; err == nil {
		b.Tenant = &tenant
	}
	var ent models.Entitlement
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&ent).Error; err == nil {
		b.Entitlement = &ent
	}
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Find(&b.Charges).Error; err != nil {
		return "", fmt.Errorf("load charges: %w", err)
	}
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Find(&b.Operators).Error; err != nil {
		return "", fmt.Errorf("load operators: %w", err)
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal export bundle: %w", err)
	}

	key := s.cfg.GetObjectKey(tenantID, b.GeneratedAt)
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("upload export bundle: %w", err)
	}

	log.Infof("[Exporter] Uploaded export for tenant %d (%d bytes) as %s", tenantID, len(data), key)
	return key, nil
}
