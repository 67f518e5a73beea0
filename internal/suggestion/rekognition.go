package suggestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
)

// RekognitionModel Rekognition 结果的模型名
const RekognitionModel = "aws-rekognition-detect-labels"

// RekognitionAPI DetectLabels 客户端接口,便于测试替换
type RekognitionAPI interface {
	DetectLabels(ctx context.Context, params *rekognition.DetectLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
}

// RekognitionConfig Rekognition 配置
type RekognitionConfig struct {
	Bucket        string
	MinConfidence float32
	MaxLabels     int32
}

// RekognitionProvider 基于 AWS Rekognition DetectLabels 的供应商
type RekognitionProvider struct {
	client RekognitionAPI
	cfg    RekognitionConfig
}

// NewRekognitionProvider 创建 Rekognition 供应商
func NewRekognitionProvider(client RekognitionAPI, cfg RekognitionConfig) (*RekognitionProvider, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("rekognition requires an S3 bucket")
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 60
	}
	if cfg.MaxLabels <= 0 {
		cfg.MaxLabels = 10
	}
	return &RekognitionProvider{client: client, cfg: cfg}, nil
}

func (p *RekognitionProvider) Name() string {
	return "rekognition"
}

// Detect 识别 S3 中的图像
func (p *RekognitionProvider) Detect(ctx context.Context, objectKey string) (*Detection, error) {
	out, err := p.client.DetectLabels(ctx, &rekognition.DetectLabelsInput{
		Image: &types.Image{
			S3Object: &types.S3Object{
				Bucket: aws.String(p.cfg.Bucket),
				Name:   aws.String(objectKey),
			},
		},
		MinConfidence: aws.Float32(p.cfg.MinConfidence),
		MaxLabels:     aws.Int32(p.cfg.MaxLabels),
	})
	if err != nil {
		return nil, fmt.Errorf("detect labels: %w", err)
	}

	detection := &Detection{Model: RekognitionModel}
	for _, label := range out.Labels {
		name := aws.ToString(label.Name)
		if name == "" {
			continue
		}
		detection.Labels = append(detection.Labels, name)

		for _, instance := range label.Instances {
			box := instance.BoundingBox
			if box == nil {
				continue
			}
			detection.Regions = append(detection.Regions, Region{
				Label:      name,
				Confidence: float64(aws.ToFloat32(instance.Confidence)),
				Left:       float64(aws.ToFloat32(box.Left)),
				Top:        float64(aws.ToFloat32(box.Top)),
				Width:      float64(aws.ToFloat32(box.Width)),
				Height:     float64(aws.ToFloat32(box.Height)),
			})
		}
	}
	return detection, nil
}
