package suggestion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rithindattag/Annotara/internal/lifecycle"
	"github.com/sirupsen/logrus"
)

// 建议图形按固定画布尺寸输出
const (
	CanvasWidth  = 800
	CanvasHeight = 600

	// DefaultTimeout 默认调用超时
	DefaultTimeout = 15 * time.Second
)

// Region 供应商返回的区域,坐标按图像尺寸归一化到 [0,1]
type Region struct {
	Label      string
	Confidence float64 // 0-100
	Left       float64
	Top        float64
	Width      float64
	Height     float64
}

// Detection 供应商原始结果
type Detection struct {
	Model   string
	Labels  []string
	Regions []Region
}

// Provider AI 标注供应商
type Provider interface {
	Name() string
	Detect(ctx context.Context, objectKey string) (*Detection, error)
}

// Shape 建议的标注框
type Shape struct {
	ID         string `json:"id"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Label      string `json:"label,omitempty"`
	Confidence *int   `json:"confidence,omitempty"`
}

// Result 与供应商无关的统一结果
type Result struct {
	Shapes []Shape  `json:"annotations"`
	Labels []string `json:"labels"`
	Model  string   `json:"model"`
}

// Adapter 包装供应商,统一结果格式与失败语义
type Adapter struct {
	provider Provider
	timeout  time.Duration
	logger   logrus.FieldLogger
}

// NewAdapter 创建适配器
func NewAdapter(provider Provider, timeout time.Duration, logger logrus.FieldLogger) *Adapter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Adapter{
		provider: provider,
		timeout:  timeout,
		logger:   logger.WithFields(logrus.Fields{"component": "suggestion", "provider": provider.Name()}),
	}
}

// ProviderName 返回当前供应商名称
func (a *Adapter) ProviderName() string {
	return a.provider.Name()
}

type detectOutcome struct {
	detection *Detection
	err       error
}

// Suggest 调用供应商生成建议
// 出错、超时或返回无效结果时返回 ErrProviderFailure,不会返回部分结果
func (a *Adapter) Suggest(ctx context.Context, taskID string, objectKey string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	// 供应商不响应 ctx 时依然按超时返回
	done := make(chan detectOutcome, 1)
	go func() {
		detection, err := a.provider.Detect(ctx, objectKey)
		done <- detectOutcome{detection: detection, err: err}
	}()

	var outcome detectOutcome
	select {
	case <-ctx.Done():
		outcome.err = ctx.Err()
	case outcome = <-done:
	}

	if outcome.err != nil {
		a.logger.WithError(outcome.err).WithField("task_id", taskID).Warn("AI provider call failed")
		return nil, fmt.Errorf("%w: %s: %w", lifecycle.ErrProviderFailure, a.provider.Name(), outcome.err)
	}

	result, err := normalize(taskID, outcome.detection)
	if err != nil {
		a.logger.WithError(err).WithField("task_id", taskID).Warn("AI provider returned invalid result")
		return nil, fmt.Errorf("%w: %s: %w", lifecycle.ErrProviderFailure, a.provider.Name(), err)
	}
	return result, nil
}

// normalize 校验并转换为画布坐标
func normalize(taskID string, detection *Detection) (*Result, error) {
	if detection == nil {
		return nil, errors.New("empty detection")
	}
	if detection.Model == "" {
		return nil, errors.New("missing model identifier")
	}

	result := &Result{
		Shapes: make([]Shape, 0, len(detection.Regions)),
		Model:  detection.Model,
	}
	seen := make(map[string]bool)
	addLabel := func(label string) {
		if label != "" && !seen[label] {
			seen[label] = true
			result.Labels = append(result.Labels, label)
		}
	}
	for _, label := range detection.Labels {
		addLabel(label)
	}

	for i, region := range detection.Regions {
		if err := validateRegion(region); err != nil {
			return nil, fmt.Errorf("region %d: %w", i, err)
		}
		// 物体被图像边缘截断时坐标会超出 [0,1],裁剪到图像内,完全在图像外的区域丢弃
		region, ok := clampRegion(region)
		if !ok {
			addLabel(region.Label)
			continue
		}
		shape := Shape{
			ID:     fmt.Sprintf("%s-auto-%d", taskID, i),
			X:      int(math.Round(region.Left * CanvasWidth)),
			Y:      int(math.Round(region.Top * CanvasHeight)),
			Width:  int(math.Round(region.Width * CanvasWidth)),
			Height: int(math.Round(region.Height * CanvasHeight)),
			Label:  region.Label,
		}
		if region.Confidence > 0 {
			confidence := int(math.Round(region.Confidence))
			shape.Confidence = &confidence
		}
		result.Shapes = append(result.Shapes, shape)
		addLabel(region.Label)
	}

	if result.Labels == nil {
		result.Labels = []string{}
	}
	return result, nil
}

func validateRegion(r Region) error {
	values := []float64{r.Left, r.Top, r.Width, r.Height, r.Confidence}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("non-finite value")
		}
	}
	if r.Width <= 0 || r.Height <= 0 {
		return errors.New("box has no area")
	}
	if r.Confidence < 0 || r.Confidence > 100 {
		return errors.New("confidence out of range")
	}
	return nil
}

// clampRegion 将区域裁剪到 [0,1],裁剪后没有面积时返回 false
func clampRegion(r Region) (Region, bool) {
	left := math.Max(r.Left, 0)
	top := math.Max(r.Top, 0)
	right := math.Min(r.Left+r.Width, 1)
	bottom := math.Min(r.Top+r.Height, 1)
	if right <= left || bottom <= top {
		return r, false
	}
	r.Left, r.Top = left, top
	r.Width, r.Height = right-left, bottom-top
	return r, true
}
