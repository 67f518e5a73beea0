package suggestion

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
)

// MockModel 离线模式的模型名
const MockModel = "mock-bedrock-annotator"

// MockProvider 离线供应商,结果由 objectKey 决定,同一对象多次调用结果相同
type MockProvider struct {
	// Regions 每次生成的区域数量
	Regions int
}

// NewMockProvider 创建离线供应商
func NewMockProvider() *MockProvider {
	return &MockProvider{Regions: 2}
}

func (p *MockProvider) Name() string {
	return "mock"
}

// Detect 生成伪随机但合法的区域
func (p *MockProvider) Detect(ctx context.Context, objectKey string) (*Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(objectKey))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	n := p.Regions
	if n <= 0 {
		n = 2
	}
	detection := &Detection{Model: MockModel, Regions: make([]Region, 0, n)}
	for i := 0; i < n; i++ {
		// 在 800x600 画布上: x∈[0,300] y∈[0,200] 宽高∈[100,160]
		detection.Regions = append(detection.Regions, Region{
			Label:      fmt.Sprintf("Mock object %d", i+1),
			Confidence: float64(75 + rng.Intn(11)),
			Left:       float64(rng.Intn(301)) / CanvasWidth,
			Top:        float64(rng.Intn(201)) / CanvasHeight,
			Width:      float64(100+rng.Intn(61)) / CanvasWidth,
			Height:     float64(100+rng.Intn(61)) / CanvasHeight,
		})
	}
	return detection, nil
}
