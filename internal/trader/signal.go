package trader

import (
	"context"
	"fmt"
	"sync"

	"github.com/assist-by/harmonia/internal/domain"
	"github.com/assist-by/harmonia/internal/exchange"
)

// SignalSource는 진입 신호 공급자의 인터페이스를 정의합니다.
// 신호가 없으면 (nil, nil)을 반환합니다.
type SignalSource interface {
	// CheckNewEntry는 현재 시세를 보고 새로운 진입 후보를 반환합니다
	CheckNewEntry(ctx context.Context, ex exchange.Exchange, ticker domain.Ticker) (*domain.EntrySignal, error)
}

// SourceFactory는 신호 공급자 인스턴스를 생성하는 함수 타입입니다
type SourceFactory func(config map[string]interface{}) (SignalSource, error)

// Registry는 사용 가능한 신호 프로필을 등록하고 관리합니다
type Registry struct {
	profiles map[string]SourceFactory
}

// NewRegistry는 새로운 프로필 레지스트리를 생성합니다
func NewRegistry() *Registry {
	return &Registry{
		profiles: make(map[string]SourceFactory),
	}
}

// Register는 새로운 프로필 팩토리를 레지스트리에 등록합니다
func (r *Registry) Register(name string, factory SourceFactory) {
	r.profiles[name] = factory
}

// Create는 주어진 이름과 설정으로 신호 공급자를 생성합니다
func (r *Registry) Create(name string, config map[string]interface{}) (SignalSource, error) {
	factory, exists := r.profiles[name]
	if !exists {
		return nil, fmt.Errorf("존재하지 않는 프로필: %s", name)
	}
	return factory(config)
}

// ListProfiles는 등록된 모든 프로필 이름을 반환합니다
func (r *Registry) ListProfiles() []string {
	var names []string
	for name := range r.profiles {
		names = append(names, name)
	}
	return names
}

// StrategicProfile은 기본 프로필 이름입니다
const StrategicProfile = "strategic"

// DefaultRegistry는 strategic 프로필이 등록된 레지스트리를 생성합니다
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(StrategicProfile, func(config map[string]interface{}) (SignalSource, error) {
		return NewQueueSource(), nil
	})
	return r
}

// QueueSource는 외부에서 밀어 넣은 신호를 순서대로 내보내는 공급자입니다.
// 신호 생성 자체는 외부 시스템의 몫이고, 이 공급자는 전달 통로 역할만 합니다.
type QueueSource struct {
	mu    sync.Mutex
	queue []*domain.EntrySignal
}

// NewQueueSource는 새로운 QueueSource를 생성합니다
func NewQueueSource() *QueueSource {
	return &QueueSource{}
}

// Push는 진입 신호를 대기열에 추가합니다
func (q *QueueSource) Push(signal *domain.EntrySignal) {
	if signal == nil {
		return
	}
	q.mu.Lock()
	q.queue = append(q.queue, signal)
	q.mu.Unlock()
}

// CheckNewEntry는 대기열의 가장 오래된 신호를 반환합니다. 비어 있으면 (nil, nil)입니다.
func (q *QueueSource) CheckNewEntry(ctx context.Context, ex exchange.Exchange, ticker domain.Ticker) (*domain.EntrySignal, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.queue) == 0 {
		return nil, nil
	}

	signal := q.queue[0]
	q.queue = q.queue[1:]
	return signal, nil
}

// DirectionalSource는 내부 공급자의 신호를 고정된 방향으로 거릅니다.
// 반대 방향 신호는 조용히 버리고, 방향이 없는 신호와 nil은 그대로 통과시킵니다.
// 필터 자체는 에러를 만들지 않습니다.
type DirectionalSource struct {
	direction domain.PositionSide
	inner     SignalSource
}

// NewDirectionalSource는 방향 필터가 적용된 공급자를 생성합니다
func NewDirectionalSource(direction domain.PositionSide, inner SignalSource) *DirectionalSource {
	return &DirectionalSource{direction: direction, inner: inner}
}

// Direction은 필터의 고정 방향을 반환합니다
func (d *DirectionalSource) Direction() domain.PositionSide {
	return d.direction
}

// CheckNewEntry는 내부 공급자에 위임한 뒤 방향 필터를 적용합니다
func (d *DirectionalSource) CheckNewEntry(ctx context.Context, ex exchange.Exchange, ticker domain.Ticker) (*domain.EntrySignal, error) {
	signal, err := d.inner.CheckNewEntry(ctx, ex, ticker)
	if err != nil {
		return nil, err
	}
	if signal == nil {
		return nil, nil
	}

	// 방향이 없는 신호는 기본 계층의 처리를 보존하기 위해 그대로 전달합니다
	if !signal.HasSide() {
		return signal, nil
	}

	if signal.Side != d.direction {
		return nil, nil
	}

	return signal, nil
}
