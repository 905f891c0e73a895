// Package ai предоставляет извлечение признаков и классификацию синтетической речи
package ai

import (
	"math/rand/v2"
	"sync"
)

// Scorer классификатор: тензор (1, n_mels, width, 1) → вероятность того, что речь синтетическая.
// Реализации могут быть не потокобезопасны внутри, но должны сериализовать вызовы сами.
type Scorer interface {
	Score(t *ModelTensor) (float64, error)
}

// MockScorer заглушка, используемая когда модель недоступна.
// Возвращает равномерно распределённое значение из [0.3, 0.7).
type MockScorer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockScorer создаёт заглушку с фиксированным seed (воспроизводимые результаты)
func NewMockScorer(seed uint64) *MockScorer {
	return &MockScorer{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Score возвращает случайную вероятность, не глядя на тензор
func (m *MockScorer) Score(_ *ModelTensor) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return 0.3 + 0.4*m.rng.Float64(), nil
}

// FixedScorer всегда возвращает одно и то же значение (тесты и отладка)
type FixedScorer float64

// Score возвращает фиксированную вероятность
func (f FixedScorer) Score(_ *ModelTensor) (float64, error) {
	return float64(f), nil
}
