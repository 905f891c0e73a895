package ai

import (
	"fmt"
	"math"
)

// Uncertain метка для вероятностей ниже всех порогов
const Uncertain = "Uncertain"

// Tier один уровень уверенности: p > Threshold (p >= Threshold при Inclusive)
// даёт метку Fake или Real в зависимости от IsFake
type Tier struct {
	Threshold float64 `yaml:"threshold"`
	Inclusive bool    `yaml:"inclusive"`
	Fake      string  `yaml:"fake"`
	Real      string  `yaml:"real"`
}

// matches проверяет, проходит ли p порог уровня
func (t Tier) matches(p float64) bool {
	if t.Inclusive {
		return p >= t.Threshold
	}
	return p > t.Threshold
}

// TierTable упорядоченный по убыванию порогов набор уровней
type TierTable struct {
	Name  string `yaml:"name"`
	Tiers []Tier `yaml:"tiers"`
}

// FileTiers уровни для анализа целого файла
func FileTiers() TierTable {
	return TierTable{
		Name: "file",
		Tiers: []Tier{
			// 0.8 ровно уже "Likely Fake"; 0.6 ровно ещё Uncertain
			{Threshold: 0.8, Inclusive: true, Fake: "Likely Fake", Real: "Likely Real"},
			{Threshold: 0.6, Fake: "Possibly Fake", Real: "Possibly Real"},
		},
	}
}

// StreamTiers уровни для потокового анализа
func StreamTiers() TierTable {
	return TierTable{
		Name: "stream",
		Tiers: []Tier{
			{Threshold: 0.7, Fake: "Fake", Real: "Real"},
		},
	}
}

// Validate проверяет, что пороги строго убывают и лежат в (0.5, 1]
func (t TierTable) Validate() error {
	prev := math.Inf(1)
	for i, tier := range t.Tiers {
		if math.IsNaN(tier.Threshold) || tier.Threshold <= 0.5 || tier.Threshold > 1 {
			return fmt.Errorf("%s tiers: threshold %d (%v) must be in (0.5, 1]", t.Name, i, tier.Threshold)
		}
		if tier.Threshold == 1 && !tier.Inclusive {
			return fmt.Errorf("%s tiers: threshold 1 is unreachable unless inclusive", t.Name)
		}
		if tier.Threshold >= prev {
			return fmt.Errorf("%s tiers: thresholds must be strictly descending (%v after %v)", t.Name, tier.Threshold, prev)
		}
		if tier.Fake == "" || tier.Real == "" {
			return fmt.Errorf("%s tiers: threshold %v has an empty label", t.Name, tier.Threshold)
		}
		prev = tier.Threshold
	}
	return nil
}

// Rank возвращает номер уровня для категории: 0 = самый уверенный, len(Tiers) = Uncertain
func (t TierTable) Rank(category string) int {
	for i, tier := range t.Tiers {
		if category == tier.Fake || category == tier.Real {
			return i
		}
	}
	return len(t.Tiers)
}

// Verdict итог классификации одного клипа или окна
type Verdict struct {
	Category       string  `json:"prediction"`
	RawProbability float64 `json:"confidence"`
	IsFake         bool    `json:"is_fake"`
	Probability    float64 `json:"probability"` // уверенность в выбранном классе
}

// Classify переводит вероятность "fake" в вердикт.
// Пороги применяются к p напрямую; NaN считается 0.5, значения вне [0, 1] обрезаются.
func Classify(p float64, tiers TierTable) Verdict {
	switch {
	case math.IsNaN(p):
		p = 0.5
	case p < 0:
		p = 0
	case p > 1:
		p = 1
	}

	isFake := p > 0.5
	category := Uncertain
	for _, tier := range tiers.Tiers {
		if tier.matches(p) {
			if isFake {
				category = tier.Fake
			} else {
				category = tier.Real
			}
			break
		}
	}

	probability := p
	if !isFake {
		probability = 1 - p
	}

	return Verdict{
		Category:       category,
		RawProbability: p,
		IsFake:         isFake,
		Probability:    probability,
	}
}
